package ingest

import "github.com/pkg/errors"

var ErrAccountGone = errors.New("account no longer exists")
