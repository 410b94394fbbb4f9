package repository

import "errors"

var (
	ErrEmailNotFound   = errors.New("email not found")
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidInput    = errors.New("invalid input parameters")
)
