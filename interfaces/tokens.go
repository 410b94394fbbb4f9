package interfaces

import (
	"context"

	"golang.org/x/oauth2"
)

// TokenProvider resolves an account's token reference into a usable OAuth
// token. Acquisition and refresh flows live outside the sync core; this is
// the assumed capability boundary.
type TokenProvider interface {
	AccessToken(ctx context.Context, tokenRef string) (*oauth2.Token, error)
}
