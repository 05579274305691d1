package server

import (
	"context"
	"crypto/subtle"
)

// Authorizer decides whether a UI client may start the assistant.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (bool, error)
}

// TokenAuthorizer accepts clients presenting a shared token. Face matching
// runs in the UI and presents the token on success.
type TokenAuthorizer struct {
	Token string
}

func (a TokenAuthorizer) Authorize(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(a.Token)) == 1, nil
}
