package auth

import (
	"context"
	"errors"
	"net/http"
)

// Authenticator turns request headers into an Identity.
//
// Authenticate returns ErrMissingCredentials when h carries nothing the
// authenticator reads, another rejection (see Rejected) for refused
// credentials, and any other error for internal failures. Implementations
// must be safe for concurrent use.
type Authenticator interface {
	Name() string
	Authenticate(ctx context.Context, h http.Header) (*Identity, error)
}

// Chain tries each authenticator in order. The first identity wins; an
// internal error stops the chain. When every member rejects, the most
// specific rejection is returned: a refused credential beats a missing one.
type Chain []Authenticator

func (Chain) Name() string { return "chain" }

func (c Chain) Authenticate(ctx context.Context, h http.Header) (*Identity, error) {
	reject := ErrMissingCredentials
	for _, a := range c {
		id, err := a.Authenticate(ctx, h)
		switch {
		case err == nil:
			return id, nil
		case errors.Is(err, ErrMissingCredentials):
		case Rejected(err):
			reject = err
		default:
			return nil, err
		}
	}
	return nil, reject
}
