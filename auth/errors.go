package auth

import "errors"

// Rejections. Authenticators return these for credentials they refuse; any
// other error is an internal failure.
var (
	ErrMissingCredentials = errors.New("auth: missing credentials")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenMalformed     = errors.New("auth: token malformed")
)

// ErrForbidden means the identity lacks the required role.
var ErrForbidden = errors.New("auth: access denied")

var rejections = []error{ErrMissingCredentials, ErrInvalidCredentials, ErrTokenExpired, ErrTokenMalformed}

// Rejected reports whether err refuses the caller's credentials, as opposed
// to an internal failure.
func Rejected(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}
