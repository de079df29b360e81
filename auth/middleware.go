package auth

import (
	"encoding/json"
	"errors"
	"net/http"
)

var errInternal = errors.New("auth: internal error")

// Require admits requests that authn accepts and, when role is non-empty,
// whose identity holds role. The identity is attached to the request context.
// A nil authn admits every request as Anonymous.
//
// Rejected credentials get 401 with a WWW-Authenticate challenge, a missing
// role gets 403, and internal failures get 500 without their cause.
func Require(authn Authenticator, role string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authn == nil {
			anon := Anonymous
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), &anon)))
			return
		}

		id, err := authn.Authenticate(r.Context(), r.Header)
		switch {
		case Rejected(err):
			w.Header().Set("WWW-Authenticate", `Bearer realm="apicache"`)
			deny(w, http.StatusUnauthorized, err)
			return
		case err != nil:
			deny(w, http.StatusInternalServerError, errInternal)
			return
		case role != "" && !id.HasRole(role):
			deny(w, http.StatusForbidden, ErrForbidden)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func deny(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
