package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	testSecret = []byte("test-secret")
	testNow    = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
)

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return s
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}

func TestJWTAuthenticator_IgnoresOtherSchemes(t *testing.T) {
	a := NewJWTAuthenticator(JWTConfig{Secret: testSecret})

	for _, h := range []http.Header{
		{},
		{"Authorization": {"Basic abc"}},
		{"X-Api-Key": {"k"}},
	} {
		if _, err := a.Authenticate(context.Background(), h); !errors.Is(err, ErrMissingCredentials) {
			t.Errorf("Authenticate(%v) error = %v, want ErrMissingCredentials", h, err)
		}
	}
}

func TestJWTAuthenticator_Authenticate(t *testing.T) {
	a := newJWTAuthenticator(JWTConfig{Secret: testSecret, Issuer: "ops", Audience: "apicache"}, func() time.Time { return testNow })

	valid := jwt.MapClaims{
		"sub":   "alice",
		"iss":   "ops",
		"aud":   "apicache",
		"exp":   testNow.Add(time.Hour).Unix(),
		"roles": []string{"admin", "reader"},
	}

	id, err := a.Authenticate(context.Background(), bearer(sign(t, jwt.SigningMethodHS256, testSecret, valid)))
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if id.Method != MethodJWT || id.Principal != "alice" || !id.HasRole("admin") || !id.HasRole("reader") {
		t.Errorf("Identity = %+v", id)
	}
	if !id.ExpiresAt.Equal(testNow.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v", id.ExpiresAt)
	}
}

func TestJWTAuthenticator_Rejects(t *testing.T) {
	a := newJWTAuthenticator(JWTConfig{Secret: testSecret, Issuer: "ops"}, func() time.Time { return testNow })

	claims := func(overrides jwt.MapClaims) jwt.MapClaims {
		c := jwt.MapClaims{"sub": "alice", "iss": "ops", "exp": testNow.Add(time.Hour).Unix()}
		for k, v := range overrides {
			c[k] = v
		}
		return c
	}

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"expired", sign(t, jwt.SigningMethodHS256, testSecret, claims(jwt.MapClaims{"exp": testNow.Add(-time.Minute).Unix()})), ErrTokenExpired},
		{"wrong issuer", sign(t, jwt.SigningMethodHS256, testSecret, claims(jwt.MapClaims{"iss": "someone"})), ErrInvalidCredentials},
		{"wrong secret", sign(t, jwt.SigningMethodHS256, []byte("other"), claims(nil)), ErrInvalidCredentials},
		{"none algorithm", sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, claims(nil)), ErrInvalidCredentials},
		{"garbage", "not-a-token", ErrTokenMalformed},
		{"empty", "", ErrMissingCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := a.Authenticate(context.Background(), bearer(tt.token))
			if id != nil {
				t.Fatalf("Authenticate() = %+v, want rejection", id)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Authenticate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
