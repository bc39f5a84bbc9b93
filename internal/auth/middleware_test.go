package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/zeitlabs/payments-hyperpay/internal/auth"
	"github.com/zeitlabs/payments-hyperpay/internal/common"
)

var secret = []byte("test-secret")

func signedToken(t *testing.T, subject, issuer string, expiry time.Time) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Subject(subject).
		Issuer(issuer).
		IssuedAt(time.Now()).
		Expiration(expiry).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, secret))
	require.NoError(t, err)
	return string(signed)
}

func protected(t *testing.T) (http.Handler, *string) {
	t.Helper()
	var gotUser string
	v := &auth.Verifier{Secret: secret, Issuer: "shop", Logger: zerolog.Nop()}
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = common.UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	return h, &gotUser
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	h, gotUser := protected(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "user-1", "shop", time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "user-1", *gotUser)
}

func TestMiddlewareRejects(t *testing.T) {
	h, _ := protected(t)

	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"garbage token":  "Bearer not-a-jwt",
		"expired":        "Bearer " + signedToken(t, "user-1", "shop", time.Now().Add(-time.Hour)),
		"wrong issuer":   "Bearer " + signedToken(t, "user-1", "other", time.Now().Add(time.Hour)),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}
