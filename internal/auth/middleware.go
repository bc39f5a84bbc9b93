package auth

import (
	"net/http"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"

	"github.com/zeitlabs/payments-hyperpay/internal/common"
)

// Verifier authenticates bearer tokens signed with the shared HS256 secret.
type Verifier struct {
	Secret []byte
	Issuer string
	Logger zerolog.Logger
}

// Middleware rejects requests without a valid bearer token and stores the
// token subject on the request context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			common.JSONError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", nil)
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		opts := []jwt.ParseOption{
			jwt.WithKey(jwa.HS256, v.Secret),
			jwt.WithValidate(true),
		}
		if v.Issuer != "" {
			opts = append(opts, jwt.WithIssuer(v.Issuer))
		}
		token, err := jwt.Parse([]byte(raw), opts...)
		if err != nil {
			v.Logger.Debug().Err(err).Msg("token rejected")
			common.JSONError(w, http.StatusUnauthorized, "unauthorized", "invalid token", nil)
			return
		}

		ctx := common.WithUserID(r.Context(), token.Subject())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
