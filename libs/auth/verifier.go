package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/HadjievK/BoKe/libs/httpx"
)

// Verifier checks provider tokens. RS256 tokens with a kid are verified
// against the JWKS when one is configured; everything else must be HS256
// signed with the shared secret.
type Verifier struct {
	secret string
	jwks   *JWKSClient
	now    func() time.Time
}

func NewVerifier(secret string, jwks *JWKSClient) *Verifier {
	return &Verifier{secret: secret, jwks: jwks, now: time.Now}
}

// Enabled reports whether any key material is configured.
func (v *Verifier) Enabled() bool {
	return v != nil && (v.secret != "" || v.jwks != nil)
}

func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	now := v.now()
	if v.jwks != nil {
		header, err := ParseHeader(token)
		if err != nil {
			return nil, err
		}
		if header.Alg == "RS256" && header.Kid != "" {
			pub, err := v.jwks.Get(ctx, header.Kid)
			if err != nil {
				return nil, ErrInvalidToken
			}
			return VerifyRS256(token, pub, now)
		}
	}
	if v.secret == "" {
		return nil, ErrInvalidToken
	}
	return ParseAndVerifyHS256(token, v.secret, now)
}

// RequireProvider verifies the bearer token on every path for which public
// returns false and replaces providerHeader with the token's provider id.
// Clients cannot choose their tenant by sending the header themselves.
func RequireProvider(v *Verifier, providerHeader string, public func(path string) bool) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public != nil && public(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			token = strings.TrimSpace(token)
			if !ok || token == "" {
				httpx.WriteError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
				return
			}
			claims, err := v.Verify(r.Context(), token)
			if err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			r.Header.Set(providerHeader, claims.ProviderID)
			next.ServeHTTP(w, r)
		})
	}
}
