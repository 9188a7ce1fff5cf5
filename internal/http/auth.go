package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"cofrinho/internal/core"
	applog "cofrinho/internal/log"
)

// AuthConfig verifies the HMAC-signed bearer tokens issued by the identity
// provider.
type AuthConfig struct {
	Secret []byte
	// Issuer, when set, must match the iss claim.
	Issuer string
}

type identityClaims struct {
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

var errMissingToken = errors.New("missing bearer token")

// ParseToken validates raw and returns the identity it carries.
func (a AuthConfig) ParseToken(raw string) (core.User, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if a.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.Issuer))
	}

	var claims identityClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.Secret, nil
	}, opts...)
	if err != nil {
		return core.User{}, err
	}
	if claims.Subject == "" {
		return core.User{}, errors.New("token has no subject")
	}
	return core.User{
		UID:         claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		PhotoURL:    claims.Picture,
	}, nil
}

func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errMissingToken
	}
	return strings.TrimSpace(token), nil
}

// authenticate rejects requests without a valid token and stores the caller
// in the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r)
		if err == nil {
			var u core.User
			if u, err = s.cfg.Auth.ParseToken(raw); err == nil {
				ctx := context.WithValue(r.Context(), userKey, u)
				ctx = applog.WithContext(ctx, applog.FromContext(ctx).With(applog.FieldUserID, u.UID))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		applog.FromContext(r.Context()).WithComponent(applog.ComponentAuth).WarnContext(r.Context(), "Rejected unauthenticated request",
			applog.FieldError, err.Error(),
			applog.FieldErrorType, applog.ErrorTypeAuth)
		w.Header().Set("WWW-Authenticate", `Bearer realm="cofrinho"`)
		respondError(w, http.StatusUnauthorized, "authentication required")
	})
}

// userFrom returns the authenticated caller.
func userFrom(ctx context.Context) (core.User, bool) {
	u, ok := ctx.Value(userKey).(core.User)
	return u, ok
}
