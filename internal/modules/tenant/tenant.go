// Package tenant resolves the shop a request acts for from its trust context.
package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-chi/chi/v5/middleware"
)

// ErrMissing is returned when a request carries no usable tenant context.
var ErrMissing = errors.New("missing tenant context")

type ctxKey struct{}

// Resolver derives the tenant of a request. With a Secret it trusts only the
// named claim of an HS256 bearer token; otherwise it trusts Header. Demo, when
// set, is used for requests that carry neither.
type Resolver struct {
	Header string
	Demo   string
	Secret []byte
	Claim  string
}

// Resolve returns the tenant of r. The request body is never consulted.
func (res Resolver) Resolve(r *http.Request) (string, error) {
	if len(res.Secret) > 0 {
		return res.fromToken(r)
	}
	header := res.Header
	if header == "" {
		header = "X-Shop-Id"
	}
	if id := strings.TrimSpace(r.Header.Get(header)); id != "" {
		return id, nil
	}
	return res.fallback()
}

func (res Resolver) fromToken(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return res.fallback()
	}
	raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if raw == auth {
		return "", fmt.Errorf("%w: authorization is not a bearer token", ErrMissing)
	}
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return res.Secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: invalid token", ErrMissing)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: invalid claims", ErrMissing)
	}
	claim := res.Claim
	if claim == "" {
		claim = "shopId"
	}
	id, _ := claims[claim].(string)
	if id = strings.TrimSpace(id); id == "" {
		return "", fmt.Errorf("%w: token has no %s claim", ErrMissing, claim)
	}
	return id, nil
}

func (res Resolver) fallback() (string, error) {
	if res.Demo != "" {
		return res.Demo, nil
	}
	return "", ErrMissing
}

// Middleware stores the resolved tenant in the request context and answers
// 401 when there is none.
func (res Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := res.Resolve(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":      "unauthorized",
				"message":    err.Error(),
				"request_id": middleware.GetReqID(r.Context()),
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), id)))
	})
}

// WithTenant returns a copy of ctx carrying id.
func WithTenant(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the tenant stored by Middleware, or "".
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
