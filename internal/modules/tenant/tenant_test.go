package tenant

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
)

var secret = []byte("test-secret")

func signed(t *testing.T, claims jwt.MapClaims, key []byte) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestResolveHeader(t *testing.T) {
	res := Resolver{Header: "X-Shop-Id"}
	r := httptest.NewRequest(http.MethodGet, "/products", nil)
	r.Header.Set("X-Shop-Id", " SHOP9 ")
	id, err := res.Resolve(r)
	if err != nil || id != "SHOP9" {
		t.Fatalf("got %q %v", id, err)
	}
}

func TestResolveMissingWithoutDemo(t *testing.T) {
	res := Resolver{}
	r := httptest.NewRequest(http.MethodGet, "/products", nil)
	if _, err := res.Resolve(r); !errors.Is(err, ErrMissing) {
		t.Fatalf("expected ErrMissing, got %v", err)
	}
}

func TestResolveDemoFallback(t *testing.T) {
	res := Resolver{Demo: "SHOP1"}
	r := httptest.NewRequest(http.MethodGet, "/products", nil)
	id, err := res.Resolve(r)
	if err != nil || id != "SHOP1" {
		t.Fatalf("got %q %v", id, err)
	}
}

func TestResolveToken(t *testing.T) {
	res := Resolver{Secret: secret, Claim: "shopId"}
	r := httptest.NewRequest(http.MethodGet, "/products", nil)
	r.Header.Set("Authorization", "Bearer "+signed(t, jwt.MapClaims{"shopId": "SHOP7"}, secret))
	// the header is not trusted in token mode
	r.Header.Set("X-Shop-Id", "SHOP-EVIL")
	id, err := res.Resolve(r)
	if err != nil || id != "SHOP7" {
		t.Fatalf("got %q %v", id, err)
	}
}

func TestResolveTokenRejects(t *testing.T) {
	res := Resolver{Secret: secret, Claim: "shopId"}
	cases := map[string]string{
		"wrong key":     "Bearer " + signed(t, jwt.MapClaims{"shopId": "S"}, []byte("other")),
		"missing claim": "Bearer " + signed(t, jwt.MapClaims{"sub": "u1"}, secret),
		"expired":       "Bearer " + signed(t, jwt.MapClaims{"shopId": "S", "exp": time.Now().Add(-time.Hour).Unix()}, secret),
		"not bearer":    "Basic dXNlcjpwYXNz",
	}
	for name, header := range cases {
		r := httptest.NewRequest(http.MethodGet, "/products", nil)
		r.Header.Set("Authorization", header)
		if _, err := res.Resolve(r); !errors.Is(err, ErrMissing) {
			t.Fatalf("%s: expected ErrMissing, got %v", name, err)
		}
	}
}

func TestMiddleware(t *testing.T) {
	res := Resolver{Header: "X-Shop-Id"}
	var seen string
	h := res.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Shop-Id", "SHOP2")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK || seen != "SHOP2" {
		t.Fatalf("expected pass-through with SHOP2, got %d %q", w.Code, seen)
	}
}
