package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decorluxe-labs/commerce/core/pkg/identity"
)

func newAuthedServer(t *testing.T) (*JWTValidator, http.Handler, *string) {
	t.Helper()
	v, err := NewJWTValidator("test-secret")
	require.NoError(t, err)

	var seenBuyer string
	handler := NewMiddleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenBuyer, _ = identity.BuyerID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	return v, handler, &seenBuyer
}

func TestMiddleware_ValidToken(t *testing.T) {
	v, handler, seenBuyer := newAuthedServer(t)

	token, err := v.IssueToken("buyer-1", "asha@example.com", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/orders/1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "buyer-1", *seenBuyer)
}

func TestMiddleware_Rejections(t *testing.T) {
	v, handler, _ := newAuthedServer(t)

	expired, err := v.IssueToken("buyer-1", "", -time.Minute)
	require.NoError(t, err)

	foreign, err := NewJWTValidator("other-secret")
	require.NoError(t, err)
	forged, err := foreign.IssueToken("buyer-1", "", time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not.a.jwt"},
		{"expired token", "Bearer " + expired},
		{"wrong signing key", "Bearer " + forged},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/orders/1", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
		})
	}
}

func TestMiddleware_PublicPaths(t *testing.T) {
	_, handler, _ := newAuthedServer(t)

	for _, path := range []string{"/health", "/readiness"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestMiddleware_NilValidatorFailsClosed(t *testing.T) {
	handler := NewMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders/1", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
