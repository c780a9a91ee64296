package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestParseToken(t *testing.T) {
	secret := []byte("s3cret")
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))
	past := jwt.NewNumericDate(time.Now().Add(-time.Hour))

	sub, err := ParseToken(secret, sign(t, jwt.SigningMethodHS256, secret, jwt.RegisteredClaims{Subject: "bob", ExpiresAt: future}))
	require.NoError(t, err)
	assert.Equal(t, "bob", sub)

	cases := map[string]string{
		"expired":      sign(t, jwt.SigningMethodHS256, secret, jwt.RegisteredClaims{Subject: "bob", ExpiresAt: past}),
		"wrong secret": sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.RegisteredClaims{Subject: "bob"}),
		"wrong alg":    sign(t, jwt.SigningMethodHS512, secret, jwt.RegisteredClaims{Subject: "bob"}),
		"no subject":   sign(t, jwt.SigningMethodHS256, secret, jwt.RegisteredClaims{ExpiresAt: future}),
		"garbage":      "a.b.c",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(secret, tok)
			assert.Error(t, err)
		})
	}
}

func TestAuth_StoresSubject(t *testing.T) {
	secret := []byte("s3cret")
	var seen string
	h := Auth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+sign(t, jwt.SigningMethodHS256, secret, jwt.RegisteredClaims{Subject: "carol"}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "carol", seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}
