package mw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func run(t *testing.T, req *http.Request) (int, string) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	h := SessionAuth("u1", func(context.Context) string { return "opaque" })(func(c echo.Context) error {
		seen, _ = c.Get("userID").(string)
		return c.NoContent(http.StatusNoContent)
	})
	if err := h(c); err != nil {
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		return he.Code, seen
	}
	return rec.Code, seen
}

func TestSessionAuth(t *testing.T) {
	future := time.Now().Add(time.Hour).Unix()
	past := time.Now().Add(-time.Hour).Unix()

	cases := []struct {
		name   string
		header string
		query  string
		code   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"opaque header", "Bearer opaque", "", http.StatusNoContent},
		{"opaque query", "", "opaque", http.StatusNoContent},
		{"wrong opaque", "Bearer nope", "", http.StatusUnauthorized},
		{"jwt same user", "Bearer " + signed(t, jwt.MapClaims{"sub": "u1", "exp": future}), "", http.StatusNoContent},
		{"jwt other user", "Bearer " + signed(t, jwt.MapClaims{"sub": "u2", "exp": future}), "", http.StatusForbidden},
		{"jwt expired", "Bearer " + signed(t, jwt.MapClaims{"sub": "u1", "exp": past}), "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target := "/notifications"
			if tc.query != "" {
				target += "?token=" + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			code, seen := run(t, req)
			assert.Equal(t, tc.code, code)
			if code == http.StatusNoContent {
				assert.Equal(t, "u1", seen)
			}
		})
	}
}

func TestSessionAuth_SignedOutRejectsOpaque(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	req.Header.Set("Authorization", "Bearer ")
	c := e.NewContext(req, httptest.NewRecorder())

	h := SessionAuth("u1", func(context.Context) string { return "" })(func(c echo.Context) error { return nil })
	err := h(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, err.(*echo.HTTPError).Code)
}
