package mw

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// TokenFunc returns the token of the running session, or "" when signed out.
type TokenFunc func(ctx context.Context) string

// SessionAuth admits requests made on behalf of the agent's session user.
// The token comes from the Authorization header or, for EventSource clients
// that cannot set headers, the token query parameter.
// A JWT must carry sub == userID and be unexpired; an opaque token must equal
// the session token. The resolved user id is stored in echo.Context.
func SessionAuth(userID string, sessionToken TokenFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr := bearer(c)
			if tokenStr == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			if claims, ok := parseClaims(tokenStr); ok {
				sub, _ := claims.GetSubject()
				if sub == "" || sub != userID {
					log.Warn().Str("sub", sub).Msg("token subject does not match session user")
					return echo.NewHTTPError(http.StatusForbidden, "token belongs to another user")
				}
				if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && !time.Now().Before(exp.Time) {
					return echo.NewHTTPError(http.StatusUnauthorized, "token expired")
				}
			} else {
				expected := sessionToken(c.Request().Context())
				if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(tokenStr)) != 1 {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
				}
			}

			c.Set("userID", userID)
			return next(c)
		}
	}
}

func bearer(c echo.Context) string {
	if h := c.Request().Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return c.QueryParam("token")
}

// parseClaims decodes JWT claims without verifying the signature; the
// storefront backend verifies it on every call the agent makes.
func parseClaims(tokenStr string) (jwt.MapClaims, bool) {
	unverified, _, err := jwt.NewParser().ParseUnverified(tokenStr, jwt.MapClaims{})
	if err != nil {
		return nil, false
	}
	claims, ok := unverified.Claims.(jwt.MapClaims)
	return claims, ok
}
