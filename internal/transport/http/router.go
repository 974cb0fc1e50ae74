package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"vn.io.arda/storefront-notifier/internal/transport/mw"
)

// NewRouter sets up all Echo routes and middleware.
func NewRouter(h *Handler, userID string, sessionToken mw.TokenFunc, allowOrigins []string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	if len(allowOrigins) == 0 {
		allowOrigins = []string{"*"}
	}

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowOrigins,
		AllowHeaders: []string{"Authorization", "Content-Type"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
	}))

	// Health (no auth required)
	e.GET("/health", h.Health)

	// Session API
	v1 := e.Group("")
	v1.Use(mw.SessionAuth(userID, sessionToken))

	v1.GET("/status", h.Status)
	v1.POST("/session", h.SignIn)
	v1.DELETE("/session", h.SignOut)

	// REST endpoints
	v1.GET("/notifications", h.ListNotifications)
	v1.GET("/notifications/unread-count", h.GetUnreadCount)
	v1.PATCH("/notifications/:id/read", h.MarkRead)
	v1.PUT("/notifications/:id/read", h.MarkRead)
	v1.POST("/notifications/read-all", h.MarkAllRead)
	v1.PUT("/notifications/read-all", h.MarkAllRead)

	// SSE endpoint
	v1.GET("/notifications/stream", h.Stream)

	// Push registration
	v1.POST("/push/init", h.InitPush)
	v1.DELETE("/push/token", h.DeletePushToken)
	v1.POST("/push/foreground", h.PushForeground)

	return e
}
