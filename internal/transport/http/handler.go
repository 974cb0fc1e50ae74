package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"vn.io.arda/storefront-notifier/internal/application"
	"vn.io.arda/storefront-notifier/internal/domain"
	"vn.io.arda/storefront-notifier/internal/push"
)

// Handler holds all HTTP handler methods.
type Handler struct {
	agent *application.Agent
	hub   *Hub
}

// NewHandler creates a new Handler.
func NewHandler(agent *application.Agent, hub *Hub) *Handler {
	return &Handler{agent: agent, hub: hub}
}

// --- REST Handlers ---

// ListNotifications GET /notifications
func (h *Handler) ListNotifications(c echo.Context) error {
	filter := application.ListFilter{
		Limit:  parseIntQuery(c, "limit", 20),
		Offset: parseIntQuery(c, "offset", 0),
	}

	if t := c.QueryParam("type"); t != "" {
		filter.Type = domain.NotificationType(t)
	}
	if r := c.QueryParam("is_read"); r != "" {
		isRead := r == "true"
		filter.IsRead = &isRead
	}

	records := h.agent.List(filter)
	if records == nil {
		records = []domain.Record{}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data":   records,
		"limit":  filter.Limit,
		"offset": filter.Offset,
		"unread": h.agent.UnreadCount(),
	})
}

// GetUnreadCount GET /notifications/unread-count
// server_count is null when the backend cannot be reached.
func (h *Handler) GetUnreadCount(c echo.Context) error {
	resp := map[string]any{"count": h.agent.UnreadCount(), "server_count": nil}

	n, err := h.agent.ServerUnreadCount(c.Request().Context())
	if err != nil {
		log.Debug().Err(err).Msg("server unread count unavailable")
	} else {
		resp["server_count"] = n
	}
	return c.JSON(http.StatusOK, resp)
}

// MarkRead PATCH|PUT /notifications/:id/read
func (h *Handler) MarkRead(c echo.Context) error {
	id := c.Param("id")

	if err := h.agent.MarkRead(c.Request().Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.ErrInternalServerError
	}
	return c.NoContent(http.StatusNoContent)
}

// MarkAllRead POST|PUT /notifications/read-all
func (h *Handler) MarkAllRead(c echo.Context) error {
	count, err := h.agent.MarkAllRead(c.Request().Context())
	if err != nil {
		return echo.ErrInternalServerError
	}
	return c.JSON(http.StatusOK, map[string]int{"marked": count})
}

// Status GET /status
func (h *Handler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.agent.Status())
}

// --- Session Handlers ---

type signInRequest struct {
	Token string `json:"token"`
}

// SignIn POST /session
func (h *Handler) SignIn(c echo.Context) error {
	var req signInRequest
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}

	if err := h.agent.SignIn(c.Request().Context(), req.Token); err != nil {
		if errors.Is(err, application.ErrUserMismatch) {
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		}
		log.Error().Err(err).Msg("sign-in failed")
		return echo.ErrInternalServerError
	}
	return c.JSON(http.StatusOK, h.agent.Status())
}

// SignOut DELETE /session
func (h *Handler) SignOut(c echo.Context) error {
	if err := h.agent.SignOut(c.Request().Context()); err != nil {
		log.Error().Err(err).Msg("sign-out failed")
		return echo.ErrInternalServerError
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Push Handlers ---

// InitPush POST /push/init
func (h *Handler) InitPush(c echo.Context) error {
	result, err := h.agent.InitPush(c.Request().Context())
	if err != nil {
		log.Warn().Err(err).Msg("push init failed")
		return c.JSON(http.StatusBadGateway, map[string]any{"result": result, "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"result": result})
}

// DeletePushToken DELETE /push/token
func (h *Handler) DeletePushToken(c echo.Context) error {
	if err := h.agent.DeletePushToken(c.Request().Context()); err != nil {
		return echo.ErrInternalServerError
	}
	return c.NoContent(http.StatusNoContent)
}

// PushForeground POST /push/foreground
func (h *Handler) PushForeground(c echo.Context) error {
	var msg push.Message
	if err := c.Bind(&msg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid push message")
	}

	rec, inserted, err := h.agent.HandlePush(c.Request().Context(), msg)
	if err != nil {
		return echo.ErrInternalServerError
	}
	status := http.StatusOK
	if inserted {
		status = http.StatusCreated
	}
	return c.JSON(status, map[string]any{"id": rec.ID, "inserted": inserted})
}

// --- SSE Handler ---

// Stream GET /notifications/stream: local SSE feed of the notification list.
func (h *Handler) Stream(c echo.Context) error {
	// SSE headers
	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable Nginx buffering

	// Register client
	sendCh := make(chan []byte, 32)
	client := h.hub.Register(sendCh)
	defer h.hub.Unregister(client)

	// Send initial "connected" event followed by the current list and state
	st := h.agent.Status()
	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"ok\"}\n\n")
	_, _ = w.Write(buildSSEMessage("notifications", h.agent.Records()))
	_, _ = w.Write(buildSSEMessage("state", map[string]string{"state": string(st.Connection)}))
	w.Flush()

	log.Info().Str("user", st.UserID).Msg("SSE stream opened")

	ctx := c.Request().Context()
	for {
		select {
		case msg, ok := <-sendCh:
			if !ok {
				return nil
			}
			if _, err := w.Write(msg); err != nil {
				return nil
			}
			w.Flush()

		case <-ctx.Done():
			log.Info().Str("user", st.UserID).Msg("SSE stream closed by client")
			return nil
		}
	}
}

// --- Healthcheck ---

// Health GET /health
func (h *Handler) Health(c echo.Context) error {
	st := h.agent.Status()
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "ok",
		"connection":  st.Connection,
		"polling":     st.Polling,
		"sse_clients": h.hub.ConnectedCount(),
	})
}

// --- Helpers ---

func parseIntQuery(c echo.Context, key string, def int) int {
	v, err := strconv.Atoi(c.QueryParam(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

// buildSSEMessage formats v as an SSE frame of the given event type.
func buildSSEMessage(event string, v any) []byte {
	b, _ := json.Marshal(v)
	return []byte("event: " + event + "\ndata: " + string(b) + "\n\n")
}
