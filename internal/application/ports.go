package application

import (
	"context"

	"vn.io.arda/storefront-notifier/internal/domain"
)

// Backend is the subset of the storefront API the agent calls.
// The default implementation is backend.Client; tests use an in-memory fake.
type Backend interface {
	// Orders returns the user's current orders for status polling.
	Orders(ctx context.Context) ([]domain.Order, error)

	// MarkRead syncs a single read flag to the server.
	MarkRead(ctx context.Context, id string) error

	// MarkAllRead syncs a bulk read to the server.
	MarkAllRead(ctx context.Context) error

	// UnreadCount returns the server-side unread badge count.
	UnreadCount(ctx context.Context) (int64, error)
}

// SSEHub is the interface for broadcasting to local SSE clients.
// Implementation lives in transport/http/sse_hub.go.
type SSEHub interface {
	BroadcastList(records []domain.Record)
	BroadcastState(state domain.ConnectionState)
}
