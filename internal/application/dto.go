package application

import (
	"time"

	"vn.io.arda/storefront-notifier/internal/domain"
	"vn.io.arda/storefront-notifier/internal/push"
)

// Status is a point-in-time view of the session's delivery channels.
type Status struct {
	UserID       string                 `json:"user_id"`
	Connection   domain.ConnectionState `json:"connection"`
	Failures     int                    `json:"failures"`
	Polling      bool                   `json:"polling"`
	PollInterval time.Duration          `json:"poll_interval_ns"`
	Push         push.Result            `json:"push"`
	Unread       int                    `json:"unread"`
}

// ListFilter selects a page of the local notification log.
type ListFilter struct {
	Limit  int
	Offset int
	IsRead *bool
	Type   domain.NotificationType
}
