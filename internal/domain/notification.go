package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NotificationType is the category of a storefront notification.
type NotificationType string

const (
	TypeOrderPlaced        NotificationType = "order_placed"
	TypeOrderStatus        NotificationType = "order_status"
	TypeOrderTracking      NotificationType = "order_tracking"
	TypeWholesaleSubmitted NotificationType = "wholesale_submitted"
	TypeWholesaleApproved  NotificationType = "wholesale_approved"
	TypeWholesaleRejected  NotificationType = "wholesale_rejected"
	TypeWholesaleUpdate    NotificationType = "wholesale_update"
	TypeGeneric            NotificationType = "generic"
)

// Valid reports whether t is one of the known categories.
func (t NotificationType) Valid() bool {
	switch t {
	case TypeOrderPlaced, TypeOrderStatus, TypeOrderTracking,
		TypeWholesaleSubmitted, TypeWholesaleApproved, TypeWholesaleRejected,
		TypeWholesaleUpdate, TypeGeneric:
		return true
	}
	return false
}

// ErrNotFound is returned when a record or key does not exist.
var ErrNotFound = errors.New("not found")

// AnonymousUser is the storage bucket used when no user id can be resolved.
const AnonymousUser = "anonymous"

// Record is a single notification as kept in the local log.
// ID is the dedup key and is stable across delivery channels.
type Record struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Meta      map[string]any   `json:"meta,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	Read      bool             `json:"read"`
}

// RecordID builds the channel-independent id "<event>-<entity>[-<qualifier>...]".
// Without an entity id a random id is returned, which disables cross-channel dedup.
func RecordID(event, entityID string, qualifiers ...string) string {
	if entityID == "" {
		return event + "-" + uuid.NewString()
	}
	parts := append([]string{event, entityID}, qualifiers...)
	for i, p := range parts {
		parts[i] = strings.ReplaceAll(strings.TrimSpace(p), " ", "_")
	}
	return strings.Join(parts, "-")
}

// NormalizeStatus lowercases and trims an order status for comparison.
func NormalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// OrderSnapshot maps order id to its last known normalized status.
type OrderSnapshot map[string]string

// StatusChange is a single entry of a snapshot diff.
type StatusChange struct {
	OrderID string
	From    string
	To      string
}

// Diff returns the orders whose status differs between prev and s.
// Orders unknown to prev are baseline and produce no change.
func (s OrderSnapshot) Diff(prev OrderSnapshot) []StatusChange {
	var changes []StatusChange
	for id, to := range s {
		from, ok := prev[id]
		if !ok || from == to {
			continue
		}
		changes = append(changes, StatusChange{OrderID: id, From: from, To: to})
	}
	return changes
}

// ConnectionState is the lifecycle state of the notification stream.
type ConnectionState string

const (
	StateIdle       ConnectionState = "idle"
	StateConnecting ConnectionState = "connecting"
	StateOpen       ConnectionState = "open"
	StateError      ConnectionState = "error"
	StateClosed     ConnectionState = "closed"
)

// Permission is the push notification permission as reported by the platform.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)
