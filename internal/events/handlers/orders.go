package handlers

import (
	"encoding/json"

	"vn.io.arda/storefront-notifier/internal/domain"
	"vn.io.arda/storefront-notifier/internal/messages"
)

// Event names pushed by the storefront backend for orders.
const (
	EventOrderCreated       = "order_created"
	EventOrderStatusUpdated = "order_status_updated"
	EventOrderTrackingAdded = "order_tracking_added"
)

func init() {
	Register(EventOrderCreated, handleOrderCreated)
	Register(EventOrderStatusUpdated, handleOrderStatusUpdated)
	Register(EventOrderTrackingAdded, handleOrderTrackingAdded)
}

func orderID(f fields) string {
	return f.str("order_id", "orderId", "id")
}

func handleOrderCreated(event string, payload json.RawMessage) *domain.Record {
	f, ok := parsePayload(payload)
	if !ok {
		return nil
	}
	id := orderID(f)
	title, body := messages.OrderCreated(id)
	return f.record(event, domain.TypeOrderPlaced,
		domain.RecordID(event, id),
		title, body,
		f.meta(event, map[string]any{"order_id": id}),
	)
}

func handleOrderStatusUpdated(event string, payload json.RawMessage) *domain.Record {
	f, ok := parsePayload(payload)
	if !ok {
		return nil
	}
	id := orderID(f)
	to := domain.NormalizeStatus(f.str("status", "order_status", "new_status"))
	from := domain.NormalizeStatus(f.str("old_status", "previous_status", "from"))
	if id == "" || to == "" {
		return nil
	}
	title, body := messages.OrderStatusUpdated(id, to)
	return f.record(event, domain.TypeOrderStatus,
		OrderStatusRecordID(id, from, to),
		title, body,
		f.meta(event, map[string]any{"order_id": id, "from": from, "to": to}),
	)
}

func handleOrderTrackingAdded(event string, payload json.RawMessage) *domain.Record {
	f, ok := parsePayload(payload)
	if !ok {
		return nil
	}
	id := orderID(f)
	tracking := f.str("tracking_number", "trackingNumber")
	title, body := messages.OrderTrackingAdded(id, tracking)
	var qualifiers []string
	if tracking != "" {
		qualifiers = append(qualifiers, tracking)
	}
	return f.record(event, domain.TypeOrderTracking,
		domain.RecordID(event, id, qualifiers...),
		title, body,
		f.meta(event, map[string]any{"order_id": id, "tracking_number": tracking, "carrier": f.str("carrier")}),
	)
}

// OrderStatusRecordID is the id shared by the stream and polling channels for a
// transition of orderID from one status to another, so both deliveries collapse
// into one record. from may be empty when the sender did not report it.
func OrderStatusRecordID(orderID, from, to string) string {
	from, to = domain.NormalizeStatus(from), domain.NormalizeStatus(to)
	if from == "" {
		return domain.RecordID(EventOrderStatusUpdated, orderID, to)
	}
	return domain.RecordID(EventOrderStatusUpdated, orderID, from, to)
}

// OrderStatusChanged builds the record for a transition observed by snapshot diffing.
func OrderStatusChanged(c domain.StatusChange) domain.Record {
	title, body := messages.OrderStatusChanged(c.OrderID, c.From, c.To)
	return domain.Record{
		ID:      OrderStatusRecordID(c.OrderID, c.From, c.To),
		Type:    domain.TypeOrderStatus,
		Title:   title,
		Message: body,
		Meta: map[string]any{
			"event":    EventOrderStatusUpdated,
			"order_id": c.OrderID,
			"from":     c.From,
			"to":       c.To,
			"source":   "polling",
		},
	}
}
