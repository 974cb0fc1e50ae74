package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// KV defines the port for local persistent state (notification log, order
// snapshot, tokens, device id). Values are JSON-serializable.
// Implementations live in infrastructure/{memory,redis,postgres}.
type KV interface {
	// Get decodes the value stored under key into dest.
	// Returns an error wrapping ErrNotFound when the key is absent.
	Get(ctx context.Context, key string, dest any) error

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value any) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// UpdateFunc computes the new value of a key. load decodes the current value
// (an error wrapping ErrNotFound when absent). Returning an error aborts the
// write and is passed through by Update. It may be called more than once.
type UpdateFunc func(load func(dest any) error) (any, error)

// Updater is implemented by KV backends that can read-modify-write a key
// atomically with respect to other writers sharing the same storage.
type Updater interface {
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// Sink accepts records produced by a delivery channel.
// The notification store is the only implementation; producers never touch the log directly.
type Sink interface {
	Append(ctx context.Context, rec Record) (bool, error)
}

// Order is one entry of the user's order list as returned by the backend.
// The backend is inconsistent about field names, so both spellings are kept.
type Order struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	Status      string `json:"status"`
	OrderStatus string `json:"order_status"`
}

// Key returns the order id, preferring id over order_id.
func (o Order) Key() string {
	if o.ID != "" {
		return o.ID
	}
	return o.OrderID
}

// State returns the normalized status, preferring status over order_status.
func (o Order) State() string {
	if o.Status != "" {
		return NormalizeStatus(o.Status)
	}
	return NormalizeStatus(o.OrderStatus)
}

// UnmarshalJSON accepts numeric or string ids and statuses.
func (o *Order) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	o.ID = Scalar(raw["id"])
	o.OrderID = Scalar(raw["order_id"])
	o.Status = Scalar(raw["status"])
	o.OrderStatus = Scalar(raw["order_status"])
	return nil
}

// Scalar renders a decoded JSON scalar as a string. Objects, arrays and null yield "".
func Scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool, int, int64:
		return fmt.Sprint(x)
	}
	return ""
}
