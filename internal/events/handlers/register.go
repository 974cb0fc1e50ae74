package handlers

import (
	"bytes"
	"encoding/json"

	"vn.io.arda/storefront-notifier/internal/domain"
	"vn.io.arda/storefront-notifier/internal/events/registry"
)

// Register is a convenience alias so each domain file calls Register(...)
// instead of registry.Register(...), keeping imports minimal.
func Register(event string, h registry.EventHandler) {
	registry.Register(event, h)
}

// fields is a decoded event payload.
type fields map[string]any

// parsePayload decodes payload with numbers preserved. An empty payload is an empty object.
func parsePayload(payload json.RawMessage) (fields, bool) {
	f := fields{}
	if len(bytes.TrimSpace(payload)) == 0 || string(bytes.TrimSpace(payload)) == "null" {
		return f, true
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&f); err != nil {
		return nil, false
	}
	return f, true
}

// str returns the first non-empty scalar among keys.
func (f fields) str(keys ...string) string {
	for _, k := range keys {
		if v := domain.Scalar(f[k]); v != "" {
			return v
		}
	}
	return ""
}

// meta copies the payload into record metadata with the normalized keys added.
func (f fields) meta(event string, extra map[string]any) map[string]any {
	m := make(map[string]any, len(f)+len(extra)+1)
	for k, v := range f {
		m[k] = v
	}
	for k, v := range extra {
		if v != "" && v != nil {
			m[k] = v
		}
	}
	m["event"] = event
	return m
}

// record assembles a Record, honouring an explicit notification id and message in the payload.
func (f fields) record(event string, typ domain.NotificationType, id, title, body string, meta map[string]any) *domain.Record {
	if explicit := f.str("notification_id", "notificationId"); explicit != "" {
		id = explicit
	}
	if msg := f.str("message"); msg != "" {
		body = msg
	}
	return &domain.Record{
		ID:      id,
		Type:    typ,
		Title:   title,
		Message: body,
		Meta:    meta,
	}
}
