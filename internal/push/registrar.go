// Package push registers this device for push messages and turns foreground
// push payloads into notification records.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"vn.io.arda/storefront-notifier/internal/backend"
	"vn.io.arda/storefront-notifier/internal/domain"
	"vn.io.arda/storefront-notifier/internal/events/registry"
	"vn.io.arda/storefront-notifier/internal/tokenstore"

	_ "vn.io.arda/storefront-notifier/internal/events/handlers"
)

// Result is the outcome of Init.
type Result string

const (
	ResultNone        Result = ""
	ResultUnavailable Result = "unavailable"
	ResultPending     Result = "pending"
	ResultRegistered  Result = "registered"
	ResultDenied      Result = "denied"
)

// ErrUnsupported is returned by providers on platforms without push messaging.
var ErrUnsupported = errors.New("push messaging not supported")

// Messaging is the platform push provider.
type Messaging interface {
	Supported() bool
	Permission(ctx context.Context) (domain.Permission, error)
	RequestPermission(ctx context.Context) (domain.Permission, error)
	Token(ctx context.Context) (string, error)
	DeleteToken(ctx context.Context) error
}

// Backend registers push tokens with the storefront.
type Backend interface {
	SubscribePush(ctx context.Context, sub backend.Subscription) error
	UnsubscribePush(ctx context.Context, sub backend.Subscription) error
}

// Registrar drives the permission and token lifecycle for one session.
type Registrar struct {
	messaging Messaging
	backend   Backend
	tokens    *tokenstore.Store
	sink      domain.Sink
	platform  string

	mu     sync.Mutex
	denied bool
	result Result
}

// NewRegistrar creates a Registrar. platform is sent with the subscription (e.g. "web").
func NewRegistrar(m Messaging, b Backend, tokens *tokenstore.Store, sink domain.Sink, platform string) *Registrar {
	if platform == "" {
		platform = "web"
	}
	return &Registrar{messaging: m, backend: b, tokens: tokens, sink: sink, platform: platform}
}

// Result returns the outcome of the last Init.
func (r *Registrar) Result() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

func (r *Registrar) set(res Result) Result {
	r.result = res
	return res
}

// Init requests permission when needed and registers the push token.
// An unsupported platform is not an error. Denial is final for the registrar's lifetime.
func (r *Registrar) Init(ctx context.Context) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.messaging == nil || !r.messaging.Supported() {
		log.Debug().Msg("push messaging unavailable")
		return r.set(ResultUnavailable), nil
	}
	if r.denied {
		return r.set(ResultDenied), nil
	}

	perm, err := r.messaging.Permission(ctx)
	if err != nil {
		return r.result, fmt.Errorf("read push permission: %w", err)
	}
	if perm == domain.PermissionDefault {
		if perm, err = r.messaging.RequestPermission(ctx); err != nil {
			return r.result, fmt.Errorf("request push permission: %w", err)
		}
	}

	switch perm {
	case domain.PermissionDenied:
		r.denied = true
		log.Info().Msg("push permission denied")
		return r.set(ResultDenied), nil
	case domain.PermissionGranted:
	default:
		return r.set(ResultPending), nil
	}

	token, err := r.messaging.Token(ctx)
	if err != nil {
		return r.result, fmt.Errorf("get push token: %w", err)
	}
	if token == "" {
		return r.result, fmt.Errorf("get push token: %w", tokenstore.ErrNoToken)
	}
	if err := r.tokens.SavePushToken(ctx, token); err != nil {
		return r.result, err
	}

	deviceID, err := r.tokens.DeviceID(ctx)
	if err != nil {
		return r.result, err
	}
	sub := backend.Subscription{Token: token, DeviceID: deviceID, Platform: r.platform}
	if err := r.backend.SubscribePush(ctx, sub); err != nil {
		return r.set(ResultPending), fmt.Errorf("register push token: %w", err)
	}

	log.Info().Str("device_id", deviceID).Str("platform", r.platform).Msg("push token registered")
	return r.set(ResultRegistered), nil
}

// DeleteToken unregisters the device and clears the provider and local tokens.
// A backend failure is logged; local state is cleared regardless.
func (r *Registrar) DeleteToken(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, err := r.tokens.PushToken(ctx)
	if err != nil && !errors.Is(err, tokenstore.ErrNoToken) {
		return err
	}
	if token != "" {
		deviceID, _ := r.tokens.DeviceID(ctx)
		if err := r.backend.UnsubscribePush(ctx, backend.Subscription{Token: token, DeviceID: deviceID, Platform: r.platform}); err != nil {
			log.Warn().Err(err).Msg("failed to unregister push token")
		}
	}

	if r.messaging != nil && r.messaging.Supported() {
		if err := r.messaging.DeleteToken(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to delete provider push token")
		}
	}
	if err := r.tokens.DeletePushToken(ctx); err != nil {
		return fmt.Errorf("clear push token: %w", err)
	}
	if r.result == ResultRegistered {
		r.result = ResultNone
	}
	return nil
}

// Message is a push payload received while the app is in the foreground.
type Message struct {
	Notification struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	} `json:"notification"`
	Data map[string]string `json:"data"`
}

// HandleForeground normalizes msg into a record and appends it to the store.
// Payloads naming a known event go through the event handlers; the rest become
// generic records. The click target is kept as meta.url.
func (r *Registrar) HandleForeground(ctx context.Context, msg Message) (domain.Record, bool, error) {
	rec := Normalize(msg)
	inserted, err := r.sink.Append(ctx, rec)
	if err != nil {
		return rec, false, fmt.Errorf("store push message: %w", err)
	}
	return rec, inserted, nil
}

// Normalize maps a push payload to a record.
func Normalize(msg Message) domain.Record {
	data := msg.Data
	if data == nil {
		data = map[string]string{}
	}

	var rec domain.Record
	if event := data["event"]; event != "" && registry.Known(event) {
		payload, _ := json.Marshal(data)
		if r, err := registry.Dispatch(event, payload); err == nil {
			rec = *r
		}
	}

	if rec.ID == "" {
		rec = domain.Record{
			ID:   data["notification_id"],
			Type: domain.NotificationType(data["type"]),
			Meta: make(map[string]any, len(data)),
		}
		for k, v := range data {
			rec.Meta[k] = v
		}
		if rec.ID == "" {
			rec.ID = domain.RecordID("push", data["order_id"], data["status"])
		}
		if !rec.Type.Valid() {
			rec.Type = domain.TypeGeneric
		}
		rec.Title = data["title"]
		rec.Message = data["body"]
	}

	if msg.Notification.Title != "" {
		rec.Title = msg.Notification.Title
	}
	if msg.Notification.Body != "" {
		rec.Message = msg.Notification.Body
	}
	if rec.Meta == nil {
		rec.Meta = map[string]any{}
	}
	if url := data["url"]; url != "" {
		rec.Meta["url"] = url
	}
	rec.Meta["source"] = "push"
	return rec
}
