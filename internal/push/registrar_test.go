package push

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vn.io.arda/storefront-notifier/internal/backend"
	"vn.io.arda/storefront-notifier/internal/domain"
	"vn.io.arda/storefront-notifier/internal/infrastructure/memory"
	"vn.io.arda/storefront-notifier/internal/notifystore"
	"vn.io.arda/storefront-notifier/internal/tokenstore"
)

type fakeMessaging struct {
	supported bool
	perm      domain.Permission
	onRequest domain.Permission
	token     string
	requests  int
	deleted   bool
}

func (f *fakeMessaging) Supported() bool { return f.supported }

func (f *fakeMessaging) Permission(context.Context) (domain.Permission, error) { return f.perm, nil }

func (f *fakeMessaging) RequestPermission(context.Context) (domain.Permission, error) {
	f.requests++
	f.perm = f.onRequest
	return f.perm, nil
}

func (f *fakeMessaging) Token(context.Context) (string, error) { return f.token, nil }

func (f *fakeMessaging) DeleteToken(context.Context) error {
	f.deleted = true
	return nil
}

type fakeBackend struct {
	mu           sync.Mutex
	subscribed   []backend.Subscription
	unsubscribed []backend.Subscription
	err          error
}

func (f *fakeBackend) SubscribePush(_ context.Context, sub backend.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, sub)
	return f.err
}

func (f *fakeBackend) UnsubscribePush(_ context.Context, sub backend.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, sub)
	return f.err
}

func newRegistrar(m Messaging, b Backend) (*Registrar, *tokenstore.Store, *notifystore.Store) {
	kv := memory.New()
	tokens := tokenstore.New(kv, "u1")
	store := notifystore.New(kv, "u1", notifystore.Options{})
	return NewRegistrar(m, b, tokens, store, "web"), tokens, store
}

func TestInit_UnsupportedIsUnavailable(t *testing.T) {
	r, _, _ := newRegistrar(Unsupported{}, &fakeBackend{})
	res, err := r.Init(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ResultUnavailable, res)
	assert.Equal(t, ResultUnavailable, r.Result())
}

func TestInit_GrantedRegisters(t *testing.T) {
	ctx := context.Background()
	m := &fakeMessaging{supported: true, perm: domain.PermissionDefault, onRequest: domain.PermissionGranted, token: "fcm-1"}
	b := &fakeBackend{}
	r, tokens, _ := newRegistrar(m, b)

	res, err := r.Init(ctx)
	require.NoError(t, err)
	assert.Equal(t, ResultRegistered, res)
	assert.Equal(t, 1, m.requests)

	stored, err := tokens.PushToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fcm-1", stored)

	deviceID, _ := tokens.DeviceID(ctx)
	require.Len(t, b.subscribed, 1)
	assert.Equal(t, backend.Subscription{Token: "fcm-1", DeviceID: deviceID, Platform: "web"}, b.subscribed[0])
}

func TestInit_DeniedIsTerminal(t *testing.T) {
	ctx := context.Background()
	m := &fakeMessaging{supported: true, perm: domain.PermissionDefault, onRequest: domain.PermissionDenied}
	r, _, _ := newRegistrar(m, &fakeBackend{})

	res, err := r.Init(ctx)
	require.NoError(t, err)
	assert.Equal(t, ResultDenied, res)

	// Even if the platform resets the permission, the registrar never prompts again.
	m.perm = domain.PermissionDefault
	m.onRequest = domain.PermissionGranted
	res, err = r.Init(ctx)
	require.NoError(t, err)
	assert.Equal(t, ResultDenied, res)
	assert.Equal(t, 1, m.requests)
}

func TestInit_DismissedPromptIsPending(t *testing.T) {
	m := &fakeMessaging{supported: true, perm: domain.PermissionDefault, onRequest: domain.PermissionDefault}
	r, _, _ := newRegistrar(m, &fakeBackend{})

	res, err := r.Init(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ResultPending, res)
}

func TestInit_BackendFailureIsPending(t *testing.T) {
	m := &fakeMessaging{supported: true, perm: domain.PermissionGranted, token: "fcm-1"}
	r, _, _ := newRegistrar(m, &fakeBackend{err: errors.New("503")})

	res, err := r.Init(context.Background())
	assert.Error(t, err)
	assert.Equal(t, ResultPending, res)
	assert.Zero(t, m.requests)
}

func TestDeleteToken(t *testing.T) {
	ctx := context.Background()
	m := &fakeMessaging{supported: true, perm: domain.PermissionGranted, token: "fcm-1"}
	b := &fakeBackend{}
	r, tokens, _ := newRegistrar(m, b)
	_, err := r.Init(ctx)
	require.NoError(t, err)

	// Backend failure does not keep the local token around.
	b.err = errors.New("offline")
	require.NoError(t, r.DeleteToken(ctx))

	require.Len(t, b.unsubscribed, 1)
	assert.Equal(t, "fcm-1", b.unsubscribed[0].Token)
	assert.True(t, m.deleted)
	_, err = tokens.PushToken(ctx)
	assert.ErrorIs(t, err, tokenstore.ErrNoToken)
	assert.Equal(t, ResultNone, r.Result())
}

func TestHandleForeground_KnownEvent(t *testing.T) {
	ctx := context.Background()
	r, _, store := newRegistrar(Unsupported{}, &fakeBackend{})

	msg := Message{Data: map[string]string{
		"event":    "order_status_updated",
		"order_id": "42",
		"status":   "Shipped",
		"url":      "/orders/42",
	}}
	msg.Notification.Title = "Your order shipped"

	rec, inserted, err := r.HandleForeground(ctx, msg)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, "order_status_updated-42-shipped", rec.ID)
	assert.Equal(t, domain.TypeOrderStatus, rec.Type)
	assert.Equal(t, "Your order shipped", rec.Title)
	assert.Equal(t, "/orders/42", rec.Meta["url"])
	assert.Equal(t, "push", rec.Meta["source"])

	// The same transition arriving over push again is a duplicate.
	_, inserted, err = r.HandleForeground(ctx, msg)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Len(t, store.List(), 1)
}

func TestNormalize_Generic(t *testing.T) {
	msg := Message{Data: map[string]string{"notification_id": "n-7", "type": "bogus", "url": "/promo"}}
	msg.Notification.Title = "Sale"
	msg.Notification.Body = "Everything 20% off"

	rec := Normalize(msg)
	assert.Equal(t, "n-7", rec.ID)
	assert.Equal(t, domain.TypeGeneric, rec.Type)
	assert.Equal(t, "Sale", rec.Title)
	assert.Equal(t, "Everything 20% off", rec.Message)
	assert.Equal(t, "/promo", rec.Meta["url"])
}

func TestNormalize_GenericWithoutIDGetsRandomID(t *testing.T) {
	a := Normalize(Message{})
	b := Normalize(Message{})
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestStatic(t *testing.T) {
	ctx := context.Background()
	s := NewStatic("bogus", "tok")
	p, err := s.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionDefault, p)

	s = NewStatic(domain.PermissionGranted, "tok")
	tok, _ := s.Token(ctx)
	assert.Equal(t, "tok", tok)
	require.NoError(t, s.DeleteToken(ctx))
	tok, _ = s.Token(ctx)
	assert.Empty(t, tok)
}
