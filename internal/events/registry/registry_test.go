package registry_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vn.io.arda/storefront-notifier/internal/domain"
	"vn.io.arda/storefront-notifier/internal/events/registry"
)

func TestRegisterAndDispatch(t *testing.T) {
	called := false
	registry.Register("test_event", func(event string, _ json.RawMessage) *domain.Record {
		called = true
		return &domain.Record{ID: event + "-1", Title: "test"}
	})

	rec, err := registry.Dispatch("test_event", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "test", rec.Title)
	assert.True(t, registry.Known("test_event"))
}

func TestDispatch_UnknownEvent(t *testing.T) {
	_, err := registry.Dispatch("unknown_event_xyz", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, registry.ErrUnknownEvent)
}

func TestDispatch_HandlerRejects(t *testing.T) {
	registry.Register("rejecting_event", func(string, json.RawMessage) *domain.Record { return nil })

	_, err := registry.Dispatch("rejecting_event", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, registry.ErrMalformed)
}

func TestRegister_DuplicatePanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	registry.Register("dupe_event", func(string, json.RawMessage) *domain.Record { return nil })
	registry.Register("dupe_event", func(string, json.RawMessage) *domain.Record { return nil })
}

func TestDecode(t *testing.T) {
	env, err := registry.Decode([]byte(`{"event":"order_created","payload":{"order_id":1}}`), "")
	require.NoError(t, err)
	assert.Equal(t, "order_created", env.Event)
	assert.JSONEq(t, `{"order_id":1}`, string(env.Payload))

	env, err = registry.Decode([]byte(`{"order_id":1}`), "order_created")
	require.NoError(t, err)
	assert.Equal(t, "order_created", env.Event)
	assert.JSONEq(t, `{"order_id":1}`, string(env.Payload))

	_, err = registry.Decode([]byte(`{"order_id":1}`), "")
	assert.ErrorIs(t, err, registry.ErrMalformed)

	_, err = registry.Decode([]byte(`not json`), "x")
	assert.ErrorIs(t, err, registry.ErrMalformed)
}
