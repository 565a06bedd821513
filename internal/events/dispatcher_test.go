package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_PublishRunsEveryHandler(t *testing.T) {
	d := NewInMemoryDispatcher()

	var seen []string
	d.Subscribe(func(_ context.Context, e Event) error {
		seen = append(seen, "first:"+e.SessionID)
		return errors.New("audit down")
	}, EventSessionEnded)
	d.Subscribe(func(_ context.Context, e Event) error {
		seen = append(seen, "second:"+e.SessionID)
		return nil
	}, EventSessionEnded)
	d.Subscribe(func(_ context.Context, e Event) error {
		seen = append(seen, "started")
		return nil
	}, EventSessionStarted)

	err := d.Publish(context.Background(), NewEvent(EventSessionEnded, "sid-1", "u-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit down")
	assert.Equal(t, []string{"first:sid-1", "second:sid-1"}, seen)
}

func TestDispatcher_SubscribeDefaultsToEverySessionEvent(t *testing.T) {
	d := NewInMemoryDispatcher()

	var seen []EventType
	unsubscribe := d.Subscribe(func(_ context.Context, e Event) error {
		seen = append(seen, e.Type)
		return nil
	})
	for _, et := range AllSessionEvents {
		require.NoError(t, d.Publish(context.Background(), NewEvent(et, "sid", "u")))
	}
	assert.Equal(t, AllSessionEvents, seen)

	unsubscribe()
	unsubscribe()
	require.NoError(t, d.Publish(context.Background(), NewEvent(EventSessionStarted, "sid", "u")))
	assert.Len(t, seen, len(AllSessionEvents))
}

func TestDispatcher_PanickingHandlerBecomesError(t *testing.T) {
	d := NewInMemoryDispatcher()

	var after bool
	d.Subscribe(func(context.Context, Event) error { panic("boom") }, EventSessionErrored)
	d.Subscribe(func(context.Context, Event) error { after = true; return nil }, EventSessionErrored)

	err := d.Publish(context.Background(), NewEvent(EventSessionErrored, "sid", "u"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session_errored handler panicked: boom")
	assert.True(t, after)
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventSessionStarted, "sid", "user")
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, EventSessionStarted, e.Type)
	assert.False(t, e.Timestamp.IsZero())
}
