package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pnishada/service-desk/internal/domain"
)

func TestDispatcherPublishIsSynchronous(t *testing.T) {
	d := NewInMemoryDispatcher()

	var got []int64
	d.Subscribe(EventTicketUpdated, func(_ context.Context, evt Event) error {
		got = append(got, evt.TicketID)
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), TicketUpdated(7)))
	assert.Equal(t, []int64{7}, got, "subscriber has run before Publish returns")
}

func TestDispatcherRoutesByType(t *testing.T) {
	d := NewInMemoryDispatcher()

	var sessions, notifications int
	d.Subscribe(EventSessionCleared, func(context.Context, Event) error {
		sessions++
		return nil
	})
	d.Subscribe(EventNotificationReceived, func(context.Context, Event) error {
		notifications++
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), SessionCleared()))
	require.NoError(t, d.Publish(context.Background(), NotificationReceived(domain.Notification{ID: 1, TicketID: 2})))

	assert.Equal(t, 1, sessions)
	assert.Equal(t, 1, notifications)
}

func TestDispatcherHandlerErrorDoesNotStopOthers(t *testing.T) {
	d := NewInMemoryDispatcher()

	var second bool
	d.Subscribe(EventTicketUpdated, func(context.Context, Event) error {
		return errors.New("render failed")
	})
	d.Subscribe(EventTicketUpdated, func(context.Context, Event) error {
		second = true
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), TicketUpdated(1)))
	assert.True(t, second)
}
