package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/42wim/matrixbotd/bridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncLoopDispatchesAndStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	br := newMockBridge()
	br.syncs = []syncResult{
		{events: []*bridge.Event{inviteEvent("!a:x"), textEvent("!b:x", "one")}},
		{events: []*bridge.Event{textEvent("!b:x", "two")}},
	}
	br.onIdle = cancel

	var got []string

	r := NewEventRouter()
	r.Register(bridge.EventInvite, func(_ context.Context, ev *bridge.Event) {
		got = append(got, "invite "+ev.Data.(*bridge.InviteEvent).Room.ID)
	})
	r.Register(bridge.EventTextMessage, func(_ context.Context, ev *bridge.Event) {
		got = append(got, "text "+ev.Data.(*bridge.TextMessageEvent).Body)
	})

	err := NewSyncLoop(br, r, time.Millisecond).Run(ctx, 1000, true)
	require.NoError(t, err)

	assert.Equal(t, []string{"invite !a:x", "text one", "text two"}, got)
	assert.Equal(t, []bool{true, false, false}, br.fullState)
}

func TestSyncLoopRetriesTransientErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	br := newMockBridge()
	br.syncs = []syncResult{
		{err: &bridge.RemoteError{StatusCode: 500, Class: bridge.ErrTransient}},
		{err: errors.New("connection reset by peer")},
		{events: []*bridge.Event{textEvent("!b:x", "after retry")}},
	}
	br.onIdle = cancel

	var got []string

	r := NewEventRouter()
	r.Register(bridge.EventTextMessage, func(_ context.Context, ev *bridge.Event) {
		got = append(got, ev.Data.(*bridge.TextMessageEvent).Body)
	})

	err := NewSyncLoop(br, r, time.Millisecond).Run(ctx, 1000, true)
	require.NoError(t, err)

	assert.Equal(t, []string{"after retry"}, got)
	// full state is requested until a poll succeeds
	assert.Equal(t, []bool{true, true, true, false}, br.fullState)
}

func TestSyncLoopStopsOnFatalError(t *testing.T) {
	br := newMockBridge()
	br.syncs = []syncResult{
		{err: &bridge.RemoteError{Code: "M_UNKNOWN_TOKEN", StatusCode: 401, Class: bridge.ErrUnauthorized}},
	}

	err := NewSyncLoop(br, NewEventRouter(), time.Millisecond).Run(context.Background(), 1000, false)

	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.ErrorIs(t, err, bridge.ErrUnauthorized)
	assert.Equal(t, 1, br.syncCalls())
}

func TestSyncLoopCancelDuringRetryDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	br := newMockBridge()
	br.syncs = []syncResult{
		{err: &bridge.RemoteError{StatusCode: 502, Class: bridge.ErrTransient}},
	}

	done := make(chan error, 1)

	go func() {
		done <- NewSyncLoop(br, NewEventRouter(), time.Hour).Run(ctx, 1000, false)
	}()

	require.Eventually(t, func() bool { return br.syncCalls() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sync loop did not return after cancel")
	}
}

func TestSyncLoopCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	br := newMockBridge()

	assert.NoError(t, NewSyncLoop(br, NewEventRouter(), time.Millisecond).Run(ctx, 1000, true))
	assert.Equal(t, 0, br.syncCalls())
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		desc string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain network error", errors.New("dial tcp: i/o timeout"), true},
		{"server error", &bridge.RemoteError{StatusCode: 503, Class: bridge.ErrTransient}, true},
		{"rate limited", &bridge.RemoteError{Code: "M_LIMIT_EXCEEDED", StatusCode: 429, Class: bridge.ErrTransient}, true},
		{"unknown token", &bridge.RemoteError{Code: "M_UNKNOWN_TOKEN", StatusCode: 401, Class: bridge.ErrUnauthorized}, false},
		{"forbidden", &bridge.RemoteError{Code: "M_FORBIDDEN", StatusCode: 403, Class: bridge.ErrForbidden}, false},
		{"wrapped transient", &TransientTransportError{Err: errors.New("eof")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
