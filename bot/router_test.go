package bot

import (
	"context"
	"testing"

	"github.com/42wim/matrixbotd/bridge"
	"github.com/stretchr/testify/assert"
)

func inviteEvent(roomID string) *bridge.Event {
	return &bridge.Event{
		Type: bridge.EventInvite,
		Data: &bridge.InviteEvent{Room: &bridge.RoomInfo{ID: roomID}, Inviter: "@alice:example.org"},
	}
}

func textEvent(roomID, body string) *bridge.Event {
	return &bridge.Event{
		Type: bridge.EventTextMessage,
		Data: &bridge.TextMessageEvent{
			Room:       &bridge.RoomInfo{ID: roomID, Name: "Lobby"},
			Sender:     "@alice:example.org",
			SenderName: "Alice",
			Body:       body,
		},
	}
}

func TestDispatchKeepsOrder(t *testing.T) {
	var got []string

	r := NewEventRouter()
	r.Register(bridge.EventInvite, func(_ context.Context, ev *bridge.Event) {
		got = append(got, "join "+ev.Data.(*bridge.InviteEvent).Room.ID)
	})
	r.Register(bridge.EventTextMessage, func(_ context.Context, ev *bridge.Event) {
		got = append(got, "print "+ev.Data.(*bridge.TextMessageEvent).Room.ID)
	})

	for _, ev := range []*bridge.Event{inviteEvent("!a:x"), textEvent("!b:x", "hi"), inviteEvent("!c:x")} {
		r.Dispatch(context.Background(), ev)
	}

	assert.Equal(t, []string{"join !a:x", "print !b:x", "join !c:x"}, got)
}

func TestDispatchUnknownType(t *testing.T) {
	called := 0

	r := NewEventRouter()
	r.Register(bridge.EventTextMessage, func(context.Context, *bridge.Event) { called++ })

	assert.NotPanics(t, func() {
		r.Dispatch(context.Background(), &bridge.Event{Type: "m.typing", Data: "whatever"})
		r.Dispatch(context.Background(), &bridge.Event{Type: bridge.EventEncryptedMessage})
		r.Dispatch(context.Background(), nil)
	})
	assert.Equal(t, 0, called)
}

func TestRegisterReplacesHandler(t *testing.T) {
	var got []string

	r := NewEventRouter()
	r.Register(bridge.EventInvite, func(context.Context, *bridge.Event) { got = append(got, "old") })
	r.Register(bridge.EventInvite, func(context.Context, *bridge.Event) { got = append(got, "new") })

	r.Dispatch(context.Background(), inviteEvent("!a:x"))

	assert.Equal(t, []string{"new"}, got)
}

func TestAutoJoin(t *testing.T) {
	br := newMockBridge()
	handler := AutoJoin(br)

	handler(context.Background(), inviteEvent("!a:x"))
	handler(context.Background(), textEvent("!b:x", "not an invite"))
	handler(context.Background(), &bridge.Event{Type: bridge.EventInvite, Data: &bridge.InviteEvent{}})

	assert.Equal(t, []string{"!a:x"}, br.joins)
}

func TestAutoJoinFailureIsNotFatal(t *testing.T) {
	br := newMockBridge()
	br.joinErr = &bridge.RemoteError{Code: "M_FORBIDDEN", StatusCode: 403, Class: bridge.ErrForbidden}
	handler := AutoJoin(br)

	assert.NotPanics(t, func() {
		handler(context.Background(), inviteEvent("!a:x"))
		handler(context.Background(), inviteEvent("!b:x"))
	})
	assert.Equal(t, []string{"!a:x", "!b:x"}, br.joins)
}
