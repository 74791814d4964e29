package bot

import (
	"context"

	"github.com/42wim/matrixbotd/bridge"
)

// Joiner is the part of the transport the invite handler needs.
type Joiner interface {
	Join(ctx context.Context, roomID string) error
}

// AutoJoin accepts every invite. A failed join is logged and otherwise
// ignored.
func AutoJoin(j Joiner) Handler {
	return func(ctx context.Context, event *bridge.Event) {
		invite, ok := event.Data.(*bridge.InviteEvent)
		if !ok || invite.Room == nil {
			return
		}

		if err := j.Join(ctx, invite.Room.ID); err != nil {
			logger.Errorf("%s", &JoinError{RoomID: invite.Room.ID, Err: err})
			return
		}

		logger.Infof("joined %s (%s) invited by %s, encrypted: %v",
			invite.Room.DisplayName(), invite.Room.ID, invite.Inviter, invite.Room.Encrypted)
	}
}
