package matrix

import (
	"sort"

	"github.com/42wim/matrixbotd/bridge"
	"github.com/davecgh/go-spew/spew"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

const timelineLimit = 50

func syncFilter() *mautrix.Filter {
	return &mautrix.Filter{
		Presence: mautrix.FilterPart{
			NotTypes: []event.Type{event.NewEventType("*")},
		},
		Room: mautrix.RoomFilter{
			Timeline: mautrix.FilterPart{
				Limit: timelineLimit,
			},
		},
	}
}

func sortedRoomIDs[V any](rooms map[id.RoomID]V) []id.RoomID {
	ids := make([]id.RoomID, 0, len(rooms))
	for roomID := range rooms {
		ids = append(ids, roomID)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

// processResponse updates the room directory from resp and returns the events
// the bot is interested in. Joined rooms come first, then invites, both in
// room id order; events of a room keep the server's order.
func (m *Matrix) processResponse(resp *mautrix.RespSync) []*bridge.Event {
	var events []*bridge.Event

	m.Lock()
	defer m.Unlock()

	for _, roomID := range sortedRoomIDs(resp.Rooms.Join) {
		room := resp.Rooms.Join[roomID]

		for _, ev := range room.State.Events {
			prepareEvent(ev, roomID)
			m.handleState(ev)
		}

		for _, ev := range room.Timeline.Events {
			prepareEvent(ev, roomID)

			if ev.StateKey != nil {
				m.handleState(ev)
				continue
			}

			// a timeline may overlap the previous one after a retried sync
			if ev.ID != "" {
				if m.seen.Contains(ev.ID) {
					logger.Debugf("skipping already seen event %s", ev.ID)
					continue
				}
				m.seen.Add(ev.ID, struct{}{})
			}

			if out := m.handleTimeline(ev); out != nil {
				events = append(events, out)
			}
		}
	}

	for _, roomID := range sortedRoomIDs(resp.Rooms.Invite) {
		var inviter id.UserID

		for _, ev := range resp.Rooms.Invite[roomID].State.Events {
			prepareEvent(ev, roomID)
			m.handleState(ev)

			if ev.Type.Type == event.StateMember.Type && ev.StateKey != nil &&
				id.UserID(*ev.StateKey) == m.mc.UserID &&
				ev.Content.AsMember().Membership == event.MembershipInvite {
				inviter = ev.Sender
			}
		}

		logger.Debugf("invited to %s by %s", roomID, inviter)

		events = append(events, &bridge.Event{
			Type: bridge.EventInvite,
			Data: &bridge.InviteEvent{
				Room:    m.channel(roomID).info(),
				Inviter: inviter.String(),
			},
		})
	}

	return events
}

// prepareEvent fixes the type class the way the mautrix default syncer does
// and parses the content.
func prepareEvent(ev *event.Event, roomID id.RoomID) {
	ev.RoomID = roomID

	if ev.StateKey != nil {
		ev.Type.Class = event.StateEventType
	} else {
		ev.Type.Class = event.MessageEventType
	}

	if err := ev.Content.ParseRaw(ev.Type); err != nil {
		logger.Tracef("not parsing content of %s: %s", ev.Type.Type, err)
	}

	logger.Tracef("processResponse ev %s", spew.Sdump(ev))
}

func (m *Matrix) handleState(ev *event.Event) {
	ch := m.channel(ev.RoomID)

	switch ev.Type.Type {
	case event.StateRoomName.Type:
		ch.Name = ev.Content.AsRoomName().Name
	case event.StateCanonicalAlias.Type:
		ch.Alias = ev.Content.AsCanonicalAlias().Alias
	case event.StateEncryption.Type:
		ch.Encrypted = true
	case event.StateMember.Type:
		if ev.StateKey == nil {
			return
		}
		m.members.Add(memberKey(ev.RoomID, id.UserID(*ev.StateKey)), ev.Content.AsMember().Displayname)
	}
}

func (m *Matrix) handleTimeline(ev *event.Event) *bridge.Event {
	switch ev.Type.Type {
	case event.EventMessage.Type:
		msg := ev.Content.AsMessage()
		if msg.MsgType != event.MsgText {
			logger.Debugf("handleTimeline ignoring %s message %s", msg.MsgType, ev.ID)
			return nil
		}

		return &bridge.Event{
			Type: bridge.EventTextMessage,
			Data: &bridge.TextMessageEvent{
				Room:          m.channel(ev.RoomID).info(),
				EventID:       ev.ID.String(),
				Sender:        ev.Sender.String(),
				SenderName:    m.senderName(ev.RoomID, ev.Sender),
				Body:          msg.Body,
				FormattedBody: msg.FormattedBody,
				MsgType:       string(msg.MsgType),
				Me:            ev.Sender == m.mc.UserID,
			},
		}
	case event.EventEncrypted.Type:
		logger.Debugf("unable to decrypt %s in %s", ev.ID, ev.RoomID)

		return &bridge.Event{
			Type: bridge.EventEncryptedMessage,
			Data: &bridge.EncryptedMessageEvent{
				Room:      m.channel(ev.RoomID).info(),
				EventID:   ev.ID.String(),
				Sender:    ev.Sender.String(),
				Algorithm: string(ev.Content.AsEncrypted().Algorithm),
			},
		}
	}

	return nil
}
