package matrix

import (
	"github.com/42wim/matrixbotd/bridge"
	"maunium.net/go/mautrix/id"
)

// Channel is what the sync stream told us about a room so far.
type Channel struct {
	ID        id.RoomID
	Name      string
	Alias     id.RoomAlias
	Encrypted bool
}

func (c *Channel) info() *bridge.RoomInfo {
	name := c.Name
	if name == "" && c.Alias != "" {
		name = c.Alias.String()
	}

	return &bridge.RoomInfo{
		ID:        c.ID.String(),
		Name:      name,
		Encrypted: c.Encrypted,
	}
}

// channel returns the directory entry for roomID, creating it if needed.
// The caller holds the write lock.
func (m *Matrix) channel(roomID id.RoomID) *Channel {
	if ch, ok := m.channels[roomID]; ok {
		return ch
	}

	ch := &Channel{ID: roomID}
	m.channels[roomID] = ch

	return ch
}

func (m *Matrix) GetRoom(roomID string) *bridge.RoomInfo {
	m.RLock()
	defer m.RUnlock()

	if ch, ok := m.channels[id.RoomID(roomID)]; ok {
		return ch.info()
	}

	return &bridge.RoomInfo{ID: roomID}
}

func memberKey(roomID id.RoomID, userID id.UserID) string {
	return roomID.String() + "|" + userID.String()
}

// senderName returns the display name userID uses in roomID, or its localpart
// when the room state did not carry one.
func (m *Matrix) senderName(roomID id.RoomID, userID id.UserID) string {
	if v, ok := m.members.Get(memberKey(roomID, userID)); ok {
		if name, _ := v.(string); name != "" {
			return name
		}
	}

	nick, _, err := userID.Parse()
	if err != nil || nick == "" {
		return userID.String()
	}

	return nick
}
