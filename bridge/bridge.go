package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Bridger is the capability surface of the protocol client. Implementations
// are not safe for concurrent use from multiple goroutines unless stated
// otherwise.
type Bridger interface {
	Login(ctx context.Context, userID, password string) (*Session, error)
	SetSession(session *Session)
	ResolveAlias(ctx context.Context, alias string) (string, error)
	Join(ctx context.Context, roomID string) error
	MsgChannel(ctx context.Context, roomID, text string) (*SendResult, error)
	// Sync performs one long-poll. fullState requests the complete room
	// state instead of the changes since the last position.
	Sync(ctx context.Context, timeoutMS int, fullState bool) ([]*Event, error)
	GetRoom(roomID string) *RoomInfo
	GetMe() string
	Protocol() string
	Close() error
}

// Session is the credential triple that authorizes protocol calls without a
// password. The json layout is the on-disk credentials file format.
type Session struct {
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id"`
	UserID      string `json:"user_id"`
}

var ErrIncompleteSession = errors.New("incomplete session")

func (s *Session) Validate() error {
	var missing []string

	if s.AccessToken == "" {
		missing = append(missing, "access_token")
	}

	if s.DeviceID == "" {
		missing = append(missing, "device_id")
	}

	if s.UserID == "" {
		missing = append(missing, "user_id")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteSession, strings.Join(missing, ", "))
	}

	return nil
}

type RoomInfo struct {
	ID        string
	Name      string
	Encrypted bool
}

// DisplayName returns the room name, falling back to the room id.
func (r *RoomInfo) DisplayName() string {
	if r == nil {
		return ""
	}

	if r.Name != "" {
		return r.Name
	}

	return r.ID
}

type SendResult struct {
	EventID string
	Status  int
}

// IsRoomID reports whether s is a canonical room id rather than an alias.
func IsRoomID(s string) bool {
	return strings.HasPrefix(s, "!")
}

const (
	EventInvite           = "invite"
	EventTextMessage      = "text_message"
	EventEncryptedMessage = "encrypted_message"
)

type Event struct {
	Type string
	Data interface{}
}

type InviteEvent struct {
	Room    *RoomInfo
	Inviter string
}

type TextMessageEvent struct {
	Room          *RoomInfo
	EventID       string
	Sender        string
	SenderName    string
	Body          string
	FormattedBody string
	MsgType       string
	Decrypted     bool
	Me            bool
}

type EncryptedMessageEvent struct {
	Room      *RoomInfo
	EventID   string
	Sender    string
	Algorithm string
}
