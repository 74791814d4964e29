package bot

import (
	"context"
	"sync"

	"github.com/42wim/matrixbotd/bridge"
)

type syncResult struct {
	events []*bridge.Event
	err    error
}

// mockBridge records every call. Sync hands out the queued results in order
// and then blocks until the context is cancelled.
type mockBridge struct {
	sync.Mutex

	session  *bridge.Session
	loginErr error
	aliases  map[string]string
	joinErr  error
	syncs    []syncResult
	onIdle   func()
	rooms    map[string]*bridge.RoomInfo
	sent     []string
	me       string
	closeErr error
	applied  *bridge.Session

	logins    int
	resolves  []string
	joins     []string
	fullState []bool
	closes    int
}

var _ bridge.Bridger = (*mockBridge)(nil)

func newMockBridge() *mockBridge {
	return &mockBridge{
		session: &bridge.Session{
			AccessToken: "syt_token",
			DeviceID:    "DEVICE1",
			UserID:      "@bot:example.org",
		},
		aliases: make(map[string]string),
		rooms:   make(map[string]*bridge.RoomInfo),
		me:      "@bot:example.org",
	}
}

func (b *mockBridge) Login(ctx context.Context, userID, password string) (*bridge.Session, error) {
	b.Lock()
	defer b.Unlock()

	b.logins++
	if b.loginErr != nil {
		return nil, b.loginErr
	}

	s := *b.session

	return &s, nil
}

func (b *mockBridge) SetSession(session *bridge.Session) {
	b.Lock()
	defer b.Unlock()

	b.applied = session
}

func (b *mockBridge) ResolveAlias(ctx context.Context, alias string) (string, error) {
	b.Lock()
	defer b.Unlock()

	b.resolves = append(b.resolves, alias)

	roomID, ok := b.aliases[alias]
	if !ok {
		return "", &bridge.RemoteError{Code: "M_NOT_FOUND", StatusCode: 404, Class: bridge.ErrNotFound}
	}

	return roomID, nil
}

func (b *mockBridge) Join(ctx context.Context, roomID string) error {
	b.Lock()
	defer b.Unlock()

	b.joins = append(b.joins, roomID)

	return b.joinErr
}

func (b *mockBridge) MsgChannel(ctx context.Context, roomID, text string) (*bridge.SendResult, error) {
	b.Lock()
	defer b.Unlock()

	b.sent = append(b.sent, roomID+" "+text)

	return &bridge.SendResult{EventID: "$sent", Status: 200}, nil
}

func (b *mockBridge) Sync(ctx context.Context, timeoutMS int, fullState bool) ([]*bridge.Event, error) {
	b.Lock()
	b.fullState = append(b.fullState, fullState)

	if len(b.syncs) > 0 {
		res := b.syncs[0]
		b.syncs = b.syncs[1:]
		b.Unlock()

		return res.events, res.err
	}

	onIdle := b.onIdle
	b.Unlock()

	if onIdle != nil {
		onIdle()
	}

	<-ctx.Done()

	return nil, ctx.Err()
}

func (b *mockBridge) GetRoom(roomID string) *bridge.RoomInfo {
	b.Lock()
	defer b.Unlock()

	if room, ok := b.rooms[roomID]; ok {
		return room
	}

	return &bridge.RoomInfo{ID: roomID}
}

func (b *mockBridge) GetMe() string {
	return b.me
}

func (b *mockBridge) Protocol() string {
	return "mock"
}

func (b *mockBridge) Close() error {
	b.Lock()
	defer b.Unlock()

	b.closes++

	return b.closeErr
}

func (b *mockBridge) syncCalls() int {
	b.Lock()
	defer b.Unlock()

	return len(b.fullState)
}
