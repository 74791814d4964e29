package bot

import (
	"context"
	"errors"
	"io"

	"github.com/42wim/matrixbotd/bridge"
	"github.com/42wim/matrixbotd/config"
)

// NewBridgeFunc constructs the transport client for cfg.
type NewBridgeFunc func(cfg config.BotConfig) (bridge.Bridger, error)

// Bot wires the session manager, the event router and the sync loop around
// one transport client.
type Bot struct {
	cfg       config.BotConfig
	newBridge NewBridgeFunc
	out       io.Writer
}

func New(cfg config.BotConfig, newBridge NewBridgeFunc, out io.Writer) *Bot {
	return &Bot{
		cfg:       cfg,
		newBridge: newBridge,
		out:       out,
	}
}

// Run blocks until ctx is cancelled, which is a clean shutdown and returns
// nil, or until a fatal error. The transport is closed exactly once on
// every path after it was constructed.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.cfg.Validate(); err != nil {
		return &ConfigError{Err: err}
	}

	br, err := b.newBridge(b.cfg)
	if err != nil {
		var setupErr *bridge.SetupError
		if errors.As(err, &setupErr) {
			return &ConfigError{Field: setupErr.Field, Err: setupErr.Err}
		}

		return &ConfigError{Err: err}
	}

	defer func() {
		if err := br.Close(); err != nil {
			logger.Errorf("closing %s client failed: %s", br.Protocol(), err)
		}
	}()

	sessions := NewSessionManager(NewCredentialStore(b.cfg.CredentialsPath), br)

	// fail on a missing password before talking to the server
	if err := sessions.CanEstablish(b.cfg); err != nil {
		return err
	}

	roomID, err := b.resolveRoom(ctx, br)
	if err != nil {
		return cancelled(ctx, err)
	}

	session, err := sessions.Establish(ctx, b.cfg)
	if err != nil {
		return cancelled(ctx, err)
	}

	br.SetSession(session)

	router := NewEventRouter()
	router.Register(bridge.EventInvite, AutoJoin(br))
	router.Register(bridge.EventTextMessage, NewPrinter(b.out, b.cfg.Console).Handle)

	if err := br.Join(ctx, roomID); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		logger.Errorf("%s", &JoinError{RoomID: roomID, Err: err})
	} else {
		logger.Infof("joined %s (%s)", b.roomName(br, roomID), roomID)
	}

	if b.cfg.SendStartupMessage {
		b.sendStartupMessage(ctx, br, roomID)
	}

	logger.Infof("syncing with %s as %s", b.cfg.HomeServer, br.GetMe())

	return NewSyncLoop(br, router, b.cfg.RetryDelay).Run(ctx, b.cfg.SyncTimeoutMS, b.cfg.FullState)
}

// resolveRoom returns the canonical id of the configured room.
func (b *Bot) resolveRoom(ctx context.Context, br bridge.Bridger) (string, error) {
	if bridge.IsRoomID(b.cfg.RoomID) {
		return b.cfg.RoomID, nil
	}

	roomID, err := br.ResolveAlias(ctx, b.cfg.RoomID)
	if err != nil {
		return "", &ResolutionError{Alias: b.cfg.RoomID, Err: err}
	}

	if !bridge.IsRoomID(roomID) {
		return "", &ResolutionError{Alias: b.cfg.RoomID, Err: errors.New("server returned " + roomID)}
	}

	logger.Infof("resolved %s to %s", b.cfg.RoomID, roomID)

	return roomID, nil
}

func (b *Bot) roomName(br bridge.Bridger, roomID string) string {
	if room := br.GetRoom(roomID); room != nil && room.Name != "" {
		return room.Name
	}

	return b.cfg.RoomID
}

func (b *Bot) sendStartupMessage(ctx context.Context, br bridge.Bridger, roomID string) {
	resp, err := br.MsgChannel(ctx, roomID, b.cfg.StartupMessage)
	if err != nil {
		logger.Errorf("sending startup message to %s failed: %s", roomID, err)
		return
	}

	logger.Infof("startup message status: %d, event: %s", resp.Status, resp.EventID)
}

// cancelled turns errors caused by an interrupt into a clean shutdown.
func cancelled(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		logger.Debugf("interrupted: %s", err)
		return nil
	}

	return err
}
