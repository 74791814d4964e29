package matrix

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/42wim/matrixbotd/bridge"
	"github.com/42wim/matrixbotd/config"
	"github.com/42wim/matterbridge/bridge/helper"
	"github.com/davecgh/go-spew/spew"
	lru "github.com/hashicorp/golang-lru"
	prefixed "github.com/matterbridge/logrus-prefixed-formatter"
	"github.com/sirupsen/logrus"
)

const (
	deviceDisplayName = "matrixbotd"
	memberCacheSize   = 1000
	seenCacheSize     = 500
)

// Matrix implements bridge.Bridger on top of mautrix. All calls that reach
// the homeserver are serialized, the mautrix client state is not safe for
// concurrent mutation.
type Matrix struct {
	mc       *mautrix.Client
	store    *syncStore
	keypair  *keypairReloader
	status   *statusRecorder
	channels map[id.RoomID]*Channel
	members  *lru.Cache
	seen     *lru.Cache
	sync.RWMutex

	callMu    sync.Mutex
	txnSeq    int
	closeOnce sync.Once
}

var logger = logrus.WithFields(logrus.Fields{"prefix": "bridge/matrix"})

var _ bridge.Bridger = (*Matrix)(nil)

func New(cfg config.BotConfig) (*Matrix, error) {
	m := &Matrix{
		channels: make(map[id.RoomID]*Channel),
	}
	m.members, _ = lru.New(memberCacheSize)
	m.seen, _ = lru.New(seenCacheSize)

	ourlog := logrus.New()
	ourlog.SetFormatter(&prefixed.TextFormatter{
		PrefixPadding: 14,
		FullTimestamp: true,
	})
	logger = ourlog.WithFields(logrus.Fields{"prefix": "bridge/matrix"})
	if cfg.Debug {
		ourlog.SetLevel(logrus.DebugLevel)
	}

	if cfg.Trace {
		ourlog.SetLevel(logrus.TraceLevel)
	}

	mc, err := mautrix.NewClient(cfg.HomeServer, id.UserID(cfg.UserID), "")
	if err != nil {
		return nil, &bridge.SetupError{Field: "home_server", Err: err}
	}

	httpClient, keypair, err := newHTTPClient(cfg)
	if err != nil {
		return nil, &bridge.SetupError{Field: "tls.cert", Err: err}
	}

	m.status = &statusRecorder{next: httpClient.Transport}
	httpClient.Transport = m.status
	mc.Client = httpClient

	store, err := openSyncStore(cfg.StateFile)
	if err != nil {
		keypair.stop()
		return nil, &bridge.SetupError{Field: "state_file", Err: err}
	}

	m.mc = mc
	m.keypair = keypair
	m.store = store

	return m, nil
}

func (m *Matrix) Login(ctx context.Context, userID, password string) (*bridge.Session, error) {
	m.callMu.Lock()
	defer m.callMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var resp mautrix.RespLogin

	err := m.request(ctx, http.MethodPost, []interface{}{"v3", "login"}, &mautrix.ReqLogin{
		Type: "m.login.password",
		Identifier: mautrix.UserIdentifier{
			Type: "m.id.user",
			User: userID,
		},
		Password:                 password,
		InitialDeviceDisplayName: deviceDisplayName,
	}, &resp)
	if err != nil {
		return nil, err
	}

	m.mc.UserID = resp.UserID
	m.mc.DeviceID = resp.DeviceID
	m.mc.AccessToken = resp.AccessToken

	logger.Debugf("logged in as %s with device %s", resp.UserID, resp.DeviceID)

	return &bridge.Session{
		AccessToken: resp.AccessToken,
		DeviceID:    string(resp.DeviceID),
		UserID:      resp.UserID.String(),
	}, nil
}

func (m *Matrix) SetSession(session *bridge.Session) {
	m.callMu.Lock()
	defer m.callMu.Unlock()

	m.mc.UserID = id.UserID(session.UserID)
	m.mc.DeviceID = id.DeviceID(session.DeviceID)
	m.mc.AccessToken = session.AccessToken
}

func (m *Matrix) ResolveAlias(ctx context.Context, alias string) (string, error) {
	m.callMu.Lock()
	defer m.callMu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	var resp mautrix.RespAliasResolve

	if err := m.request(ctx, http.MethodGet, []interface{}{"v3", "directory", "room", alias}, nil, &resp); err != nil {
		return "", err
	}

	logger.Debugf("resolved %s to %s", alias, resp.RoomID)

	return resp.RoomID.String(), nil
}

func (m *Matrix) Join(ctx context.Context, roomID string) error {
	m.callMu.Lock()
	defer m.callMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	var resp mautrix.RespJoinRoom

	if err := m.request(ctx, http.MethodPost, []interface{}{"v3", "rooms", roomID, "join"}, struct{}{}, &resp); err != nil {
		return err
	}

	logger.Trace("join: resp ", resp)

	return nil
}

func (m *Matrix) MsgChannel(ctx context.Context, roomID, text string) (*bridge.SendResult, error) {
	m.callMu.Lock()
	defer m.callMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Debugf("msgchannel: sending message '%s' '%s'", roomID, text)

	content := event.MessageEventContent{
		MsgType:       "m.text",
		Body:          text,
		FormattedBody: helper.ParseMarkdown(text),
		Format:        "org.matrix.custom.html",
	}

	m.txnSeq++
	txnID := fmt.Sprintf("%s.%d.%d", deviceDisplayName, time.Now().UnixMilli(), m.txnSeq)

	var resp mautrix.RespSendEvent

	path := []interface{}{"v3", "rooms", roomID, "send", event.EventMessage.Type, txnID}
	if err := m.request(ctx, http.MethodPut, path, content, &resp); err != nil {
		return nil, err
	}

	logger.Trace("msgchannel: resp ", resp)

	return &bridge.SendResult{
		EventID: resp.EventID.String(),
		Status:  m.status.last(),
	}, nil
}

// request performs one client-server API call bound to ctx. Apart from sync
// the mautrix helpers of this version take no context, an interrupt would
// wait for the http timeout.
func (m *Matrix) request(ctx context.Context, method string, path []interface{}, reqJSON, respJSON interface{}) error {
	m.status.reset()

	_, err := m.mc.MakeFullRequest(mautrix.FullRequest{
		Method:       method,
		URL:          m.mc.BuildClientURL(path...),
		RequestJSON:  reqJSON,
		ResponseJSON: respJSON,
		Context:      ctx,
		MaxAttempts:  1,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return classifyError(err)
	}

	return nil
}

func (m *Matrix) Sync(ctx context.Context, timeoutMS int, fullState bool) ([]*bridge.Event, error) {
	m.callMu.Lock()
	defer m.callMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	userID := m.mc.UserID
	filterID, err := m.filterID(ctx, userID)
	if err != nil {
		return nil, err
	}

	since := m.store.LoadNextBatch(userID)

	logger.Tracef("sync since=%q filter=%q fullState=%v", since, filterID, fullState)

	resp, err := m.mc.SyncRequest(timeoutMS, since, filterID, fullState, "", ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		err = classifyError(err)
		if errors.Is(err, bridge.ErrTransient) {
			// a broken connection may stay in the pool
			m.mc.Client.CloseIdleConnections()
		}

		return nil, err
	}

	events := m.processResponse(resp)

	if err := m.store.SaveNextBatch(userID, resp.NextBatch); err != nil {
		logger.Errorf("saving sync position failed: %s", err)
	}

	logger.Tracef("sync next=%q events=%d", resp.NextBatch, len(events))

	return events, nil
}

// filterID returns the server side filter for userID, creating it on first
// use. On failure the sync runs unfiltered, only cancellation is returned.
func (m *Matrix) filterID(ctx context.Context, userID id.UserID) (string, error) {
	if filterID := m.store.LoadFilterID(userID); filterID != "" {
		return filterID, nil
	}

	var resp mautrix.RespCreateFilter

	err := m.request(ctx, http.MethodPost, []interface{}{"v3", "user", userID.String(), "filter"}, syncFilter(), &resp)
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}

		logger.Warnf("creating sync filter failed, syncing unfiltered: %s", err)

		return "", nil
	}

	logger.Tracef("created filter %s", spew.Sdump(resp))

	if err := m.store.SaveFilterID(userID, resp.FilterID); err != nil {
		logger.Errorf("saving filter id failed: %s", err)
	}

	return resp.FilterID, nil
}

func (m *Matrix) GetMe() string {
	return m.mc.UserID.String()
}

func (m *Matrix) Protocol() string {
	return "matrix"
}

// Close releases the state file, the http connections and the TLS reloader.
// Only the first call does anything.
func (m *Matrix) Close() error {
	var err error

	m.closeOnce.Do(func() {
		m.keypair.stop()
		m.mc.Client.CloseIdleConnections()
		err = m.store.Close()
	})

	return err
}
