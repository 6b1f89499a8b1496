package netadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"swarmcore.ai/internal/protocol"
)

type RemoteConfig struct {
	URL        string
	ClientName string
	// Inbox bounds bundles received but not yet polled.
	Inbox            int
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// PingInterval is how often a ping goes out so the relay's idle timer
	// does not fire while no inputs are being sent.
	PingInterval time.Duration
}

// Remote talks to a relay server over a websocket. A reader goroutine decodes
// bundles into a channel; Poll drains it on the caller's goroutine.
type Remote struct {
	cfg RemoteConfig
	log *zap.Logger

	handler BundleHandler

	mu      sync.Mutex // guards conn writes and the fields below
	conn    *websocket.Conn
	welcome protocol.WelcomeMsg
	closed  bool
	readErr error

	inbox chan protocol.TickBundle
	stop  chan struct{}
	wg    sync.WaitGroup
}

func NewRemote(cfg RemoteConfig, log *zap.Logger) *Remote {
	if cfg.Inbox <= 0 {
		cfg.Inbox = 1024
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "client"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Remote{
		cfg:   cfg,
		log:   log.Named("remote"),
		inbox: make(chan protocol.TickBundle, cfg.Inbox),
		stop:  make(chan struct{}),
	}
}

func (r *Remote) Kind() Kind { return KindRemote }

func (r *Remote) Connect(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrDisconnected
	}
	if r.conn != nil {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: r.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, r.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", r.cfg.URL, err)
	}
	welcome, err := r.handshake(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = conn.Close()
		return ErrDisconnected
	}
	r.conn = conn
	r.welcome = welcome
	r.mu.Unlock()

	r.log.Info("connected",
		zap.String("url", r.cfg.URL),
		zap.String("session_id", welcome.SessionID),
		zap.Uint64("start_tick", welcome.StartTick))

	r.wg.Add(2)
	go r.readLoop(conn)
	go r.pingLoop(conn)
	return nil
}

func (r *Remote) handshake(conn *websocket.Conn) (protocol.WelcomeMsg, error) {
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      r.cfg.ClientName,
		MaxQueue:        r.cfg.Inbox,
	}
	if err := writeJSON(conn, hello, r.cfg.WriteTimeout); err != nil {
		return protocol.WelcomeMsg{}, fmt.Errorf("send HELLO: %w", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(r.cfg.HandshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return protocol.WelcomeMsg{}, fmt.Errorf("read WELCOME: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.WelcomeMsg{}, fmt.Errorf("decode WELCOME: %w", err)
	}
	switch base.Type {
	case protocol.TypeWelcome:
	case protocol.TypeError:
		var em protocol.ErrorMsg
		_ = json.Unmarshal(msg, &em)
		return protocol.WelcomeMsg{}, fmt.Errorf("relay refused: %s: %s", em.Code, em.Message)
	default:
		return protocol.WelcomeMsg{}, fmt.Errorf("expected WELCOME, got %q", base.Type)
	}
	var w protocol.WelcomeMsg
	if err := json.Unmarshal(msg, &w); err != nil {
		return protocol.WelcomeMsg{}, fmt.Errorf("decode WELCOME: %w", err)
	}
	if w.ProtocolVersion != protocol.Version {
		return protocol.WelcomeMsg{}, fmt.Errorf("protocol version %q, want %q", w.ProtocolVersion, protocol.Version)
	}
	return w, nil
}

func (r *Remote) readLoop(conn *websocket.Conn) {
	defer r.wg.Done()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			r.mu.Lock()
			closed := r.closed
			if !closed {
				r.readErr = err
			}
			r.mu.Unlock()
			if !closed {
				r.log.Warn("connection lost", zap.Error(err))
			}
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeBundle:
			var bm protocol.BundleMsg
			if err := json.Unmarshal(msg, &bm); err != nil {
				r.log.Warn("bad BUNDLE", zap.Error(err))
				continue
			}
			select {
			case r.inbox <- bm.Bundle():
			case <-r.stop:
				return
			}
		case protocol.TypeError:
			var em protocol.ErrorMsg
			if err := json.Unmarshal(msg, &em); err == nil {
				r.log.Warn("relay error", zap.String("code", em.Code), zap.String("message", em.Message))
			}
		}
	}
}

func (r *Remote) pingLoop(conn *websocket.Conn) {
	defer r.wg.Done()
	t := time.NewTicker(r.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-t.C:
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(r.cfg.WriteTimeout))
			if err != nil {
				r.log.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (r *Remote) SendInput(tick uint64, cmds []protocol.InputCommand) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrDisconnected
	}
	if r.conn == nil {
		return ErrNotConnected
	}
	if r.readErr != nil {
		return fmt.Errorf("%w: %v", ErrDisconnected, r.readErr)
	}
	return writeJSON(r.conn, protocol.NewInputMsg(tick, cmds), r.cfg.WriteTimeout)
}

func (r *Remote) OnInputBundle(fn BundleHandler) { r.handler = fn }

func (r *Remote) Poll(time.Time) {
	for {
		if r.isClosed() {
			return
		}
		select {
		case b := <-r.inbox:
			if r.handler != nil {
				r.handler(b)
			}
		default:
			return
		}
	}
}

// Disconnect closes the socket and waits for the reader and pinger to exit. Calling it
// more than once is harmless.
func (r *Remote) Disconnect() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	conn := r.conn
	close(r.stop)
	var err error
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
		err = conn.Close()
	}
	r.mu.Unlock()

	r.wg.Wait()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return nil
}

func (r *Remote) Welcome() protocol.WelcomeMsg {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.welcome
}

// Err reports why the connection dropped, if it did.
func (r *Remote) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readErr
}

func (r *Remote) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func writeJSON(conn *websocket.Conn, v any, timeout time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
