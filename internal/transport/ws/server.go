// Package ws is the authoritative lockstep relay: clients send INPUT for
// future ticks, the server closes one tick per interval and broadcasts its
// BUNDLE to everyone in the same order.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"swarmcore.ai/internal/netadapter"
	tlog "swarmcore.ai/internal/persistence/log"
	"swarmcore.ai/internal/protocol"
)

type Config struct {
	TickRateHz      int
	SendDelayTicks  int
	MaxHistoryTicks int
	// IdleTimeout drops a client that sends nothing, not even a ping, for
	// this long.
	IdleTimeout time.Duration
	Registerer  prometheus.Registerer
}

// SessionSink receives join/leave records.
type SessionSink interface {
	WriteSession(tlog.SessionEntry) error
}

type Server struct {
	cfg     Config
	log     *zap.Logger
	sinks   []SessionSink
	metrics *metrics

	upgrader websocket.Upgrader

	mu       sync.Mutex
	relay    *netadapter.Relay
	lateSeen uint64
	history  []protocol.TickBundle
	clients  map[string]*client

	stopOnce sync.Once
	stop     chan struct{}
}

type client struct {
	id   string
	name string
	out  chan []byte
	kick func(code, msg string)
}

func NewServer(cfg Config, logger *zap.Logger, sinks ...SessionSink) *Server {
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 20
	}
	if cfg.SendDelayTicks <= 0 {
		cfg.SendDelayTicks = 3
	}
	if cfg.MaxHistoryTicks <= 0 {
		cfg.MaxHistoryTicks = 72000
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		log:     logger.Named("relay"),
		sinks:   sinks,
		metrics: newMetrics(cfg.Registerer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		relay:   netadapter.NewRelay(0),
		clients: map[string]*client{},
		stop:    make(chan struct{}),
	}
}

// Run closes one tick per interval until ctx ends or Stop is called.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.TickRateHz))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case <-ticker.C:
			s.Flush()
		}
	}
}

func (s *Server) Stop() { s.stopOnce.Do(func() { close(s.stop) }) }

// Flush closes the next tick, records it in history and broadcasts it.
// Clients whose queue is full are disconnected rather than waited on; the
// close handshake runs after the lock is released.
func (s *Server) Flush() protocol.TickBundle {
	s.mu.Lock()
	b := s.relay.Flush()
	s.history = append(s.history, b)
	if over := len(s.history) - s.cfg.MaxHistoryTicks; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
	s.metrics.ticksFlushed.Inc()

	msg, err := json.Marshal(protocol.NewBundleMsg(b))
	if err != nil {
		s.mu.Unlock()
		s.log.Error("encode bundle", zap.Uint64("tick", b.Tick), zap.Error(err))
		return b
	}
	var slow []*client
	for id, c := range s.clients {
		select {
		case c.out <- msg:
		default:
			s.metrics.slowConsumers.Inc()
			delete(s.clients, id)
			slow = append(slow, c)
		}
	}
	if len(slow) > 0 {
		s.metrics.clients.Set(float64(len(s.clients)))
	}
	s.mu.Unlock()

	for _, c := range slow {
		s.log.Warn("slow consumer; disconnecting", zap.String("session", c.id), zap.Uint64("tick", b.Tick))
		c.kick(protocol.ErrSlowConsumer, "client fell behind the broadcast")
	}
	return b
}

// Submit files commands for tick; returns the tick actually used.
func (s *Server) Submit(tick uint64, cmds []protocol.InputCommand) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.relay.Submit(tick, cmds)
	if late := s.relay.Late(); late != s.lateSeen {
		s.metrics.lateInputs.Add(float64(late - s.lateSeen))
		s.lateSeen = late
	}
	s.metrics.inputs.Inc()
	return at
}

func (s *Server) NextTick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relay.NextTick()
}

func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hello, ok := s.readHello(conn)
		if !ok {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		maxQ := hello.MaxQueue
		if maxQ <= 0 {
			maxQ = 256
		}
		if maxQ > 4096 {
			maxQ = 4096
		}
		var kickOnce sync.Once
		c := &client{
			id:   uuid.NewString(),
			name: hello.ClientName,
			out:  make(chan []byte, maxQ),
		}
		c.kick = func(code, msg string) {
			kickOnce.Do(func() {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code+": "+msg),
					time.Now().Add(time.Second))
				cancel()
				_ = conn.Close()
			})
		}
		if c.name == "" {
			c.name = "client"
		}

		welcome, catchUp, code := s.join(c)
		if code != "" {
			_ = writeJSON(conn, protocol.NewErrorMsg(code, "history no longer covers tick 0"))
			return
		}
		if err := writeJSON(conn, welcome); err != nil {
			s.leave(c, "welcome write failed")
			return
		}
		for _, b := range catchUp {
			if err := writeJSON(conn, protocol.NewBundleMsg(b)); err != nil {
				s.leave(c, "catch-up write failed")
				return
			}
		}

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop. Any frame, control frames included, pushes the idle
		// deadline forward.
		extend := func() { _ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)) }
		conn.SetPingHandler(func(data string) error {
			extend()
			err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
			if err == websocket.ErrCloseSent {
				return nil
			}
			return err
		})
		conn.SetPongHandler(func(string) error {
			extend()
			return nil
		})
		reason := "closed"
		for {
			extend()
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					reason = "server closed"
				}
				cancel()
				break
			}
			s.handleMessage(c, msg)
		}

		s.leave(c, reason)
	}
}

func (s *Server) readHello(conn *websocket.Conn) (protocol.HelloMsg, bool) {
	var hello protocol.HelloMsg
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return hello, false
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		s.metrics.rejected.WithLabelValues(protocol.ErrProtoBadRequest).Inc()
		_ = writeJSON(conn, protocol.NewErrorMsg(protocol.ErrProtoBadRequest, "expected HELLO"))
		return hello, false
	}
	if err := json.Unmarshal(msg, &hello); err != nil {
		s.metrics.rejected.WithLabelValues(protocol.ErrProtoBadRequest).Inc()
		_ = writeJSON(conn, protocol.NewErrorMsg(protocol.ErrProtoBadRequest, "bad HELLO"))
		return hello, false
	}
	if hello.ProtocolVersion != protocol.Version {
		s.metrics.rejected.WithLabelValues(protocol.ErrProtoVersion).Inc()
		_ = writeJSON(conn, protocol.NewErrorMsg(protocol.ErrProtoVersion, "bad protocol_version"))
		return hello, false
	}
	return hello, true
}

// join registers c for live broadcasts and returns the bundles it missed.
// Registration and the history copy happen under one lock so no tick falls
// between catch-up and live delivery.
func (s *Server) join(c *client) (protocol.WelcomeMsg, []protocol.TickBundle, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.history) > 0 && s.history[0].Tick > 0 {
		s.metrics.rejected.WithLabelValues(protocol.ErrHistoryTruncated).Inc()
		return protocol.WelcomeMsg{}, nil, protocol.ErrHistoryTruncated
	}
	catchUp := make([]protocol.TickBundle, len(s.history))
	copy(catchUp, s.history)

	s.clients[c.id] = c
	s.metrics.clients.Set(float64(len(s.clients)))
	start := s.relay.NextTick()
	s.audit(c, "join", start, "")
	s.log.Info("client joined",
		zap.String("session", c.id), zap.String("client", c.name),
		zap.Uint64("start_tick", start), zap.Int("catch_up", len(catchUp)))

	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       c.id,
		TickRateHz:      s.cfg.TickRateHz,
		SendDelayTicks:  s.cfg.SendDelayTicks,
		StartTick:       start,
	}, catchUp, ""
}

func (s *Server) leave(c *client, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.id]; ok {
		delete(s.clients, c.id)
		s.metrics.clients.Set(float64(len(s.clients)))
	}
	s.audit(c, "leave", s.relay.NextTick(), reason)
	s.log.Info("client left", zap.String("session", c.id), zap.String("reason", reason))
}

// audit must be called with s.mu held.
func (s *Server) audit(c *client, event string, tick uint64, reason string) {
	entry := tlog.SessionEntry{
		UnixMs:    time.Now().UnixMilli(),
		SessionID: c.id,
		Client:    c.name,
		Event:     event,
		Tick:      tick,
		Reason:    reason,
	}
	for _, sink := range s.sinks {
		if err := sink.WriteSession(entry); err != nil {
			s.log.Warn("session audit write failed", zap.Error(err))
		}
	}
}

func (s *Server) handleMessage(c *client, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.reject(c, protocol.ErrProtoBadRequest, "malformed message")
		return
	}
	if base.Type != protocol.TypeInput {
		s.reject(c, protocol.ErrProtoBadRequest, "unexpected message type "+base.Type)
		return
	}
	var in protocol.InputMsg
	if err := json.Unmarshal(msg, &in); err != nil {
		s.reject(c, protocol.ErrProtoBadRequest, "bad INPUT")
		return
	}
	if in.ProtocolVersion != protocol.Version {
		s.reject(c, protocol.ErrProtoVersion, "bad protocol_version")
		return
	}
	for _, cmd := range in.Commands {
		if err := cmd.Validate(); err != nil {
			s.reject(c, protocol.ErrBadCommand, err.Error())
			return
		}
	}
	at := s.Submit(in.Tick, in.Commands)
	if at != in.Tick {
		s.log.Debug("late input rescheduled",
			zap.String("session", c.id), zap.Uint64("tick", in.Tick), zap.Uint64("scheduled", at))
	}
}

func (s *Server) reject(c *client, code, message string) {
	s.metrics.rejected.WithLabelValues(code).Inc()
	b, err := json.Marshal(protocol.NewErrorMsg(code, message))
	if err != nil {
		return
	}
	select {
	case c.out <- b:
	default:
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
