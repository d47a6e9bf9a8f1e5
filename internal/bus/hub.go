package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"math/rand"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"hermes-text/internal/proxy"
	"hermes-text/pkg/hermes"
)

const (
	FrameSubscribe = "subscribe"
	FramePublish   = "publish"
	FrameMessage   = "message"
)

var errHubNotConnected = errors.New("hub: not connected")

// Frame is one JSON text message on the hub websocket. Clients send
// subscribe and publish frames, the hub answers with message frames.
type Frame struct {
	Kind    string   `json:"kind"`
	Topic   string   `json:"topic,omitempty"`
	Filters []string `json:"filters,omitempty"`
	Payload []byte   `json:"payload,omitempty"`
}

type HubOptions struct {
	URL                  string
	ProxyAddr            string
	DialTimeout          time.Duration
	MaxReconnectInterval time.Duration
}

// HubTransport speaks to a websocket message hub. The hub may fan out more
// than was asked for, so inbound topics are filtered locally.
type HubTransport struct {
	log     *log.Logger
	url     string
	dialer  *ws.Dialer
	backoff BackoffConfig

	mu      sync.Mutex
	conn    *ws.Conn
	filters []string
	closed  bool
	cancel  context.CancelFunc

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

func NewHubTransport(logger *log.Logger, opts HubOptions) (*HubTransport, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.MaxReconnectInterval <= 0 {
		opts.MaxReconnectInterval = 30 * time.Second
	}

	dial, err := proxy.NewDialer(opts.ProxyAddr, opts.DialTimeout)
	if err != nil {
		return nil, err
	}

	return &HubTransport{
		log: logger,
		url: opts.URL,
		dialer: &ws.Dialer{
			NetDialContext:   dial,
			HandshakeTimeout: opts.DialTimeout,
		},
		backoff: DefaultBackoff(opts.MaxReconnectInterval),
	}, nil
}

func (h *HubTransport) Connect(ctx context.Context, events Events) error {
	conn, err := h.dial(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		cancel()
		conn.Close()
		return ErrClosed
	}
	h.conn = conn
	h.cancel = cancel
	h.mu.Unlock()

	h.wg.Add(1)
	go h.run(runCtx, conn, events)
	return nil
}

func (h *HubTransport) dial(ctx context.Context) (*ws.Conn, error) {
	h.log.Debug("Dialing hub", "url", h.url)
	conn, _, err := h.dialer.DialContext(ctx, h.url, nil)
	if err != nil {
		return nil, fmt.Errorf("hub dial %s: %w", h.url, err)
	}
	return conn, nil
}

func (h *HubTransport) run(ctx context.Context, conn *ws.Conn, events Events) {
	defer h.wg.Done()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		events.OnConnect()
		err := h.read(conn, events)
		if ctx.Err() != nil {
			return
		}
		if isCloseError(err) {
			h.log.Info("Hub closed the connection")
		}
		events.OnLost(err)

		conn = h.reconnect(ctx, rng)
		if conn == nil {
			return
		}
	}
}

func (h *HubTransport) read(conn *ws.Conn, events Events) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return err
		}

		var f Frame
		if err := json.Unmarshal(msg, &f); err != nil {
			h.log.Warn("Bad hub frame", "err", err)
			continue
		}
		if f.Kind != FrameMessage {
			h.log.Debug("Unexpected hub frame", "kind", f.Kind)
			continue
		}
		if !h.wants(f.Topic) {
			continue
		}
		events.OnMessage(f.Topic, f.Payload)
	}
}

func (h *HubTransport) wants(topic string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, f := range h.filters {
		if hermes.MatchTopic(f, topic) {
			return true
		}
	}
	return false
}

func (h *HubTransport) reconnect(ctx context.Context, rng *rand.Rand) *ws.Conn {
	for attempt := 1; ; attempt++ {
		delay := NextBackoffDelay(h.backoff, attempt, rng)
		h.log.Info("Reconnecting to hub", "attempt", attempt, "in", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		conn, err := h.dial(ctx)
		if err != nil {
			h.log.Warn("Hub reconnect failed", "err", err)
			continue
		}

		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			conn.Close()
			return nil
		}
		h.conn = conn
		h.mu.Unlock()
		return conn
	}
}

// Subscribe records filters for local matching and forwards them to the hub.
func (h *HubTransport) Subscribe(filters []string) error {
	h.mu.Lock()
	h.filters = append([]string(nil), filters...)
	h.mu.Unlock()
	return h.write(Frame{Kind: FrameSubscribe, Filters: filters})
}

func (h *HubTransport) Publish(topic string, payload []byte) error {
	return h.write(Frame{Kind: FramePublish, Topic: topic, Payload: payload})
}

func (h *HubTransport) write(f Frame) error {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return errHubNotConnected
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if err := conn.WriteJSON(f); err != nil {
		return fmt.Errorf("hub write %s: %w", f.Kind, err)
	}
	return nil
}

func (h *HubTransport) Close(timeout time.Duration) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	conn, cancel := h.conn, h.cancel
	h.conn = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		msg := ws.FormatCloseMessage(ws.CloseNormalClosure, "")
		_ = conn.WriteControl(ws.CloseMessage, msg, time.Now().Add(timeout))
		conn.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		h.log.Warn("Hub reader did not stop in time")
	}
}

func isCloseError(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
