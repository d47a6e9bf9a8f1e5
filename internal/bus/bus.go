// Package bus is the satellite's side of the message channel: JSON publishes
// that survive disconnects in order, and inbound messages handed to one handler.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"sync"
	"sync/atomic"
	"time"

	"hermes-text/internal/logging"
	"hermes-text/pkg/hermes"
)

var ErrClosed = errors.New("bus: closed")

type Handler func(topic string, payload []byte)

type Bus struct {
	log       *log.Logger
	transport Transport
	filters   []string
	outbox    *Outbox
	backoff   BackoffConfig
	handler   atomic.Pointer[Handler]

	// mu is held across transport sends so publishes keep their order.
	mu        sync.Mutex
	connected bool
	closed    bool
	stopped   bool
	retry     *time.Timer
	attempt   int
}

func New(logger *log.Logger, transport Transport, filters []string) *Bus {
	return &Bus{
		log:       logger,
		transport: transport,
		filters:   filters,
		outbox:    NewOutbox(),
		backoff:   DefaultBackoff(5 * time.Second),
	}
}

// Handle sets the inbound message handler. Call it before Connect.
func (b *Bus) Handle(h Handler) {
	b.handler.Store(&h)
}

func (b *Bus) Connect(ctx context.Context) error {
	err := b.transport.Connect(ctx, Events{
		OnConnect: b.onConnect,
		OnLost:    b.onLost,
		OnMessage: b.onMessage,
	})
	if err != nil {
		return fmt.Errorf("bus connect: %w", err)
	}
	return nil
}

func (b *Bus) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Pending returns the number of publishes waiting for a connection.
func (b *Bus) Pending() int {
	return b.outbox.Len()
}

// Publish encodes v as JSON and sends it, or queues it until the transport
// reports a connection. Publishes are never reordered.
func (b *Bus) Publish(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	env := Envelope{Topic: topic, Payload: payload, QueuedAt: time.Now()}
	if !b.connected || b.outbox.Len() > 0 {
		b.outbox.Push(env)
		b.log.Debug("Publish queued", "topic", topic, "pending", b.outbox.Len())
		return nil
	}

	if err := b.send(env); err != nil {
		b.outbox.Push(env)
		b.log.Warn("Publish failed, queued", "topic", topic, "err", err)
		b.scheduleRetry()
	}
	return nil
}

// Close gives queued publishes up to timeout to drain, then tears the
// transport down. Later publishes fail with ErrClosed.
func (b *Bus) Close(timeout time.Duration) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for b.outbox.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := b.outbox.Len(); n > 0 {
		b.log.Warn("Dropping unsent publishes", "count", n)
	}

	b.mu.Lock()
	b.stopped = true
	if b.retry != nil {
		b.retry.Stop()
		b.retry = nil
	}
	b.mu.Unlock()

	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}
	b.transport.Close(remaining)
	b.log.Info("Bus closed")
}

func (b *Bus) send(env Envelope) error {
	b.log.Debug("<- "+env.Topic, "queued", time.Since(env.QueuedAt).Round(time.Millisecond))
	b.log.Log(context.Background(), logging.LevelTrace, string(env.Payload))
	return b.transport.Publish(env.Topic, env.Payload)
}

func (b *Bus) onConnect() {
	b.log.Info("Bus connected")

	if len(b.filters) > 0 {
		if err := b.transport.Subscribe(b.filters); err != nil {
			b.log.Error("Failed to subscribe", "err", err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	b.flush()
}

// flush drains the outbox in order and schedules a retry when a send fails.
// Callers hold b.mu.
func (b *Bus) flush() {
	for {
		env, ok := b.outbox.Peek()
		if !ok {
			b.attempt = 0
			return
		}
		if err := b.send(env); err != nil {
			b.log.Warn("Flush interrupted", "topic", env.Topic, "pending", b.outbox.Len(), "err", err)
			b.scheduleRetry()
			return
		}
		b.outbox.Pop()
	}
}

// scheduleRetry arms one delayed flush. A send can fail without the
// transport ever reporting the link as lost, so nothing else would drain
// the outbox. Callers hold b.mu.
func (b *Bus) scheduleRetry() {
	if b.retry != nil || b.stopped {
		return
	}
	b.attempt++
	delay := NextBackoffDelay(b.backoff, b.attempt, nil)
	b.log.Debug("Flush retry scheduled", "attempt", b.attempt, "in", delay)
	b.retry = time.AfterFunc(delay, b.retryFlush)
}

func (b *Bus) retryFlush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.retry = nil
	if b.stopped || !b.connected {
		return
	}
	b.flush()
}

func (b *Bus) onLost(err error) {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
	b.log.Warn("Bus disconnected", "err", err)
}

func (b *Bus) onMessage(topic string, payload []byte) {
	b.log.Debug("-> " + topic)
	if hermes.IsAudioData(topic) {
		b.log.Log(context.Background(), logging.LevelTrace, "(audio data removed)", "bytes", len(payload))
	} else {
		b.log.Log(context.Background(), logging.LevelTrace, string(payload))
	}

	if h := b.handler.Load(); h != nil {
		(*h)(topic, payload)
	}
}
