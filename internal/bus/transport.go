//go:generate go run go.uber.org/mock/mockgen -source=transport.go -destination=mock_transport_test.go -package=bus
package bus

import (
	"context"
	"time"
)

// Events are the callbacks a Transport reports connection state and inbound
// messages through. They may be called from transport goroutines.
type Events struct {
	OnConnect func()
	OnLost    func(err error)
	OnMessage func(topic string, payload []byte)
}

// Transport is a topic based publish/subscribe connection.
type Transport interface {
	// Connect establishes the first connection. Later reconnects are the
	// transport's own business and are reported through events.
	Connect(ctx context.Context, events Events) error
	Subscribe(filters []string) error
	Publish(topic string, payload []byte) error
	Close(timeout time.Duration)
}
