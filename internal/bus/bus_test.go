package bus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"hermes-text/pkg/hermes"
)

var testFilters = []string{"hermes/tts/#"}

func newTestBus(t *testing.T) (*Bus, *MockTransport, *Events) {
	t.Helper()
	ctrl := gomock.NewController(t)
	transport := NewMockTransport(ctrl)
	b := New(slog.New(slog.NewTextHandler(io.Discard, nil)), transport, testFilters)

	var events Events
	transport.EXPECT().Connect(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, ev Events) error {
			events = ev
			return nil
		}).Times(1)
	require.NoError(t, b.Connect(context.Background()))
	return b, transport, &events
}

func site(id string) hermes.SiteMessage { return hermes.SiteMessage{SiteID: id} }

func TestBus_QueuesUntilConnected(t *testing.T) {
	req := require.New(t)
	b, transport, events := newTestBus(t)

	// Given the transport has not reported a connection yet
	req.NoError(b.Publish("t/1", site("a")))
	req.NoError(b.Publish("t/2", site("b")))
	req.NoError(b.Publish("t/3", site("c")))
	req.Equal(3, b.Pending())
	req.False(b.Connected())

	// When it connects, subscriptions come first and the outbox drains in order
	gomock.InOrder(
		transport.EXPECT().Subscribe(testFilters).Return(nil),
		transport.EXPECT().Publish("t/1", []byte(`{"siteId":"a"}`)).Return(nil),
		transport.EXPECT().Publish("t/2", []byte(`{"siteId":"b"}`)).Return(nil),
		transport.EXPECT().Publish("t/3", []byte(`{"siteId":"c"}`)).Return(nil),
	)
	events.OnConnect()

	req.Zero(b.Pending())
	req.True(b.Connected())
}

func TestBus_PublishesDirectlyWhenConnected(t *testing.T) {
	req := require.New(t)
	b, transport, events := newTestBus(t)

	transport.EXPECT().Subscribe(testFilters).Return(nil)
	events.OnConnect()

	transport.EXPECT().Publish("t/1", []byte(`{"siteId":"a"}`)).Return(nil)
	req.NoError(b.Publish("t/1", site("a")))
	req.Zero(b.Pending())
}

func TestBus_QueuesWhileDisconnected(t *testing.T) {
	req := require.New(t)
	b, transport, events := newTestBus(t)

	transport.EXPECT().Subscribe(testFilters).Return(nil).Times(2)
	events.OnConnect()

	// Given the connection drops
	events.OnLost(errors.New("broker went away"))
	req.False(b.Connected())

	// When publishing, messages wait
	req.NoError(b.Publish("t/1", site("a")))
	req.NoError(b.Publish("t/2", site("b")))
	req.Equal(2, b.Pending())

	// Then they go out in order on reconnect
	gomock.InOrder(
		transport.EXPECT().Publish("t/1", gomock.Any()).Return(nil),
		transport.EXPECT().Publish("t/2", gomock.Any()).Return(nil),
	)
	events.OnConnect()
	req.Zero(b.Pending())
}

func TestBus_FailedSendIsRetriedWithoutReconnect(t *testing.T) {
	req := require.New(t)
	b, transport, events := newTestBus(t)
	b.backoff = BackoffConfig{InitialDelay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: 40 * time.Millisecond}

	transport.EXPECT().Subscribe(testFilters).Return(nil)
	events.OnConnect()

	// Given the transport times out once while the link stays up
	gomock.InOrder(
		transport.EXPECT().Publish("t/1", gomock.Any()).Return(ErrTimeout),
		transport.EXPECT().Publish("t/1", gomock.Any()).Return(nil),
		transport.EXPECT().Publish("t/2", gomock.Any()).Return(nil),
		transport.EXPECT().Publish("t/3", gomock.Any()).Return(nil),
	)
	req.NoError(b.Publish("t/1", site("a")))
	req.True(b.Connected())

	// When more publishes follow, they queue behind the failed one
	req.NoError(b.Publish("t/2", site("b")))
	req.NoError(b.Publish("t/3", site("c")))

	// Then the outbox drains in order with no reconnect event
	req.Eventually(func() bool { return b.Pending() == 0 }, 2*time.Second, 5*time.Millisecond)
	req.True(b.Connected())
}

func TestBus_RetryWaitsForReconnectWhenLost(t *testing.T) {
	req := require.New(t)
	b, transport, events := newTestBus(t)
	b.backoff = BackoffConfig{InitialDelay: 5 * time.Millisecond, Multiplier: 1, MaxDelay: 5 * time.Millisecond}

	transport.EXPECT().Subscribe(testFilters).Return(nil).Times(2)
	events.OnConnect()

	// Given a failed send followed by a lost link
	transport.EXPECT().Publish("t/1", gomock.Any()).Return(errors.New("write: broken pipe"))
	req.NoError(b.Publish("t/1", site("a")))
	events.OnLost(errors.New("broken pipe"))

	// Then the retry does not send while disconnected
	time.Sleep(30 * time.Millisecond)
	req.Equal(1, b.Pending())

	// And the reconnect flushes
	transport.EXPECT().Publish("t/1", gomock.Any()).Return(nil)
	events.OnConnect()
	req.Zero(b.Pending())
}

func TestBus_InboundNotBlockedBySlowPublish(t *testing.T) {
	req := require.New(t)
	b, transport, events := newTestBus(t)

	got := make(chan string, 1)
	b.Handle(func(topic string, _ []byte) { got <- topic })

	transport.EXPECT().Subscribe(testFilters).Return(nil)
	events.OnConnect()

	// Given a publish stuck inside the transport
	entered := make(chan struct{})
	release := make(chan struct{})
	transport.EXPECT().Publish("t/1", gomock.Any()).DoAndReturn(func(string, []byte) error {
		close(entered)
		<-release
		return nil
	})
	published := make(chan error, 1)
	go func() { published <- b.Publish("t/1", site("a")) }()
	<-entered

	// When a message arrives meanwhile, it is delivered at once
	go events.OnMessage(hermes.TopicSay, []byte(`{"siteId":"a"}`))
	select {
	case topic := <-got:
		req.Equal(hermes.TopicSay, topic)
	case <-time.After(2 * time.Second):
		req.Fail("inbound message waited for the publish")
	}

	close(release)
	req.NoError(<-published)
}

func TestBus_FlushStopsAtFirstError(t *testing.T) {
	req := require.New(t)
	b, transport, events := newTestBus(t)
	b.backoff = BackoffConfig{InitialDelay: time.Hour}

	req.NoError(b.Publish("t/1", site("a")))
	req.NoError(b.Publish("t/2", site("b")))
	req.NoError(b.Publish("t/3", site("c")))

	transport.EXPECT().Subscribe(testFilters).Return(nil).Times(2)
	gomock.InOrder(
		transport.EXPECT().Publish("t/1", gomock.Any()).Return(nil),
		transport.EXPECT().Publish("t/2", gomock.Any()).Return(errors.New("timeout")),
	)
	events.OnConnect()

	pending := b.outbox.List()
	req.Len(pending, 2)
	req.Equal("t/2", pending[0].Topic)
	req.Equal("t/3", pending[1].Topic)

	gomock.InOrder(
		transport.EXPECT().Publish("t/2", gomock.Any()).Return(nil),
		transport.EXPECT().Publish("t/3", gomock.Any()).Return(nil),
	)
	events.OnConnect()
	req.Zero(b.Pending())
}

func TestBus_Close(t *testing.T) {
	req := require.New(t)
	b, transport, events := newTestBus(t)

	transport.EXPECT().Subscribe(testFilters).Return(nil)
	events.OnConnect()

	transport.EXPECT().Close(gomock.Any()).Times(1)
	b.Close(50 * time.Millisecond)
	b.Close(50 * time.Millisecond)

	req.ErrorIs(b.Publish("t/1", site("a")), ErrClosed)
}

func TestBus_CloseWaitsForPending(t *testing.T) {
	req := require.New(t)
	b, transport, events := newTestBus(t)

	req.NoError(b.Publish("t/1", site("a")))

	transport.EXPECT().Subscribe(testFilters).Return(nil)
	transport.EXPECT().Publish("t/1", gomock.Any()).Return(nil)
	transport.EXPECT().Close(gomock.Any())

	go func() {
		time.Sleep(20 * time.Millisecond)
		events.OnConnect()
	}()
	b.Close(time.Second)

	req.Zero(b.Pending())
}

func TestBus_DeliversInbound(t *testing.T) {
	req := require.New(t)
	b, _, events := newTestBus(t)

	var got []string
	b.Handle(func(topic string, payload []byte) {
		got = append(got, topic+" "+string(payload))
	})

	events.OnMessage(hermes.TopicSay, []byte(`{"siteId":"a","text":"hi"}`))
	events.OnMessage(hermes.PlayBytesTopic("a", "r1"), []byte{0x52, 0x49, 0x46, 0x46})

	req.Len(got, 2)
	req.Equal(hermes.TopicSay+` {"siteId":"a","text":"hi"}`, got[0])
}

func TestBus_ConnectError(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := NewMockTransport(ctrl)
	b := New(slog.New(slog.NewTextHandler(io.Discard, nil)), transport, nil)

	transport.EXPECT().Connect(gomock.Any(), gomock.Any()).Return(errors.New("connection refused"))
	require.Error(t, b.Connect(context.Background()))
}

func TestBus_PublishEncodeError(t *testing.T) {
	b, _, _ := newTestBus(t)
	require.Error(t, b.Publish("t/1", make(chan int)))
	require.Zero(t, b.Pending())
}
