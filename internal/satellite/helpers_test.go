package satellite

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

type published struct {
	Topic   string
	Payload map[string]any
}

// recorder is an in-memory Publisher keeping messages in publish order.
type recorder struct {
	t    *testing.T
	msgs []published
}

func (r *recorder) Publish(topic string, v any) error {
	data, err := json.Marshal(v)
	require.NoError(r.t, err)

	var payload map[string]any
	require.NoError(r.t, json.Unmarshal(data, &payload))
	r.msgs = append(r.msgs, published{Topic: topic, Payload: payload})
	return nil
}

func (r *recorder) topics() []string {
	out := make([]string, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Topic)
	}
	return out
}

func (r *recorder) last() published {
	require.NotEmpty(r.t, r.msgs)
	return r.msgs[len(r.msgs)-1]
}

func (r *recorder) reset() { r.msgs = nil }

type reply struct {
	Recipient string
	Text      string
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *recorder, *[]reply) {
	t.Helper()
	rec := &recorder{t: t}
	d := NewDispatcher(slog.New(slog.NewTextHandler(io.Discard, nil)), rec, "default")

	var replies []reply
	d.Subscribe(func(recipient, text string) {
		replies = append(replies, reply{Recipient: recipient, Text: text})
	})
	return d, rec, &replies
}

func mustID(t *testing.T, name string) string {
	t.Helper()
	id, err := DeriveID(name)
	require.NoError(t, err)
	return id
}

func payload(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
