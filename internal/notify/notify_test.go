package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisherPublish(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, logger: slog.Default()}

	event := Event{
		RunID:       "6f1c7f5e-0000-4000-8000-000000000001",
		Operation:   "add",
		Repository:  "/srv/repo",
		Revision:    1700000000,
		Packages:    12,
		PublishedAt: time.Unix(1700000000, 0).UTC(),
	}
	require.NoError(t, p.Publish(context.Background(), event))
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "/srv/repo", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, event.RunID, string(msg.Headers[0].Value))

	var got Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, event, got)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisherError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker unavailable")}
	p := &KafkaPublisher{writer: w, logger: slog.Default()}

	err := p.Publish(context.Background(), Event{RunID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unavailable")
}

func TestNew(t *testing.T) {
	assert.IsType(t, Nop{}, New(nil, "repodata.published"))
	assert.IsType(t, &KafkaPublisher{}, New([]string{"localhost:9092"}, "repodata.published"))
	assert.NoError(t, Nop{}.Publish(context.Background(), Event{}))
}
