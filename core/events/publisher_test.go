package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	w := &recordingWriter{}
	p := NewKafkaPublisher(w, zap.NewNop())

	at := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	err := p.Publish(context.Background(), RunEvent{
		RunID:      "20261016T120000Z-abcd1234",
		Stage:      StageSync,
		OK:         true,
		Summary:    map[string]int{"loaded": 2},
		FinishedAt: at,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "20261016T120000Z-abcd1234", string(w.msgs[0].Key))

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "sync", got["stage"])
	assert.Equal(t, true, got["ok"])
	assert.NotContains(t, got, "error")

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisherError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	err := NewKafkaPublisher(w, zap.NewNop()).Publish(context.Background(), RunEvent{RunID: "r"})
	assert.ErrorContains(t, err, "broker down")
}

func TestNewWithoutBrokers(t *testing.T) {
	p := New(Config{Brokers: " , "}, zap.NewNop())
	assert.IsType(t, Nop{}, p)
	assert.NoError(t, p.Publish(context.Background(), RunEvent{}))
	assert.NoError(t, p.Close())
}

func TestNewWithBrokers(t *testing.T) {
	p := New(Config{Brokers: "kafka-1:9092, kafka-2:9092", Topic: "runs"}, zap.NewNop())
	kp, ok := p.(*KafkaPublisher)
	require.True(t, ok)
	w, ok := kp.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "runs", w.Topic)
	assert.NotNil(t, w.Addr)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:1", "b:2"}, splitBrokers("a:1,,b:2 "))
	assert.Nil(t, splitBrokers(""))
}
