package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	written []kafkago.Message
	err     error
	closed  bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func newTestPublisher(w *fakeWriter) (*KafkaPublisher, *int) {
	created := 0
	p := NewKafkaPublisher(Config{Brokers: []string{"localhost:9092"}, Topic: "leaseiq.contracts"})
	p.newWriter = func(brokers []string, topic string) messageWriter {
		created++
		return w
	}
	return p, &created
}

func TestNewPublisherWithoutBrokersIsNoop(t *testing.T) {
	p := NewPublisher(Config{Topic: "t"})
	_, ok := p.(Noop)
	assert.True(t, ok)
	assert.NoError(t, p.Publish(context.Background(), New(ContractAnalyzed, "t1", "c1", nil)))
	assert.NoError(t, p.Close())
}

func TestNewPublisherWithBrokers(t *testing.T) {
	p := NewPublisher(Config{Brokers: []string{"kafka:9092"}, Topic: "t"})
	kp, ok := p.(*KafkaPublisher)
	require.True(t, ok)
	assert.Equal(t, []string{"kafka:9092"}, kp.brokers)
	assert.Nil(t, kp.writer, "writer is created lazily")
}

func TestPublishWritesKeyedMessages(t *testing.T) {
	w := &fakeWriter{}
	p, created := newTestPublisher(w)

	e := New(ContractAnalyzed, "tenant-a", "contract-1", map[string]int{"score": 58})
	require.NoError(t, p.Publish(context.Background(), e))
	require.NoError(t, p.Publish(context.Background(), New(ContractDeleted, "tenant-a", "contract-1", nil)))

	assert.Equal(t, 1, *created)
	require.Len(t, w.written, 2)

	msg := w.written[0]
	assert.Equal(t, "contract-1", string(msg.Key))
	assert.Contains(t, msg.Headers, kafkago.Header{Key: "event-type", Value: []byte(ContractAnalyzed)})

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, "tenant-a", decoded.Tenant)
	assert.Equal(t, map[string]any{"score": float64(58)}, decoded.Payload)
}

func TestPublishEmptyIsNoop(t *testing.T) {
	w := &fakeWriter{}
	p, created := newTestPublisher(w)

	require.NoError(t, p.Publish(context.Background()))
	assert.Zero(t, *created)
}

func TestPublishWrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	p, _ := newTestPublisher(&fakeWriter{err: boom})

	err := p.Publish(context.Background(), New(ContractFailed, "t", "c", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "leaseiq.contracts")
}

func TestPublishUnmarshalablePayload(t *testing.T) {
	p, _ := newTestPublisher(&fakeWriter{})
	err := p.Publish(context.Background(), New(ContractAnalyzed, "t", "c", make(chan int)))
	assert.Error(t, err)
}

func TestClose(t *testing.T) {
	w := &fakeWriter{}
	p, _ := newTestPublisher(w)

	require.NoError(t, p.Close(), "closing before first publish")
	assert.False(t, w.closed)

	require.NoError(t, p.Publish(context.Background(), New(ContractAnalyzed, "t", "c", nil)))
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewEvent(t *testing.T) {
	a := New(ContractAnalyzed, "t", "c", nil)
	b := New(ContractAnalyzed, "t", "c", nil)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.OccurredAt.IsZero())
}
