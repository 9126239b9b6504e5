package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/identity-resolution-service/internal/observability"
	"github.com/helixir/identity-resolution-service/internal/repository"
	"github.com/helixir/identity-resolution-service/internal/resolver"
)

var metricsSeq atomic.Int64

func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("test_ingest_%d", metricsSeq.Add(1)))
}

// scriptedReader returns queued messages and then blocks until the context is
// cancelled, like a drained Kafka partition.
type scriptedReader struct {
	messages chan kafka.Message
	closed   atomic.Bool
}

func newScriptedReader(msgs ...kafka.Message) *scriptedReader {
	ch := make(chan kafka.Message, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	return &scriptedReader{messages: ch}
}

func (r *scriptedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case msg := <-r.messages:
		return msg, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *scriptedReader) Close() error {
	r.closed.Store(true)
	return nil
}

func candidateMessage(t *testing.T, event CandidateEvent) kafka.Message {
	t.Helper()
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: value}
}

func newTestListener(reader messageReader, store repository.Store) *Listener {
	metrics := newTestMetrics()
	svc := resolver.NewService(store, nil, zerolog.Nop(), metrics)
	return &Listener{
		reader:   reader,
		resolver: svc,
		logger:   zerolog.Nop(),
		metrics:  metrics,
	}
}

func runUntilDrained(t *testing.T, l *Listener, reader *scriptedReader) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	// Wait for the reader to drain, then stop the loop.
	deadline := time.After(5 * time.Second)
	for len(reader.messages) > 0 {
		select {
		case <-deadline:
			t.Fatal("listener did not drain messages in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
	time.Sleep(20 * time.Millisecond)
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListener_ResolvesAndLinks(t *testing.T) {
	store := repository.NewMemoryStore()
	reader := newScriptedReader(
		candidateMessage(t, CandidateEvent{
			ContextID:   "event-1",
			Name:        "Dr. Jane Smith",
			Affiliation: "Harvard University",
			Role:        "speaker",
		}),
		candidateMessage(t, CandidateEvent{
			ContextID:   "event-2",
			Name:        "Jane Smith",
			Affiliation: "Harvard",
			Role:        "panelist",
		}),
	)
	listener := newTestListener(reader, store)

	runUntilDrained(t, listener, reader)

	ctx := context.Background()
	people, err := store.People().ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, people, 1)

	links, err := store.Links().ListByPerson(ctx, people[0].ID)
	require.NoError(t, err)
	assert.Len(t, links, 2)
}

func TestListener_DropsMalformedMessages(t *testing.T) {
	store := repository.NewMemoryStore()
	reader := newScriptedReader(
		kafka.Message{Value: []byte("not json")},
		candidateMessage(t, CandidateEvent{Name: "   "}),
		candidateMessage(t, CandidateEvent{ContextID: "event-1", Name: "John Doe"}),
	)
	listener := newTestListener(reader, store)

	runUntilDrained(t, listener, reader)

	people, err := store.People().ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, "John Doe", people[0].Name)
}

func TestListener_CandidateWithoutContext(t *testing.T) {
	store := repository.NewMemoryStore()
	reader := newScriptedReader(
		candidateMessage(t, CandidateEvent{Name: "Jane Smith"}),
	)
	listener := newTestListener(reader, store)

	runUntilDrained(t, listener, reader)

	ctx := context.Background()
	people, err := store.People().ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, people, 1)

	links, err := store.Links().ListByPerson(ctx, people[0].ID)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestListener_Close(t *testing.T) {
	reader := newScriptedReader()
	listener := newTestListener(reader, repository.NewMemoryStore())

	require.NoError(t, listener.Close())
	assert.True(t, reader.closed.Load())
}
