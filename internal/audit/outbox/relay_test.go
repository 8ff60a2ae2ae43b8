package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokergate/internal/audit"
)

type fakeSource struct {
	rows      []audit.OutboxRow
	published map[uuid.UUID]bool
	pendErr   error
	markErr   error
}

func newFakeSource(rows ...audit.OutboxRow) *fakeSource {
	return &fakeSource{rows: rows, published: map[uuid.UUID]bool{}}
}

func (f *fakeSource) PendingOutbox(_ context.Context, limit int) ([]audit.OutboxRow, error) {
	if f.pendErr != nil {
		return nil, f.pendErr
	}
	var pending []audit.OutboxRow
	for _, row := range f.rows {
		if !f.published[row.ID] {
			pending = append(pending, row)
		}
		if len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (f *fakeSource) MarkPublished(_ context.Context, ids []uuid.UUID) error {
	if f.markErr != nil {
		return f.markErr
	}
	for _, id := range ids {
		f.published[id] = true
	}
	return nil
}

type fakeProducer struct {
	keys    []string
	failKey string
	err     error
}

func (p *fakeProducer) Produce(_ context.Context, key string, _ []byte) error {
	if key == p.failKey {
		return p.err
	}
	p.keys = append(p.keys, key)
	return nil
}

func row() audit.OutboxRow {
	return audit.OutboxRow{
		ID:      uuid.New(),
		EntryID: uuid.New(),
		Payload: []byte(`{"entity_kind":"claim"}`),
	}
}

func testRelay(source Source, producer Producer) *Relay {
	return NewRelay(source, producer, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDrain_PublishesInOrder(t *testing.T) {
	first, second, third := row(), row(), row()
	source := newFakeSource(first, second, third)
	producer := &fakeProducer{}

	relay := testRelay(source, producer)
	require.NoError(t, relay.drain(context.Background()))

	assert.Equal(t, []string{
		first.EntryID.String(),
		second.EntryID.String(),
		third.EntryID.String(),
	}, producer.keys)
	assert.True(t, source.published[first.ID])
	assert.True(t, source.published[second.ID])
	assert.True(t, source.published[third.ID])
}

func TestDrain_EmptyOutboxIsNoop(t *testing.T) {
	producer := &fakeProducer{}
	relay := testRelay(newFakeSource(), producer)

	require.NoError(t, relay.drain(context.Background()))
	assert.Empty(t, producer.keys)
}

func TestDrain_StopsAtFirstProduceFailure(t *testing.T) {
	first, second, third := row(), row(), row()
	source := newFakeSource(first, second, third)
	produceErr := errors.New("broker unreachable")
	producer := &fakeProducer{failKey: second.EntryID.String(), err: produceErr}

	relay := testRelay(source, producer)
	err := relay.drain(context.Background())
	require.ErrorIs(t, err, produceErr)

	// The prefix before the failure is marked; the failed row and everything
	// after it stay pending for the next tick.
	assert.True(t, source.published[first.ID])
	assert.False(t, source.published[second.ID])
	assert.False(t, source.published[third.ID])
}

func TestDrain_ResumesAfterFailure(t *testing.T) {
	first, second := row(), row()
	source := newFakeSource(first, second)
	produceErr := errors.New("broker unreachable")
	producer := &fakeProducer{failKey: second.EntryID.String(), err: produceErr}

	relay := testRelay(source, producer)
	require.Error(t, relay.drain(context.Background()))

	producer.failKey = ""
	require.NoError(t, relay.drain(context.Background()))

	assert.True(t, source.published[second.ID])
	// The first row was produced exactly once.
	assert.Equal(t, []string{first.EntryID.String(), second.EntryID.String()}, producer.keys)
}

func TestDrain_SourceErrorPropagates(t *testing.T) {
	source := newFakeSource()
	source.pendErr = errors.New("db down")

	relay := testRelay(source, &fakeProducer{})
	assert.ErrorIs(t, relay.drain(context.Background()), source.pendErr)
}

func TestDrain_LoopsThroughFullBatches(t *testing.T) {
	var rows []audit.OutboxRow
	for i := 0; i < 5; i++ {
		rows = append(rows, row())
	}
	source := newFakeSource(rows...)
	producer := &fakeProducer{}

	relay := testRelay(source, producer)
	relay.batch = 2
	require.NoError(t, relay.drain(context.Background()))

	assert.Len(t, producer.keys, 5)
	for _, r := range rows {
		assert.True(t, source.published[r.ID])
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	relay := testRelay(newFakeSource(), &fakeProducer{})
	err := relay.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
