package evallog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/cv-rag/internal/domain"
)

type fakeProducer struct {
	records  []*kgo.Record
	produced []context.Context
	flushed  bool
	closed   bool
	flushErr error
	order    []string
}

func (f *fakeProducer) Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	f.produced = append(f.produced, ctx)
	f.records = append(f.records, r)
	if promise != nil {
		promise(r, nil)
	}
}

func (f *fakeProducer) Flush(context.Context) error {
	f.flushed = true
	f.order = append(f.order, "flush")
	return f.flushErr
}

func (f *fakeProducer) Close() {
	f.closed = true
	f.order = append(f.order, "close")
}

func TestKafkaSinkAppendKeysBySession(t *testing.T) {
	t.Parallel()

	fake := &fakeProducer{}
	sink := &KafkaSink{client: fake, topic: "cv-rag.evals"}

	rec := domain.EvalRecord{
		TS:        time.Now().UTC(),
		Query:     "Who knows Go?",
		SessionID: "sess_1",
		Mode:      "local",
	}
	require.NoError(t, sink.Append(context.Background(), rec))

	require.Len(t, fake.records, 1)
	r := fake.records[0]
	assert.Equal(t, "cv-rag.evals", r.Topic)
	assert.Equal(t, "sess_1", string(r.Key))
	var got domain.EvalRecord
	require.NoError(t, json.Unmarshal(r.Value, &got))
	assert.Equal(t, "Who knows Go?", got.Query)
}

func TestKafkaSinkAppendDetachesContext(t *testing.T) {
	t.Parallel()

	fake := &fakeProducer{}
	sink := &KafkaSink{client: fake, topic: "cv-rag.evals"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, sink.Append(ctx, domain.EvalRecord{SessionID: "sess_1"}))

	// The produce context must outlive the request context, otherwise a
	// client disconnect drops the buffered record.
	require.Len(t, fake.produced, 1)
	assert.NoError(t, fake.produced[0].Err())
}

func TestKafkaSinkCloseFlushesBeforeClosing(t *testing.T) {
	t.Parallel()

	fake := &fakeProducer{}
	sink := &KafkaSink{client: fake, topic: "cv-rag.evals"}

	require.NoError(t, sink.Close())
	assert.True(t, fake.flushed)
	assert.True(t, fake.closed)
	assert.Equal(t, []string{"flush", "close"}, fake.order)
}

func TestKafkaSinkCloseReportsFlushFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeProducer{flushErr: context.DeadlineExceeded}
	sink := &KafkaSink{client: fake, topic: "cv-rag.evals"}

	err := sink.Close()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	// The client is still closed even when the flush times out.
	assert.True(t, fake.closed)
}
