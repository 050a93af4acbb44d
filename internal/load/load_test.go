package load

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgcompare/internal/model"
	"pgcompare/internal/queue"
)

type fakeInserter struct {
	inserted int64
	fail     bool
}

func (f *fakeInserter) InsertBatch(ctx context.Context, b model.Batch) (int64, error) {
	if f.fail {
		return 0, errors.New("insert failed")
	}
	n := int64(len(b.Rows))
	atomic.AddInt64(&f.inserted, n)
	return n, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoaderDrainsUntilAllShardsSentinel(t *testing.T) {
	q := queue.New(8)
	fake := &fakeInserter{}
	completion := NewCompletion(2)
	l := &Loader{Side: model.SideSource, Completion: completion, Queue: q, Repo: fake, Logger: discardLogger()}

	ctx := context.Background()
	require.NoError(t, q.Put(ctx, model.Batch{Side: model.SideSource, Shard: 0, Rows: []model.RowFingerprint{{TID: 1}, {TID: 2}}}))
	require.NoError(t, q.Put(ctx, model.Batch{Side: model.SideSource, Shard: 1, Rows: []model.RowFingerprint{{TID: 3}}}))
	require.NoError(t, q.Put(ctx, model.Batch{Side: model.SideSource, Shard: 0})) // sentinel
	require.NoError(t, q.Put(ctx, model.Batch{Side: model.SideSource, Shard: 1})) // sentinel

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("loader did not complete")
	}

	assert.EqualValues(t, 3, fake.inserted)
	assert.EqualValues(t, 3, l.RowsLoaded())
}

func TestLoaderDropsFailedBatchAndKeepsDraining(t *testing.T) {
	q := queue.New(8)
	fake := &fakeInserter{fail: true}
	l := &Loader{Side: model.SideSource, Completion: NewCompletion(1), Queue: q, Repo: fake, Logger: discardLogger()}

	ctx := context.Background()
	require.NoError(t, q.Put(ctx, model.Batch{Side: model.SideSource, Shard: 0, Rows: []model.RowFingerprint{{TID: 1}}}))
	require.NoError(t, q.Put(ctx, model.Batch{Side: model.SideSource, Shard: 0})) // sentinel

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("loader did not complete after a failed batch")
	}

	assert.EqualValues(t, 0, fake.inserted)
	assert.EqualValues(t, 0, l.RowsLoaded())
}

func TestLoaderReturnsOnContextCancel(t *testing.T) {
	q := queue.New(1)
	l := &Loader{Side: model.SideSource, Completion: NewCompletion(1), Queue: q, Repo: &fakeInserter{}, Logger: discardLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Run(ctx)
	assert.Error(t, err)
}

func TestMultipleLoadersShareCompletion(t *testing.T) {
	q := queue.New(8)
	fake := &fakeInserter{}
	completion := NewCompletion(2)
	l1 := &Loader{Side: model.SideSource, Completion: completion, Queue: q, Repo: fake, Logger: discardLogger()}
	l2 := &Loader{Side: model.SideSource, Completion: completion, Queue: q, Repo: fake, Logger: discardLogger()}

	ctx := context.Background()
	require.NoError(t, q.Put(ctx, model.Batch{Side: model.SideSource, Shard: 0, Rows: []model.RowFingerprint{{TID: 1}}}))
	require.NoError(t, q.Put(ctx, model.Batch{Side: model.SideSource, Shard: 1, Rows: []model.RowFingerprint{{TID: 2}}}))
	require.NoError(t, q.Put(ctx, model.Batch{Side: model.SideSource, Shard: 0}))
	require.NoError(t, q.Put(ctx, model.Batch{Side: model.SideSource, Shard: 1}))

	done1 := make(chan error, 1)
	done2 := make(chan error, 1)
	go func() { done1 <- l1.Run(ctx) }()
	go func() { done2 <- l2.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case err := <-done1:
			require.NoError(t, err)
			done1 = nil
		case err := <-done2:
			require.NoError(t, err)
			done2 = nil
		case <-time.After(3 * time.Second):
			t.Fatal("loaders did not complete")
		}
	}
	assert.EqualValues(t, 2, fake.inserted)
}
