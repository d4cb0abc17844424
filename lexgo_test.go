package lexgo

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/lexgo/blobstore"
	"github.com/hupe1980/lexgo/index"
	"github.com/hupe1980/lexgo/persist"
	"github.com/hupe1980/lexgo/reference"
	"github.com/hupe1980/lexgo/reopen"
	"github.com/hupe1980/lexgo/searcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(id string, fields map[string]string) index.Document {
	return index.Document{ID: id, Fields: fields}
}

func TestLexgo_WriteWaitSearch(t *testing.T) {
	ctx := context.Background()
	lx, err := Open(ctx, WithRefreshInterval(10*time.Millisecond, 50*time.Millisecond))
	require.NoError(t, err)
	defer lx.Close()

	gen, err := lx.Add(ctx, doc("order-1", map[string]string{"status": "open"}))
	require.NoError(t, err)
	require.Equal(t, uint64(1), gen)

	start := time.Now()
	require.NoError(t, lx.WaitSearchable(ctx, gen, time.Second))
	// Bounded by the max interval plus scheduling slack.
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	hits, err := lx.Search(searcher.TermQuery{Field: "status", Term: "open"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "order-1", hits[0].ID)
}

func TestLexgo_UpdateAndDeleteVisibility(t *testing.T) {
	ctx := context.Background()
	lx, err := Open(ctx, WithRefreshInterval(5*time.Millisecond, 20*time.Millisecond))
	require.NoError(t, err)
	defer lx.Close()

	_, err = lx.Add(ctx, doc("order-1", map[string]string{"status": "open"}))
	require.NoError(t, err)
	gen, err := lx.Update(ctx, doc("order-1", map[string]string{"status": "closed"}))
	require.NoError(t, err)
	require.NoError(t, lx.WaitSearchable(ctx, gen, time.Second))

	hits, err := lx.Search(searcher.TermQuery{Field: "status", Term: "open"})
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = lx.Search(searcher.TermQuery{Field: "status", Term: "closed"})
	require.NoError(t, err)
	require.Len(t, hits, 1)

	gen, err = lx.Delete(ctx, "order-1")
	require.NoError(t, err)
	require.NoError(t, lx.WaitSearchable(ctx, gen, time.Second))

	hits, err = lx.Search(searcher.MatchAllQuery{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestLexgo_AcquiredSnapshotIsStable(t *testing.T) {
	ctx := context.Background()
	lx, err := Open(ctx, WithRefreshInterval(5*time.Millisecond, 20*time.Millisecond))
	require.NoError(t, err)
	defer lx.Close()

	gen, err := lx.Add(ctx, doc("order-1", map[string]string{"status": "open"}))
	require.NoError(t, err)
	require.NoError(t, lx.WaitSearchable(ctx, gen, time.Second))

	s, err := lx.Acquire()
	require.NoError(t, err)

	// Writes after the acquire never leak into the pinned snapshot.
	gen, err = lx.Add(ctx, doc("order-2", map[string]string{"status": "open"}))
	require.NoError(t, err)
	require.NoError(t, lx.WaitSearchable(ctx, gen, time.Second))

	assert.Equal(t, uint64(1), s.Count(searcher.MatchAllQuery{}))
	require.NoError(t, lx.Release(s))

	s2, err := lx.Acquire()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), s2.Count(searcher.MatchAllQuery{}))
	require.NoError(t, lx.Release(s2))
}

func TestLexgo_ListenerFiresOncePerEffectiveRefresh(t *testing.T) {
	ctx := context.Background()
	lx, err := Open(ctx, WithRefreshInterval(time.Hour, 2*time.Hour))
	require.NoError(t, err)
	defer lx.Close()

	var refreshed, noop atomic.Int64
	lx.AddListener(reference.ListenerFuncs{
		After: func(didRefresh bool) {
			if didRefresh {
				refreshed.Add(1)
			} else {
				noop.Add(1)
			}
		},
	})

	_, err = lx.Add(ctx, doc("order-1", map[string]string{"status": "open"}))
	require.NoError(t, err)

	require.NoError(t, lx.Refresh(ctx))
	assert.Equal(t, int64(1), refreshed.Load())

	// Nothing changed, so the second refresh is a no-op.
	require.NoError(t, lx.Refresh(ctx))
	assert.Equal(t, int64(1), refreshed.Load())
	assert.Equal(t, int64(1), noop.Load())
}

func TestLexgo_CommitAndRestore(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	lx, err := Open(ctx, WithBlobStore(store))
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		_, err := lx.Add(ctx, doc(fmt.Sprintf("order-%d", i), map[string]string{"status": "open"}))
		require.NoError(t, err)
	}
	gen, err := lx.Commit(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), gen)
	require.NoError(t, lx.Close())

	names, err := store.List(ctx, "snap-")
	require.NoError(t, err)
	require.Equal(t, []string{"snap-000001"}, names)

	// A fresh Open picks up the committed snapshot.
	lx2, err := Open(ctx, WithBlobStore(store))
	require.NoError(t, err)
	defer lx2.Close()

	hits, err := lx2.Search(searcher.TermQuery{Field: "status", Term: "open"})
	require.NoError(t, err)
	assert.Len(t, hits, 3)

	// Commit numbering continues after restore.
	_, err = lx2.Add(ctx, doc("order-4", map[string]string{"status": "open"}))
	require.NoError(t, err)
	_, err = lx2.Commit(ctx)
	require.NoError(t, err)

	names, err = store.List(ctx, "snap-")
	require.NoError(t, err)
	assert.Equal(t, []string{"snap-000001", "snap-000002"}, names)
}

func TestLexgo_CommitWithCodecAndLocalStore(t *testing.T) {
	ctx := context.Background()
	store, err := blobstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	lx, err := Open(ctx, WithBlobStore(store), WithCodec(persist.LZ4{}))
	require.NoError(t, err)

	_, err = lx.Add(ctx, doc("order-1", map[string]string{"note": "rush delivery"}))
	require.NoError(t, err)
	_, err = lx.Commit(ctx)
	require.NoError(t, err)
	require.NoError(t, lx.Close())

	lx2, err := Open(ctx, WithBlobStore(store))
	require.NoError(t, err)
	defer lx2.Close()

	hits, err := lx2.Search(searcher.TermQuery{Field: "note", Term: "rush"})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestLexgo_CommitWithoutStore(t *testing.T) {
	ctx := context.Background()
	lx, err := Open(ctx)
	require.NoError(t, err)
	defer lx.Close()

	_, err = lx.Commit(ctx)
	require.ErrorIs(t, err, ErrNoStore)
}

func TestLexgo_WaitTimeout(t *testing.T) {
	ctx := context.Background()
	lx, err := Open(ctx, WithRefreshInterval(5*time.Millisecond, 20*time.Millisecond))
	require.NoError(t, err)
	defer lx.Close()

	// Generation 99 is never produced.
	err = lx.WaitSearchable(ctx, 99, 50*time.Millisecond)
	require.ErrorIs(t, err, reopen.ErrWaitTimeout)
}

func TestLexgo_Close(t *testing.T) {
	ctx := context.Background()
	lx, err := Open(ctx)
	require.NoError(t, err)

	gen, err := lx.Add(ctx, doc("order-1", map[string]string{"status": "open"}))
	require.NoError(t, err)

	require.NoError(t, lx.Close())
	require.ErrorIs(t, lx.Close(), ErrClosed)

	_, err = lx.Add(ctx, doc("order-2", nil))
	require.ErrorIs(t, err, ErrClosed)

	_, err = lx.Commit(ctx)
	require.ErrorIs(t, err, ErrClosed)

	err = lx.WaitSearchable(ctx, gen+1, time.Second)
	require.ErrorIs(t, err, reopen.ErrClosed)

	_, err = lx.Acquire()
	require.ErrorIs(t, err, reference.ErrClosed)
}

func TestLexgo_CloseWakesWaiters(t *testing.T) {
	ctx := context.Background()
	lx, err := Open(ctx, WithRefreshInterval(time.Hour, 2*time.Hour))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = lx.WaitSearchable(ctx, 100, 0)
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, lx.Close())
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, reopen.ErrClosed)
	}
}

func TestLexgo_ConcurrentWritersAndSearchers(t *testing.T) {
	ctx := context.Background()
	lx, err := Open(ctx, WithRefreshInterval(time.Millisecond, 10*time.Millisecond))
	require.NoError(t, err)
	defer lx.Close()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := fmt.Sprintf("w%d-doc%d", w, i)
				_, err := lx.Add(ctx, doc(id, map[string]string{"status": "open"}))
				assert.NoError(t, err)
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s, err := lx.Acquire()
				if !assert.NoError(t, err) {
					return
				}
				_ = s.Count(searcher.TermQuery{Field: "status", Term: "open"})
				assert.NoError(t, lx.Release(s))
			}
		}()
	}
	wg.Wait()

	gen := lx.Generation()
	require.Equal(t, uint64(200), gen)
	require.NoError(t, lx.WaitSearchable(ctx, gen, 2*time.Second))

	hits, err := lx.Search(searcher.MatchAllQuery{})
	require.NoError(t, err)
	assert.Len(t, hits, 200)
}

func TestLexgo_InvalidIntervals(t *testing.T) {
	ctx := context.Background()
	_, err := Open(ctx, WithRefreshInterval(time.Second, time.Millisecond))
	require.ErrorIs(t, err, reopen.ErrInvalidConfig)
}
