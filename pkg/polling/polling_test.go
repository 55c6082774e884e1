package polling

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reelwatch/reelwatch/pkg/provider"
	"github.com/reelwatch/reelwatch/pkg/provider/tmdb"
	"github.com/reelwatch/reelwatch/pkg/storage"
)

type fakeProvider struct {
	mu          sync.Mutex
	items       []provider.RawItem
	batchErr    error
	detailErr   map[int64]error
	detailCalls map[int64]int
	// started is closed on the first FetchCurrentBatch; the call then waits on release.
	started chan struct{}
	release chan struct{}
}

func newFakeProvider(items ...provider.RawItem) *fakeProvider {
	return &fakeProvider{items: items, detailErr: map[int64]error{}, detailCalls: map[int64]int{}}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) FetchCurrentBatch(ctx context.Context) ([]provider.RawItem, error) {
	p.mu.Lock()
	started, release := p.started, p.release
	p.started = nil
	p.mu.Unlock()
	if started != nil {
		close(started)
		<-release
	}
	if p.batchErr != nil {
		return nil, p.batchErr
	}
	return append([]provider.RawItem(nil), p.items...), nil
}

func (p *fakeProvider) FetchDetails(ctx context.Context, id int64) (provider.RawDetail, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detailCalls[id]++
	if err := p.detailErr[id]; err != nil {
		return provider.RawDetail{}, err
	}
	return provider.RawDetail{JSON: `{"overview":"details","credits":{"cast":[{"name":"Someone"}]}}`}, nil
}

func (p *fakeProvider) SearchByTitle(ctx context.Context, title string) (provider.SearchResult, error) {
	return provider.SearchResult{}, provider.ErrNotFound
}

func (p *fakeProvider) Normalize(item provider.RawItem, detail provider.RawDetail) storage.Movie {
	return tmdb.Normalize(item, detail, "")
}

func (p *fakeProvider) calls(id int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.detailCalls[id]
}

func item(id int64, title string) provider.RawItem {
	return provider.RawItem{ID: id, Title: title, ReleaseDate: "2024-03-15"}
}

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "sync.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	p := newFakeProvider(item(3, "Third"), item(1, "First"), item(2, "Second"))
	e := NewEngine(Config{Provider: p, Store: db})

	first, err := e.SyncNewRecords(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, first.Fetched)
	require.Len(t, first.New, 3)
	// provider order, not id order
	require.EqualValues(t, 3, first.New[0].ExternalID)
	require.EqualValues(t, 1, first.New[1].ExternalID)
	require.EqualValues(t, 2, first.New[2].ExternalID)
	require.Equal(t, "2024", first.New[0].Year)
	require.NotEmpty(t, first.RunID)

	for i := 0; i < 3; i++ {
		again, err := e.SyncNewRecords(ctx)
		require.NoError(t, err)
		require.Empty(t, again.New)
		require.Equal(t, 3, again.Skipped)
	}

	// known ids never hit the details endpoint again
	for _, id := range []int64{1, 2, 3} {
		require.Equal(t, 1, p.calls(id))
	}

	acts, err := db.RecentActivities(ctx, 10)
	require.NoError(t, err)
	require.Len(t, acts, 4)
	require.Equal(t, "sync", acts[0].Action)
	require.EqualValues(t, 0, acts[0].Details["new"])
	require.EqualValues(t, 3, acts[3].Details["new"])
}

func TestSameIDAcrossSyncsIsStoredOnce(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	p := newFakeProvider(item(42, "Answer"))
	e := NewEngine(Config{Provider: p, Store: db})

	_, err := e.SyncNewRecords(ctx)
	require.NoError(t, err)

	p.items = []provider.RawItem{item(42, "Answer (re-release)"), item(43, "Other")}
	res, err := e.SyncNewRecords(ctx)
	require.NoError(t, err)
	require.Len(t, res.New, 1)
	require.EqualValues(t, 43, res.New[0].ExternalID)

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Movies)

	stored, err := db.GetMovie(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, "Answer", stored.Title)
}

func TestBatchFailureAbortsRun(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	p := newFakeProvider(item(1, "x"))
	p.batchErr = errors.New("connection refused")
	e := NewEngine(Config{Provider: p, Store: db})

	res, err := e.SyncNewRecords(ctx)
	require.ErrorIs(t, err, p.batchErr)
	require.NotNil(t, res)
	require.Empty(t, res.New)

	acts, err := db.RecentActivities(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "connection refused", acts[0].Details["error"])

	// the next firing is unaffected
	p.batchErr = nil
	res, err = e.SyncNewRecords(ctx)
	require.NoError(t, err)
	require.Len(t, res.New, 1)
}

func TestDetailFailureKeepsEarlierInserts(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	p := newFakeProvider(item(1, "ok"), item(2, "broken"), item(3, "never reached"))
	p.detailErr[2] = errors.New("timeout")
	e := NewEngine(Config{Provider: p, Store: db})

	res, err := e.SyncNewRecords(ctx)
	require.Error(t, err)
	require.Len(t, res.New, 1)
	require.EqualValues(t, 1, res.New[0].ExternalID)
	require.Equal(t, 0, p.calls(3))

	delete(p.detailErr, 2)
	res, err = e.SyncNewRecords(ctx)
	require.NoError(t, err)
	require.Len(t, res.New, 2)
}

// racyStore pretends every id is new, but the store's uniqueness constraint
// still rejects the duplicate.
type racyStore struct {
	*storage.DB
}

func (racyStore) Exists(context.Context, int64) (bool, error) { return false, nil }

func TestConflictIsBenign(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	p := newFakeProvider(item(1, "a"), item(2, "b"))
	e := NewEngine(Config{Provider: p, Store: racyStore{db}})

	_, err := e.SyncNewRecords(ctx)
	require.NoError(t, err)

	res, err := e.SyncNewRecords(ctx)
	require.NoError(t, err)
	require.Empty(t, res.New)
	require.Equal(t, 2, res.Conflicts)
}

func TestOverlapSkip(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	p := newFakeProvider(item(1, "a"))
	p.started = make(chan struct{})
	p.release = make(chan struct{})
	started := p.started
	e := NewEngine(Config{Provider: p, Store: db})

	done := make(chan error, 1)
	go func() {
		_, err := e.SyncNewRecords(ctx)
		done <- err
	}()
	<-started

	_, err := e.SyncNewRecords(ctx)
	require.ErrorIs(t, err, ErrSyncInProgress)

	close(p.release)
	require.NoError(t, <-done)

	// guard is free again
	_, err = e.SyncNewRecords(ctx)
	require.NoError(t, err)
}

func TestOverlapQueueWaits(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	p := newFakeProvider(item(1, "a"))
	p.started = make(chan struct{})
	p.release = make(chan struct{})
	started := p.started
	e := NewEngine(Config{Provider: p, Store: db, Overlap: OverlapQueue})

	first := make(chan *Result, 1)
	go func() {
		res, _ := e.SyncNewRecords(ctx)
		first <- res
	}()
	<-started

	second := make(chan *Result, 1)
	go func() {
		res, _ := e.SyncNewRecords(ctx)
		second <- res
	}()

	select {
	case <-second:
		t.Fatal("queued run finished while the first one was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(p.release)
	require.Len(t, (<-first).New, 1)
	require.Empty(t, (<-second).New)
}

func TestQueuedRunHonoursContext(t *testing.T) {
	db := openDB(t)
	e := NewEngine(Config{Provider: newFakeProvider(), Store: db, Overlap: OverlapQueue})
	e.guard <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := e.SyncNewRecords(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type busyLock struct{ unlocked int }

func (l *busyLock) TryLock() (bool, error)     { return false, nil }
func (l *busyLock) Lock(context.Context) error { return errors.New("busy") }
func (l *busyLock) Unlock() error              { l.unlocked++; return nil }

func TestFileLockHeldElsewhere(t *testing.T) {
	db := openDB(t)
	p := newFakeProvider(item(1, "a"))
	e := NewEngine(Config{Provider: p, Store: db, FileLock: &busyLock{}})

	_, err := e.SyncNewRecords(context.Background())
	require.ErrorIs(t, err, ErrSyncInProgress)
	require.Equal(t, 0, p.calls(1))

	// the in-process guard was released
	require.Len(t, e.guard, 0)
}

func TestParseOverlapMode(t *testing.T) {
	m, err := ParseOverlapMode("")
	require.NoError(t, err)
	require.Equal(t, OverlapSkip, m)
	m, err = ParseOverlapMode("queue")
	require.NoError(t, err)
	require.Equal(t, OverlapQueue, m)
	_, err = ParseOverlapMode("parallel")
	require.Error(t, err)
}
