package polling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/reelwatch/reelwatch/internal/metrics"
	"github.com/reelwatch/reelwatch/internal/utils"
	"github.com/reelwatch/reelwatch/pkg/provider"
	"github.com/reelwatch/reelwatch/pkg/storage"
)

// ErrSyncInProgress is returned in OverlapSkip mode when another run holds the guard.
var ErrSyncInProgress = errors.New("sync already in progress")

// Store is the subset of storage.Store the engine needs.
type Store interface {
	Exists(ctx context.Context, externalID int64) (bool, error)
	InsertMovie(ctx context.Context, m *storage.Movie) error
	LogActivity(ctx context.Context, action string, details map[string]any) error
}

// Locker guards a run across processes. utils.SyncLock satisfies it.
type Locker interface {
	TryLock() (bool, error)
	Lock(ctx context.Context) error
	Unlock() error
}

// OverlapMode decides what a run does when another one is still going.
type OverlapMode string

const (
	OverlapSkip  OverlapMode = "skip"
	OverlapQueue OverlapMode = "queue"
)

// ParseOverlapMode accepts "skip" and "queue"; empty means skip.
func ParseOverlapMode(s string) (OverlapMode, error) {
	switch OverlapMode(s) {
	case "", OverlapSkip:
		return OverlapSkip, nil
	case OverlapQueue:
		return OverlapQueue, nil
	}
	return "", fmt.Errorf("unknown overlap mode %q (want skip or queue)", s)
}

// Config holds everything an Engine needs.
type Config struct {
	Provider provider.Provider
	Store    Store
	Overlap  OverlapMode        // defaults to OverlapSkip
	FileLock Locker             // optional
	Log      logrus.FieldLogger // optional; nil = no logging
}

// Result describes one completed run.
type Result struct {
	RunID     string
	Fetched   int
	Skipped   int // already stored
	Conflicts int // lost an insert race to another writer
	New       []storage.Movie
	Started   time.Time
	Duration  time.Duration
}

// Engine diffs the provider's current batch against the store.
type Engine struct {
	provider provider.Provider
	store    Store
	overlap  OverlapMode
	fileLock Locker
	log      logrus.FieldLogger

	guard chan struct{}
	now   func() time.Time
}

func NewEngine(cfg Config) *Engine {
	log := cfg.Log
	if log == nil {
		log = utils.Discard
	}
	overlap := cfg.Overlap
	if overlap == "" {
		overlap = OverlapSkip
	}
	return &Engine{
		provider: cfg.Provider,
		store:    cfg.Store,
		overlap:  overlap,
		fileLock: cfg.FileLock,
		log:      log,
		guard:    make(chan struct{}, 1),
		now:      time.Now,
	}
}

// SyncNewRecords fetches the current batch and stores every item whose
// external id is not stored yet. Known ids are skipped before their details
// are fetched. New movies come back in provider order.
//
// A failure part way through returns the error together with a Result holding
// the movies inserted before it, so they can still be announced.
func (e *Engine) SyncNewRecords(ctx context.Context) (*Result, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			metrics.SyncRuns.WithLabelValues("skipped").Inc()
		}
		return nil, err
	}
	defer release()

	res := &Result{RunID: uuid.NewString(), Started: e.now(), New: []storage.Movie{}}
	err = e.run(ctx, res)
	res.Duration = e.now().Sub(res.Started)

	details := map[string]any{
		"run_id":    res.RunID,
		"provider":  e.provider.Name(),
		"fetched":   res.Fetched,
		"new":       len(res.New),
		"skipped":   res.Skipped,
		"conflicts": res.Conflicts,
	}
	if err != nil {
		metrics.SyncRuns.WithLabelValues("error").Inc()
		details["error"] = err.Error()
	} else {
		metrics.RecordSyncSuccess(len(res.New), res.Duration, e.now())
	}
	// The run is already over; a detached context keeps the log entry from
	// being lost to a cancelled parent.
	if lerr := e.store.LogActivity(context.WithoutCancel(ctx), "sync", details); lerr != nil {
		e.log.Warnf("Could not log sync run %s: %v", res.RunID, lerr)
	}

	if err != nil {
		return res, err
	}
	e.log.Infof("Sync %s: %d fetched, %d new, %d already stored", res.RunID, res.Fetched, len(res.New), res.Skipped)
	return res, nil
}

func (e *Engine) run(ctx context.Context, res *Result) error {
	batch, err := e.provider.FetchCurrentBatch(ctx)
	if err != nil {
		return err
	}
	res.Fetched = len(batch)

	for _, item := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}

		exists, err := e.store.Exists(ctx, item.ID)
		if err != nil {
			return fmt.Errorf("check %d: %w", item.ID, err)
		}
		if exists {
			res.Skipped++
			continue
		}

		detail, err := e.provider.FetchDetails(ctx, item.ID)
		if err != nil {
			return err
		}
		movie := e.provider.Normalize(item, detail)

		if err := e.store.InsertMovie(ctx, &movie); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				e.log.Debugf("Movie %d was stored by a concurrent writer, skipping", item.ID)
				res.Conflicts++
				continue
			}
			return fmt.Errorf("store %d: %w", item.ID, err)
		}
		e.log.Debugf("New movie %d: %s", movie.ExternalID, movie.Title)
		res.New = append(res.New, movie)
	}
	return nil
}

// acquire takes the in-process guard and then the optional file lock, both
// honouring the overlap mode.
func (e *Engine) acquire(ctx context.Context) (func(), error) {
	switch e.overlap {
	case OverlapQueue:
		select {
		case e.guard <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	default:
		select {
		case e.guard <- struct{}{}:
		default:
			return nil, ErrSyncInProgress
		}
	}
	releaseGuard := func() { <-e.guard }

	if e.fileLock == nil {
		return releaseGuard, nil
	}

	if e.overlap == OverlapQueue {
		if err := e.fileLock.Lock(ctx); err != nil {
			releaseGuard()
			return nil, err
		}
	} else {
		locked, err := e.fileLock.TryLock()
		if err != nil {
			releaseGuard()
			return nil, err
		}
		if !locked {
			releaseGuard()
			return nil, ErrSyncInProgress
		}
	}

	return func() {
		if err := e.fileLock.Unlock(); err != nil {
			e.log.Warnf("%v", err)
		}
		releaseGuard()
	}, nil
}
