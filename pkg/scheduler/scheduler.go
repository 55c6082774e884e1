// Package scheduler fires the periodic sync and the daily suggestion.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/reelwatch/reelwatch/internal/utils"
	"github.com/reelwatch/reelwatch/pkg/polling"
	"github.com/reelwatch/reelwatch/pkg/storage"
)

const (
	DefaultInterval = 15 * time.Minute
	DefaultDailyAt  = "09:00"
)

// Syncer is satisfied by *polling.Engine.
type Syncer interface {
	SyncNewRecords(ctx context.Context) (*polling.Result, error)
}

// Announcer is satisfied by *notify.Notifier.
type Announcer interface {
	AnnounceBatch(ctx context.Context, movies []storage.Movie) error
	AnnounceRandomPick(ctx context.Context) (bool, error)
}

type Config struct {
	Sync     Syncer
	Notifier Announcer
	// Interval between sync firings; the first one runs immediately.
	Interval time.Duration
	// DailyAt is the "HH:MM" wall-clock time of the suggestion in Location.
	DailyAt  string
	Location *time.Location
	Log      logrus.FieldLogger
}

type Scheduler struct {
	sync     Syncer
	notifier Announcer
	interval time.Duration
	hour     int
	minute   int
	loc      *time.Location
	log      logrus.FieldLogger

	wg sync.WaitGroup
}

func New(cfg Config) (*Scheduler, error) {
	if cfg.Sync == nil || cfg.Notifier == nil {
		return nil, errors.New("scheduler: sync engine and notifier are required")
	}
	s := &Scheduler{
		sync:     cfg.Sync,
		notifier: cfg.Notifier,
		interval: cfg.Interval,
		loc:      cfg.Location,
		log:      cfg.Log,
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.log == nil {
		s.log = utils.Discard
	}
	dailyAt := cfg.DailyAt
	if dailyAt == "" {
		dailyAt = DefaultDailyAt
	}
	var err error
	if s.hour, s.minute, err = ParseDailyAt(dailyAt); err != nil {
		return nil, err
	}
	return s, nil
}

// ParseDailyAt parses "HH:MM" (24h).
func ParseDailyAt(s string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid daily time %q, want HH:MM", s)
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in daily time %q", s)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in daily time %q", s)
	}
	return hour, minute, nil
}

// NextDaily returns the first hour:minute in loc strictly after t.
func NextDaily(t time.Time, hour, minute int, loc *time.Location) time.Time {
	local := t.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

// Run blocks until ctx is cancelled, then waits for in-flight firings.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Infof("Scheduler started (sync every %s, suggestion daily at %02d:%02d %s)", s.interval, s.hour, s.minute, s.loc)

	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		s.intervalLoop(ctx)
	}()
	go func() {
		defer loops.Done()
		s.dailyLoop(ctx)
	}()
	loops.Wait()
	s.wg.Wait()
	s.log.Infof("Scheduler stopped")
}

func (s *Scheduler) intervalLoop(ctx context.Context) {
	s.fire(ctx, s.syncFiring)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, s.syncFiring)
		}
	}
}

func (s *Scheduler) dailyLoop(ctx context.Context) {
	for {
		next := NextDaily(time.Now(), s.hour, s.minute, s.loc)
		s.log.Debugf("Next suggestion at %s", next.Format(time.RFC3339))
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.fire(ctx, s.suggestionFiring)
		}
	}
}

// fire runs job in its own goroutine so a slow firing never delays the next
// tick. Overlapping syncs are resolved by the engine's guard.
func (s *Scheduler) fire(ctx context.Context, job func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Errorf("Scheduled job panicked: %v", r)
			}
		}()
		job(ctx)
	}()
}

func (s *Scheduler) syncFiring(ctx context.Context) {
	if _, err := s.TriggerSync(ctx); err != nil {
		if errors.Is(err, polling.ErrSyncInProgress) {
			s.log.Infof("Previous sync still running, skipping this one")
			return
		}
		s.log.Errorf("Scheduled sync failed: %v", err)
	}
}

func (s *Scheduler) suggestionFiring(ctx context.Context) {
	if _, err := s.TriggerSuggestion(ctx); err != nil {
		s.log.Errorf("Daily suggestion failed: %v", err)
	}
}

// TriggerSync runs one sync and announces what it inserted, including the
// movies stored before a mid-run failure.
func (s *Scheduler) TriggerSync(ctx context.Context) (*polling.Result, error) {
	res, err := s.sync.SyncNewRecords(ctx)
	if res != nil && len(res.New) > 0 {
		if aerr := s.notifier.AnnounceBatch(ctx, res.New); aerr != nil {
			s.log.Warnf("Some announcements failed: %v", aerr)
		}
	}
	return res, err
}

// TriggerSuggestion announces one random stored movie.
func (s *Scheduler) TriggerSuggestion(ctx context.Context) (bool, error) {
	return s.notifier.AnnounceRandomPick(ctx)
}
