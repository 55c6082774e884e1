// Package bot dispatches inbound chat commands and button presses.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/reelwatch/reelwatch/internal/metrics"
	"github.com/reelwatch/reelwatch/internal/utils"
	"github.com/reelwatch/reelwatch/pkg/notify"
	"github.com/reelwatch/reelwatch/pkg/provider"
	"github.com/reelwatch/reelwatch/pkg/storage"
)

// ErrUnauthorized is returned when a non-owner calls an owner-only command.
// The caller has already been told; it is not a fault.
var ErrUnauthorized = errors.New("unauthorized")

const (
	AliveText        = "Bot is running and alive!"
	UnauthorizedText = "Unauthorized to check liveness."
)

// Update is a transport-neutral inbound event. Command is set for
// "/command" messages, CallbackID and CallbackData for button presses.
type Update struct {
	Command      string
	ChatID       int64
	UserID       int64
	CallbackID   string
	CallbackData string
}

// Notifier is what the handlers send through.
type Notifier interface {
	AnnounceBatch(ctx context.Context, movies []storage.Movie) error
	AnnounceRandomPick(ctx context.Context) (bool, error)
	RespondWithDetails(ctx context.Context, userID int64, key string) error
	Reply(ctx context.Context, chat, text string) error
}

// CallbackAnswerer acknowledges button presses.
type CallbackAnswerer interface {
	AnswerCallback(ctx context.Context, callbackID string) error
}

// ActivityLogger records handled commands.
type ActivityLogger interface {
	LogActivity(ctx context.Context, action string, details map[string]any) error
}

type Config struct {
	Provider provider.Provider
	Notifier Notifier
	Answerer CallbackAnswerer
	Activity ActivityLogger
	// OwnerID may run owner-only commands. Zero means nobody can.
	OwnerID int64
	Log     logrus.FieldLogger
}

type Bot struct {
	provider provider.Provider
	notifier Notifier
	answerer CallbackAnswerer
	activity ActivityLogger
	ownerID  int64
	log      logrus.FieldLogger

	wg sync.WaitGroup
}

func New(cfg Config) *Bot {
	b := &Bot{
		provider: cfg.Provider,
		notifier: cfg.Notifier,
		answerer: cfg.Answerer,
		activity: cfg.Activity,
		ownerID:  cfg.OwnerID,
		log:      cfg.Log,
	}
	if b.log == nil {
		b.log = utils.Discard
	}
	return b
}

// Dispatch handles u in its own goroutine. Errors are logged, never returned:
// one failed update must not affect the next.
func (b *Bot) Dispatch(ctx context.Context, u Update) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.log.Errorf("Handler panic on %+v: %v", u, r)
			}
		}()

		err := b.Handle(ctx, u)
		switch {
		case err == nil:
		case errors.Is(err, ErrUnauthorized):
			b.log.Debugf("User %d: %v", u.UserID, err)
		default:
			b.log.Errorf("%v", err)
		}
	}()
}

// Wait blocks until every dispatched handler returned.
func (b *Bot) Wait() { b.wg.Wait() }

// Handle runs the handler for u synchronously.
func (b *Bot) Handle(ctx context.Context, u Update) error {
	if u.CallbackID != "" || u.CallbackData != "" {
		return b.handleCallback(ctx, u)
	}

	switch u.Command {
	case "start":
		metrics.BotUpdates.WithLabelValues("start").Inc()
		b.logCommand(ctx, u)
		return b.handleStart(ctx)
	case "suggestion":
		metrics.BotUpdates.WithLabelValues("suggestion").Inc()
		b.logCommand(ctx, u)
		if _, err := b.notifier.AnnounceRandomPick(ctx); err != nil {
			return fmt.Errorf("/suggestion: %w", err)
		}
		return nil
	case "check_liveness":
		metrics.BotUpdates.WithLabelValues("check_liveness").Inc()
		b.logCommand(ctx, u)
		return b.handleLiveness(ctx, u)
	default:
		metrics.BotUpdates.WithLabelValues("ignored").Inc()
		b.log.Debugf("Ignoring update %+v", u)
		return nil
	}
}

// handleStart announces the whole current batch without persisting it.
func (b *Bot) handleStart(ctx context.Context) error {
	batch, err := b.provider.FetchCurrentBatch(ctx)
	if err != nil {
		return fmt.Errorf("/start: %w", err)
	}
	movies := make([]storage.Movie, 0, len(batch))
	for _, item := range batch {
		detail, err := b.provider.FetchDetails(ctx, item.ID)
		if err != nil {
			return fmt.Errorf("/start: %w", err)
		}
		movies = append(movies, b.provider.Normalize(item, detail))
	}
	if err := b.notifier.AnnounceBatch(ctx, movies); err != nil {
		return fmt.Errorf("/start: %w", err)
	}
	return nil
}

func (b *Bot) handleLiveness(ctx context.Context, u Update) error {
	chat := strconv.FormatInt(u.ChatID, 10)
	if b.ownerID == 0 || u.UserID != b.ownerID {
		if err := b.notifier.Reply(ctx, chat, UnauthorizedText); err != nil {
			return fmt.Errorf("/check_liveness: %w", err)
		}
		return fmt.Errorf("/check_liveness: %w", ErrUnauthorized)
	}
	if err := b.notifier.Reply(ctx, chat, AliveText); err != nil {
		return fmt.Errorf("/check_liveness: %w", err)
	}
	return nil
}

func (b *Bot) handleCallback(ctx context.Context, u Update) error {
	key, ok := strings.CutPrefix(u.CallbackData, notify.DetailsPrefix)
	if !ok {
		metrics.BotUpdates.WithLabelValues("ignored").Inc()
		b.log.Debugf("Ignoring callback %q", u.CallbackData)
		return nil
	}
	metrics.BotUpdates.WithLabelValues("more_details").Inc()

	if b.answerer != nil && u.CallbackID != "" {
		if err := b.answerer.AnswerCallback(ctx, u.CallbackID); err != nil {
			b.log.Warnf("Could not answer callback %s: %v", u.CallbackID, err)
		}
	}
	if err := b.notifier.RespondWithDetails(ctx, u.UserID, key); err != nil {
		return fmt.Errorf("more details for %q: %w", key, err)
	}
	return nil
}

func (b *Bot) logCommand(ctx context.Context, u Update) {
	if b.activity == nil {
		return
	}
	details := map[string]any{"command": u.Command, "user_id": u.UserID}
	if err := b.activity.LogActivity(context.WithoutCancel(ctx), "command", details); err != nil {
		b.log.Warnf("Could not log /%s: %v", u.Command, err)
	}
}
