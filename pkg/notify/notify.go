// Package notify turns stored movies into chat messages.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/reelwatch/reelwatch/internal/metrics"
	"github.com/reelwatch/reelwatch/internal/utils"
	"github.com/reelwatch/reelwatch/pkg/provider"
	"github.com/reelwatch/reelwatch/pkg/storage"
)

// DetailsPrefix starts the callback payload of the "More Details" button.
const DetailsPrefix = "more_details:"

const (
	NotFoundText     = "Movie details not found."
	NoReviewText     = "No review available for this movie."
	googleSearchURL  = "https://www.google.com/search?q="
	defaultSendEvery = time.Second
	defaultSendBurst = 3
	kindAnnounce     = "announce"
	kindSuggestion   = "suggestion"
	kindDetails      = "details"
)

// Store is the subset of storage.Store the notifier reads and writes.
type Store interface {
	GetMovie(ctx context.Context, externalID int64) (*storage.Movie, error)
	RandomSample(ctx context.Context, n int) ([]storage.Movie, error)
	LogActivity(ctx context.Context, action string, details map[string]any) error
}

// Searcher answers detail requests for movies the store does not hold:
// announced but never synced ids, and legacy title keys.
type Searcher interface {
	FetchDetails(ctx context.Context, id int64) (provider.RawDetail, error)
	SearchByTitle(ctx context.Context, title string) (provider.SearchResult, error)
	Normalize(item provider.RawItem, detail provider.RawDetail) storage.Movie
}

type Config struct {
	Messenger Messenger
	Store     Store
	Search    Searcher
	// Channel receives announcements and suggestions.
	Channel string
	// Limiter paces outbound sends. Nil means one per second with a burst of 3.
	Limiter *rate.Limiter
	Log     logrus.FieldLogger
}

type Notifier struct {
	msg     Messenger
	store   Store
	search  Searcher
	channel string
	limiter *rate.Limiter
	log     logrus.FieldLogger
}

func New(cfg Config) (*Notifier, error) {
	if cfg.Messenger == nil {
		return nil, errors.New("notify: messenger is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("notify: store is required")
	}
	if strings.TrimSpace(cfg.Channel) == "" {
		return nil, errors.New("notify: broadcast channel is required (set telegram.channel_id in config)")
	}
	n := &Notifier{
		msg:     cfg.Messenger,
		store:   cfg.Store,
		search:  cfg.Search,
		channel: cfg.Channel,
		limiter: cfg.Limiter,
		log:     cfg.Log,
	}
	if n.limiter == nil {
		n.limiter = rate.NewLimiter(rate.Every(defaultSendEvery), defaultSendBurst)
	}
	if n.log == nil {
		n.log = utils.Discard
	}
	return n, nil
}

// Announce posts m to the broadcast channel: a photo with caption when there
// is a poster, plain text otherwise.
func (n *Notifier) Announce(ctx context.Context, m storage.Movie) error {
	caption := Caption(m)
	button := Button{Text: "More Details", Data: DetailsPrefix + strconv.FormatInt(m.ExternalID, 10)}

	err := n.send(ctx, kindAnnounce, func() error {
		if m.PosterURL == "" {
			return n.msg.SendMessage(ctx, n.channel, caption, button)
		}
		return n.msg.SendPhoto(ctx, n.channel, m.PosterURL, caption, button)
	})
	if err != nil {
		return fmt.Errorf("announce %d: %w", m.ExternalID, err)
	}
	n.logActivity(ctx, "announce", map[string]any{"external_id": m.ExternalID, "title": m.Title})
	return nil
}

// AnnounceBatch announces every movie in order. A failed send does not stop
// the rest; the first error is returned once all were tried.
func (n *Notifier) AnnounceBatch(ctx context.Context, movies []storage.Movie) error {
	var first error
	for _, m := range movies {
		if err := ctx.Err(); err != nil {
			if first == nil {
				first = err
			}
			break
		}
		if err := n.Announce(ctx, m); err != nil {
			n.log.Warnf("%v", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// AnnounceRandomPick posts one random stored movie. It reports false without
// sending anything when the store is empty.
func (n *Notifier) AnnounceRandomPick(ctx context.Context) (bool, error) {
	sample, err := n.store.RandomSample(ctx, 1)
	if err != nil {
		return false, fmt.Errorf("pick random movie: %w", err)
	}
	if len(sample) == 0 {
		n.log.Infof("No stored movies to suggest yet")
		return false, nil
	}
	m := sample[0]
	text := "*Today's Movie Suggestion:*\n" + heading(m)

	if err := n.send(ctx, kindSuggestion, func() error {
		return n.msg.SendMessage(ctx, n.channel, text)
	}); err != nil {
		return false, fmt.Errorf("send suggestion: %w", err)
	}
	n.logActivity(ctx, "suggestion", map[string]any{"external_id": m.ExternalID, "title": m.Title})
	return true, nil
}

// RespondWithDetails answers a "More Details" press privately. key is the
// button payload after DetailsPrefix: a stored external id, or a title from
// buttons posted before ids were used.
func (n *Notifier) RespondWithDetails(ctx context.Context, userID int64, key string) error {
	key = strings.TrimSpace(key)
	title, overview, found, err := n.lookup(ctx, key)
	n.logActivity(ctx, "more_details", map[string]any{"key": key, "user_id": userID, "found": found})
	if err != nil {
		return err
	}

	chat := strconv.FormatInt(userID, 10)
	return n.send(ctx, kindDetails, func() error {
		if !found {
			return n.msg.SendMessage(ctx, chat, EscapeMarkdown(NotFoundText))
		}
		if overview == "" {
			overview = NoReviewText
		}
		text := "Here's the review of *" + EscapeMarkdown(title) + "*:\n" + EscapeMarkdown(overview)
		return n.msg.SendMessage(ctx, chat, text, Button{Text: "Search", URL: googleSearchURL + url.QueryEscape(title)})
	})
}

// Reply sends a plain text answer to chat, e.g. a command response.
func (n *Notifier) Reply(ctx context.Context, chat, text string) error {
	return n.send(ctx, "reply", func() error {
		return n.msg.SendMessage(ctx, chat, EscapeMarkdown(text))
	})
}

func (n *Notifier) lookup(ctx context.Context, key string) (title, overview string, found bool, err error) {
	if key == "" {
		return "", "", false, nil
	}
	if id, perr := strconv.ParseInt(key, 10, 64); perr == nil {
		m, err := n.store.GetMovie(ctx, id)
		switch {
		case err == nil:
			return m.Title, m.Overview, true, nil
		case !errors.Is(err, storage.ErrNotFound):
			return "", "", false, fmt.Errorf("look up movie %d: %w", id, err)
		}
		return n.fetch(ctx, id)
	}

	if n.search == nil {
		return "", "", false, nil
	}
	res, err := n.search.SearchByTitle(ctx, key)
	switch {
	case err == nil:
		// The button text is what the user saw, so keep it as the title.
		return key, res.Overview, true, nil
	case errors.Is(err, provider.ErrNotFound):
		return "", "", false, nil
	default:
		return "", "", false, err
	}
}

// fetch asks the provider for a movie that was announced without being
// stored, e.g. by /start.
func (n *Notifier) fetch(ctx context.Context, id int64) (title, overview string, found bool, err error) {
	if n.search == nil {
		return "", "", false, nil
	}
	d, err := n.search.FetchDetails(ctx, id)
	switch {
	case err == nil:
		m := n.search.Normalize(provider.RawItem{ID: id}, d)
		return m.Title, m.Overview, true, nil
	case errors.Is(err, provider.ErrNotFound):
		return "", "", false, nil
	default:
		return "", "", false, err
	}
}

func (n *Notifier) send(ctx context.Context, kind string, fn func() error) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := fn(); err != nil {
		metrics.NotificationFailures.WithLabelValues(kind).Inc()
		return err
	}
	metrics.NotificationsSent.WithLabelValues(kind).Inc()
	return nil
}

func (n *Notifier) logActivity(ctx context.Context, action string, details map[string]any) {
	if err := n.store.LogActivity(context.WithoutCancel(ctx), action, details); err != nil {
		n.log.Warnf("Could not log %s activity: %v", action, err)
	}
}
