package cmd

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/reelwatch/reelwatch/internal/utils"
	"github.com/reelwatch/reelwatch/pkg/notify"
	"github.com/reelwatch/reelwatch/pkg/polling"
	"github.com/reelwatch/reelwatch/pkg/provider"
	"github.com/reelwatch/reelwatch/pkg/provider/dev"
	"github.com/reelwatch/reelwatch/pkg/provider/tmdb"
	"github.com/reelwatch/reelwatch/pkg/storage"
)

// Config keys and the flags that override them.
var (
	dashboardFlags = map[string]string{
		"web.listen":   "listen",
		"web.username": "username",
		"web.password": "password",
	}
	scheduleFlags = map[string]string{
		"schedule.interval": "interval",
		"schedule.daily_at": "daily-at",
		"sync.overlap":      "overlap",
	}
)

func addDashboardFlags(cmd *cobra.Command) {
	cmd.Flags().String("listen", ":9999", "Dashboard listen address (empty disables the dashboard under serve)")
	cmd.Flags().StringP("username", "u", "", "Username for dashboard basic auth (optional)")
	cmd.Flags().StringP("password", "p", "", "Password for dashboard basic auth (optional)")
}

// bindFlags binds the running command's flags to their config keys. It runs
// before RunE so commands sharing a key do not overwrite each other's binding.
func bindFlags(cmd *cobra.Command, sets ...map[string]string) error {
	for _, set := range sets {
		for key, name := range set {
			if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
				return fmt.Errorf("bind --%s: %w", name, err)
			}
		}
	}
	return nil
}

// openStore opens the configured backend. SQLite paths are made absolute and
// their directory is created.
func openStore(ctx context.Context) (storage.Store, string, error) {
	dbURL := viper.GetString("db.url")
	if storage.IsSQLite(dbURL) {
		abs, err := utils.GetAbsDBPath(dbURL)
		if err != nil {
			return nil, "", err
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, "", fmt.Errorf("create database directory: %w", err)
		}
		dbURL = abs
	}

	store, err := storage.OpenURL(ctx, dbURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}
	utils.Log.Debugf("Using database %s", dbURL)
	return store, dbURL, nil
}

// newProvider returns the configured metadata source: "tmdb" or the offline
// "dev" listing.
func newProvider(cmd *cobra.Command) (provider.Provider, error) {
	switch name := viper.GetString("provider"); name {
	case "", "tmdb":
		c, err := newTMDB(cmd)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "dev":
		utils.Log.Warn("Using the offline dev provider, nothing is fetched from TMDB")
		return dev.New(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want tmdb or dev)", name)
	}
}

func newTMDB(cmd *cobra.Command) (*tmdb.Client, error) {
	cfg := tmdb.Config{
		APIKey:   viper.GetString("tmdb.api_key"),
		Language: viper.GetString("tmdb.language"),
		BaseURL:  viper.GetString("tmdb.base_url"),
		Retries:  viper.GetInt("tmdb.retries"),
	}
	if proxy, _ := cmd.Flags().GetString("proxy"); proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", proxy, err)
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		cfg.Transport = transport
	}
	return tmdb.New(cfg)
}

// newEngine builds the sync engine. SQLite databases also get a file lock so
// separate reelwatch processes never sync into the same file concurrently.
func newEngine(p provider.Provider, store storage.Store, dbURL string) (*polling.Engine, error) {
	overlap, err := polling.ParseOverlapMode(viper.GetString("sync.overlap"))
	if err != nil {
		return nil, err
	}
	cfg := polling.Config{
		Provider: p,
		Store:    store,
		Overlap:  overlap,
		Log:      utils.Log,
	}
	if storage.IsSQLite(dbURL) {
		lock, err := utils.NewSyncLock(dbURL)
		if err != nil {
			return nil, err
		}
		cfg.FileLock = lock
	}
	return polling.NewEngine(cfg), nil
}

// newNotifier builds the notifier; search may be nil when title lookups are
// not needed.
func newNotifier(tg *notify.Telegram, store storage.Store, search notify.Searcher) (*notify.Notifier, error) {
	return notify.New(notify.Config{
		Messenger: tg,
		Store:     store,
		Search:    search,
		Channel:   viper.GetString("telegram.channel_id"),
		Log:       utils.Log,
	})
}

func scheduleLocation() (*time.Location, error) {
	name := viper.GetString("schedule.timezone")
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule.timezone %q: %w", name, err)
	}
	return loc, nil
}
