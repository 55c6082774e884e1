package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/reelwatch/reelwatch/internal/server"
	"github.com/reelwatch/reelwatch/internal/utils"
	"github.com/reelwatch/reelwatch/pkg/bot"
	"github.com/reelwatch/reelwatch/pkg/notify"
	"github.com/reelwatch/reelwatch/pkg/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot, the scheduled sync and the dashboard",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, dashboardFlags, scheduleFlags)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, dbURL, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		provider, err := newProvider(cmd)
		if err != nil {
			return err
		}
		tg, err := notify.NewTelegram(viper.GetString("telegram.token"))
		if err != nil {
			return err
		}
		notifier, err := newNotifier(tg, store, provider)
		if err != nil {
			return err
		}
		engine, err := newEngine(provider, store, dbURL)
		if err != nil {
			return err
		}
		loc, err := scheduleLocation()
		if err != nil {
			return err
		}
		sched, err := scheduler.New(scheduler.Config{
			Sync:     engine,
			Notifier: notifier,
			Interval: viper.GetDuration("schedule.interval"),
			DailyAt:  viper.GetString("schedule.daily_at"),
			Location: loc,
			Log:      utils.Log,
		})
		if err != nil {
			return err
		}
		b := bot.New(bot.Config{
			Provider: provider,
			Notifier: notifier,
			Answerer: tg,
			Activity: store,
			OwnerID:  viper.GetInt64("telegram.owner_id"),
			Log:      utils.Log,
		})

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			sched.Run(ctx)
			return nil
		})
		g.Go(func() error {
			return b.Run(ctx, tg.API)
		})
		if addr := viper.GetString("web.listen"); addr != "" {
			srv := server.New(store, viper.GetString("web.username"), viper.GetString("web.password"))
			g.Go(func() error {
				return srv.Start(ctx, addr)
			})
		}

		err = g.Wait()
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		utils.Log.Info("Shut down cleanly")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addDashboardFlags(serveCmd)
	serveCmd.Flags().Duration("interval", 0, "Sync interval (default from schedule.interval, 15m)")
	serveCmd.Flags().String("daily-at", "", "Daily suggestion time HH:MM (default from schedule.daily_at, 09:00)")
	serveCmd.Flags().String("overlap", "", "What to do when a sync is still running: skip or queue")
}
