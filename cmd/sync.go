package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/reelwatch/reelwatch/internal/utils"
	"github.com/reelwatch/reelwatch/pkg/notify"
	"github.com/reelwatch/reelwatch/pkg/polling"
	"github.com/reelwatch/reelwatch/pkg/storage"
)

// syncCmd implements: reelwatch sync
// It runs one sync and prints the movies it stored.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch now playing movies once and store the new ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unknown command: '%s'. See 'reelwatch sync --help'", args[0])
		}
		ctx := cmd.Context()
		announce, _ := cmd.Flags().GetBool("announce")

		store, dbURL, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		provider, err := newProvider(cmd)
		if err != nil {
			return err
		}
		engine, err := newEngine(provider, store, dbURL)
		if err != nil {
			return err
		}

		var notifier *notify.Notifier
		if announce {
			tg, err := notify.NewTelegram(viper.GetString("telegram.token"))
			if err != nil {
				return err
			}
			if notifier, err = newNotifier(tg, store, provider); err != nil {
				return err
			}
		}

		res, syncErr := engine.SyncNewRecords(ctx)
		if res != nil {
			if len(res.New) == 0 {
				fmt.Printf("No new movies (%d fetched, %d already stored).\n", res.Fetched, res.Skipped)
			} else {
				printMovies(res.New)
			}
			if notifier != nil && len(res.New) > 0 {
				if err := notifier.AnnounceBatch(ctx, res.New); err != nil {
					utils.Log.Errorf("Some announcements failed: %v", err)
				}
			}
		}
		if syncErr != nil {
			if errors.Is(syncErr, polling.ErrSyncInProgress) {
				return fmt.Errorf("another sync is running on this database; retry later or set sync.overlap=queue")
			}
			return syncErr
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().Bool("announce", false, "Also announce the new movies to the Telegram channel")
}

func printMovies(movies []storage.Movie) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tYEAR\tRATING\tDIRECTOR\t")
	for _, m := range movies {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t\n", m.ExternalID, m.Title, m.Year, m.Rating, m.Director)
	}
	w.Flush()
}
