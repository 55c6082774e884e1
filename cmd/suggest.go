package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/reelwatch/reelwatch/pkg/notify"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Post a random stored movie to the channel now",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		store, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		if dryRun {
			sample, err := store.RandomSample(ctx, 1)
			if err != nil {
				return err
			}
			if len(sample) == 0 {
				fmt.Println("No stored movies yet. Run 'reelwatch sync' first.")
				return nil
			}
			printMovies(sample)
			return nil
		}

		tg, err := notify.NewTelegram(viper.GetString("telegram.token"))
		if err != nil {
			return err
		}
		notifier, err := newNotifier(tg, store, nil)
		if err != nil {
			return err
		}
		sent, err := notifier.AnnounceRandomPick(ctx)
		if err != nil {
			return err
		}
		if !sent {
			fmt.Println("No stored movies yet. Run 'reelwatch sync' first.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(suggestCmd)
	suggestCmd.Flags().Bool("dry-run", false, "Print the pick instead of posting it")
}
