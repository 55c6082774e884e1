package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reelwatch/reelwatch/pkg/storage"
)

var activitiesCmd = &cobra.Command{
	Use:   "activities",
	Short: "Show recent activity (default 10)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		store, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		acts, err := store.RecentActivities(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if asJSON {
			out, err := json.MarshalIndent(acts, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}
		for _, a := range acts {
			ts := a.Timestamp.Local().Format("2006-01-02 15:04:05")
			details, _ := json.Marshal(a.Details)
			fmt.Printf("%s  %-12s  %s\n", ts, a.Action, details)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(activitiesCmd)
	activitiesCmd.Flags().Int("limit", storage.DefaultActivityLimit, "Number of recent activities to show")
	activitiesCmd.Flags().Bool("json", false, "Print as JSON")
}
