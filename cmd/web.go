package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/reelwatch/reelwatch/internal/server"
)

// webCmd represents the web command
var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Start only the reelwatch dashboard",
	Long:  `Start a web server showing recent activity and users, without the bot or scheduler.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, dashboardFlags)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		srv := server.New(store, viper.GetString("web.username"), viper.GetString("web.password"))
		return srv.Start(ctx, viper.GetString("web.listen"))
	},
}

func init() {
	rootCmd.AddCommand(webCmd)

	addDashboardFlags(webCmd)
}
