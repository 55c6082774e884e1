package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/reelwatch/reelwatch/internal/utils"
)

var cfgFile string

const (
	LOGO = `
	               _              _       _
	 _ __ ___  ___| |_      ____ _| |_ ___| |__
	| '__/ _ \/ _ \ \ \ /\ / / _' | __/ __| '_ \
	| | |  __/  __/ |\ V  V / (_| | || (__| | | |
	|_|  \___|\___|_| \_/\_/ \__,_|\__\___|_| |_|

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reelwatch",
	Short: "Announces new movies from TMDB to a Telegram channel.",
	Long: LOGO + `reelwatch polls TMDB for movies now playing, stores the ones it has not seen
before and announces them to a Telegram channel. It also answers bot commands,
posts a daily suggestion and serves a small dashboard.

Configuration lives in $HOME/.reelwatch.yaml; every key can also be set with a
REELWATCH_ environment variable (tmdb.api_key -> REELWATCH_TMDB_API_KEY).`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.reelwatch.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy for TMDB requests (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("db", "", "SQLite file or mongodb:// URL (default: ~/.config/reelwatch/reelwatch.sqlite)")
	rootCmd.PersistentFlags().String("provider", "tmdb", "Metadata provider: tmdb, or dev for an offline canned listing")
	viper.BindPFlag("db.url", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("provider", rootCmd.PersistentFlags().Lookup("provider"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".reelwatch")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("reelwatch")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := filepath.Join(home, ".reelwatch.yaml")
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s\n", err)
			}
		} else {
			fmt.Printf("Error reading config file: %s\n", err)
		}
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	if err := utils.SetLogLevel(levelString); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func setDefaults() {
	viper.SetDefault("provider", "tmdb")
	viper.SetDefault("tmdb.api_key", "")
	viper.SetDefault("tmdb.language", "en-US")
	viper.SetDefault("tmdb.base_url", "https://api.themoviedb.org/3")
	viper.SetDefault("tmdb.retries", 0)
	viper.SetDefault("telegram.token", "")
	viper.SetDefault("telegram.channel_id", "")
	viper.SetDefault("telegram.owner_id", 0)
	viper.SetDefault("db.url", "")
	viper.SetDefault("schedule.interval", "15m")
	viper.SetDefault("schedule.daily_at", "09:00")
	viper.SetDefault("schedule.timezone", "Local")
	viper.SetDefault("sync.overlap", "skip")
	viper.SetDefault("web.listen", ":9999")
	viper.SetDefault("web.username", "")
	viper.SetDefault("web.password", "")
}
