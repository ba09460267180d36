// Package cmd implements the sophia command line. The daemon command
// runs the full service; the other commands talk to a running daemon
// over its HTTP API.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sophiahq/sophia/internal/api"
	"github.com/sophiahq/sophia/internal/config"
)

// Exit codes for scripting against the CLI.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitInvalidArgs = 2
	ExitUnavailable = 3
	ExitConflict    = 4
)

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config
)

var rootCmd = &cobra.Command{
	Use:     "sophia",
	Short:   "Content review and publishing for a single operator",
	Long:    `Sophia manages the approval, scheduling, publishing, and recovery of social media content drafts.`,
	Version: version,

	// Errors are printed once by Execute, with an exit code attached.
	SilenceErrors: true,
	SilenceUsage:  true,
}

// errUsage marks argument and flag parse failures so they exit 2.
var errUsage = errors.New("invalid arguments")

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/sophia/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false,
		"enable debug logging")
	rootCmd.PersistentFlags().String("addr", "",
		"daemon API address (overrides config)")

	_ = viper.BindPFlag("server.addr", rootCmd.PersistentFlags().Lookup("addr"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("data_dir", defaults.DataDir)
	viper.SetDefault("server.addr", defaults.Server.Addr)
	viper.SetDefault("scheduler.workers", defaults.Scheduler.Workers)

	// Single-value environment overrides; the config file carries
	// everything else.
	for key, env := range map[string]string{
		"db_path":                            "DB_PATH",
		"scheduler.db_path":                  "SCHEDULER_DB_PATH",
		"server.public_base_url":             "BASE_URL",
		"bot.token":                          "BOT_TOKEN",
		"platforms.facebook.access_token":    "FACEBOOK_ACCESS_TOKEN",
		"platforms.instagram.access_token":   "INSTAGRAM_ACCESS_TOKEN",
		"events.max_subscribers":             "SSE_MAX_SUBSCRIBERS",
		"events.buffer_size":                 "EVENT_BUFFER_SIZE",
		"scheduler.dispatch_timeout_seconds": "DISPATCH_TIMEOUT_SECONDS",
		"scheduler.stale_threshold_hours":    "STALE_THRESHOLD_HOURS",
	} {
		_ = viper.BindEnv(key, env)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .sophia/config.yaml (current directory)
		// 2. ~/.config/sophia/config.yaml (user config)
		if _, err := os.Stat(".sophia/config.yaml"); err == nil {
			viper.SetConfigFile(".sophia/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "sophia"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			home, _ := os.UserHomeDir()
			defaultPath := filepath.Join(home, ".config", "sophia", "config.yaml")
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, continue with defaults.
		}
	}

	_ = viper.Unmarshal(&cfg)
}

// apiClient returns a client for the configured daemon address.
func apiClient() *api.Client {
	return api.NewClient("http://" + viper.GetString("server.addr"))
}

// exitCode maps API client errors onto the CLI's exit codes. A not-found
// draft counts as a bad argument; conflicts and invalid transitions share
// a code since both mean the draft's state moved under the operator.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errUsage), errors.Is(err, api.ErrNotFound):
		return ExitInvalidArgs
	case errors.Is(err, api.ErrUnavailable):
		return ExitUnavailable
	case errors.Is(err, api.ErrConflict), errors.Is(err, api.ErrInvalidTransition):
		return ExitConflict
	default:
		return ExitError
	}
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitCode(err)
	}
	return ExitOK
}

// SetVersion sets the version string (called from main with ldflags).
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
