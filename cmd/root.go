package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jkarvon/vikinglab/cmd/channels"
	"github.com/jkarvon/vikinglab/cmd/ingest"
	"github.com/jkarvon/vikinglab/cmd/sessions"
	"github.com/jkarvon/vikinglab/internal/conf"
	"github.com/jkarvon/vikinglab/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vikinglab",
		Short: "Viking export annotation CLI",
	}

	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		ingest.Command(settings),
		sessions.Command(settings),
		channels.Command(settings),
	}

	rootCmd.AddCommand(subcommands...)

	var closeLogger func() error

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if settings.Debug {
			level = slog.LevelDebug
			logging.SetLevel(level)
		}
		if settings.Log.Enabled {
			// After SetLevel, so the file logger is not replaced by the
			// stdout logger it installs.
			closer, err := logging.EnableFileOutput(settings.Log.Path, level)
			if err != nil {
				return fmt.Errorf("error enabling log file %s: %w", settings.Log.Path, err)
			}
			closeLogger = closer
		}
		return nil
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if closeLogger != nil {
			return closeLogger()
		}
		return nil
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Output.SQLite.Path, "database", viper.GetString("output.sqlite.path"), "Path to the SQLite database")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
