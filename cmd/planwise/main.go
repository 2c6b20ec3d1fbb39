package main

import (
	"fmt"
	"os"
	"os/user"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/fentz26/planwise/internal/config"
	"github.com/fentz26/planwise/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "planwise",
	Short: "planwise - deadline-aware task scheduler",
	Long: `planwise places each owner's tasks on a calendar by urgency, respecting
deadlines, a single predecessor per task, and contention between tasks due
at nearly the same time.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	configPath string
	dbOverride string
	logLevel   string

	fsys   = afero.NewOsFs()
	cfg    *config.Config
	logger zerolog.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbOverride, "db", "", "Override the database path (sqlite) or DSN (postgres)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the log level (debug, info, warn, error)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(tuiCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(fsys, configPath)
	if err != nil {
		return err
	}
	applyOverrides(c)
	cfg = c
	logger = logging.New(cfg.Logging, os.Stderr)
	return nil
}

func applyOverrides(c *config.Config) {
	if dbOverride != "" {
		if c.Database.Driver == config.DriverPostgres {
			c.Database.DSN = dbOverride
		} else {
			c.Database.Path = dbOverride
		}
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// defaultOwner is the login name of the current user.
func defaultOwner() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
