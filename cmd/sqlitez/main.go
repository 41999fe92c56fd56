// Command sqlitez installs bundled SQLite databases and inspects them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sqlitez/internal/config"
	"sqlitez/internal/logging"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var (
	// Global flags
	configPath string
	dbPath     string
	driver     string
	debug      bool
	noColor    bool

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sqlitez",
	Short: "sqlitez - bundled SQLite databases with versioned upgrades",
	Long: `sqlitez copies a SQLite database shipped as an asset into a writable
location, upgrades it with numbered SQL scripts, and lets you inspect it.

Assets live under <assets.dir>/<assets.asset_dir>:
  cities.db                  the database (or cities.db.zip / cities.db.gz)
  cities.db_upgrade_1-2.sql  upgrade scripts, one per version step`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initColors(noColor)

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			loaded.Database.Path = dbPath
		}
		if driver != "" {
			loaded.Database.Driver = driver
		}
		if debug {
			loaded.Logging.DebugMode = true
			loaded.Logging.Level = "debug"
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if err := logging.Initialize(loaded.Logging.Logging()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg = loaded
		logging.BootDebug("config loaded from %s (db=%s driver=%s)", configPath, cfg.Database.Path, cfg.Database.Driver)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "sqlitez.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides config and SQLITEZ_DB)")
	rootCmd.PersistentFlags().StringVar(&driver, "driver", "", "SQLite driver: sqlite3 (cgo) or sqlite (pure Go)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	installCmd.Flags().Bool("force", false, "Replace the stored database from the assets")
	queryCmd.Flags().Bool("json", false, "Print rows as JSON lines")

	rootCmd.AddCommand(installCmd, tablesCmd, queryCmd, execCmd, versionCmd)
}

// commandContext returns a context bounded by the configured timeout and
// cancelled on SIGINT/SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, cfg.GetTimeout())
	return ctx, func() {
		cancel()
		stop()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError(err.Error())
		os.Exit(1)
	}
}
