package main

import (
	"fmt"
	"os"
	"path/filepath"

	"sqlitez/internal/logging"
	"sqlitez/pkg/sqlitez"
	"sqlitez/pkg/sqlitez/asset"

	"github.com/spf13/cobra"
)

// installCmd copies the bundled database and runs its upgrade scripts.
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Copy the bundled database and upgrade it to the configured version",
	Long: `Copies <assets.name> from the asset directory next to database.path when
no copy exists yet, then runs every upgrade script between the stored
version and assets.version in a single transaction.

Example:
  sqlitez install --db data/cities.db
  SQLITEZ_ASSETS=./assets sqlitez install --force`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

// tablesCmd lists user tables
var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the tables of the database",
	Args:  cobra.NoArgs,
	RunE:  runTables,
}

// queryCmd runs a read statement
var queryCmd = &cobra.Command{
	Use:   "query [sql]",
	Short: "Run a query and print the rows",
	Long: `Runs one SQL statement and prints every row.

Example:
  sqlitez query "SELECT name, population FROM city ORDER BY population DESC LIMIT 5"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

// execCmd runs a script file
var execCmd = &cobra.Command{
	Use:   "exec [script.sql]",
	Short: "Run every statement of a SQL script in one transaction",
	Args:  cobra.ExactArgs(1),
	RunE:  runExec,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version and the stored database version",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

func newHelper() (*asset.Helper, error) {
	name := cfg.Assets.Name
	if name == "" {
		name = filepath.Base(cfg.Database.Path)
	}
	return asset.New(asset.Options{
		Name:                 name,
		Version:              cfg.Assets.Version,
		Assets:               os.DirFS(cfg.Assets.Dir),
		AssetDir:             cfg.Assets.AssetDir,
		StorageDir:           filepath.Dir(cfg.Database.Path),
		Driver:               cfg.Database.Driver,
		ForcedUpgradeVersion: cfg.Assets.ForcedUpgradeVersion,
	})
}

func openDB(cmd *cobra.Command) (*sqlitez.DB, error) {
	ctx := cmd.Context()
	return sqlitez.Open(ctx, sqlitez.Options{
		Path:    cfg.Database.Path,
		Driver:  cfg.Database.Driver,
		Pragmas: cfg.Database.Pragmas,
	})
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	helper, err := newHelper()
	if err != nil {
		return err
	}
	if force, _ := cmd.Flags().GetBool("force"); force {
		helper.ForceUpgrade()
	}

	timer := logging.StartTimer(logging.CategoryAsset, "install "+helper.Path())
	db, err := helper.Open(ctx)
	if err != nil {
		return fmt.Errorf("install failed: %w", err)
	}
	defer helper.Close()
	timer.StopWithInfo()

	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return err
	}
	printSuccess(cmd.OutOrStdout(), "%s at version %d", helper.Path(), version)
	return nil
}

func runTables(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	cmd.SetContext(ctx)

	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	tables, err := db.Tables(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(tables) == 0 {
		printWarning(out, "no tables in %s", db.Path())
		return nil
	}
	for _, t := range tables {
		fmt.Fprintln(out, t)
	}
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	cmd.SetContext(ctx)

	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Rows(ctx, args[0])
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), rows)
	}
	printTable(cmd.OutOrStdout(), rows)
	return nil
}

func runExec(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	cmd.SetContext(ctx)

	script, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}
	statements := asset.SplitScript(string(script), ';')
	if len(statements) == 0 {
		printWarning(cmd.OutOrStdout(), "%s contains no statements", args[0])
		return nil
	}

	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.SQL().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	printSuccess(cmd.OutOrStdout(), "executed %d statements", len(statements))
	return nil
}

func runVersion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "sqlitez %s\n", Version)

	if _, err := os.Stat(cfg.Database.Path); err != nil {
		_, _ = dim.Fprintf(out, "database %s not installed\n", cfg.Database.Path)
		return nil
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()
	cmd.SetContext(ctx)

	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Query(ctx, "PRAGMA user_version")
	if err != nil {
		return err
	}
	var version int64
	if len(rows) > 0 {
		version, _ = rows[0].Int("user_version")
	}
	fmt.Fprintf(out, "database %s version %d\n", db.Path(), version)
	return nil
}
