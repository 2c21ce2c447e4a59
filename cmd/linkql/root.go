package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/syssam/linkql"
	"github.com/syssam/linkql/dialect"
	"github.com/syssam/linkql/dialect/sql"
	"github.com/syssam/linkql/dynamic"
	"github.com/syssam/linkql/internal/cli"
	"github.com/syssam/linkql/privacy"
)

var (
	// Set during PersistentPreRunE.
	cfg    *cli.Config
	logger *slog.Logger

	// Persistent flags.
	cfgFile    string
	schemaFile string
	driverName string
	dsn        string
	debug      bool
	readOnly   bool
)

var rootCmd = &cobra.Command{
	Use:   "linkql",
	Short: "Composed queries over linked collections",
	Long: `linkql - composed queries over linked collections

linkql loads the collections and relations of a YAML schema and runs
select, insert, update and delete requests with their links attached.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		var err error
		cfg, _, err = cli.LoadConfig(cfgFile)
		if err != nil {
			return cli.ConfigError("loading configuration", err)
		}
		cfg.Schema = resolveString(schemaFile, cfg.Schema)
		cfg.Database.Driver = resolveString(driverName, cfg.Database.Driver)
		cfg.Database.DSN = resolveString(dsn, cfg.Database.DSN)
		cfg.Log.Debug = cfg.Log.Debug || debug
		cfg.ReadOnly = cfg.ReadOnly || readOnly
		logger, err = cfg.Log.NewLogger(os.Stderr)
		if err != nil {
			return cli.ConfigError("logging configuration", err)
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default: auto-discover linkql.yaml)")
	f.StringVar(&schemaFile, "schema", "", "schema file")
	f.StringVar(&driverName, "driver", "", "database driver: postgres, pgx, mysql or sqlite")
	f.StringVar(&dsn, "dsn", "", "database data source name")
	f.BoolVar(&debug, "debug", false, "log every statement")
	f.BoolVar(&readOnly, "read-only", false, "deny inserts, updates and deletes")

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(validateCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		cli.Exit(err)
	}
}

// loadRegistry loads the registry of the configured schema file.
func loadRegistry() (*dynamic.Registry, error) {
	reg, err := dynamic.LoadFile(cfg.Schema)
	if err != nil {
		return nil, cli.SchemaError("loading schema", err)
	}
	return reg, nil
}

// openService connects to the configured database and returns the service
// over the registry.
func openService(reg *dynamic.Registry) (*dynamic.Service, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, cli.ConfigError("database configuration", err)
	}
	opts := []linkql.Option{linkql.WithLogger(logger)}
	if cfg.Log.Debug {
		opts = append(opts, linkql.Debug())
	}
	if cfg.Database.Concurrent {
		opts = append(opts, linkql.ConcurrentLinks())
	}
	drv, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, cli.DBConnectError("connecting to database", err)
	}
	var (
		d     dialect.Driver = drv
		stats *sql.StatsDriver
	)
	if cfg.Log.SlowThreshold > 0 {
		stats = sql.NewStatsDriver(drv, sql.WithSlowThreshold(cfg.Log.SlowThreshold), sql.WithSlowQueryLog(logger))
		d = stats
	}
	client := linkql.NewClient(d, opts...)
	var sopts []dynamic.ServiceOption
	if cfg.Cache.Enabled {
		sopts = append(sopts, dynamic.WithCache(linkql.NewMemoryCache(), cfg.Cache.TTL))
	}
	if cfg.ReadOnly {
		sopts = append(sopts, dynamic.WithPolicy(privacy.Policy{privacy.DenyMutationRule()}))
	}
	closeFn := func() {
		if stats != nil {
			logger.Info("linkql: statements", "stats", stats.QueryStats().Snapshot().String())
		}
		if err := client.Close(); err != nil {
			logger.Warn("linkql: closing database", "error", err)
		}
	}
	return dynamic.NewService(client, reg, sopts...), closeFn, nil
}

// resolveString returns the first non-empty value: flag > config.
func resolveString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
