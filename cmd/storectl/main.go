// Command storectl runs maintenance tasks against the storefront stores:
// schema migration, catalog seeding and import, cache purging, account
// creation and token minting.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xenking/golden-feast/internal/storage/postgres"
)

var Version = "dev"

type root struct {
	databaseURL string
	verbose     bool
	lg          *zap.Logger
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	r := &root{lg: zap.NewNop()}
	cmd := &cobra.Command{
		Use:           "storectl",
		Short:         "Golden Feast store maintenance",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg := zap.NewDevelopmentConfig()
			if !r.verbose {
				cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
			}
			lg, err := cfg.Build()
			if err != nil {
				return errors.Wrap(err, "build logger")
			}
			r.lg = lg
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = r.lg.Sync()
		},
	}

	cmd.PersistentFlags().StringVar(&r.databaseURL, "database-url", os.Getenv("DATABASE_URL"),
		"PostgreSQL connection URL (default from DATABASE_URL)")
	cmd.PersistentFlags().BoolVarP(&r.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		r.migrateCmd(),
		r.seedCmd(),
		r.importCmd(),
		r.purgeCacheCmd(),
		r.tokenCmd(),
		r.createUserCmd(),
	)
	return cmd
}

// pool opens the database and applies the schema.
func (r *root) pool(ctx context.Context) (*pgxpool.Pool, error) {
	if r.databaseURL == "" {
		return nil, errors.New("database URL is required: set --database-url or DATABASE_URL")
	}
	r.lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, r.databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}
	r.lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	return pool, nil
}

func (r *root) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := r.pool(cmd.Context())
			if err != nil {
				return err
			}
			pool.Close()
			r.lg.Info("Schema is up to date")
			return nil
		},
	}
}
