package main

import (
	"os"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	rediscache "github.com/xenking/golden-feast/internal/storage/redis"
)

func (r *root) purgeCacheCmd() *cobra.Command {
	var opts redis.Options
	cmd := &cobra.Command{
		Use:   "purge-cache",
		Short: "Drop cached catalog entries from Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Addr == "" {
				return errors.New("redis address is required: set --redis-addr or REDIS_ADDR")
			}
			client := redis.NewClient(&opts)
			defer func() { _ = client.Close() }()

			// The cache never reaches the inner repository while purging.
			if err := rediscache.NewProductCache(client, nil, 0).Purge(cmd.Context()); err != nil {
				return err
			}
			r.lg.Info("Catalog cache purged")
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Addr, "redis-addr", os.Getenv("REDIS_ADDR"), "Redis address")
	cmd.Flags().StringVar(&opts.Password, "redis-password", os.Getenv("REDIS_PASSWORD"), "Redis password")
	cmd.Flags().IntVar(&opts.DB, "redis-db", 0, "Redis database")
	return cmd
}
