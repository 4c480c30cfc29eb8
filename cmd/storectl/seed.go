package main

import (
	"context"
	"os"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xenking/golden-feast/db"
	"github.com/xenking/golden-feast/internal/domain/product"
	"github.com/xenking/golden-feast/internal/storage/postgres"
)

func (r *root) seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert the default menu into the product table",
		Long: `Upsert the default menu into the product table.

Without --file the catalog embedded in the binary is used. Existing products
with the same id are overwritten; other products are left alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data := db.SeedProducts
			if file != "" {
				var err error
				if data, err = os.ReadFile(file); err != nil {
					return errors.Wrap(err, "read catalog file")
				}
			}
			products, err := product.ParseCatalog(data)
			if err != nil {
				return err
			}

			pool, err := r.pool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			return seedProducts(cmd.Context(), r.lg, postgres.NewProductRepository(pool), products)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON array of products to seed instead of the built-in menu")
	return cmd
}

func seedProducts(ctx context.Context, lg *zap.Logger, w product.Writer, products []product.Product) error {
	lg.Info("Upserting products", zap.Int("count", len(products)))
	for _, p := range products {
		if err := w.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		lg.Debug("Upserted product", zap.String("id", p.ID), zap.String("name", p.Name))
	}
	lg.Info("Seed completed")
	return nil
}
