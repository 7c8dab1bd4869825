package main

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	appkg "github.com/xenking/hdcontrol/internal/app"
	"github.com/xenking/hdcontrol/internal/catalog"
)

func newImportCatalogCmd(e *env) *cobra.Command {
	var opts catalog.Options
	cmd := &cobra.Command{
		Use:   "import-catalog FILE...",
		Short: "Upsert products from gzip JSON Lines files; later files win on duplicates",
		Args:  cobra.RangeArgs(1, catalog.MaxFiles),
		RunE: func(cmd *cobra.Command, files []string) error {
			ctx := zctx.Base(cmd.Context(), e.lg)
			b, err := appkg.OpenStore(ctx, e.lg, e.cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			stats, err := catalog.NewImporter(b.Products, opts).Import(ctx, files)
			if err != nil {
				return errors.Wrap(err, "import catalog")
			}
			e.lg.Info("Catalog imported",
				zap.Int("files", len(files)),
				zap.Int64("inserted", stats.Inserted),
				zap.Int64("updated", stats.Updated),
				zap.Int64("superseded", stats.Superseded),
				zap.Int64("rejected", stats.Rejected),
			)
			return nil
		},
	}
	f := cmd.Flags()
	f.UintVar(&opts.Capacity, "capacity", 1_000_000, "Expected products per file")
	f.Float64Var(&opts.FalsePositiveRate, "fpr", 0.001, "Bloom filter false positive rate")
	f.IntVar(&opts.Workers, "workers", 0, "Concurrent file writers; 0 means one per file")
	return cmd
}
