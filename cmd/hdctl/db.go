package main

import (
	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	appkg "github.com/xenking/hdcontrol/internal/app"
)

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := *e.cfg
			cfg.Store.Migrate = true
			b, err := appkg.OpenStore(cmd.Context(), e.lg, &cfg)
			if err != nil {
				return errors.Wrap(err, "migrate")
			}
			defer b.Close()
			e.lg.Info("Schema is up to date", zap.String("driver", cfg.Store.Driver))
			return nil
		},
	}
}
