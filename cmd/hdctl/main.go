// Command hdctl administers an hdcontrol deployment: schema migrations,
// seeding, API keys and bulk catalog imports.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	appkg "github.com/xenking/hdcontrol/internal/app"
)

// env is what every subcommand runs with.
type env struct {
	lg  *zap.Logger
	cfg *appkg.Config
}

func newRootCmd() *cobra.Command {
	e := &env{}
	var verbose bool

	root := &cobra.Command{
		Use:           "hdctl",
		Short:         "Administer an hdcontrol deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			zcfg := zap.NewProductionConfig()
			if verbose {
				zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
			}
			lg, err := zcfg.Build()
			if err != nil {
				return errors.Wrap(err, "build logger")
			}
			e.lg = lg

			cfg, err := appkg.LoadToolConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Driver != appkg.DriverPostgres {
				return errors.Errorf("hdctl needs the postgres store, got %q", cfg.Store.Driver)
			}
			e.cfg = cfg
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if e.lg != nil {
				_ = e.lg.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	root.AddCommand(
		newMigrateCmd(e),
		newSeedCmd(e),
		newCreateAPIKeyCmd(e),
		newImportCatalogCmd(e),
	)
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "hdctl:", err)
		os.Exit(1)
	}
}
