package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"caption-service/internal/config"
	"caption-service/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// commandContext carries what every subcommand needs once config is loaded.
type commandContext struct {
	cfg *config.Config
	log *logger.Logger
}

func newRootCommand() *cobra.Command {
	cc := &commandContext{}
	root := &cobra.Command{
		Use:           "caption-service",
		Short:         "Annotated-image captioning service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return cc.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if cc.log != nil {
				cc.log.Sync()
			}
		},
	}
	root.AddCommand(
		newServeCommand(cc),
		newMigrateCommand(cc),
		newReapCommand(cc),
	)
	return root
}

func (cc *commandContext) load() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return errors.Wrap(err, "config error")
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return errors.Wrap(err, "logger init")
	}
	cc.cfg, cc.log = cfg, log
	return nil
}

func (cc *commandContext) database() (*gorm.DB, error) {
	db, err := config.ConnectDatabase(cc.cfg)
	if err != nil {
		return nil, errors.Wrap(err, "database connection failed")
	}
	return db, nil
}
