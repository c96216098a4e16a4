package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"caption-service/internal/repository"
	"caption-service/internal/services"
	"caption-service/internal/storage"
)

func newMigrateCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(*cobra.Command, []string) error {
			db, err := cc.database()
			if err != nil {
				return err
			}
			if err := repository.AutoMigrate(db); err != nil {
				return errors.Wrap(err, "database migration failed")
			}
			cc.log.Info("database migrated", "driver", cc.cfg.DBDriver)
			return nil
		},
	}
}

func newReapCommand(cc *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reap-orphans",
		Short: "Delete stored assets that no record references",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := cc.database()
			if err != nil {
				return err
			}
			assets, err := storage.New(cc.cfg, cc.log, nil)
			if err != nil {
				return errors.Wrap(err, "asset store initialization failed")
			}
			grace, err := cmd.Flags().GetDuration("grace")
			if err != nil {
				return err
			}
			reaper := services.NewReaper(repository.NewAnnotationRepository(db), assets, grace, cc.log)
			removed, err := reaper.Run(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("removed %d orphaned assets\n", removed)
			return nil
		},
	}
	cmd.Flags().Duration("grace", 0, "Only delete assets older than this (defaults to ORPHAN_GRACE_PERIOD)")
	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		if !cmd.Flags().Changed("grace") {
			return cmd.Flags().Set("grace", cc.cfg.OrphanGracePeriod.String())
		}
		return nil
	}
	return cmd
}
