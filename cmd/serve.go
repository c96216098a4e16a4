package main

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	_ "caption-service/docs"
	"caption-service/internal/generation"
	"caption-service/internal/handlers"
	"caption-service/internal/metrics"
	"caption-service/internal/repository"
	"caption-service/internal/services"
	"caption-service/internal/speech"
	"caption-service/internal/storage"
)

func newServeCommand(cc *commandContext) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cc.serve(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "Run database migrations before serving")
	return cmd
}

func (cc *commandContext) serve(ctx context.Context, migrate bool) error {
	cfg, log := cc.cfg, cc.log

	db, err := cc.database()
	if err != nil {
		return err
	}
	if migrate {
		if err := repository.AutoMigrate(db); err != nil {
			return errors.Wrap(err, "database migration failed")
		}
	}

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	assets, err := storage.New(cfg, log, m)
	if err != nil {
		return errors.Wrap(err, "asset store initialization failed")
	}
	generator, err := generation.New(cfg, log)
	if err != nil {
		return errors.Wrap(err, "generation client initialization failed")
	}

	service := services.NewAnnotationService(
		repository.NewAnnotationRepository(db),
		services.NewAccountDirectory(repository.NewAccountRepository(db, cfg.SettingsCacheTTL)),
		assets,
		generator,
		speech.NewClient(cfg, log),
		m,
		log,
		services.Options{
			CaptionModel:   cfg.CaptionModel,
			BBoxModel:      cfg.BBoxModel,
			MaxTokens:      cfg.GenerationMaxTokens,
			AudioFormat:    cfg.TTSFormat,
			Location:       cfg.Location,
			MaxImagePixels: cfg.MaxImagePixels,
		},
	)

	app := fiber.New(fiber.Config{
		BodyLimit:    cfg.MaxUploadBytes*4/3 + 1<<16,
		ReadTimeout:  time.Minute,
		WriteTimeout: cfg.GenerationTimeout + time.Minute,
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/images")
	api.Get("/swagger/*", swagger.HandlerDefault)
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	handlers.NewAnnotationHandler(service, int64(cfg.MaxUploadBytes), cfg.Location, log).Register(api)

	for _, r := range app.GetRoutes() {
		log.Debug("route registered", "method", r.Method, "path", r.Path)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "port", cfg.AppPort)
		errCh <- app.Listen(":" + cfg.AppPort)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	}
}
