package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"labdesk/internal/admin"
	"labdesk/internal/gateway"
	"labdesk/internal/instrument"
	"labdesk/internal/schema"
)

const sweepInterval = time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin console",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "console port (overrides admin.port)")
	_ = v.BindPFlag("admin.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Admin.Location()
	if err != nil {
		return err
	}
	views, err := admin.ParseViews()
	if err != nil {
		return err
	}

	backend := gateway.New(cfg.Admin.StoreURL, &http.Client{Timeout: 30 * time.Second})
	sessions := admin.NewSessionManager(cfg.Admin.SessionTTL, cfg.Admin.SessionIdle,
		admin.SurfaceFactory(backend, cfg.Admin.ListPageSize, loc))
	go sessions.Sweep(ctx, sweepInterval)

	h := admin.NewHandler(backend, schema.Default(), sessions, views, logger, admin.Options{
		PublicURL:  cfg.Admin.PublicURL,
		Location:   loc,
		SessionTTL: cfg.Admin.SessionTTL,
	})

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(instrument.Middleware(logger))
	admin.RegisterRoutes(app, h)

	addr := fmt.Sprintf(":%d", cfg.Admin.Port)
	logger.Info("console listening",
		zap.String("addr", addr),
		zap.String("store", backend.BaseURL()),
		zap.String("timezone", loc.String()))
	return listen(ctx, app, addr)
}

// listen serves app until ctx is cancelled, then drains in-flight requests.
func listen(ctx context.Context, app *fiber.App, addr string) error {
	errc := make(chan error, 1)
	go func() { errc <- app.Listen(addr) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}
