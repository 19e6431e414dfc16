package main

import (
	"context"
	"net/http"
	"time"

	otelx "github.com/md-rashed-zaman/clinicsync/libs/otel"
	"github.com/md-rashed-zaman/clinicsync/libs/runtime"
	"github.com/md-rashed-zaman/clinicsync/services/dashboard-service/internal/app"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := runtime.LoadDotenv(); err != nil {
		panic(err)
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dashboard, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("dashboard init failed", "err", err)
		panic(err)
	}
	defer dashboard.Close()

	if dashboard.Consumer != nil {
		go dashboard.Consumer.Run(ctx)
	} else {
		logger.Info("kafka not configured; cache invalidation is manual only")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(dashboard.Handler, "dashboard"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "upstream", cfg.UpstreamURL, "timezone", cfg.Location.String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
