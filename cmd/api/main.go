package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpadapter "github.com/kirillkom/crop-advisor/internal/adapters/http"
	"github.com/kirillkom/crop-advisor/internal/bootstrap"
	"github.com/kirillkom/crop-advisor/internal/config"
	"github.com/kirillkom/crop-advisor/internal/observability/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if _, err := httpadapter.OpenAPIDocument(); err != nil {
		slog.Error("openapi_document_invalid", "error", err)
		os.Exit(1)
	}

	router := httpadapter.NewRouter(
		cfg,
		app.RecommendUC,
		app.RecommendUC,
		app.History(),
		httpadapter.HealthInfo{
			Backend:      cfg.ModelBackend,
			ModelVersion: app.ModelVersion,
			Features:     app.Manifest.Features,
			Classes:      len(app.Classifier.Labels()),
		},
		app.Metrics,
	).Handler()

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
