package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/crop-advisor/internal/adapters/mcp"
	"github.com/kirillkom/crop-advisor/internal/bootstrap"
	"github.com/kirillkom/crop-advisor/internal/config"
	"github.com/kirillkom/crop-advisor/internal/observability/logging"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel))

	app, err := bootstrap.New(context.Background(), cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	tools := mcpadapter.NewServer(app.RecommendUC, app.RecommendUC, cfg.RecommendationMinConfidence)
	if err := server.ServeStdio(tools.MCPServer("crop-advisor", version)); err != nil {
		slog.Error("mcp_server_failed", "error", err)
		app.Close()
		os.Exit(1)
	}
}
