package main

import (
	"log/slog"
	"os"

	"magiclink-auth/internal/app"
	"magiclink-auth/internal/logger"
)

func main() {
	slog.SetDefault(logger.New(os.Getenv("ENVIRONMENT"), slog.LevelInfo))

	application, err := app.New()
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("application run failed", "error", err)
		os.Exit(1)
	}
}
