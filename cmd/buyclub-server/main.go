package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/buyclub/buyclub/pkg/buyclub/auth"
	"github.com/buyclub/buyclub/pkg/buyclub/config"
	"github.com/buyclub/buyclub/pkg/buyclub/database"
	"github.com/buyclub/buyclub/pkg/buyclub/logging"
	"github.com/buyclub/buyclub/pkg/buyclub/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("BUYCLUB_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Setup()
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.SetupWithLevel(logging.ParseLevel(cfg.LogLevel))
	auth.Configure(cfg.JWTSecret, cfg.TokenTTL)
	gin.SetMode(gin.ReleaseMode)

	// Connect and migrate
	if err := database.Connect(cfg.DBPath); err != nil {
		slog.Error("failed to connect to database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	slog.Info("database ready", "path", cfg.DBPath)

	// Create default admin user if no admin exists
	if err := server.EnsureAdminExists(database.GetDB(), cfg); err != nil {
		slog.Error("failed to ensure admin user exists", "error", err)
		os.Exit(1)
	}

	r := server.NewRouter(database.GetDB(), cfg)

	slog.Info("starting buyclub server", "port", cfg.Port, "base_url", cfg.BaseURL)
	if err := r.Run(":" + cfg.Port); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
