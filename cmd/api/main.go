package main

import (
	"context"
	"time"

	"github.com/C4T-BuT-S4D/gatekeeper/internal/api"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/config"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/logging"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func main() {
	setupConfig()
	logging.Init()

	cfg := config.New()
	logrus.Debugf("config: %+v", cfg)

	if cfg.JournalDSN == "" {
		logrus.Fatal("journal_dsn is required")
	}

	db, err := storage.Open(cfg.JournalDSN)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}

	store := storage.New(db)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.Migrate(ctx); err != nil {
		logrus.Fatalf("Failed to migrate database: %v", err)
	}

	e := echo.New()
	api.NewService(store).Register(e, false)
	if err := e.Start(cfg.HTTPListenAddr); err != nil {
		logrus.Fatalf("http server failed: %v", err)
	}
}

func setupConfig() {
	config.SetupCommon()
	viper.SetDefault("http_listen_addr", ":8081")
}
