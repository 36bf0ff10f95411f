package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/C4T-BuT-S4D/gatekeeper/internal/api"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/authutil"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/config"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/journal"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/logging"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/lookup"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/monitor"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/platform"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/scheduler"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/storage"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/verification"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/telebot.v4"
)

func main() {
	setupConfig()
	logging.Init()

	cfg := config.New()
	logrus.Debugf("config: %+v", cfg)

	admins, err := authutil.ParseAdmins(cfg.AdminUserIDs)
	if err != nil {
		logrus.Fatalf("Failed to parse admin ids: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	var store *storage.Storage
	if cfg.JournalDSN != "" {
		db, err := storage.Open(cfg.JournalDSN)
		if err != nil {
			logrus.Fatalf("Failed to connect to database: %v", err)
		}
		store = storage.New(db)

		initCtx, migrateCancel := context.WithTimeout(ctx, 10*time.Second)
		defer migrateCancel()

		if err := store.Migrate(initCtx); err != nil {
			logrus.Fatalf("Failed to migrate database: %v", err)
		}
	} else {
		logrus.Warn("journal_dsn is empty, journal goes to the log only")
	}

	j := journal.New(store)

	bot, err := telebot.NewBot(botSettings(cfg.TelegramToken, j))
	if err != nil {
		logrus.Fatalf("Failed to create bot: %v", err)
	}

	loop := verification.NewLoop(256, cfg.BotHandleTimeout, j)

	deps := verification.Deps{
		Store:     storage.NewSettingsStore(cfg.CaptchaTimeoutMinutes(), time.Now),
		Client:    platform.NewTelebot(bot),
		Journal:   j,
		Scheduler: scheduler.Wall{},
		Admins:    admins,
		Enqueue:   loop.Post,
		Now:       time.Now,
	}
	if cfg.WeatherAPIKey != "" {
		deps.Weather = lookup.NewWeather(cfg.WeatherGeoURL, cfg.WeatherAPIURL, cfg.WeatherAPIKey)
	}
	if cfg.QuoteAPIURL != "" {
		deps.Quotes = lookup.NewQuotes(cfg.QuoteAPIURL)
	}
	coordinator := verification.NewCoordinator(deps)

	monitor.New(loop, cfg.BotHandleTimeout).Register(bot)

	cron := scheduler.NewCron()
	if store != nil {
		if err := cron.Add("journal_cleanup", cfg.JournalCleanupSchedule, func() {
			cleanupJournal(ctx, store, cfg.JournalRetention)
		}); err != nil {
			logrus.Fatalf("Failed to schedule journal cleanup: %v", err)
		}
	}

	e := echo.New()
	e.HideBanner = true
	api.NewService(store).Register(e, true)

	wg := sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		j.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		loop.Run(ctx, coordinator)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		bot.Start()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := e.Start(cfg.HTTPListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("http server failed: %v", err)
		}
	}()

	cron.Start()
	logrus.Infof("bot started, %d admins, %d cron jobs", len(admins.IDs()), cron.Jobs())

	<-ctx.Done()

	bot.Stop()
	cron.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("failed to shut down http server: %v", err)
	}

	logrus.Info("waiting for services to finish")
	wg.Wait()
	j.Close()
}

// botSettings runs handlers synchronously: updates are submitted to the
// event loop one by one, in the order the poller returns them.
func botSettings(token string, j journal.Sink) telebot.Settings {
	return telebot.Settings{
		Token:       token,
		Synchronous: true,
		Poller: &telebot.LongPoller{
			Timeout:        10 * time.Second,
			AllowedUpdates: []string{"message", "callback_query"},
		},
		OnError: func(err error, c telebot.Context) {
			var chatID int64
			if c != nil && c.Chat() != nil {
				chatID = c.Chat().ID
			}
			j.Error(context.Background(), chatID, "bot error", err)
		},
	}
}

func cleanupJournal(ctx context.Context, store *storage.Storage, retention time.Duration) {
	logger := logrus.WithField("component", "journal_cleaner")

	deleted, err := store.DeleteEntriesOlderThan(ctx, time.Now().Add(-retention))
	if err != nil {
		logger.Errorf("failed to delete old journal entries: %v", err)
		return
	}
	if deleted == 0 {
		logger.Debug("no old journal entries to clean")
		return
	}
	logger.Infof("deleted %d journal entries older than %s", deleted, retention)
}

func setupConfig() {
	viper.SetDefault("bot_handle_timeout", "10s")
	viper.SetDefault("default_captcha_timeout", "5m")
	viper.SetDefault("weather_geo_url", "https://geoapi.qweather.com")
	viper.SetDefault("weather_api_url", "https://api.qweather.com")
	config.SetupCommon()

	viper.BindEnv("weather_api_key")
	viper.BindEnv("quote_api_url")
	viper.MustBindEnv("telegram_token")
	viper.MustBindEnv("admin_user_ids")
}
