package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	TelegramToken    string        `mapstructure:"telegram_token"`
	AdminUserIDs     string        `mapstructure:"admin_user_ids"`
	BotHandleTimeout time.Duration `mapstructure:"bot_handle_timeout"`

	DefaultCaptchaTimeout time.Duration `mapstructure:"default_captcha_timeout"`

	JournalDSN             string        `mapstructure:"journal_dsn"`
	JournalRetention       time.Duration `mapstructure:"journal_retention"`
	JournalCleanupSchedule string        `mapstructure:"journal_cleanup_schedule"`

	HTTPListenAddr string `mapstructure:"http_listen_addr"`

	WeatherAPIKey string `mapstructure:"weather_api_key"`
	WeatherGeoURL string `mapstructure:"weather_geo_url"`
	WeatherAPIURL string `mapstructure:"weather_api_url"`
	QuoteAPIURL   string `mapstructure:"quote_api_url"`
}

func New() *Config {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		logrus.Fatalf("unmarshalling config: %v", err)
	}
	return cfg
}

// CaptchaTimeoutMinutes is the timeout new chats start with.
func (c *Config) CaptchaTimeoutMinutes() int {
	minutes := int(c.DefaultCaptchaTimeout / time.Minute)
	if minutes <= 0 {
		return 5
	}
	return minutes
}

func SetupCommon() {
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("no .env file loaded: %v", err)
	}

	viper.SetDefault("http_listen_addr", ":8080")
	viper.SetDefault("journal_retention", "720h")
	viper.SetDefault("journal_cleanup_schedule", "0 0 * * * *")
	viper.SetEnvPrefix("GATEKEEPER")

	viper.BindEnv("journal_dsn")
	viper.AutomaticEnv()
}
