// Package config loads the engine configuration from the environment.
package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"pvp-duel-engine/settlement"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	DatabaseURL      string   `env:"DATABASE_URL,required"`
	GameServiceToken string   `env:"GAME_SERVICE_TOKEN,required"`
	ListenAddr       string   `env:"LISTEN_ADDR" envDefault:":5200"`
	AllowedOrigins   []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	RedisURL    string        `env:"REDIS_URL"`
	MoveLockTTL time.Duration `env:"MOVE_LOCK_TTL" envDefault:"10s"`

	EventsWebhookURL   string        `env:"EVENTS_WEBHOOK_URL"`
	EventsPollInterval time.Duration `env:"EVENTS_POLL_INTERVAL" envDefault:"2s"`
	SyncServiceURL     string        `env:"SYNC_SERVICE_URL"`
	SyncInterval       time.Duration `env:"SYNC_INTERVAL" envDefault:"1m"`

	ReaperInterval time.Duration `env:"REAPER_INTERVAL" envDefault:"30s"`
	AcceptWindow   time.Duration `env:"ACCEPT_WINDOW" envDefault:"5m"`
	PlayWindow     time.Duration `env:"PLAY_WINDOW" envDefault:"10m"`

	MinStake           decimal.Decimal `env:"MIN_STAKE" envDefault:"1"`
	MaxStake           decimal.Decimal `env:"MAX_STAKE" envDefault:"1000"`
	CommissionRate     decimal.Decimal `env:"COMMISSION_RATE" envDefault:"0.05"`
	WinnerReferralRate decimal.Decimal `env:"WINNER_REFERRAL_RATE" envDefault:"0.20"`
	LoserReferralRate  decimal.Decimal `env:"LOSER_REFERRAL_RATE" envDefault:"0.10"`

	StrictTurns    bool          `env:"STRICT_TURNS" envDefault:"false"`
	MaxActiveDuels int           `env:"MAX_ACTIVE_DUELS" envDefault:"3"`
	CreateCooldown time.Duration `env:"CREATE_COOLDOWN" envDefault:"30s"`

	ArchiveAfter    time.Duration `env:"ARCHIVE_AFTER" envDefault:"720h"`
	ArchiveInterval time.Duration `env:"ARCHIVE_INTERVAL" envDefault:"1h"`
	R2              R2Config
}

type R2Config struct {
	AccountID       string `env:"CLOUDFLARE_ACCOUNT_ID"`
	AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"R2_ACCESS_KEY_SECRET"`
	Bucket          string `env:"R2_BUCKET_NAME"`
}

// Enabled reports whether archiving has somewhere to write.
func (r R2Config) Enabled() bool { return r.Bucket != "" && r.AccountID != "" }

// Load reads .env (if present) and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ .env file not found, relying on system environment variables")
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.validate()
}

// FromMap parses configuration from an explicit variable set.
func FromMap(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.validate()
}

// Rates returns the settlement rates.
func (c Config) Rates() settlement.Rates {
	return settlement.Rates{
		Commission:     c.CommissionRate,
		WinnerReferral: c.WinnerReferralRate,
		LoserReferral:  c.LoserReferralRate,
	}
}

func (c Config) validate() error {
	if !c.MinStake.IsPositive() || c.MaxStake.LessThan(c.MinStake) {
		return fmt.Errorf("invalid stake bounds [%s, %s]", c.MinStake, c.MaxStake)
	}
	if c.AcceptWindow <= 0 || c.PlayWindow <= 0 || c.ReaperInterval <= 0 || c.SyncInterval <= 0 {
		return fmt.Errorf("windows and worker intervals must be positive")
	}
	if err := c.Rates().Validate(); err != nil {
		return err
	}
	for i, o := range c.AllowedOrigins {
		c.AllowedOrigins[i] = strings.TrimSpace(o)
	}
	return nil
}
