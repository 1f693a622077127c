// Package config loads runtime configuration: everything the engine
// needs besides the spec document itself (which internal/spec parses
// on its own). Log level, storage backend, platform credentials,
// scheduler defaults, and outbound mail all live here.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/rakunlabs/chu/loader/external/loaderconsul"
	_ "github.com/rakunlabs/chu/loader/external/loadervault"
	"github.com/rakunlabs/chu/loader/loaderenv"
	"github.com/rakunlabs/logi"

	"github.com/rakunlabs/chu"
)

// EnvPrefix is the environment-variable prefix chu's env loader
// recognizes, e.g. BOT_STORE_SQLITE_DATASOURCE.
const EnvPrefix = "BOT_"

type Config struct {
	LogLevel string `cfg:"log_level,no_prefix" default:"info"`

	// SpecPath points at the YAML document describing commands, flows,
	// event handlers, cron jobs, automod rules, and component
	// templates to load at startup.
	SpecPath string `cfg:"spec_path" default:"./spec.yaml"`

	Store     Store     `cfg:"store"`
	Platform  Platform  `cfg:"platform"`
	Scheduler Scheduler `cfg:"scheduler"`
	SMTP      SMTP      `cfg:"smtp"`
}

// Store selects and configures exactly one persistence backend. When
// neither Postgres nor SQLite is set, the runtime falls back to the
// in-process memory backend (suitable for development only, since
// state tables and stored values do not survive a restart).
type Store struct {
	Postgres *StorePostgres `cfg:"postgres"`
	SQLite   *StoreSQLite   `cfg:"sqlite"`
}

type StorePostgres struct {
	Datasource      string         `cfg:"datasource" log:"-"`
	Schema          string         `cfg:"schema"`
	TablePrefix     string         `cfg:"table_prefix"`
	ConnMaxLifetime *time.Duration `cfg:"conn_max_lifetime"`
	MaxIdleConns    *int           `cfg:"max_idle_conns"`
	MaxOpenConns    *int           `cfg:"max_open_conns"`
}

type StoreSQLite struct {
	Datasource  string `cfg:"datasource"`
	TablePrefix string `cfg:"table_prefix"`
}

// Platform carries the credentials for whichever chat-platform
// adapter the runtime is started against. Only one is expected to be
// populated per deployment.
type Platform struct {
	Discord  *PlatformDiscord  `cfg:"discord"`
	Telegram *PlatformTelegram `cfg:"telegram"`
}

type PlatformDiscord struct {
	Token string `cfg:"token" log:"-"`
}

type PlatformTelegram struct {
	Token string `cfg:"token" log:"-"`
}

// Scheduler configures the cron engine's fallback timezone: a job
// with no explicit timezone, or an unparsable one, runs against this
// default instead.
type Scheduler struct {
	DefaultTimezone string `cfg:"default_timezone" default:"UTC"`
}

// SMTP is the outbound mail configuration shared by every
// notify_email action across the lifetime of the runtime.
type SMTP struct {
	Host               string `cfg:"host"`
	Port               int    `cfg:"port" default:"587"`
	Username           string `cfg:"username" log:"-"`
	Password           string `cfg:"password" log:"-"`
	From               string `cfg:"from"`
	TLS                bool   `cfg:"tls" default:"true"`
	NoTLS              bool   `cfg:"no_tls"`
	InsecureSkipVerify bool   `cfg:"insecure_skip_verify"`
}

func Load(ctx context.Context, path string) (*Config, error) {
	var cfg Config
	if err := chu.Load(ctx, path, &cfg, chu.WithLoaderOption(loaderenv.New(loaderenv.WithPrefix(EnvPrefix)))); err != nil {
		return nil, err
	}

	if err := logi.SetLogLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("set log level %s: %w", cfg.LogLevel, err)
	}

	slog.Info("loaded configuration", "config", chu.MarshalMap(cfg))

	return &cfg, nil
}
