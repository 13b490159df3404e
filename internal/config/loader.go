package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PREDICT_* environment variable overrides, and
// returns the final Config. A missing file is not an error, so a deployment
// can be configured from the environment alone. The returned Config has NOT
// been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PREDICT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty).
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.DSN, "PREDICT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PREDICT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PREDICT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PREDICT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PREDICT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PREDICT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PREDICT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PREDICT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PREDICT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PREDICT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PREDICT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDICT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDICT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDICT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDICT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDICT_REDIS_TLS_ENABLED")
	setInt64(&cfg.Redis.StreamLen, "PREDICT_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PREDICT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PREDICT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PREDICT_S3_REGION")
	setStr(&cfg.S3.Bucket, "PREDICT_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "PREDICT_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "PREDICT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PREDICT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PREDICT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PREDICT_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "PREDICT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PREDICT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PREDICT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "PREDICT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "PREDICT_SERVER_RATE_WINDOW")

	// ── Analysis ──
	setStr(&cfg.Analysis.BaseURL, "PREDICT_ANALYSIS_BASE_URL")
	setDuration(&cfg.Analysis.ConnectTimeout, "PREDICT_ANALYSIS_CONNECT_TIMEOUT")
	setDuration(&cfg.Analysis.ReadTimeout, "PREDICT_ANALYSIS_READ_TIMEOUT")
	setDuration(&cfg.Analysis.WriteTimeout, "PREDICT_ANALYSIS_WRITE_TIMEOUT")
	setDuration(&cfg.Analysis.CacheTTL, "PREDICT_ANALYSIS_CACHE_TTL")
	setInt(&cfg.Analysis.RequestsPerMinute, "PREDICT_ANALYSIS_REQUESTS_PER_MINUTE")

	// ── Export ──
	setBool(&cfg.Export.Enabled, "PREDICT_EXPORT_ENABLED")
	setStr(&cfg.Export.Cron, "PREDICT_EXPORT_CRON")
	setDuration(&cfg.Export.LockTTL, "PREDICT_EXPORT_LOCK_TTL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PREDICT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PREDICT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PREDICT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PREDICT_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.Cooldown, "PREDICT_NOTIFY_COOLDOWN")

	// ── Top-level ──
	setStr(&cfg.Mode, "PREDICT_MODE")
	setStr(&cfg.LogLevel, "PREDICT_LOG_LEVEL")
	setStr(&cfg.Timezone, "PREDICT_TIMEZONE")
	setBool(&cfg.Ephemeral, "PREDICT_EPHEMERAL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
