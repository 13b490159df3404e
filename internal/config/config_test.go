package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "server"
timezone = "Asia/Shanghai"

[server]
port = 9090

[analysis]
base_url = "http://analysis:5000"
read_timeout = "45s"

[export]
enabled = true
cron = "@hourly"

[s3]
enabled = true
bucket = "from-file"
`), 0o600))

	t.Setenv("PREDICT_SERVER_PORT", "9191")
	t.Setenv("PREDICT_S3_BUCKET", "from-env")
	t.Setenv("PREDICT_NOTIFY_EVENTS", " export_done , ,analysis_failed")
	t.Setenv("PREDICT_EPHEMERAL", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.S3.Bucket)
	assert.Equal(t, "http://analysis:5000", cfg.Analysis.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.Analysis.ReadTimeout.Duration)
	assert.Equal(t, 300*time.Second, cfg.Analysis.ConnectTimeout.Duration)
	assert.Equal(t, []string{"export_done", "analysis_failed"}, cfg.Notify.Events)
	assert.True(t, cfg.Ephemeral)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Shanghai", loc.String())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Server.Port, cfg.Server.Port)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = "), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Timezone = "Mars/Olympus"
	cfg.Server.Port = 0
	cfg.Export.Enabled = true
	cfg.Export.Cron = "every tuesday"
	cfg.Notify.TelegramToken = "t"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "trade"`,
		"Mars/Olympus",
		"server: port",
		"export: requires s3.enabled",
		"export: invalid cron",
		"telegram_chat_id",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateEphemeralSkipsBackingStores(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Host = ""
	cfg.Redis.Addr = ""
	require.Error(t, cfg.Validate())

	cfg.Ephemeral = true
	require.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pg-secret"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Server.APIKey = "key"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Empty(t, out.Notify.TelegramToken)
	assert.Equal(t, "pg-secret", cfg.Postgres.Password)

	out.Server.CORSOrigins[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
}
