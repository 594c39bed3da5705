package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	"ENV", "LOG_LEVEL", "LOG_FORMAT", "LIBRIS_DATA_DIR", "DB_PATH",
	"SERVER_HOST", "SERVER_PORT", "API_PREFIX", "SERVER_READ_TIMEOUT",
	"SERVER_WRITE_TIMEOUT", "SERVER_IDLE_TIMEOUT", "CORS_ALLOWED_ORIGINS",
	"TOKEN_KEY_PATH", "ACCESS_TOKEN_TTL", "AUTH_RATE_LIMIT", "AUTH_RATE_BURST",
	"LENDING_DEFAULT_QUOTA", "SEARCH_ENABLED", "AUDIT_ENABLED", "AUDIT_RETENTION",
	"TRUST_PROXY",
}

// clearConfigEnv blanks every key Load reads so the host environment cannot leak in.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvKeys {
		t.Setenv(key, "")
	}
}

func loadForTest(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	base := []string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}
	return Load(append(base, args...))
}

func validConfig() *Config {
	return &Config{
		App:      AppConfig{Environment: "development"},
		Logger:   LoggerConfig{Level: "info"},
		Database: DatabaseConfig{Path: "/data/libris.db"},
		Server:   ServerConfig{Port: 8000},
		Auth:     AuthConfig{AccessTokenTTL: time.Hour},
		Lending:  LendingConfig{DefaultQuota: 5},
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearConfigEnv(t)
	dataDir := t.TempDir()

	cfg, err := loadForTest(t, "--data-dir", dataDir)
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "", cfg.Logger.Format)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:8000", cfg.Server.Addr())
	assert.Equal(t, "/api", cfg.Server.APIPrefix)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.False(t, cfg.Server.TrustProxy)
	assert.Equal(t, 24*time.Hour, cfg.Auth.AccessTokenTTL)
	assert.InDelta(t, 1.0, cfg.Auth.RateLimit, 0.0001)
	assert.Equal(t, 10, cfg.Auth.RateBurst)
	assert.Equal(t, 5, cfg.Lending.DefaultQuota)
	assert.True(t, cfg.Search.Enabled)
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, 30*24*time.Hour, cfg.Audit.Retention)

	assert.Equal(t, dataDir, cfg.Data.Dir)
	assert.Equal(t, filepath.Join(dataDir, "libris.db"), cfg.Database.Path)
	assert.Equal(t, filepath.Join(dataDir, "token.key"), cfg.Auth.TokenKeyPath)
	assert.Equal(t, filepath.Join(dataDir, "search"), cfg.SearchIndexPath())
	assert.Equal(t, filepath.Join(dataDir, "audit"), cfg.AuditPath())
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("LENDING_DEFAULT_QUOTA", "3")
	t.Setenv("SEARCH_ENABLED", "false")

	cfg, err := loadForTest(t, "--data-dir", t.TempDir(), "--port", "9100")
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Lending.DefaultQuota)
	assert.False(t, cfg.Search.Enabled)
}

func TestLoad_EnvValues(t *testing.T) {
	clearConfigEnv(t)
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("DB_PATH", dbPath)
	t.Setenv("API_PREFIX", "library/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("ACCESS_TOKEN_TTL", "90m")
	t.Setenv("AUTH_RATE_LIMIT", "0.5")
	t.Setenv("TRUST_PROXY", "true")

	cfg, err := loadForTest(t, "--data-dir", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.App.Environment)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, dbPath, cfg.Database.Path)
	assert.Equal(t, "/library", cfg.Server.APIPrefix)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 90*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.InDelta(t, 0.5, cfg.Auth.RateLimit, 0.0001)
	assert.True(t, cfg.Server.TrustProxy)
}

func TestLoad_EnvFile(t *testing.T) {
	clearConfigEnv(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SERVER_PORT=8123\nLENDING_DEFAULT_QUOTA=7\n"), 0o600))

	cfg, err := Load([]string{"--env-file", envFile, "--data-dir", t.TempDir()})
	require.NoError(t, err)

	assert.Equal(t, 8123, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Lending.DefaultQuota)
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearConfigEnv(t)

	_, err := loadForTest(t, "--data-dir", t.TempDir(), "--access-token-ttl", "forever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access token ttl")
}

func TestLoad_UnknownFlag(t *testing.T) {
	clearConfigEnv(t)

	_, err := loadForTest(t, "--no-such-flag")
	assert.Error(t, err)
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_AllEnvironments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"test", false},
		{"", false},
		{"DEVELOPMENT", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig()
			cfg.App.Environment = tt.env

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log level", func(c *Config) { c.Logger.Level = "verbose" }},
		{"log format", func(c *Config) { c.Logger.Format = "xml" }},
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"zero quota", func(c *Config) { c.Lending.DefaultQuota = 0 }},
		{"negative quota", func(c *Config) { c.Lending.DefaultQuota = -1 }},
		{"zero ttl", func(c *Config) { c.Auth.AccessTokenTTL = 0 }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"negative retention", func(c *Config) { c.Audit.Retention = -time.Hour }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandPath("", "/default")
	require.NoError(t, err)
	assert.Equal(t, "/default", got)

	got, err = expandPath("~/libris", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "libris"), got)

	got, err = expandPath("/abs/../abs/path", "")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)

	got, err = expandPath("relative", "")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}

func TestNormalizePrefix(t *testing.T) {
	assert.Equal(t, "/api", normalizePrefix("/api"))
	assert.Equal(t, "/api", normalizePrefix("api/"))
	assert.Equal(t, "", normalizePrefix("/"))
	assert.Equal(t, "", normalizePrefix(""))
}

func TestGetConfigValue_Precedence(t *testing.T) {
	assert.Equal(t, "flag-value", getConfigValue("flag-value", "TEST_ENV_KEY", "default-value"))

	t.Setenv("TEST_ENV_KEY", "env-value")
	assert.Equal(t, "env-value", getConfigValue("", "TEST_ENV_KEY", "default-value"))

	assert.Equal(t, "default-value", getConfigValue("", "NONEXISTENT_KEY", "default-value"))
}

func TestGetBoolConfigValue(t *testing.T) {
	for _, v := range []string{"true", "TRUE", "1", "yes"} {
		assert.True(t, getBoolConfigValue(v, "UNSET_BOOL_KEY", false), v)
	}
	assert.False(t, getBoolConfigValue("off", "UNSET_BOOL_KEY", true))
	assert.True(t, getBoolConfigValue("", "UNSET_BOOL_KEY", true))
}

func TestGetIntConfigValue_BadValueFallsBack(t *testing.T) {
	assert.Equal(t, 5, getIntConfigValue("five", "UNSET_INT_KEY", 5))
	assert.Equal(t, 12, getIntConfigValue("12", "UNSET_INT_KEY", 5))
}

func TestLoadEnvFile_ValidFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := `# Test env file
LIBRIS_TEST_ENV=staging
# Comment line
LIBRIS_TEST_QUOTED="some value"
LIBRIS_TEST_SINGLE='another value'

LIBRIS_TEST_SPACED  =  spaced value
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))

	for _, key := range []string{"LIBRIS_TEST_ENV", "LIBRIS_TEST_QUOTED", "LIBRIS_TEST_SINGLE", "LIBRIS_TEST_SPACED"} {
		t.Setenv(key, "")
	}

	require.NoError(t, loadEnvFile(envFile))

	assert.Equal(t, "staging", os.Getenv("LIBRIS_TEST_ENV"))
	assert.Equal(t, "some value", os.Getenv("LIBRIS_TEST_QUOTED"))
	assert.Equal(t, "another value", os.Getenv("LIBRIS_TEST_SINGLE"))
	assert.Equal(t, "spaced value", os.Getenv("LIBRIS_TEST_SPACED"))
}

func TestLoadEnvFile_InvalidFormat(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := `VALID_KEY=valid_value
INVALID LINE WITHOUT EQUALS
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))
	t.Setenv("VALID_KEY", "")

	err := loadEnvFile(envFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestLoadEnvFile_NonExistentFile(t *testing.T) {
	assert.Error(t, loadEnvFile("/nonexistent/file/.env"))
}

func TestLoadEnvFile_ExistingEnvVarsNotOverwritten(t *testing.T) {
	t.Setenv("LIBRIS_TEST_VAR", "original-value")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(`LIBRIS_TEST_VAR=new-value`), 0o644))

	require.NoError(t, loadEnvFile(envFile))
	assert.Equal(t, "original-value", os.Getenv("LIBRIS_TEST_VAR"))
}
