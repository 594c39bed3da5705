// Package config loads server configuration from flags, environment variables, and an optional .env file.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Data     DataConfig
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Lending  LendingConfig
	Search   SearchConfig
	Audit    AuditConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logger configuration.
type LoggerConfig struct {
	Level  string
	Format string // "json", "pretty", or empty to pick by environment
}

// DataConfig holds the data directory everything else defaults into.
type DataConfig struct {
	Dir string
}

// DatabaseConfig holds the SQLite store location.
type DatabaseConfig struct {
	Path string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string
	Port         int
	APIPrefix    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
	TrustProxy   bool // Take the client address from X-Forwarded-For / X-Real-IP
}

// Addr returns the host:port the server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AuthConfig holds token and login throttling configuration.
type AuthConfig struct {
	TokenKeyPath   string
	AccessTokenTTL time.Duration
	RateLimit      float64 // login/register attempts per second per client
	RateBurst      int
}

// LendingConfig holds lending defaults.
type LendingConfig struct {
	DefaultQuota int
}

// SearchConfig toggles the full-text book index.
type SearchConfig struct {
	Enabled bool
}

// AuditConfig toggles the request audit log.
type AuditConfig struct {
	Enabled   bool
	Retention time.Duration // records older than this are pruned; 0 keeps everything
}

// LoadConfig loads configuration from the process arguments.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load loads configuration with precedence: flags > env vars > .env file > defaults.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("libris", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", "", "Log format (json, pretty)")
	dataDir := fs.String("data-dir", "", "Directory for the database, token key, and indexes")
	dbPath := fs.String("db-path", "", "Path to the SQLite database file")

	// Server flags
	host := fs.String("host", "", "Listen host (default: 127.0.0.1)")
	port := fs.String("port", "", "Server port (default: 8000)")
	apiPrefix := fs.String("api-prefix", "", "Path prefix for the API (default: /api)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	corsOrigins := fs.String("cors-origins", "", "Comma-separated allowed CORS origins (default: *)")
	trustProxy := fs.String("trust-proxy", "", "Trust X-Forwarded-For and X-Real-IP from a reverse proxy (default: false)")

	// Auth flags
	tokenKeyPath := fs.String("token-key-path", "", "Path to the token signing key")
	accessTokenTTL := fs.String("access-token-ttl", "", "Access token lifetime (e.g., 24h)")
	authRateLimit := fs.String("auth-rate-limit", "", "Login attempts per second per client (default: 1)")
	authRateBurst := fs.String("auth-rate-burst", "", "Login attempt burst per client (default: 10)")

	defaultQuota := fs.String("default-quota", "", "Concurrent loans a new reader may hold (default: 5)")
	searchEnabled := fs.String("search-enabled", "", "Maintain the full-text book index (default: true)")
	auditEnabled := fs.String("audit-enabled", "", "Record requests in the audit log (default: true)")
	auditRetention := fs.String("audit-retention", "", "How long audit records are kept, 0 for forever (default: 720h)")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level:  getConfigValue(*logLevel, "LOG_LEVEL", "info"),
			Format: getConfigValue(*logFormat, "LOG_FORMAT", ""),
		},
		Server: ServerConfig{
			Host:        getConfigValue(*host, "SERVER_HOST", "127.0.0.1"),
			Port:        getIntConfigValue(*port, "SERVER_PORT", 8000),
			APIPrefix:   normalizePrefix(getConfigValue(*apiPrefix, "API_PREFIX", "/api")),
			CORSOrigins: splitList(getConfigValue(*corsOrigins, "CORS_ALLOWED_ORIGINS", "*")),
			TrustProxy:  getBoolConfigValue(*trustProxy, "TRUST_PROXY", false),
		},
		Auth: AuthConfig{
			RateLimit: getFloatConfigValue(*authRateLimit, "AUTH_RATE_LIMIT", 1),
			RateBurst: getIntConfigValue(*authRateBurst, "AUTH_RATE_BURST", 10),
		},
		Lending: LendingConfig{
			DefaultQuota: getIntConfigValue(*defaultQuota, "LENDING_DEFAULT_QUOTA", 5),
		},
		Search: SearchConfig{
			Enabled: getBoolConfigValue(*searchEnabled, "SEARCH_ENABLED", true),
		},
		Audit: AuditConfig{
			Enabled: getBoolConfigValue(*auditEnabled, "AUDIT_ENABLED", true),
		},
	}

	var err error
	if cfg.Auth.AccessTokenTTL, err = getDurationConfigValue(*accessTokenTTL, "ACCESS_TOKEN_TTL", "24h"); err != nil {
		return nil, fmt.Errorf("invalid access token ttl: %w", err)
	}
	if cfg.Audit.Retention, err = getDurationConfigValue(*auditRetention, "AUDIT_RETENTION", "720h"); err != nil {
		return nil, fmt.Errorf("invalid audit retention: %w", err)
	}
	if cfg.Server.ReadTimeout, err = getDurationConfigValue(*readTimeout, "SERVER_READ_TIMEOUT", "15s"); err != nil {
		return nil, fmt.Errorf("invalid read timeout: %w", err)
	}
	if cfg.Server.WriteTimeout, err = getDurationConfigValue(*writeTimeout, "SERVER_WRITE_TIMEOUT", "15s"); err != nil {
		return nil, fmt.Errorf("invalid write timeout: %w", err)
	}
	if cfg.Server.IdleTimeout, err = getDurationConfigValue(*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"); err != nil {
		return nil, fmt.Errorf("invalid idle timeout: %w", err)
	}

	if err := cfg.expandPaths(
		getConfigValue(*dataDir, "LIBRIS_DATA_DIR", ""),
		getConfigValue(*dbPath, "DB_PATH", ""),
		getConfigValue(*tokenKeyPath, "TOKEN_KEY_PATH", ""),
	); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	switch c.Logger.Format {
	case "", "json", "pretty":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or pretty)", c.Logger.Format)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Lending.DefaultQuota <= 0 {
		return fmt.Errorf("default quota must be positive, got %d", c.Lending.DefaultQuota)
	}

	if c.Auth.AccessTokenTTL <= 0 {
		return errors.New("access token ttl must be positive")
	}

	if c.Audit.Retention < 0 {
		return errors.New("audit retention cannot be negative")
	}

	if c.Database.Path == "" {
		return errors.New("database path cannot be empty after expansion")
	}

	return nil
}

// expandPaths resolves the data directory and the files that default into it.
func (c *Config) expandPaths(dataDir, dbPath, keyPath string) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	if c.Data.Dir, err = expandPath(dataDir, filepath.Join(homeDir, ".libris")); err != nil {
		return fmt.Errorf("invalid data dir: %w", err)
	}
	if c.Database.Path, err = expandPath(dbPath, filepath.Join(c.Data.Dir, "libris.db")); err != nil {
		return fmt.Errorf("invalid database path: %w", err)
	}
	if c.Auth.TokenKeyPath, err = expandPath(keyPath, filepath.Join(c.Data.Dir, "token.key")); err != nil {
		return fmt.Errorf("invalid token key path: %w", err)
	}
	return nil
}

// SearchIndexPath returns where the book index lives on disk.
func (c *Config) SearchIndexPath() string {
	return filepath.Join(c.Data.Dir, "search")
}

// AuditPath returns where the audit log lives on disk.
func (c *Config) AuditPath() string {
	return filepath.Join(c.Data.Dir, "audit")
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getConfigValue returns a value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result float64
	if _, err := fmt.Sscanf(strValue, "%g", &result); err != nil {
		return defaultValue
	}
	return result
}

func getDurationConfigValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	strValue := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(strValue)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", strValue, err)
	}
	return d, nil
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Real environment wins over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
