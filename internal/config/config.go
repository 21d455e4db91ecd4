package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string

	DBDriver string // sqlite|postgres|memory
	DBDSN    string

	AuthHMACSecret  string
	EnableLocalAuth bool

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	Oracle OracleConfig

	// SessionFloor is the minimum question limit of an adaptive session.
	SessionFloor int

	Redis RedisConfig

	LogLevel string
	LogFile  string
}

type OracleConfig struct {
	BaseURL      string
	Timeout      time.Duration
	RPS          float64
	TokenURL     string
	ClientID     string
	ClientSecret string
}

type RedisConfig struct {
	Addr     string // empty disables the bank cache
	Password string
	DB       int
	TTL      time.Duration
}

// CORSOrigins returns the allow-list for the configured mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

var keys = map[string]any{
	"MODE":                 string(ModeOffline),
	"HTTP_ADDR":            ":8080",
	"DB_DRIVER":            "sqlite",
	"DB_DSN":               "",
	"AUTH_HMAC_SECRET":     "supersecret-dev-key",
	"ENABLE_LOCAL_AUTH":    true,
	"CORS_ORIGINS_ONLINE":  "https://assess.mindengage.ai",
	"CORS_ORIGINS_OFFLINE": "http://localhost:3000,http://localhost:3010",
	"ORACLE_BASE_URL":      "",
	"ORACLE_TIMEOUT":       "5s",
	"ORACLE_RPS":           0.0,
	"ORACLE_TOKEN_URL":     "",
	"ORACLE_CLIENT_ID":     "",
	"ORACLE_CLIENT_SECRET": "",
	"SESSION_FLOOR":        15,
	"REDIS_ADDR":           "",
	"REDIS_PASSWORD":       "",
	"REDIS_DB":             0,
	"CACHE_TTL":            "10m",
	"LOG_LEVEL":            "info",
	"LOG_FILE":             "",
}

// FromEnv reads the configuration from the environment, optionally layered
// over the YAML file named by CONFIG_FILE.
func FromEnv() (Config, error) {
	v, err := read()
	if err != nil {
		return Config{}, err
	}
	return load(v)
}

// Database resolves only the database settings, from the same sources as
// FromEnv, for commands that never reach the oracle.
func Database() (driver, dsn string, err error) {
	v, err := read()
	if err != nil {
		return "", "", err
	}
	driver = strings.ToLower(v.GetString("DB_DRIVER"))
	switch driver {
	case "sqlite", "postgres":
	default:
		return "", "", fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", driver)
	}
	return driver, v.GetString("DB_DSN"), nil
}

func read() (*viper.Viper, error) {
	v := viper.New()
	for k, def := range keys {
		v.SetDefault(k, def)
		_ = v.BindEnv(k)
	}
	v.AutomaticEnv()
	_ = v.BindEnv("CONFIG_FILE")
	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	return v, nil
}

func load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Mode:               Mode(strings.ToLower(v.GetString("MODE"))),
		HTTPAddr:           v.GetString("HTTP_ADDR"),
		DBDriver:           strings.ToLower(v.GetString("DB_DRIVER")),
		DBDSN:              v.GetString("DB_DSN"),
		AuthHMACSecret:     v.GetString("AUTH_HMAC_SECRET"),
		EnableLocalAuth:    v.GetBool("ENABLE_LOCAL_AUTH"),
		CORSOriginsOnline:  csv(v.GetString("CORS_ORIGINS_ONLINE")),
		CORSOriginsOffline: csv(v.GetString("CORS_ORIGINS_OFFLINE")),
		Oracle: OracleConfig{
			BaseURL:      v.GetString("ORACLE_BASE_URL"),
			Timeout:      v.GetDuration("ORACLE_TIMEOUT"),
			RPS:          v.GetFloat64("ORACLE_RPS"),
			TokenURL:     v.GetString("ORACLE_TOKEN_URL"),
			ClientID:     v.GetString("ORACLE_CLIENT_ID"),
			ClientSecret: v.GetString("ORACLE_CLIENT_SECRET"),
		},
		SessionFloor: v.GetInt("SESSION_FLOOR"),
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			TTL:      v.GetDuration("CACHE_TTL"),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
		LogFile:  v.GetString("LOG_FILE"),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeOffline, ModeOnline:
	default:
		return fmt.Errorf("MODE must be offline or online, got %q", c.Mode)
	}
	switch c.DBDriver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite, postgres or memory, got %q", c.DBDriver)
	}
	if c.Oracle.BaseURL == "" {
		return fmt.Errorf("ORACLE_BASE_URL is required")
	}
	if u, err := url.Parse(c.Oracle.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("ORACLE_BASE_URL %q is not an absolute url", c.Oracle.BaseURL)
	}
	if c.Oracle.TokenURL != "" && c.Oracle.ClientID == "" {
		return fmt.Errorf("ORACLE_CLIENT_ID is required with ORACLE_TOKEN_URL")
	}
	if c.SessionFloor < 1 {
		return fmt.Errorf("SESSION_FLOOR must be positive, got %d", c.SessionFloor)
	}
	if c.Mode == ModeOnline && len(c.AuthHMACSecret) < 32 {
		return fmt.Errorf("AUTH_HMAC_SECRET is too short (%d chars), need at least 32 in online mode", len(c.AuthHMACSecret))
	}
	return nil
}

func csv(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
