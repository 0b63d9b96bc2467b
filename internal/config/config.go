package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// offline builds fall back to this secret so a fresh checkout runs.
const devSecret = "mindengage-exams-dev-secret"

type Config struct {
	Mode     Mode
	HTTPAddr string

	DBDriver string
	DBDSN    string

	BlobBasePath string

	AuthHMACSecret string
	TokenTTL       time.Duration
	DevTokenTTL    time.Duration
	AllowDevToken  bool
	BcryptCost     int

	ScoringWeighted bool

	CORSOrigins []string

	LogLevel  string
	LogFormat string // json|console

	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment. A .env file and then
// .env.<mode> in dir are loaded first when present; real environment
// variables always win.
func Load(dir string) (Config, error) {
	if err := loadDotEnv(filepath.Join(dir, ".env")); err != nil {
		return Config{}, err
	}
	mode := Mode(strings.ToLower(os.Getenv("MODE")))
	if mode == "" {
		mode = ModeOffline
	}
	if err := loadDotEnv(filepath.Join(dir, ".env."+string(mode))); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "")
	v.SetDefault("BLOB_BASE_PATH", "./data")
	v.SetDefault("AUTH_HMAC_SECRET", "")
	v.SetDefault("TOKEN_TTL", "7d")
	v.SetDefault("DEV_TOKEN_TTL", "30d")
	v.SetDefault("ALLOW_DEV_TOKEN", false)
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("SCORING_WEIGHTED", false)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	v.AutomaticEnv()

	c := Config{
		Mode:            mode,
		HTTPAddr:        v.GetString("HTTP_ADDR"),
		DBDriver:        strings.ToLower(v.GetString("DB_DRIVER")),
		DBDSN:           v.GetString("DB_DSN"),
		BlobBasePath:    v.GetString("BLOB_BASE_PATH"),
		AuthHMACSecret:  v.GetString("AUTH_HMAC_SECRET"),
		AllowDevToken:   v.GetBool("ALLOW_DEV_TOKEN"),
		BcryptCost:      v.GetInt("BCRYPT_COST"),
		ScoringWeighted: v.GetBool("SCORING_WEIGHTED"),
		CORSOrigins:     csv(v.GetString("CORS_ORIGINS")),
		LogLevel:        v.GetString("LOG_LEVEL"),
		LogFormat:       strings.ToLower(v.GetString("LOG_FORMAT")),
	}
	var err error
	for key, dst := range map[string]*time.Duration{
		"TOKEN_TTL":        &c.TokenTTL,
		"DEV_TOKEN_TTL":    &c.DevTokenTTL,
		"SHUTDOWN_TIMEOUT": &c.ShutdownTimeout,
	} {
		if *dst, err = parseDuration(key, v.GetString(key)); err != nil {
			return Config{}, err
		}
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
		if mode == ModeOffline {
			c.LogFormat = "console"
		}
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeOffline, ModeOnline:
	default:
		return errors.Errorf("config: unknown MODE %q", c.Mode)
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return errors.Errorf("config: unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.AuthHMACSecret == "" {
		if c.Mode == ModeOnline {
			return errors.New("config: AUTH_HMAC_SECRET is required in online mode")
		}
		c.AuthHMACSecret = devSecret
	}
	if c.TokenTTL <= 0 || c.DevTokenTTL <= 0 {
		return errors.New("config: TOKEN_TTL and DEV_TOKEN_TTL must be positive")
	}
	return nil
}

// UsesDevSecret reports whether the built-in secret is in effect.
func (c Config) UsesDevSecret() bool { return c.AuthHMACSecret == devSecret }

// parseDuration accepts time.ParseDuration syntax plus a whole-day form
// such as "7d".
func parseDuration(key, s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(n)
		if err == nil {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Errorf("config: invalid %s %q (use e.g. 168h or 7d)", key, s)
	}
	return d, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "config: stat %s", path)
	}
	return errors.Wrapf(godotenv.Load(path), "config: load %s", path)
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
