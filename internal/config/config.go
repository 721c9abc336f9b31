// Package config reads server settings from CHORELY_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port             string
	DBPath           string
	LogLevel         string
	LogFormat        string
	Location         *time.Location
	StockTimeout     time.Duration
	RetryAttempts    uint64
	VAPIDPublicKey   string
	VAPIDPrivateKey  string
	ReminderInterval time.Duration
	UserHeader       string
	RoleHeader       string
	RateLimit        int
	WSOrigins        []string
}

// PushEnabled reports whether both VAPID keys are set.
func (c Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// Load reads the environment. Unset variables take their defaults; values
// that are set but unparseable are an error.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Config{
		Port:            orDefault(getenv("CHORELY_PORT"), "8080"),
		DBPath:          orDefault(getenv("CHORELY_DB_PATH"), "chorely.db"),
		LogLevel:        orDefault(getenv("CHORELY_LOG_LEVEL"), "info"),
		LogFormat:       orDefault(getenv("CHORELY_LOG_FORMAT"), "text"),
		VAPIDPublicKey:  getenv("CHORELY_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: getenv("CHORELY_VAPID_PRIVATE_KEY"),
		UserHeader:      orDefault(getenv("CHORELY_USER_HEADER"), "X-Remote-User-Id"),
		RoleHeader:      orDefault(getenv("CHORELY_ROLE_HEADER"), "X-Remote-Role"),
	}

	var err error
	if cfg.Location, err = loadLocation(getenv("CHORELY_TIMEZONE")); err != nil {
		return Config{}, err
	}
	if cfg.StockTimeout, err = duration(getenv, "CHORELY_STOCK_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ReminderInterval, err = duration(getenv, "CHORELY_REMINDER_INTERVAL", time.Minute); err != nil {
		return Config{}, err
	}
	retries, err := integer(getenv, "CHORELY_RETRY_ATTEMPTS", 3)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryAttempts = uint64(retries)
	if cfg.RateLimit, err = integer(getenv, "CHORELY_RATE_LIMIT", 120); err != nil {
		return Config{}, err
	}

	if origins := getenv("CHORELY_WS_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.WSOrigins = append(cfg.WSOrigins, o)
			}
		}
	}

	if (cfg.VAPIDPublicKey == "") != (cfg.VAPIDPrivateKey == "") {
		return Config{}, fmt.Errorf("CHORELY_VAPID_PUBLIC_KEY and CHORELY_VAPID_PRIVATE_KEY must be set together")
	}
	return cfg, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("CHORELY_TIMEZONE: %w", err)
	}
	return loc, nil
}

func duration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", key, v)
	}
	return d, nil
}

func integer(getenv func(string) string, key string, def int) (int, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s: must not be negative, got %d", key, n)
	}
	return n, nil
}
