package config

import (
	"os"
	"reflect"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"

	"github.com/dialwise/dialwise/pkg/logger"
)

// Config holds system-wide configuration, loaded from environment
type Config struct {
	ServerName string `env:"SERVER_NAME"`
	ServerDesc string `env:"SERVER_DESC"`
	Addr       string `env:"ADDR"`
	Mode       string `env:"MODE"`
	APIPrefix  string `env:"API_PREFIX"`

	DBDriver string `env:"DB_DRIVER"`
	DSN      string `env:"DSN"`

	Log logger.LogConfig

	// Call lifecycle tuning
	StuckCallThreshold  time.Duration `env:"STUCK_CALL_THRESHOLD"`
	StuckSweepSchedule  string        `env:"STUCK_SWEEP_SCHEDULE"`
	HealthSnapshotEvery time.Duration `env:"HEALTH_SNAPSHOT_EVERY"`

	// Analytics read cache
	AnalyticsCacheTTL time.Duration `env:"ANALYTICS_CACHE_TTL"`

	MetricsEnabled bool `env:"METRICS_ENABLED"`
}

// GlobalConfig is the loaded configuration singleton.
var GlobalConfig *Config

// Load reads .env (if present) and the environment into GlobalConfig.
func Load() error {
	_ = godotenv.Load()

	cfg := &Config{}
	loadEnvTags(cfg)
	loadEnvTags(&cfg.Log)

	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api"
	}
	if cfg.DBDriver == "" {
		cfg.DBDriver = "sqlite"
	}
	if cfg.DSN == "" {
		cfg.DSN = "file::memory:?cache=shared"
	}
	if cfg.StuckCallThreshold <= 0 {
		cfg.StuckCallThreshold = time.Hour
	}
	if cfg.StuckSweepSchedule == "" {
		cfg.StuckSweepSchedule = "* * * * *"
	}
	if cfg.HealthSnapshotEvery <= 0 {
		cfg.HealthSnapshotEvery = 30 * time.Second
	}
	if cfg.AnalyticsCacheTTL <= 0 {
		cfg.AnalyticsCacheTTL = 15 * time.Second
	}

	GlobalConfig = cfg
	return nil
}

// loadEnvTags fills struct fields from environment variables named by the
// `env` tag. Only tagged fields are touched.
func loadEnvTags(target interface{}) {
	v := reflect.ValueOf(target).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		key := t.Field(i).Tag.Get("env")
		if key == "" {
			continue
		}
		raw, ok := os.LookupEnv(key)
		if !ok || raw == "" {
			continue
		}
		field := v.Field(i)
		switch field.Kind() {
		case reflect.String:
			field.SetString(raw)
		case reflect.Bool:
			field.SetBool(cast.ToBool(raw))
		case reflect.Int, reflect.Int64:
			if field.Type() == reflect.TypeOf(time.Duration(0)) {
				if d, err := time.ParseDuration(raw); err == nil {
					field.SetInt(int64(d))
				}
				continue
			}
			field.SetInt(cast.ToInt64(raw))
		case reflect.Float64:
			field.SetFloat(cast.ToFloat64(raw))
		}
	}
}
