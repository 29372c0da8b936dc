package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is built once at startup and passed by value into component
// constructors. No component reads the environment after Load returns.
type Config struct {
	Bridge struct {
		IP         string `yaml:"ip"`
		AppKey     string `yaml:"app_key"`
		AppKeyFile string `yaml:"app_key_file"`
		VerifyTLS  bool   `yaml:"verify_tls"`
	} `yaml:"bridge"`

	Stream struct {
		IdleTimeoutS  int `yaml:"idle_timeout_s"`
		BackoffBaseMs int `yaml:"backoff_base_ms"`
		BackoffMaxMs  int `yaml:"backoff_max_ms"`
		HealthyResetS int `yaml:"healthy_reset_s"`
	} `yaml:"stream"`

	Queue struct {
		Capacity int `yaml:"capacity"`
	} `yaml:"queue"`

	Diagnostics struct {
		Timezone         string `yaml:"timezone"`
		BatteryThreshold int    `yaml:"battery_threshold"`
	} `yaml:"diagnostics"`

	Retention struct {
		EventDays int `yaml:"event_days"`
	} `yaml:"retention"`

	DB struct {
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"db"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`

	NATS struct {
		URL     string `yaml:"url"`
		Subject string `yaml:"subject"`
	} `yaml:"nats"`

	HTTP struct {
		Port string `yaml:"port"`
	} `yaml:"http"`
}

// Load reads the optional YAML file at path, applies environment
// overrides on top, fills defaults and validates. A missing file is not
// an error; a missing bridge IP is.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if cfg.Bridge.IP == "" {
		return nil, fmt.Errorf("bridge ip is required (set HUB_BRIDGE_IP or bridge.ip)")
	}
	if cfg.Queue.Capacity <= 0 {
		return nil, fmt.Errorf("queue capacity must be positive, got %d", cfg.Queue.Capacity)
	}
	if cfg.Stream.BackoffMaxMs < cfg.Stream.BackoffBaseMs {
		return nil, fmt.Errorf("backoff ceiling %dms below base %dms", cfg.Stream.BackoffMaxMs, cfg.Stream.BackoffBaseMs)
	}
	if _, err := time.LoadLocation(cfg.Diagnostics.Timezone); err != nil {
		return nil, fmt.Errorf("invalid diagnostics timezone %q: %w", cfg.Diagnostics.Timezone, err)
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setStr(&cfg.Bridge.IP, "HUB_BRIDGE_IP")
	setStr(&cfg.Bridge.AppKey, "HUB_APP_KEY")
	setStr(&cfg.Bridge.AppKeyFile, "HUB_APP_KEY_FILE")
	setBool(&cfg.Bridge.VerifyTLS, "HUB_VERIFY_TLS")

	setInt(&cfg.Stream.IdleTimeoutS, "STREAM_TIMEOUT")
	setInt(&cfg.Stream.BackoffBaseMs, "STREAM_BACKOFF_BASE_MS")
	setInt(&cfg.Stream.BackoffMaxMs, "STREAM_BACKOFF_MAX_MS")
	setInt(&cfg.Stream.HealthyResetS, "STREAM_HEALTHY_RESET_S")

	setInt(&cfg.Queue.Capacity, "EVENT_QUEUE_SIZE")
	setStr(&cfg.Diagnostics.Timezone, "DIAG_TIMEZONE")
	setInt(&cfg.Diagnostics.BatteryThreshold, "DIAG_BATTERY_THRESHOLD")
	setInt(&cfg.Retention.EventDays, "EVENT_RETENTION_DAYS")

	setStr(&cfg.DB.Host, "DB_HOST")
	setStr(&cfg.DB.Port, "DB_PORT")
	setStr(&cfg.DB.User, "DB_USER")
	setStr(&cfg.DB.Password, "DB_PASSWORD")
	setStr(&cfg.DB.Name, "DB_NAME")
	setStr(&cfg.DB.SSLMode, "DB_SSLMODE")

	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setStr(&cfg.NATS.URL, "NATS_URL")
	setStr(&cfg.NATS.Subject, "NATS_SUBJECT")
	setStr(&cfg.HTTP.Port, "PORT")
}

func applyDefaults(cfg *Config) {
	if cfg.Stream.IdleTimeoutS == 0 {
		cfg.Stream.IdleTimeoutS = 60
	}
	if cfg.Stream.BackoffBaseMs == 0 {
		cfg.Stream.BackoffBaseMs = 2000
	}
	if cfg.Stream.BackoffMaxMs == 0 {
		cfg.Stream.BackoffMaxMs = 60000
	}
	if cfg.Stream.HealthyResetS == 0 {
		cfg.Stream.HealthyResetS = 120
	}
	if cfg.Queue.Capacity == 0 {
		cfg.Queue.Capacity = 10000
	}
	if cfg.Diagnostics.Timezone == "" {
		cfg.Diagnostics.Timezone = "UTC"
	}
	if cfg.Diagnostics.BatteryThreshold == 0 {
		cfg.Diagnostics.BatteryThreshold = 10
	}
	if cfg.Retention.EventDays == 0 {
		cfg.Retention.EventDays = 30
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == "" {
		cfg.DB.Port = "5432"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.NATS.Subject == "" {
		cfg.NATS.Subject = "hubmon.stream.status"
	}
	if cfg.HTTP.Port == "" {
		cfg.HTTP.Port = "8080"
	}
}

// LoadDB is Load without the bridge/stream validation, for tools that
// only need the database: the migrator has no business requiring a
// bridge IP.
func LoadDB(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// DSN renders the Postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}

// IdleTimeout, BackoffBase, BackoffMax, HealthyReset convert the plain
// integer fields into durations for the stream client.
func (c *Config) IdleTimeout() time.Duration { return time.Duration(c.Stream.IdleTimeoutS) * time.Second }
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Stream.BackoffBaseMs) * time.Millisecond
}
func (c *Config) BackoffMax() time.Duration {
	return time.Duration(c.Stream.BackoffMaxMs) * time.Millisecond
}
func (c *Config) HealthyReset() time.Duration {
	return time.Duration(c.Stream.HealthyResetS) * time.Second
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
