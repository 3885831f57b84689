package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr        string `yaml:"api_addr"`     // API bind address, e.g., "127.0.0.1:8080" or ":8080" (Docker)
	MetricsAddr string `yaml:"metrics_addr"` // worker /metrics listener
	LogDir      string `yaml:"log_dir"`
	LogLevel    string `yaml:"log_level"`
	DatabaseURL string `yaml:"database_url"` // registry; empty means in-memory

	TSDB  TSDB  `yaml:"tsdb"`
	Alert Alert `yaml:"alert"`

	CheckInterval time.Duration `yaml:"check_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
	MaxConcurrent int           `yaml:"max_concurrent_checks"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	RegionID      string        `yaml:"region_id"`
	DNSDiagnostic bool          `yaml:"dns_diagnostics"`
	EmbedWorker   bool          `yaml:"embed_worker"`

	PublicAPIKeys []string `yaml:"public_api_keys"`
	AdminAPIKeys  []string `yaml:"admin_api_keys"`
	PublicRPM     int      `yaml:"public_rpm"`
	PublicBurst   int      `yaml:"public_burst"`
	AdminRPM      int      `yaml:"admin_rpm"`
	AdminBurst    int      `yaml:"admin_burst"`
}

type TSDB struct {
	Backend      string `yaml:"backend"` // influx | timescale | memory
	InfluxURL    string `yaml:"influx_url"`
	InfluxToken  string `yaml:"influx_token"`
	InfluxOrg    string `yaml:"influx_org"`
	InfluxBucket string `yaml:"influx_bucket"`
	TimescaleURL string `yaml:"timescale_url"`
}

type Alert struct {
	RedisURL       string        `yaml:"redis_url"`
	Stream         string        `yaml:"stream"`
	StreamMaxLen   int64         `yaml:"stream_maxlen"`
	SlackWebhook   string        `yaml:"slack_webhook_url"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	RetryAttempts  int           `yaml:"retry_attempts"` // per channel
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	// go-redis command retries under each attempt; 0 keeps the client default
	RedisMaxRetries int `yaml:"redis_max_retries"`
}

const (
	BackendInflux    = "influx"
	BackendTimescale = "timescale"
	BackendMemory    = "memory"
)

func FromEnv() Config {
	cfg := Config{
		Addr:        os.Getenv("API_ADDR"),
		MetricsAddr: os.Getenv("METRICS_ADDR"),
		LogDir:      os.Getenv("LOG_DIR"),
		LogLevel:    os.Getenv("LOG_LEVEL"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		TSDB: TSDB{
			Backend:      strings.ToLower(os.Getenv("TSDB_BACKEND")),
			InfluxURL:    os.Getenv("INFLUX_URL"),
			InfluxToken:  os.Getenv("INFLUX_TOKEN"),
			InfluxOrg:    os.Getenv("INFLUX_ORG"),
			InfluxBucket: os.Getenv("INFLUX_BUCKET"),
			TimescaleURL: os.Getenv("TIMESCALE_URL"),
		},
		Alert: Alert{
			RedisURL:        os.Getenv("REDIS_URL"),
			Stream:          os.Getenv("ALERT_STREAM"),
			StreamMaxLen:    int64(envInt("ALERT_STREAM_MAXLEN", 0)),
			SlackWebhook:    os.Getenv("SLACK_WEBHOOK_URL"),
			PublishTimeout:  envMillis("PUBLISH_TIMEOUT_MS", 0),
			RetryAttempts:   envInt("PUBLISH_RETRY_ATTEMPTS", 0),
			RetryBackoff:    envMillis("PUBLISH_RETRY_BACKOFF_MS", 0),
			RedisMaxRetries: envInt("REDIS_MAX_RETRIES", 0),
		},
		CheckInterval: envMillis("CHECK_INTERVAL_MS", 20*time.Second),
		ProbeTimeout:  envMillis("PROBE_TIMEOUT_MS", 0),
		MaxConcurrent: envInt("MAX_CONCURRENT_CHECKS", 0),
		WriteTimeout:  envMillis("WRITE_TIMEOUT_MS", 0),
		RegionID:      os.Getenv("REGION_ID"),
		DNSDiagnostic: envBool("DNS_DIAGNOSTICS"),
		EmbedWorker:   envBool("EMBED_WORKER"),
		PublicAPIKeys: envList("PUBLIC_API_KEYS"),
		AdminAPIKeys:  envList("ADMIN_API_KEYS"),
		PublicRPM:     envInt("PUBLIC_RPM", 0),
		PublicBurst:   envInt("PUBLIC_BURST", 0),
		AdminRPM:      envInt("ADMIN_RPM", 0),
		AdminBurst:    envInt("ADMIN_BURST", 0),
	}
	cfg.applyDefaults()
	return cfg
}

// Load starts from FromEnv and overlays the YAML file at path, if any.
// Only keys present in the file override.
func Load(path string) (Config, error) {
	cfg := FromEnv()
	if path == "" {
		return cfg, cfg.validate()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, cfg.validate()
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:8080"
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = "127.0.0.1:9090"
	}
	if c.LogDir == "" {
		c.LogDir = "logs"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.TSDB.Backend == "" {
		if c.TSDB.InfluxURL != "" {
			c.TSDB.Backend = BackendInflux
		} else {
			c.TSDB.Backend = BackendMemory
		}
	}
	if c.TSDB.InfluxBucket == "" {
		c.TSDB.InfluxBucket = "uptime_ticks"
	}
	if c.Alert.Stream == "" {
		c.Alert.Stream = "notifications"
	}
	if c.Alert.StreamMaxLen <= 0 {
		c.Alert.StreamMaxLen = 100000
	}
	if c.Alert.PublishTimeout <= 0 {
		c.Alert.PublishTimeout = 5 * time.Second
	}
	if c.Alert.RetryAttempts <= 0 {
		c.Alert.RetryAttempts = 3
	}
	if c.Alert.RetryBackoff <= 0 {
		c.Alert.RetryBackoff = 500 * time.Millisecond
	}
	if c.CheckInterval < 0 {
		c.CheckInterval = 0
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 50
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.RegionID == "" {
		c.RegionID = "europe"
	}
	if c.PublicRPM <= 0 {
		c.PublicRPM = 60
	}
	if c.PublicBurst <= 0 {
		c.PublicBurst = 10
	}
	if c.AdminRPM <= 0 {
		c.AdminRPM = 300
	}
	if c.AdminBurst <= 0 {
		c.AdminBurst = 50
	}
}

func (c Config) validate() error {
	switch c.TSDB.Backend {
	case BackendInflux:
		if c.TSDB.InfluxURL == "" || c.TSDB.InfluxOrg == "" {
			return fmt.Errorf("tsdb backend influx needs INFLUX_URL and INFLUX_ORG")
		}
	case BackendTimescale:
		if c.TSDB.TimescaleURL == "" {
			return fmt.Errorf("tsdb backend timescale needs TIMESCALE_URL")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown tsdb backend %q", c.TSDB.Backend)
	}
	return nil
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func envMillis(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

func envList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
