// cmd/preflight/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hamed0406/uptimeticks/internal/config"
	"github.com/hamed0406/uptimeticks/internal/tsdb/influx"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfgPath := flag.String("config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	dial := flag.Bool("dial", false, "also ping the configured time-series store and redis")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fail(err.Error())
	}

	if len(cfg.AdminAPIKeys) == 0 {
		fail("ADMIN_API_KEYS is empty (admin routes are open).")
	}
	if len(cfg.PublicAPIKeys) == 0 {
		fail("PUBLIC_API_KEYS is empty (read routes are open).")
	}
	for name, v := range map[string]string{"ADMIN_API_KEYS": os.Getenv("ADMIN_API_KEYS"), "PUBLIC_API_KEYS": os.Getenv("PUBLIC_API_KEYS")} {
		if strings.Contains(v, " ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}

	ok("API_ADDR=" + cfg.Addr)
	if cfg.DatabaseURL == "" {
		warn("DATABASE_URL empty: targets live in memory and vanish on restart.")
	} else {
		ok("DATABASE_URL present")
	}

	switch cfg.TSDB.Backend {
	case config.BackendMemory:
		warn("TSDB_BACKEND=memory: samples are not persisted.")
	default:
		ok("TSDB_BACKEND=" + cfg.TSDB.Backend)
	}

	if cfg.Alert.RedisURL == "" && cfg.Alert.SlackWebhook == "" {
		warn("no REDIS_URL or SLACK_WEBHOOK_URL: downtime alerts are dropped.")
	}
	if cfg.CheckInterval == 0 {
		warn("CHECK_INTERVAL_MS=0: the scheduler is disabled.")
	} else {
		ok(fmt.Sprintf("interval=%s concurrency=%d probe_timeout=%s region=%s",
			cfg.CheckInterval, cfg.MaxConcurrent, cfg.ProbeTimeout, cfg.RegionID))
	}
	if cfg.ProbeTimeout >= cfg.CheckInterval && cfg.CheckInterval > 0 {
		warn("PROBE_TIMEOUT_MS >= CHECK_INTERVAL_MS: slow rounds will coalesce ticks.")
	}

	if *dial {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if cfg.TSDB.Backend == config.BackendInflux {
			st := influx.New(influx.Config{URL: cfg.TSDB.InfluxURL, Token: cfg.TSDB.InfluxToken, Org: cfg.TSDB.InfluxOrg, Bucket: cfg.TSDB.InfluxBucket})
			if err := st.Ping(ctx); err != nil {
				fail("influx: " + err.Error())
			}
			st.Close()
			ok("influx reachable")
		}
		if cfg.Alert.RedisURL != "" {
			opts, err := redis.ParseURL(cfg.Alert.RedisURL)
			if err != nil {
				fail("redis: " + err.Error())
			}
			c := redis.NewClient(opts)
			if err := c.Ping(ctx).Err(); err != nil {
				fail("redis: " + err.Error())
			}
			_ = c.Close()
			ok("redis reachable")
		}
	}

	ok("preflight passed")
}
