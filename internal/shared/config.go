package shared

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	SQLitePath  string
	RedisAddr   string
	RedisDB     int
	RedisPass   string

	// Scraper knobs
	Proxies     []string // scheme://[user:pass@]host:port, rotated round-robin
	UseBrowser  bool     // prefer browser-rendered fetches outright
	Workers     int      // bounded pool for region scrapes
	MaxPages    int      // review pages per hotel
	MaxHotels   int      // hotels enumerated per region
	FetchDelay  time.Duration
	FetchJitter time.Duration // extra random delay on top of FetchDelay
	Timeout     time.Duration
	CacheTTL    time.Duration
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	return Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		SQLitePath:  env("SQLITE_PATH", "data/tripscraper.db"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisPass:   env("REDIS_PASSWORD", ""),
		RedisDB:     atoi("REDIS_DB", 0),
		Proxies:     splitCSV(os.Getenv("SCRAPE_PROXIES")),
		UseBrowser:  env("SCRAPE_BROWSER", "") == "1",
		Workers:     atoi("SCRAPE_WORKERS", 4),
		MaxPages:    atoi("SCRAPE_MAX_PAGES", 5),
		MaxHotels:   atoi("SCRAPE_MAX_HOTELS", 10),
		FetchDelay:  time.Duration(atoi("SCRAPE_DELAY_MS", 2000)) * time.Millisecond,
		FetchJitter: time.Duration(atoi("SCRAPE_JITTER_MS", 3000)) * time.Millisecond,
		Timeout:     time.Duration(atoi("SCRAPE_TIMEOUT_SECONDS", 30)) * time.Second,
		CacheTTL:    time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
	}
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
