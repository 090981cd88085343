package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabaseURL string
	DBPath      string
	LogLevel    string

	Telegram TelegramConfig
	Proxy    ProxyConfig
	VPN      VPNConfig
	Monitor  MonitorConfig
	Changes  ChangesConfig
	Analysis AnalysisConfig

	Filters map[string]*FilterConfig
}

type TelegramConfig struct {
	BotToken string
	ChatID   string
}

type ProxyConfig struct {
	URL string
}

type VPNConfig struct {
	ActivationCode string
	AutoConnect    bool
	Region         string
}

// MonitorConfig drives the ingestion schedule: a jittered interval with a
// nightly pause window during which no scraping happens.
type MonitorConfig struct {
	Interval       time.Duration
	Jitter         time.Duration
	NightPauseFrom int // hour of day, inclusive
	NightPauseTo   int // hour of day, exclusive
}

// ChangesConfig drives the daily change-detection pass.
type ChangesConfig struct {
	Cron              string
	StaleAfter        time.Duration
	BatchSize         int
	BatchPause        time.Duration
	FetchTimeout      time.Duration
	UnavailableExpiry time.Duration // stop rechecking cars unavailable longer than this; 0 = never stop
}

type AnalysisConfig struct {
	DropsCron    string
	DigestCron   string
	DropLookback time.Duration
	MinDropEuros int
}

// FilterConfig is one named search definition. Filters are loaded once at
// startup and read-only afterwards.
type FilterConfig struct {
	Name       string `yaml:"name"`
	URL        string `yaml:"url"`
	Brand      string `yaml:"brand"`
	MinYear    int    `yaml:"min_year"`
	MaxMileage int    `yaml:"max_mileage"`
	Priority   bool   `yaml:"priority"`
	Relaxed    bool   `yaml:"relaxed"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBPath:      getEnv("DB_PATH", "monitor.db"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Telegram: TelegramConfig{
			BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
			ChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		},
		Proxy: ProxyConfig{
			URL: os.Getenv("PROXY_URL"),
		},
		VPN: VPNConfig{
			ActivationCode: os.Getenv("EXPRESSVPN_ACTIVATION_CODE"),
			AutoConnect:    os.Getenv("EXPRESSVPN_AUTOCONNECT") == "true",
			Region:         getEnv("EXPRESSVPN_REGION", "smart"),
		},
		Monitor: MonitorConfig{
			Interval:       getEnvDuration("MONITOR_INTERVAL", 7*time.Minute+30*time.Second),
			Jitter:         getEnvDuration("MONITOR_JITTER", 150*time.Second),
			NightPauseFrom: getEnvInt("NIGHT_PAUSE_FROM", 2),
			NightPauseTo:   getEnvInt("NIGHT_PAUSE_TO", 6),
		},
		Changes: ChangesConfig{
			Cron:              getEnv("CHANGES_CRON", "30 14 * * *"),
			StaleAfter:        getEnvDuration("CHANGES_STALE_AFTER", 20*time.Hour),
			BatchSize:         getEnvInt("CHANGES_BATCH_SIZE", 20),
			BatchPause:        getEnvDuration("CHANGES_BATCH_PAUSE", 2*time.Second),
			FetchTimeout:      getEnvDuration("CHANGES_FETCH_TIMEOUT", 45*time.Second),
			UnavailableExpiry: getEnvDuration("CHANGES_UNAVAILABLE_EXPIRY", 14*24*time.Hour),
		},
		Analysis: AnalysisConfig{
			DropsCron:    getEnv("DROPS_CRON", "0 10 * * 0"),
			DigestCron:   getEnv("DIGEST_CRON", "0 21 * * *"),
			DropLookback: getEnvDuration("DROPS_LOOKBACK", 7*24*time.Hour),
			MinDropEuros: getEnvInt("DROPS_MIN_EUROS", 1000),
		},
		Filters: make(map[string]*FilterConfig),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if err := cfg.loadFilters(getEnv("FILTERS_DIR", "config/filters")); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFilters(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var filter FilterConfig
		if err := yaml.Unmarshal(data, &filter); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if filter.Name == "" || filter.URL == "" {
			return fmt.Errorf("filter %s: name and url are required", path)
		}

		c.Filters[filter.Name] = &filter
	}

	return nil
}

// FilterNames returns filter names with priority filters first; within each
// group the order follows the configured name, so runs are deterministic.
func (c *Config) FilterNames() []string {
	var priority, regular []string
	for name, f := range c.Filters {
		if f.Priority {
			priority = append(priority, name)
		} else {
			regular = append(regular, name)
		}
	}
	sort.Strings(priority)
	sort.Strings(regular)
	return append(priority, regular...)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
