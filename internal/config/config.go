package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	appName         = "newsdigest"

	configPathEnv         = "NEWSDIGEST_CONFIG"
	databaseDriverEnv     = "DATABASE_DRIVER"
	databaseDSNEnv        = "DATABASE_DSN"
	storageBackendEnv     = "STORAGE_BACKEND"
	storageDirEnv         = "STORAGE_DIR"
	s3BucketEnv           = "S3_BUCKET"
	generationProviderEnv = "GENERATION_PROVIDER"
	geminiAPIKeyEnv       = "GEMINI_API_KEY"
	openAIAPIKeyEnv       = "OPENAI_API_KEY"
	cohereAPIKeyEnv       = "COHERE_API_KEY"
	telegramTokenEnv      = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv     = "TELEGRAM_CHAT_ID"
	redisAddrEnv          = "REDIS_ADDR"
	httpAddrEnv           = "HTTP_ADDR"
	logLevelEnv           = "LOG_LEVEL"
)

// DefaultKeywords is the education topic list used when none is configured.
var DefaultKeywords = []string{
	"education", "school", "student", "teacher", "university", "college",
	"classroom", "curriculum", "learning", "training", "scholarship",
	"academic", "exam", "lecturer", "institution",
}

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Storage       StorageConfig      `yaml:"storage"`
	Feeds         FeedsConfig        `yaml:"feeds"`
	Topic         TopicConfig        `yaml:"topic"`
	Images        ImagesConfig       `yaml:"images"`
	HTTP          HTTPClientConfig   `yaml:"http"`
	Generation    GenerationConfig   `yaml:"generation"`
	Notifications NotificationConfig `yaml:"notifications"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Server        ServerConfig       `yaml:"server"`
	Redis         RedisConfig        `yaml:"redis"`
}

// LoggingConfig selects level, handler format and an optional rotated file.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// DatabaseConfig describes the state store connection.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// StorageConfig describes where enrichment files live.
type StorageConfig struct {
	Backend string   `yaml:"backend"`
	Dir     string   `yaml:"dir"`
	S3      S3Config `yaml:"s3"`
}

// S3Config is used when Storage.Backend is "s3".
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Profile      string `yaml:"profile"`
	UsePathStyle bool   `yaml:"usePathStyle"`
}

// FeedsConfig lists the feed endpoints in fetch order.
type FeedsConfig struct {
	URLs       []string      `yaml:"urls"`
	Politeness time.Duration `yaml:"politeness"`
	UserAgent  string        `yaml:"userAgent"`
}

// TopicConfig defines the keyword filter and the batch size.
type TopicConfig struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
	Limit    int      `yaml:"limit"`
}

// ImagesConfig bounds image downloads.
type ImagesConfig struct {
	MaxBytes      int64 `yaml:"maxBytes"`
	ThumbnailEdge int   `yaml:"thumbnailEdge"`
}

// HTTPClientConfig is shared by the feed, page and image clients.
type HTTPClientConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"maxRetries"`
	InitialBackoff time.Duration `yaml:"initialBackoff"`
}

// GenerationConfig selects the text generation provider.
type GenerationConfig struct {
	Provider string        `yaml:"provider"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"apiKey"`
	BaseURL  string        `yaml:"baseUrl"`
	Timeout  time.Duration `yaml:"timeout"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken    string        `yaml:"botToken"`
	ChatID      string        `yaml:"chatId"`
	APIBaseURL  string        `yaml:"apiBaseUrl"`
	SendTimeout time.Duration `yaml:"sendTimeout"`
}

// Configured reports whether both credentials are present.
func (t TelegramConfig) Configured() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// SchedulerConfig defines when the pipeline should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// ServerConfig configures the run/status HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// RedisConfig enables the distributed run guard when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockKey  string        `yaml:"lockKey"`
	LockTTL  time.Duration `yaml:"lockTtl"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
// An empty path falls back to the NEWSDIGEST_CONFIG environment variable.
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if merged, err := mergeFile(cfg, raw); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
		} else {
			cfg = merged
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	cfg.Topic.Keywords = NormalizeKeywords(cfg.Topic.Keywords)

	if len(cfg.Topic.Keywords) == 0 {
		cfg.Topic.Keywords = append([]string(nil), DefaultKeywords...)
	}
	if cfg.Topic.Limit <= 0 {
		cfg.Topic.Limit = defaultConfig().Topic.Limit
	}

	return cfg
}

// Validate checks the settings a pipeline run cannot work without.
func (c Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is empty"))
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.Dir == "" {
			errs = append(errs, errors.New("storage.dir is empty"))
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend))
	}
	if c.Images.MaxBytes <= 0 {
		errs = append(errs, errors.New("images.maxBytes must be positive"))
	}
	return errors.Join(errs...)
}

// NormalizeKeywords lowercases and trims keywords, dropping blanks and repeats.
func NormalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(storageBackendEnv); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv(storageDirEnv); v != "" {
		c.Storage.Dir = v
	}
	if v := os.Getenv(s3BucketEnv); v != "" {
		c.Storage.S3.Bucket = v
	}

	if v := os.Getenv(generationProviderEnv); v != "" {
		c.Generation.Provider = v
	}
	if c.Generation.APIKey == "" {
		c.Generation.APIKey = os.Getenv(providerKeyEnv(c.Generation.Provider))
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv(httpAddrEnv); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func providerKeyEnv(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return openAIAPIKeyEnv
	case "cohere":
		return cohereAPIKeyEnv
	default:
		return geminiAPIKeyEnv
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

// mergeFile decodes the YAML document over base so absent keys keep their defaults.
func mergeFile(base Config, raw []byte) (Config, error) {
	merged := base
	if err := yaml.Unmarshal(raw, &merged); err != nil {
		return base, err
	}
	return merged, nil
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text", MaxSizeMB: 50, MaxBackups: 3, MaxAgeDays: 28},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    filepath.Join(xdg.DataHome, appName, "newsdigest.db"),
		},
		Storage: StorageConfig{
			Backend: "local",
			Dir:     filepath.Join(xdg.DataHome, appName, "images"),
			S3:      S3Config{Prefix: "images/"},
		},
		Feeds: FeedsConfig{
			Politeness: time.Second,
			UserAgent:  "Mozilla/5.0 (compatible; NewsDigest/1.0)",
		},
		Topic: TopicConfig{
			Category: "education",
			Keywords: append([]string(nil), DefaultKeywords...),
			Limit:    10,
		},
		Images: ImagesConfig{MaxBytes: 5 << 20, ThumbnailEdge: 300},
		HTTP:   HTTPClientConfig{Timeout: 10 * time.Second, MaxRetries: 3, InitialBackoff: 500 * time.Millisecond},
		Generation: GenerationConfig{
			Provider: "gemini",
			Timeout:  30 * time.Second,
		},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{
				APIBaseURL:  "https://api.telegram.org",
				SendTimeout: 15 * time.Second,
			},
		},
		Scheduler: SchedulerConfig{CronExpression: "0 18 * * 4", Timezone: defaultTimezone, location: tz},
		Server:    ServerConfig{Addr: ":8080"},
		Redis:     RedisConfig{LockKey: "newsdigest:run-lock", LockTTL: 30 * time.Minute},
	}
}
