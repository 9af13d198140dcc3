package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Store backends accepted in STORE_BACKEND.
var storeBackends = map[string]bool{"mongo": true, "redis": true, "memory": true}

// Config holds all service settings, populated from environment variables
// and the optional rules file.
type Config struct {
	// Feed.
	NWSBaseURL   string
	NWSUserAgent string
	NWSFrom      string
	NWSSeverity  string
	NWSTimeout   time.Duration
	NWSRetryMax  int

	// Store.
	StoreBackend    string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	RedisURI        string

	// Delivery.
	WebhookURL           string
	WebhookRetryWait     time.Duration
	WebhookRatePerMinute int
	FailureDumpPath      string

	// Rendering.
	MapboxToken    string
	MapboxEnabled  bool
	MapboxStyle    string
	MapboxTimeout  time.Duration
	MapZoomFactor  float64
	ImageServerURL string
	ImageSavePath  string
	ImageRetention time.Duration
	CountiesFile   string

	RulesFile string
	Rules     Rules

	// Schedule.
	PollInterval            time.Duration
	RecordCleanupInterval   time.Duration
	ArtifactCleanupInterval time.Duration

	// Optional notification event stream.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	p := &parser{}
	cfg := &Config{
		NWSBaseURL:   sharedcfg.EnvOrDefault("NWS_API_URL", "https://api.weather.gov"),
		NWSUserAgent: sharedcfg.EnvOrDefault("NWS_USER_AGENT", "storm-alert-service"),
		NWSFrom:      os.Getenv("NWS_FROM"),
		NWSSeverity:  sharedcfg.EnvOrDefault("NWS_SEVERITY", "Extreme,Severe"),
		NWSTimeout:   p.duration("NWS_TIMEOUT", "10s"),
		NWSRetryMax:  p.integer("NWS_RETRY_MAX", 2),

		StoreBackend:    sharedcfg.EnvOrDefault("STORE_BACKEND", "mongo"),
		MongoURI:        sharedcfg.EnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:   sharedcfg.EnvOrDefault("MONGO_ALERTS_DB", "alerts"),
		MongoCollection: sharedcfg.EnvOrDefault("MONGO_COLLECTION", "alerts"),
		RedisURI:        sharedcfg.EnvOrDefault("REDIS_URI", "redis://localhost:6379/0"),

		WebhookURL:           os.Getenv("DISCORD_WEBHOOK"),
		WebhookRetryWait:     p.duration("WEBHOOK_RETRY_WAIT", "2s"),
		WebhookRatePerMinute: p.integer("WEBHOOK_RATE_PER_MINUTE", 0),
		FailureDumpPath:      sharedcfg.EnvOrDefault("FAILURE_DUMP_PATH", "failures"),

		MapboxToken:    os.Getenv("MAPBOX_TOKEN"),
		MapboxStyle:    sharedcfg.EnvOrDefault("MAPBOX_STYLE", "mapbox/light-v11"),
		MapboxTimeout:  p.duration("MAPBOX_TIMEOUT", "10s"),
		MapZoomFactor:  p.float("MAP_ZOOM_FACTOR", 0.7),
		ImageServerURL: os.Getenv("IMAGE_SERVER_URL"),
		ImageSavePath:  sharedcfg.EnvOrDefault("IMAGE_SAVE_PATH", "images"),
		ImageRetention: p.duration("IMAGE_RETENTION", "168h"),
		CountiesFile:   os.Getenv("COUNTIES_FILE"),

		RulesFile: os.Getenv("RULES_FILE"),

		PollInterval:            p.duration("POLL_INTERVAL", "10s"),
		RecordCleanupInterval:   p.duration("RECORD_CLEANUP_INTERVAL", "60s"),
		ArtifactCleanupInterval: p.duration("ARTIFACT_CLEANUP_INTERVAL", "20m"),

		KafkaEnabled: p.boolean("KAFKA_ENABLED", false),
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "storm-alert-notifications"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	cfg.MapboxEnabled = cfg.MapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		cfg.MapboxEnabled = p.boolean("MAPBOX_ENABLED", false)
	}

	if p.err != nil {
		return nil, p.err
	}

	rules, err := LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	cfg.Rules = rules

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.WebhookURL == "" {
		return errors.New("DISCORD_WEBHOOK is required")
	}
	if !storeBackends[c.StoreBackend] {
		return fmt.Errorf("invalid STORE_BACKEND %q: want mongo, redis or memory", c.StoreBackend)
	}
	if c.PollInterval <= 0 || c.RecordCleanupInterval <= 0 || c.ArtifactCleanupInterval <= 0 {
		return errors.New("POLL_INTERVAL, RECORD_CLEANUP_INTERVAL and ARTIFACT_CLEANUP_INTERVAL must be positive")
	}
	if c.MapZoomFactor <= 0 {
		return errors.New("MAP_ZOOM_FACTOR must be positive")
	}
	if c.NWSRetryMax < 0 {
		return errors.New("NWS_RETRY_MAX must not be negative")
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	if c.MapboxEnabled && c.ImageServerURL == "" {
		return errors.New("IMAGE_SERVER_URL is required when map rendering is enabled")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if c.KafkaEnabled && c.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
	}
	return nil
}

// parser records the first malformed variable so Load can report it after
// reading the rest.
type parser struct {
	err error
}

func (p *parser) fail(name, value string) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %q", name, value)
	}
}

func (p *parser) duration(name, def string) time.Duration {
	v := sharedcfg.EnvOrDefault(name, def)
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		p.fail(name, v)
		return 0
	}
	return d
}

func (p *parser) integer(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(name, v)
		return def
	}
	return n
}

func (p *parser) float(name string, def float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(name, v)
		return def
	}
	return f
}

func (p *parser) boolean(name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(name, v)
		return def
	}
	return b
}
