package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the analytics pipeline.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Schema       SchemaConfig       `yaml:"schema"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Segmentation SegmentationConfig `yaml:"segmentation"`
	Churn        ChurnConfig        `yaml:"churn"`
	Anomaly      AnomalyConfig      `yaml:"anomaly"`
	Cache        CacheConfig        `yaml:"cache"`
	Artifact     ArtifactConfig     `yaml:"artifact"`
	Assistant    AssistantConfig    `yaml:"assistant"`
	Warehouse    WarehouseConfig    `yaml:"warehouse"`
	Postgres     PostgresConfig     `yaml:"postgres"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SchemaConfig holds the alias-mapping table and parsing rules for the normalizer.
type SchemaConfig struct {
	// Aliases maps canonical field names to accepted source column names.
	Aliases          map[string][]string `yaml:"aliases"`
	TimestampFormats []string            `yaml:"timestamp_formats"`
	// MaxDropRatio is the fraction of unparsable rows tolerated before the
	// whole normalization fails.
	MaxDropRatio float64 `yaml:"max_drop_ratio"`
}

// MetricsConfig holds metric computation settings.
type MetricsConfig struct {
	// ActivityEvents are the event names that count toward active-user metrics.
	ActivityEvents []string `yaml:"activity_events"`
}

// SegmentationConfig holds clustering settings.
type SegmentationConfig struct {
	Clusters      int   `yaml:"clusters"`
	Seed          int64 `yaml:"seed"`
	MaxIterations int   `yaml:"max_iterations"`
	// MinSessions is the minimum session count for a user to be clustered.
	MinSessions int `yaml:"min_sessions"`
}

// ChurnConfig holds churn model training and scoring settings.
type ChurnConfig struct {
	HorizonDays    int     `yaml:"horizon_days"`
	MinHistoryDays int     `yaml:"min_history_days"`
	Rounds         int     `yaml:"rounds"`
	MaxDepth       int     `yaml:"max_depth"`
	LearningRate   float64 `yaml:"learning_rate"`
	TestFraction   float64 `yaml:"test_fraction"`
	Seed           int64   `yaml:"seed"`
	LowThreshold   float64 `yaml:"low_threshold"`
	HighThreshold  float64 `yaml:"high_threshold"`
	MinAccuracy    float64 `yaml:"min_accuracy"`
}

// AnomalyConfig holds anomaly detection settings.
type AnomalyConfig struct {
	Window int     `yaml:"window"`
	Sigma  float64 `yaml:"sigma"`
}

// CacheConfig holds the Redis metric-series cache settings.
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	RedisAddr  string `yaml:"redis_addr"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// ArtifactConfig holds model artifact storage settings.
type ArtifactConfig struct {
	LocalPath  string `yaml:"local_path"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Region   string `yaml:"s3_region"`
	AWSProfile string `yaml:"aws_profile"`
}

// AssistantConfig holds the Bedrock insight generator settings. AccessKey and
// SecretKey are optional; when empty the default AWS credential chain is used.
type AssistantConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ModelID     string  `yaml:"model_id"`
	Region      string  `yaml:"region"`
	AccessKey   string  `yaml:"access_key"`
	SecretKey   string  `yaml:"secret_key"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// WarehouseConfig holds Snowflake settings for the optional warehouse event source.
type WarehouseConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Account   string `yaml:"account"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
	Warehouse string `yaml:"warehouse"`
	// EventsTable is the table holding raw telemetry rows.
	EventsTable string `yaml:"events_table"`
}

// PostgresConfig holds settings for the derived-artifact repository.
type PostgresConfig struct {
	Enabled     bool   `yaml:"enabled"`
	DatabaseURL string `yaml:"database_url"`
}

// DefaultAliases is the built-in schema mapping table, used when the config
// file does not supply one. Keys are canonical Event fields.
func DefaultAliases() map[string][]string {
	return map[string][]string{
		"user_id":     {"user_id", "userid", "player_id", "playerid", "uid", "account_id", "user"},
		"event_name":  {"event_name", "event", "event_type", "action", "activity"},
		"timestamp":   {"timestamp", "event_time", "time", "datetime", "occurred_at", "ts", "date"},
		"revenue":     {"revenue", "amount", "price", "purchase_amount", "revenue_usd", "spend"},
		"device_type": {"device_type", "device", "platform", "os"},
		"session_id":  {"session_id", "sessionid", "session"},
		"country":     {"country", "country_code", "geo", "region"},
		"age":         {"age", "user_age"},
		"gender":      {"gender", "sex"},
	}
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadFromEnv loads config from a YAML file, then applies .env and
// environment variable overrides for secrets and deploy-specific settings.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if os.IsNotExist(err) {
		// No config file is a supported deployment: defaults plus env.
		cfg = &Config{}
		applyDefaults(cfg)
	} else if err != nil {
		return nil, err
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Cache.RedisAddr = addr
		cfg.Cache.Enabled = true
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Postgres.DatabaseURL = dbURL
		cfg.Postgres.Enabled = true
	}
	if pw := os.Getenv("SNOWFLAKE_PASSWORD"); pw != "" {
		cfg.Warehouse.Password = pw
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		if cfg.Assistant.Region == "" {
			cfg.Assistant.Region = region
		}
		if cfg.Artifact.S3Region == "" {
			cfg.Artifact.S3Region = region
		}
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:5173"}
	}
	if len(cfg.Schema.Aliases) == 0 {
		cfg.Schema.Aliases = DefaultAliases()
	}
	if len(cfg.Schema.TimestampFormats) == 0 {
		cfg.Schema.TimestampFormats = []string{
			"2006-01-02T15:04:05Z07:00",
			"2006-01-02 15:04:05",
			"2006-01-02",
			"01/02/2006 15:04:05",
			"01/02/2006",
			"02-01-2006 15:04:05",
		}
	}
	if cfg.Schema.MaxDropRatio == 0 {
		cfg.Schema.MaxDropRatio = 0.5
	}
	if len(cfg.Metrics.ActivityEvents) == 0 {
		cfg.Metrics.ActivityEvents = []string{
			"session_start", "login", "level_start", "level_complete", "purchase",
		}
	}
	if cfg.Segmentation.Clusters == 0 {
		cfg.Segmentation.Clusters = 4
	}
	if cfg.Segmentation.Seed == 0 {
		cfg.Segmentation.Seed = 42
	}
	if cfg.Segmentation.MaxIterations == 0 {
		cfg.Segmentation.MaxIterations = 100
	}
	if cfg.Segmentation.MinSessions == 0 {
		cfg.Segmentation.MinSessions = 3
	}
	if cfg.Churn.HorizonDays == 0 {
		cfg.Churn.HorizonDays = 7
	}
	if cfg.Churn.MinHistoryDays == 0 {
		cfg.Churn.MinHistoryDays = 3
	}
	if cfg.Churn.Rounds == 0 {
		cfg.Churn.Rounds = 100
	}
	if cfg.Churn.MaxDepth == 0 {
		cfg.Churn.MaxDepth = 3
	}
	if cfg.Churn.LearningRate == 0 {
		cfg.Churn.LearningRate = 0.1
	}
	if cfg.Churn.TestFraction == 0 {
		cfg.Churn.TestFraction = 0.2
	}
	if cfg.Churn.Seed == 0 {
		cfg.Churn.Seed = 42
	}
	if cfg.Churn.LowThreshold == 0 {
		cfg.Churn.LowThreshold = 0.3
	}
	if cfg.Churn.HighThreshold == 0 {
		cfg.Churn.HighThreshold = 0.7
	}
	if cfg.Churn.MinAccuracy == 0 {
		cfg.Churn.MinAccuracy = 0.6
	}
	if cfg.Anomaly.Window == 0 {
		cfg.Anomaly.Window = 14
	}
	if cfg.Anomaly.Sigma == 0 {
		cfg.Anomaly.Sigma = 3.0
	}
	if cfg.Cache.TTLSeconds == 0 {
		cfg.Cache.TTLSeconds = 300
	}
	if cfg.Artifact.LocalPath == "" {
		cfg.Artifact.LocalPath = "data/models"
	}
	if cfg.Assistant.ModelID == "" {
		cfg.Assistant.ModelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	if cfg.Assistant.MaxTokens == 0 {
		cfg.Assistant.MaxTokens = 1000
	}
	if cfg.Assistant.Temperature == 0 {
		cfg.Assistant.Temperature = 0.7
	}
	if cfg.Warehouse.EventsTable == "" {
		cfg.Warehouse.EventsTable = "PLAYER_EVENTS"
	}
}
