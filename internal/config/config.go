package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Sampler  SamplerConfig
	Budget   BudgetConfig
	Pipeline PipelineConfig
	LLM      LLMConfig
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// StorageConfig selects and tunes the message store tiers. When DSN is empty
// the durable tier is disabled and only the in-memory tier is used.
type StorageConfig struct {
	DSN              string        `mapstructure:"dsn"`
	VolatileCapacity int           `mapstructure:"volatile_capacity"`
	VolatileMaxAge   time.Duration `mapstructure:"volatile_max_age"`
	RetentionDays    int           `mapstructure:"retention_days"`
}

// SamplerConfig holds the message sampling limits
type SamplerConfig struct {
	SoftLimit int `mapstructure:"soft_limit"`
	HardLimit int `mapstructure:"hard_limit"`
}

// BudgetConfig holds the monthly budget configuration. Rates are USD per
// single token.
type BudgetConfig struct {
	MonthlyLimit float64 `mapstructure:"monthly_limit"`
	InputRate    float64 `mapstructure:"input_rate"`
	OutputRate   float64 `mapstructure:"output_rate"`
	SnapshotPath string  `mapstructure:"snapshot_path"`
}

// PipelineConfig holds orchestration timing knobs
type PipelineConfig struct {
	RetrieveTimeout time.Duration `mapstructure:"retrieve_timeout"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
}

// LLMConfig holds the summarization model configuration
type LLMConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// Load loads the configuration from the config.yaml file. CONFIG_PATH
// overrides the file location, which the tests rely on.
func Load() (*Config, error) {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("storage.volatile_capacity", 100)
	viper.SetDefault("storage.volatile_max_age", 24*time.Hour)
	viper.SetDefault("sampler.soft_limit", 500)
	viper.SetDefault("sampler.hard_limit", 1000)
	viper.SetDefault("budget.monthly_limit", 10.0)
	viper.SetDefault("budget.input_rate", 0.25/1_000_000)
	viper.SetDefault("budget.output_rate", 1.25/1_000_000)
	viper.SetDefault("budget.snapshot_path", "cost_data.json")
	viper.SetDefault("pipeline.retrieve_timeout", 5*time.Second)
	viper.SetDefault("pipeline.retry_backoff", 500*time.Millisecond)
	viper.SetDefault("log_level", "info")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
