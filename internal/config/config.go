package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every key when read from the environment.
const EnvPrefix = "EVINSIGHTS"

// Global configuration structure.
type Global struct {
	DatasetPath string `mapstructure:"dataset_path" yaml:"dataset_path"`
	CacheDir    string `mapstructure:"cache_dir" yaml:"cache_dir"`

	// Chat and embeddings
	APIKey            string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL           string  `mapstructure:"base_url" yaml:"base_url"`
	ChatModel         string  `mapstructure:"chat_model" yaml:"chat_model"`
	ChatProvider      string  `mapstructure:"chat_provider" yaml:"chat_provider"`
	EmbeddingModel    string  `mapstructure:"embedding_model" yaml:"embedding_model"`
	EmbeddingProvider string  `mapstructure:"embedding_provider" yaml:"embedding_provider"`
	RetrievalTopK     int     `mapstructure:"retrieval_top_k" yaml:"retrieval_top_k"`
	RetrievalMinScore float64 `mapstructure:"retrieval_min_score" yaml:"retrieval_min_score"`
	MaxTokens         int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature       float64 `mapstructure:"temperature" yaml:"temperature"`

	// Models
	TestRatio      float64 `mapstructure:"test_ratio" yaml:"test_ratio"`
	RandomState    int64   `mapstructure:"random_state" yaml:"random_state"`
	ForestTrees    int     `mapstructure:"forest_trees" yaml:"forest_trees"`
	ForestMaxDepth int     `mapstructure:"forest_max_depth" yaml:"forest_max_depth"`

	// Export
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost       string `mapstructure:"ollama_host" yaml:"ollama_host"`
	OllamaTimeoutSec int    `mapstructure:"ollama_timeout_sec" yaml:"ollama_timeout_sec"`
}

// Dir returns ~/.evinsights.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".evinsights"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.evinsights/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("dataset_path", "data/electric_vehicles.csv")
	v.SetDefault("cache_dir", "")
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("chat_model", "deepseek/deepseek-chat-v3.1:free")
	v.SetDefault("chat_provider", "openrouter")
	v.SetDefault("embedding_model", "openai/text-embedding-3-small")
	v.SetDefault("embedding_provider", "openrouter")
	v.SetDefault("retrieval_top_k", 2)
	v.SetDefault("retrieval_min_score", 0.0)
	v.SetDefault("max_tokens", 512)
	v.SetDefault("temperature", 0.0)
	v.SetDefault("test_ratio", 0.2)
	v.SetDefault("random_state", 42)
	v.SetDefault("forest_trees", 100)
	v.SetDefault("forest_max_depth", 0)
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_format", "console")
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	// Ollama defaults
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("ollama_timeout_sec", 60)
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
// A .env file in the working directory is loaded into the environment first
// and never overrides variables that are already set.
func Load(cfgFile string) (*Global, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.APIKey == "" {
		// OPENROUTER_API_KEY / OPENAI_API_KEY are accepted as fallbacks.
		for _, k := range []string{"OPENROUTER_API_KEY", "OPENAI_API_KEY"} {
			if s := os.Getenv(k); s != "" {
				c.APIKey = s
				break
			}
		}
	}
	if c.CacheDir == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		c.CacheDir = filepath.Join(dir, "cache")
	}
	return &c, nil
}
