package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/evinsights-cli/internal/ai"
	cfgpkg "github.com/KaramelBytes/evinsights-cli/internal/config"
	"github.com/KaramelBytes/evinsights-cli/internal/logging"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set EVInsights configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Println("No config loaded")
			return nil
		}
		fmt.Printf("dataset_path: %s\n", cfg.DatasetPath)
		fmt.Printf("cache_dir: %s\n", cfg.CacheDir)
		fmt.Printf("api_key: %s\n", mask(cfg.APIKey))
		fmt.Printf("base_url: %s\n", cfg.BaseURL)
		fmt.Printf("chat_provider: %s\n", cfg.ChatProvider)
		fmt.Printf("chat_model: %s\n", cfg.ChatModel)
		fmt.Printf("embedding_provider: %s\n", cfg.EmbeddingProvider)
		fmt.Printf("embedding_model: %s\n", cfg.EmbeddingModel)
		fmt.Printf("retrieval_top_k: %d\n", cfg.RetrievalTopK)
		if cfg.RetrievalMinScore > 0 {
			fmt.Printf("retrieval_min_score: %.3f\n", cfg.RetrievalMinScore)
		}
		fmt.Printf("max_tokens: %d\n", cfg.MaxTokens)
		fmt.Printf("temperature: %.3f\n", cfg.Temperature)
		fmt.Printf("test_ratio: %.2f\n", cfg.TestRatio)
		fmt.Printf("random_state: %d\n", cfg.RandomState)
		fmt.Printf("forest_trees: %d\n", cfg.ForestTrees)
		fmt.Printf("forest_max_depth: %d\n", cfg.ForestMaxDepth)
		if cfg.PostgresDSN != "" {
			fmt.Printf("postgres_dsn: %s\n", mask(cfg.PostgresDSN))
		}
		fmt.Printf("log_level: %s\n", cfg.LogLevel)
		fmt.Printf("log_format: %s\n", cfg.LogFormat)
		fmt.Printf("ollama_host: %s\n", cfg.OllamaHost)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		if err := setConfigValue(cfg, key, val); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Println("Saved config")
		return nil
	},
}

func setConfigValue(c *cfgpkg.Global, key, val string) error {
	switch key {
	case "dataset_path":
		c.DatasetPath = val
	case "cache_dir":
		c.CacheDir = val
	case "api_key":
		c.APIKey = val
	case "base_url":
		c.BaseURL = val
	case "chat_model":
		c.ChatModel = val
	case "chat_provider":
		p, err := ai.NormalizeProvider(val)
		if err != nil {
			return fmt.Errorf("invalid chat_provider: %w", err)
		}
		c.ChatProvider = p
	case "embedding_model":
		c.EmbeddingModel = val
	case "embedding_provider":
		p, err := ai.NormalizeProvider(val)
		if err != nil {
			return fmt.Errorf("invalid embedding_provider: %w", err)
		}
		c.EmbeddingProvider = p
	case "retrieval_top_k":
		i, err := strconv.Atoi(val)
		if err != nil || i < 1 {
			return fmt.Errorf("invalid int for retrieval_top_k: %v", val)
		}
		c.RetrievalTopK = i
	case "retrieval_min_score":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("invalid float for retrieval_min_score: %v", val)
		}
		c.RetrievalMinScore = f
	case "max_tokens":
		i, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid int for max_tokens: %w", err)
		}
		c.MaxTokens = i
	case "temperature":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid float for temperature: %w", err)
		}
		c.Temperature = f
	case "test_ratio":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f <= 0 || f >= 1 {
			return fmt.Errorf("invalid test_ratio: %v (want a fraction between 0 and 1)", val)
		}
		c.TestRatio = f
	case "random_state":
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid int for random_state: %w", err)
		}
		c.RandomState = i
	case "forest_trees":
		i, err := strconv.Atoi(val)
		if err != nil || i < 1 {
			return fmt.Errorf("invalid int for forest_trees: %v", val)
		}
		c.ForestTrees = i
	case "forest_max_depth":
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return fmt.Errorf("invalid int for forest_max_depth: %v", val)
		}
		c.ForestMaxDepth = i
	case "postgres_dsn":
		c.PostgresDSN = val
	case "log_level":
		if _, err := logging.New(val, "console"); err != nil {
			return err
		}
		c.LogLevel = val
	case "log_format":
		if _, err := logging.New("info", val); err != nil {
			return err
		}
		c.LogFormat = val
	case "ollama_host":
		c.OllamaHost = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
