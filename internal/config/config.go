package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port     int
	MCPPort  int
	APIToken string // optional; empty disables bearer auth
}

type OllamaConfig struct {
	BaseURL    string
	ChatModels []string // allow-list of chat model identifiers; first entry is the default
	EmbedModel string
}

type StorageConfig struct {
	DataDir string
}

type RetrievalConfig struct {
	TopK int

	// Optional LLM relevance reranking of retrieved chunks.
	RerankEnabled        bool
	RerankThreshold      float64
	RerankTimeoutSeconds int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4100,
			MCPPort: 4101,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModels: []string{"llama3", "llama2"},
			EmbedModel: "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Retrieval: RetrievalConfig{
			TopK:                 2,
			RerankThreshold:      0.3,
			RerankTimeoutSeconds: 20,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "docchat-data"
		}
	}
	return filepath.Join(dir, "docchat")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "docchat", "config.json")
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/docchat/config.json, then applies DOCCHAT_* environment
// variable overrides.
func Load() (Config, error) {
	return loadWith(configFilePath(), os.Getenv)
}

func loadWith(path string, getenv func(string) string) (Config, error) {
	cfg := defaults()

	if err := applyFile(&cfg, path); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return Config{}, fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if len(cfg.Ollama.ChatModels) == 0 {
		return Config{}, fmt.Errorf("at least one chat model must be configured")
	}
	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = 2
	}

	return cfg, nil
}

// fileConfig mirrors the JSON config file layout. All fields are optional;
// absent fields keep their defaults.
type fileConfig struct {
	Server struct {
		Port     *int    `json:"port"`
		MCPPort  *int    `json:"mcp_port"`
		APIToken *string `json:"api_token"`
	} `json:"server"`
	Ollama struct {
		BaseURL    *string  `json:"base_url"`
		ChatModels []string `json:"chat_models"`
		EmbedModel *string  `json:"embed_model"`
	} `json:"ollama"`
	Storage struct {
		DataDir *string `json:"data_dir"`
	} `json:"storage"`
	Retrieval struct {
		TopK                 *int     `json:"top_k"`
		RerankEnabled        *bool    `json:"rerank_enabled"`
		RerankThreshold      *float64 `json:"rerank_threshold"`
		RerankTimeoutSeconds *int     `json:"rerank_timeout_seconds"`
	} `json:"retrieval"`
	Log struct {
		Level *string `json:"level"`
	} `json:"log"`
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if fc.Server.Port != nil {
		cfg.Server.Port = *fc.Server.Port
	}
	if fc.Server.MCPPort != nil {
		cfg.Server.MCPPort = *fc.Server.MCPPort
	}
	if fc.Server.APIToken != nil {
		cfg.Server.APIToken = *fc.Server.APIToken
	}
	if fc.Ollama.BaseURL != nil {
		cfg.Ollama.BaseURL = *fc.Ollama.BaseURL
	}
	if len(fc.Ollama.ChatModels) > 0 {
		cfg.Ollama.ChatModels = fc.Ollama.ChatModels
	}
	if fc.Ollama.EmbedModel != nil {
		cfg.Ollama.EmbedModel = *fc.Ollama.EmbedModel
	}
	if fc.Storage.DataDir != nil {
		cfg.Storage.DataDir = *fc.Storage.DataDir
	}
	if fc.Retrieval.TopK != nil {
		cfg.Retrieval.TopK = *fc.Retrieval.TopK
	}
	if fc.Retrieval.RerankEnabled != nil {
		cfg.Retrieval.RerankEnabled = *fc.Retrieval.RerankEnabled
	}
	if fc.Retrieval.RerankThreshold != nil {
		cfg.Retrieval.RerankThreshold = *fc.Retrieval.RerankThreshold
	}
	if fc.Retrieval.RerankTimeoutSeconds != nil {
		cfg.Retrieval.RerankTimeoutSeconds = *fc.Retrieval.RerankTimeoutSeconds
	}
	if fc.Log.Level != nil {
		cfg.Log.Level = *fc.Log.Level
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("DOCCHAT_SERVER_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DOCCHAT_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = p
	}
	if v := getenv("DOCCHAT_SERVER_MCP_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DOCCHAT_SERVER_MCP_PORT: %w", err)
		}
		cfg.Server.MCPPort = p
	}
	if v := getenv("DOCCHAT_API_TOKEN"); v != "" {
		cfg.Server.APIToken = v
	}
	if v := getenv("DOCCHAT_OLLAMA_BASE_URL"); v != "" {
		cfg.Ollama.BaseURL = v
	}
	if v := getenv("DOCCHAT_OLLAMA_EMBED_MODEL"); v != "" {
		cfg.Ollama.EmbedModel = v
	}
	if v := getenv("DOCCHAT_STORAGE_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := getenv("DOCCHAT_RETRIEVAL_TOP_K"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DOCCHAT_RETRIEVAL_TOP_K: %w", err)
		}
		cfg.Retrieval.TopK = k
	}
	if v := getenv("DOCCHAT_RETRIEVAL_RERANK"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DOCCHAT_RETRIEVAL_RERANK: %w", err)
		}
		cfg.Retrieval.RerankEnabled = b
	}
	if v := getenv("DOCCHAT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// DefaultChatModel returns the first configured chat model.
func (c Config) DefaultChatModel() string {
	return c.Ollama.ChatModels[0]
}

// SupportsChatModel reports whether the given model is in the allow-list.
func (c Config) SupportsChatModel(name string) bool {
	for _, m := range c.Ollama.ChatModels {
		if m == name {
			return true
		}
	}
	return false
}
