package app

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StorageSQLite = "sqlite"
	StorageFile   = "file"
)

type Config struct {
	OllamaURL          string `yaml:"ollama_url"`
	Model              string `yaml:"model"`
	RAGEnabled         bool   `yaml:"rag_enabled"`
	RAGTopK            int    `yaml:"rag_top_k"`
	RAGCtxTokens       int    `yaml:"rag_ctx_tokens"`
	Storage            string `yaml:"storage"`
	StorageRoot        string `yaml:"storage_root"`
	StatusClearSeconds int    `yaml:"status_clear_seconds"`
	LogFile            string `yaml:"log_file"`
	Debug              bool   `yaml:"debug"`
}

func DefaultConfig() Config {
	return Config{
		OllamaURL:          defaultOllamaURL,
		Model:              "llama3.2",
		RAGEnabled:         false,
		RAGTopK:            4,
		RAGCtxTokens:       1024,
		Storage:            StorageSQLite,
		StatusClearSeconds: 4,
	}
}

func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.OllamaURL == "" {
		cfg.OllamaURL = defaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.2"
	}
	if cfg.RAGTopK <= 0 {
		cfg.RAGTopK = 4
	}
	if cfg.RAGTopK > 32 {
		cfg.RAGTopK = 32
	}
	if cfg.RAGCtxTokens <= 0 {
		cfg.RAGCtxTokens = 1024
	}
	if cfg.Storage != StorageFile {
		cfg.Storage = StorageSQLite
	}
	if cfg.StatusClearSeconds <= 0 {
		cfg.StatusClearSeconds = 4
	}
	return cfg, nil
}

func SaveConfig(cfg Config, path string) error {
	if path == "" {
		return errors.New("no path provided for config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func DefaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "chat-desk", "config.yml")
}

func (c Config) statusClearDelay() time.Duration {
	if c.StatusClearSeconds <= 0 {
		return defaultStatusClearDelay
	}
	return time.Duration(c.StatusClearSeconds) * time.Second
}
