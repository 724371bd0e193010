package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderLangChain = "langchain"
)

type DebugConfig struct {
	LogRequests  bool   `toml:"log_requests"`
	LogResponses bool   `toml:"log_responses"`
	LogDirectory string `toml:"log_directory"`
}

type Config struct {
	Bind                   string       `toml:"bind"`
	HTTPBind               string       `toml:"http_bind"`
	Provider               string       `toml:"provider"`
	LangChainVendor        string       `toml:"langchain_vendor"`
	Endpoint               string       `toml:"endpoint"`
	Model                  string       `toml:"model"`
	APIKey                 string       `toml:"api_key"`
	DataDir                string       `toml:"data_dir"`
	HistoryBackend         string       `toml:"history_backend"`
	SystemPrompt           string       `toml:"system_prompt"`
	PersistSystemPrompt    bool         `toml:"persist_system_prompt"`
	DocumentBudget         int          `toml:"document_budget"`
	Stream                 bool         `toml:"stream"`
	MalformedFragmentLimit int          `toml:"malformed_fragment_limit"`
	HTTPTimeoutSeconds     int          `toml:"http_timeout_seconds"`
	LogLevel               string       `toml:"log_level"`
	Ingest                 IngestConfig `toml:"ingest"`
	Debug                  DebugConfig  `toml:"debug"`
}

func Default() Config {
	defaultDataDir := defaultDataDir()
	return Config{
		Bind:                   ":50061",
		HTTPBind:               "127.0.0.1:8765",
		Provider:               ProviderOllama,
		LangChainVendor:        "ollama",
		Endpoint:               "http://127.0.0.1:11434",
		Model:                  "llama3",
		DataDir:                defaultDataDir,
		HistoryBackend:         "json",
		DocumentBudget:         6000,
		Stream:                 true,
		MalformedFragmentLimit: 8,
		HTTPTimeoutSeconds:     300,
		LogLevel:               "info",
		Ingest: IngestConfig{
			TesseractBin:   "tesseract",
			Languages:      "eng",
			MaxUploadBytes: 20 * 1024 * 1024,
		},
		Debug: DebugConfig{
			LogDirectory: filepath.Join(defaultDataDir, "debug"),
		},
	}
}

// HTTPTimeout returns the inference request timeout; zero disables it.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// ResolvedAPIKey returns the API key, reading it from the environment when written as
// "env:NAME".
func (c Config) ResolvedAPIKey() string {
	if name, ok := strings.CutPrefix(c.APIKey, "env:"); ok {
		return os.Getenv(name)
	}
	return c.APIKey
}

// DefaultPath is where the CLI looks for the config file when none is given.
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.toml")
}

func LoadOrCreate(path string) (Config, error) {
	config := Default()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return config, err
			}

			configData, err := toml.Marshal(config)
			if err != nil {
				return config, err
			}

			if err := os.WriteFile(path, configData, 0o644); err != nil {
				return config, err
			}

			config = applyEnv(config)
			return config, normalize(&config)
		}

		return config, err
	}

	configData, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := toml.Unmarshal(configData, &config); err != nil {
		return config, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	config = applyEnv(config)
	return config, normalize(&config)
}

func applyEnv(config Config) Config {
	if model := strings.TrimSpace(os.Getenv("DOCCHAT_MODEL")); model != "" {
		config.Model = model
	}
	if endpoint := strings.TrimSpace(os.Getenv("DOCCHAT_ENDPOINT")); endpoint != "" {
		config.Endpoint = endpoint
	}
	config.Debug = config.Debug.overlayEnv()
	return config
}

func normalize(config *Config) error {
	config.DataDir = expandPath(config.DataDir)
	config.Debug.LogDirectory = expandPath(config.Debug.LogDirectory)
	config.Endpoint = strings.TrimRight(strings.TrimSpace(config.Endpoint), "/")
	config.Bind = strings.TrimSpace(config.Bind)
	config.HTTPBind = strings.TrimSpace(config.HTTPBind)
	config.Provider = strings.ToLower(strings.TrimSpace(config.Provider))
	config.LangChainVendor = strings.ToLower(strings.TrimSpace(config.LangChainVendor))

	if config.Endpoint == "" {
		return errors.New("endpoint is required")
	}

	switch config.Provider {
	case "":
		config.Provider = ProviderOllama
	case ProviderOllama, ProviderOpenAI, ProviderLangChain:
	default:
		return fmt.Errorf("unknown provider %q", config.Provider)
	}

	if config.Provider == ProviderLangChain && config.LangChainVendor == "" {
		config.LangChainVendor = "ollama"
	}

	if config.Bind == "" {
		config.Bind = ":50061"
	}
	if config.HTTPBind == "" {
		config.HTTPBind = "127.0.0.1:8765"
	}
	if config.DocumentBudget <= 0 {
		config.DocumentBudget = 6000
	}
	if config.MalformedFragmentLimit < 0 {
		config.MalformedFragmentLimit = 0
	}
	if config.Ingest.TesseractBin == "" {
		config.Ingest.TesseractBin = "tesseract"
	}

	return nil
}

func defaultDataDir() string {
	homeDir, _ := os.UserHomeDir()

	if homeDir == "" {
		return ".docchat"
	}

	return filepath.Join(homeDir, ".docchat")
}

func expandPath(path string) string {
	if path == "" {
		return ""
	}

	if strings.HasPrefix(path, "~") {
		homeDir, _ := os.UserHomeDir()

		if homeDir != "" {
			trimmed := strings.TrimPrefix(path, "~")
			trimmed = strings.TrimPrefix(trimmed, string(os.PathSeparator))

			return filepath.Join(homeDir, trimmed)
		}
	}

	return path
}
