package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadOrCreate_WritesDefaults(t *testing.T) {
	t.Setenv("DOCCHAT_MODEL", "")
	t.Setenv("DOCCHAT_ENDPOINT", "")

	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to be written: %v", err)
	}
	if cfg.Provider != ProviderOllama {
		t.Errorf("provider: got %q, want %q", cfg.Provider, ProviderOllama)
	}
	if cfg.Endpoint != "http://127.0.0.1:11434" {
		t.Errorf("endpoint: got %q", cfg.Endpoint)
	}
	if cfg.DocumentBudget != 6000 {
		t.Errorf("document budget: got %d, want 6000", cfg.DocumentBudget)
	}
	if cfg.MalformedFragmentLimit != 8 {
		t.Errorf("malformed fragment limit: got %d, want 8", cfg.MalformedFragmentLimit)
	}

	again, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if again.Model != cfg.Model || again.HTTPBind != cfg.HTTPBind {
		t.Errorf("reloaded config differs: %+v vs %+v", again, cfg)
	}
}

func TestLoadOrCreate_ParsesFile(t *testing.T) {
	t.Setenv("DOCCHAT_MODEL", "")
	t.Setenv("DOCCHAT_ENDPOINT", "")

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
provider = "OpenAI"
endpoint = "http://localhost:8080/ "
model = "qwen"
document_budget = 0
history_backend = "sqlite"

[ingest]
ocr_endpoint = "http://localhost:5000/ocr"

[debug]
log_directory = "~/logs"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}

	if cfg.Provider != ProviderOpenAI {
		t.Errorf("provider: got %q", cfg.Provider)
	}
	if cfg.Endpoint != "http://localhost:8080" {
		t.Errorf("endpoint: got %q", cfg.Endpoint)
	}
	if cfg.DocumentBudget != 6000 {
		t.Errorf("document budget: got %d, want 6000", cfg.DocumentBudget)
	}
	if cfg.HistoryBackend != "sqlite" {
		t.Errorf("history backend: got %q", cfg.HistoryBackend)
	}
	if cfg.Ingest.OCREndpoint != "http://localhost:5000/ocr" {
		t.Errorf("ocr endpoint: got %q", cfg.Ingest.OCREndpoint)
	}
	if cfg.Ingest.TesseractBin != "tesseract" {
		t.Errorf("tesseract bin: got %q", cfg.Ingest.TesseractBin)
	}
	if strings.HasPrefix(cfg.Debug.LogDirectory, "~") {
		t.Errorf("log directory not expanded: %q", cfg.Debug.LogDirectory)
	}
}

func TestLoadOrCreate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown provider", content: `provider = "bard"`},
		{name: "empty endpoint", content: `endpoint = "  "`},
		{name: "invalid toml", content: `provider = `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DOCCHAT_ENDPOINT", "")

			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}

			if _, err := LoadOrCreate(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadOrCreate_EnvOverrides(t *testing.T) {
	t.Setenv("DOCCHAT_MODEL", "mistral")
	t.Setenv("DOCCHAT_ENDPOINT", "http://gpu-box:11434")
	t.Setenv("DOCCHAT_DEBUG_LOG_REQUESTS", "1")

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`model = "llama3"`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}

	if cfg.Model != "mistral" {
		t.Errorf("model: got %q, want mistral", cfg.Model)
	}
	if cfg.Endpoint != "http://gpu-box:11434" {
		t.Errorf("endpoint: got %q", cfg.Endpoint)
	}
	if !cfg.Debug.LogRequests {
		t.Error("expected request logging enabled by env")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		t.Skip("no home directory")
	}

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "/abs/path", want: "/abs/path"},
		{in: "~", want: home},
		{in: "~/data", want: filepath.Join(home, "data")},
	}

	for _, tt := range tests {
		if got := expandPath(tt.in); got != tt.want {
			t.Errorf("expandPath(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolvedAPIKey(t *testing.T) {
	t.Setenv("DOCCHAT_TEST_KEY", "secret")

	tests := []struct {
		key  string
		want string
	}{
		{key: "", want: ""},
		{key: "plain", want: "plain"},
		{key: "env:DOCCHAT_TEST_KEY", want: "secret"},
		{key: "env:DOCCHAT_MISSING_KEY", want: ""},
	}

	for _, tt := range tests {
		cfg := Config{APIKey: tt.key}
		if got := cfg.ResolvedAPIKey(); got != tt.want {
			t.Errorf("ResolvedAPIKey(%q): got %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestDebugConfig_OverlayEnv(t *testing.T) {
	tests := []struct {
		name      string
		requests  string
		responses string
		dir       string
		base      DebugConfig
		want      DebugConfig
	}{
		{
			name: "unset keeps file values",
			base: DebugConfig{LogRequests: true, LogDirectory: "/var/log/docchat"},
			want: DebugConfig{LogRequests: true, LogDirectory: "/var/log/docchat"},
		},
		{
			name:      "env switches on and off",
			requests:  "true",
			responses: "0",
			base:      DebugConfig{LogResponses: true, LogDirectory: "/tmp/a"},
			want:      DebugConfig{LogRequests: true, LogDirectory: "/tmp/a"},
		},
		{
			name:     "garbage ignored",
			requests: "sometimes",
			dir:      "/tmp/b",
			base:     DebugConfig{LogRequests: true},
			want:     DebugConfig{LogRequests: true, LogDirectory: "/tmp/b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setOrUnset(t, "DOCCHAT_DEBUG_LOG_REQUESTS", tt.requests)
			setOrUnset(t, "DOCCHAT_DEBUG_LOG_RESPONSES", tt.responses)
			setOrUnset(t, "DOCCHAT_DEBUG_LOG_DIR", tt.dir)

			if got := tt.base.overlayEnv(); got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDebugConfig_Enabled(t *testing.T) {
	if (DebugConfig{LogRequests: true}).Enabled() {
		t.Error("no directory should disable logging")
	}
	if !(DebugConfig{LogResponses: true, LogDirectory: "/tmp"}).Enabled() {
		t.Error("responses with a directory should enable logging")
	}
}

func setOrUnset(t *testing.T, key, value string) {
	t.Helper()

	t.Setenv(key, value)
	if value == "" {
		os.Unsetenv(key)
	}
}

func TestLoadOrCreate_FirstRunNormalizesEnv(t *testing.T) {
	t.Setenv("DOCCHAT_MODEL", "")
	t.Setenv("DOCCHAT_ENDPOINT", "http://gpu-box:11434/")

	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if cfg.Endpoint != "http://gpu-box:11434" {
		t.Errorf("endpoint: got %q, want trailing slash trimmed", cfg.Endpoint)
	}

	again, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if again.Endpoint != cfg.Endpoint {
		t.Errorf("first run and reload disagree: %q vs %q", cfg.Endpoint, again.Endpoint)
	}
}
