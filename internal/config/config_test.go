package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSetDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	checks := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"Server.Listen", cfg.Server.Listen, ":8000"},
		{"Server.MaxPromptChars", cfg.Server.MaxPromptChars, 1000},
		{"Audio.Dir", cfg.Audio.Dir, os.TempDir()},
		{"Audio.Retention", cfg.Audio.Retention, 0},
		{"Backends.Default", cfg.Backends.Default, "parler"},
		{"Backends.Canary.MaxNewTokens", cfg.Backends.Canary.MaxNewTokens, 256},
		{"Backends.Canary.TopP", cfg.Backends.Canary.TopP, 0.95},
		{"Backends.Canary.Temperature", cfg.Backends.Canary.Temperature, 0.7},
		{"Backends.Canary.RepetitionPenalty", cfg.Backends.Canary.RepetitionPenalty, 1.05},
		{"Backends.Canary.SampleRate", cfg.Backends.Canary.SampleRate, 16000},
		{"Backends.Fish.URL", cfg.Backends.Fish.URL, "http://localhost:8080"},
		{"Backends.Fish.Timeout", cfg.Backends.Fish.Timeout, 60},
		{"Backends.Fish.ProbeTimeout", cfg.Backends.Fish.ProbeTimeout, 2},
		{"Backends.Fish.Encoding", cfg.Backends.Fish.Encoding, "msgpack"},
		{"Backends.Edge.Voice", cfg.Backends.Edge.Voice, "ja-JP-NanamiNeural"},
		{"Log.Level", cfg.Log.Level, "info"},
	}

	for _, c := range checks {
		switch want := c.want.(type) {
		case int:
			if c.got.(int) != want {
				t.Errorf("%s: got %v, want %v", c.name, c.got, want)
			}
		case float64:
			if c.got.(float64) != want {
				t.Errorf("%s: got %v, want %v", c.name, c.got, want)
			}
		case string:
			if c.got.(string) != want {
				t.Errorf("%s: got %v, want %v", c.name, c.got, want)
			}
		}
	}

	if !cfg.Text.RubyEnabled() {
		t.Error("振假名注音默认应开启")
	}
}

func TestSetDefaults_PromptLimit(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"unset", 0, 1000},
		{"explicit", 200, 200},
		{"unlimited", -1, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Server: ServerConfig{MaxPromptChars: tt.in}}
			setDefaults(cfg)
			if cfg.Server.MaxPromptChars != tt.want {
				t.Errorf("MaxPromptChars = %d, want %d", cfg.Server.MaxPromptChars, tt.want)
			}
		})
	}
}

func TestSetDefaults_DoesNotOverride(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Listen: "127.0.0.1:9000", RateLimit: 2, RateBurst: 5},
		Audio:    AudioConfig{Dir: "/var/lib/jatts"},
		Backends: BackendsConfig{Default: "fish", Fish: FishConfig{Encoding: "json", Timeout: 10}},
		Log:      LogConfig{Level: "debug"},
	}
	setDefaults(cfg)

	if cfg.Server.Listen != "127.0.0.1:9000" {
		t.Errorf("Listen should not be overridden: got %s", cfg.Server.Listen)
	}
	if cfg.Server.RateBurst != 5 {
		t.Errorf("RateBurst should not be overridden: got %d", cfg.Server.RateBurst)
	}
	if cfg.Audio.Dir != "/var/lib/jatts" {
		t.Errorf("Audio.Dir should not be overridden: got %s", cfg.Audio.Dir)
	}
	if cfg.Backends.Default != "fish" {
		t.Errorf("Backends.Default should not be overridden: got %s", cfg.Backends.Default)
	}
	if cfg.Backends.Fish.Encoding != "json" {
		t.Errorf("Fish.Encoding should not be overridden: got %s", cfg.Backends.Fish.Encoding)
	}
	if cfg.Backends.Fish.Timeout != 10 {
		t.Errorf("Fish.Timeout should not be overridden: got %d", cfg.Backends.Fish.Timeout)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level should not be overridden: got %s", cfg.Log.Level)
	}
}

func TestSetDefaults_RateBurstFollowsLimit(t *testing.T) {
	cfg := &Config{Server: ServerConfig{RateLimit: 0.5}}
	setDefaults(cfg)
	if cfg.Server.RateBurst != 1 {
		t.Errorf("RateBurst: got %d, want 1", cfg.Server.RateBurst)
	}

	cfg = &Config{}
	setDefaults(cfg)
	if cfg.Server.RateBurst != 0 {
		t.Errorf("未限流时 RateBurst 应保持 0: got %d", cfg.Server.RateBurst)
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	yamlContent := `
server:
  listen: ":9999"
  rate_limit: 1.5
audio:
  dir: /tmp/jatts-audio
  retention: 30
text:
  ruby: false
backends:
  default: canary
  fish:
    url: http://fish:8080
    encoding: json
  edge:
    enabled: true
    voice: ja-JP-KeitaNeural
log:
  level: debug
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(tmpFile, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Listen != ":9999" {
		t.Errorf("Server.Listen: got %s", cfg.Server.Listen)
	}
	if cfg.Server.RateLimit != 1.5 {
		t.Errorf("Server.RateLimit: got %v", cfg.Server.RateLimit)
	}
	if cfg.Audio.Retention != 30 {
		t.Errorf("Audio.Retention: got %d", cfg.Audio.Retention)
	}
	if cfg.Text.RubyEnabled() {
		t.Error("ruby: false 应关闭注音")
	}
	if cfg.Backends.Default != "canary" {
		t.Errorf("Backends.Default: got %s", cfg.Backends.Default)
	}
	if cfg.Backends.Fish.URL != "http://fish:8080" || cfg.Backends.Fish.Encoding != "json" {
		t.Errorf("Fish: got %+v", cfg.Backends.Fish)
	}
	if !cfg.Backends.Edge.Enabled || cfg.Backends.Edge.Voice != "ja-JP-KeitaNeural" {
		t.Errorf("Edge: got %+v", cfg.Backends.Edge)
	}
	// 未设置项仍有默认值
	if cfg.Backends.Fish.MaxNewTokens != 256 {
		t.Errorf("Fish.MaxNewTokens: got %d, want 256", cfg.Backends.Fish.MaxNewTokens)
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	tomlContent := `
[server]
listen = "0.0.0.0:8100"

[backends]
default = "fish"

[backends.canary]
url = "http://canary:9000"
temperature = 0.5

[history]
path = "/tmp/jatts.db"
`
	tmpFile := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(tmpFile, []byte(tomlContent), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Listen != "0.0.0.0:8100" {
		t.Errorf("Server.Listen: got %s", cfg.Server.Listen)
	}
	if cfg.Backends.Default != "fish" {
		t.Errorf("Backends.Default: got %s", cfg.Backends.Default)
	}
	if cfg.Backends.Canary.URL != "http://canary:9000" {
		t.Errorf("Canary.URL: got %s", cfg.Backends.Canary.URL)
	}
	if cfg.Backends.Canary.Temperature != 0.5 {
		t.Errorf("Canary.Temperature: got %v", cfg.Backends.Canary.Temperature)
	}
	if cfg.History.Path != "/tmp/jatts.db" {
		t.Errorf("History.Path: got %s", cfg.History.Path)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_JATTS_OPENAI_KEY", "  sk-test-123  ")

	yamlContent := `
backends:
  openai:
    enabled: true
    api_key: ${TEST_JATTS_OPENAI_KEY}
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(tmpFile, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backends.OpenAI.APIKey != "sk-test-123" {
		t.Errorf("APIKey: got %q, want %q", cfg.Backends.OpenAI.APIKey, "sk-test-123")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("JATTS_SERVER_LISTEN", ":7000")
	t.Setenv("JATTS_BACKENDS_FISH_URL", "http://override:8080")
	t.Setenv("JATTS_LOG_LEVEL", "warn")

	yamlContent := `
server:
  listen: ":9999"
backends:
  fish:
    url: http://fish:8080
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(tmpFile, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Listen != ":7000" {
		t.Errorf("Server.Listen: got %s, want :7000", cfg.Server.Listen)
	}
	if cfg.Backends.Fish.URL != "http://override:8080" {
		t.Errorf("Fish.URL: got %s", cfg.Backends.Fish.URL)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level: got %s", cfg.Log.Level)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("缺少配置文件时应使用默认值: %v", err)
	}
	if cfg.Server.Listen != ":8000" {
		t.Errorf("Server.Listen: got %s", cfg.Server.Listen)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(tmpFile, []byte("server: [unterminated"), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if _, err := Load(tmpFile); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "config.ini")
	if err := os.WriteFile(tmpFile, []byte("listen=:1"), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if _, err := Load(tmpFile); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		in, want string
	}{
		{"~/.jatts/history.db", filepath.Join(home, ".jatts", "history.db")},
		{"/var/lib/jatts", "/var/lib/jatts"},
		{"relative/~/path", "relative/~/path"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := expandHome(tt.in); got != tt.want {
			t.Errorf("expandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoad_SampleConfig(t *testing.T) {
	t.Setenv("FISH_API_KEY", "  fish-key  ")

	cfg, err := Load(filepath.Join("..", "..", "configs", "jatts.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backends.Fish.APIKey != "fish-key" {
		t.Errorf("Fish.APIKey = %q", cfg.Backends.Fish.APIKey)
	}
	if cfg.Audio.Retention != 60 {
		t.Errorf("Audio.Retention = %d, want 60", cfg.Audio.Retention)
	}
	if cfg.Backends.Vits.Enabled || cfg.Backends.Say.Enabled {
		t.Error("optional backends should be disabled in the sample config")
	}
	if !cfg.Text.RubyEnabled() {
		t.Error("ruby should be enabled")
	}
}
