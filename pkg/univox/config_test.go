package univox

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigRequiresAPIKey(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "")
	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("expected error when api key is missing")
	}
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "dg-key")
	t.Setenv("VAD_BACKEND", "cobra")
	t.Setenv("PICOVOICE_ACCESS_KEY", "pv-key")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Deepgram.APIKey != "dg-key" {
		t.Fatalf("api key = %q", cfg.Deepgram.APIKey)
	}
	if cfg.VAD.Backend != "cobra" || cfg.VAD.CobraAccessKey != "pv-key" {
		t.Fatalf("vad config = %+v", cfg.VAD)
	}
	if cfg.SampleRate != 16000 {
		t.Fatalf("sample rate default = %d", cfg.SampleRate)
	}
	if cfg.Deepgram.Model != "nova-3-general" || cfg.Deepgram.Language != "en" {
		t.Fatalf("deepgram defaults = %+v", cfg.Deepgram)
	}
	if cfg.VADBackendOrDefault() != VADBackendCobra {
		t.Fatalf("resolved backend = %q", cfg.VADBackendOrDefault())
	}
}

func TestLoadConfigFromFileWithEnvExpansion(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "")
	t.Setenv("MY_DG_KEY", "expanded-key")

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
log_level: debug
sample_rate: 16000
deepgram:
  api_key: ${MY_DG_KEY}
  model: nova-2
  settings:
    keywords:
      - "univox"
vad:
  backend: silero
transport:
  server_addr: ":9090"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Deepgram.APIKey != "expanded-key" {
		t.Fatalf("api key = %q, want env expansion", cfg.Deepgram.APIKey)
	}
	if cfg.Deepgram.Model != "nova-2" {
		t.Fatalf("model = %q", cfg.Deepgram.Model)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if cfg.Transport.ServerAddr != ":9090" {
		t.Fatalf("server addr = %q", cfg.Transport.ServerAddr)
	}
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "dg-key")
	t.Setenv("VAD_BACKEND", "webrtc")
	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("expected error for unknown vad backend")
	}
}
