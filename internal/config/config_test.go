package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestExpandEnvVars_Simple(t *testing.T) {
	os.Setenv("RELAYBOT_TEST_TOKEN", "secret123")
	defer os.Unsetenv("RELAYBOT_TEST_TOKEN")

	out := ExpandEnvVars(`{"token": "${RELAYBOT_TEST_TOKEN}"}`)
	want := `{"token": "secret123"}`
	if out != want {
		t.Errorf("expected %q, got %q", want, out)
	}
}

func TestExpandEnvVars_Default(t *testing.T) {
	os.Unsetenv("RELAYBOT_TEST_MISSING")

	out := ExpandEnvVars(`${RELAYBOT_TEST_MISSING:-fallback}`)
	if out != "fallback" {
		t.Errorf("expected fallback, got %q", out)
	}
}

func TestExpandEnvVars_MissingNoDefault(t *testing.T) {
	os.Unsetenv("RELAYBOT_TEST_MISSING")

	// No default: keep the original placeholder.
	out := ExpandEnvVars(`${RELAYBOT_TEST_MISSING}`)
	if out != "${RELAYBOT_TEST_MISSING}" {
		t.Errorf("expected placeholder to survive, got %q", out)
	}
}

func TestFlexStringList_MixedTypes(t *testing.T) {
	var f FlexStringList
	if err := json.Unmarshal([]byte(`["123", 456, "abc"]`), &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []string{"123", "456", "abc"}
	if len(f) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(f))
	}
	for i := range want {
		if f[i] != want[i] {
			t.Errorf("entry %d: expected %q, got %q", i, want[i], f[i])
		}
	}
}

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestValidate_BadDebounce(t *testing.T) {
	cfg := Defaults()
	cfg.Relay.DebounceMs = 10
	if err := Validate(cfg); err == nil {
		t.Error("expected validation error for debounceMs=10")
	}
}

func TestValidate_CorrectionModelRef(t *testing.T) {
	cfg := Defaults()
	cfg.Correction.Enabled = true
	cfg.Correction.Model = "not-a-ref"
	if err := Validate(cfg); err == nil {
		t.Error("expected validation error for model without provider prefix")
	}

	cfg.Correction.Model = "nosuch/model-1"
	if err := Validate(cfg); err == nil {
		t.Error("expected validation error for unknown provider")
	}

	cfg.Correction.Model = "anthropic/claude-3-5-haiku-20241022"
	if err := Validate(cfg); err != nil {
		t.Errorf("expected valid model ref, got %v", err)
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Defaults()
	cfg.Channels.Telegram.Enabled = true
	cfg.Channels.Telegram.Token = "tok"
	cfg.Relay.DebounceMs = 1500

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.Channels.Telegram.Enabled {
		t.Error("telegram.enabled lost in round trip")
	}
	if loaded.Relay.DebounceMs != 1500 {
		t.Errorf("expected debounceMs=1500, got %d", loaded.Relay.DebounceMs)
	}
}

func TestGetSetByPath(t *testing.T) {
	cfg := Defaults()

	if err := SetByPath(cfg, "relay.debounceMs", "2500"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cfg.Relay.DebounceMs != 2500 {
		t.Errorf("expected 2500, got %d", cfg.Relay.DebounceMs)
	}

	val, err := GetByPath(cfg, "relay.debounceMs")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if n, ok := val.(float64); !ok || n != 2500 {
		t.Errorf("expected 2500, got %v", val)
	}
}

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Telegram.Token = "1234567890:AAFakeTokenValue"
	cfg.Providers["anthropic"] = ProviderConfig{Enabled: true, APIKey: "sk-ant-very-secret-key"}

	s := Sanitize(cfg)
	if s.Channels.Telegram.Token == cfg.Channels.Telegram.Token {
		t.Error("telegram token not masked")
	}
	if s.Providers["anthropic"].APIKey == "sk-ant-very-secret-key" {
		t.Error("provider API key not masked")
	}
	// Original must be untouched.
	if cfg.Providers["anthropic"].APIKey != "sk-ant-very-secret-key" {
		t.Error("sanitize mutated the original config")
	}
}
