package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("listen:\n  port: 9999\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	if _, err := FindConfig("/nonexistent/config.yaml"); err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quill.yaml")
	os.WriteFile(path, []byte("listen:\n  port: 8080\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "quill.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "quill.yaml")
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quill.yaml")
	os.WriteFile(path, []byte("database:\n  path: /tmp/q.db\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Listen.Port != 8180 {
		t.Errorf("port: got %d, want 8180", cfg.Listen.Port)
	}
	if cfg.Database.Path != "/tmp/q.db" {
		t.Errorf("db path: got %q", cfg.Database.Path)
	}
	if cfg.Models.Fast == "" || cfg.Models.Capable == "" {
		t.Errorf("model defaults missing: %+v", cfg.Models)
	}
	if cfg.Models.Title != cfg.Models.Fast {
		t.Errorf("title model should default to fast: %+v", cfg.Models)
	}
	if cfg.Embeddings.BaseURL != cfg.Models.BaseURL {
		t.Errorf("embeddings base URL should default to models base URL")
	}
	if cfg.Quota.DirectorDaily != 40 || cfg.Quota.MemberDaily != 20 {
		t.Errorf("quota defaults: %+v", cfg.Quota)
	}
	if cfg.MQTT.Topic != "quill/turns" {
		t.Errorf("mqtt topic default: %q", cfg.MQTT.Topic)
	}
}

func TestLoadSearchProviderDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quill.yaml")
	os.WriteFile(path, []byte("search:\n  url: http://localhost:8080\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Search.Provider != "searxng" {
		t.Errorf("provider: got %q, want searxng when url set", cfg.Search.Provider)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quill.yaml")
	os.WriteFile(path, []byte("listen: [not a map"), 0600)

	if _, err := Load(path); err == nil {
		t.Fatal("Load should reject invalid YAML")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"trace", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{" debug ", slog.LevelDebug, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tc := range tests {
		got, err := ParseLogLevel(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseLogLevel(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLogLevel(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestReplaceLogLevelNames(t *testing.T) {
	attr := slog.Attr{Key: slog.LevelKey, Value: slog.AnyValue(LevelTrace)}
	got := ReplaceLogLevelNames(nil, attr)
	if got.Value.String() != "TRACE" {
		t.Errorf("got %q, want TRACE", got.Value.String())
	}

	other := slog.String("component", "api")
	if got := ReplaceLogLevelNames(nil, other); got.Value.String() != "api" {
		t.Errorf("non-level attr rewritten: %v", got)
	}
}
