package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provenanced.toml")
	if err := os.WriteFile(path, []byte(""), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Storage.Path != "/var/lib/provenanced/provenance.db" {
		t.Fatalf("Storage.Path = %q, want default", cfg.Storage.Path)
	}
	if cfg.Socket.Path != "/run/provenanced/provenanced.sock" {
		t.Fatalf("Socket.Path = %q, want default", cfg.Socket.Path)
	}
	if cfg.Metrics.Addr != "127.0.0.1:9477" {
		t.Fatalf("Metrics.Addr = %q, want default", cfg.Metrics.Addr)
	}
}

func TestLoadConfigRespectsOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provenanced.toml")
	content := `
[storage]
path = "/tmp/custom.db"

[socket]
path = "/tmp/custom.sock"

[metrics]
enabled = true
addr = "0.0.0.0:9000"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Storage.Path != "/tmp/custom.db" {
		t.Fatalf("Storage.Path = %q", cfg.Storage.Path)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != "0.0.0.0:9000" {
		t.Fatalf("Metrics = %+v", cfg.Metrics)
	}
}

func TestLoadConfigMissingFileErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("LoadConfig on missing file should error")
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("10s")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if d.Duration.Seconds() != 10 {
		t.Fatalf("Duration = %v, want 10s", d.Duration)
	}
	if err := d.UnmarshalText([]byte("not-a-duration")); err == nil {
		t.Fatal("UnmarshalText should error on invalid input")
	}
}

func TestOverlayDefaultsWhenUnset(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	overlay, err := NewOverlay(ctx, store)
	if err != nil {
		t.Fatalf("NewOverlay: %v", err)
	}

	if !overlay.ClipboardEnabled() {
		t.Fatal("ClipboardEnabled default should be true")
	}
	if overlay.FlushInterval().Seconds() != defaultFlushIntervalSecs {
		t.Fatalf("FlushInterval = %v, want %ds", overlay.FlushInterval(), defaultFlushIntervalSecs)
	}
}

func TestOverlaySetTakesEffectImmediately(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	overlay, err := NewOverlay(ctx, store)
	if err != nil {
		t.Fatalf("NewOverlay: %v", err)
	}

	if err := overlay.Set(ctx, KeyClipboardEnabled, "false"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if overlay.ClipboardEnabled() {
		t.Fatal("ClipboardEnabled should reflect the updated value without a restart")
	}

	if err := overlay.Set(ctx, KeyFlushIntervalSecs, "60"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if overlay.FlushInterval().Seconds() != 60 {
		t.Fatalf("FlushInterval = %v, want 60s", overlay.FlushInterval())
	}
}

func TestOverlayPersistsAcrossReload(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	overlay, err := NewOverlay(ctx, store)
	if err != nil {
		t.Fatalf("NewOverlay: %v", err)
	}
	if err := overlay.Set(ctx, KeySearchEnabled, "false"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	reloaded, err := NewOverlay(ctx, store)
	if err != nil {
		t.Fatalf("NewOverlay (reload): %v", err)
	}
	if reloaded.SearchEnabled() {
		t.Fatal("reloaded overlay should see the persisted override")
	}
}

func TestOverlayIgnoresUnparsableValues(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	overlay, err := NewOverlay(ctx, store)
	if err != nil {
		t.Fatalf("NewOverlay: %v", err)
	}
	if err := overlay.Set(ctx, KeyClipboardEnabled, "not-a-bool"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !overlay.ClipboardEnabled() {
		t.Fatal("unparsable override should fall back to the default (true)")
	}
}
