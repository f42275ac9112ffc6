package config

import "testing"

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Port != 3001 {
		t.Errorf("expected default port 3001, got %d", cfg.Port)
	}
	if cfg.MaxImageBytes != 512000 {
		t.Errorf("expected 500 KB image cap, got %d", cfg.MaxImageBytes)
	}
	if cfg.MaxMessageBytes < int64(8*cfg.MaxImageBytes) {
		t.Errorf("read limit %d cannot fit eight avatar images of %d bytes",
			cfg.MaxMessageBytes, cfg.MaxImageBytes)
	}
	if cfg.EmptyMatchTTLSec <= 0 {
		t.Error("expected empty-match expiry enabled by default")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("EMPTY_MATCH_TTL_SEC", "5")
	t.Setenv("MAX_IMAGE_BYTES", "notanumber")

	cfg := Load()
	if cfg.Port != 9999 {
		t.Errorf("expected PORT override 9999, got %d", cfg.Port)
	}
	if cfg.EmptyMatchTTLSec != 5 {
		t.Errorf("expected TTL override 5, got %d", cfg.EmptyMatchTTLSec)
	}
	if cfg.MaxImageBytes != 512000 {
		t.Errorf("invalid env value must keep default, got %d", cfg.MaxImageBytes)
	}
}
