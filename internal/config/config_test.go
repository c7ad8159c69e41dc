package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recorder.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := EmptyRecorderConfig()

	if got := cfg.GetTWAMax(); got != 180 {
		t.Errorf("GetTWAMax() = %f, want 180", got)
	}
	if got := cfg.GetTWSStep(); got != 2 {
		t.Errorf("GetTWSStep() = %f, want 2", got)
	}
	if !cfg.GetFoldTo180() {
		t.Error("GetFoldTo180() should default to true")
	}
	if got := cfg.GetTWSEMAAlpha(); got != 0.20 {
		t.Errorf("GetTWSEMAAlpha() = %f, want 0.20", got)
	}
	if got := cfg.GetFastPollSeconds(); got != 0.5 {
		t.Errorf("GetFastPollSeconds() = %f, want 0.5", got)
	}
	if got := cfg.GetGatewayURL(); got != "" {
		t.Errorf("GetGatewayURL() = %q, want empty", got)
	}
}

func TestLoadPartialConfig(t *testing.T) {
	path := writeConfig(t, `{"twa_step": 5, "tws_max": 40, "interpolate": false}`)

	cfg, err := LoadRecorderConfig(path)
	if err != nil {
		t.Fatalf("LoadRecorderConfig failed: %v", err)
	}

	if got := cfg.GetTWAStep(); got != 5 {
		t.Errorf("GetTWAStep() = %f, want 5", got)
	}
	if got := cfg.GetTWSMax(); got != 40 {
		t.Errorf("GetTWSMax() = %f, want 40", got)
	}
	if cfg.GetInterpolate() {
		t.Error("GetInterpolate() should be false")
	}
	// untouched fields keep defaults
	if got := cfg.GetTWAMin(); got != 0 {
		t.Errorf("GetTWAMin() = %f, want 0", got)
	}
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	if _, err := LoadRecorderConfig("recorder.yaml"); err == nil {
		t.Error("expected error for non-json extension")
	}
}

func TestValidate(t *testing.T) {
	bad := func(mutate string) string { return mutate }

	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"valid", `{"twa_step": 10}`, false},
		{"zero step", bad(`{"twa_step": 0}`), true},
		{"inverted range", `{"tws_min": 10, "tws_max": 5}`, true},
		{"alpha out of range", `{"tws_ema_alpha": 1.5}`, true},
		{"negative guard", `{"lull_guard_delta": -1}`, true},
		{"zero fast poll", `{"fast_poll_seconds": 0}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := LoadRecorderConfig(path)
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadRecorderConfig error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
