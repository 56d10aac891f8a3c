package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestLoadDefaultsFile verifies that the canonical defaults file loads
// correctly and that every field is populated with a value in range.
func TestLoadDefaultsFile(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	if cfg.NMax == nil {
		t.Fatal("NMax must be set")
	}
	if cfg.PairingChannel == nil {
		t.Fatal("PairingChannel must be set")
	}
	if cfg.SampleRateHz == nil {
		t.Fatal("SampleRateHz must be set")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must pass Validate(): %v", err)
	}

	if got := cfg.GetNMax(); got != 8 {
		t.Errorf("GetNMax() = %d, want 8", got)
	}
	if got := cfg.GetPairingChannel(); got != 37 {
		t.Errorf("GetPairingChannel() = %d, want 37", got)
	}
	if got := cfg.GetSampleRateHz(); got != 200 {
		t.Errorf("GetSampleRateHz() = %d, want 200", got)
	}
	if got := cfg.GetTrackerPairingTimeout(); got != 5*time.Second {
		t.Errorf("GetTrackerPairingTimeout() = %v, want 5s", got)
	}
	if got := cfg.GetReceiverPairingTimeout(); got != 30*time.Second {
		t.Errorf("GetReceiverPairingTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetRestTime(); got != 1500*time.Millisecond {
		t.Errorf("GetRestTime() = %v, want 1500ms", got)
	}
	if got := cfg.GetGyroBiasAdaptSampleGate(); got != 200 {
		t.Errorf("GetGyroBiasAdaptSampleGate() = %d, want 200", got)
	}
}

// TestEmptyTuningConfig verifies EmptyTuningConfig returns all-nil fields,
// and that every Get* accessor still returns its documented default.
func TestEmptyTuningConfig(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.NMax != nil {
		t.Error("expected NMax to be nil")
	}
	if cfg.AHRSBetaTauAccS != nil {
		t.Error("expected AHRSBetaTauAccS to be nil")
	}

	if got := cfg.GetNMax(); got != 8 {
		t.Errorf("GetNMax() on empty config = %d, want default 8", got)
	}
	if got := cfg.GetPairingChannel(); got != 37 {
		t.Errorf("GetPairingChannel() on empty config = %d, want default 37", got)
	}
	if got := cfg.GetNMissMax(); got != 50 {
		t.Errorf("GetNMissMax() on empty config = %d, want default 50", got)
	}
	if got := cfg.GetMissFadeTolerance(); got != 3 {
		t.Errorf("GetMissFadeTolerance() on empty config = %d, want default 3", got)
	}
	if got := cfg.GetAHRSBetaTauAccS(); got != 2.0 {
		t.Errorf("GetAHRSBetaTauAccS() on empty config = %f, want default 2.0", got)
	}
	if got := cfg.GetRestGyroThresholdRadS(); got != 0.02 {
		t.Errorf("GetRestGyroThresholdRadS() on empty config = %f, want default 0.02", got)
	}
	if got := cfg.GetBiasPullGain(); got != 1e-3 {
		t.Errorf("GetBiasPullGain() on empty config = %f, want default 1e-3", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config must pass Validate(): %v", err)
	}
}

// TestLoadTuningConfigPartialOverride verifies that a partial override file
// keeps unspecified fields at their defaults.
func TestLoadTuningConfigPartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "override.json")
	const body = `{"n_max": 4, "sample_rate_hz": 400}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write override file: %v", err)
	}

	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("LoadTuningConfig failed: %v", err)
	}

	if got := cfg.GetNMax(); got != 4 {
		t.Errorf("GetNMax() = %d, want overridden 4", got)
	}
	if got := cfg.GetSampleRateHz(); got != 400 {
		t.Errorf("GetSampleRateHz() = %d, want overridden 400", got)
	}
	// Unspecified fields retain their documented defaults.
	if got := cfg.GetPairingChannel(); got != 37 {
		t.Errorf("GetPairingChannel() = %d, want default 37", got)
	}
	if got := cfg.GetNMissMax(); got != 50 {
		t.Errorf("GetNMissMax() = %d, want default 50", got)
	}
}

// TestLoadTuningConfigRejectsNonJSONExtension verifies the .json extension
// guard.
func TestLoadTuningConfigRejectsNonJSONExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "override.txt")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if _, err := LoadTuningConfig(path); err == nil {
		t.Error("expected an error for a non-.json extension, got nil")
	}
}

// TestValidateRejectsOutOfRangeNMax verifies Validate catches an n_max
// outside the 6-bit slot-id range (spec §6).
func TestValidateRejectsOutOfRangeNMax(t *testing.T) {
	bad := 64
	cfg := &TuningConfig{NMax: &bad}
	if err := cfg.Validate(); err == nil {
		t.Error("expected Validate() to reject n_max=64, got nil")
	}
}

// TestValidateRejectsNonPositiveSampleRate verifies Validate catches a
// zero or negative sample_rate_hz.
func TestValidateRejectsNonPositiveSampleRate(t *testing.T) {
	bad := 0
	cfg := &TuningConfig{SampleRateHz: &bad}
	if err := cfg.Validate(); err == nil {
		t.Error("expected Validate() to reject sample_rate_hz=0, got nil")
	}
}
