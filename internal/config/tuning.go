// Package config loads the link's tunable parameters, following
// internal/config's own pattern in the teacher repo: an all-optional-
// pointer-fields JSON struct, loaded once from a defaults file, with
// Get* accessors supplying the documented default whenever a field is
// omitted so partial override files are always safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the canonical link tuning defaults file (spec §6
// tunables table).
const DefaultConfigPath = "config/link.defaults.json"

// TuningConfig is the root configuration for every tunable named in spec
// §6. All fields are optional; an absent field falls back to the spec's
// stated default via the matching Get* accessor.
type TuningConfig struct {
	NMax                     *int     `json:"n_max,omitempty"`
	PairingChannel           *int     `json:"pairing_channel,omitempty"`
	TrackerPairingTimeoutMs  *int     `json:"tracker_pairing_timeout_ms,omitempty"`
	ReceiverPairingTimeoutMs *int     `json:"receiver_pairing_timeout_ms,omitempty"`
	SyncIntervalMs           *int     `json:"sync_interval_ms,omitempty"`
	SampleRateHz             *int     `json:"sample_rate_hz,omitempty"`
	NMissMax                 *int     `json:"n_miss_max,omitempty"`
	MissFadeTolerance        *int     `json:"miss_fade_tolerance,omitempty"`
	FusionSnapshotIntervalS  *int     `json:"fusion_snapshot_interval_s,omitempty"`
	AHRSBetaTauAccS          *float64 `json:"ahrs_beta_tau_acc_s,omitempty"`
	AHRSBetaTauMagS          *float64 `json:"ahrs_beta_tau_mag_s,omitempty"`
	RestGyroThresholdRadS    *float64 `json:"rest_gyro_threshold_rad_s,omitempty"`
	RestAccelThresholdG      *float64 `json:"rest_accel_threshold_g,omitempty"`
	RestTimeMs               *int     `json:"rest_time_ms,omitempty"`
	BiasPullGain             *float64 `json:"bias_pull_gain,omitempty"`
	GyroBiasAdaptGain        *float64 `json:"gyro_bias_adapt_gain,omitempty"`
	GyroBiasAdaptSampleGate  *int     `json:"gyro_bias_adapt_sample_gate,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with every field nil; every
// Get* accessor then falls back to its documented default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted
// from the file keep their defaults, so partial override files are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching upward from
// the current directory. Panics if it cannot be found; intended for test
// setup, mirroring the teacher's MustLoadDefaultConfig.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the fields that have a meaningful valid range.
func (c *TuningConfig) Validate() error {
	if c.NMax != nil && (*c.NMax < 1 || *c.NMax > 63) {
		return fmt.Errorf("n_max must be in [1, 63] (6-bit slot id), got %d", *c.NMax)
	}
	if c.PairingChannel != nil && (*c.PairingChannel < 0 || *c.PairingChannel > 255) {
		return fmt.Errorf("pairing_channel must be a byte value, got %d", *c.PairingChannel)
	}
	if c.SampleRateHz != nil && *c.SampleRateHz <= 0 {
		return fmt.Errorf("sample_rate_hz must be positive, got %d", *c.SampleRateHz)
	}
	if c.RestGyroThresholdRadS != nil && *c.RestGyroThresholdRadS < 0 {
		return fmt.Errorf("rest_gyro_threshold_rad_s must be non-negative, got %f", *c.RestGyroThresholdRadS)
	}
	return nil
}

// GetNMax returns n_max or the spec default (8).
func (c *TuningConfig) GetNMax() int {
	if c.NMax == nil {
		return 8
	}
	return *c.NMax
}

// GetPairingChannel returns pairing_channel or the spec default (37).
func (c *TuningConfig) GetPairingChannel() byte {
	if c.PairingChannel == nil {
		return 37
	}
	return byte(*c.PairingChannel)
}

// GetTrackerPairingTimeout returns the tracker-side pairing deadline or
// the spec default (5000ms).
func (c *TuningConfig) GetTrackerPairingTimeout() time.Duration {
	if c.TrackerPairingTimeoutMs == nil {
		return 5 * time.Second
	}
	return time.Duration(*c.TrackerPairingTimeoutMs) * time.Millisecond
}

// GetReceiverPairingTimeout returns the receiver-side pairing deadline or
// the spec default (30000ms).
func (c *TuningConfig) GetReceiverPairingTimeout() time.Duration {
	if c.ReceiverPairingTimeoutMs == nil {
		return 30 * time.Second
	}
	return time.Duration(*c.ReceiverPairingTimeoutMs) * time.Millisecond
}

// GetSyncInterval returns sync_interval_ms or the spec default (5ms).
func (c *TuningConfig) GetSyncInterval() time.Duration {
	if c.SyncIntervalMs == nil {
		return 5 * time.Millisecond
	}
	return time.Duration(*c.SyncIntervalMs) * time.Millisecond
}

// GetSampleRateHz returns sample_rate_hz or the spec default (200).
func (c *TuningConfig) GetSampleRateHz() int {
	if c.SampleRateHz == nil {
		return 200
	}
	return *c.SampleRateHz
}

// GetNMissMax returns n_miss_max or the spec default (50).
func (c *TuningConfig) GetNMissMax() int {
	if c.NMissMax == nil {
		return 50
	}
	return *c.NMissMax
}

// GetMissFadeTolerance returns miss_fade_tolerance or the spec default (3).
func (c *TuningConfig) GetMissFadeTolerance() int {
	if c.MissFadeTolerance == nil {
		return 3
	}
	return *c.MissFadeTolerance
}

// GetFusionSnapshotInterval returns fusion_snapshot_interval_s or the
// spec default (5s).
func (c *TuningConfig) GetFusionSnapshotInterval() time.Duration {
	if c.FusionSnapshotIntervalS == nil {
		return 5 * time.Second
	}
	return time.Duration(*c.FusionSnapshotIntervalS) * time.Second
}

// GetAHRSBetaTauAccS returns the AHRS accelerometer time constant or the
// spec-aligned default of 2.0s.
func (c *TuningConfig) GetAHRSBetaTauAccS() float64 {
	if c.AHRSBetaTauAccS == nil {
		return 2.0
	}
	return *c.AHRSBetaTauAccS
}

// GetAHRSBetaTauMagS returns the AHRS magnetometer time constant or the
// spec-aligned default of 5.0s.
func (c *TuningConfig) GetAHRSBetaTauMagS() float64 {
	if c.AHRSBetaTauMagS == nil {
		return 5.0
	}
	return *c.AHRSBetaTauMagS
}

// GetRestGyroThresholdRadS returns the rest-detection gyro threshold or
// the spec default (0.02 rad/s).
func (c *TuningConfig) GetRestGyroThresholdRadS() float64 {
	if c.RestGyroThresholdRadS == nil {
		return 0.02
	}
	return *c.RestGyroThresholdRadS
}

// GetRestAccelThresholdG returns the rest-detection accel threshold or
// the spec default (0.05 g).
func (c *TuningConfig) GetRestAccelThresholdG() float64 {
	if c.RestAccelThresholdG == nil {
		return 0.05
	}
	return *c.RestAccelThresholdG
}

// GetRestTime returns REST_TIME_MS or the spec default (1500ms).
func (c *TuningConfig) GetRestTime() time.Duration {
	if c.RestTimeMs == nil {
		return 1500 * time.Millisecond
	}
	return time.Duration(*c.RestTimeMs) * time.Millisecond
}

// GetBiasPullGain returns the ZUPT bias-pull gain or the spec default
// (1e-3).
func (c *TuningConfig) GetBiasPullGain() float64 {
	if c.BiasPullGain == nil {
		return 1e-3
	}
	return *c.BiasPullGain
}

// GetGyroBiasAdaptGain returns the AHRS slow bias-adaptation gain or the
// spec default (1e-4).
func (c *TuningConfig) GetGyroBiasAdaptGain() float64 {
	if c.GyroBiasAdaptGain == nil {
		return 1e-4
	}
	return *c.GyroBiasAdaptGain
}

// GetGyroBiasAdaptSampleGate returns the sample count gating the slow
// bias-adaptation term, or the spec default (200).
func (c *TuningConfig) GetGyroBiasAdaptSampleGate() int {
	if c.GyroBiasAdaptSampleGate == nil {
		return 200
	}
	return *c.GyroBiasAdaptSampleGate
}
