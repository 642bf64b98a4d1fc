// Package config loads the synchronization tuning surface (spec §6.4)
// from a JSON file, grounded in the teacher's TuningConfig: *T-pointer
// optional fields so a partial file leaves defaults intact, plus Get*
// accessors that fall back to the §6.4 defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the canonical config file searched for by
// MustLoadDefaultConfig.
const DefaultConfigPath = "config/sync.defaults.json"

// SyncConfig is the root configuration for every tunable named in spec
// §6.4. Fields omitted from the loaded JSON retain their Get* default.
type SyncConfig struct {
	// Phase align (C6)
	FramePeriodNs       *int64   `json:"frame_period_ns,omitempty"`
	GoalPhaseNs         *int64   `json:"goal_phase_ns,omitempty"`
	ToleranceNs         *int64   `json:"tolerance_ns,omitempty"`
	SettleFrames        *int     `json:"settle_frames,omitempty"`
	StepGain            *float64 `json:"step_gain,omitempty"`
	MinInjectExposureNs *int64   `json:"min_inject_exposure_ns,omitempty"`
	MaxInjectExposureNs *int64   `json:"max_inject_exposure_ns,omitempty"`

	// Membership & heartbeat (C3)
	HeartbeatInterval *string `json:"t_heartbeat,omitempty"` // duration string, e.g. "1s"
	ExpireInterval    *string `json:"t_expire,omitempty"`    // duration string, e.g. "5s"

	// SNTP burst policy (C4)
	BurstK       *int    `json:"k,omitempty"`
	BurstSpacing *string `json:"s,omitempty"` // duration string, e.g. "10ms"
	BurstDeadline *string `json:"d,omitempty"` // duration string, e.g. "200ms"
	BurstRetries *int    `json:"r,omitempty"`

	// Trigger scheduler (C8)
	FutureTriggerLeadNs *int64 `json:"future_trigger_lead_ns,omitempty"`

	// RPC transport (C2)
	RPCPort *int `json:"p_rpc,omitempty"`
}

// EmptySyncConfig returns a SyncConfig with every field nil. Use
// LoadSyncConfig to populate it from a file.
func EmptySyncConfig() *SyncConfig {
	return &SyncConfig{}
}

// LoadSyncConfig loads a SyncConfig from a JSON file, restricted to
// .json paths under a max file size, mirroring the teacher's
// LoadTuningConfig defensive checks.
func LoadSyncConfig(path string) (*SyncConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySyncConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical sync defaults from
// DefaultConfigPath, searching common parent directories. Panics if the
// file cannot be loaded; intended for test setup.
func MustLoadDefaultConfig() *SyncConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
		"../../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadSyncConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate rejects out-of-range values (spec §3, Entity: PhaseConfig:
// step_gain ∈ (0,1], goal_phase_ns ∈ [0, frame_period_ns)).
func (c *SyncConfig) Validate() error {
	if c.StepGain != nil && (*c.StepGain <= 0 || *c.StepGain > 1) {
		return fmt.Errorf("step_gain must be in (0, 1], got %f", *c.StepGain)
	}
	if c.FramePeriodNs != nil && *c.FramePeriodNs <= 0 {
		return fmt.Errorf("frame_period_ns must be positive, got %d", *c.FramePeriodNs)
	}
	if c.GoalPhaseNs != nil && c.FramePeriodNs != nil && (*c.GoalPhaseNs < 0 || *c.GoalPhaseNs >= *c.FramePeriodNs) {
		return fmt.Errorf("goal_phase_ns must be in [0, frame_period_ns), got %d", *c.GoalPhaseNs)
	}
	if c.ToleranceNs != nil && *c.ToleranceNs < 0 {
		return fmt.Errorf("tolerance_ns must be non-negative, got %d", *c.ToleranceNs)
	}
	if c.SettleFrames != nil && *c.SettleFrames < 0 {
		return fmt.Errorf("settle_frames must be non-negative, got %d", *c.SettleFrames)
	}
	if c.MinInjectExposureNs != nil && *c.MinInjectExposureNs < 0 {
		return fmt.Errorf("min_inject_exposure_ns must be non-negative, got %d", *c.MinInjectExposureNs)
	}
	if c.MaxInjectExposureNs != nil && c.MinInjectExposureNs != nil && *c.MaxInjectExposureNs < *c.MinInjectExposureNs {
		return fmt.Errorf("max_inject_exposure_ns must be >= min_inject_exposure_ns")
	}
	if err := validateDuration("t_heartbeat", c.HeartbeatInterval); err != nil {
		return err
	}
	if err := validateDuration("t_expire", c.ExpireInterval); err != nil {
		return err
	}
	if err := validateDuration("s", c.BurstSpacing); err != nil {
		return err
	}
	if err := validateDuration("d", c.BurstDeadline); err != nil {
		return err
	}
	if c.BurstK != nil && *c.BurstK <= 0 {
		return fmt.Errorf("k must be positive, got %d", *c.BurstK)
	}
	if c.BurstRetries != nil && *c.BurstRetries <= 0 {
		return fmt.Errorf("r must be positive, got %d", *c.BurstRetries)
	}
	if c.FutureTriggerLeadNs != nil && *c.FutureTriggerLeadNs < 500_000_000 {
		return fmt.Errorf("future_trigger_lead_ns must be >= 500ms, got %d", *c.FutureTriggerLeadNs)
	}
	if c.RPCPort != nil && (*c.RPCPort < 1 || *c.RPCPort > 65535) {
		return fmt.Errorf("p_rpc must be a valid port, got %d", *c.RPCPort)
	}
	return nil
}

func validateDuration(key string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	if _, err := time.ParseDuration(*v); err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, *v, err)
	}
	return nil
}

// GetFramePeriodNs returns frame_period_ns or its default (a 30 Hz frame
// rate, the teacher's camera's nominal period).
func (c *SyncConfig) GetFramePeriodNs() int64 {
	if c.FramePeriodNs == nil {
		return 33_333_333
	}
	return *c.FramePeriodNs
}

// GetGoalPhaseNs returns goal_phase_ns or its default (phase-locked to
// frame-period zero).
func (c *SyncConfig) GetGoalPhaseNs() int64 {
	if c.GoalPhaseNs == nil {
		return 0
	}
	return *c.GoalPhaseNs
}

// GetToleranceNs returns tolerance_ns or its default.
func (c *SyncConfig) GetToleranceNs() int64 {
	if c.ToleranceNs == nil {
		return 100_000
	}
	return *c.ToleranceNs
}

// GetSettleFrames returns settle_frames or its default.
func (c *SyncConfig) GetSettleFrames() int {
	if c.SettleFrames == nil {
		return 3
	}
	return *c.SettleFrames
}

// GetStepGain returns step_gain or its default.
func (c *SyncConfig) GetStepGain() float64 {
	if c.StepGain == nil {
		return 0.5
	}
	return *c.StepGain
}

// GetMinInjectExposureNs returns min_inject_exposure_ns or its default.
func (c *SyncConfig) GetMinInjectExposureNs() int64 {
	if c.MinInjectExposureNs == nil {
		return 0
	}
	return *c.MinInjectExposureNs
}

// GetMaxInjectExposureNs returns max_inject_exposure_ns or its default
// (one full frame period's worth of headroom).
func (c *SyncConfig) GetMaxInjectExposureNs() int64 {
	if c.MaxInjectExposureNs == nil {
		return c.GetFramePeriodNs()
	}
	return *c.MaxInjectExposureNs
}

// GetHeartbeatInterval returns T_heartbeat or its default (~1s).
func (c *SyncConfig) GetHeartbeatInterval() time.Duration {
	if c.HeartbeatInterval == nil || *c.HeartbeatInterval == "" {
		return time.Second
	}
	d, err := time.ParseDuration(*c.HeartbeatInterval)
	if err != nil {
		return time.Second
	}
	return d
}

// GetExpireInterval returns T_expire or its default (5 x T_heartbeat,
// spec §3).
func (c *SyncConfig) GetExpireInterval() time.Duration {
	if c.ExpireInterval == nil || *c.ExpireInterval == "" {
		return 5 * c.GetHeartbeatInterval()
	}
	d, err := time.ParseDuration(*c.ExpireInterval)
	if err != nil {
		return 5 * c.GetHeartbeatInterval()
	}
	return d
}

// GetBurstK returns K or its default.
func (c *SyncConfig) GetBurstK() int {
	if c.BurstK == nil {
		return 20
	}
	return *c.BurstK
}

// GetBurstSpacing returns S or its default.
func (c *SyncConfig) GetBurstSpacing() time.Duration {
	if c.BurstSpacing == nil || *c.BurstSpacing == "" {
		return 10 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.BurstSpacing)
	if err != nil {
		return 10 * time.Millisecond
	}
	return d
}

// GetBurstDeadline returns D or its default.
func (c *SyncConfig) GetBurstDeadline() time.Duration {
	if c.BurstDeadline == nil || *c.BurstDeadline == "" {
		return 200 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.BurstDeadline)
	if err != nil {
		return 200 * time.Millisecond
	}
	return d
}

// GetBurstRetries returns R or its default.
func (c *SyncConfig) GetBurstRetries() int {
	if c.BurstRetries == nil {
		return 3
	}
	return *c.BurstRetries
}

// GetFutureTriggerLeadNs returns future_trigger_lead_ns or its default
// (500ms, spec §4.8).
func (c *SyncConfig) GetFutureTriggerLeadNs() int64 {
	if c.FutureTriggerLeadNs == nil {
		return 500_000_000
	}
	return *c.FutureTriggerLeadNs
}

// GetRPCPort returns P_rpc or its default.
func (c *SyncConfig) GetRPCPort() int {
	if c.RPCPort == nil {
		return 56_789
	}
	return *c.RPCPort
}
