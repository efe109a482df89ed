// Package config holds the externally supplied engine configuration.
// Values are read once per run and passed into the planners explicitly.
package config

import (
	"fmt"
	"os"
	"strconv"

	yaml "gopkg.in/yaml.v3"
)

// Engine carries the cost and shift knobs shared by the baseline planner and
// the optimizer. A zero Engine is not usable; start from Default().
type Engine struct {
	DefaultHourlyRate      float64 `yaml:"defaultHourlyRate"`
	DeadlinePenaltyPerHour float64 `yaml:"deadlinePenaltyPerHour"`
	// DeadlineObjectiveWeight multiplies the deadline penalty inside the
	// search objective only; reported costs use the raw penalty.
	DeadlineObjectiveWeight float64 `yaml:"deadlineObjectiveWeight"`
	OvertimeMultiplier      float64 `yaml:"overtimeMultiplier"`
	OvertimeAllowanceMin    int     `yaml:"overtimeAllowanceMin"`
	ShiftStartHour          int     `yaml:"shiftStartHour"`
	ShiftEndHour            int     `yaml:"shiftEndHour"`

	// Per-stage standard handling minutes added on top of item-derived time.
	StageStdMinutes map[string]int `yaml:"stageStdMinutes"`
	// Baseline degradation multipliers per stage (legacy WMS behavior).
	StageDegradation map[string]float64 `yaml:"stageDegradation"`
	// Baseline fixed waiting minutes before each stage.
	StageWaitMinutes map[string]int `yaml:"stageWaitMinutes"`

	QueueThreshold  int     `yaml:"queueThreshold"`
	HeavyOrderKg    float64 `yaml:"heavyOrderKg"`
	HighVolumeUnits int     `yaml:"highVolumeUnits"`

	// Cross-wave mode: cost charged per order moved out of its published wave.
	WaveDisruptionCost float64 `yaml:"waveDisruptionCost"`

	DefaultTimeLimitSeconds float64 `yaml:"defaultTimeLimitSeconds"`
}

// Default returns the stock configuration used when no file or override is
// present.
func Default() Engine {
	return Engine{
		DefaultHourlyRate:       18.50,
		DeadlinePenaltyPerHour:  100,
		DeadlineObjectiveWeight: 1000,
		OvertimeMultiplier:      1.5,
		OvertimeAllowanceMin:    120,
		ShiftStartHour:          8,
		ShiftEndHour:            16,
		StageStdMinutes: map[string]int{
			"PICK": 4, "CONSOLIDATE": 3, "PACK": 5, "LABEL": 2, "STAGE": 3, "SHIP": 4,
		},
		StageDegradation: map[string]float64{
			"PICK": 1.30, "CONSOLIDATE": 1.15, "PACK": 1.40, "LABEL": 1.10, "STAGE": 1.15, "SHIP": 1.20,
		},
		StageWaitMinutes: map[string]int{
			"PICK": 5, "CONSOLIDATE": 8, "PACK": 6, "LABEL": 3, "STAGE": 5, "SHIP": 10,
		},
		QueueThreshold:          20,
		HeavyOrderKg:            23,
		HighVolumeUnits:         24,
		WaveDisruptionCost:      50,
		DefaultTimeLimitSeconds: 30,
	}
}

// Load reads the engine config: Default(), overlaid by the YAML file at path
// (if non-empty), overlaid by environment variables.
func Load(path string) (Engine, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Engine{}, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Engine{}, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Engine{}, err
	}
	return cfg, nil
}

func (c *Engine) applyEnv() {
	if v := os.Getenv("WAVE_DEFAULT_HOURLY_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.DefaultHourlyRate = f
		}
	}
	if v := os.Getenv("WAVE_DEADLINE_PENALTY_PER_HOUR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.DeadlinePenaltyPerHour = f
		}
	}
	if v := os.Getenv("WAVE_OVERTIME_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.OvertimeMultiplier = f
		}
	}
	if v := os.Getenv("WAVE_SHIFT_START_HOUR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ShiftStartHour = n
		}
	}
	if v := os.Getenv("WAVE_SHIFT_END_HOUR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ShiftEndHour = n
		}
	}
	if v := os.Getenv("WAVE_TIME_LIMIT_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.DefaultTimeLimitSeconds = f
		}
	}
}

func (c Engine) validate() error {
	if c.ShiftEndHour <= c.ShiftStartHour {
		return fmt.Errorf("config: shift window [%d,%d) is empty", c.ShiftStartHour, c.ShiftEndHour)
	}
	if c.OvertimeMultiplier < 1 {
		return fmt.Errorf("config: overtime multiplier %.2f below 1", c.OvertimeMultiplier)
	}
	if c.DeadlineObjectiveWeight <= 0 {
		return fmt.Errorf("config: deadline objective weight must be positive")
	}
	return nil
}

// ShiftMinutes is the regular shift length in minutes.
func (c Engine) ShiftMinutes() int { return (c.ShiftEndHour - c.ShiftStartHour) * 60 }

// Merge applies per-warehouse overrides (stored as a loose map) over c.
// Only the numeric knobs may be overridden; stage maps merge per key.
func (c Engine) Merge(over map[string]any) Engine {
	out := c
	num := func(key string, dst *float64) {
		if f, ok := asFloat(over[key]); ok {
			*dst = f
		}
	}
	num("defaultHourlyRate", &out.DefaultHourlyRate)
	num("deadlinePenaltyPerHour", &out.DeadlinePenaltyPerHour)
	num("deadlineObjectiveWeight", &out.DeadlineObjectiveWeight)
	num("overtimeMultiplier", &out.OvertimeMultiplier)
	num("waveDisruptionCost", &out.WaveDisruptionCost)
	num("defaultTimeLimitSeconds", &out.DefaultTimeLimitSeconds)
	if f, ok := asFloat(over["overtimeAllowanceMin"]); ok {
		out.OvertimeAllowanceMin = int(f)
	}
	if f, ok := asFloat(over["queueThreshold"]); ok {
		out.QueueThreshold = int(f)
	}
	if m, ok := over["stageStdMinutes"].(map[string]any); ok {
		merged := map[string]int{}
		for k, v := range c.StageStdMinutes {
			merged[k] = v
		}
		for k, v := range m {
			if f, ok := asFloat(v); ok {
				merged[k] = int(f)
			}
		}
		out.StageStdMinutes = merged
	}
	return out
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
