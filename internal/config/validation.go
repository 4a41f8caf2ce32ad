package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.Store.validate(); err != nil {
		return err
	}
	if err := validateParams(c.Params); err != nil {
		return err
	}
	if err := c.Baseline.validate(c.Params); err != nil {
		return err
	}
	if err := c.Learner.validate(); err != nil {
		return err
	}
	if err := c.Calibration.validate(); err != nil {
		return err
	}
	return nil
}

func (s *StoreConfig) validate() error {
	if strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("store.path cannot be empty")
	}
	return nil
}

func validateParams(params []ParamConfig) error {
	if len(params) == 0 {
		return fmt.Errorf("params requires at least one parameter")
	}
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		key := strings.TrimSpace(p.Key)
		if key == "" {
			return fmt.Errorf("params contains entry without key")
		}
		if seen[key] {
			return fmt.Errorf("params.%s declared twice", key)
		}
		seen[key] = true
		if p.Step <= 0 {
			return fmt.Errorf("params.%s step must be positive", key)
		}
		if p.Min > p.Max {
			return fmt.Errorf("params.%s range [%g,%g] is empty", key, p.Min, p.Max)
		}
		switch strings.TrimSpace(p.Direction) {
		case "", "at_most", "at_least":
		default:
			return fmt.Errorf("params.%s direction must be at_most, at_least or empty", key)
		}
		if strings.TrimSpace(p.Direction) != "" && strings.TrimSpace(p.Feature) == "" {
			return fmt.Errorf("params.%s has a direction but no feature to compare", key)
		}
	}
	return nil
}

func (b *BaselineConfig) validate(params []ParamConfig) error {
	if len(b.Params) == 0 {
		return fmt.Errorf("baseline.params requires the initial parameter values")
	}
	declared := make(map[string]bool, len(params))
	for _, p := range params {
		declared[strings.TrimSpace(p.Key)] = true
	}
	for key := range b.Params {
		if !declared[key] {
			return fmt.Errorf("baseline.params contains undeclared parameter: %s", key)
		}
	}
	for _, p := range params {
		if _, ok := b.Params[strings.TrimSpace(p.Key)]; !ok {
			return fmt.Errorf("baseline.params missing value for %s", p.Key)
		}
	}
	return nil
}

func (l *LearnerConfig) validate() error {
	if l.WindowDays <= 0 {
		return fmt.Errorf("learner.window_days must be positive")
	}
	if l.MinRecords <= 0 {
		return fmt.Errorf("learner.min_records must be positive")
	}
	// Zero disables the internal cadence; runs then come only from
	// external triggers through the API.
	if l.RunIntervalHours < 0 {
		return fmt.Errorf("learner.run_interval_hours must not be negative")
	}
	for _, off := range l.Offsets {
		if off == 0 {
			return fmt.Errorf("learner.offsets cannot contain 0")
		}
	}
	return nil
}

func (c *CalibrationConfig) validate() error {
	switch strings.TrimSpace(c.Method) {
	case "isotonic", "platt":
	default:
		return fmt.Errorf("calibration.method must be isotonic or platt, got %q", c.Method)
	}
	if c.HoldoutFrac <= 0 || c.HoldoutFrac >= 1 {
		return fmt.Errorf("calibration.holdout_frac %g outside (0,1)", c.HoldoutFrac)
	}
	return nil
}
