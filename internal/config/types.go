package config

import "strings"

// Config is the main configuration carrier for the pipeline.
type Config struct {
	App         AppConfig         `toml:"app"`
	Store       StoreConfig       `toml:"store"`
	Baseline    BaselineConfig    `toml:"baseline"`
	Params      []ParamConfig     `toml:"params"`
	Learner     LearnerConfig     `toml:"learner"`
	Evaluate    EvaluateConfig    `toml:"evaluate"`
	Calibration CalibrationConfig `toml:"calibration"`
	Gates       GatesConfig       `toml:"gates"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

// BaselineConfig seeds the initial rule version on an empty store. It
// is ignored once a version chain exists.
type BaselineConfig struct {
	Name        string             `toml:"name"`
	Description string             `toml:"description"`
	Params      map[string]float64 `toml:"params"`
}

// ParamConfig declares one tunable parameter: its grid, the feature it
// thresholds and the comparison direction.
type ParamConfig struct {
	Key       string  `toml:"key"`
	Min       float64 `toml:"min"`
	Max       float64 `toml:"max"`
	Step      float64 `toml:"step"`
	Feature   string  `toml:"feature"`
	Direction string  `toml:"direction"` // "at_most" | "at_least" | ""
}

type LearnerConfig struct {
	WindowDays       int   `toml:"window_days"`
	MinRecords       int   `toml:"min_records"`
	Parallelism      int   `toml:"parallelism"`
	RunIntervalHours int   `toml:"run_interval_hours"`
	Offsets          []int `toml:"offsets"`
	MaxJoint         int   `toml:"max_joint"`
}

type EvaluateConfig struct {
	MinTrades           int     `toml:"min_trades"`
	AnnualizationFactor float64 `toml:"annualization_factor"`
	Bins                int     `toml:"bins"`
	BootstrapIterations int     `toml:"bootstrap_iterations"`
	BootstrapSeed       int64   `toml:"bootstrap_seed"`
	DriftFlagThreshold  float64 `toml:"drift_flag_threshold"`
}

type CalibrationConfig struct {
	Method      string  `toml:"method"` // "isotonic" | "platt"
	MinPairs    int     `toml:"min_pairs"`
	HoldoutFrac float64 `toml:"holdout_frac"`
	MaxAgeDays  int     `toml:"max_age_days"`
}

// GatesConfig is the bootstrap threshold set. Later changes go through
// the audited update endpoint, never through this file.
type GatesConfig struct {
	MinTestTrades        int     `toml:"min_test_trades"`
	MinSharpeAbs         float64 `toml:"min_sharpe_abs"`
	MinSharpeRel         float64 `toml:"min_sharpe_rel"`
	BrierTolerance       float64 `toml:"brier_tolerance"`
	SlopeMin             float64 `toml:"slope_min"`
	SlopeMax             float64 `toml:"slope_max"`
	MaxDrawdownTolerance float64 `toml:"max_drawdown_tolerance"`
	HitRatePValue        float64 `toml:"hit_rate_p_value"`
	PSIMax               float64 `toml:"psi_max"`
	MaxTradesPerDay      float64 `toml:"max_trades_per_day"`
}

// keySet tracks the field paths explicitly set in the config files.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	_, ok := k[strings.ToLower(strings.TrimSpace(path))]
	return ok
}
