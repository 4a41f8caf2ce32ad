package config

import (
	"strings"
)

const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppHTTPAddr      = ":9980"
	defaultAppLogPath       = "/data/logs/recal.log"
	defaultStorePath        = "/data/db/recal.db"
	defaultLearnerWindow    = 90
	defaultLearnerMin       = 500
	defaultLearnerParallel  = 4
	defaultLearnerInterval  = 24
	defaultLearnerMaxJoint  = 4
	defaultEvalMinTrades    = 200
	defaultEvalBins         = 10
	defaultEvalBootstrap    = 1000
	defaultEvalSeed         = 1
	defaultEvalDrift        = 0.2
	defaultCalMethod        = "isotonic"
	defaultCalMinPairs      = 50
	defaultCalHoldout       = 0.2
	defaultCalMaxAgeDays    = 7
	defaultGateMinTrades    = 200
	defaultGateSharpeAbs    = 0.20
	defaultGateSharpeRel    = 0.15
	defaultGateBrierTol     = 0.02
	defaultGateSlopeMin     = 0.8
	defaultGateSlopeMax     = 1.2
	defaultGateDrawdownTol  = 0.10
	defaultGateHitRateP     = 0.05
	defaultGatePSIMax       = 0.25
	defaultGateTradesPerDay = 50.0
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Learner.applyDefaults(keys)
	c.Evaluate.applyDefaults(keys)
	c.Calibration.applyDefaults(keys)
	c.Gates.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
	)
}

func (l *LearnerConfig) applyDefaults(keys keySet) {
	if l == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("learner.window_days", &l.WindowDays, defaultLearnerWindow),
		intFieldDefault("learner.min_records", &l.MinRecords, defaultLearnerMin),
		intFieldDefault("learner.parallelism", &l.Parallelism, defaultLearnerParallel),
		intFieldDefault("learner.run_interval_hours", &l.RunIntervalHours, defaultLearnerInterval),
		intFieldDefault("learner.max_joint", &l.MaxJoint, defaultLearnerMaxJoint),
	)
	if !keys.isSet("learner.offsets") && len(l.Offsets) == 0 {
		l.Offsets = []int{-1, 1}
	}
}

func (e *EvaluateConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("evaluate.min_trades", &e.MinTrades, defaultEvalMinTrades),
		intFieldDefault("evaluate.bins", &e.Bins, defaultEvalBins),
		intFieldDefault("evaluate.bootstrap_iterations", &e.BootstrapIterations, defaultEvalBootstrap),
		floatFieldDefault("evaluate.drift_flag_threshold", &e.DriftFlagThreshold, defaultEvalDrift),
	)
	if !keys.isSet("evaluate.bootstrap_seed") && e.BootstrapSeed == 0 {
		e.BootstrapSeed = defaultEvalSeed
	}
	// AnnualizationFactor 0 falls through to the evaluate package
	// default so the Config stays the single source of that constant.
}

func (c *CalibrationConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("calibration.method", &c.Method, defaultCalMethod),
		intFieldDefault("calibration.min_pairs", &c.MinPairs, defaultCalMinPairs),
		floatFieldDefault("calibration.holdout_frac", &c.HoldoutFrac, defaultCalHoldout),
		intFieldDefault("calibration.max_age_days", &c.MaxAgeDays, defaultCalMaxAgeDays),
	)
}

func (g *GatesConfig) applyDefaults(keys keySet) {
	if g == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("gates.min_test_trades", &g.MinTestTrades, defaultGateMinTrades),
		floatFieldDefault("gates.min_sharpe_abs", &g.MinSharpeAbs, defaultGateSharpeAbs),
		floatFieldDefault("gates.min_sharpe_rel", &g.MinSharpeRel, defaultGateSharpeRel),
		floatFieldDefault("gates.brier_tolerance", &g.BrierTolerance, defaultGateBrierTol),
		floatFieldDefault("gates.slope_min", &g.SlopeMin, defaultGateSlopeMin),
		floatFieldDefault("gates.slope_max", &g.SlopeMax, defaultGateSlopeMax),
		floatFieldDefault("gates.max_drawdown_tolerance", &g.MaxDrawdownTolerance, defaultGateDrawdownTol),
		floatFieldDefault("gates.hit_rate_p_value", &g.HitRatePValue, defaultGateHitRateP),
		floatFieldDefault("gates.psi_max", &g.PSIMax, defaultGatePSIMax),
		floatFieldDefault("gates.max_trades_per_day", &g.MaxTradesPerDay, defaultGateTradesPerDay),
	)
}

// Helper functions

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target == 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target == 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
