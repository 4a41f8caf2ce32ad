package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"recal/internal/ruleset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
store:
  path: /tmp/recal-test.db
baseline:
  name: momentum-default
  params:
    max_spread_bps: 12
params:
  - key: max_spread_bps
    min: 2
    max: 30
    step: 1
    feature: spread_bps
    direction: at_most
`

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", minimalYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9980", cfg.App.HTTPAddr)
	assert.Equal(t, 90, cfg.Learner.WindowDays)
	assert.Equal(t, 500, cfg.Learner.MinRecords)
	assert.Equal(t, 24, cfg.Learner.RunIntervalHours)
	assert.Equal(t, []int{-1, 1}, cfg.Learner.Offsets)
	assert.Equal(t, 200, cfg.Evaluate.MinTrades)
	assert.Equal(t, int64(1), cfg.Evaluate.BootstrapSeed)
	assert.Zero(t, cfg.Evaluate.AnnualizationFactor, "annualization falls through to the metric layer")
	assert.Equal(t, "isotonic", cfg.Calibration.Method)
	assert.InDelta(t, 0.2, cfg.Calibration.HoldoutFrac, 1e-9)
	assert.Equal(t, 200, cfg.Gates.MinTestTrades)
	assert.InDelta(t, 0.25, cfg.Gates.PSIMax, 1e-9)
}

func TestLoadExplicitValuesWin(t *testing.T) {
	body := minimalYAML + `
app:
  log_level: debug
  http_addr: ":7000"
learner:
  window_days: 30
  min_records: 250
evaluate:
  min_trades: 100
calibration:
  method: platt
`
	path := writeConfig(t, t.TempDir(), "config.yaml", body)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, ":7000", cfg.App.HTTPAddr)
	assert.Equal(t, 30, cfg.Learner.WindowDays)
	assert.Equal(t, 250, cfg.Learner.MinRecords)
	assert.Equal(t, 100, cfg.Evaluate.MinTrades)
	assert.Equal(t, "platt", cfg.Calibration.Method)
	assert.Equal(t, 4, cfg.Learner.Parallelism, "untouched fields still default")
}

func TestLoadIncludeChain(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
store:
  path: /tmp/base.db
app:
  log_level: warn
  http_addr: ":7000"
`)
	root := writeConfig(t, dir, "config.yaml", `
include:
  - base.yaml
app:
  log_level: debug
`+minimalYAML)

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.App.LogLevel, "including file wins")
	assert.Equal(t, ":7000", cfg.App.HTTPAddr, "included value survives where not overridden")
	assert.Equal(t, "/tmp/recal-test.db", cfg.Store.Path)
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "include:\n  - b.yaml\n")
	writeConfig(t, dir, "b.yaml", "include:\n  - a.yaml\n")
	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestLoadValidationFailures(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"missing params", "store:\n  path: /tmp/x.db\nbaseline:\n  params:\n    a: 1\n", "params requires"},
		{"missing store path", "params:\n  - key: a\n    min: 0\n    max: 1\n    step: 0.1\nbaseline:\n  params:\n    a: 0.5\n", "store.path"},
		{"valid minimal", minimalYAML, ""},
		{"bad direction", `
store:
  path: /tmp/x.db
baseline:
  params:
    a: 0.5
params:
  - key: a
    min: 0
    max: 1
    step: 0.1
    feature: f
    direction: sideways
`, "direction"},
		{"direction without feature", `
store:
  path: /tmp/x.db
baseline:
  params:
    a: 0.5
params:
  - key: a
    min: 0
    max: 1
    step: 0.1
    direction: at_most
`, "no feature"},
		{"undeclared baseline param", `
store:
  path: /tmp/x.db
baseline:
  params:
    b: 0.5
params:
  - key: a
    min: 0
    max: 1
    step: 0.1
`, "undeclared"},
		{"baseline missing value", `
store:
  path: /tmp/x.db
baseline:
  params:
    a: 0.5
params:
  - key: a
    min: 0
    max: 1
    step: 0.1
  - key: b
    min: 0
    max: 1
    step: 0.1
`, "missing value for b"},
		{"bad calibration method", minimalYAML + `
calibration:
  method: beta
`, "calibration.method"},
		{"cadence disabled", minimalYAML + `
learner:
  run_interval_hours: 0
`, ""},
		{"negative run interval", minimalYAML + `
learner:
  run_interval_hours: -6
`, "run_interval_hours"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), "config.yaml", tc.body)
			_, err := Load(path)
			if tc.want == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSchemaBridge(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", minimalYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	schema, err := cfg.Schema()
	require.NoError(t, err)
	spec, ok := schema.Spec("max_spread_bps")
	require.True(t, ok)
	assert.Equal(t, ruleset.AtMost, spec.Direction)
	assert.Equal(t, "spread_bps", spec.Feature)

	base := cfg.BaselineRuleSet()
	assert.Equal(t, "momentum-default", base.Name)
	assert.InDelta(t, 12.0, base.Params["max_spread_bps"], 1e-9)
	require.NoError(t, schema.Validate(base.Params))
}

func TestLearnerBridge(t *testing.T) {
	body := minimalYAML + `
learner:
  window_days: 30
  offsets: [-2, -1, 1, 2]
  max_joint: 2
calibration:
  method: platt
  max_age_days: 3
`
	path := writeConfig(t, t.TempDir(), "config.yaml", body)
	cfg, err := Load(path)
	require.NoError(t, err)

	lc := cfg.LearnerConfig()
	assert.Equal(t, 30*24*time.Hour, lc.Window)
	assert.Equal(t, []int{-2, -1, 1, 2}, lc.Schedule.Offsets)
	assert.Equal(t, 2, lc.Schedule.MaxJoint)
	assert.Equal(t, "platt", string(lc.Calibration.Method))
	assert.Equal(t, 3*24*time.Hour, lc.Calibration.MaxAge)

	assert.Equal(t, 24*time.Hour, cfg.RunInterval())
}

func TestRunIntervalZeroDisablesCadence(t *testing.T) {
	body := minimalYAML + `
learner:
  run_interval_hours: 0
`
	path := writeConfig(t, t.TempDir(), "config.yaml", body)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.RunInterval(), "zero interval leaves runs to external triggers")
}

func TestThresholdsBridge(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", minimalYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	th := cfg.Thresholds()
	require.NoError(t, th.Validate())
	assert.Equal(t, 200, th.MinTestTrades)
	assert.InDelta(t, 0.20, th.MinSharpeAbs, 1e-9)
	assert.InDelta(t, 0.05, th.HitRatePValue, 1e-9)
}

func TestDumpRoundTrips(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", minimalYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	out, err := cfg.Dump()
	require.NoError(t, err)
	assert.Contains(t, string(out), "max_spread_bps")
}
