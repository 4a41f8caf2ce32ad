package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"recal/internal/gates"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// thresholdUpdateSchema rejects unknown threshold keys and non-numeric
// values before anything touches the store.
const thresholdUpdateSchema = `{
	"type": "object",
	"required": ["thresholds", "reason"],
	"additionalProperties": false,
	"properties": {
		"updated_by": {"type": "string"},
		"reason": {"type": "string", "minLength": 1},
		"thresholds": {
			"type": "object",
			"additionalProperties": false,
			"minProperties": 1,
			"properties": {
				"min_test_trades": {"type": "integer", "minimum": 1},
				"min_sharpe_abs": {"type": "number", "minimum": 0},
				"min_sharpe_rel": {"type": "number", "minimum": 0},
				"brier_tolerance": {"type": "number", "minimum": 0},
				"slope_min": {"type": "number"},
				"slope_max": {"type": "number"},
				"max_drawdown_tolerance": {"type": "number", "minimum": 0},
				"hit_rate_p_value": {"type": "number", "exclusiveMinimum": 0, "exclusiveMaximum": 1},
				"psi_max": {"type": "number", "exclusiveMinimum": 0},
				"max_trades_per_day": {"type": "number", "exclusiveMinimum": 0}
			}
		}
	}
}`

var (
	thresholdSchemaOnce sync.Once
	thresholdSchema     *jsonschema.Schema
	thresholdSchemaErr  error
)

func compiledThresholdSchema() (*jsonschema.Schema, error) {
	thresholdSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("thresholds.json", strings.NewReader(thresholdUpdateSchema)); err != nil {
			thresholdSchemaErr = err
			return
		}
		thresholdSchema, thresholdSchemaErr = compiler.Compile("thresholds.json")
	})
	return thresholdSchema, thresholdSchemaErr
}

func validateThresholdUpdate(body []byte) error {
	schema, err := compiledThresholdSchema()
	if err != nil {
		return fmt.Errorf("threshold schema unavailable: %w", err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("threshold update rejected: %w", err)
	}
	return nil
}

// mergeThresholds overlays the fields present in the update onto the
// current set. The update already passed schema validation, so every
// present key is known and numeric.
func mergeThresholds(current gates.Thresholds, update gjson.Result) gates.Thresholds {
	if v := update.Get("min_test_trades"); v.Exists() {
		current.MinTestTrades = int(v.Int())
	}
	if v := update.Get("min_sharpe_abs"); v.Exists() {
		current.MinSharpeAbs = v.Float()
	}
	if v := update.Get("min_sharpe_rel"); v.Exists() {
		current.MinSharpeRel = v.Float()
	}
	if v := update.Get("brier_tolerance"); v.Exists() {
		current.BrierTolerance = v.Float()
	}
	if v := update.Get("slope_min"); v.Exists() {
		current.SlopeMin = v.Float()
	}
	if v := update.Get("slope_max"); v.Exists() {
		current.SlopeMax = v.Float()
	}
	if v := update.Get("max_drawdown_tolerance"); v.Exists() {
		current.MaxDrawdownTolerance = v.Float()
	}
	if v := update.Get("hit_rate_p_value"); v.Exists() {
		current.HitRatePValue = v.Float()
	}
	if v := update.Get("psi_max"); v.Exists() {
		current.PSIMax = v.Float()
	}
	if v := update.Get("max_trades_per_day"); v.Exists() {
		current.MaxTradesPerDay = v.Float()
	}
	return current
}
