package learner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recal/internal/calibration"
	"recal/internal/evaluate"
	"recal/internal/gates"
	"recal/internal/logger"
	"recal/internal/record"
	"recal/internal/ruleset"
	"recal/internal/store"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Store is the persistence surface the learner needs. *sqlite.Store
// satisfies it.
type Store interface {
	Window(ctx context.Context, from, to time.Time) ([]record.DecisionRecord, error)
	Active(ctx context.Context) (ruleset.Version, error)
	Promote(ctx context.Context, rs ruleset.RuleSet, expectedParent, learningRunID, description string) (ruleset.Version, error)
	AppendRun(ctx context.Context, rec RunRecord) error
	CurrentThresholds(ctx context.Context) (gates.Thresholds, error)
	SaveCalibration(ctx context.Context, m calibration.Model) error
}

// Config tunes one learner instance.
type Config struct {
	// Window is how far back the record snapshot reaches.
	Window time.Duration
	// MinRecords is the floor below which a run reports
	// insufficient data without evaluating anything.
	MinRecords int
	// Parallelism caps concurrent candidate evaluations.
	Parallelism int

	Schedule    ruleset.Schedule
	Eval        evaluate.Config
	Calibration calibration.Config
}

// DefaultConfig carries the documented defaults.
func DefaultConfig() Config {
	return Config{
		Window:      90 * 24 * time.Hour,
		MinRecords:  500,
		Parallelism: 4,
		Schedule:    ruleset.DefaultSchedule(),
		Eval:        evaluate.DefaultConfig(),
		Calibration: calibration.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.MinRecords <= 0 {
		c.MinRecords = d.MinRecords
	}
	if c.Parallelism <= 0 {
		c.Parallelism = d.Parallelism
	}
	return c
}

// Learner runs one full batch cycle per Run call: snapshot, split,
// candidate search, test evaluation, gates, promotion.
type Learner struct {
	store  Store
	schema *ruleset.Schema
	cfg    Config
	now    func() time.Time
}

// New builds a learner over the given store and parameter schema.
func New(store Store, schema *ruleset.Schema, cfg Config) (*Learner, error) {
	if store == nil {
		return nil, fmt.Errorf("learner store cannot be nil")
	}
	if schema == nil {
		return nil, fmt.Errorf("learner schema cannot be nil")
	}
	return &Learner{
		store:  store,
		schema: schema,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
	}, nil
}

type candidateResult struct {
	candidate ruleset.Candidate
	bundle    evaluate.Bundle
}

// Run executes one learning cycle. Exactly one RunRecord is appended
// whatever happens; the returned record mirrors it. The error return
// covers only failures to reach or write the store, never a negative
// recommendation.
func (l *Learner) Run(ctx context.Context) (RunRecord, error) {
	started := l.now()
	run := RunRecord{
		ID:          uuid.NewString(),
		StartedAt:   started,
		WindowStart: started.Add(-l.cfg.Window),
		WindowEnd:   started,
	}
	logger.Infof("learning run %s started, window [%s, %s)",
		run.ID, run.WindowStart.Format(time.RFC3339), run.WindowEnd.Format(time.RFC3339))

	rec, err := l.run(ctx, &run)
	run = rec
	run.FinishedAt = l.now()
	if err != nil {
		run.Recommendation = RecommendError
		run.ErrorKind = errorKind(err)
		run.ErrorMessage = err.Error()
		logger.Errorf("learning run %s failed: %v", run.ID, err)
	} else {
		logger.Infof("learning run %s finished: %s", run.ID, run.Recommendation)
	}
	if appendErr := l.store.AppendRun(ctx, run); appendErr != nil {
		logger.Errorf("learning run %s: persisting run record: %v", run.ID, appendErr)
		if err == nil {
			err = appendErr
		}
	}
	return run, err
}

func (l *Learner) run(ctx context.Context, run *RunRecord) (RunRecord, error) {
	// One snapshot per run. Outcomes filled after this point belong
	// to the next run.
	records, err := l.store.Window(ctx, run.WindowStart, run.WindowEnd)
	if err != nil {
		return *run, fmt.Errorf("snapshot window: %w", err)
	}
	run.RecordCount = len(records)

	active, err := l.store.Active(ctx)
	if err != nil {
		return *run, fmt.Errorf("resolve active version: %w", err)
	}
	run.BaselineVersion = active.ID

	if len(records) < l.cfg.MinRecords {
		logger.Warnf("learning run %s: %d records below floor %d", run.ID, len(records), l.cfg.MinRecords)
		run.Recommendation = RecommendInsufficientData
		return *run, nil
	}

	record.SortChronological(records)
	train, validation, test := split(records)
	run.TrainSize = len(train)
	run.ValidationSize = len(validation)
	run.TestSize = len(test)

	thresholds, err := l.store.CurrentThresholds(ctx)
	if err != nil {
		return *run, fmt.Errorf("load gate thresholds: %w", err)
	}
	if err := thresholds.Validate(); err != nil {
		return *run, err
	}

	candidates, err := ruleset.Generate(l.schema, active.RuleSet, l.cfg.Schedule)
	if err != nil {
		return *run, fmt.Errorf("generate candidates: %w", err)
	}
	run.Candidates = len(candidates)
	if len(candidates) == 0 {
		run.Recommendation = RecommendNoImprovement
		return *run, nil
	}

	// Calibration refits once per run on the train slice. The corrected
	// probabilities score every validation candidate and later feed the
	// Brier and slope gates on test.
	calModel, calErr := calibration.Fit(CalibrationPairs(train), l.cfg.Calibration)
	if calErr != nil {
		var fitErr *calibration.FitError
		if !errors.As(calErr, &fitErr) {
			return *run, calErr
		}
		logger.Warnf("learning run %s: calibration fit degraded to raw probabilities: %v", run.ID, calErr)
		run.LowConfidence = true
		calModel = nil
	} else if err := l.store.SaveCalibration(ctx, *calModel); err != nil {
		return *run, fmt.Errorf("persist calibration artifact: %w", err)
	}

	baselineValReplayed := ruleset.Replay(l.schema, active.RuleSet, validation)
	baselineVal := evaluate.Evaluate(baselineValReplayed, calibratedProbs(calModel, baselineValReplayed), l.cfg.Eval)
	run.BaselineValidationSharpe = baselineVal.Sharpe

	results := l.searchValidation(ctx, candidates, validation, calModel)
	if err := ctx.Err(); err != nil {
		return *run, err
	}

	best, ok := selectBest(results)
	if !ok || best.bundle.Sharpe <= baselineVal.Sharpe {
		run.Recommendation = RecommendNoImprovement
		if ok {
			run.BestValidationSharpe = best.bundle.Sharpe
		}
		return *run, nil
	}
	run.CandidateID = best.candidate.ID
	run.CandidateParams = best.candidate.RuleSet.Clone().Params
	run.BestValidationSharpe = best.bundle.Sharpe
	logger.Infof("learning run %s: candidate %s validation sharpe %.4f vs baseline %.4f",
		run.ID, best.candidate.ID, best.bundle.Sharpe, baselineVal.Sharpe)

	baselineTest := ruleset.Replay(l.schema, active.RuleSet, test)
	candidateTest := ruleset.Replay(l.schema, best.candidate.RuleSet, test)
	metrics := TestMetrics{
		Baseline:  evaluate.Evaluate(baselineTest, calibratedProbs(calModel, baselineTest), l.cfg.Eval),
		Candidate: evaluate.Evaluate(candidateTest, calibratedProbs(calModel, candidateTest), l.cfg.Eval),
	}
	metrics.Comparison = evaluate.Compare(baselineTest, candidateTest, l.cfg.Eval)
	metrics.Stability = evaluate.PSI(
		ruleset.Replay(l.schema, best.candidate.RuleSet, train), candidateTest,
		l.cfg.Eval.Bins, l.cfg.Eval.DriftFlagThreshold)
	run.Test = &metrics

	passed, gateResults := gates.Check(metrics.Baseline, metrics.Candidate, metrics.Comparison, metrics.Stability, thresholds)
	run.GateResults = gateResults
	run.GatesPassed = passed
	if metrics.Comparison.SharpeCILower <= 0 {
		run.LowConfidence = true
	}
	if !passed {
		run.Recommendation = RecommendReject
		return *run, nil
	}

	version, err := l.promote(ctx, best.candidate, active, run.ID)
	if err != nil {
		return *run, err
	}
	run.Recommendation = RecommendPromote
	run.PromotedVersion = version.ID
	logger.Infof("learning run %s: promoted %s (parent %s)", run.ID, version.ID, active.ID)
	return *run, nil
}

// searchValidation evaluates every candidate, calibrated, on the
// validation slice. Results land in a pre-sized slice indexed by
// candidate position, so the outcome is identical at any parallelism.
func (l *Learner) searchValidation(ctx context.Context, candidates []ruleset.Candidate, validation []record.DecisionRecord, calModel *calibration.Model) []candidateResult {
	results := make([]candidateResult, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Parallelism)
	for i, cand := range candidates {
		i, cand := i, cand
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			replayed := ruleset.Replay(l.schema, cand.RuleSet, validation)
			results[i] = candidateResult{
				candidate: cand,
				bundle:    evaluate.Evaluate(replayed, calibratedProbs(calModel, replayed), l.cfg.Eval),
			}
			return nil
		})
	}
	// Evaluation is pure; the only group error is context
	// cancellation, which the caller re-checks.
	_ = g.Wait()
	return results
}

// selectBest picks the highest validation Sharpe among candidates with
// enough trades, breaking ties by lower Brier and then by candidate id
// so the search is fully deterministic.
func selectBest(results []candidateResult) (candidateResult, bool) {
	var best candidateResult
	found := false
	for _, r := range results {
		if !r.bundle.Sufficient {
			continue
		}
		if !found || better(r, best) {
			best = r
			found = true
		}
	}
	return best, found
}

func better(a, b candidateResult) bool {
	if a.bundle.Sharpe != b.bundle.Sharpe {
		return a.bundle.Sharpe > b.bundle.Sharpe
	}
	if a.bundle.HasCalibration && b.bundle.HasCalibration && a.bundle.Brier != b.bundle.Brier {
		return a.bundle.Brier < b.bundle.Brier
	}
	return a.candidate.ID < b.candidate.ID
}

// promote swings the active pointer to the winning candidate. On a
// compare-and-swap conflict it retries once, but only when the new
// active version still carries the exact parameters the run evaluated
// as baseline; any real change invalidates the evaluation.
func (l *Learner) promote(ctx context.Context, winner ruleset.Candidate, baseline ruleset.Version, runID string) (ruleset.Version, error) {
	description := fmt.Sprintf("promoted candidate %s by run %s", winner.ID, runID)
	version, err := l.store.Promote(ctx, winner.RuleSet, baseline.ID, runID, description)
	if !errors.Is(err, store.ErrPromotionConflict) {
		return version, err
	}
	current, activeErr := l.store.Active(ctx)
	if activeErr != nil {
		return ruleset.Version{}, activeErr
	}
	if !sameParams(current.RuleSet.Params, baseline.RuleSet.Params) {
		return ruleset.Version{}, fmt.Errorf("%w: active moved to %s with different parameters", store.ErrPromotionConflict, current.ID)
	}
	return l.store.Promote(ctx, winner.RuleSet, current.ID, runID, description)
}

func sameParams(a, b map[string]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// CalibrationPairs extracts calibration training pairs from filled
// records that carry a predicted probability. The on-demand refit
// endpoint uses it too.
func CalibrationPairs(records []record.DecisionRecord) []calibration.Pair {
	pairs := make([]calibration.Pair, 0, len(records))
	for _, r := range records {
		if r.PredictedProb == nil {
			continue
		}
		label := 0.0
		if r.Won() {
			label = 1.0
		}
		pairs = append(pairs, calibration.Pair{Prob: *r.PredictedProb, Outcome: label})
	}
	return pairs
}

// calibratedProbs maps stored predicted probabilities through the
// calibration model, positionally aligned with records. A nil model
// returns nil so evaluation falls back to raw probabilities.
func calibratedProbs(m *calibration.Model, records []record.DecisionRecord) []float64 {
	if m == nil {
		return nil
	}
	out := make([]float64, len(records))
	for i, r := range records {
		if r.PredictedProb == nil {
			out[i] = -1 // no stored prediction; out of range, skipped downstream
			continue
		}
		out[i] = m.Predict(*r.PredictedProb)
	}
	return out
}

type kinder interface{ Kind() string }

func errorKind(err error) string {
	var k kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	if errors.Is(err, store.ErrPromotionConflict) {
		return "promotion_conflict"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "internal"
}
