package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"recal/internal/calibration"
	"recal/internal/gates"
	"recal/internal/learner"
	"recal/internal/record"
	"recal/internal/ruleset"
	"recal/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "recal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testOutcome(pnl float64) record.Outcome {
	return record.Outcome{
		ExitPrice:   101,
		ExitReason:  record.ExitTakeProfit,
		RealizedPnL: pnl,
		ClosedAt:    time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAppendAndFillOutcome(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	prob := 0.6
	id, err := s.AppendRecord(ctx, record.DecisionRecord{
		CreatedAt:     time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
		Ticker:        "BTCUSDT",
		Features:      map[string]float64{"spread_bps": 3.2},
		Signal:        "momentum",
		Params:        map[string]float64{"max_spread_bps": 12},
		PredictedProb: &prob,
		Quantity:      1,
		EntryPrice:    100,
		RuleVersion:   "v1",
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	require.NoError(t, s.FillOutcome(ctx, id, testOutcome(5)))

	// The second fill must hit the write-once guard.
	err = s.FillOutcome(ctx, id, testOutcome(99))
	require.ErrorIs(t, err, store.ErrOutcomeAlreadyFilled)

	window, err := s.Window(ctx, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, window, 1)
	rec := window[0]
	require.NotNil(t, rec.Outcome)
	assert.InDelta(t, 5.0, rec.Outcome.RealizedPnL, 1e-9)
	assert.Equal(t, record.ExitTakeProfit, rec.Outcome.ExitReason)
	assert.InDelta(t, 3.2, rec.Features["spread_bps"], 1e-9)
	require.NotNil(t, rec.PredictedProb)
	assert.InDelta(t, 0.6, *rec.PredictedProb, 1e-9)
}

func TestAppendRejectsPrefilledOutcome(t *testing.T) {
	s := openTestStore(t)
	out := testOutcome(1)
	_, err := s.AppendRecord(context.Background(), record.DecisionRecord{Outcome: &out})
	require.Error(t, err)
}

func TestFillOutcomeUnknownRecord(t *testing.T) {
	s := openTestStore(t)
	err := s.FillOutcome(context.Background(), 12345, testOutcome(1))
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrOutcomeAlreadyFilled)
}

func TestCorrectOutcomeKeepsAudit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.AppendRecord(ctx, record.DecisionRecord{CreatedAt: time.Now(), Quantity: 1, EntryPrice: 100})
	require.NoError(t, err)
	require.NoError(t, s.FillOutcome(ctx, id, testOutcome(5)))

	err = s.CorrectOutcome(ctx, id, testOutcome(-2), "")
	require.Error(t, err, "correction without a reason is rejected")

	corrected := testOutcome(-2)
	corrected.ExitReason = record.ExitStopLoss
	require.NoError(t, s.CorrectOutcome(ctx, id, corrected, "exchange settlement restated fees"))

	window, err := s.Window(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.InDelta(t, -2.0, window[0].Outcome.RealizedPnL, 1e-9)
	assert.Equal(t, record.ExitStopLoss, window[0].Outcome.ExitReason)
}

func TestCorrectOutcomeUnfilledRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := s.AppendRecord(ctx, record.DecisionRecord{CreatedAt: time.Now()})
	require.NoError(t, err)
	err = s.CorrectOutcome(ctx, id, testOutcome(1), "typo")
	require.Error(t, err)
}

func TestWindowExcludesUnfilled(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	first, err := s.AppendRecord(ctx, record.DecisionRecord{CreatedAt: base.Add(2 * time.Hour)})
	require.NoError(t, err)
	_, err = s.AppendRecord(ctx, record.DecisionRecord{CreatedAt: base.Add(1 * time.Hour)})
	require.NoError(t, err)
	require.NoError(t, s.FillOutcome(ctx, first, testOutcome(3)))

	window, err := s.Window(ctx, base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, window, 1, "unfilled records never enter a learning window")
	assert.Equal(t, first, window[0].ID)
}

func TestPromotionCompareAndSwap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := ruleset.RuleSet{Name: "momentum", Params: map[string]float64{"max_spread_bps": 12}}
	initial, err := s.EnsureInitial(ctx, base, "bootstrap")
	require.NoError(t, err)

	// Second EnsureInitial is a no-op returning the same active version.
	again, err := s.EnsureInitial(ctx, base, "bootstrap")
	require.NoError(t, err)
	assert.Equal(t, initial.ID, again.ID)

	improved := ruleset.RuleSet{Name: "momentum", Params: map[string]float64{"max_spread_bps": 11}}
	promoted, err := s.Promote(ctx, improved, initial.ID, "run-1", "tighter spread cap")
	require.NoError(t, err)
	assert.Equal(t, initial.ID, promoted.ParentID)

	active, err := s.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, promoted.ID, active.ID)
	assert.InDelta(t, 11.0, active.RuleSet.Params["max_spread_bps"], 1e-9)

	// A promotion against the stale parent loses the swap and leaves no
	// version row behind.
	_, err = s.Promote(ctx, improved, initial.ID, "run-2", "stale")
	require.ErrorIs(t, err, store.ErrPromotionConflict)

	history, err := s.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2, "the losing promotion rolled back entirely")
	assert.Equal(t, promoted.ID, history[0].ID)
	assert.Equal(t, initial.ID, history[1].ID)
}

func TestPromotionConcurrentSingleWinner(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := ruleset.RuleSet{Name: "momentum", Params: map[string]float64{"max_spread_bps": 12}}
	initial, err := s.EnsureInitial(ctx, base, "bootstrap")
	require.NoError(t, err)

	const racers = 8
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			rs := ruleset.RuleSet{Name: "momentum", Params: map[string]float64{"max_spread_bps": float64(11 - i%3)}}
			_, errs[i] = s.Promote(ctx, rs, initial.ID, fmt.Sprintf("run-%d", i), "race")
		}()
	}
	wg.Wait()

	winners := 0
	for _, e := range errs {
		if e == nil {
			winners++
		} else {
			require.ErrorIs(t, e, store.ErrPromotionConflict)
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent promotion wins the swap")

	history, err := s.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2, "losing promotions leave no version rows")
	assert.Equal(t, initial.ID, history[1].ID)

	active, err := s.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, history[0].ID, active.ID, "the pointer references the single winner")
}

func TestRollbackRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := ruleset.RuleSet{Name: "momentum", Params: map[string]float64{"min_signal_strength": 0.55}}
	initial, err := s.EnsureInitial(ctx, base, "bootstrap")
	require.NoError(t, err)

	improved := ruleset.RuleSet{Name: "momentum", Params: map[string]float64{"min_signal_strength": 0.60}}
	promoted, err := s.Promote(ctx, improved, initial.ID, "run-1", "stronger floor")
	require.NoError(t, err)

	restored, err := s.Rollback(ctx, initial.ID)
	require.NoError(t, err)
	assert.Equal(t, initial.ID, restored.ID)
	assert.InDelta(t, 0.55, restored.RuleSet.Params["min_signal_strength"], 1e-9)

	active, err := s.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, initial.ID, active.ID)

	// The promoted version survives rollback and stays addressable.
	kept, err := s.Version(ctx, promoted.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.60, kept.RuleSet.Params["min_signal_strength"], 1e-9)
}

func TestRollbackUnknownVersion(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Rollback(context.Background(), "no-such-version")
	require.ErrorIs(t, err, store.ErrVersionNotFound)
}

func TestActiveWithoutSeed(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Active(context.Background())
	require.ErrorIs(t, err, store.ErrNoActiveVersion)
}

func TestThresholdsDefaultThenAudit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	current, err := s.CurrentThresholds(ctx)
	require.NoError(t, err)
	assert.Equal(t, gates.DefaultThresholds(), current, "empty chain falls back to defaults")

	tightened := gates.DefaultThresholds()
	tightened.MinSharpeAbs = 0.30
	require.NoError(t, s.UpdateThresholds(ctx, tightened, "ops", "raise the improvement bar"))

	loosened := tightened
	loosened.PSIMax = 0.30
	require.NoError(t, s.UpdateThresholds(ctx, loosened, "ops", "allow more regime drift"))

	current, err = s.CurrentThresholds(ctx)
	require.NoError(t, err)
	assert.Equal(t, loosened, current)

	audit, err := s.ThresholdAudit(ctx, 0)
	require.NoError(t, err)
	require.Len(t, audit, 2, "old revisions stay behind")
	assert.Equal(t, loosened, audit[0].Thresholds)
	assert.Equal(t, tightened, audit[1].Thresholds)
	assert.Equal(t, "ops", audit[0].UpdatedBy)

	bad := gates.DefaultThresholds()
	bad.MinTestTrades = 0
	err = s.UpdateThresholds(ctx, bad, "ops", "typo")
	require.Error(t, err, "invalid sets never enter the chain")
	audit, err = s.ThresholdAudit(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, audit, 2)
}

func TestRunsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 2, 1, 6, 0, 0, 0, time.UTC)
	first := learner.RunRecord{
		ID:              "run-aaa",
		StartedAt:       start,
		FinishedAt:      start.Add(time.Minute),
		RecordCount:     800,
		BaselineVersion: "v1",
		CandidateID:     "max_spread_bps+1",
		Recommendation:  learner.RecommendReject,
		GateResults: []gates.Result{
			{Name: gates.GateMinTrades, Passed: true},
			{Name: gates.GateSharpeAbs, Passed: false},
		},
	}
	require.NoError(t, s.AppendRun(ctx, first))

	second := learner.RunRecord{
		ID:              "run-bbb",
		StartedAt:       start.Add(time.Hour),
		FinishedAt:      start.Add(time.Hour + time.Minute),
		BaselineVersion: "v1",
		Recommendation:  learner.RecommendPromote,
		PromotedVersion: "v2",
		GatesPassed:     true,
	}
	require.NoError(t, s.AppendRun(ctx, second))

	got, err := s.Run(ctx, "run-aaa")
	require.NoError(t, err)
	assert.Equal(t, learner.RecommendReject, got.Recommendation)
	require.Len(t, got.GateResults, 2)
	assert.False(t, got.GateResults[1].Passed)

	latest, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-bbb", latest.ID)

	summaries, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "run-bbb", summaries[0].RunID)
	assert.Equal(t, "v2", summaries[0].PromotedVersion)
	assert.Equal(t, 1, summaries[1].GatesPassed, "summary counts only passed gates")

	_, err = s.Run(ctx, "missing")
	require.ErrorIs(t, err, store.ErrRunNotFound)

	require.Error(t, s.AppendRun(ctx, learner.RunRecord{}), "empty run id is rejected")
}

func TestCalibrationArtifacts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CurrentCalibration(ctx)
	require.ErrorIs(t, err, store.ErrNoCalibration)

	older := calibration.Model{
		Method:    calibration.Isotonic,
		Xs:        []float64{0.3, 0.7},
		Ys:        []float64{0.4, 0.6},
		Samples:   400,
		TrainedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveCalibration(ctx, older))

	newer := calibration.Model{
		Method:    calibration.Platt,
		A:         -2.5,
		B:         1.1,
		Samples:   500,
		TrainedAt: time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC),
		Quality:   calibration.Quality{BrierRaw: 0.22, BrierCalibrated: 0.20, Improvement: 0.02, HoldoutSize: 100},
	}
	require.NoError(t, s.SaveCalibration(ctx, newer))

	current, err := s.CurrentCalibration(ctx)
	require.NoError(t, err)
	assert.Equal(t, calibration.Platt, current.Method)
	assert.InDelta(t, -2.5, current.A, 1e-9)

	list, err := s.ListCalibrations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2, "artifacts append, never replace")
	assert.Equal(t, "platt", list[0].Method)
	assert.InDelta(t, 0.02, list[0].Quality.Improvement, 1e-9)
	assert.Equal(t, "isotonic", list[1].Method)
}

func TestRecordFreshness(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	f, err := s.RecordFreshness(ctx)
	require.NoError(t, err)
	assert.Zero(t, f.TotalRecords)

	id1, err := s.AppendRecord(ctx, record.DecisionRecord{CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	_, err = s.AppendRecord(ctx, record.DecisionRecord{CreatedAt: time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.NoError(t, s.FillOutcome(ctx, id1, testOutcome(7.5)))

	f, err = s.RecordFreshness(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.TotalRecords)
	assert.Equal(t, int64(1), f.FilledRecords)
	assert.InDelta(t, 7.5, f.TotalPnL, 1e-9)
	assert.Equal(t, time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC).UnixMilli(), f.LatestRecord.UnixMilli())
}
