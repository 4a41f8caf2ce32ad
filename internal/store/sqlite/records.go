package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"recal/internal/record"
	"recal/internal/store"
	"recal/internal/store/model"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AppendRecord stores a new decision. Outcomes must arrive later via
// FillOutcome; an outcome supplied here is rejected to keep the
// append/fill phases distinct.
func (s *Store) AppendRecord(ctx context.Context, rec record.DecisionRecord) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if rec.Outcome != nil {
		return 0, fmt.Errorf("append with outcome set; fill outcomes through FillOutcome")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m := recordToModel(rec)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return 0, err
	}
	return m.ID, nil
}

// FillOutcome writes the outcome exactly once. A record whose outcome
// is already filled is never mutated here; that takes the correction
// path.
func (s *Store) FillOutcome(ctx context.Context, id int64, out record.Outcome) error {
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := record.ParseExitReason(string(out.ExitReason)); err != nil {
		return err
	}
	if out.ClosedAt.IsZero() {
		out.ClosedAt = time.Now()
	}
	res := s.db.WithContext(ctx).Model(&model.DecisionRecordModel{}).
		Where("id = ? AND filled = 0", id).
		Updates(outcomeColumns(out))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&model.DecisionRecordModel{}).
			Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("decision record %d not found", id)
		}
		return store.ErrOutcomeAlreadyFilled
	}
	return nil
}

// CorrectOutcome overwrites a filled outcome, preserving the original
// in the outcome_corrections audit table. The reason is mandatory.
func (s *Store) CorrectOutcome(ctx context.Context, id int64, out record.Outcome, reason string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if reason == "" {
		return fmt.Errorf("outcome correction requires a reason")
	}
	if _, err := record.ParseExitReason(string(out.ExitReason)); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.DecisionRecordModel
		if err := tx.Where("id = ?", id).First(&m).Error; err != nil {
			return err
		}
		if m.Filled == 0 {
			return fmt.Errorf("decision record %d has no outcome to correct", id)
		}
		originalJSON, _ := json.Marshal(modelOutcome(m))
		correctedJSON, _ := json.Marshal(out)
		audit := model.OutcomeCorrectionModel{
			RecordID:      id,
			Original:      datatypes.JSON(originalJSON),
			Corrected:     datatypes.JSON(correctedJSON),
			Reason:        reason,
			CreatedAtUnix: time.Now().UnixMilli(),
		}
		if err := tx.Create(&audit).Error; err != nil {
			return err
		}
		return tx.Model(&model.DecisionRecordModel{}).
			Where("id = ?", id).
			Updates(outcomeColumns(out)).Error
	})
}

// Window snapshots filled records inside [from, to) in chronological
// order. Learning runs call this exactly once at start and never
// re-query, so concurrent outcome-filling cannot change a run's input.
func (s *Store) Window(ctx context.Context, from, to time.Time) ([]record.DecisionRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var models []model.DecisionRecordModel
	if err := s.db.WithContext(ctx).
		Where("filled = 1 AND created_at >= ? AND created_at < ?", from.UnixMilli(), to.UnixMilli()).
		Order("created_at ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]record.DecisionRecord, 0, len(models))
	for _, m := range models {
		out = append(out, modelToRecord(m))
	}
	return out, nil
}

// Freshness summarizes the record log for the status endpoint.
type Freshness struct {
	TotalRecords  int64     `json:"total_records"`
	FilledRecords int64     `json:"filled_records"`
	LatestRecord  time.Time `json:"latest_record,omitempty"`
	TotalPnL      float64   `json:"total_pnl"`
}

// RecordFreshness reports counts, the newest record time and the exact
// realized P&L total across all filled records.
func (s *Store) RecordFreshness(ctx context.Context) (Freshness, error) {
	if err := s.ready(); err != nil {
		return Freshness{}, err
	}
	var f Freshness
	if err := s.db.WithContext(ctx).Model(&model.DecisionRecordModel{}).Count(&f.TotalRecords).Error; err != nil {
		return f, err
	}
	if err := s.db.WithContext(ctx).Model(&model.DecisionRecordModel{}).
		Where("filled = 1").Count(&f.FilledRecords).Error; err != nil {
		return f, err
	}
	var latest int64
	row := s.db.WithContext(ctx).Model(&model.DecisionRecordModel{}).
		Select("COALESCE(MAX(created_at), 0)").Row()
	if err := row.Scan(&latest); err != nil {
		return f, err
	}
	if latest > 0 {
		f.LatestRecord = time.UnixMilli(latest)
	}
	var pnls []float64
	if err := s.db.WithContext(ctx).Model(&model.DecisionRecordModel{}).
		Where("filled = 1").Pluck("realized_pnl", &pnls).Error; err != nil {
		return f, err
	}
	total := decimal.Zero
	for _, v := range pnls {
		total = total.Add(decimal.NewFromFloat(v))
	}
	f.TotalPnL, _ = total.Float64()
	return f, nil
}

func outcomeColumns(out record.Outcome) map[string]interface{} {
	return map[string]interface{}{
		"filled":       1,
		"return_1h":    out.Return1h,
		"return_4h":    out.Return4h,
		"return_24h":   out.Return24h,
		"exit_price":   out.ExitPrice,
		"fees":         out.Fees,
		"slippage":     out.Slippage,
		"exit_reason":  string(out.ExitReason),
		"realized_pnl": out.RealizedPnL,
		"closed_at":    out.ClosedAt.UnixMilli(),
	}
}

func modelOutcome(m model.DecisionRecordModel) record.Outcome {
	return record.Outcome{
		Return1h:    m.Return1h,
		Return4h:    m.Return4h,
		Return24h:   m.Return24h,
		ExitPrice:   m.ExitPrice,
		Fees:        m.Fees,
		Slippage:    m.Slippage,
		ExitReason:  record.ExitReason(m.ExitReason),
		RealizedPnL: m.RealizedPnL,
		ClosedAt:    time.UnixMilli(m.ClosedAtUnix),
	}
}

func recordToModel(rec record.DecisionRecord) model.DecisionRecordModel {
	featuresJSON, _ := json.Marshal(rec.Features)
	paramsJSON, _ := json.Marshal(rec.Params)
	return model.DecisionRecordModel{
		CreatedAtUnix: rec.CreatedAt.UnixMilli(),
		Ticker:        rec.Ticker,
		Regime:        rec.Regime,
		Features:      datatypes.JSON(featuresJSON),
		Signal:        rec.Signal,
		Params:        datatypes.JSON(paramsJSON),
		PredictedProb: rec.PredictedProb,
		Quantity:      rec.Quantity,
		EntryPrice:    rec.EntryPrice,
		StopPrice:     rec.StopPrice,
		TakeProfit:    rec.TakeProfit,
		RuleVersion:   rec.RuleVersion,
		SignalVersion: rec.SignalVersion,
	}
}

func modelToRecord(m model.DecisionRecordModel) record.DecisionRecord {
	rec := record.DecisionRecord{
		ID:            m.ID,
		CreatedAt:     time.UnixMilli(m.CreatedAtUnix),
		Ticker:        m.Ticker,
		Regime:        m.Regime,
		Signal:        m.Signal,
		PredictedProb: m.PredictedProb,
		Quantity:      m.Quantity,
		EntryPrice:    m.EntryPrice,
		StopPrice:     m.StopPrice,
		TakeProfit:    m.TakeProfit,
		RuleVersion:   m.RuleVersion,
		SignalVersion: m.SignalVersion,
	}
	if len(m.Features) > 0 {
		_ = json.Unmarshal(m.Features, &rec.Features)
	}
	if len(m.Params) > 0 {
		_ = json.Unmarshal(m.Params, &rec.Params)
	}
	if m.Filled != 0 {
		out := modelOutcome(m)
		rec.Outcome = &out
	}
	return rec
}
