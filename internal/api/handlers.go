package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"recal/internal/calibration"
	"recal/internal/config"
	"recal/internal/learner"
	"recal/internal/record"
	"recal/internal/store"
	"recal/internal/store/sqlite"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
)

type handlers struct {
	store *sqlite.Store
	runs  *RunService
	cfg   *config.Config
}

func (h *handlers) register(group *gin.RouterGroup) {
	group.GET("/status", h.handleStatus)

	group.POST("/records", h.handleAppendRecord)
	group.POST("/records/:id/outcome", h.handleFillOutcome)
	group.POST("/records/:id/correction", h.handleCorrectOutcome)

	group.GET("/versions", h.handleVersionHistory)
	group.GET("/versions/active", h.handleActiveVersion)
	group.POST("/versions/rollback", h.handleRollback)

	group.POST("/runs", h.handleTriggerRun)
	group.GET("/runs", h.handleListRuns)
	group.GET("/runs/latest", h.handleLatestRun)
	group.GET("/runs/:id", h.handleRun)
	group.GET("/runs/:id/report", h.handleRunReport)

	group.GET("/thresholds", h.handleThresholds)
	group.PUT("/thresholds", h.handleUpdateThresholds)
	group.GET("/thresholds/audit", h.handleThresholdAudit)

	group.GET("/calibration", h.handleCalibration)
	group.GET("/calibration/history", h.handleCalibrationHistory)
	group.POST("/calibration/refit", h.handleCalibrationRefit)

	group.GET("/config", h.handleConfigDump)
}

func (h *handlers) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()
	status := gin.H{}

	if active, err := h.store.Active(ctx); err == nil {
		status["active_version"] = active
	} else if errors.Is(err, store.ErrNoActiveVersion) {
		status["active_version"] = nil
	} else {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	fresh, err := h.store.RecordFreshness(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	status["records"] = fresh

	running, last := h.runs.Status()
	status["run_in_progress"] = running
	if last != nil {
		status["last_run"] = gin.H{
			"id":             last.ID,
			"recommendation": last.Recommendation,
			"finished_at":    last.FinishedAt,
		}
	}

	if cal, err := h.store.CurrentCalibration(ctx); err == nil {
		status["calibration"] = gin.H{
			"method":     cal.Method,
			"samples":    cal.Samples,
			"trained_at": cal.TrainedAt,
			"stale":      cal.Stale(h.cfg.CalibrationConfig().MaxAge, time.Now()),
		}
	} else if !errors.Is(err, store.ErrNoCalibration) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *handlers) handleAppendRecord(c *gin.Context) {
	var rec record.DecisionRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	id, err := h.store.AppendRecord(c.Request.Context(), rec)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *handlers) handleFillOutcome(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}
	out, ok := bindOutcome(c)
	if !ok {
		return
	}
	if err := h.store.FillOutcome(c.Request.Context(), id, out); err != nil {
		if errors.Is(err, store.ErrOutcomeAlreadyFilled) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "filled": true})
}

func (h *handlers) handleCorrectOutcome(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}
	var req struct {
		Outcome record.Outcome `json:"outcome"`
		Reason  string         `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "correction requires a reason"})
		return
	}
	if _, err := record.ParseExitReason(string(req.Outcome.ExitReason)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.CorrectOutcome(c.Request.Context(), id, req.Outcome, req.Reason); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "corrected": true})
}

func bindOutcome(c *gin.Context) (record.Outcome, bool) {
	var out record.Outcome
	if err := c.ShouldBindJSON(&out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return out, false
	}
	if _, err := record.ParseExitReason(string(out.ExitReason)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return out, false
	}
	if out.ClosedAt.IsZero() {
		out.ClosedAt = time.Now()
	}
	return out, true
}

func (h *handlers) handleVersionHistory(c *gin.Context) {
	history, err := h.store.History(c.Request.Context())
	if err != nil {
		if errors.Is(err, store.ErrNoActiveVersion) {
			c.JSON(http.StatusOK, gin.H{"versions": []any{}})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": history})
}

func (h *handlers) handleActiveVersion(c *gin.Context) {
	active, err := h.store.Active(c.Request.Context())
	if err != nil {
		if errors.Is(err, store.ErrNoActiveVersion) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, active)
}

func (h *handlers) handleRollback(c *gin.Context) {
	var req struct {
		VersionID string `json:"version_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.VersionID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rollback requires version_id"})
		return
	}
	version, err := h.store.Rollback(c.Request.Context(), req.VersionID)
	if err != nil {
		if errors.Is(err, store.ErrVersionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active_version": version})
}

func (h *handlers) handleTriggerRun(c *gin.Context) {
	if err := h.runs.Trigger(); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (h *handlers) handleListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := h.store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *handlers) handleLatestRun(c *gin.Context) {
	run, err := h.store.LatestRun(c.Request.Context())
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *handlers) handleRun(c *gin.Context) {
	run, err := h.store.Run(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *handlers) handleThresholds(c *gin.Context) {
	t, err := h.store.CurrentThresholds(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, t)
}

// handleUpdateThresholds applies a partial threshold update: fields
// absent from the request keep their current value. The envelope is
// schema-validated first so typos fail loudly instead of silently
// keeping the old value.
func (h *handlers) handleUpdateThresholds(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !gjson.ValidBytes(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body is not valid JSON"})
		return
	}
	if err := validateThresholdUpdate(body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	current, err := h.store.CurrentThresholds(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	updated := mergeThresholds(current, gjson.GetBytes(body, "thresholds"))
	if err := updated.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updatedBy := gjson.GetBytes(body, "updated_by").String()
	reason := gjson.GetBytes(body, "reason").String()
	if err := h.store.UpdateThresholds(c.Request.Context(), updated, updatedBy, reason); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *handlers) handleThresholdAudit(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	audit, err := h.store.ThresholdAudit(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"revisions": audit})
}

func (h *handlers) handleCalibration(c *gin.Context) {
	cal, err := h.store.CurrentCalibration(c.Request.Context())
	if err != nil {
		if errors.Is(err, store.ErrNoCalibration) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"method":     cal.Method,
		"samples":    cal.Samples,
		"trained_at": cal.TrainedAt,
		"quality":    cal.Quality,
		"stale":      cal.Stale(h.cfg.CalibrationConfig().MaxAge, time.Now()),
	})
}

func (h *handlers) handleCalibrationHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	list, err := h.store.ListCalibrations(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"artifacts": list})
}

// handleCalibrationRefit fits a fresh model from the recent record
// window and persists the artifact, without running the learner.
func (h *handlers) handleCalibrationRefit(c *gin.Context) {
	ctx := c.Request.Context()
	calCfg := calibration.DefaultConfig()
	window := learner.DefaultConfig().Window
	if h.cfg != nil {
		calCfg = h.cfg.CalibrationConfig()
		window = h.cfg.LearnerConfig().Window
	}
	now := time.Now()
	records, err := h.store.Window(ctx, now.Add(-window), now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	model, err := calibration.Fit(learner.CalibrationPairs(records), calCfg)
	if err != nil {
		var fitErr *calibration.FitError
		if errors.As(err, &fitErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.SaveCalibration(ctx, *model); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"method":     model.Method,
		"samples":    model.Samples,
		"trained_at": model.TrainedAt,
		"quality":    model.Quality,
	})
}

func (h *handlers) handleConfigDump(c *gin.Context) {
	if h.cfg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no configuration loaded"})
		return
	}
	out, err := h.cfg.Dump()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/x-yaml", out)
}
