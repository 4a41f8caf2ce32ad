package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"recal/internal/learner"
	"recal/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// handleRunReport renders one run as a self-contained HTML page:
// reliability curve, gate verdicts and per-feature drift.
func (h *handlers) handleRunReport(c *gin.Context) {
	run, err := h.store.Run(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("learning run %s", run.ID)
	if chart := reliabilityChart(run); chart != nil {
		page.AddCharts(chart)
	}
	if chart := gatesChart(run); chart != nil {
		page.AddCharts(chart)
	}
	if chart := driftChart(run); chart != nil {
		page.AddCharts(chart)
	}
	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func reliabilityChart(run learner.RunRecord) *charts.Line {
	if run.Test == nil || len(run.Test.Candidate.ReliabilityBins) == 0 {
		return nil
	}
	bins := run.Test.Candidate.ReliabilityBins
	xAxis := make([]string, len(bins))
	predicted := make([]opts.LineData, len(bins))
	observed := make([]opts.LineData, len(bins))
	for i, b := range bins {
		xAxis[i] = fmt.Sprintf("%.1f-%.1f", b.Lower, b.Upper)
		predicted[i] = opts.LineData{Value: b.MeanPredicted}
		observed[i] = opts.LineData{Value: b.ObservedRate}
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Reliability (test slice)",
			Subtitle: fmt.Sprintf("Brier %.4f, slope %.2f", run.Test.Candidate.Brier, run.Test.Candidate.CalibrationSlope),
		}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("Mean predicted", predicted)
	line.AddSeries("Observed rate", observed)
	return line
}

func gatesChart(run learner.RunRecord) *charts.Bar {
	if len(run.GateResults) == 0 {
		return nil
	}
	xAxis := make([]string, len(run.GateResults))
	values := make([]opts.BarData, len(run.GateResults))
	bounds := make([]opts.BarData, len(run.GateResults))
	for i, g := range run.GateResults {
		label := g.Name
		if !g.Passed {
			label += " ✗"
		}
		xAxis[i] = label
		values[i] = opts.BarData{Value: g.Value}
		bounds[i] = opts.BarData{Value: g.Threshold}
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Gate verdicts",
			Subtitle: fmt.Sprintf("recommendation: %s", run.Recommendation),
		}),
	)
	bar.SetXAxis(xAxis)
	bar.AddSeries("Measured", values)
	bar.AddSeries("Threshold", bounds)
	return bar
}

func driftChart(run learner.RunRecord) *charts.Bar {
	if run.Test == nil || len(run.Test.Stability.PerFeature) == 0 {
		return nil
	}
	features := make([]string, 0, len(run.Test.Stability.PerFeature))
	for name := range run.Test.Stability.PerFeature {
		features = append(features, name)
	}
	sort.Strings(features)
	values := make([]opts.BarData, len(features))
	for i, name := range features {
		values[i] = opts.BarData{Value: run.Test.Stability.PerFeature[name]}
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Feature PSI (train vs test)",
			Subtitle: fmt.Sprintf("aggregate %.4f", run.Test.Stability.Aggregate),
		}),
	)
	bar.SetXAxis(features)
	bar.AddSeries("PSI", values)
	return bar
}
