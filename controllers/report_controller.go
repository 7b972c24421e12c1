package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"signal_report_backend/models"
	"signal_report_backend/scheduler"
	"signal_report_backend/services/dispatch"
)

// ReportPreviewer builds report content without sending it
type ReportPreviewer interface {
	Preview(ctx context.Context, kind models.RangeKind, ref *time.Time) (models.ReportSummary, string, error)
}

// JobRunner runs and lists scheduled jobs
type JobRunner interface {
	TriggerNow(ctx context.Context, jobID string) error
	Jobs() []scheduler.JobStatus
}

// ReportController serves report queries and manual dispatch
type ReportController struct {
	reports ReportPreviewer
	jobs    JobRunner
	loc     *time.Location
}

// NewReportController creates a report controller. Query dates are read in loc.
func NewReportController(reports ReportPreviewer, jobs JobRunner, loc *time.Location) *ReportController {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportController{reports: reports, jobs: jobs, loc: loc}
}

// DispatchRequest selects the job to run now
type DispatchRequest struct {
	JobID string `json:"job_id" binding:"required"`
}

// Daily returns the summary for one day
// GET /api/v1/reports/daily?date=YYYY-MM-DD
func (ctrl *ReportController) Daily(c *gin.Context) {
	ref, ok := ctrl.parseDate(c)
	if !ok {
		return
	}

	summary, message, err := ctrl.reports.Preview(c.Request.Context(), models.RangeDaily, ref)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"date":         summary.RangeStart.Format(models.DateLayout),
		"total_trades": summary.TotalTrades,
		"itm_count":    summary.ITMCount,
		"otm_count":    summary.OTMCount,
		"win_rate":     summary.WinRatePercent(),
		"message":      message,
	})
}

// Weekly returns the rendered message for the Monday to Friday week containing date
// GET /api/v1/reports/weekly?date=YYYY-MM-DD
func (ctrl *ReportController) Weekly(c *gin.Context) {
	ref, ok := ctrl.parseDate(c)
	if !ok {
		return
	}

	summary, message, err := ctrl.reports.Preview(c.Request.Context(), models.RangeWeekly, ref)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"start":   summary.RangeStart.Format(models.DateLayout),
		"end":     summary.RangeEnd.Format(models.DateLayout),
		"message": message,
	})
}

// Dispatch runs a job now and returns the per-channel outcomes
// POST /api/v1/reports/dispatch
func (ctrl *ReportController) Dispatch(c *gin.Context) {
	var req DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id is required"})
		return
	}

	ctx, collector := dispatch.WithOutcomeCollector(c.Request.Context())
	err := ctrl.jobs.TriggerNow(ctx, req.JobID)
	switch {
	case err == nil:
	case errors.Is(err, scheduler.ErrUnknownJob):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, scheduler.ErrJobBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, scheduler.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	default:
		c.JSON(http.StatusBadGateway, gin.H{"job_id": req.JobID, "error": err.Error()})
		return
	}

	outcomes := collector.Outcomes()
	c.JSON(http.StatusOK, gin.H{
		"job_id":   req.JobID,
		"status":   "completed",
		"outcomes": outcomes,
		"count":    len(outcomes),
	})
}

// ListJobs returns every scheduled job with its state
// GET /api/v1/jobs
func (ctrl *ReportController) ListJobs(c *gin.Context) {
	jobs := ctrl.jobs.Jobs()
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// parseDate reads the optional date query parameter; nil means today
func (ctrl *ReportController) parseDate(c *gin.Context) (*time.Time, bool) {
	raw := c.Query("date")
	if raw == "" {
		return nil, true
	}
	date, err := time.ParseInLocation(models.DateLayout, raw, ctrl.loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be formatted YYYY-MM-DD"})
		return nil, false
	}
	return &date, true
}
