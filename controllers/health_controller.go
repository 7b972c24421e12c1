package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"signal_report_backend/services/notifier"
)

// Pinger checks a backing store
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthController serves liveness and readiness probes
type HealthController struct {
	db     Pinger
	sinks  *notifier.Registry
	keeper *notifier.Keeper
}

// NewHealthController creates the probe handlers
func NewHealthController(db Pinger, sinks *notifier.Registry, keeper *notifier.Keeper) *HealthController {
	return &HealthController{db: db, sinks: sinks, keeper: keeper}
}

// Health always answers while the process is up
// GET /health
func (ctrl *HealthController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready checks the database and lists channel state
// GET /ready
func (ctrl *HealthController) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := ctrl.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not_ready",
			"message": "Database ping failed",
		})
		return
	}

	channels := gin.H{}
	if ctrl.sinks != nil {
		for _, name := range ctrl.sinks.Names() {
			sink, _ := ctrl.sinks.Get(name)
			state := "ready"
			if g, ok := sink.(*notifier.Guard); ok {
				state = g.State()
			}
			channels[name] = state
		}
	}

	resp := gin.H{
		"status":   "ready",
		"channels": channels,
	}
	if ctrl.keeper != nil {
		resp["keeper"] = ctrl.keeper.Status()
	}
	c.JSON(http.StatusOK, resp)
}
