package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stayops/backend/internal/application/monitoring"
)

// StatusHandler serves the operational status and readiness endpoints
type StatusHandler struct {
	BaseHandler
	status *monitoring.StatusService
	health *monitoring.HealthService
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(status *monitoring.StatusService, health *monitoring.HealthService) *StatusHandler {
	return &StatusHandler{
		status: status,
		health: health,
	}
}

// GetStatus godoc
// @ID           getLedgerStatus
//
//	@Summary		Get ledger system status
//	@Description	Operational snapshot of the ledger service: store router counters, cache hit rates, circuit breaker states, correction queue depth, maintenance job history and the latest validation summary. Sections whose collection fails are omitted and listed under degraded.
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	APIResponse[monitoring.SystemStatus]
//	@Router			/ledger/status [get]
func (h *StatusHandler) GetStatus(c *gin.Context) {
	h.Success(c, h.status.Status(c.Request.Context()))
}

// Healthz godoc
// @ID           healthz
//
//	@Summary		Liveness probe
//	@Description	Returns ok while the process is serving. No dependencies are checked.
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	map[string]string
//	@Router			/healthz [get]
func (h *StatusHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// Ready godoc
// @ID           ready
//
//	@Summary		Readiness probe
//	@Description	Pings the hard dependencies and reports per-component results. Returns 503 while any dependency is failing so the load balancer stops routing.
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	monitoring.HealthReport
//	@Failure		503	{object}	monitoring.HealthReport
//	@Router			/ready [get]
func (h *StatusHandler) Ready(c *gin.Context) {
	report := h.health.Check(c.Request.Context())
	if !report.Healthy {
		c.JSON(http.StatusServiceUnavailable, report)
		return
	}
	c.JSON(http.StatusOK, report)
}

// RegisterRoutes registers the status route under the API group
func (h *StatusHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ledger/status", h.GetStatus)
}

// RegisterProbes registers the root-level liveness and readiness probes
func (h *StatusHandler) RegisterProbes(engine *gin.Engine) {
	engine.GET("/healthz", h.Healthz)
	engine.GET("/ready", h.Ready)
}
