package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vaultline/custodian-backend/internal/breaker"
	"github.com/vaultline/custodian-backend/internal/custodian"
	"github.com/vaultline/custodian-backend/internal/pkg/reject"
)

type healthHandler struct {
	monitor  *Monitor
	alerting *AlertingService
	breaker  *breaker.Breaker
	registry *custodian.Registry
}

func RegisterRoutes(rg *gin.RouterGroup, monitor *Monitor, alerting *AlertingService, cb *breaker.Breaker, registry *custodian.Registry) {
	handler := healthHandler{
		monitor:  monitor,
		alerting: alerting,
		breaker:  cb,
		registry: registry,
	}

	routes := rg.Group("/custodians")
	routes.GET("", handler.listCustodians)
	routes.GET("/health", handler.getAllHealth)
	routes.GET("/:name/health", handler.getCustodianHealth)
	routes.POST("/:name/circuit/reset", handler.resetCircuits)

	rg.POST("/alerts/health-check", handler.runHealthCheck)
}

func (h healthHandler) listCustodians(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"custodians": h.registry.Names(),
		"available":  h.registry.AvailableNames(c.Request.Context()),
	})
}

func (h healthHandler) getAllHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.CheckAll(c.Request.Context()))
}

func (h healthHandler) getCustodianHealth(c *gin.Context) {
	health, err := h.monitor.CheckCustodian(c.Request.Context(), c.Param("name"))
	if err != nil {
		problem := reject.NotFoundProblem()
		c.JSON(problem.Status, problem)
		return
	}
	c.JSON(http.StatusOK, health)
}

func (h healthHandler) resetCircuits(c *gin.Context) {
	name := c.Param("name")
	if _, err := h.registry.Connector(name); err != nil {
		problem := reject.NotFoundProblem()
		c.JSON(problem.Status, problem)
		return
	}
	for _, operation := range monitoredOperations {
		h.breaker.Reset(c.Request.Context(), ServiceKey(name, operation))
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset", "custodian": name})
}

func (h healthHandler) runHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, h.alerting.PerformHealthCheck(c.Request.Context()))
}
