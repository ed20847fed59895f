package reconciliation

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vaultline/custodian-backend/internal/pkg/reject"
)

type reconciliationHandler struct {
	service *Service
}

func RegisterRoutes(rg *gin.RouterGroup, service *Service) {
	handler := reconciliationHandler{service: service}

	routes := rg.Group("/reconciliation")
	routes.POST("/run", handler.runReconciliation)
	routes.GET("/latest", handler.getLatestReport)
}

func (h reconciliationHandler) runReconciliation(c *gin.Context) {
	report, err := h.service.Run(c.Request.Context())
	if err != nil {
		problem := reject.UnexpectedProblem(err)
		c.JSON(problem.Status, problem)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h reconciliationHandler) getLatestReport(c *gin.Context) {
	report, err := h.service.LatestReport()
	if err != nil {
		problem := reject.UnexpectedProblem(err)
		c.JSON(problem.Status, problem)
		return
	}
	if report == nil {
		problem := reject.NotFoundProblem()
		c.JSON(problem.Status, problem)
		return
	}
	c.JSON(http.StatusOK, report)
}
