package balancesync

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vaultline/custodian-backend/internal/pkg/reject"
	"github.com/vaultline/custodian-backend/internal/store"
)

type balanceSyncHandler struct {
	synchronizer *Synchronizer
	repo         store.Repository
}

func RegisterRoutes(rg *gin.RouterGroup, synchronizer *Synchronizer, repo store.Repository) {
	handler := balanceSyncHandler{synchronizer: synchronizer, repo: repo}

	rg.POST("/sync", handler.syncAll)
	rg.POST("/custodian-accounts/:uuid/sync", handler.syncAccount)
}

func (h balanceSyncHandler) syncAll(c *gin.Context) {
	summary, err := h.synchronizer.SynchronizeAll(c.Request.Context())
	if err != nil {
		problem := reject.UnexpectedProblem(err)
		c.JSON(problem.Status, problem)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h balanceSyncHandler) syncAccount(c *gin.Context) {
	linkUuid, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		problem := reject.RequestParamsProblem()
		c.JSON(problem.Status, problem)
		return
	}

	account, err := h.repo.CustodianAccounts().FindByUuid(c.Request.Context(), linkUuid)
	if err != nil {
		if err == store.ErrNotFound {
			problem := reject.NotFoundProblem()
			c.JSON(problem.Status, problem)
			return
		}
		problem := reject.UnexpectedProblem(err)
		c.JSON(problem.Status, problem)
		return
	}

	result := h.synchronizer.SynchronizeAccount(c.Request.Context(), account)
	c.JSON(http.StatusOK, result)
}
