package accountlink

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vaultline/custodian-backend/internal/custodian"
	"github.com/vaultline/custodian-backend/internal/pkg/reject"
)

type accountLinkHandler struct {
	service *Service
}

func RegisterRoutes(rg *gin.RouterGroup, service *Service) {
	handler := accountLinkHandler{service: service}

	routes := rg.Group("/accounts/:accountUuid/custodian-accounts")
	routes.GET("", handler.listLinks)
	routes.POST("", handler.createLink)

	links := rg.Group("/custodian-accounts")
	links.DELETE("/:uuid", handler.deleteLink)
	links.POST("/:uuid/primary", handler.promoteLink)
}

type createLinkRequest struct {
	CustodianName      string `json:"custodianName" binding:"required"`
	CustodianAccountId string `json:"custodianAccountId" binding:"required"`
	IsPrimary          bool   `json:"isPrimary"`
}

func (h accountLinkHandler) listLinks(c *gin.Context) {
	accountUuid, err := uuid.Parse(c.Param("accountUuid"))
	if err != nil {
		problem := reject.RequestParamsProblem()
		c.JSON(problem.Status, problem)
		return
	}

	links, err := h.service.ListForAccount(c.Request.Context(), accountUuid)
	if err != nil {
		problem := reject.UnexpectedProblem(err)
		c.JSON(problem.Status, problem)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": links})
}

func (h accountLinkHandler) createLink(c *gin.Context) {
	accountUuid, err := uuid.Parse(c.Param("accountUuid"))
	if err != nil {
		problem := reject.RequestParamsProblem()
		c.JSON(problem.Status, problem)
		return
	}

	var request createLinkRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		problem := reject.BodyParseProblem()
		c.JSON(problem.Status, problem)
		return
	}

	link, err := h.service.Link(c.Request.Context(), accountUuid, request.CustodianName, request.CustodianAccountId, request.IsPrimary)
	if err != nil {
		problem := linkProblem(err)
		c.JSON(problem.Status, problem)
		return
	}
	c.JSON(http.StatusCreated, link)
}

func (h accountLinkHandler) deleteLink(c *gin.Context) {
	linkUuid, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		problem := reject.RequestParamsProblem()
		c.JSON(problem.Status, problem)
		return
	}

	if err := h.service.Unlink(c.Request.Context(), linkUuid); err != nil {
		problem := linkProblem(err)
		c.JSON(problem.Status, problem)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h accountLinkHandler) promoteLink(c *gin.Context) {
	linkUuid, err := uuid.Parse(c.Param("uuid"))
	if err != nil {
		problem := reject.RequestParamsProblem()
		c.JSON(problem.Status, problem)
		return
	}

	if err := h.service.SetPrimary(c.Request.Context(), linkUuid); err != nil {
		problem := linkProblem(err)
		c.JSON(problem.Status, problem)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "primary"})
}

func linkProblem(err error) reject.Problem {
	switch {
	case errors.Is(err, ErrLinkNotFound), errors.Is(err, custodian.ErrCustodianNotFound):
		return reject.NotFoundProblem()
	case errors.Is(err, ErrAlreadyLinked):
		return reject.NewProblem().
			WithTitle("Custodian account already linked").
			WithStatus(http.StatusConflict).
			WithCode("error.custodian-account.already-linked").
			Build()
	case errors.Is(err, custodian.ErrInvalidAccount):
		return reject.NewProblem().
			WithTitle("Custodian account validation failed").
			WithStatus(http.StatusUnprocessableEntity).
			WithCode("error.custodian-account.invalid").
			WithDetail(err.Error()).
			Build()
	default:
		return reject.UnexpectedProblem(err)
	}
}
