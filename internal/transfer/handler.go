package transfer

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vaultline/custodian-backend/internal/custodian"
	"github.com/vaultline/custodian-backend/internal/pkg/reject"
)

type transferHandler struct {
	service *Service
}

func RegisterRoutes(rg *gin.RouterGroup, service *Service) {
	handler := transferHandler{service: service}

	routes := rg.Group("/transfers")
	routes.POST("", handler.createTransfer)
	routes.GET("/:id", handler.getTransferStatus)
}

type createTransferRequest struct {
	FromAccountUuid uuid.UUID `json:"fromAccountUuid" binding:"required"`
	ToAccountUuid   uuid.UUID `json:"toAccountUuid" binding:"required"`
	Amount          int64     `json:"amount" binding:"required,gt=0"`
	AssetCode       string    `json:"assetCode" binding:"required"`
	Reference       string    `json:"reference"`
	Description     string    `json:"description"`
}

func (h transferHandler) createTransfer(c *gin.Context) {
	var request createTransferRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		problem := reject.BodyParseProblem()
		c.JSON(problem.Status, problem)
		return
	}

	receipt, err := h.service.Transfer(c.Request.Context(), Request{
		FromAccountUuid: request.FromAccountUuid,
		ToAccountUuid:   request.ToAccountUuid,
		Amount:          request.Amount,
		AssetCode:       request.AssetCode,
		Reference:       request.Reference,
		Description:     request.Description,
	})
	if err != nil {
		problem := transferProblem(err)
		c.JSON(problem.Status, problem)
		return
	}

	c.JSON(http.StatusCreated, receipt)
}

func (h transferHandler) getTransferStatus(c *gin.Context) {
	receipt, err := h.service.TransferStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrTransferNotFound) {
			problem := reject.NotFoundProblem()
			c.JSON(problem.Status, problem)
			return
		}
		problem := reject.UnexpectedProblem(err)
		c.JSON(problem.Status, problem)
		return
	}
	if receipt == nil {
		problem := reject.NotFoundProblem()
		c.JSON(problem.Status, problem)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func transferProblem(err error) reject.Problem {
	switch {
	case errors.Is(err, custodian.ErrCrossCustodianXfer):
		return reject.NewProblem().
			WithTitle("Cross-custodian transfers not supported").
			WithStatus(http.StatusUnprocessableEntity).
			WithCode("error.transfer.cross-custodian").
			WithDetail(err.Error()).
			Build()
	case errors.Is(err, ErrNoCustodianAccount), errors.Is(err, custodian.ErrInvalidAccount):
		return reject.NewProblem().
			WithTitle("Invalid transfer account").
			WithStatus(http.StatusUnprocessableEntity).
			WithCode("error.transfer.invalid-account").
			WithDetail(err.Error()).
			Build()
	case errors.Is(err, custodian.ErrCustodianNotFound):
		return reject.NotFoundProblem()
	default:
		return reject.UnexpectedProblem(err)
	}
}
