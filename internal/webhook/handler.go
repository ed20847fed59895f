package webhook

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vaultline/custodian-backend/internal/pkg/model"
	"github.com/vaultline/custodian-backend/internal/pkg/reject"
	"github.com/vaultline/custodian-backend/internal/pkg/utils"
	"github.com/vaultline/custodian-backend/internal/store"
)

// maxPayloadBytes bounds inbound webhook bodies.
const maxPayloadBytes = 1 << 20

var signatureHeaders = map[string]string{
	"paysera":   "X-Paysera-Signature",
	"santander": "X-Santander-Signature",
	"mock":      "X-Mock-Signature",
}

type webhookHandler struct {
	verifier  *Verifier
	processor *Processor
	repo      store.Repository
}

func RegisterRoutes(rg *gin.RouterGroup, verifier *Verifier, processor *Processor, repo store.Repository) {
	handler := webhookHandler{
		verifier:  verifier,
		processor: processor,
		repo:      repo,
	}

	routes := rg.Group("/webhooks")
	routes.POST("/:custodian", handler.receiveWebhook)
	routes.GET("", handler.listWebhooks)
}

// receiveWebhook verifies, records and processes one delivery. A 202 tells
// the custodian the delivery is settled; 5xx asks for redelivery.
func (h webhookHandler) receiveWebhook(c *gin.Context) {
	custodianName := c.Param("custodian")

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes))
	if err != nil {
		problem := reject.BodyParseProblem()
		c.JSON(problem.Status, problem)
		return
	}

	signature := c.GetHeader(signatureHeaders[custodianName])
	timestamp := c.GetHeader("X-Webhook-Timestamp")
	if err := h.verifier.Verify(custodianName, payload, signature, timestamp); err != nil {
		if errors.Is(err, ErrUnknownCustodian) {
			problem := reject.NotFoundProblem()
			c.JSON(problem.Status, problem)
			return
		}
		log.Warn().Msg("Rejected webhook with invalid signature from " + custodianName)
		c.JSON(http.StatusUnauthorized, reject.NewProblem().
			WithTitle("Webhook signature rejected").
			WithStatus(http.StatusUnauthorized).
			WithCode("error.webhook.invalid-signature").
			Build())
		return
	}

	envelope, err := ParseEnvelope(custodianName, payload)
	if err != nil {
		problem := reject.BodyParseProblem()
		c.JSON(problem.Status, problem)
		return
	}

	// Redelivered events are acknowledged without reprocessing.
	existing, err := h.repo.CustodianWebhooks().FindByEventId(c.Request.Context(), custodianName, envelope.EventId)
	if err != nil && err != store.ErrNotFound {
		problem := reject.UnexpectedProblem(err)
		c.JSON(problem.Status, problem)
		return
	}
	if existing != nil {
		c.JSON(http.StatusAccepted, gin.H{"status": existing.Status, "eventId": existing.EventId, "duplicate": true})
		return
	}

	webhook := &model.CustodianWebhook{
		Uuid:          uuid.New(),
		CustodianName: custodianName,
		EventType:     envelope.EventType,
		EventId:       envelope.EventId,
		Payload:       payload,
		Status:        model.WebhookStatusReceived,
		CreatedAt:     time.Now(),
	}
	if err := h.repo.CustodianWebhooks().Create(c.Request.Context(), webhook); err != nil {
		problem := reject.UnexpectedProblem(err)
		c.JSON(problem.Status, problem)
		return
	}

	if err := h.processor.Process(c.Request.Context(), webhook); err != nil {
		problem := reject.UnexpectedProblem(err)
		c.JSON(problem.Status, problem)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": webhook.Status, "eventId": webhook.EventId})
}

func (h webhookHandler) listWebhooks(c *gin.Context) {
	page, pageErr := utils.NewPageRequest(c)
	if pageErr != nil {
		c.JSON(pageErr.Problem.Status, pageErr.Problem)
		return
	}

	webhooks, count, err := h.repo.CustodianWebhooks().List(c.Request.Context(), page.Size, page.Offset)
	if err != nil {
		problem := reject.UnexpectedProblem(err)
		c.JSON(problem.Status, problem)
		return
	}

	response := utils.NewPageResponse[model.CustodianWebhook]().
		WithItems(webhooks).
		WithItemCount(count)
	if int64(page.Offset+len(webhooks)) < count {
		response.WithNextPageToken(int64(page.Token + 1))
	}

	c.JSON(http.StatusOK, response.Build())
}
