package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vaultline/custodian-backend/internal/balancesync"
	"github.com/vaultline/custodian-backend/internal/pkg/events"
	"github.com/vaultline/custodian-backend/internal/pkg/model"
	"github.com/vaultline/custodian-backend/internal/store"
)

// Envelope carries the fields every custodian delivery must expose before
// dispatch. Field names differ per custodian; ParseEnvelope normalizes them.
type Envelope struct {
	EventType string
	EventId   string
}

// ParseEnvelope extracts event type and id from a raw delivery body.
func ParseEnvelope(custodianName string, payload []byte) (Envelope, error) {
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return Envelope{}, fmt.Errorf("cannot parse webhook payload: %w", err)
	}
	envelope := Envelope{
		EventType: stringField(body, "event_type", "event"),
		EventId:   stringField(body, "event_id", "id"),
	}
	if envelope.EventType == "" {
		return Envelope{}, fmt.Errorf("webhook payload missing event type")
	}
	if envelope.EventId == "" {
		return Envelope{}, fmt.Errorf("webhook payload missing event id")
	}
	return envelope, nil
}

// Processor dispatches verified webhook deliveries to domain handlers and
// drives the received -> processed | ignored | failed lifecycle.
type Processor struct {
	repo         store.Repository
	synchronizer *balancesync.Synchronizer
	publisher    events.Publisher
	now          func() time.Time
}

func NewProcessor(repo store.Repository, synchronizer *balancesync.Synchronizer, publisher events.Publisher) *Processor {
	return &Processor{
		repo:         repo,
		synchronizer: synchronizer,
		publisher:    publisher,
		now:          time.Now,
	}
}

// Process handles a stored delivery. The webhook row is updated in place;
// a returned error means the delivery should be retried by the sender.
func (p *Processor) Process(ctx context.Context, webhook *model.CustodianWebhook) error {
	var body map[string]any
	if err := json.Unmarshal(webhook.Payload, &body); err != nil {
		return p.markFailed(ctx, webhook, fmt.Errorf("cannot parse webhook payload: %w", err))
	}

	var err error
	switch webhook.CustodianName + ":" + webhook.EventType {
	case "paysera:payment.completed", "santander:transfer.completed", "mock:transaction.completed":
		err = p.handlePaymentCompleted(ctx, webhook, body)
	case "paysera:payment.failed", "santander:transfer.rejected", "mock:transaction.failed":
		err = p.handlePaymentFailed(ctx, webhook, body)
	case "paysera:account.balance_changed", "santander:account.updated", "mock:balance.updated":
		err = p.handleBalanceChanged(ctx, webhook, body)
	case "paysera:account.status_changed":
		err = p.handleAccountStatusChanged(ctx, webhook, body)
	default:
		return p.markIgnored(ctx, webhook, fmt.Sprintf("unhandled event type %s", webhook.EventType))
	}
	if err != nil {
		return p.markFailed(ctx, webhook, err)
	}
	return p.markProcessed(ctx, webhook)
}

// handlePaymentCompleted settles the matching transfer record. Re-delivery
// of an already-settled transfer is a no-op.
func (p *Processor) handlePaymentCompleted(ctx context.Context, webhook *model.CustodianWebhook, body map[string]any) error {
	transactionId := transactionRef(body)
	if transactionId == "" {
		return fmt.Errorf("completion event carries no transaction reference")
	}
	webhook.TransactionId = &transactionId

	transfer, err := p.repo.CustodianTransfers().FindById(ctx, transactionId)
	if err != nil && err != store.ErrNotFound {
		return err
	}
	if transfer != nil {
		if transfer.Status == model.TransferStatusCompleted {
			return nil
		}
		transfer.Status = model.TransferStatusCompleted
		completedAt := p.now()
		transfer.CompletedAt = &completedAt
		if err := p.repo.CustodianTransfers().Save(ctx, transfer); err != nil {
			return err
		}
	}

	p.publisher.Publish(ctx, events.TransactionStatusUpdated{
		Custodian:     webhook.CustodianName,
		TransactionId: transactionId,
		Status:        model.TransferStatusCompleted,
	})
	return nil
}

func (p *Processor) handlePaymentFailed(ctx context.Context, webhook *model.CustodianWebhook, body map[string]any) error {
	transactionId := transactionRef(body)
	if transactionId == "" {
		return fmt.Errorf("failure event carries no transaction reference")
	}
	webhook.TransactionId = &transactionId
	reason := stringField(body, "reason", "error", "failure_reason")
	if reason == "" {
		reason = "unknown failure"
	}

	transfer, err := p.repo.CustodianTransfers().FindById(ctx, transactionId)
	if err != nil && err != store.ErrNotFound {
		return err
	}
	if transfer != nil && transfer.Status != model.TransferStatusFailed {
		transfer.Status = model.TransferStatusFailed
		transfer.FailureReason = reason
		if err := p.repo.CustodianTransfers().Save(ctx, transfer); err != nil {
			return err
		}
	}

	p.publisher.Publish(ctx, events.TransactionStatusUpdated{
		Custodian:     webhook.CustodianName,
		TransactionId: transactionId,
		Status:        model.TransferStatusFailed,
		Metadata:      map[string]any{"reason": reason},
	})
	return nil
}

// handleBalanceChanged records custodian-reported balances on the link row
// and announces each change. The ledger itself is only corrected by the
// synchronizer, which reads from the custodian directly.
func (p *Processor) handleBalanceChanged(ctx context.Context, webhook *model.CustodianWebhook, body map[string]any) error {
	account, err := p.resolveAccount(ctx, webhook, body)
	if err != nil {
		return err
	}

	balances, err := parseBalances(webhook.CustodianName, body)
	if err != nil {
		return err
	}
	if len(balances) == 0 {
		return fmt.Errorf("balance event carries no balances")
	}

	previous := map[string]int64{}
	if raw, ok := account.Metadata["last_known_balances"].(map[string]any); ok {
		for assetCode, amount := range raw {
			if value, ok := amount.(float64); ok {
				previous[assetCode] = int64(value)
			}
		}
	}

	if account.Metadata == nil {
		account.Metadata = model.JSONMap{}
	}
	stored := map[string]any{}
	assetCodes := make([]string, 0, len(balances))
	for assetCode, amount := range balances {
		stored[assetCode] = amount
		assetCodes = append(assetCodes, assetCode)
	}
	sort.Strings(assetCodes)
	account.Metadata["last_known_balances"] = stored
	account.LastKnownBalance = balances[assetCodes[0]]
	if err := p.repo.CustodianAccounts().Save(ctx, account); err != nil {
		return err
	}

	for _, assetCode := range assetCodes {
		if previous[assetCode] == balances[assetCode] {
			continue
		}
		p.publisher.Publish(ctx, events.AccountBalanceUpdated{
			AccountUuid:     account.AccountUuid,
			CustodianName:   account.CustodianName,
			AssetCode:       assetCode,
			PreviousBalance: previous[assetCode],
			NewBalance:      balances[assetCode],
			Source:          "webhook",
			Timestamp:       p.now(),
		})
	}
	return nil
}

func (p *Processor) handleAccountStatusChanged(ctx context.Context, webhook *model.CustodianWebhook, body map[string]any) error {
	account, err := p.resolveAccount(ctx, webhook, body)
	if err != nil {
		return err
	}
	return p.synchronizer.SyncAccountStatus(ctx, account)
}

func (p *Processor) resolveAccount(ctx context.Context, webhook *model.CustodianWebhook, body map[string]any) (*model.CustodianAccount, error) {
	reference := stringField(body, "account_id", "account_number", "account")
	if reference == "" {
		return nil, fmt.Errorf("event carries no account reference")
	}
	account, err := p.repo.CustodianAccounts().FindByCustodianRef(ctx, webhook.CustodianName, reference)
	if err != nil {
		return nil, fmt.Errorf("unknown custodian account %s at %s: %w", reference, webhook.CustodianName, err)
	}
	webhook.CustodianAccountUuid = &account.Uuid
	return account, nil
}

func (p *Processor) markProcessed(ctx context.Context, webhook *model.CustodianWebhook) error {
	processedAt := p.now()
	webhook.Status = model.WebhookStatusProcessed
	webhook.ProcessedAt = &processedAt
	return p.repo.CustodianWebhooks().Save(ctx, webhook)
}

func (p *Processor) markIgnored(ctx context.Context, webhook *model.CustodianWebhook, reason string) error {
	log.Info().Msg(fmt.Sprintf("Ignoring %s webhook %s: %s", webhook.CustodianName, webhook.EventId, reason))
	processedAt := p.now()
	webhook.Status = model.WebhookStatusIgnored
	webhook.IgnoredReason = reason
	webhook.ProcessedAt = &processedAt
	return p.repo.CustodianWebhooks().Save(ctx, webhook)
}

func (p *Processor) markFailed(ctx context.Context, webhook *model.CustodianWebhook, cause error) error {
	log.Error().Err(cause).Msg(fmt.Sprintf("Processing %s webhook %s failed", webhook.CustodianName, webhook.EventId))
	webhook.Status = model.WebhookStatusFailed
	webhook.ProcessingError = cause.Error()
	if err := p.repo.CustodianWebhooks().Save(ctx, webhook); err != nil {
		log.Error().Err(err).Msg("Cannot record webhook failure")
	}
	return cause
}

// parseBalances normalizes custodian balance payloads to minor units.
//
// Paysera reports itemized entries with integer minor-unit amounts.
// Santander reports decimal major-unit amounts keyed by currency.
// Mock follows the paysera shape.
func parseBalances(custodianName string, body map[string]any) (map[string]int64, error) {
	balances := map[string]int64{}
	switch custodianName {
	case "santander":
		raw, ok := body["balances"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("santander balance event missing balances map")
		}
		for currency, amount := range raw {
			major, err := decimalAmount(amount)
			if err != nil {
				return nil, fmt.Errorf("santander balance for %s: %w", currency, err)
			}
			balances[currency] = int64(math.Round(major * 100))
		}
	default:
		raw, ok := body["balances"].([]any)
		if !ok {
			// Single-balance shape: {"currency": "EUR", "new_balance": 15000}.
			currency := stringField(body, "currency", "asset_code")
			if currency == "" {
				return nil, fmt.Errorf("balance event missing balances list")
			}
			amount, err := integerAmount(body["new_balance"])
			if err != nil {
				return nil, err
			}
			balances[currency] = amount
			return balances, nil
		}
		for _, entry := range raw {
			item, ok := entry.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("malformed balance entry")
			}
			currency := stringField(item, "currency", "asset_code")
			if currency == "" {
				return nil, fmt.Errorf("balance entry missing currency")
			}
			amount, err := integerAmount(item["amount"])
			if err != nil {
				return nil, fmt.Errorf("balance for %s: %w", currency, err)
			}
			balances[currency] = amount
		}
	}
	return balances, nil
}

func decimalAmount(value any) (float64, error) {
	switch typed := value.(type) {
	case float64:
		return typed, nil
	case string:
		parsed, err := strconv.ParseFloat(typed, 64)
		if err != nil {
			return 0, fmt.Errorf("unparseable amount %q", typed)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unsupported amount type %T", value)
	}
}

func integerAmount(value any) (int64, error) {
	switch typed := value.(type) {
	case float64:
		return int64(typed), nil
	case string:
		parsed, err := strconv.ParseInt(typed, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("unparseable amount %q", typed)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unsupported amount type %T", value)
	}
}

func transactionRef(body map[string]any) string {
	return stringField(body, "payment_id", "transfer_id", "transaction_id")
}

func stringField(body map[string]any, names ...string) string {
	for _, name := range names {
		if value, ok := body[name].(string); ok && value != "" {
			return value
		}
	}
	return ""
}
