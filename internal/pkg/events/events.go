package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Publishable is implemented by every domain event; the topic name decides
// where the pubsub publisher routes it.
type Publishable interface {
	GetEventTopicName() string
}

// Publisher is injected into every component that emits domain events.
// Implementations must never block the financial operation that triggered
// the event.
type Publisher interface {
	Publish(ctx context.Context, message Publishable)
}

type AccountBalanceUpdated struct {
	AccountUuid     uuid.UUID `json:"accountUuid"`
	CustodianName   string    `json:"custodianName"`
	AssetCode       string    `json:"assetCode"`
	PreviousBalance int64     `json:"previousBalance"`
	NewBalance      int64     `json:"newBalance"`
	Source          string    `json:"source"`
	Timestamp       time.Time `json:"timestamp"`
}

func (AccountBalanceUpdated) GetEventTopicName() string {
	return "custodian.account.balance-updated"
}

type CustodianHealthChanged struct {
	Custodian string    `json:"custodian"`
	OldStatus string    `json:"oldStatus"`
	NewStatus string    `json:"newStatus"`
	Timestamp time.Time `json:"timestamp"`
}

func (CustodianHealthChanged) GetEventTopicName() string {
	return "custodian.health.changed"
}

type TransactionStatusUpdated struct {
	Custodian     string         `json:"custodian"`
	TransactionId string         `json:"transactionId"`
	Status        string         `json:"status"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func (TransactionStatusUpdated) GetEventTopicName() string {
	return "custodian.transaction.status-updated"
}

type ReconciliationCompleted struct {
	Date               string    `json:"date"`
	AccountsChecked    int       `json:"accountsChecked"`
	DiscrepanciesFound int       `json:"discrepanciesFound"`
	Status             string    `json:"status"`
	Timestamp          time.Time `json:"timestamp"`
}

func (ReconciliationCompleted) GetEventTopicName() string {
	return "custodian.reconciliation.completed"
}

type ReconciliationDiscrepancyFound struct {
	Type            string    `json:"type"`
	AccountUuid     uuid.UUID `json:"accountUuid"`
	AssetCode       string    `json:"assetCode,omitempty"`
	InternalBalance int64     `json:"internalBalance"`
	ExternalBalance int64     `json:"externalBalance"`
	Difference      int64     `json:"difference"`
	DetectedAt      time.Time `json:"detectedAt"`
}

func (ReconciliationDiscrepancyFound) GetEventTopicName() string {
	return "custodian.reconciliation.discrepancy-found"
}

// LogPublisher writes events to the log instead of a broker. Used when no
// pubsub project is configured, and as a stand-in in tests.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, message Publishable) {
	log.Info().Msg(fmt.Sprintf("Event %s: %+v", message.GetEventTopicName(), message))
}
