package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	WebhookStatusReceived  = "received"
	WebhookStatusProcessed = "processed"
	WebhookStatusIgnored   = "ignored"
	WebhookStatusFailed    = "failed"
)

// CustodianWebhook is a persisted inbound custodian event. Lifecycle:
// received -> processed | ignored | failed.
type CustodianWebhook struct {
	Id                   uint64     `gorm:"primaryKey" json:"id"`
	Uuid                 uuid.UUID  `gorm:"type:uuid" json:"uuid"`
	CustodianName        string     `json:"custodianName"`
	EventType            string     `json:"eventType"`
	EventId              string     `json:"eventId"`
	Payload              []byte     `gorm:"type:jsonb" json:"payload"`
	Status               string     `json:"status"`
	TransactionId        *string    `json:"transactionId"`
	CustodianAccountUuid *uuid.UUID `gorm:"type:uuid" json:"custodianAccountUuid"`
	IgnoredReason        string     `json:"ignoredReason"`
	ProcessingError      string     `json:"processingError"`
	ProcessedAt          *time.Time `json:"processedAt"`
	CreatedAt            time.Time  `json:"createdAt"`
}

func (CustodianWebhook) TableName() string {
	return "custodian_webhook"
}
