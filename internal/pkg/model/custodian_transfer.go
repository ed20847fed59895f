package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	TransferStatusPending   = "pending"
	TransferStatusCompleted = "completed"
	TransferStatusFailed    = "failed"
)

type CustodianTransfer struct {
	Id              string     `gorm:"primaryKey" json:"id"`
	FromAccountUuid uuid.UUID  `gorm:"type:uuid" json:"fromAccountUuid"`
	ToAccountUuid   uuid.UUID  `gorm:"type:uuid" json:"toAccountUuid"`
	CustodianName   string     `json:"custodianName"`
	Amount          int64      `json:"amount"`
	Fee             int64      `json:"fee"`
	AssetCode       string     `json:"assetCode"`
	Status          string     `json:"status"`
	TransferType    string     `json:"transferType"`
	Reference       string     `json:"reference"`
	Description     string     `json:"description"`
	FailureReason   string     `json:"failureReason"`
	Metadata        JSONMap    `gorm:"type:jsonb" json:"metadata"`
	CreatedAt       time.Time  `json:"createdAt"`
	CompletedAt     *time.Time `json:"completedAt"`
}

func (CustodianTransfer) TableName() string {
	return "custodian_transfer"
}
