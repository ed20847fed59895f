package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	CustodianAccountStatusActive    = "active"
	CustodianAccountStatusSuspended = "suspended"
	CustodianAccountStatusUnlinked  = "unlinked"
)

const (
	SyncStatusSynced  = "synced"
	SyncStatusSkipped = "skipped"
	SyncStatusFailed  = "failed"
)

// CustodianAccount links an internal account to an account held at an
// external custodian. Rows are never deleted implicitly; unlinking flips the
// status and reassigns primary ownership.
type CustodianAccount struct {
	Id                 uint64     `gorm:"primaryKey" json:"id"`
	Uuid               uuid.UUID  `gorm:"type:uuid" json:"uuid"`
	AccountUuid        uuid.UUID  `gorm:"type:uuid" json:"accountUuid"`
	CustodianName      string     `json:"custodianName"`
	CustodianAccountId string     `json:"custodianAccountId"`
	Status             string     `json:"status"`
	IsPrimary          bool       `json:"isPrimary"`
	LastKnownBalance   int64      `json:"lastKnownBalance"`
	LastSyncedAt       *time.Time `json:"lastSyncedAt"`
	SyncStatus         string     `json:"syncStatus"`
	SyncError          string     `json:"syncError"`
	Metadata           JSONMap    `gorm:"type:jsonb" json:"metadata"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

func (CustodianAccount) TableName() string {
	return "custodian_account"
}
