package model

import (
	"time"

	"github.com/google/uuid"
)

type Account struct {
	Uuid      uuid.UUID `gorm:"primaryKey;type:uuid" json:"uuid"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func (Account) TableName() string {
	return "account"
}

type AccountBalance struct {
	Id          uint64    `gorm:"primaryKey" json:"id"`
	AccountUuid uuid.UUID `gorm:"type:uuid" json:"accountUuid"`
	AssetCode   string    `json:"assetCode"`
	Balance     int64     `json:"balance"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (AccountBalance) TableName() string {
	return "account_balance"
}
