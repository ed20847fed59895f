package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vaultline/custodian-backend/internal/pkg/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormWallet keeps ledger balances in account_balance rows. Amount changes
// are expressed as atomic UPDATEs so concurrent corrections never lose an
// increment.
type GormWallet struct {
	db *gorm.DB
}

func NewGormWallet(db *gorm.DB) *GormWallet {
	return &GormWallet{db: db}
}

// WithTx returns a wallet bound to the given transaction handle.
func (w *GormWallet) WithTx(tx *gorm.DB) *GormWallet {
	return &GormWallet{db: tx}
}

func (w *GormWallet) Deposit(ctx context.Context, accountUuid uuid.UUID, assetCode string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit amount must be positive, got %d", amount)
	}
	return w.apply(ctx, accountUuid, assetCode, amount)
}

func (w *GormWallet) Withdraw(ctx context.Context, accountUuid uuid.UUID, assetCode string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("withdraw amount must be positive, got %d", amount)
	}
	return w.apply(ctx, accountUuid, assetCode, -amount)
}

func (w *GormWallet) apply(ctx context.Context, accountUuid uuid.UUID, assetCode string, delta int64) error {
	result := w.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_uuid"}, {Name: "asset_code"}},
			DoUpdates: clause.Assignments(map[string]any{"balance": gorm.Expr("account_balance.balance + ?", delta)}),
		}).
		Create(&model.AccountBalance{
			AccountUuid: accountUuid,
			AssetCode:   assetCode,
			Balance:     delta,
		})
	return result.Error
}

func (w *GormWallet) Balance(ctx context.Context, accountUuid uuid.UUID, assetCode string) (int64, error) {
	var balance model.AccountBalance
	result := w.db.WithContext(ctx).
		Where("account_uuid = ? AND asset_code = ?", accountUuid, assetCode).
		First(&balance)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if result.Error != nil {
		return 0, result.Error
	}
	return balance.Balance, nil
}

func (w *GormWallet) Balances(ctx context.Context, accountUuid uuid.UUID) (map[string]int64, error) {
	var rows []model.AccountBalance
	result := w.db.WithContext(ctx).
		Where("account_uuid = ?", accountUuid).
		Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	balances := make(map[string]int64, len(rows))
	for _, row := range rows {
		balances[row.AssetCode] = row.Balance
	}
	return balances, nil
}

func (w *GormWallet) FindAccount(ctx context.Context, accountUuid uuid.UUID) (*model.Account, error) {
	var account model.Account
	result := w.db.WithContext(ctx).
		Where("uuid = ?", accountUuid).
		First(&account)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountUuid)
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &account, nil
}
