package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/vaultline/custodian-backend/internal/ledger"
	"github.com/vaultline/custodian-backend/internal/pkg/model"
	"gorm.io/gorm"
)

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) CustodianAccounts() CustodianAccounts {
	return gormCustodianAccounts{db: r.db}
}

func (r *GormRepository) CustodianTransfers() CustodianTransfers {
	return gormCustodianTransfers{db: r.db}
}

func (r *GormRepository) CustodianWebhooks() CustodianWebhooks {
	return gormCustodianWebhooks{db: r.db}
}

func (r *GormRepository) Accounts() Accounts {
	return gormAccounts{db: r.db}
}

func (r *GormRepository) Wallet() ledger.Wallet {
	return ledger.NewGormWallet(r.db)
}

func (r *GormRepository) Transaction(ctx context.Context, fn func(repo Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormRepository(tx))
	})
}

type gormCustodianAccounts struct {
	db *gorm.DB
}

func (r gormCustodianAccounts) Create(ctx context.Context, account *model.CustodianAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r gormCustodianAccounts) Save(ctx context.Context, account *model.CustodianAccount) error {
	return r.db.WithContext(ctx).Save(account).Error
}

func (r gormCustodianAccounts) FindByUuid(ctx context.Context, accountUuid uuid.UUID) (*model.CustodianAccount, error) {
	var account model.CustodianAccount
	result := r.db.WithContext(ctx).
		Where("uuid = ?", accountUuid).
		First(&account)
	if err := translateNotFound(result.Error); err != nil {
		return nil, err
	}
	return &account, nil
}

func (r gormCustodianAccounts) FindByCustodianRef(ctx context.Context, custodianName string, custodianAccountId string) (*model.CustodianAccount, error) {
	var account model.CustodianAccount
	result := r.db.WithContext(ctx).
		Where("custodian_name = ? AND custodian_account_id = ?", custodianName, custodianAccountId).
		First(&account)
	if err := translateNotFound(result.Error); err != nil {
		return nil, err
	}
	return &account, nil
}

func (r gormCustodianAccounts) FindActiveByAccount(ctx context.Context, accountUuid uuid.UUID) ([]model.CustodianAccount, error) {
	var accounts []model.CustodianAccount
	result := r.db.WithContext(ctx).
		Where("account_uuid = ? AND status = ?", accountUuid, model.CustodianAccountStatusActive).
		Find(&accounts)
	return accounts, result.Error
}

func (r gormCustodianAccounts) ListActive(ctx context.Context) ([]model.CustodianAccount, error) {
	var accounts []model.CustodianAccount
	result := r.db.WithContext(ctx).
		Where("status = ?", model.CustodianAccountStatusActive).
		Find(&accounts)
	return accounts, result.Error
}

func (r gormCustodianAccounts) ClearPrimary(ctx context.Context, accountUuid uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&model.CustodianAccount{}).
		Where("account_uuid = ? AND status = ?", accountUuid, model.CustodianAccountStatusActive).
		Update("is_primary", false).Error
}

type gormCustodianTransfers struct {
	db *gorm.DB
}

func (r gormCustodianTransfers) Create(ctx context.Context, transfer *model.CustodianTransfer) error {
	return r.db.WithContext(ctx).Create(transfer).Error
}

func (r gormCustodianTransfers) Save(ctx context.Context, transfer *model.CustodianTransfer) error {
	return r.db.WithContext(ctx).Save(transfer).Error
}

func (r gormCustodianTransfers) FindById(ctx context.Context, id string) (*model.CustodianTransfer, error) {
	var transfer model.CustodianTransfer
	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&transfer)
	if err := translateNotFound(result.Error); err != nil {
		return nil, err
	}
	return &transfer, nil
}

type gormCustodianWebhooks struct {
	db *gorm.DB
}

func (r gormCustodianWebhooks) Create(ctx context.Context, webhook *model.CustodianWebhook) error {
	return r.db.WithContext(ctx).Create(webhook).Error
}

func (r gormCustodianWebhooks) Save(ctx context.Context, webhook *model.CustodianWebhook) error {
	return r.db.WithContext(ctx).Save(webhook).Error
}

func (r gormCustodianWebhooks) FindByEventId(ctx context.Context, custodianName string, eventId string) (*model.CustodianWebhook, error) {
	var webhook model.CustodianWebhook
	result := r.db.WithContext(ctx).
		Where("custodian_name = ? AND event_id = ?", custodianName, eventId).
		First(&webhook)
	if err := translateNotFound(result.Error); err != nil {
		return nil, err
	}
	return &webhook, nil
}

func (r gormCustodianWebhooks) List(ctx context.Context, limit int, offset int) ([]model.CustodianWebhook, int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.CustodianWebhook{}).Count(&count).Error; err != nil {
		return nil, 0, err
	}
	var webhooks []model.CustodianWebhook
	result := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&webhooks)
	return webhooks, count, result.Error
}

type gormAccounts struct {
	db *gorm.DB
}

func (r gormAccounts) ListAll(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	result := r.db.WithContext(ctx).Find(&accounts)
	return accounts, result.Error
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
