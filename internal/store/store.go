package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/vaultline/custodian-backend/internal/ledger"
	"github.com/vaultline/custodian-backend/internal/pkg/model"
)

var ErrNotFound = errors.New("record not found")

type CustodianAccounts interface {
	Create(ctx context.Context, account *model.CustodianAccount) error
	Save(ctx context.Context, account *model.CustodianAccount) error
	FindByUuid(ctx context.Context, accountUuid uuid.UUID) (*model.CustodianAccount, error)
	// FindByCustodianRef resolves the link row for an external account id at
	// one custodian.
	FindByCustodianRef(ctx context.Context, custodianName string, custodianAccountId string) (*model.CustodianAccount, error)
	FindActiveByAccount(ctx context.Context, accountUuid uuid.UUID) ([]model.CustodianAccount, error)
	ListActive(ctx context.Context) ([]model.CustodianAccount, error)
	// ClearPrimary drops the primary flag on every active link of the
	// internal account.
	ClearPrimary(ctx context.Context, accountUuid uuid.UUID) error
}

type CustodianTransfers interface {
	Create(ctx context.Context, transfer *model.CustodianTransfer) error
	Save(ctx context.Context, transfer *model.CustodianTransfer) error
	FindById(ctx context.Context, id string) (*model.CustodianTransfer, error)
}

type CustodianWebhooks interface {
	Create(ctx context.Context, webhook *model.CustodianWebhook) error
	Save(ctx context.Context, webhook *model.CustodianWebhook) error
	FindByEventId(ctx context.Context, custodianName string, eventId string) (*model.CustodianWebhook, error)
	List(ctx context.Context, limit int, offset int) ([]model.CustodianWebhook, int64, error)
}

type Accounts interface {
	ListAll(ctx context.Context) ([]model.Account, error)
}

// Repository bundles the persistence surface of the custodian layer.
// Transaction opens a unit of work: every repository obtained from the
// passed-in Repository operates on the same transaction handle and commits
// or rolls back together.
type Repository interface {
	CustodianAccounts() CustodianAccounts
	CustodianTransfers() CustodianTransfers
	CustodianWebhooks() CustodianWebhooks
	Accounts() Accounts
	Wallet() ledger.Wallet
	Transaction(ctx context.Context, fn func(repo Repository) error) error
}
