package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/vaultline/custodian-backend/internal/pkg/model"
)

var ErrAccountNotFound = errors.New("account not found")

// Wallet is the narrow boundary to the internal ledger's account and balance
// subsystem. The double-entry bookkeeping behind it is not part of this
// repository.
type Wallet interface {
	Deposit(ctx context.Context, accountUuid uuid.UUID, assetCode string, amount int64) error
	Withdraw(ctx context.Context, accountUuid uuid.UUID, assetCode string, amount int64) error
	Balance(ctx context.Context, accountUuid uuid.UUID, assetCode string) (int64, error)
	Balances(ctx context.Context, accountUuid uuid.UUID) (map[string]int64, error)
	FindAccount(ctx context.Context, accountUuid uuid.UUID) (*model.Account, error)
}
