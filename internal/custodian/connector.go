package custodian

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCustodianNotFound     = errors.New("custodian not found")
	ErrCustodianNotAvailable = errors.New("custodian not available")
	ErrInvalidAccount        = errors.New("invalid custodian account")
	ErrCrossCustodianXfer    = errors.New("cross-custodian transfers are not supported")
)

// Money is an amount in minor units of an asset.
type Money struct {
	Amount    int64  `json:"amount"`
	AssetCode string `json:"assetCode"`
}

// AccountInfo is the custodian's view of an account at a point in time.
// Balances are keyed by asset code in minor units.
type AccountInfo struct {
	AccountId string           `json:"accountId"`
	Name      string           `json:"name"`
	Status    string           `json:"status"`
	Balances  map[string]int64 `json:"balances"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
}

type TransferRequest struct {
	FromAccountId string `json:"fromAccountId"`
	ToAccountId   string `json:"toAccountId"`
	AssetCode     string `json:"assetCode"`
	Amount        int64  `json:"amount"`
	Reference     string `json:"reference"`
	Description   string `json:"description"`
}

// TransactionReceipt is an immutable record of a transfer attempt as
// reported by a custodian.
type TransactionReceipt struct {
	Id            string         `json:"id"`
	Status        string         `json:"status"`
	FromAccount   string         `json:"fromAccount"`
	ToAccount     string         `json:"toAccount"`
	AssetCode     string         `json:"assetCode"`
	Amount        int64          `json:"amount"`
	Fee           int64          `json:"fee"`
	Reference     string         `json:"reference"`
	CreatedAt     time.Time      `json:"createdAt"`
	CompletedAt   *time.Time     `json:"completedAt"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	FailureReason string         `json:"failureReason,omitempty"`
}

// Connector is implemented once per custodian. The wire protocol behind each
// implementation is out of scope here; connectors are registered by name in
// the Registry and every call is wrapped in the circuit breaker by callers.
type Connector interface {
	Name() string
	IsAvailable(ctx context.Context) bool
	GetAccountInfo(ctx context.Context, accountId string) (*AccountInfo, error)
	GetBalance(ctx context.Context, accountId string, assetCode string) (Money, error)
	InitiateTransfer(ctx context.Context, request TransferRequest) (*TransactionReceipt, error)
	GetTransactionStatus(ctx context.Context, transactionId string) (*TransactionReceipt, error)
	GetTransactionHistory(ctx context.Context, accountId string, limit int, offset int) ([]TransactionReceipt, error)
	ValidateAccount(ctx context.Context, accountId string) bool
	GetSupportedAssets(ctx context.Context) []string
}
