package custodian

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockConnector is an in-memory connector used for the "mock" custodian in
// development wiring and in tests. Behaviour is configurable per instance:
// availability, per-account balances and a forced error for every call.
type MockConnector struct {
	mu        sync.Mutex
	name      string
	available bool
	assets    []string
	accounts  map[string]*AccountInfo
	receipts  map[string]*TransactionReceipt
	failWith  error
	calls     int
}

func NewMockConnector(name string) *MockConnector {
	return &MockConnector{
		name:      name,
		available: true,
		assets:    []string{"EUR", "USD"},
		accounts:  map[string]*AccountInfo{},
		receipts:  map[string]*TransactionReceipt{},
	}
}

func (m *MockConnector) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
}

func (m *MockConnector) SetBalances(accountId string, balances map[string]int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.accounts[accountId]
	if !ok {
		info = &AccountInfo{AccountId: accountId, Name: accountId, Status: "active"}
		m.accounts[accountId] = info
	}
	info.Balances = balances
}

func (m *MockConnector) SetAccountStatus(accountId string, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.accounts[accountId]
	if !ok {
		info = &AccountInfo{AccountId: accountId, Name: accountId, Balances: map[string]int64{}}
		m.accounts[accountId] = info
	}
	info.Status = status
}

// FailWith forces every subsequent call to return err until cleared with nil.
func (m *MockConnector) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Calls reports how many data calls reached the connector.
func (m *MockConnector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockConnector) Name() string {
	return m.name
}

func (m *MockConnector) IsAvailable(_ context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

func (m *MockConnector) GetAccountInfo(_ context.Context, accountId string) (*AccountInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	info, ok := m.accounts[accountId]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAccount, accountId)
	}
	copied := *info
	return &copied, nil
}

func (m *MockConnector) GetBalance(_ context.Context, accountId string, assetCode string) (Money, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failWith != nil {
		return Money{}, m.failWith
	}
	info, ok := m.accounts[accountId]
	if !ok {
		return Money{}, fmt.Errorf("%w: %s", ErrInvalidAccount, accountId)
	}
	return Money{Amount: info.Balances[assetCode], AssetCode: assetCode}, nil
}

func (m *MockConnector) InitiateTransfer(_ context.Context, request TransferRequest) (*TransactionReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	now := time.Now()
	receipt := &TransactionReceipt{
		Id:          uuid.New().String(),
		Status:      "completed",
		FromAccount: request.FromAccountId,
		ToAccount:   request.ToAccountId,
		AssetCode:   request.AssetCode,
		Amount:      request.Amount,
		Reference:   request.Reference,
		CreatedAt:   now,
		CompletedAt: &now,
	}
	m.receipts[receipt.Id] = receipt
	return receipt, nil
}

func (m *MockConnector) GetTransactionStatus(_ context.Context, transactionId string) (*TransactionReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	receipt, ok := m.receipts[transactionId]
	if !ok {
		return nil, fmt.Errorf("transaction not found: %s", transactionId)
	}
	copied := *receipt
	return &copied, nil
}

func (m *MockConnector) GetTransactionHistory(_ context.Context, accountId string, limit int, offset int) ([]TransactionReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	history := make([]TransactionReceipt, 0, len(m.receipts))
	for _, receipt := range m.receipts {
		if receipt.FromAccount == accountId || receipt.ToAccount == accountId {
			history = append(history, *receipt)
		}
	}
	if offset >= len(history) {
		return nil, nil
	}
	history = history[offset:]
	if limit > 0 && limit < len(history) {
		history = history[:limit]
	}
	return history, nil
}

func (m *MockConnector) ValidateAccount(_ context.Context, accountId string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.accounts[accountId]
	return ok
}

func (m *MockConnector) GetSupportedAssets(_ context.Context) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	assets := make([]string, len(m.assets))
	copy(assets, m.assets)
	return assets
}
