package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/vaultline/custodian-backend/internal/ledger"
	"github.com/vaultline/custodian-backend/internal/pkg/model"
)

// MemoryRepository is an in-memory Repository used by tests and local
// development. Transaction runs the unit of work against the same state
// without rollback; test assertions observe the final state only.
type MemoryRepository struct {
	mu                sync.Mutex
	custodianAccounts map[uint64]*model.CustodianAccount
	transfers         map[string]*model.CustodianTransfer
	webhooks          map[uint64]*model.CustodianWebhook
	accounts          map[uuid.UUID]*model.Account
	balances          map[uuid.UUID]map[string]int64
	nextId            uint64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		custodianAccounts: map[uint64]*model.CustodianAccount{},
		transfers:         map[string]*model.CustodianTransfer{},
		webhooks:          map[uint64]*model.CustodianWebhook{},
		accounts:          map[uuid.UUID]*model.Account{},
		balances:          map[uuid.UUID]map[string]int64{},
		nextId:            1,
	}
}

// AddAccount seeds an internal account with ledger balances.
func (r *MemoryRepository) AddAccount(account model.Account, balances map[string]int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[account.Uuid] = &account
	copied := map[string]int64{}
	for asset, amount := range balances {
		copied[asset] = amount
	}
	r.balances[account.Uuid] = copied
}

// AddCustodianAccount seeds a custodian link row and returns it.
func (r *MemoryRepository) AddCustodianAccount(account model.CustodianAccount) *model.CustodianAccount {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account.Id == 0 {
		account.Id = r.nextId
		r.nextId++
	}
	if account.Uuid == uuid.Nil {
		account.Uuid = uuid.New()
	}
	stored := account
	r.custodianAccounts[stored.Id] = &stored
	return &stored
}

func (r *MemoryRepository) CustodianAccounts() CustodianAccounts {
	return memoryCustodianAccounts{repo: r}
}

func (r *MemoryRepository) CustodianTransfers() CustodianTransfers {
	return memoryCustodianTransfers{repo: r}
}

func (r *MemoryRepository) CustodianWebhooks() CustodianWebhooks {
	return memoryCustodianWebhooks{repo: r}
}

func (r *MemoryRepository) Accounts() Accounts {
	return memoryAccounts{repo: r}
}

func (r *MemoryRepository) Wallet() ledger.Wallet {
	return memoryWallet{repo: r}
}

func (r *MemoryRepository) Transaction(_ context.Context, fn func(repo Repository) error) error {
	return fn(r)
}

type memoryCustodianAccounts struct {
	repo *MemoryRepository
}

func (m memoryCustodianAccounts) Create(_ context.Context, account *model.CustodianAccount) error {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()
	if account.Id == 0 {
		account.Id = m.repo.nextId
		m.repo.nextId++
	}
	stored := *account
	m.repo.custodianAccounts[stored.Id] = &stored
	return nil
}

func (m memoryCustodianAccounts) Save(_ context.Context, account *model.CustodianAccount) error {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()
	stored := *account
	m.repo.custodianAccounts[stored.Id] = &stored
	return nil
}

func (m memoryCustodianAccounts) FindByUuid(_ context.Context, accountUuid uuid.UUID) (*model.CustodianAccount, error) {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()
	for _, account := range m.repo.custodianAccounts {
		if account.Uuid == accountUuid {
			copied := *account
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (m memoryCustodianAccounts) FindByCustodianRef(_ context.Context, custodianName string, custodianAccountId string) (*model.CustodianAccount, error) {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()
	for _, account := range m.repo.custodianAccounts {
		if account.CustodianName == custodianName && account.CustodianAccountId == custodianAccountId {
			copied := *account
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (m memoryCustodianAccounts) FindActiveByAccount(_ context.Context, accountUuid uuid.UUID) ([]model.CustodianAccount, error) {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()
	var accounts []model.CustodianAccount
	for _, account := range m.repo.custodianAccounts {
		if account.AccountUuid == accountUuid && account.Status == model.CustodianAccountStatusActive {
			accounts = append(accounts, *account)
		}
	}
	sortCustodianAccounts(accounts)
	return accounts, nil
}

func (m memoryCustodianAccounts) ListActive(_ context.Context) ([]model.CustodianAccount, error) {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()
	var accounts []model.CustodianAccount
	for _, account := range m.repo.custodianAccounts {
		if account.Status == model.CustodianAccountStatusActive {
			accounts = append(accounts, *account)
		}
	}
	sortCustodianAccounts(accounts)
	return accounts, nil
}

func (m memoryCustodianAccounts) ClearPrimary(_ context.Context, accountUuid uuid.UUID) error {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()
	for _, account := range m.repo.custodianAccounts {
		if account.AccountUuid == accountUuid && account.Status == model.CustodianAccountStatusActive {
			account.IsPrimary = false
		}
	}
	return nil
}

type memoryCustodianTransfers struct {
	repo *MemoryRepository
}

func (m memoryCustodianTransfers) Create(_ context.Context, transfer *model.CustodianTransfer) error {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()
	stored := *transfer
	m.repo.transfers[stored.Id] = &stored
	return nil
}

func (m memoryCustodianTransfers) Save(_ context.Context, transfer *model.CustodianTransfer) error {
	return m.Create(context.Background(), transfer)
}

func (m memoryCustodianTransfers) FindById(_ context.Context, id string) (*model.CustodianTransfer, error) {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()
	transfer, ok := m.repo.transfers[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *transfer
	return &copied, nil
}

type memoryCustodianWebhooks struct {
	repo *MemoryRepository
}

func (m memoryCustodianWebhooks) Create(_ context.Context, webhook *model.CustodianWebhook) error {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()
	if webhook.Id == 0 {
		webhook.Id = m.repo.nextId
		m.repo.nextId++
	}
	stored := *webhook
	m.repo.webhooks[stored.Id] = &stored
	return nil
}

func (m memoryCustodianWebhooks) Save(_ context.Context, webhook *model.CustodianWebhook) error {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()
	stored := *webhook
	m.repo.webhooks[stored.Id] = &stored
	return nil
}

func (m memoryCustodianWebhooks) FindByEventId(_ context.Context, custodianName string, eventId string) (*model.CustodianWebhook, error) {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()
	for _, webhook := range m.repo.webhooks {
		if webhook.CustodianName == custodianName && webhook.EventId == eventId {
			copied := *webhook
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (m memoryCustodianWebhooks) List(_ context.Context, limit int, offset int) ([]model.CustodianWebhook, int64, error) {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()
	webhooks := make([]model.CustodianWebhook, 0, len(m.repo.webhooks))
	for _, webhook := range m.repo.webhooks {
		webhooks = append(webhooks, *webhook)
	}
	sort.Slice(webhooks, func(i, j int) bool { return webhooks[i].Id > webhooks[j].Id })
	total := int64(len(webhooks))
	if offset >= len(webhooks) {
		return nil, total, nil
	}
	webhooks = webhooks[offset:]
	if limit > 0 && limit < len(webhooks) {
		webhooks = webhooks[:limit]
	}
	return webhooks, total, nil
}

type memoryAccounts struct {
	repo *MemoryRepository
}

func (m memoryAccounts) ListAll(_ context.Context) ([]model.Account, error) {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()
	accounts := make([]model.Account, 0, len(m.repo.accounts))
	for _, account := range m.repo.accounts {
		accounts = append(accounts, *account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Uuid.String() < accounts[j].Uuid.String() })
	return accounts, nil
}

type memoryWallet struct {
	repo *MemoryRepository
}

func (m memoryWallet) Deposit(_ context.Context, accountUuid uuid.UUID, assetCode string, amount int64) error {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()
	balances, ok := m.repo.balances[accountUuid]
	if !ok {
		balances = map[string]int64{}
		m.repo.balances[accountUuid] = balances
	}
	balances[assetCode] += amount
	return nil
}

func (m memoryWallet) Withdraw(ctx context.Context, accountUuid uuid.UUID, assetCode string, amount int64) error {
	return m.Deposit(ctx, accountUuid, assetCode, -amount)
}

func (m memoryWallet) Balance(_ context.Context, accountUuid uuid.UUID, assetCode string) (int64, error) {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()
	return m.repo.balances[accountUuid][assetCode], nil
}

func (m memoryWallet) Balances(_ context.Context, accountUuid uuid.UUID) (map[string]int64, error) {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()
	balances := map[string]int64{}
	for asset, amount := range m.repo.balances[accountUuid] {
		balances[asset] = amount
	}
	return balances, nil
}

func (m memoryWallet) FindAccount(_ context.Context, accountUuid uuid.UUID) (*model.Account, error) {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()
	account, ok := m.repo.accounts[accountUuid]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func sortCustodianAccounts(accounts []model.CustodianAccount) {
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Id < accounts[j].Id })
}
