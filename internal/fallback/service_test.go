package fallback

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultline/custodian-backend/internal/custodian"
	"github.com/vaultline/custodian-backend/internal/pkg/cache"
	"github.com/vaultline/custodian-backend/internal/pkg/model"
	"github.com/vaultline/custodian-backend/internal/store"
)

type fallbackFixture struct {
	service  *Service
	store    *cache.MemoryStore
	repo     *store.MemoryRepository
	registry *custodian.Registry
}

func newFallbackFixture(t *testing.T) *fallbackFixture {
	t.Helper()
	cacheStore := cache.NewMemoryStore()
	repo := store.NewMemoryRepository()
	registry := custodian.NewRegistry()
	return &fallbackFixture{
		service:  NewService(cacheStore, repo, registry),
		store:    cacheStore,
		repo:     repo,
		registry: registry,
	}
}

func TestGetFallbackBalancePrefersCache(t *testing.T) {
	fixture := newFallbackFixture(t)
	ctx := context.Background()

	require.NoError(t, fixture.store.Set(ctx, "custodian:fallback:paysera:acc-1:EUR:balance", "15000", time.Minute))

	balance, err := fixture.service.GetFallbackBalance(ctx, "paysera", "acc-1", "EUR")
	require.NoError(t, err)
	require.NotNil(t, balance)
	assert.EqualValues(t, 15000, balance.Amount)
	assert.Equal(t, "EUR", balance.AssetCode)
}

func TestGetFallbackBalanceFallsBackToPersistedRow(t *testing.T) {
	fixture := newFallbackFixture(t)
	ctx := context.Background()

	syncedAt := time.Now().Add(-time.Hour)
	fixture.repo.AddCustodianAccount(model.CustodianAccount{
		AccountUuid:        uuid.New(),
		CustodianName:      "paysera",
		CustodianAccountId: "acc-1",
		Status:             model.CustodianAccountStatusActive,
		LastKnownBalance:   9500,
		LastSyncedAt:       &syncedAt,
	})

	balance, err := fixture.service.GetFallbackBalance(ctx, "paysera", "acc-1", "EUR")
	require.NoError(t, err)
	require.NotNil(t, balance)
	assert.EqualValues(t, 9500, balance.Amount)
}

func TestGetFallbackBalanceNilWhenUnknown(t *testing.T) {
	fixture := newFallbackFixture(t)

	balance, err := fixture.service.GetFallbackBalance(context.Background(), "paysera", "acc-1", "EUR")
	require.NoError(t, err)
	assert.Nil(t, balance)
}

func TestGetFallbackBalanceNilWhenNeverSynced(t *testing.T) {
	fixture := newFallbackFixture(t)

	fixture.repo.AddCustodianAccount(model.CustodianAccount{
		AccountUuid:        uuid.New(),
		CustodianName:      "paysera",
		CustodianAccountId: "acc-1",
		Status:             model.CustodianAccountStatusActive,
		LastKnownBalance:   9500,
	})

	balance, err := fixture.service.GetFallbackBalance(context.Background(), "paysera", "acc-1", "EUR")
	require.NoError(t, err)
	assert.Nil(t, balance)
}

func TestCacheBalanceUpdatesBothSources(t *testing.T) {
	fixture := newFallbackFixture(t)
	ctx := context.Background()

	link := fixture.repo.AddCustodianAccount(model.CustodianAccount{
		AccountUuid:        uuid.New(),
		CustodianName:      "paysera",
		CustodianAccountId: "acc-1",
		Status:             model.CustodianAccountStatusActive,
	})

	require.NoError(t, fixture.service.CacheBalance(ctx, "paysera", "acc-1", "EUR", custodian.Money{Amount: 20000, AssetCode: "EUR"}))

	cached, found, err := fixture.store.Get(ctx, "custodian:fallback:paysera:acc-1:EUR:balance")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "20000", cached)

	updated, err := fixture.repo.CustodianAccounts().FindByUuid(ctx, link.Uuid)
	require.NoError(t, err)
	assert.EqualValues(t, 20000, updated.LastKnownBalance)
	require.NotNil(t, updated.LastSyncedAt)
}

func TestAccountInfoRoundTrip(t *testing.T) {
	fixture := newFallbackFixture(t)
	ctx := context.Background()

	info := custodian.AccountInfo{
		AccountId: "acc-1",
		Name:      "Operating",
		Status:    "active",
		Balances:  map[string]int64{"EUR": 15000},
	}
	require.NoError(t, fixture.service.CacheAccountInfo(ctx, "paysera", "acc-1", info))

	recovered, err := fixture.service.GetFallbackAccountInfo(ctx, "paysera", "acc-1")
	require.NoError(t, err)
	require.NotNil(t, recovered)
	assert.Equal(t, info, *recovered)

	missing, err := fixture.service.GetFallbackAccountInfo(ctx, "paysera", "acc-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestQueueTransferForRetry(t *testing.T) {
	fixture := newFallbackFixture(t)
	ctx := context.Background()
	from := uuid.New()
	to := uuid.New()

	receipt, err := fixture.service.QueueTransferForRetry(ctx, "paysera", from, to,
		custodian.Money{Amount: 5000, AssetCode: "EUR"}, "ref-1", "supplier invoice", "circuit open")
	require.NoError(t, err)

	assert.Equal(t, model.TransferStatusPending, receipt.Status)
	assert.EqualValues(t, 5000, receipt.Amount)
	assert.Equal(t, true, receipt.Metadata["queued"])
	assert.Equal(t, "circuit open", receipt.Metadata["reason"])
	assert.NotEmpty(t, receipt.Metadata["retry_after"])

	persisted, err := fixture.repo.CustodianTransfers().FindById(ctx, receipt.Id)
	require.NoError(t, err)
	assert.Equal(t, model.TransferStatusPending, persisted.Status)
	assert.Equal(t, "queued_retry", persisted.TransferType)
	assert.Equal(t, from, persisted.FromAccountUuid)
}

func TestAlternativeCustodianSkipsUnavailable(t *testing.T) {
	fixture := newFallbackFixture(t)
	deutsche := custodian.NewMockConnector("deutsche_bank")
	deutsche.SetAvailable(false)
	santander := custodian.NewMockConnector("santander")
	fixture.registry.Register(deutsche)
	fixture.registry.Register(santander)

	alternative, ok := fixture.service.AlternativeCustodian(context.Background(), "paysera", "EUR")
	require.True(t, ok)
	assert.Equal(t, "santander", alternative)
}

func TestAlternativeCustodianNoneFound(t *testing.T) {
	fixture := newFallbackFixture(t)

	_, ok := fixture.service.AlternativeCustodian(context.Background(), "paysera", "EUR")
	assert.False(t, ok)
}
