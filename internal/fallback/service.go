package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vaultline/custodian-backend/internal/custodian"
	"github.com/vaultline/custodian-backend/internal/pkg/cache"
	"github.com/vaultline/custodian-backend/internal/pkg/model"
	"github.com/vaultline/custodian-backend/internal/store"
)

const (
	balanceCacheTTL     = 5 * time.Minute
	accountInfoCacheTTL = time.Hour
	retryAfterDelay     = 5 * time.Minute
)

// alternativeRoutes is the static failover routing table. The first
// alternative whose connector reports availability wins.
var alternativeRoutes = map[string][]string{
	"paysera":       {"deutsche_bank", "santander"},
	"deutsche_bank": {"paysera", "santander"},
	"santander":     {"deutsche_bank", "paysera"},
}

// Service answers read requests from last-known data when a live custodian
// call cannot succeed, and queues transfers for later execution instead of
// failing the caller outright.
type Service struct {
	store    cache.Store
	repo     store.Repository
	registry *custodian.Registry
	now      func() time.Time
}

func NewService(cacheStore cache.Store, repo store.Repository, registry *custodian.Registry) *Service {
	return &Service{
		store:    cacheStore,
		repo:     repo,
		registry: registry,
		now:      time.Now,
	}
}

// GetFallbackBalance tries the short-lived cache first, then the persisted
// last-known balance. Returns nil when neither source has data.
func (s *Service) GetFallbackBalance(ctx context.Context, custodianName string, accountId string, assetCode string) (*custodian.Money, error) {
	cached, found, err := s.store.Get(ctx, balanceKey(custodianName, accountId, assetCode))
	if err != nil {
		return nil, err
	}
	if found {
		amount, err := strconv.ParseInt(cached, 10, 64)
		if err == nil {
			return &custodian.Money{Amount: amount, AssetCode: assetCode}, nil
		}
	}

	account, err := s.repo.CustodianAccounts().FindByCustodianRef(ctx, custodianName, accountId)
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if account.LastSyncedAt == nil {
		return nil, nil
	}
	return &custodian.Money{Amount: account.LastKnownBalance, AssetCode: assetCode}, nil
}

// CacheBalance updates the cache and the persisted last-known balance
// together so both fallback sources agree.
func (s *Service) CacheBalance(ctx context.Context, custodianName string, accountId string, assetCode string, balance custodian.Money) error {
	if err := s.store.Set(ctx, balanceKey(custodianName, accountId, assetCode), strconv.FormatInt(balance.Amount, 10), balanceCacheTTL); err != nil {
		return err
	}

	account, err := s.repo.CustodianAccounts().FindByCustodianRef(ctx, custodianName, accountId)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	syncedAt := s.now()
	account.LastKnownBalance = balance.Amount
	account.LastSyncedAt = &syncedAt
	return s.repo.CustodianAccounts().Save(ctx, account)
}

func (s *Service) GetFallbackAccountInfo(ctx context.Context, custodianName string, accountId string) (*custodian.AccountInfo, error) {
	cached, found, err := s.store.Get(ctx, infoKey(custodianName, accountId))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	var info custodian.AccountInfo
	if err := json.Unmarshal([]byte(cached), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *Service) CacheAccountInfo(ctx context.Context, custodianName string, accountId string, info custodian.AccountInfo) error {
	serialized, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, infoKey(custodianName, accountId), string(serialized), accountInfoCacheTTL)
}

// GetFallbackTransferStatus reads the persisted transfer record. The row is
// the source of truth, so no cache sits in front of it.
func (s *Service) GetFallbackTransferStatus(ctx context.Context, custodianName string, transferId string) (*custodian.TransactionReceipt, error) {
	transfer, err := s.repo.CustodianTransfers().FindById(ctx, transferId)
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return receiptFromTransfer(transfer), nil
}

// QueueTransferForRetry records a pending transfer tagged with the original
// failure so a later worker can execute it, and returns a receipt telling
// the caller when to check back.
func (s *Service) QueueTransferForRetry(ctx context.Context, custodianName string, fromAccount uuid.UUID, toAccount uuid.UUID, amount custodian.Money, reference string, description string, reason string) (*custodian.TransactionReceipt, error) {
	now := s.now()
	transfer := &model.CustodianTransfer{
		Id:              uuid.New().String(),
		FromAccountUuid: fromAccount,
		ToAccountUuid:   toAccount,
		CustodianName:   custodianName,
		Amount:          amount.Amount,
		AssetCode:       amount.AssetCode,
		Status:          model.TransferStatusPending,
		TransferType:    "queued_retry",
		Reference:       reference,
		Description:     description,
		Metadata: model.JSONMap{
			"queued":      true,
			"reason":      reason,
			"custodian":   custodianName,
			"retry_after": now.Add(retryAfterDelay).Format(time.RFC3339),
		},
		CreatedAt: now,
	}
	if err := s.repo.CustodianTransfers().Create(ctx, transfer); err != nil {
		return nil, err
	}

	log.Info().Msg(fmt.Sprintf("Queued transfer %s for retry on custodian %s", transfer.Id, custodianName))

	return receiptFromTransfer(transfer), nil
}

// AlternativeCustodian walks the static routing table and returns the first
// alternative whose connector reports availability.
func (s *Service) AlternativeCustodian(ctx context.Context, failedCustodian string, assetCode string) (string, bool) {
	for _, alternative := range alternativeRoutes[failedCustodian] {
		connector, err := s.registry.Connector(alternative)
		if err != nil {
			continue
		}
		if !supportsAsset(connector.GetSupportedAssets(ctx), assetCode) {
			continue
		}
		if connector.IsAvailable(ctx) {
			return alternative, true
		}
	}
	return "", false
}

func receiptFromTransfer(transfer *model.CustodianTransfer) *custodian.TransactionReceipt {
	metadata := map[string]any(transfer.Metadata)
	return &custodian.TransactionReceipt{
		Id:            transfer.Id,
		Status:        transfer.Status,
		FromAccount:   transfer.FromAccountUuid.String(),
		ToAccount:     transfer.ToAccountUuid.String(),
		AssetCode:     transfer.AssetCode,
		Amount:        transfer.Amount,
		Fee:           transfer.Fee,
		Reference:     transfer.Reference,
		CreatedAt:     transfer.CreatedAt,
		CompletedAt:   transfer.CompletedAt,
		Metadata:      metadata,
		FailureReason: transfer.FailureReason,
	}
}

func balanceKey(custodianName string, accountId string, assetCode string) string {
	return fmt.Sprintf("custodian:fallback:%s:%s:%s:balance", custodianName, accountId, assetCode)
}

func infoKey(custodianName string, accountId string) string {
	return fmt.Sprintf("custodian:fallback:%s:%s:info", custodianName, accountId)
}

func supportsAsset(assets []string, assetCode string) bool {
	for _, asset := range assets {
		if asset == assetCode {
			return true
		}
	}
	return false
}
