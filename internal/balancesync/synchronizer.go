package balancesync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vaultline/custodian-backend/internal/breaker"
	"github.com/vaultline/custodian-backend/internal/custodian"
	"github.com/vaultline/custodian-backend/internal/pkg/events"
	"github.com/vaultline/custodian-backend/internal/pkg/model"
	"github.com/vaultline/custodian-backend/internal/store"
)

// freshnessWindow is how recently an account must have been synced to be
// skipped without a network call.
const freshnessWindow = 60 * time.Second

const (
	ResultSynced  = "synced"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

type Result struct {
	Status string `json:"status"`
	// Changes holds the signed drift corrected per asset code.
	Changes map[string]int64 `json:"changes,omitempty"`
	Error   string           `json:"error,omitempty"`
}

type Summary struct {
	Total   int `json:"total"`
	Synced  int `json:"synced"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Synchronizer reconciles one custodian account's balances against the
// ledger, correcting drift through deposit/withdraw primitives.
type Synchronizer struct {
	registry  *custodian.Registry
	repo      store.Repository
	breaker   *breaker.Breaker
	publisher events.Publisher
	now       func() time.Time
}

func NewSynchronizer(registry *custodian.Registry, repo store.Repository, cb *breaker.Breaker, publisher events.Publisher) *Synchronizer {
	return &Synchronizer{
		registry:  registry,
		repo:      repo,
		breaker:   cb,
		publisher: publisher,
		now:       time.Now,
	}
}

// SynchronizeAccount corrects the ledger for one custodian account. A
// failure is recorded on the account row and reported in the result, never
// propagated: one account must not abort a batch.
func (s *Synchronizer) SynchronizeAccount(ctx context.Context, account *model.CustodianAccount) Result {
	if account.LastSyncedAt != nil && s.now().Sub(*account.LastSyncedAt) < freshnessWindow {
		return Result{Status: ResultSkipped}
	}

	connector, err := s.registry.Connector(account.CustodianName)
	if err != nil {
		return s.markFailed(ctx, account, err)
	}
	if !connector.IsAvailable(ctx) {
		return s.markFailed(ctx, account, fmt.Errorf("%w: %s", custodian.ErrCustodianNotAvailable, account.CustodianName))
	}

	var info *custodian.AccountInfo
	err = s.breaker.Execute(ctx, account.CustodianName+".getBalance", func(ctx context.Context) error {
		fetched, fetchErr := connector.GetAccountInfo(ctx, account.CustodianAccountId)
		if fetchErr != nil {
			return fetchErr
		}
		info = fetched
		return nil
	}, nil)
	if err != nil {
		return s.markFailed(ctx, account, err)
	}

	changes := map[string]int64{}
	var published []events.AccountBalanceUpdated

	// Drift correction, metadata update and sync bookkeeping commit
	// together; a crash mid-sync never leaves the ledger corrected without
	// the account row reflecting it.
	err = s.repo.Transaction(ctx, func(repo store.Repository) error {
		wallet := repo.Wallet()
		for _, assetCode := range sortedAssets(info.Balances) {
			externalBalance := info.Balances[assetCode]
			internalBalance, balErr := wallet.Balance(ctx, account.AccountUuid, assetCode)
			if balErr != nil {
				return balErr
			}
			difference := externalBalance - internalBalance
			if difference == 0 {
				continue
			}
			if difference > 0 {
				if depErr := wallet.Deposit(ctx, account.AccountUuid, assetCode, difference); depErr != nil {
					return depErr
				}
			} else {
				if wdErr := wallet.Withdraw(ctx, account.AccountUuid, assetCode, -difference); wdErr != nil {
					return wdErr
				}
			}
			changes[assetCode] = difference
			published = append(published, events.AccountBalanceUpdated{
				AccountUuid:     account.AccountUuid,
				CustodianName:   account.CustodianName,
				AssetCode:       assetCode,
				PreviousBalance: internalBalance,
				NewBalance:      externalBalance,
				Source:          "synchronization",
				Timestamp:       s.now(),
			})
		}

		syncedAt := s.now()
		account.LastKnownBalance = primaryBalance(info.Balances)
		account.LastSyncedAt = &syncedAt
		account.SyncStatus = model.SyncStatusSynced
		account.SyncError = ""
		if account.Metadata == nil {
			account.Metadata = model.JSONMap{}
		}
		account.Metadata["last_known_balances"] = info.Balances
		account.Metadata["custodian_status"] = info.Status
		return repo.CustodianAccounts().Save(ctx, account)
	})
	if err != nil {
		return s.markFailed(ctx, account, err)
	}

	for _, event := range published {
		s.publisher.Publish(ctx, event)
	}

	return Result{Status: ResultSynced, Changes: changes}
}

// SynchronizeAll runs the full active population, isolating failures per
// account.
func (s *Synchronizer) SynchronizeAll(ctx context.Context) (Summary, error) {
	accounts, err := s.repo.CustodianAccounts().ListActive(ctx)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Total: len(accounts)}
	for i := range accounts {
		result := s.SynchronizeAccount(ctx, &accounts[i])
		switch result.Status {
		case ResultSynced:
			summary.Synced++
		case ResultSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}

	log.Info().Msg(fmt.Sprintf("Balance synchronization finished: %d synced, %d skipped, %d failed of %d",
		summary.Synced, summary.Skipped, summary.Failed, summary.Total))
	return summary, nil
}

// SyncAccountStatus refreshes the custodian-reported account status. Shared
// by the scheduled jobs and the account.status_changed webhook path.
func (s *Synchronizer) SyncAccountStatus(ctx context.Context, account *model.CustodianAccount) error {
	connector, err := s.registry.Connector(account.CustodianName)
	if err != nil {
		return err
	}
	info, err := connector.GetAccountInfo(ctx, account.CustodianAccountId)
	if err != nil {
		return err
	}
	if account.Metadata == nil {
		account.Metadata = model.JSONMap{}
	}
	account.Metadata["custodian_status"] = info.Status
	if info.Status == "suspended" || info.Status == "closed" {
		account.Status = model.CustodianAccountStatusSuspended
	}
	return s.repo.CustodianAccounts().Save(ctx, account)
}

func (s *Synchronizer) markFailed(ctx context.Context, account *model.CustodianAccount, cause error) Result {
	log.Error().Err(cause).Msg(fmt.Sprintf("Balance sync failed for custodian account %s at %s", account.CustodianAccountId, account.CustodianName))
	account.SyncStatus = model.SyncStatusFailed
	account.SyncError = cause.Error()
	if err := s.repo.CustodianAccounts().Save(ctx, account); err != nil {
		log.Error().Err(err).Msg("Cannot record failed sync status")
	}
	return Result{Status: ResultFailed, Error: cause.Error()}
}

func sortedAssets(balances map[string]int64) []string {
	assets := make([]string, 0, len(balances))
	for assetCode := range balances {
		assets = append(assets, assetCode)
	}
	sort.Strings(assets)
	return assets
}

// primaryBalance picks the balance persisted in the scalar last-known slot;
// the full multi-asset map lives in metadata.
func primaryBalance(balances map[string]int64) int64 {
	assets := sortedAssets(balances)
	if len(assets) == 0 {
		return 0
	}
	return balances[assets[0]]
}
