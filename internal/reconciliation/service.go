package reconciliation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vaultline/custodian-backend/internal/balancesync"
	"github.com/vaultline/custodian-backend/internal/custodian"
	"github.com/vaultline/custodian-backend/internal/health"
	"github.com/vaultline/custodian-backend/internal/pkg/events"
	"github.com/vaultline/custodian-backend/internal/pkg/mail"
	"github.com/vaultline/custodian-backend/internal/store"
)

// criticalDifference is the minor-unit threshold above which a discrepancy
// triggers an immediate alert in addition to the batch report.
const criticalDifference = 100000

const (
	DiscrepancyBalanceMismatch = "balance_mismatch"
	DiscrepancyOrphanedBalance = "orphaned_balance"
	DiscrepancyStaleData       = "stale_data"
)

type Discrepancy struct {
	Type            string    `json:"type"`
	AccountUuid     uuid.UUID `json:"accountUuid"`
	AssetCode       string    `json:"assetCode,omitempty"`
	InternalBalance int64     `json:"internalBalance"`
	ExternalBalance int64     `json:"externalBalance"`
	Difference      int64     `json:"difference"`
	Message         string    `json:"message,omitempty"`
	DetectedAt      time.Time `json:"detectedAt"`
}

type SkippedCustodian struct {
	Custodian   string    `json:"custodian"`
	AccountUuid uuid.UUID `json:"accountUuid"`
	Reason      string    `json:"reason"`
}

type Summary struct {
	Date                   string              `json:"date"`
	StartedAt              time.Time           `json:"startedAt"`
	FinishedAt             time.Time           `json:"finishedAt"`
	Status                 string              `json:"status"`
	AccountsChecked        int                 `json:"accountsChecked"`
	DiscrepanciesFound     int                 `json:"discrepanciesFound"`
	TotalDiscrepancyAmount int64               `json:"totalDiscrepancyAmount"`
	Synchronization        balancesync.Summary `json:"synchronization"`
	SkippedCustodians      []SkippedCustodian  `json:"skippedCustodians"`
}

type Report struct {
	Summary         Summary       `json:"summary"`
	Discrepancies   []Discrepancy `json:"discrepancies"`
	Recommendations []string      `json:"recommendations"`
	GeneratedAt     time.Time     `json:"generated_at"`
}

// Service orchestrates the daily reconciliation run: full balance
// synchronization, discrepancy detection, alerting and report persistence.
type Service struct {
	synchronizer *balancesync.Synchronizer
	registry     *custodian.Registry
	repo         store.Repository
	reports      ReportStore
	publisher    events.Publisher
	notifier     health.Notifier
	mailer       mail.Mailer
	recipients   []string
	now          func() time.Time
}

func NewService(
	synchronizer *balancesync.Synchronizer,
	registry *custodian.Registry,
	repo store.Repository,
	reports ReportStore,
	publisher events.Publisher,
	notifier health.Notifier,
	mailer mail.Mailer,
	recipients []string,
) *Service {
	return &Service{
		synchronizer: synchronizer,
		registry:     registry,
		repo:         repo,
		reports:      reports,
		publisher:    publisher,
		notifier:     notifier,
		mailer:       mailer,
		recipients:   recipients,
		now:          time.Now,
	}
}

// Run performs a full reconciliation and returns the generated report.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	startedAt := s.now()
	log.Info().Msg("Starting daily reconciliation")

	summary := Summary{
		Date:      reportDate(startedAt),
		StartedAt: startedAt,
		Status:    "in_progress",
	}

	syncSummary, err := s.synchronizer.SynchronizeAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconciliation balance sync failed: %w", err)
	}
	summary.Synchronization = syncSummary

	discrepancies, skipped, err := s.runChecks(ctx, &summary)
	if err != nil {
		return nil, err
	}
	summary.SkippedCustodians = skipped
	summary.DiscrepanciesFound = len(discrepancies)
	for _, discrepancy := range discrepancies {
		summary.TotalDiscrepancyAmount += discrepancy.Difference
	}
	summary.FinishedAt = s.now()
	summary.Status = "completed"

	report := &Report{
		Summary:         summary,
		Discrepancies:   discrepancies,
		Recommendations: s.recommendations(discrepancies),
		GeneratedAt:     s.now(),
	}

	s.handleDiscrepancies(ctx, report)

	if err := s.reports.Save(report); err != nil {
		log.Error().Err(err).Msg("Cannot persist reconciliation report")
	}

	s.publisher.Publish(ctx, events.ReconciliationCompleted{
		Date:               summary.Date,
		AccountsChecked:    summary.AccountsChecked,
		DiscrepanciesFound: summary.DiscrepanciesFound,
		Status:             summary.Status,
		Timestamp:          s.now(),
	})

	return report, nil
}

func (s *Service) LatestReport() (*Report, error) {
	return s.reports.Latest()
}

func (s *Service) runChecks(ctx context.Context, summary *Summary) ([]Discrepancy, []SkippedCustodian, error) {
	accounts, err := s.repo.Accounts().ListAll(ctx)
	if err != nil {
		return nil, nil, err
	}

	var discrepancies []Discrepancy
	var skipped []SkippedCustodian
	for _, account := range accounts {
		summary.AccountsChecked++

		accountDiscrepancies, accountSkipped := s.checkAccountBalances(ctx, account.Uuid)
		discrepancies = append(discrepancies, accountDiscrepancies...)
		skipped = append(skipped, accountSkipped...)

		if orphaned := s.checkOrphanedBalances(ctx, account.Uuid); orphaned != nil {
			discrepancies = append(discrepancies, *orphaned)
		}
	}
	return discrepancies, skipped, nil
}

// checkAccountBalances compares the ledger's balances against the aggregate
// across the account's active custodian links. An unavailable custodian is
// skipped and reported, not treated as a discrepancy.
func (s *Service) checkAccountBalances(ctx context.Context, accountUuid uuid.UUID) ([]Discrepancy, []SkippedCustodian) {
	internal, err := s.repo.Wallet().Balances(ctx, accountUuid)
	if err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Cannot read internal balances for account %s", accountUuid))
		return nil, nil
	}

	links, err := s.repo.CustodianAccounts().FindActiveByAccount(ctx, accountUuid)
	if err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Cannot list custodian accounts for account %s", accountUuid))
		return nil, nil
	}
	if len(links) == 0 {
		return nil, nil
	}

	external := map[string]int64{}
	var skipped []SkippedCustodian
	for _, link := range links {
		connector, err := s.registry.Connector(link.CustodianName)
		if err != nil {
			skipped = append(skipped, SkippedCustodian{Custodian: link.CustodianName, AccountUuid: accountUuid, Reason: err.Error()})
			continue
		}
		if !connector.IsAvailable(ctx) {
			log.Warn().Msg(fmt.Sprintf("Custodian %s not available for reconciliation of account %s", link.CustodianName, accountUuid))
			skipped = append(skipped, SkippedCustodian{Custodian: link.CustodianName, AccountUuid: accountUuid, Reason: "custodian not available"})
			continue
		}
		info, err := connector.GetAccountInfo(ctx, link.CustodianAccountId)
		if err != nil {
			log.Error().Err(err).Msg(fmt.Sprintf("Cannot fetch external balances from %s for account %s", link.CustodianName, accountUuid))
			skipped = append(skipped, SkippedCustodian{Custodian: link.CustodianName, AccountUuid: accountUuid, Reason: err.Error()})
			continue
		}
		for assetCode, amount := range info.Balances {
			external[assetCode] += amount
		}
	}

	// A partial external aggregate cannot support a mismatch verdict; the
	// skipped custodians are reported instead.
	if len(skipped) > 0 {
		return nil, skipped
	}

	// Assets can be held on either side only: a ledger with no row for an
	// asset reads as zero, same as wallet lookups.
	union := make(map[string]int64, len(internal)+len(external))
	for assetCode := range internal {
		union[assetCode] = 0
	}
	for assetCode := range external {
		union[assetCode] = 0
	}

	var discrepancies []Discrepancy
	for _, assetCode := range sortedKeys(union) {
		internalAmount := internal[assetCode]
		externalAmount := external[assetCode]
		if internalAmount == externalAmount {
			continue
		}
		discrepancy := Discrepancy{
			Type:            DiscrepancyBalanceMismatch,
			AccountUuid:     accountUuid,
			AssetCode:       assetCode,
			InternalBalance: internalAmount,
			ExternalBalance: externalAmount,
			Difference:      abs(internalAmount - externalAmount),
			DetectedAt:      s.now(),
		}
		discrepancies = append(discrepancies, discrepancy)
		s.publisher.Publish(ctx, events.ReconciliationDiscrepancyFound{
			Type:            discrepancy.Type,
			AccountUuid:     discrepancy.AccountUuid,
			AssetCode:       discrepancy.AssetCode,
			InternalBalance: discrepancy.InternalBalance,
			ExternalBalance: discrepancy.ExternalBalance,
			Difference:      discrepancy.Difference,
			DetectedAt:      discrepancy.DetectedAt,
		})
		log.Warn().Msg(fmt.Sprintf("Reconciliation discrepancy: account %s asset %s internal %d external %d",
			accountUuid, assetCode, internalAmount, externalAmount))
	}
	return discrepancies, skipped
}

// checkOrphanedBalances flags ledger balances with zero linked custodian
// accounts.
func (s *Service) checkOrphanedBalances(ctx context.Context, accountUuid uuid.UUID) *Discrepancy {
	internal, err := s.repo.Wallet().Balances(ctx, accountUuid)
	if err != nil || len(internal) == 0 {
		return nil
	}
	links, err := s.repo.CustodianAccounts().FindActiveByAccount(ctx, accountUuid)
	if err != nil || len(links) > 0 {
		return nil
	}
	return &Discrepancy{
		Type:        DiscrepancyOrphanedBalance,
		AccountUuid: accountUuid,
		Message:     "account has ledger balances but no custodian accounts",
		DetectedAt:  s.now(),
	}
}

func (s *Service) recommendations(discrepancies []Discrepancy) []string {
	var recommendations []string
	mismatches := 0
	orphaned := 0
	stale := 0
	for _, discrepancy := range discrepancies {
		switch discrepancy.Type {
		case DiscrepancyBalanceMismatch:
			mismatches++
		case DiscrepancyOrphanedBalance:
			orphaned++
		case DiscrepancyStaleData:
			stale++
		}
	}
	if mismatches > 0 {
		recommendations = append(recommendations, "Investigate and resolve balance discrepancies immediately")
	}
	if stale > 0 {
		recommendations = append(recommendations, fmt.Sprintf("Force synchronization for %d accounts with stale data", stale))
	}
	if orphaned > 0 {
		recommendations = append(recommendations, fmt.Sprintf("Review %d accounts with orphaned balances", orphaned))
	}
	return recommendations
}

func (s *Service) handleDiscrepancies(ctx context.Context, report *Report) {
	if len(report.Discrepancies) == 0 {
		return
	}

	critical := 0
	var criticalAmount int64
	for _, discrepancy := range report.Discrepancies {
		if discrepancy.Difference > criticalDifference {
			critical++
			criticalAmount += discrepancy.Difference
		}
	}
	if critical > 0 {
		if err := s.notifier.SendAlert(ctx, health.Alert{
			Custodian: "reconciliation",
			Severity:  health.SeverityCritical,
			Title:     "Critical reconciliation discrepancies found",
			Message:   fmt.Sprintf("%d discrepancies above threshold, total amount %d", critical, criticalAmount),
			Timestamp: s.now(),
		}); err != nil {
			log.Error().Err(err).Msg("Cannot send critical reconciliation alert")
		}
	}

	if len(s.recipients) > 0 {
		subject := fmt.Sprintf("Reconciliation report %s: %d discrepancies", report.Summary.Date, len(report.Discrepancies))
		if err := s.mailer.Send(ctx, s.recipients, subject, report); err != nil {
			log.Error().Err(err).Msg("Cannot send reconciliation report email")
		}
	}
}

func sortedKeys(balances map[string]int64) []string {
	keys := make([]string, 0, len(balances))
	for key := range balances {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func abs(value int64) int64 {
	if value < 0 {
		return -value
	}
	return value
}
