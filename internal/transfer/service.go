package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vaultline/custodian-backend/internal/breaker"
	"github.com/vaultline/custodian-backend/internal/custodian"
	"github.com/vaultline/custodian-backend/internal/fallback"
	"github.com/vaultline/custodian-backend/internal/health"
	"github.com/vaultline/custodian-backend/internal/pkg/events"
	"github.com/vaultline/custodian-backend/internal/pkg/model"
	"github.com/vaultline/custodian-backend/internal/retry"
	"github.com/vaultline/custodian-backend/internal/store"
)

var (
	ErrNoCustodianAccount = errors.New("no active custodian account linked")
	ErrTransferNotFound   = errors.New("transfer not found")
)

type Request struct {
	FromAccountUuid uuid.UUID
	ToAccountUuid   uuid.UUID
	Amount          int64
	AssetCode       string
	Reference       string
	Description     string
}

// Service executes transfers between internal accounts through their linked
// custodian. Both sides must be held at the same custodian; routing money
// across custodians is a settlement problem this layer refuses to fake.
type Service struct {
	registry  *custodian.Registry
	repo      store.Repository
	breaker   *breaker.Breaker
	retrier   *retry.Executor
	fallback  *fallback.Service
	publisher events.Publisher
	now       func() time.Time
}

func NewService(
	registry *custodian.Registry,
	repo store.Repository,
	cb *breaker.Breaker,
	retrier *retry.Executor,
	fallbackService *fallback.Service,
	publisher events.Publisher,
) *Service {
	return &Service{
		registry:  registry,
		repo:      repo,
		breaker:   cb,
		retrier:   retrier,
		fallback:  fallbackService,
		publisher: publisher,
		now:       time.Now,
	}
}

// Transfer validates the request, executes it at the shared custodian and
// persists the outcome. When the custodian is unreachable the transfer is
// queued for retry instead of failing outright.
func (s *Service) Transfer(ctx context.Context, request Request) (*custodian.TransactionReceipt, error) {
	if request.Amount <= 0 {
		return nil, fmt.Errorf("transfer amount must be positive")
	}

	fromLink, err := s.primaryLink(ctx, request.FromAccountUuid)
	if err != nil {
		return nil, err
	}
	toLink, err := s.primaryLink(ctx, request.ToAccountUuid)
	if err != nil {
		return nil, err
	}
	if fromLink.CustodianName != toLink.CustodianName {
		return nil, custodian.ErrCrossCustodianXfer
	}

	connector, err := s.registry.Connector(fromLink.CustodianName)
	if err != nil {
		return nil, err
	}

	custodianRequest := custodian.TransferRequest{
		FromAccountId: fromLink.CustodianAccountId,
		ToAccountId:   toLink.CustodianAccountId,
		AssetCode:     request.AssetCode,
		Amount:        request.Amount,
		Reference:     request.Reference,
		Description:   request.Description,
	}

	var receipt *custodian.TransactionReceipt
	err = s.breaker.Execute(ctx, health.ServiceKey(fromLink.CustodianName, "initiateTransfer"),
		func(ctx context.Context) error {
			return s.retrier.Execute(ctx, "initiateTransfer", func(ctx context.Context) error {
				var opErr error
				receipt, opErr = connector.InitiateTransfer(ctx, custodianRequest)
				return opErr
			}, isRetryableTransferError)
		}, nil)
	if err != nil {
		if shouldQueueForRetry(err) {
			amount := custodian.Money{Amount: request.Amount, AssetCode: request.AssetCode}
			return s.fallback.QueueTransferForRetry(ctx, fromLink.CustodianName,
				request.FromAccountUuid, request.ToAccountUuid, amount,
				request.Reference, request.Description, err.Error())
		}
		return nil, err
	}

	record := &model.CustodianTransfer{
		Id:              receipt.Id,
		FromAccountUuid: request.FromAccountUuid,
		ToAccountUuid:   request.ToAccountUuid,
		CustodianName:   fromLink.CustodianName,
		Amount:          request.Amount,
		Fee:             receipt.Fee,
		AssetCode:       request.AssetCode,
		Status:          receipt.Status,
		TransferType:    "internal",
		Reference:       request.Reference,
		Description:     request.Description,
		CreatedAt:       s.now(),
		CompletedAt:     receipt.CompletedAt,
	}
	if err := s.repo.CustodianTransfers().Create(ctx, record); err != nil {
		// Custodian accepted the transfer; losing the local record must not
		// fail the operation.
		log.Error().Err(err).Msg(fmt.Sprintf("Cannot persist transfer %s", receipt.Id))
	}

	s.publisher.Publish(ctx, events.TransactionStatusUpdated{
		Custodian:     fromLink.CustodianName,
		TransactionId: receipt.Id,
		Status:        receipt.Status,
	})

	log.Info().Msg(fmt.Sprintf("Transfer %s executed at %s: %d %s", receipt.Id, fromLink.CustodianName, request.Amount, request.AssetCode))
	return receipt, nil
}

// TransferStatus reads the live status from the custodian, falling back to
// the persisted record when the custodian is unreachable.
func (s *Service) TransferStatus(ctx context.Context, transferId string) (*custodian.TransactionReceipt, error) {
	record, err := s.repo.CustodianTransfers().FindById(ctx, transferId)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}

	connector, err := s.registry.Connector(record.CustodianName)
	if err != nil {
		return nil, err
	}

	var receipt *custodian.TransactionReceipt
	err = s.breaker.Execute(ctx, health.ServiceKey(record.CustodianName, "getTransactionStatus"),
		func(ctx context.Context) error {
			var opErr error
			receipt, opErr = connector.GetTransactionStatus(ctx, transferId)
			return opErr
		},
		func(ctx context.Context) error {
			var fbErr error
			receipt, fbErr = s.fallback.GetFallbackTransferStatus(ctx, record.CustodianName, transferId)
			return fbErr
		})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (s *Service) primaryLink(ctx context.Context, accountUuid uuid.UUID) (*model.CustodianAccount, error) {
	links, err := s.repo.CustodianAccounts().FindActiveByAccount(ctx, accountUuid)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, fmt.Errorf("%w for account %s", ErrNoCustodianAccount, accountUuid)
	}
	for i := range links {
		if links[i].IsPrimary {
			return &links[i], nil
		}
	}
	return &links[0], nil
}

func isRetryableTransferError(err error) bool {
	return !errors.Is(err, custodian.ErrInvalidAccount) && !errors.Is(err, custodian.ErrCrossCustodianXfer)
}

func shouldQueueForRetry(err error) bool {
	var circuitOpen *breaker.CircuitOpenError
	var retriesExceeded *retry.MaxRetriesExceededError
	return errors.As(err, &circuitOpen) || errors.As(err, &retriesExceeded)
}
