package accountlink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vaultline/custodian-backend/internal/custodian"
	"github.com/vaultline/custodian-backend/internal/pkg/model"
	"github.com/vaultline/custodian-backend/internal/store"
)

var (
	ErrAlreadyLinked = errors.New("custodian account already linked")
	ErrLinkNotFound  = errors.New("custodian account link not found")
)

// Service maintains the links between internal accounts and their custodian
// accounts. An account keeps exactly one primary link while it has any
// active link at all.
type Service struct {
	registry *custodian.Registry
	repo     store.Repository
	now      func() time.Time
}

func NewService(registry *custodian.Registry, repo store.Repository) *Service {
	return &Service{registry: registry, repo: repo, now: time.Now}
}

// Link validates the external account with its custodian and records the
// link. The first active link of an account becomes primary.
func (s *Service) Link(ctx context.Context, accountUuid uuid.UUID, custodianName string, custodianAccountId string, makePrimary bool) (*model.CustodianAccount, error) {
	connector, err := s.registry.Connector(custodianName)
	if err != nil {
		return nil, err
	}
	if !connector.ValidateAccount(ctx, custodianAccountId) {
		return nil, fmt.Errorf("%w: %s at %s", custodian.ErrInvalidAccount, custodianAccountId, custodianName)
	}

	existing, err := s.repo.CustodianAccounts().FindByCustodianRef(ctx, custodianName, custodianAccountId)
	if err != nil && err != store.ErrNotFound {
		return nil, err
	}
	if existing != nil && existing.Status == model.CustodianAccountStatusActive {
		return nil, ErrAlreadyLinked
	}

	active, err := s.repo.CustodianAccounts().FindActiveByAccount(ctx, accountUuid)
	if err != nil {
		return nil, err
	}
	isPrimary := makePrimary || len(active) == 0

	link := &model.CustodianAccount{
		Uuid:               uuid.New(),
		AccountUuid:        accountUuid,
		CustodianName:      custodianName,
		CustodianAccountId: custodianAccountId,
		Status:             model.CustodianAccountStatusActive,
		IsPrimary:          isPrimary,
		SyncStatus:         model.SyncStatusSkipped,
		CreatedAt:          s.now(),
	}

	err = s.repo.Transaction(ctx, func(repo store.Repository) error {
		if isPrimary {
			if err := repo.CustodianAccounts().ClearPrimary(ctx, accountUuid); err != nil {
				return err
			}
		}
		if existing != nil {
			existing.Status = model.CustodianAccountStatusActive
			existing.AccountUuid = accountUuid
			existing.IsPrimary = isPrimary
			link = existing
			return repo.CustodianAccounts().Save(ctx, existing)
		}
		return repo.CustodianAccounts().Create(ctx, link)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Msg(fmt.Sprintf("Linked custodian account %s at %s to account %s", custodianAccountId, custodianName, accountUuid))
	return link, nil
}

// Unlink deactivates a link. When the primary link is removed the oldest
// remaining active link takes over as primary.
func (s *Service) Unlink(ctx context.Context, linkUuid uuid.UUID) error {
	link, err := s.findLink(ctx, linkUuid)
	if err != nil {
		return err
	}

	wasPrimary := link.IsPrimary
	link.Status = model.CustodianAccountStatusUnlinked
	link.IsPrimary = false

	return s.repo.Transaction(ctx, func(repo store.Repository) error {
		if err := repo.CustodianAccounts().Save(ctx, link); err != nil {
			return err
		}
		if !wasPrimary {
			return nil
		}
		remaining, err := repo.CustodianAccounts().FindActiveByAccount(ctx, link.AccountUuid)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			return nil
		}
		successor := remaining[0]
		successor.IsPrimary = true
		return repo.CustodianAccounts().Save(ctx, &successor)
	})
}

// SetPrimary promotes one active link and demotes the rest.
func (s *Service) SetPrimary(ctx context.Context, linkUuid uuid.UUID) error {
	link, err := s.findLink(ctx, linkUuid)
	if err != nil {
		return err
	}
	if link.Status != model.CustodianAccountStatusActive {
		return fmt.Errorf("cannot promote %s link to primary", link.Status)
	}
	return s.repo.Transaction(ctx, func(repo store.Repository) error {
		if err := repo.CustodianAccounts().ClearPrimary(ctx, link.AccountUuid); err != nil {
			return err
		}
		link.IsPrimary = true
		return repo.CustodianAccounts().Save(ctx, link)
	})
}

func (s *Service) ListForAccount(ctx context.Context, accountUuid uuid.UUID) ([]model.CustodianAccount, error) {
	return s.repo.CustodianAccounts().FindActiveByAccount(ctx, accountUuid)
}

func (s *Service) findLink(ctx context.Context, linkUuid uuid.UUID) (*model.CustodianAccount, error) {
	link, err := s.repo.CustodianAccounts().FindByUuid(ctx, linkUuid)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return link, nil
}
