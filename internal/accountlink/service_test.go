package accountlink

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultline/custodian-backend/internal/custodian"
	"github.com/vaultline/custodian-backend/internal/pkg/model"
	"github.com/vaultline/custodian-backend/internal/store"
)

type linkFixture struct {
	service   *Service
	repo      *store.MemoryRepository
	connector *custodian.MockConnector
}

func newLinkFixture(t *testing.T) *linkFixture {
	t.Helper()
	registry := custodian.NewRegistry()
	connector := custodian.NewMockConnector("paysera")
	connector.SetBalances("ext-1", map[string]int64{"EUR": 10000})
	connector.SetBalances("ext-2", map[string]int64{"EUR": 5000})
	connector.SetBalances("ext-3", map[string]int64{"EUR": 100})
	registry.Register(connector)
	repo := store.NewMemoryRepository()
	return &linkFixture{
		service:   NewService(registry, repo),
		repo:      repo,
		connector: connector,
	}
}

func activeLinks(t *testing.T, service *Service, accountUuid uuid.UUID) []model.CustodianAccount {
	t.Helper()
	links, err := service.ListForAccount(context.Background(), accountUuid)
	require.NoError(t, err)
	return links
}

func TestLinkFirstBecomesPrimary(t *testing.T) {
	fixture := newLinkFixture(t)
	accountUuid := uuid.New()

	link, err := fixture.service.Link(context.Background(), accountUuid, "paysera", "ext-1", false)
	require.NoError(t, err)

	assert.True(t, link.IsPrimary)
	assert.Equal(t, model.CustodianAccountStatusActive, link.Status)
	assert.Equal(t, "paysera", link.CustodianName)
}

func TestLinkSecondStaysSecondary(t *testing.T) {
	fixture := newLinkFixture(t)
	accountUuid := uuid.New()
	ctx := context.Background()

	_, err := fixture.service.Link(ctx, accountUuid, "paysera", "ext-1", false)
	require.NoError(t, err)
	second, err := fixture.service.Link(ctx, accountUuid, "paysera", "ext-2", false)
	require.NoError(t, err)

	assert.False(t, second.IsPrimary)
}

func TestLinkMakePrimaryDemotesExisting(t *testing.T) {
	fixture := newLinkFixture(t)
	accountUuid := uuid.New()
	ctx := context.Background()

	first, err := fixture.service.Link(ctx, accountUuid, "paysera", "ext-1", false)
	require.NoError(t, err)
	second, err := fixture.service.Link(ctx, accountUuid, "paysera", "ext-2", true)
	require.NoError(t, err)
	assert.True(t, second.IsPrimary)

	links := activeLinks(t, fixture.service, accountUuid)
	require.Len(t, links, 2)
	primaries := 0
	for _, link := range links {
		if link.IsPrimary {
			primaries++
			assert.Equal(t, second.Uuid, link.Uuid)
		}
	}
	assert.Equal(t, 1, primaries)
	_ = first
}

func TestLinkRejectsUnknownCustodian(t *testing.T) {
	fixture := newLinkFixture(t)
	_, err := fixture.service.Link(context.Background(), uuid.New(), "deutsche_bank", "ext-1", false)
	assert.ErrorIs(t, err, custodian.ErrCustodianNotFound)
}

func TestLinkRejectsInvalidExternalAccount(t *testing.T) {
	fixture := newLinkFixture(t)
	_, err := fixture.service.Link(context.Background(), uuid.New(), "paysera", "no-such-account", false)
	assert.ErrorIs(t, err, custodian.ErrInvalidAccount)
}

func TestLinkRejectsDuplicate(t *testing.T) {
	fixture := newLinkFixture(t)
	ctx := context.Background()
	accountUuid := uuid.New()

	_, err := fixture.service.Link(ctx, accountUuid, "paysera", "ext-1", false)
	require.NoError(t, err)

	_, err = fixture.service.Link(ctx, accountUuid, "paysera", "ext-1", false)
	assert.ErrorIs(t, err, ErrAlreadyLinked)
}

func TestUnlinkReassignsPrimary(t *testing.T) {
	fixture := newLinkFixture(t)
	accountUuid := uuid.New()
	ctx := context.Background()

	first, err := fixture.service.Link(ctx, accountUuid, "paysera", "ext-1", false)
	require.NoError(t, err)
	second, err := fixture.service.Link(ctx, accountUuid, "paysera", "ext-2", false)
	require.NoError(t, err)

	require.NoError(t, fixture.service.Unlink(ctx, first.Uuid))

	links := activeLinks(t, fixture.service, accountUuid)
	require.Len(t, links, 1)
	assert.Equal(t, second.Uuid, links[0].Uuid)
	assert.True(t, links[0].IsPrimary)
}

func TestUnlinkLastLink(t *testing.T) {
	fixture := newLinkFixture(t)
	accountUuid := uuid.New()
	ctx := context.Background()

	link, err := fixture.service.Link(ctx, accountUuid, "paysera", "ext-1", false)
	require.NoError(t, err)
	require.NoError(t, fixture.service.Unlink(ctx, link.Uuid))

	assert.Empty(t, activeLinks(t, fixture.service, accountUuid))
}

func TestUnlinkUnknownLink(t *testing.T) {
	fixture := newLinkFixture(t)
	err := fixture.service.Unlink(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

func TestSetPrimarySwaps(t *testing.T) {
	fixture := newLinkFixture(t)
	accountUuid := uuid.New()
	ctx := context.Background()

	_, err := fixture.service.Link(ctx, accountUuid, "paysera", "ext-1", false)
	require.NoError(t, err)
	second, err := fixture.service.Link(ctx, accountUuid, "paysera", "ext-2", false)
	require.NoError(t, err)

	require.NoError(t, fixture.service.SetPrimary(ctx, second.Uuid))

	links := activeLinks(t, fixture.service, accountUuid)
	for _, link := range links {
		assert.Equal(t, link.Uuid == second.Uuid, link.IsPrimary)
	}
}

func TestRelinkAfterUnlink(t *testing.T) {
	fixture := newLinkFixture(t)
	accountUuid := uuid.New()
	ctx := context.Background()

	link, err := fixture.service.Link(ctx, accountUuid, "paysera", "ext-1", false)
	require.NoError(t, err)
	require.NoError(t, fixture.service.Unlink(ctx, link.Uuid))

	relinked, err := fixture.service.Link(ctx, accountUuid, "paysera", "ext-1", false)
	require.NoError(t, err)
	assert.Equal(t, model.CustodianAccountStatusActive, relinked.Status)
	assert.True(t, relinked.IsPrimary)
}
