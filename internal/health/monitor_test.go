package health

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultline/custodian-backend/internal/breaker"
	"github.com/vaultline/custodian-backend/internal/custodian"
	"github.com/vaultline/custodian-backend/internal/pkg/cache"
	"github.com/vaultline/custodian-backend/internal/pkg/events"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Publishable
}

func (p *recordingPublisher) Publish(_ context.Context, message events.Publishable) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, message)
}

func (p *recordingPublisher) byTopic(topic string) []events.Publishable {
	p.mu.Lock()
	defer p.mu.Unlock()
	var matched []events.Publishable
	for _, event := range p.events {
		if event.GetEventTopicName() == topic {
			matched = append(matched, event)
		}
	}
	return matched
}

type monitorFixture struct {
	monitor   *Monitor
	breaker   *breaker.Breaker
	registry  *custodian.Registry
	store     *cache.MemoryStore
	publisher *recordingPublisher
}

func newMonitorFixture(t *testing.T, connectors ...*custodian.MockConnector) *monitorFixture {
	t.Helper()
	registry := custodian.NewRegistry()
	for _, connector := range connectors {
		registry.Register(connector)
	}
	store := cache.NewMemoryStore()
	cb := breaker.New(store, breaker.Config{})
	publisher := &recordingPublisher{}
	return &monitorFixture{
		monitor:   NewMonitor(registry, cb, store, publisher),
		breaker:   cb,
		registry:  registry,
		store:     store,
		publisher: publisher,
	}
}

func (f *monitorFixture) recordOutcomes(ctx context.Context, service string, successes int, failures int) {
	for i := 0; i < successes; i++ {
		f.breaker.Execute(ctx, service, func(context.Context) error { return nil }, nil)
	}
	for i := 0; i < failures; i++ {
		f.breaker.Execute(ctx, service, func(context.Context) error { return errors.New("down") }, nil)
	}
}

func TestCheckCustodianHealthy(t *testing.T) {
	fixture := newMonitorFixture(t, custodian.NewMockConnector("paysera"))
	ctx := context.Background()
	fixture.recordOutcomes(ctx, ServiceKey("paysera", "getBalance"), 10, 0)

	health, err := fixture.monitor.CheckCustodian(ctx, "paysera")
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, health.Status)
	assert.True(t, health.Available)
	assert.Zero(t, health.OverallFailureRate)
	assert.Len(t, health.Operations, 3)
}

func TestCheckCustodianDegradedOnElevatedFailureRate(t *testing.T) {
	fixture := newMonitorFixture(t, custodian.NewMockConnector("paysera"))
	ctx := context.Background()
	// 4/10 failures keeps all circuits closed but crosses the degraded line.
	fixture.recordOutcomes(ctx, ServiceKey("paysera", "getBalance"), 3, 2)
	fixture.recordOutcomes(ctx, ServiceKey("paysera", "getBalance"), 3, 2)

	health, err := fixture.monitor.CheckCustodian(ctx, "paysera")
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, health.Status)
	assert.InDelta(t, 40.0, health.OverallFailureRate, 0.01)
}

func TestCheckCustodianUnhealthyWhenCircuitOpen(t *testing.T) {
	fixture := newMonitorFixture(t, custodian.NewMockConnector("paysera"))
	ctx := context.Background()
	fixture.recordOutcomes(ctx, ServiceKey("paysera", "initiateTransfer"), 0, 5)

	health, err := fixture.monitor.CheckCustodian(ctx, "paysera")
	require.NoError(t, err)
	assert.Equal(t, StatusUnhealthy, health.Status)
}

func TestCheckCustodianUnhealthyWhenUnavailable(t *testing.T) {
	connector := custodian.NewMockConnector("paysera")
	connector.SetAvailable(false)
	fixture := newMonitorFixture(t, connector)

	health, err := fixture.monitor.CheckCustodian(context.Background(), "paysera")
	require.NoError(t, err)
	assert.Equal(t, StatusUnhealthy, health.Status)
	assert.False(t, health.Available)
}

func TestCheckCustodianUnknownName(t *testing.T) {
	fixture := newMonitorFixture(t)
	_, err := fixture.monitor.CheckCustodian(context.Background(), "deutsche_bank")
	assert.ErrorIs(t, err, custodian.ErrCustodianNotFound)
}

func TestHealthChangePublishedOnce(t *testing.T) {
	fixture := newMonitorFixture(t, custodian.NewMockConnector("paysera"))
	ctx := context.Background()

	_, err := fixture.monitor.CheckCustodian(ctx, "paysera")
	require.NoError(t, err)
	// First observation announces the initial status.
	require.Len(t, fixture.publisher.byTopic("custodian.health.changed"), 1)

	_, err = fixture.monitor.CheckCustodian(ctx, "paysera")
	require.NoError(t, err)
	assert.Len(t, fixture.publisher.byTopic("custodian.health.changed"), 1)

	fixture.recordOutcomes(ctx, ServiceKey("paysera", "getBalance"), 0, 5)
	_, err = fixture.monitor.CheckCustodian(ctx, "paysera")
	require.NoError(t, err)

	changes := fixture.publisher.byTopic("custodian.health.changed")
	require.Len(t, changes, 2)
	change := changes[1].(events.CustodianHealthChanged)
	assert.Equal(t, StatusHealthy, change.OldStatus)
	assert.Equal(t, StatusUnhealthy, change.NewStatus)
}

func TestCheckAllIsolatesCustodians(t *testing.T) {
	paysera := custodian.NewMockConnector("paysera")
	santander := custodian.NewMockConnector("santander")
	santander.SetAvailable(false)
	fixture := newMonitorFixture(t, paysera, santander)

	results := fixture.monitor.CheckAll(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, StatusHealthy, results[0].Status)
	assert.Equal(t, StatusUnhealthy, results[1].Status)
}

func TestHealthiestCustodianPrefersLowestFailureRate(t *testing.T) {
	fixture := newMonitorFixture(t,
		custodian.NewMockConnector("paysera"),
		custodian.NewMockConnector("santander"))
	ctx := context.Background()

	fixture.recordOutcomes(ctx, ServiceKey("paysera", "getBalance"), 8, 2)
	fixture.recordOutcomes(ctx, ServiceKey("santander", "getBalance"), 10, 0)

	name, ok := fixture.monitor.HealthiestCustodian(ctx, "EUR")
	require.True(t, ok)
	assert.Equal(t, "santander", name)
}

func TestHealthiestCustodianNoneAvailable(t *testing.T) {
	connector := custodian.NewMockConnector("paysera")
	connector.SetAvailable(false)
	fixture := newMonitorFixture(t, connector)

	_, ok := fixture.monitor.HealthiestCustodian(context.Background(), "EUR")
	assert.False(t, ok)
}

func TestHealthiestCustodianFiltersByAsset(t *testing.T) {
	fixture := newMonitorFixture(t, custodian.NewMockConnector("paysera"))

	_, ok := fixture.monitor.HealthiestCustodian(context.Background(), "GBP")
	assert.False(t, ok)
}
