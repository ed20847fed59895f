package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultline/custodian-backend/internal/breaker"
	"github.com/vaultline/custodian-backend/internal/custodian"
	"github.com/vaultline/custodian-backend/internal/pkg/cache"
	"github.com/vaultline/custodian-backend/internal/pkg/events"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []Alert
}

func (n *recordingNotifier) SendAlert(_ context.Context, alert Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *recordingNotifier) sent() []Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Alert(nil), n.alerts...)
}

func newAlertingFixture(t *testing.T, connectors ...*custodian.MockConnector) (*AlertingService, *recordingNotifier, *monitorFixture) {
	t.Helper()
	fixture := newMonitorFixture(t, connectors...)
	notifier := &recordingNotifier{}
	alerting := NewAlertingService(fixture.monitor, fixture.store, notifier, DefaultAlertCooldown)
	return alerting, notifier, fixture
}

func TestHandleHealthChangeSeverities(t *testing.T) {
	tests := []struct {
		name      string
		newStatus string
		severity  string
		alerted   bool
	}{
		{"unhealthy is critical", StatusUnhealthy, SeverityCritical, true},
		{"degraded is warning", StatusDegraded, SeverityWarning, true},
		{"recovery is not alerted", StatusHealthy, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerting, notifier, _ := newAlertingFixture(t)

			alerting.HandleHealthChange(context.Background(), events.CustodianHealthChanged{
				Custodian: "paysera",
				OldStatus: StatusHealthy,
				NewStatus: tt.newStatus,
			})

			alerts := notifier.sent()
			if !tt.alerted {
				assert.Empty(t, alerts)
				return
			}
			require.Len(t, alerts, 1)
			assert.Equal(t, tt.severity, alerts[0].Severity)
			assert.Equal(t, "paysera", alerts[0].Custodian)
		})
	}
}

func TestHandleHealthChangeCooldownSuppressesRepeats(t *testing.T) {
	alerting, notifier, _ := newAlertingFixture(t)
	ctx := context.Background()

	change := events.CustodianHealthChanged{
		Custodian: "paysera",
		OldStatus: StatusHealthy,
		NewStatus: StatusUnhealthy,
	}
	alerting.HandleHealthChange(ctx, change)
	alerting.HandleHealthChange(ctx, change)

	assert.Len(t, notifier.sent(), 1)
}

func TestHandleHealthChangeCooldownIsPerSeverity(t *testing.T) {
	alerting, notifier, _ := newAlertingFixture(t)
	ctx := context.Background()

	alerting.HandleHealthChange(ctx, events.CustodianHealthChanged{
		Custodian: "paysera",
		OldStatus: StatusHealthy,
		NewStatus: StatusUnhealthy,
	})
	alerting.HandleHealthChange(ctx, events.CustodianHealthChanged{
		Custodian: "paysera",
		OldStatus: StatusUnhealthy,
		NewStatus: StatusDegraded,
	})

	alerts := notifier.sent()
	require.Len(t, alerts, 2)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)
	assert.Equal(t, SeverityWarning, alerts[1].Severity)
}

func TestHandleHealthChangeCooldownExpires(t *testing.T) {
	alerting, notifier, fixture := newAlertingFixture(t)
	ctx := context.Background()

	clock := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	fixture.store.SetClock(func() time.Time { return clock })

	change := events.CustodianHealthChanged{
		Custodian: "paysera",
		OldStatus: StatusHealthy,
		NewStatus: StatusUnhealthy,
	}
	alerting.HandleHealthChange(ctx, change)

	clock = clock.Add(31 * time.Minute)
	alerting.HandleHealthChange(ctx, change)

	assert.Len(t, notifier.sent(), 2)
}

func TestHealthChangeSubscriptionDeliversAlerts(t *testing.T) {
	paysera := custodian.NewMockConnector("paysera")
	registry := custodian.NewRegistry()
	registry.Register(paysera)
	store := cache.NewMemoryStore()
	dispatcher := events.NewDispatcher(events.LogPublisher{})
	monitor := NewMonitor(registry, breaker.New(store, breaker.Config{}), store, dispatcher)
	notifier := &recordingNotifier{}
	alerting := NewAlertingService(monitor, store, notifier, DefaultAlertCooldown)
	dispatcher.Subscribe(HealthChangeSubscription(alerting))

	ctx := context.Background()
	_, err := monitor.CheckCustodian(ctx, "paysera")
	require.NoError(t, err)
	assert.Empty(t, notifier.sent(), "healthy first observation must not alert")

	paysera.SetAvailable(false)
	_, err = monitor.CheckCustodian(ctx, "paysera")
	require.NoError(t, err)

	alerts := notifier.sent()
	require.Len(t, alerts, 1)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)
	assert.Equal(t, "paysera", alerts[0].Custodian)
}

func TestPerformHealthCheckCritical(t *testing.T) {
	paysera := custodian.NewMockConnector("paysera")
	santander := custodian.NewMockConnector("santander")
	paysera.SetAvailable(false)
	santander.SetAvailable(false)
	alerting, notifier, _ := newAlertingFixture(t, paysera, santander)

	results := alerting.PerformHealthCheck(context.Background())

	require.Len(t, results, 2)
	alerts := notifier.sent()
	require.Len(t, alerts, 1)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)
	assert.Equal(t, "system", alerts[0].Custodian)
}

func TestPerformHealthCheckWarning(t *testing.T) {
	paysera := custodian.NewMockConnector("paysera")
	santander := custodian.NewMockConnector("santander")
	santander.SetAvailable(false)
	alerting, notifier, _ := newAlertingFixture(t, paysera, santander)

	alerting.PerformHealthCheck(context.Background())

	alerts := notifier.sent()
	require.Len(t, alerts, 1)
	assert.Equal(t, SeverityWarning, alerts[0].Severity)
}

func TestPerformHealthCheckAllHealthy(t *testing.T) {
	alerting, notifier, _ := newAlertingFixture(t,
		custodian.NewMockConnector("paysera"),
		custodian.NewMockConnector("santander"))

	results := alerting.PerformHealthCheck(context.Background())

	require.Len(t, results, 2)
	assert.Empty(t, notifier.sent())
}
