package health

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vaultline/custodian-backend/internal/breaker"
	"github.com/vaultline/custodian-backend/internal/custodian"
	"github.com/vaultline/custodian-backend/internal/pkg/cache"
	"github.com/vaultline/custodian-backend/internal/pkg/events"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Failure rates are percentages, matching breaker.Metrics.FailureRate.
const (
	unhealthyFailureRate = 70.0
	degradedFailureRate  = 30.0
)

const statusCacheTTL = time.Hour

// monitoredOperations is the fixed operation set whose circuits decide a
// custodian's health.
var monitoredOperations = []string{"getBalance", "initiateTransfer", "getTransactionStatus"}

type CustodianHealth struct {
	Custodian          string                     `json:"custodian"`
	Status             string                     `json:"status"`
	Available          bool                       `json:"available"`
	OverallFailureRate float64                    `json:"overallFailureRate"`
	Operations         map[string]breaker.Metrics `json:"operations"`
	CheckedAt          time.Time                  `json:"checkedAt"`
}

// Monitor derives per-custodian health from circuit breaker metrics and
// publishes a change event whenever the computed status differs from the
// cached one.
type Monitor struct {
	registry  *custodian.Registry
	breaker   *breaker.Breaker
	store     cache.Store
	publisher events.Publisher
	now       func() time.Time
}

func NewMonitor(registry *custodian.Registry, cb *breaker.Breaker, store cache.Store, publisher events.Publisher) *Monitor {
	return &Monitor{
		registry:  registry,
		breaker:   cb,
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

// ServiceKey names the circuit for one custodian operation.
func ServiceKey(custodianName string, operation string) string {
	return custodianName + "." + operation
}

func (m *Monitor) CheckCustodian(ctx context.Context, name string) (*CustodianHealth, error) {
	connector, err := m.registry.Connector(name)
	if err != nil {
		return nil, err
	}

	available := connector.IsAvailable(ctx)
	operations := make(map[string]breaker.Metrics, len(monitoredOperations))
	anyOpen := false
	overallFailureRate := 0.0
	for _, operation := range monitoredOperations {
		metrics := m.breaker.Metrics(ctx, ServiceKey(name, operation))
		operations[operation] = metrics
		if metrics.State == breaker.StateOpen {
			anyOpen = true
		}
		if metrics.FailureRate > overallFailureRate {
			overallFailureRate = metrics.FailureRate
		}
	}

	status := StatusHealthy
	switch {
	case !available || anyOpen || overallFailureRate >= unhealthyFailureRate:
		status = StatusUnhealthy
	case overallFailureRate >= degradedFailureRate:
		status = StatusDegraded
	}

	health := &CustodianHealth{
		Custodian:          name,
		Status:             status,
		Available:          available,
		OverallFailureRate: overallFailureRate,
		Operations:         operations,
		CheckedAt:          m.now(),
	}

	m.publishOnChange(ctx, health)

	return health, nil
}

// CheckAll computes health for every registered custodian. A single
// custodian's check failure is logged, not propagated.
func (m *Monitor) CheckAll(ctx context.Context) []CustodianHealth {
	names := m.registry.Names()
	results := make([]CustodianHealth, 0, len(names))
	for _, name := range names {
		health, err := m.CheckCustodian(ctx, name)
		if err != nil {
			log.Error().Err(err).Msg(fmt.Sprintf("Health check failed for custodian %s", name))
			continue
		}
		results = append(results, *health)
	}
	return results
}

// HealthiestCustodian scores candidates supporting the asset and returns the
// top scorer, or false when nothing scores above zero.
func (m *Monitor) HealthiestCustodian(ctx context.Context, assetCode string) (string, bool) {
	best := ""
	bestScore := 0.0
	for _, name := range m.registry.Names() {
		connector, err := m.registry.Connector(name)
		if err != nil {
			continue
		}
		if !supportsAsset(connector.GetSupportedAssets(ctx), assetCode) {
			continue
		}
		health, err := m.CheckCustodian(ctx, name)
		if err != nil {
			continue
		}
		score := 0.0
		switch health.Status {
		case StatusHealthy:
			score = 100 - health.OverallFailureRate
		case StatusDegraded:
			score = 50 - health.OverallFailureRate
		}
		if score > bestScore {
			best = name
			bestScore = score
		}
	}
	if bestScore <= 0 {
		return "", false
	}
	return best, true
}

func (m *Monitor) publishOnChange(ctx context.Context, health *CustodianHealth) {
	key := "custodian:health:" + health.Custodian
	previous, found, err := m.store.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Msg(fmt.Sprintf("Cannot read cached health status for %s", health.Custodian))
		return
	}

	if found && previous == health.Status {
		return
	}

	if found {
		log.Info().Msg(fmt.Sprintf("Custodian %s health changed: %s -> %s", health.Custodian, previous, health.Status))
	}
	m.store.Set(ctx, key, health.Status, statusCacheTTL)
	m.publisher.Publish(ctx, events.CustodianHealthChanged{
		Custodian: health.Custodian,
		OldStatus: previous,
		NewStatus: health.Status,
		Timestamp: m.now(),
	})
}

func supportsAsset(assets []string, assetCode string) bool {
	for _, asset := range assets {
		if asset == assetCode {
			return true
		}
	}
	return false
}
