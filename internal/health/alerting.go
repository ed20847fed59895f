package health

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vaultline/custodian-backend/internal/pkg/cache"
	"github.com/vaultline/custodian-backend/internal/pkg/events"
)

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

const DefaultAlertCooldown = 30 * time.Minute

type Alert struct {
	Custodian string    `json:"custodian"`
	Severity  string    `json:"severity"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier routes alerts to the operations team. Delivery failures are the
// notifier's problem; alerting never blocks the operation it reports on.
type Notifier interface {
	SendAlert(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the log. Stand-in for real channels.
type LogNotifier struct{}

func (LogNotifier) SendAlert(_ context.Context, alert Alert) error {
	event := log.Warn()
	if alert.Severity == SeverityCritical {
		event = log.Error()
	}
	event.
		Str("custodian", alert.Custodian).
		Str("severity", alert.Severity).
		Msg(alert.Title + ": " + alert.Message)
	return nil
}

// AlertingService turns health-change events into rate-limited alerts.
type AlertingService struct {
	monitor  *Monitor
	store    cache.Store
	notifier Notifier
	cooldown time.Duration
	now      func() time.Time
}

func NewAlertingService(monitor *Monitor, store cache.Store, notifier Notifier, cooldown time.Duration) *AlertingService {
	if cooldown <= 0 {
		cooldown = DefaultAlertCooldown
	}
	return &AlertingService{
		monitor:  monitor,
		store:    store,
		notifier: notifier,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// HealthChangeSubscription binds the alerting service to the health-change
// topic of an event dispatcher.
func HealthChangeSubscription(alerting *AlertingService) events.SubscriptionHandler {
	return events.SubscriptionHandler{
		Topic: events.CustodianHealthChanged{}.GetEventTopicName(),
		Handler: func(ctx context.Context, message events.Publishable) {
			if change, ok := message.(events.CustodianHealthChanged); ok {
				alerting.HandleHealthChange(ctx, change)
			}
		},
	}
}

// HandleHealthChange maps a status transition to a severity and sends the
// alert unless the per-(custodian, severity) cooldown window is active.
func (s *AlertingService) HandleHealthChange(ctx context.Context, change events.CustodianHealthChanged) {
	severity := severityFor(change.NewStatus)
	if severity == SeverityInfo {
		return
	}

	if !s.acquireCooldown(ctx, change.Custodian, severity) {
		log.Debug().Msg(fmt.Sprintf("Alert suppressed by cooldown for custodian %s (%s)", change.Custodian, severity))
		return
	}

	s.send(ctx, Alert{
		Custodian: change.Custodian,
		Severity:  severity,
		Title:     fmt.Sprintf("Custodian %s is %s", change.Custodian, change.NewStatus),
		Message:   fmt.Sprintf("Health status changed from %s to %s", displayStatus(change.OldStatus), change.NewStatus),
		Timestamp: s.now(),
	})
}

// PerformHealthCheck scans the whole custodian population and raises a
// system-wide alert when multiple custodians are in trouble at once.
func (s *AlertingService) PerformHealthCheck(ctx context.Context) []CustodianHealth {
	results := s.monitor.CheckAll(ctx)

	unhealthy := 0
	degraded := 0
	for _, health := range results {
		switch health.Status {
		case StatusUnhealthy:
			unhealthy++
		case StatusDegraded:
			degraded++
		}
	}

	severity := ""
	switch {
	case unhealthy >= 2 || (unhealthy >= 1 && degraded >= 1):
		severity = SeverityCritical
	case unhealthy == 1 || degraded >= 2:
		severity = SeverityWarning
	}
	if severity == "" {
		return results
	}

	if !s.acquireCooldown(ctx, "system", severity) {
		return results
	}

	s.send(ctx, Alert{
		Custodian: "system",
		Severity:  severity,
		Title:     "Custodian system health degraded",
		Message:   fmt.Sprintf("%d unhealthy and %d degraded custodians", unhealthy, degraded),
		Timestamp: s.now(),
	})
	return results
}

func (s *AlertingService) acquireCooldown(ctx context.Context, key string, severity string) bool {
	acquired, err := s.store.SetNX(ctx, fmt.Sprintf("bank_alert:cooldown:%s:%s", key, severity), "1", s.cooldown)
	if err != nil {
		// When the cooldown flag cannot be checked the alert still goes out.
		log.Warn().Err(err).Msg("Cannot check alert cooldown flag")
		return true
	}
	return acquired
}

func (s *AlertingService) send(ctx context.Context, alert Alert) {
	if err := s.notifier.SendAlert(ctx, alert); err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Failed to send %s alert for %s", alert.Severity, alert.Custodian))
	}
}

func severityFor(newStatus string) string {
	switch newStatus {
	case StatusUnhealthy:
		return SeverityCritical
	case StatusDegraded:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

func displayStatus(status string) string {
	if status == "" {
		return "unknown"
	}
	return status
}
