package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"serpmonitor/models"
)

type AlertStore interface {
	InsertAlert(ctx context.Context, alert *models.Alert) error
	CountRecentAlerts(ctx context.Context, engine, message string, since time.Time) (int, error)
}

// AlertService stores anomalies as alerts and fans them out to notifiers.
// The database is the source of truth; notifications are best effort.
type AlertService struct {
	store  AlertStore
	dedupe time.Duration
	logger *slog.Logger

	// Slack receives every alert, Email only critical ones. Nil disables.
	Slack Notifier
	Email Notifier

	notifyTimeout time.Duration
	wg            sync.WaitGroup
}

func NewAlertService(store AlertStore, dedupe time.Duration, logger *slog.Logger) *AlertService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertService{
		store:         store,
		dedupe:        dedupe,
		logger:        logger,
		notifyTimeout: 15 * time.Second,
	}
}

// Record persists one alert per anomaly. An identical alert for the same
// engine inside the dedupe window is still stored but not notified again.
func (s *AlertService) Record(ctx context.Context, engine, runID string, anomalies []models.Anomaly) ([]models.Alert, error) {
	var stored []models.Alert
	var errs []error

	for _, an := range anomalies {
		duplicate := false
		if s.dedupe > 0 {
			count, err := s.store.CountRecentAlerts(ctx, engine, an.Message, time.Now().Add(-s.dedupe))
			if err != nil {
				s.logger.Warn("alert dedupe check failed", "engine", engine, "error", err)
			}
			duplicate = err == nil && count > 0
		}

		alert := models.Alert{
			DiagnosticRunID: runID,
			Engine:          engine,
			Type:            models.AlertTypeDashboard,
			Status:          models.AlertPending,
			Message:         an.Message,
			Severity:        an.Severity,
		}
		if err := s.store.InsertAlert(ctx, &alert); err != nil {
			s.logger.Error("saving alert", "engine", engine, "error", err)
			errs = append(errs, err)
			continue
		}
		stored = append(stored, alert)
		s.logger.Info("alert created", "engine", engine, "severity", alert.Severity, "message", alert.Message)

		if duplicate {
			s.logger.Info("duplicate alert notification suppressed", "engine", engine, "message", alert.Message)
			continue
		}
		s.notify(alert)
	}

	return stored, errors.Join(errs...)
}

func (s *AlertService) notify(alert models.Alert) {
	if s.Slack != nil {
		s.dispatch("slack", s.Slack, alert)
	}
	if s.Email != nil && alert.Severity == models.SeverityCritical {
		s.dispatch("email", s.Email, alert)
	}
}

// dispatch is fire-and-forget; a panicking or failing notifier never
// reaches the scan that raised the alert.
func (s *AlertService) dispatch(channel string, n Notifier, alert models.Alert) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("notifier panic recovered", "channel", channel, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()
		if err := n.Notify(ctx, alert); err != nil {
			s.logger.Warn("notification failed", "channel", channel, "engine", alert.Engine, "error", err)
			return
		}
		s.logger.Debug("notification sent", "channel", channel, "engine", alert.Engine)
	}()
}

// Wait blocks until in-flight notifications finish.
func (s *AlertService) Wait() {
	s.wg.Wait()
}
