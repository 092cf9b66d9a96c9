package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commute-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertUnitFailureRate AlertType = "unit_failure_rate"
	AlertUnitFailure     AlertType = "unit_failure"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Snapshot is the unit tally of a finished run.
type Snapshot struct {
	RunID     string         `json:"run_id"`
	Completed int            `json:"completed"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	FailedBy  map[string]int `json:"failed_by_stage,omitempty"`
	Duration  time.Duration  `json:"duration"`
}

// Total is the number of units the run touched.
func (s *Snapshot) Total() int {
	return s.Completed + s.Skipped + s.Failed
}

// FailRate is the share of touched units that were skipped or failed.
func (s *Snapshot) FailRate() float64 {
	if s.Total() == 0 {
		return 0
	}
	return float64(s.Skipped+s.Failed) / float64(s.Total())
}

// Alerter evaluates a run Snapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MetricsConfig
	client *http.Client
	now    func() time.Time
}

// NewAlerter creates a new Alerter with the given metrics config.
func NewAlerter(cfg config.MetricsConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := a.now()

	// Small runs are too noisy for a rate.
	if snap.Total() >= 5 && snap.FailRate() > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertUnitFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Unit failure rate %.1f%% exceeds threshold %.1f%% (%d skipped, %d failed of %d)",
				snap.FailRate()*100, a.cfg.FailureRateThreshold*100,
				snap.Skipped, snap.Failed, snap.Total(),
			),
			Details: map[string]any{
				"run_id":    snap.RunID,
				"fail_rate": snap.FailRate(),
				"threshold": a.cfg.FailureRateThreshold,
			},
			Timestamp: now,
		})
	}

	if snap.Failed > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertUnitFailure,
			Severity: "high",
			Message:  fmt.Sprintf("%d unit(s) failed in run %s", snap.Failed, snap.RunID),
			Details: map[string]any{
				"run_id":    snap.RunID,
				"by_stage":  snap.FailedBy,
				"completed": snap.Completed,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
