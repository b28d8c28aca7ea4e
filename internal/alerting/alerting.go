package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bher20/meterledger/internal/billing"
)

// AlertConfig holds alerting configuration.
type AlertConfig struct {
	// WebhookURL is a generic webhook endpoint (Slack, Discord, or custom)
	WebhookURL string `yaml:"webhook_url"`
	// WebhookType determines the payload format: "slack", "discord", or "generic"
	WebhookType string `yaml:"webhook_type"`
	// Enabled controls whether alerts are sent
	Enabled bool `yaml:"-"`
	// MinAnomaliesBeforeAlert is how many decreasing readings an owner's
	// period needs before an anomaly alert goes out.
	MinAnomaliesBeforeAlert int `yaml:"min_anomalies"`
	// MinFailuresBeforeAlert is how many owners a worker run must fail on
	// before a run alert goes out.
	MinFailuresBeforeAlert int `yaml:"min_failures"`
	// Timeout for HTTP requests
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultAlertConfig returns config from environment variables.
func DefaultAlertConfig() AlertConfig {
	cfg := AlertConfig{
		MinAnomaliesBeforeAlert: 1,
		MinFailuresBeforeAlert:  1,
		Timeout:                 10 * time.Second,
	}
	return cfg.ApplyEnv().Normalize()
}

// ApplyEnv overrides c with any ALERT_* environment variables that are set.
// Thresholds that are not positive integers are ignored.
func (c AlertConfig) ApplyEnv() AlertConfig {
	if v := os.Getenv("ALERT_WEBHOOK_URL"); v != "" {
		c.WebhookURL = v
	}
	if v := os.Getenv("ALERT_WEBHOOK_TYPE"); v != "" {
		c.WebhookType = v
	}
	if v := os.Getenv("ALERT_MIN_ANOMALIES"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			c.MinAnomaliesBeforeAlert = n
		}
	}
	if v := os.Getenv("ALERT_MIN_FAILURES"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			c.MinFailuresBeforeAlert = n
		}
	}
	return c
}

// Normalize fills derived fields: Enabled follows WebhookURL and an empty
// WebhookType is detected from the URL.
func (c AlertConfig) Normalize() AlertConfig {
	c.Enabled = c.WebhookURL != ""
	if c.WebhookType == "" {
		// Auto-detect from URL
		if strings.Contains(c.WebhookURL, "slack.com") {
			c.WebhookType = "slack"
		} else if strings.Contains(c.WebhookURL, "discord.com") {
			c.WebhookType = "discord"
		} else {
			c.WebhookType = "generic"
		}
	}
	if c.MinAnomaliesBeforeAlert <= 0 {
		c.MinAnomaliesBeforeAlert = 1
	}
	if c.MinFailuresBeforeAlert <= 0 {
		c.MinFailuresBeforeAlert = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

// Alerter sends alerts to configured webhooks.
type Alerter struct {
	cfg    AlertConfig
	client *http.Client
}

// NewAlerter creates a new alerter instance.
func NewAlerter(cfg AlertConfig) *Alerter {
	return &Alerter{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// AnomalyAlert reports readings that went down within an owner's billing period.
type AnomalyAlert struct {
	OwnerID   string
	Period    billing.Period
	Anomalies []billing.Anomaly
	Timestamp time.Time
}

// RunAlert reports a worker run in which some owners could not be processed.
type RunAlert struct {
	JobName       string
	TotalCount    int
	SuccessCount  int
	FailedCount   int
	Duration      time.Duration
	FailedDetails []OwnerFailure
	Timestamp     time.Time
}

// OwnerFailure contains details about an owner the worker failed on.
type OwnerFailure struct {
	OwnerID string `json:"owner_id"`
	Error   string `json:"error"`
}

// SendAnomalyAlert sends an alert about decreasing meter readings.
func (a *Alerter) SendAnomalyAlert(ctx context.Context, alert AnomalyAlert) error {
	if !a.cfg.Enabled {
		return nil
	}
	if len(alert.Anomalies) < a.cfg.MinAnomaliesBeforeAlert {
		log.Printf("alerting: %d anomalies for owner=%s below threshold (%d), skipping",
			len(alert.Anomalies), alert.OwnerID, a.cfg.MinAnomaliesBeforeAlert)
		return nil
	}

	var payload []byte
	var err error
	switch a.cfg.WebhookType {
	case "slack":
		payload, err = buildSlackAnomalyPayload(alert)
	case "discord":
		payload, err = buildDiscordAnomalyPayload(alert)
	default:
		payload, err = buildGenericAnomalyPayload(alert)
	}
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}

	if err := a.post(ctx, payload); err != nil {
		return err
	}
	log.Printf("alerting: sent anomaly alert owner=%s anomalies=%d", alert.OwnerID, len(alert.Anomalies))
	return nil
}

// SendRunAlert sends an alert about owners a worker run failed on.
func (a *Alerter) SendRunAlert(ctx context.Context, alert RunAlert) error {
	if !a.cfg.Enabled {
		log.Printf("alerting: alerts disabled, skipping")
		return nil
	}
	if alert.FailedCount < a.cfg.MinFailuresBeforeAlert {
		log.Printf("alerting: %d failures below threshold (%d), skipping",
			alert.FailedCount, a.cfg.MinFailuresBeforeAlert)
		return nil
	}

	var payload []byte
	var err error
	switch a.cfg.WebhookType {
	case "slack":
		payload, err = buildSlackRunPayload(alert)
	case "discord":
		payload, err = buildDiscordRunPayload(alert)
	default:
		payload, err = buildGenericRunPayload(alert)
	}
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}

	if err := a.post(ctx, payload); err != nil {
		return err
	}
	log.Printf("alerting: sent run alert for %d failed owners", alert.FailedCount)
	return nil
}

func (a *Alerter) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func anomalyLines(anomalies []billing.Anomaly, bold string) string {
	var b strings.Builder
	for _, an := range anomalies {
		fmt.Fprintf(&b, "• %s%s%s: %s → %s kL\n", bold, an.Date, bold,
			billing.FormatUsage(an.Previous), billing.FormatUsage(an.Current))
	}
	return b.String()
}

func buildSlackAnomalyPayload(alert AnomalyAlert) ([]byte, error) {
	payload := map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]string{
					"type": "plain_text",
					"text": fmt.Sprintf(":warning: Meter readings decreased: %s", alert.OwnerID),
				},
			},
			{
				"type": "section",
				"fields": []map[string]string{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Period:*\n%s", alert.Period)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Anomalies:*\n%d", len(alert.Anomalies))},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Timestamp:*\n%s", alert.Timestamp.Format(time.RFC3339))},
				},
			},
			{
				"type": "section",
				"text": map[string]string{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Readings:*\n%s", anomalyLines(alert.Anomalies, "*")),
				},
			},
		},
	}
	return json.Marshal(payload)
}

func buildDiscordAnomalyPayload(alert AnomalyAlert) ([]byte, error) {
	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       fmt.Sprintf("Meter readings decreased: %s", alert.OwnerID),
				"description": fmt.Sprintf("%d decreasing readings in %s", len(alert.Anomalies), alert.Period),
				"color":       16776960, // Yellow
				"fields": []map[string]interface{}{
					{"name": "Readings", "value": anomalyLines(alert.Anomalies, "**"), "inline": false},
				},
				"timestamp": alert.Timestamp.Format(time.RFC3339),
			},
		},
	}
	return json.Marshal(payload)
}

func buildGenericAnomalyPayload(alert AnomalyAlert) ([]byte, error) {
	details := make([]billing.AnomalyReport, 0, len(alert.Anomalies))
	for _, an := range alert.Anomalies {
		details = append(details, billing.AnomalyReport{
			Date:     an.Date,
			Previous: billing.FormatUsage(an.Previous),
			Current:  billing.FormatUsage(an.Current),
			Delta:    billing.FormatUsage(an.Delta),
		})
	}
	payload := map[string]interface{}{
		"alert_type": "reading_anomaly",
		"owner_id":   alert.OwnerID,
		"period":     billing.NewPeriodReport(alert.Period),
		"anomalies":  details,
		"timestamp":  alert.Timestamp.Format(time.RFC3339),
	}
	return json.Marshal(payload)
}

func buildSlackRunPayload(alert RunAlert) ([]byte, error) {
	var failedList strings.Builder
	for _, f := range alert.FailedDetails {
		fmt.Fprintf(&failedList, "• *%s*: %s\n", f.OwnerID, f.Error)
	}

	emoji := ":warning:"
	if alert.FailedCount == alert.TotalCount {
		emoji = ":x:"
	}

	payload := map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]string{
					"type": "plain_text",
					"text": fmt.Sprintf("%s Worker Alert: %s", emoji, alert.JobName),
				},
			},
			{
				"type": "section",
				"fields": []map[string]string{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Status:*\n%d/%d failed", alert.FailedCount, alert.TotalCount)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Duration:*\n%s", alert.Duration.Round(time.Millisecond))},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Success:*\n%d", alert.SuccessCount)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Timestamp:*\n%s", alert.Timestamp.Format(time.RFC3339))},
				},
			},
			{
				"type": "section",
				"text": map[string]string{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Failed Owners:*\n%s", failedList.String()),
				},
			},
		},
	}
	return json.Marshal(payload)
}

func buildDiscordRunPayload(alert RunAlert) ([]byte, error) {
	var failedList strings.Builder
	for _, f := range alert.FailedDetails {
		fmt.Fprintf(&failedList, "• **%s**: %s\n", f.OwnerID, f.Error)
	}

	color := 16776960 // Yellow
	if alert.FailedCount == alert.TotalCount {
		color = 16711680 // Red
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       fmt.Sprintf("Worker Alert: %s", alert.JobName),
				"description": fmt.Sprintf("%d/%d owners failed", alert.FailedCount, alert.TotalCount),
				"color":       color,
				"fields": []map[string]interface{}{
					{"name": "Success", "value": fmt.Sprintf("%d", alert.SuccessCount), "inline": true},
					{"name": "Failed", "value": fmt.Sprintf("%d", alert.FailedCount), "inline": true},
					{"name": "Duration", "value": alert.Duration.Round(time.Millisecond).String(), "inline": true},
					{"name": "Failed Owners", "value": failedList.String(), "inline": false},
				},
				"timestamp": alert.Timestamp.Format(time.RFC3339),
			},
		},
	}
	return json.Marshal(payload)
}

func buildGenericRunPayload(alert RunAlert) ([]byte, error) {
	payload := map[string]interface{}{
		"alert_type":     "worker_run_failure",
		"job_name":       alert.JobName,
		"total_count":    alert.TotalCount,
		"success_count":  alert.SuccessCount,
		"failed_count":   alert.FailedCount,
		"duration_ms":    alert.Duration.Milliseconds(),
		"timestamp":      alert.Timestamp.Format(time.RFC3339),
		"failed_details": alert.FailedDetails,
	}
	return json.Marshal(payload)
}
