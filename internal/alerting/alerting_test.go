package alerting

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bher20/meterledger/internal/billing"
)

func sampleAnomalyAlert() AnomalyAlert {
	return AnomalyAlert{
		OwnerID: "alice",
		Period: billing.Period{
			Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		},
		Anomalies: []billing.Anomaly{
			{Date: "2025-01-03", Previous: 102.5, Current: 101, Delta: -1.5},
		},
		Timestamp: time.Date(2025, 1, 20, 6, 0, 0, 0, time.UTC),
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"https://hooks.slack.com/services/x":   "slack",
		"https://discord.com/api/webhooks/x":   "discord",
		"https://alerts.example.org/meterhook": "generic",
	}
	for url, want := range cases {
		cfg := AlertConfig{WebhookURL: url}.Normalize()
		if cfg.WebhookType != want || !cfg.Enabled {
			t.Errorf("Normalize(%s): type=%q enabled=%v, want %q", url, cfg.WebhookType, cfg.Enabled, want)
		}
	}
	if cfg := (AlertConfig{}).Normalize(); cfg.Enabled || cfg.MinAnomaliesBeforeAlert != 1 {
		t.Errorf("empty config: %+v", cfg)
	}
}

func TestDefaultAlertConfigFromEnv(t *testing.T) {
	t.Setenv("ALERT_WEBHOOK_URL", "https://hooks.slack.com/services/x")
	t.Setenv("ALERT_WEBHOOK_TYPE", "")
	t.Setenv("ALERT_MIN_ANOMALIES", "3")
	t.Setenv("ALERT_MIN_FAILURES", "bogus")

	cfg := DefaultAlertConfig()
	if !cfg.Enabled || cfg.WebhookType != "slack" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.MinAnomaliesBeforeAlert != 3 || cfg.MinFailuresBeforeAlert != 1 {
		t.Fatalf("thresholds: %+v", cfg)
	}
}

func TestGenericAnomalyPayload(t *testing.T) {
	b, err := buildGenericAnomalyPayload(sampleAnomalyAlert())
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got["alert_type"] != "reading_anomaly" || got["owner_id"] != "alice" {
		t.Fatalf("unexpected payload: %s", b)
	}
	anomalies, ok := got["anomalies"].([]interface{})
	if !ok || len(anomalies) != 1 {
		t.Fatalf("unexpected anomalies: %s", b)
	}
	first := anomalies[0].(map[string]interface{})
	if first["delta"] != "-1.5000" || first["date"] != "2025-01-03" {
		t.Fatalf("unexpected anomaly entry: %v", first)
	}
}

func TestSlackAndDiscordPayloads(t *testing.T) {
	slack, err := buildSlackAnomalyPayload(sampleAnomalyAlert())
	if err != nil {
		t.Fatalf("slack payload: %v", err)
	}
	if !strings.Contains(string(slack), "alice") || !strings.Contains(string(slack), "2025-01-01..2025-01-31") {
		t.Errorf("slack payload missing owner or period: %s", slack)
	}

	discord, err := buildDiscordRunPayload(RunAlert{
		JobName:       "stats",
		TotalCount:    2,
		FailedCount:   2,
		FailedDetails: []OwnerFailure{{OwnerID: "bob", Error: "boom"}},
	})
	if err != nil {
		t.Fatalf("discord payload: %v", err)
	}
	if !strings.Contains(string(discord), "16711680") {
		t.Errorf("expected red embed when every owner failed: %s", discord)
	}
}

func TestSendAnomalyAlert(t *testing.T) {
	var hits int
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		body, _ = io.ReadAll(r.Body)
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type: %q", r.Header.Get("Content-Type"))
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ctx := context.Background()
	a := NewAlerter(AlertConfig{WebhookURL: srv.URL, MinAnomaliesBeforeAlert: 2}.Normalize())

	// Below threshold: nothing is sent.
	if err := a.SendAnomalyAlert(ctx, sampleAnomalyAlert()); err != nil {
		t.Fatalf("SendAnomalyAlert failed: %v", err)
	}
	if hits != 0 {
		t.Fatalf("expected no webhook call below threshold, got %d", hits)
	}

	alert := sampleAnomalyAlert()
	alert.Anomalies = append(alert.Anomalies, billing.Anomaly{Date: "2025-01-05", Previous: 110, Current: 109, Delta: -1})
	if err := a.SendAnomalyAlert(ctx, alert); err != nil {
		t.Fatalf("SendAnomalyAlert failed: %v", err)
	}
	if hits != 1 || !strings.Contains(string(body), `"reading_anomaly"`) {
		t.Fatalf("expected one generic webhook call, got %d: %s", hits, body)
	}
}

func TestSendRunAlert_WebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewAlerter(AlertConfig{WebhookURL: srv.URL}.Normalize())
	err := a.SendRunAlert(context.Background(), RunAlert{JobName: "stats", TotalCount: 1, FailedCount: 1})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}

	disabled := NewAlerter(AlertConfig{}.Normalize())
	if err := disabled.SendRunAlert(context.Background(), RunAlert{FailedCount: 5}); err != nil {
		t.Fatalf("disabled alerter returned %v", err)
	}
}
