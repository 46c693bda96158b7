package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"serpmonitor/models"
)

// Notifier delivers a stored alert somewhere a human will see it.
type Notifier interface {
	Notify(ctx context.Context, alert models.Alert) error
}

type SlackNotifier struct {
	WebhookURL string
	Client     *http.Client
}

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{WebhookURL: webhookURL, Client: &http.Client{Timeout: 10 * time.Second}}
}

func slackText(a models.Alert) string {
	return fmt.Sprintf("🚨 SerpApi Monitor Alert\n\nEngine: %s\nSeverity: %s\nTime: %s\n\nIssue:\n%s\n\nRun ID: %s",
		a.Engine,
		a.Severity,
		a.CreatedAt.Format(time.RFC3339),
		a.Message,
		a.DiagnosticRunID,
	)
}

func (n *SlackNotifier) Notify(ctx context.Context, a models.Alert) error {
	if n.WebhookURL == "" {
		return fmt.Errorf("slack webhook url not set")
	}

	jsonPayload, err := json.Marshal(map[string]string{"text": slackText(a)})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(jsonPayload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("slack api error: status %d", resp.StatusCode)
	}
	return nil
}
