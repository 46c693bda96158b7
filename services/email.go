package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"serpmonitor/models"
)

// mailSender is the part of the SendGrid client the notifier needs.
type mailSender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

type EmailNotifier struct {
	To     string
	client mailSender
}

func NewEmailNotifier(apiKey, to string) *EmailNotifier {
	return &EmailNotifier{To: to, client: sendgrid.NewSendClient(apiKey)}
}

func emailSubject(a models.Alert) string {
	return fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(a.Severity)), EngineTitle(a.Engine), truncate(a.Message, 60))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func (n *EmailNotifier) Notify(_ context.Context, a models.Alert) error {
	if n.To == "" {
		return fmt.Errorf("alert email not set")
	}

	subject := emailSubject(a)
	plainTextContent := fmt.Sprintf(`%s

ENGINE SUMMARY:
Engine: %s
Severity: %s
Time: %s

WHAT WENT WRONG:
%s

This usually means:
- SerpApi stopped parsing a section that is visible on the page
- The search engine is serving a CAPTCHA or rate-limit page
- The raw HTML could not be fetched

Open the monitoring dashboard for the full diagnostic report.

---
Run ID: %s`,
		subject,
		a.Engine,
		a.Severity,
		a.CreatedAt.Format(time.RFC3339),
		a.Message,
		a.DiagnosticRunID,
	)

	from := mail.NewEmail("SerpApi Monitor", n.To)
	to := mail.NewEmail("Admin", n.To)
	message := mail.NewSingleEmail(from, subject, to, plainTextContent, plainTextContent)

	response, err := n.client.Send(message)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
	}
	return nil
}
