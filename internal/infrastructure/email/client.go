// Package email provides the email client for sending transactional emails.
package email

import (
	"fmt"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
	"github.com/AtRiskMedia/reportcache-go/internal/infrastructure/email/templates"
	"github.com/AtRiskMedia/reportcache-go/pkg/config"
	"github.com/resendlabs/resend-go"
)

// Service defines the interface for sending emails, allowing for mock implementations in tests.
type Service interface {
	SendQuotaExhaustedEmail(toEmail string, usage *research.Usage) error
}

// ResendClient is the concrete implementation of the email Service using the Resend API.
type ResendClient struct {
	client     *resend.Client
	fromEmail  string
	fromName   string
	upgradeURL string
}

// NewService creates a new email service client, returning the Service interface.
func NewService(cfg *config.Config) (Service, error) {
	if cfg.ResendAPIKey == "" {
		return nil, fmt.Errorf("RESEND_API_KEY environment variable is required")
	}
	return &ResendClient{
		client:     resend.NewClient(cfg.ResendAPIKey),
		fromEmail:  cfg.EmailFrom,
		fromName:   cfg.EmailFromName,
		upgradeURL: cfg.UpgradeURL,
	}, nil
}

// SendQuotaExhaustedEmail composes and sends the allowance-used-up notice.
func (c *ResendClient) SendQuotaExhaustedEmail(toEmail string, usage *research.Usage) error {
	html, err := RenderQuotaExhausted(usage, c.upgradeURL)
	if err != nil {
		return err
	}

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", c.fromName, c.fromEmail),
		To:      []string{toEmail},
		Subject: "You've used all your research reports",
		Html:    html,
	}

	if _, err := c.client.Emails.Send(params); err != nil {
		return fmt.Errorf("failed to send quota email via Resend: %w", err)
	}
	return nil
}

// RenderQuotaExhausted builds the HTML body of the allowance notice.
func RenderQuotaExhausted(usage *research.Usage, upgradeURL string) (string, error) {
	content := templates.GetQuotaExhaustedContent(templates.QuotaExhaustedProps{
		Tier:       usage.Tier,
		Limit:      usage.Limit,
		ResetsAt:   usage.ResetsAt,
		UpgradeURL: upgradeURL,
	})
	html, err := templates.GetEmailLayout(templates.EmailLayoutProps{
		Preheader: "Your report allowance is used up",
		Content:   content,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render quota email: %w", err)
	}
	return html, nil
}
