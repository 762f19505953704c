package email

import (
	"context"

	"go.uber.org/zap"
)

// Template names a notification body under templates/.
type Template string

const (
	TemplateInvoiceIssued   Template = "invoice_issued"
	TemplatePaymentReminder Template = "payment_reminder"
)

//go:generate mockgen -source=provider.go -destination=./mocks/mock_provider.go -package=mocks
type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
	SendTemplate(ctx context.Context, to []string, name Template, data map[string]any) error
}

// NoOpProvider drops every message. Used when EMAIL_ENABLED is off.
type NoOpProvider struct {
	log *zap.Logger
}

func NewNoOp(log *zap.Logger) *NoOpProvider {
	return &NoOpProvider{log: log.Named("email.noop")}
}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	p.log.Debug("email suppressed", zap.Strings("to", to), zap.String("subject", subject))
	return nil
}

func (p *NoOpProvider) SendTemplate(ctx context.Context, to []string, name Template, data map[string]any) error {
	p.log.Debug("email suppressed", zap.Strings("to", to), zap.String("template", string(name)))
	return nil
}
