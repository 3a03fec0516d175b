package email

import (
	"context"

	"go.uber.org/zap"
)

// Provider delivers notification email. SendTemplate renders one of the
// embedded templates with data.
type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
	SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error
}

// NoOpProvider drops every message. It is used when email is disabled.
type NoOpProvider struct {
	log *zap.Logger
}

func NewNoOp(log *zap.Logger) *NoOpProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &NoOpProvider{log: log.Named("email.noop")}
}

func (p *NoOpProvider) Send(_ context.Context, to []string, subject string, _ string) error {
	p.log.Debug("email disabled, message dropped",
		zap.String("subject", subject),
		zap.Int("recipients", len(to)),
	)
	return nil
}

func (p *NoOpProvider) SendTemplate(_ context.Context, to []string, templateName string, _ map[string]any) error {
	p.log.Debug("email disabled, message dropped",
		zap.String("template", templateName),
		zap.Int("recipients", len(to)),
	)
	return nil
}
