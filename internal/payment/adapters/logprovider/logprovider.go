// Package logprovider writes outgoing invoices to the log and returns a
// deterministic payment link. Useful for staging environments without a real provider.
package logprovider

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/practicebooks/internal/payment/domain"
	"go.uber.org/zap"
)

const ProviderName = "log"

type Provider struct {
	log     *zap.Logger
	baseURL string
}

func New(log *zap.Logger, baseURL string) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://pay.practicebooks.local/i"
	}
	return &Provider{log: log.Named("payment.log_provider"), baseURL: baseURL}
}

func (p *Provider) Name() string { return ProviderName }

func (p *Provider) SendInvoice(ctx context.Context, req domain.SendInvoiceRequest) (domain.SendInvoiceResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.SendInvoiceResult{}, err
	}
	if strings.TrimSpace(req.ReferenceID) == "" || req.Amount.IsNegative() {
		return domain.SendInvoiceResult{}, domain.ErrInvalidRequest
	}

	providerInvoiceID := "log_" + strings.ToLower(ulid.Make().String())
	p.log.Info("invoice sent",
		zap.String("reference_id", req.ReferenceID),
		zap.String("provider_invoice_id", providerInvoiceID),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("recipient_email", req.RecipientEmail),
		zap.Time("due_date", req.DueDate),
		zap.String("description", req.Description),
	)
	return domain.SendInvoiceResult{
		ProviderInvoiceID: providerInvoiceID,
		PaymentURL:        p.baseURL + "/" + providerInvoiceID,
	}, nil
}
