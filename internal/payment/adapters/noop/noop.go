// Package noop accepts every invoice without contacting anyone. It is the
// default provider for local development and tests.
package noop

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/practicebooks/internal/payment/domain"
)

const ProviderName = "noop"

type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Name() string { return ProviderName }

func (p *Provider) SendInvoice(ctx context.Context, req domain.SendInvoiceRequest) (domain.SendInvoiceResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.SendInvoiceResult{}, err
	}
	ref := strings.TrimSpace(req.ReferenceID)
	if ref == "" {
		return domain.SendInvoiceResult{}, domain.ErrInvalidRequest
	}
	return domain.SendInvoiceResult{
		ProviderInvoiceID: fmt.Sprintf("noop_%s", ref),
	}, nil
}
