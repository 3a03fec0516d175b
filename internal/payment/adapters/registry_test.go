package adapters

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/practicebooks/internal/payment/adapters/logprovider"
	"github.com/smallbiznis/practicebooks/internal/payment/adapters/noop"
	"github.com/smallbiznis/practicebooks/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistrySelectsActiveProvider(t *testing.T) {
	registry := NewRegistry(" LOG ", noop.New(), logprovider.New(zap.NewNop(), ""))

	assert.True(t, registry.ProviderExists("noop"))
	assert.True(t, registry.ProviderExists("log"))
	assert.False(t, registry.ProviderExists("stripe"))

	active, err := registry.Active()
	require.NoError(t, err)
	assert.Equal(t, logprovider.ProviderName, active.Name())

	res, err := active.SendInvoice(context.Background(), domain.SendInvoiceRequest{
		Amount:      decimal.RequireFromString("110.00"),
		ReferenceID: "inv_1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ProviderInvoiceID)
	assert.Contains(t, res.PaymentURL, res.ProviderInvoiceID)
}

func TestRegistryUnknownProvider(t *testing.T) {
	registry := NewRegistry("stripe", noop.New())
	_, err := registry.Active()
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)

	var nilRegistry *Registry
	_, err = nilRegistry.Provider("noop")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestNoopRequiresReference(t *testing.T) {
	_, err := noop.New().SendInvoice(context.Background(), domain.SendInvoiceRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	res, err := noop.New().SendInvoice(context.Background(), domain.SendInvoiceRequest{ReferenceID: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "noop_abc", res.ProviderInvoiceID)
}
