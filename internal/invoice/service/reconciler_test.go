package service

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	clientdomain "github.com/smallbiznis/practicebooks/internal/client/domain"
	"github.com/smallbiznis/practicebooks/internal/invoice/domain"
	"github.com/smallbiznis/practicebooks/internal/pricing"
	sessiondomain "github.com/smallbiznis/practicebooks/internal/session/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetachSessionShrinksThenDeletesBatchInvoice(t *testing.T) {
	f := newFixture(t)
	st40 := f.serviceType("Intake", "40", true)
	st60 := f.serviceType("Family", "60", true)
	client := f.client(clientdomain.PaymentMethodScholarship)
	first := f.session(st40, march(3), sessiondomain.StatusSubmitted, client)
	second := f.session(st60, march(10), sessiondomain.StatusSubmitted, client)

	invoice, err := f.svc.GenerateBatchInvoice(f.ctx, f.orgID, client, marchPeriod)
	require.NoError(t, err)
	require.True(t, money("100").Equal(invoice.Amount))

	report, err := f.svc.DetachSessionFromBatchInvoices(f.ctx, f.orgID, first)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Empty(t, report.DeletedInvoices)

	got, err := f.svc.GetByID(f.ctx, f.orgID, invoice.ID)
	require.NoError(t, err)
	assert.True(t, money("60").Equal(got.Amount))
	assert.True(t, money("15").Equal(got.PracticeCut))
	assert.True(t, money("45").Equal(got.ContractorPay))
	require.Len(t, got.LineItems, 1)
	assert.Equal(t, second, got.LineItems[0].SessionID)

	report, err = f.svc.DetachSessionFromBatchInvoices(f.ctx, f.orgID, second)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, []snowflake.ID{invoice.ID}, report.DeletedInvoices)

	_, err = f.svc.GetByID(f.ctx, f.orgID, invoice.ID)
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)
}

func TestDetachSessionSkipsSentBatchInvoice(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType("Group", "40", true)
	client := f.client(clientdomain.PaymentMethodScholarship)
	sessionID := f.session(st, march(3), sessiondomain.StatusSubmitted, client)
	f.session(st, march(4), sessiondomain.StatusSubmitted, client)

	invoice, err := f.svc.GenerateBatchInvoice(f.ctx, f.orgID, client, marchPeriod)
	require.NoError(t, err)
	f.setStatus(invoice.ID, domain.InvoiceStatusSent)

	report, err := f.svc.DetachSessionFromBatchInvoices(f.ctx, f.orgID, sessionID)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, 1, report.Skipped)

	got, err := f.svc.GetByID(f.ctx, f.orgID, invoice.ID)
	require.NoError(t, err)
	assert.True(t, money("80").Equal(got.Amount))
	assert.Len(t, got.LineItems, 2)
}

func TestFrozenBatchInvoices(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType("Group", "40", true)
	client := f.client(clientdomain.PaymentMethodScholarship)
	sessionID := f.session(st, march(3), sessiondomain.StatusSubmitted, client)

	invoice, err := f.svc.GenerateBatchInvoice(f.ctx, f.orgID, client, marchPeriod)
	require.NoError(t, err)

	frozen, err := f.svc.FrozenBatchInvoices(f.ctx, f.orgID, sessionID)
	require.NoError(t, err)
	assert.Empty(t, frozen)

	f.setStatus(invoice.ID, domain.InvoiceStatusSent)
	frozen, err = f.svc.FrozenBatchInvoices(f.ctx, f.orgID, sessionID)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{invoice.ID}, frozen)
}

func TestDetachSessionWithoutLineItems(t *testing.T) {
	f := newFixture(t)
	report, err := f.svc.DetachSessionFromBatchInvoices(f.ctx, f.orgID, f.node.Generate())
	require.NoError(t, err)
	assert.Equal(t, domain.DetachReport{}, report)
}

func TestSingleInvoiceLifecycle(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType("Individual", "90", false)
	client := f.client(clientdomain.PaymentMethodSelfPay)
	sessionID := f.session(st, march(3), sessiondomain.StatusDraft, client)

	in := domain.SingleInvoiceInput{
		OrgID:       f.orgID,
		SessionID:   sessionID,
		ClientID:    client,
		SessionDate: march(3),
		Description: "Individual on 2026-03-03",
		Pricing: pricing.Result{
			TotalAmount:   money("90"),
			PracticeCut:   money("22.50"),
			ContractorPay: money("67.50"),
			RentAmount:    money("0"),
		},
	}
	invoice, err := f.svc.CreateSingleInvoice(f.ctx, in)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceTypeSingle, invoice.InvoiceType)
	kind, err := invoice.Variant()
	require.NoError(t, err)
	assert.Equal(t, domain.SingleInvoice{SessionID: sessionID}, kind)

	_, err = f.svc.CreateSingleInvoice(f.ctx, in)
	assert.ErrorIs(t, err, domain.ErrSingleInvoiceExists)

	deleted, err := f.svc.DeleteSingleSessionInvoice(f.ctx, f.orgID, sessionID)
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.Equal(t, invoice.ID, deleted.ID)
	assert.EqualValues(t, 0, f.countInvoices())

	deleted, err = f.svc.DeleteSingleSessionInvoice(f.ctx, f.orgID, sessionID)
	require.NoError(t, err)
	assert.Nil(t, deleted)
}

func TestDeleteSingleInvoiceRefusesPaidInvoice(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType("Individual", "90", false)
	client := f.client(clientdomain.PaymentMethodSelfPay)
	sessionID := f.session(st, march(3), sessiondomain.StatusSubmitted, client)

	invoice, err := f.svc.CreateSingleInvoice(f.ctx, domain.SingleInvoiceInput{
		OrgID:     f.orgID,
		SessionID: sessionID,
		ClientID:  client,
		Pricing:   pricing.Result{TotalAmount: money("90"), PracticeCut: money("90")},
	})
	require.NoError(t, err)
	f.setStatus(invoice.ID, domain.InvoiceStatusPaid)

	frozen, err := f.svc.DeleteSingleSessionInvoice(f.ctx, f.orgID, sessionID)
	assert.ErrorIs(t, err, domain.ErrInvoiceFrozen)
	require.NotNil(t, frozen)
	assert.Equal(t, domain.InvoiceStatusPaid, frozen.Status)

	got, err := f.svc.GetByID(f.ctx, f.orgID, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPaid, got.Status)
	assert.True(t, money("90").Equal(got.Amount))
}

func TestSendAndPayInvoice(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType("Individual", "90", false)
	client := f.client(clientdomain.PaymentMethodSelfPay)
	sessionID := f.session(st, march(3), sessiondomain.StatusApproved, client)

	invoice, err := f.svc.CreateSingleInvoice(f.ctx, domain.SingleInvoiceInput{
		OrgID:     f.orgID,
		SessionID: sessionID,
		ClientID:  client,
		Pricing:   pricing.Result{TotalAmount: money("90"), PracticeCut: money("90")},
	})
	require.NoError(t, err)

	update := domain.ProviderStatusUpdate{
		Provider:          "noop",
		ProviderInvoiceID: "noop_" + invoice.ID.String(),
		Status:            domain.InvoiceStatusPaid,
	}
	_, err = f.svc.ApplyProviderStatus(f.ctx, update)
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)

	sent, err := f.svc.SendSessionInvoice(f.ctx, f.orgID, sessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusSent, sent.Status)
	require.NotNil(t, sent.ProviderInvoiceID)
	assert.Equal(t, update.ProviderInvoiceID, *sent.ProviderInvoiceID)

	_, err = f.svc.SendInvoice(f.ctx, f.orgID, invoice.ID)
	assert.ErrorIs(t, err, domain.ErrInvoiceNotPending)

	paidAt := time.Date(2026, 4, 5, 12, 0, 0, 0, time.UTC)
	update.PaidAt = &paidAt
	paid, err := f.svc.ApplyProviderStatus(f.ctx, update)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPaid, paid.Status)

	again, err := f.svc.ApplyProviderStatus(f.ctx, update)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPaid, again.Status)
}

func TestApplyProviderStatusRejectsPendingInvoice(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType("Individual", "90", false)
	client := f.client(clientdomain.PaymentMethodSelfPay)
	sessionID := f.session(st, march(3), sessiondomain.StatusApproved, client)

	invoice, err := f.svc.CreateSingleInvoice(f.ctx, domain.SingleInvoiceInput{
		OrgID:     f.orgID,
		SessionID: sessionID,
		ClientID:  client,
		Pricing:   pricing.Result{TotalAmount: money("90"), PracticeCut: money("90")},
	})
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&domain.Invoice{}).Where("id = ?", invoice.ID).Updates(map[string]any{
		"payment_provider":    "noop",
		"provider_invoice_id": "noop_manual",
	}).Error)

	_, err = f.svc.ApplyProviderStatus(f.ctx, domain.ProviderStatusUpdate{
		Provider:          "noop",
		ProviderInvoiceID: "noop_manual",
		Status:            domain.InvoiceStatusPaid,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)
}

func TestListInvoices(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType("Group", "40", true)
	scholar := f.client(clientdomain.PaymentMethodScholarship)
	selfPay := f.client(clientdomain.PaymentMethodSelfPay)
	f.session(st, march(3), sessiondomain.StatusSubmitted, scholar)
	single := f.session(st, march(4), sessiondomain.StatusSubmitted, selfPay)

	_, err := f.svc.CreateSingleInvoice(f.ctx, domain.SingleInvoiceInput{
		OrgID: f.orgID, SessionID: single, ClientID: selfPay,
		Pricing: pricing.Result{TotalAmount: money("40"), PracticeCut: money("40")},
	})
	require.NoError(t, err)
	_, err = f.svc.GenerateBatchInvoice(f.ctx, f.orgID, scholar, marchPeriod)
	require.NoError(t, err)

	all, err := f.svc.List(f.ctx, f.orgID, domain.ListInvoiceRequest{})
	require.NoError(t, err)
	assert.Len(t, all.Invoices, 2)

	batches, err := f.svc.List(f.ctx, f.orgID, domain.ListInvoiceRequest{InvoiceType: "batch"})
	require.NoError(t, err)
	require.Len(t, batches.Invoices, 1)
	assert.Equal(t, scholar, batches.Invoices[0].ClientID)

	_, err = f.svc.List(f.ctx, f.orgID, domain.ListInvoiceRequest{Status: "void"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}
