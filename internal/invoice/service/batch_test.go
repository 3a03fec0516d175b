package service

import (
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	clientdomain "github.com/smallbiznis/practicebooks/internal/client/domain"
	"github.com/smallbiznis/practicebooks/internal/invoice/domain"
	"github.com/smallbiznis/practicebooks/internal/pricing"
	sessiondomain "github.com/smallbiznis/practicebooks/internal/session/domain"
	"github.com/smallbiznis/practicebooks/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var marchPeriod = domain.BillingPeriod{Year: 2026, Month: time.March}

func TestGenerateBatchInvoiceSumsLineItems(t *testing.T) {
	f := newFixture(t)
	st40 := f.serviceType("Intake", "40", true)
	st60 := f.serviceType("Family", "60", true)
	client := f.client(clientdomain.PaymentMethodSelfPay)

	f.session(st40, march(3), sessiondomain.StatusSubmitted, client)
	f.session(st60, march(17), sessiondomain.StatusApproved, client)
	f.session(st60, march(20), sessiondomain.StatusDraft, client)
	f.session(st60, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), sessiondomain.StatusApproved, client)

	invoice, err := f.svc.GenerateBatchInvoice(f.ctx, f.orgID, client, marchPeriod)
	require.NoError(t, err)
	require.Len(t, invoice.LineItems, 2)

	assert.Equal(t, domain.InvoiceTypeBatch, invoice.InvoiceType)
	assert.Equal(t, domain.InvoiceStatusPending, invoice.Status)
	assert.True(t, money("100").Equal(invoice.Amount))
	assert.True(t, money("25").Equal(invoice.PracticeCut))
	assert.True(t, money("75").Equal(invoice.ContractorPay))
	assert.True(t, invoice.Totals().Balanced())
	assert.Equal(t, f.clock.Now().AddDate(0, 0, 30), invoice.DueDate)

	sum := pricing.Result{}
	for _, item := range invoice.LineItems {
		sum = sum.Add(item.Totals())
		assert.Equal(t, "Dana Reyes", item.ContractorName)
	}
	assert.True(t, sum.TotalAmount.Equal(invoice.Amount))
	assert.True(t, sum.PracticeCut.Equal(invoice.PracticeCut))
	assert.True(t, sum.ContractorPay.Equal(invoice.ContractorPay))
	assert.True(t, sum.RentAmount.Equal(invoice.RentAmount))

	kind, err := invoice.Variant()
	require.NoError(t, err)
	batch, ok := kind.(domain.BatchInvoice)
	require.True(t, ok)
	assert.Equal(t, marchPeriod, batch.BillingPeriod)
}

func TestGenerateBatchInvoiceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType("Group", "40", true)
	client := f.client(clientdomain.PaymentMethodScholarship)
	f.session(st, march(5), sessiondomain.StatusSubmitted, client)

	_, err := f.svc.GenerateBatchInvoice(f.ctx, f.orgID, client, marchPeriod)
	require.NoError(t, err)

	_, err = f.svc.GenerateBatchInvoice(f.ctx, f.orgID, client, marchPeriod)
	assert.ErrorIs(t, err, domain.ErrBatchAlreadyExists)
	reason, ok := domain.BatchReason(err)
	assert.True(t, ok)
	assert.Equal(t, domain.ReasonAlreadyExists, reason)
	assert.EqualValues(t, 1, f.countInvoices())
}

func TestGenerateBatchInvoiceFailureReasons(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType("Group", "40", true)
	client := f.client(clientdomain.PaymentMethodScholarship)

	_, err := f.svc.GenerateBatchInvoice(f.ctx, f.orgID, client, marchPeriod)
	assert.ErrorIs(t, err, domain.ErrNoEligibleSessions)

	sessionID := f.session(st, march(5), sessiondomain.StatusSubmitted, client)
	_, err = f.svc.CreateSingleInvoice(f.ctx, domain.SingleInvoiceInput{
		OrgID:     f.orgID,
		SessionID: sessionID,
		ClientID:  client,
		Pricing:   pricing.Result{TotalAmount: money("40"), PracticeCut: money("10"), ContractorPay: money("30")},
	})
	require.NoError(t, err)

	_, err = f.svc.GenerateBatchInvoice(f.ctx, f.orgID, client, marchPeriod)
	assert.ErrorIs(t, err, domain.ErrAllAlreadyInvoiced)

	_, err = f.svc.GenerateBatchInvoice(f.ctx, f.orgID, client, domain.BillingPeriod{})
	assert.ErrorIs(t, err, domain.ErrInvalidBillingPeriod)
}

func TestGenerateBatchInvoiceBillsGroupSessionsToPrimaryPayer(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType("Group", "40", true)
	primary := f.client(clientdomain.PaymentMethodScholarship)
	second := f.client(clientdomain.PaymentMethodScholarship)
	f.session(st, march(5), sessiondomain.StatusSubmitted, primary, second)
	own := f.session(st, march(12), sessiondomain.StatusSubmitted, second)

	invoice, err := f.svc.GenerateBatchInvoice(f.ctx, f.orgID, second, marchPeriod)
	require.NoError(t, err)
	require.Len(t, invoice.LineItems, 1)
	assert.Equal(t, own, invoice.LineItems[0].SessionID)

	invoice, err = f.svc.GenerateBatchInvoice(f.ctx, f.orgID, primary, marchPeriod)
	require.NoError(t, err)
	require.Len(t, invoice.LineItems, 1)
	assert.EqualValues(t, 2, f.countInvoices())
}

func TestSessionAppearsOnOneLineItemOnly(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType("Group", "40", true)
	client := f.client(clientdomain.PaymentMethodScholarship)
	sessionID := f.session(st, march(5), sessiondomain.StatusSubmitted, client)

	invoice, err := f.svc.GenerateBatchInvoice(f.ctx, f.orgID, client, marchPeriod)
	require.NoError(t, err)

	dup := invoice.LineItems[0]
	dup.ID = f.node.Generate()
	dup.InvoiceID = f.node.Generate()
	err = f.svc.repo.InsertLineItems(f.ctx, f.db, []domain.InvoiceLineItem{dup})
	require.Error(t, err)
	assert.True(t, db.IsDuplicateKeyErr(err), err.Error())
	assert.Equal(t, sessionID, dup.SessionID)
}

func TestGenerateBatchInvoiceBillsNoShows(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType("Group", "40", true)
	client := f.client(clientdomain.PaymentMethodScholarship)
	f.session(st, march(5), sessiondomain.StatusNoShow, client)
	f.session(st, march(6), sessiondomain.StatusCancelled, client)

	invoice, err := f.svc.GenerateBatchInvoice(f.ctx, f.orgID, client, marchPeriod)
	require.NoError(t, err)
	require.Len(t, invoice.LineItems, 1)
	assert.True(t, money("40").Equal(invoice.Amount))
}

func TestGenerateBatchInvoiceCompensatesFailedLineItems(t *testing.T) {
	f := newFixture(t)
	st := f.serviceType("Group", "40", true)
	client := f.client(clientdomain.PaymentMethodScholarship)
	f.session(st, march(5), sessiondomain.StatusSubmitted, client)

	boom := errors.New("disk full")
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("test:fail_line_items", func(tx *gorm.DB) {
		if tx.Statement.Table == "invoice_line_items" {
			_ = tx.AddError(boom)
		}
	}))

	_, err := f.svc.GenerateBatchInvoice(f.ctx, f.orgID, client, marchPeriod)
	assert.ErrorIs(t, err, domain.ErrBatchPersistence)
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 0, f.countInvoices())
}

func TestListBatchGroups(t *testing.T) {
	f := newFixture(t)
	scholarshipType := f.serviceType("Sliding scale", "40", true)
	regular := f.serviceType("Individual", "90", false)
	scholar := f.client(clientdomain.PaymentMethodScholarship)
	selfPay := f.client(clientdomain.PaymentMethodSelfPay)

	s1 := f.session(regular, march(2), sessiondomain.StatusApproved, scholar)
	s2 := f.session(regular, time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC), sessiondomain.StatusSubmitted, scholar)
	s3 := f.session(scholarshipType, march(9), sessiondomain.StatusSubmitted, selfPay)
	f.session(regular, march(10), sessiondomain.StatusApproved, selfPay)
	f.session(regular, march(11), sessiondomain.StatusCancelled, scholar)
	f.session(regular, time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC), sessiondomain.StatusApproved, scholar)

	cutoff := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	groups, err := f.svc.ListBatchGroups(f.ctx, f.orgID, cutoff, time.UTC)
	require.NoError(t, err)
	require.Len(t, groups, 3)

	assert.Equal(t, domain.BillingPeriod{Year: 2026, Month: time.February}, groups[0].BillingPeriod)
	assert.Equal(t, []snowflake.ID{s2}, groups[0].SessionIDs)

	byClient := map[snowflake.ID][]snowflake.ID{}
	for _, g := range groups[1:] {
		assert.Equal(t, marchPeriod, g.BillingPeriod)
		byClient[g.ClientID] = g.SessionIDs
	}
	assert.Equal(t, []snowflake.ID{s1}, byClient[scholar])
	assert.Equal(t, []snowflake.ID{s3}, byClient[selfPay])

	_, err = f.svc.GenerateBatchInvoice(f.ctx, f.orgID, scholar, marchPeriod)
	require.NoError(t, err)
	groups, err = f.svc.ListBatchGroups(f.ctx, f.orgID, cutoff, time.UTC)
	require.NoError(t, err)
	assert.Len(t, groups, 2)
}
