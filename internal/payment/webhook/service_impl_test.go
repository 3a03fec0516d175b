package webhook_test

import (
	"context"
	"encoding/hex"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/practicebooks/internal/clock"
	"github.com/smallbiznis/practicebooks/internal/config"
	clientrepository "github.com/smallbiznis/practicebooks/internal/client/repository"
	invoicedomain "github.com/smallbiznis/practicebooks/internal/invoice/domain"
	invoicerepository "github.com/smallbiznis/practicebooks/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/practicebooks/internal/invoice/service"
	orgrepository "github.com/smallbiznis/practicebooks/internal/organization/repository"
	"github.com/smallbiznis/practicebooks/internal/payment/adapters"
	"github.com/smallbiznis/practicebooks/internal/payment/adapters/noop"
	paymentdomain "github.com/smallbiznis/practicebooks/internal/payment/domain"
	paymentrepository "github.com/smallbiznis/practicebooks/internal/payment/repository"
	paymentservice "github.com/smallbiznis/practicebooks/internal/payment/service"
	"github.com/smallbiznis/practicebooks/internal/payment/webhook"
	sessionrepository "github.com/smallbiznis/practicebooks/internal/session/repository"
	"github.com/smallbiznis/practicebooks/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSecret = "whsec_test"

type harness struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	webhook paymentdomain.Service
	orgID   snowflake.ID
}

func newHarness(t *testing.T, secret string) *harness {
	t.Helper()
	db := testutil.OpenDB(t,
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceLineItem{},
		&paymentdomain.EventRecord{},
	)
	node := testutil.Node(t)
	clk := clock.NewFakeClock(time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC))
	registry := adapters.NewRegistry(noop.ProviderName, noop.New())

	invoiceSvc := invoiceservice.NewService(invoiceservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Repo:        invoicerepository.Provide(),
		SessionRepo: sessionrepository.Provide(),
		ClientRepo:  clientrepository.Provide(),
		OrgRepo:     orgrepository.NewRepository(),
		Payments:    registry,
		Clock:       clk,
	})
	paymentSvc := paymentservice.NewService(paymentservice.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       paymentrepository.Provide(),
		InvoiceSvc: invoiceSvc,
		Clock:      clk,
	})

	var cfg config.Config
	cfg.Payment.WebhookSecret = secret
	return &harness{
		db:    db,
		node:  node,
		clock: clk,
		webhook: webhook.NewService(webhook.Params{
			Log:        zap.NewNop(),
			PaymentSvc: paymentSvc,
			Adapters:   registry,
			Cfg:        cfg,
		}),
		orgID: node.Generate(),
	}
}

func (h *harness) sentInvoice(t *testing.T, providerInvoiceID string, status invoicedomain.InvoiceStatus) snowflake.ID {
	t.Helper()
	provider := noop.ProviderName
	sessionID := h.node.Generate()
	now := h.clock.Now()
	invoice := invoicedomain.Invoice{
		ID:                h.node.Generate(),
		OrgID:             h.orgID,
		ClientID:          h.node.Generate(),
		InvoiceType:       invoicedomain.InvoiceTypeSingle,
		SessionID:         &sessionID,
		Amount:            decimal.RequireFromString("110"),
		PracticeCut:       decimal.RequireFromString("33"),
		ContractorPay:     decimal.RequireFromString("77"),
		RentAmount:        decimal.Zero,
		Status:            status,
		DueDate:           now.AddDate(0, 0, 14),
		PaymentProvider:   &provider,
		ProviderInvoiceID: &providerInvoiceID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, h.db.Create(&invoice).Error)
	return invoice.ID
}

func (h *harness) invoiceStatus(t *testing.T, id snowflake.ID) invoicedomain.InvoiceStatus {
	t.Helper()
	var invoice invoicedomain.Invoice
	require.NoError(t, h.db.First(&invoice, "id = ?", id).Error)
	return invoice.Status
}

func signed(payload []byte) http.Header {
	headers := http.Header{}
	headers.Set(webhook.SignatureHeader, "sha256="+hex.EncodeToString(webhook.Sign([]byte(testSecret), payload)))
	return headers
}

func TestIngestWebhookMarksInvoicePaid(t *testing.T) {
	h := newHarness(t, testSecret)
	id := h.sentInvoice(t, "noop_1001", invoicedomain.InvoiceStatusSent)

	payload := []byte(`{"event_id":"evt_1","provider_invoice_id":"noop_1001","type":"invoice_paid","paid_at":"2026-04-09T15:00:00Z"}`)
	require.NoError(t, h.webhook.IngestWebhook(context.Background(), "noop", payload, signed(payload)))
	require.Equal(t, invoicedomain.InvoiceStatusPaid, h.invoiceStatus(t, id))

	var event paymentdomain.EventRecord
	require.NoError(t, h.db.First(&event, "provider_event_id = ?", "evt_1").Error)
	require.NotNil(t, event.ProcessedAt)
	require.Equal(t, h.orgID, event.OrgID)
}

func TestIngestWebhookRedeliveryIsIdempotent(t *testing.T) {
	h := newHarness(t, testSecret)
	h.sentInvoice(t, "noop_1002", invoicedomain.InvoiceStatusSent)

	payload := []byte(`{"event_id":"evt_2","provider_invoice_id":"noop_1002","type":"invoice_paid"}`)
	require.NoError(t, h.webhook.IngestWebhook(context.Background(), "noop", payload, signed(payload)))
	require.NoError(t, h.webhook.IngestWebhook(context.Background(), "noop", payload, signed(payload)))

	var count int64
	require.NoError(t, h.db.Model(&paymentdomain.EventRecord{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestIngestWebhookRejectsBadSignature(t *testing.T) {
	h := newHarness(t, testSecret)
	id := h.sentInvoice(t, "noop_1003", invoicedomain.InvoiceStatusSent)

	payload := []byte(`{"event_id":"evt_3","provider_invoice_id":"noop_1003","type":"invoice_paid"}`)
	headers := http.Header{}
	headers.Set(webhook.SignatureHeader, "sha256=deadbeef")

	err := h.webhook.IngestWebhook(context.Background(), "noop", payload, headers)
	require.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
	require.Equal(t, invoicedomain.InvoiceStatusSent, h.invoiceStatus(t, id))

	err = h.webhook.IngestWebhook(context.Background(), "noop", payload, http.Header{})
	require.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
}

func TestIngestWebhookWithoutSecretSkipsVerification(t *testing.T) {
	h := newHarness(t, "")
	id := h.sentInvoice(t, "noop_1004", invoicedomain.InvoiceStatusSent)

	payload := []byte(`{"event_id":"evt_4","provider_invoice_id":"noop_1004","type":"invoice_paid"}`)
	require.NoError(t, h.webhook.IngestWebhook(context.Background(), "noop", payload, http.Header{}))
	require.Equal(t, invoicedomain.InvoiceStatusPaid, h.invoiceStatus(t, id))
}

func TestIngestWebhookRejectsPaymentForPendingInvoice(t *testing.T) {
	h := newHarness(t, "")
	id := h.sentInvoice(t, "noop_1005", invoicedomain.InvoiceStatusPending)

	payload := []byte(`{"event_id":"evt_5","provider_invoice_id":"noop_1005","type":"invoice_paid"}`)
	err := h.webhook.IngestWebhook(context.Background(), "noop", payload, http.Header{})
	require.ErrorIs(t, err, invoicedomain.ErrInvalidStatusTransition)
	require.Equal(t, invoicedomain.InvoiceStatusPending, h.invoiceStatus(t, id))

	var event paymentdomain.EventRecord
	require.NoError(t, h.db.First(&event, "provider_event_id = ?", "evt_5").Error)
	require.Nil(t, event.ProcessedAt)
}

func TestIngestWebhookValidation(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	err := h.webhook.IngestWebhook(ctx, "stripe", []byte(`{}`), http.Header{})
	require.ErrorIs(t, err, paymentdomain.ErrProviderNotFound)

	err = h.webhook.IngestWebhook(ctx, "noop", []byte(`not json`), http.Header{})
	require.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)

	err = h.webhook.IngestWebhook(ctx, "noop", []byte(`{"event_id":"evt_6","provider_invoice_id":"noop_x","type":"customer_updated"}`), http.Header{})
	require.NoError(t, err)

	err = h.webhook.IngestWebhook(ctx, "noop", []byte(`{"event_id":"evt_7","provider_invoice_id":"noop_missing","type":"invoice_paid"}`), http.Header{})
	require.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}
