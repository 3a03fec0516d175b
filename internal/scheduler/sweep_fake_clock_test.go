package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	clientdomain "github.com/smallbiznis/practicebooks/internal/client/domain"
	clientrepository "github.com/smallbiznis/practicebooks/internal/client/repository"
	"github.com/smallbiznis/practicebooks/internal/clock"
	contractordomain "github.com/smallbiznis/practicebooks/internal/contractor/domain"
	invoicedomain "github.com/smallbiznis/practicebooks/internal/invoice/domain"
	invoicerepository "github.com/smallbiznis/practicebooks/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/practicebooks/internal/invoice/service"
	obsmetrics "github.com/smallbiznis/practicebooks/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/practicebooks/internal/organization/domain"
	orgrepository "github.com/smallbiznis/practicebooks/internal/organization/repository"
	orgservice "github.com/smallbiznis/practicebooks/internal/organization/service"
	servicetypedomain "github.com/smallbiznis/practicebooks/internal/servicetype/domain"
	sessiondomain "github.com/smallbiznis/practicebooks/internal/session/domain"
	sessionrepository "github.com/smallbiznis/practicebooks/internal/session/repository"
	"github.com/smallbiznis/practicebooks/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type sweepFixture struct {
	t          *testing.T
	ctx        context.Context
	db         *gorm.DB
	node       *snowflake.Node
	clock      *clock.FakeClock
	registry   *prometheus.Registry
	sched      *Scheduler
	invoiceSvc invoicedomain.Service
}

func newSweepFixture(t *testing.T, now time.Time) *sweepFixture {
	t.Helper()
	registry := useTestRegistry(t)

	db := testutil.OpenDB(t,
		&orgdomain.Organization{},
		&clientdomain.Client{},
		&contractordomain.Contractor{},
		&servicetypedomain.ServiceType{},
		&servicetypedomain.ContractorRateOverride{},
		&sessiondomain.Session{},
		&sessiondomain.SessionAttendee{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceLineItem{},
	)
	node := testutil.Node(t)
	clk := clock.NewFakeClock(now)

	orgSvc := orgservice.NewService(orgservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  orgrepository.NewRepository(),
		Clock: clk,
	})
	invoiceSvc := invoiceservice.NewService(invoiceservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Repo:        invoicerepository.Provide(),
		SessionRepo: sessionrepository.Provide(),
		ClientRepo:  clientrepository.Provide(),
		OrgRepo:     orgrepository.NewRepository(),
		Clock:       clk,
	})
	sched, err := New(Params{
		Log:        zap.NewNop(),
		GenID:      node,
		OrgSvc:     orgSvc,
		InvoiceSvc: invoiceSvc,
		Clock:      clk,
		Config:     Config{OrgBatchSize: 2},
	})
	require.NoError(t, err)

	return &sweepFixture{
		t:          t,
		ctx:        context.Background(),
		db:         db,
		node:       node,
		clock:      clk,
		registry:   registry,
		sched:      sched,
		invoiceSvc: invoiceSvc,
	}
}

type orgSetup struct {
	orgID        snowflake.ID
	contractorID snowflake.ID
	serviceType  snowflake.ID
	scholar      snowflake.ID
	selfPay      snowflake.ID
}

func (f *sweepFixture) org(timezone string, enabled bool, days ...int) orgSetup {
	f.t.Helper()
	now := f.clock.Now()
	org := orgdomain.Organization{
		ID:                    f.node.Generate(),
		Name:                  "Practice " + timezone,
		Slug:                  "practice-" + f.node.Generate().String(),
		TimezoneName:          timezone,
		BatchInvoicingEnabled: enabled,
		BatchBillingDays:      datatypes.JSONSlice[int](days),
		InvoiceDueDays:        14,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	require.NoError(f.t, f.db.Create(&org).Error)

	setup := orgSetup{orgID: org.ID}
	setup.contractorID = f.node.Generate()
	require.NoError(f.t, f.db.Create(&contractordomain.Contractor{
		ID:        setup.contractorID,
		OrgID:     org.ID,
		Name:      "Sam Ortiz",
		Email:     "sam@example.com",
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}).Error)

	st := servicetypedomain.ServiceType{
		ID:                f.node.Generate(),
		OrgID:             org.ID,
		Name:              "Individual",
		BaseRate:          decimal.NewFromInt(80),
		PerPersonRate:     decimal.Zero,
		CommissionPercent: decimal.NewFromInt(25),
		RentPercent:       decimal.Zero,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(f.t, f.db.Create(&st).Error)
	setup.serviceType = st.ID

	setup.scholar = f.client(org.ID, clientdomain.PaymentMethodScholarship)
	setup.selfPay = f.client(org.ID, clientdomain.PaymentMethodSelfPay)
	return setup
}

func (f *sweepFixture) client(orgID snowflake.ID, method clientdomain.PaymentMethod) snowflake.ID {
	f.t.Helper()
	c := clientdomain.Client{
		ID:            f.node.Generate(),
		OrgID:         orgID,
		Name:          "Client " + string(method),
		Email:         string(method) + "@example.com",
		PaymentMethod: method,
		CreatedAt:     f.clock.Now(),
		UpdatedAt:     f.clock.Now(),
	}
	require.NoError(f.t, f.db.Create(&c).Error)
	return c.ID
}

func (f *sweepFixture) session(o orgSetup, clientID snowflake.ID, date time.Time, others ...snowflake.ID) snowflake.ID {
	f.t.Helper()
	s := sessiondomain.Session{
		ID:              f.node.Generate(),
		OrgID:           o.orgID,
		ContractorID:    o.contractorID,
		ServiceTypeID:   o.serviceType,
		SessionDate:     date.UTC(),
		DurationMinutes: 50,
		Status:          sessiondomain.StatusApproved,
		CreatedAt:       f.clock.Now(),
		UpdatedAt:       f.clock.Now(),
	}
	attendees := []sessiondomain.SessionAttendee{{
		ID:        f.node.Generate(),
		OrgID:     o.orgID,
		SessionID: s.ID,
		ClientID:  clientID,
		Position:  0,
		CreatedAt: f.clock.Now(),
	}}
	for i, other := range others {
		attendees = append(attendees, sessiondomain.SessionAttendee{
			ID:        f.node.Generate(),
			OrgID:     o.orgID,
			SessionID: s.ID,
			ClientID:  other,
			Position:  i + 1,
			CreatedAt: f.clock.Now(),
		})
	}
	require.NoError(f.t, sessionrepository.Provide().Insert(f.ctx, f.db, &s, attendees))
	return s.ID
}

func (f *sweepFixture) batchInvoices(orgID snowflake.ID) []invoicedomain.Invoice {
	f.t.Helper()
	var out []invoicedomain.Invoice
	require.NoError(f.t, f.db.
		Where("org_id = ? AND invoice_type = ?", orgID, invoicedomain.InvoiceTypeBatch).
		Order("billing_period asc").
		Find(&out).Error)
	return out
}

func TestBatchSweepInvoicesCompletedMonthsOnBillingDay(t *testing.T) {
	f := newSweepFixture(t, time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC))
	o := f.org("UTC", true, 1)

	f.session(o, o.scholar, time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC))
	f.session(o, o.scholar, time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC))
	f.session(o, o.scholar, time.Date(2026, 3, 17, 10, 0, 0, 0, time.UTC))
	f.session(o, o.scholar, time.Date(2026, 4, 1, 5, 0, 0, 0, time.UTC))
	f.session(o, o.selfPay, time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC))

	summary, err := f.sched.RunBatchSweep(f.ctx, SweepOptions{})
	require.NoError(t, err)
	require.NoError(t, summary.Err())
	assert.Equal(t, 1, summary.OrgsSwept)
	assert.Equal(t, 2, summary.GroupsConsidered)
	assert.Len(t, summary.CreatedInvoices, 2)

	invoices := f.batchInvoices(o.orgID)
	require.Len(t, invoices, 2)
	assert.Equal(t, "2026-02", *invoices[0].BillingPeriod)
	assert.Equal(t, "2026-03", *invoices[1].BillingPeriod)
	assert.True(t, invoices[1].Amount.Equal(decimal.NewFromInt(160)), invoices[1].Amount.String())

	created := getCounterValue(t, f.registry, "practicebooks_batch_sweep_groups_total", map[string]string{
		"service": "practicebooks",
		"env":     "test",
		"outcome": obsmetrics.SweepOutcomeCreated,
	})
	assert.Equal(t, float64(2), created)

	again, err := f.sched.RunBatchSweep(f.ctx, SweepOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, again.GroupsConsidered)
	assert.Empty(t, again.CreatedInvoices)
	assert.Len(t, f.batchInvoices(o.orgID), 2)
}

func TestBatchSweepSkipsOtherDaysAndDisabledOrgs(t *testing.T) {
	f := newSweepFixture(t, time.Date(2026, 4, 2, 6, 0, 0, 0, time.UTC))
	onFirst := f.org("UTC", true, 1)
	disabled := f.org("UTC", false, 2)
	f.session(onFirst, onFirst.scholar, time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC))
	f.session(disabled, disabled.scholar, time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC))

	summary, err := f.sched.RunBatchSweep(f.ctx, SweepOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.OrgsScanned)
	assert.Equal(t, 0, summary.OrgsSwept)
	assert.Empty(t, f.batchInvoices(onFirst.orgID))
	assert.Empty(t, f.batchInvoices(disabled.orgID))

	manual, err := f.sched.RunBatchSweep(f.ctx, SweepOptions{OrgID: onFirst.orgID, IgnoreBillingDay: true})
	require.NoError(t, err)
	assert.Len(t, manual.CreatedInvoices, 1)
}

func TestBatchSweepUsesOrgTimezoneAndMonthEnd(t *testing.T) {
	// 2026-05-01 02:00 UTC is still April 30 in Los Angeles.
	f := newSweepFixture(t, time.Date(2026, 5, 1, 2, 0, 0, 0, time.UTC))
	o := f.org("America/Los_Angeles", true, 31)

	f.session(o, o.scholar, time.Date(2026, 3, 20, 18, 0, 0, 0, time.UTC))
	f.session(o, o.scholar, time.Date(2026, 4, 10, 18, 0, 0, 0, time.UTC))

	summary, err := f.sched.RunBatchSweep(f.ctx, SweepOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.OrgsSwept)

	invoices := f.batchInvoices(o.orgID)
	require.Len(t, invoices, 1)
	assert.Equal(t, "2026-03", *invoices[0].BillingPeriod)
}

func TestBatchSweepCountsExistingStatementAsSkipped(t *testing.T) {
	f := newSweepFixture(t, time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC))
	o := f.org("UTC", true, 1)
	f.session(o, o.scholar, time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC))

	_, err := f.invoiceSvc.GenerateBatchInvoice(f.ctx, o.orgID, o.scholar, invoicedomain.BillingPeriod{Year: 2026, Month: time.March})
	require.NoError(t, err)

	// A late entry for the same month cannot join the existing statement.
	f.session(o, o.scholar, time.Date(2026, 3, 24, 10, 0, 0, 0, time.UTC))
	other := f.client(o.orgID, clientdomain.PaymentMethodScholarship)
	f.session(o, other, time.Date(2026, 3, 25, 10, 0, 0, 0, time.UTC))

	summary, err := f.sched.RunBatchSweep(f.ctx, SweepOptions{})
	require.NoError(t, err)
	require.NoError(t, summary.Err())
	assert.Equal(t, 2, summary.GroupsConsidered)
	assert.Equal(t, 1, summary.Skipped)
	assert.Len(t, summary.CreatedInvoices, 1)
	assert.Len(t, f.batchInvoices(o.orgID), 2)
}

func TestBatchSweepPagesThroughOrganizations(t *testing.T) {
	f := newSweepFixture(t, time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC))
	var orgs []orgSetup
	for i := 0; i < 5; i++ {
		o := f.org("UTC", true, 1)
		f.session(o, o.scholar, time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC))
		orgs = append(orgs, o)
	}

	require.NoError(t, f.sched.RunOnce(f.ctx))
	for _, o := range orgs {
		assert.Len(t, f.batchInvoices(o.orgID), 1)
	}
}

func (f *sweepFixture) clientInvoice(orgID, clientID snowflake.ID) *invoicedomain.Invoice {
	f.t.Helper()
	var out []invoicedomain.Invoice
	require.NoError(f.t, f.db.
		Where("org_id = ? AND client_id = ? AND invoice_type = ?", orgID, clientID, invoicedomain.InvoiceTypeBatch).
		Find(&out).Error)
	if len(out) == 0 {
		return nil
	}
	require.Len(f.t, out, 1)
	return &out[0]
}

func TestBatchSweepBillsGroupSessionToPrimaryPayer(t *testing.T) {
	f := newSweepFixture(t, time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC))
	o := f.org("UTC", true, 1)
	primary := f.client(o.orgID, clientdomain.PaymentMethodScholarship)

	f.session(o, o.scholar, time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC))
	group := f.session(o, primary, time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC), o.scholar)

	summary, err := f.sched.RunBatchSweep(f.ctx, SweepOptions{})
	require.NoError(t, err)
	require.NoError(t, summary.Err())
	assert.Equal(t, 2, summary.GroupsConsidered)
	assert.Len(t, summary.CreatedInvoices, 2)
	assert.Zero(t, summary.Skipped)
	assert.Empty(t, summary.Failures)

	solo := f.clientInvoice(o.orgID, o.scholar)
	require.NotNil(t, solo)
	assert.True(t, solo.Amount.Equal(decimal.NewFromInt(80)), solo.Amount.String())

	billed := f.clientInvoice(o.orgID, primary)
	require.NotNil(t, billed)
	var items []invoicedomain.InvoiceLineItem
	require.NoError(t, f.db.Where("invoice_id = ?", billed.ID).Find(&items).Error)
	require.Len(t, items, 1)
	assert.Equal(t, group, items[0].SessionID)
}

func TestBatchSweepReportsFailedGroupAndContinues(t *testing.T) {
	f := newSweepFixture(t, time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC))
	o := f.org("UTC", true, 1)
	broken := f.client(o.orgID, clientdomain.PaymentMethodScholarship)
	healthy := f.client(o.orgID, clientdomain.PaymentMethodScholarship)
	f.session(o, broken, time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC))
	f.session(o, healthy, time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))
	f.session(o, o.scholar, time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC))

	boom := errors.New("connection reset")
	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("test:fail_invoice", func(tx *gorm.DB) {
		if invoice, ok := tx.Statement.Dest.(*invoicedomain.Invoice); ok && invoice.ClientID == broken {
			_ = tx.AddError(boom)
		}
	}))

	summary, err := f.sched.RunBatchSweep(f.ctx, SweepOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.GroupsConsidered)
	assert.Len(t, summary.CreatedInvoices, 2)
	assert.Zero(t, summary.Skipped)

	require.Len(t, summary.Failures, 1)
	failure := summary.Failures[0]
	assert.Equal(t, broken, failure.ClientID)
	assert.Equal(t, "2026-03", failure.BillingPeriod)
	assert.Equal(t, invoicedomain.ReasonPersistence, failure.Reason)
	assert.ErrorIs(t, summary.Err(), invoicedomain.ErrBatchPersistence)
	assert.ErrorIs(t, summary.Err(), boom)

	assert.Nil(t, f.clientInvoice(o.orgID, broken))
	assert.NotNil(t, f.clientInvoice(o.orgID, healthy))
	assert.NotNil(t, f.clientInvoice(o.orgID, o.scholar))

	failed := getCounterValue(t, f.registry, "practicebooks_batch_sweep_groups_total", map[string]string{
		"service": "practicebooks",
		"env":     "test",
		"outcome": obsmetrics.SweepOutcomeFailed,
	})
	assert.Equal(t, float64(1), failed)

	err = f.sched.BatchSweepJob(f.ctx)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, f.batchInvoices(o.orgID), 2)
}

func TestSweepSkipsGroupsBilledElsewhere(t *testing.T) {
	cases := []struct {
		reason invoicedomain.BatchFailureReason
		skip   bool
	}{
		{reason: invoicedomain.ReasonAlreadyExists, skip: true},
		{reason: invoicedomain.ReasonAllInvoiced, skip: true},
		{reason: invoicedomain.ReasonNoEligibleSessions, skip: false},
		{reason: invoicedomain.ReasonPersistence, skip: false},
	}
	for _, tc := range cases {
		t.Run(string(tc.reason), func(t *testing.T) {
			assert.Equal(t, tc.skip, sweepSkips(tc.reason))
		})
	}
}
