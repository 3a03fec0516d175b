package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	clientdomain "github.com/smallbiznis/practicebooks/internal/client/domain"
	clientrepository "github.com/smallbiznis/practicebooks/internal/client/repository"
	"github.com/smallbiznis/practicebooks/internal/clock"
	contractordomain "github.com/smallbiznis/practicebooks/internal/contractor/domain"
	"github.com/smallbiznis/practicebooks/internal/invoice/domain"
	"github.com/smallbiznis/practicebooks/internal/invoice/repository"
	orgdomain "github.com/smallbiznis/practicebooks/internal/organization/domain"
	orgrepository "github.com/smallbiznis/practicebooks/internal/organization/repository"
	"github.com/smallbiznis/practicebooks/internal/payment/adapters"
	"github.com/smallbiznis/practicebooks/internal/payment/adapters/noop"
	servicetypedomain "github.com/smallbiznis/practicebooks/internal/servicetype/domain"
	sessiondomain "github.com/smallbiznis/practicebooks/internal/session/domain"
	sessionrepository "github.com/smallbiznis/practicebooks/internal/session/repository"
	"github.com/smallbiznis/practicebooks/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   *Service

	orgID        snowflake.ID
	contractorID snowflake.ID
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t,
		&orgdomain.Organization{},
		&clientdomain.Client{},
		&contractordomain.Contractor{},
		&servicetypedomain.ServiceType{},
		&servicetypedomain.ContractorRateOverride{},
		&sessiondomain.Session{},
		&sessiondomain.SessionAttendee{},
		&domain.Invoice{},
		&domain.InvoiceLineItem{},
	)
	node := testutil.Node(t)
	clk := clock.NewFakeClock(time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC))

	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		db:    db,
		node:  node,
		clock: clk,
	}
	f.svc = New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Repo:        repository.Provide(),
		SessionRepo: sessionrepository.Provide(),
		ClientRepo:  clientrepository.Provide(),
		OrgRepo:     orgrepository.NewRepository(),
		Payments:    adapters.NewRegistry(noop.ProviderName, noop.New()),
		Clock:       clk,
	})

	f.orgID = node.Generate()
	require.NoError(t, db.Create(&orgdomain.Organization{
		ID:             f.orgID,
		Name:           "Riverside Counseling",
		Slug:           "riverside-counseling",
		TimezoneName:   "UTC",
		InvoiceDueDays: 30,
		CreatedAt:      clk.Now(),
		UpdatedAt:      clk.Now(),
	}).Error)

	f.contractorID = node.Generate()
	require.NoError(t, db.Create(&contractordomain.Contractor{
		ID:        f.contractorID,
		OrgID:     f.orgID,
		Name:      "Dana Reyes",
		Email:     "dana@example.com",
		Active:    true,
		CreatedAt: clk.Now(),
		UpdatedAt: clk.Now(),
	}).Error)
	return f
}

func (f *fixture) serviceType(name, base string, scholarship bool) snowflake.ID {
	f.t.Helper()
	st := servicetypedomain.ServiceType{
		ID:                    f.node.Generate(),
		OrgID:                 f.orgID,
		Name:                  name,
		BaseRate:              money(base),
		PerPersonRate:         money("0"),
		CommissionPercent:     money("25"),
		RentPercent:           money("0"),
		IsScholarshipEligible: scholarship,
		CreatedAt:             f.clock.Now(),
		UpdatedAt:             f.clock.Now(),
	}
	require.NoError(f.t, f.db.Create(&st).Error)
	return st.ID
}

func (f *fixture) client(method clientdomain.PaymentMethod) snowflake.ID {
	f.t.Helper()
	c := clientdomain.Client{
		ID:            f.node.Generate(),
		OrgID:         f.orgID,
		Name:          "Client " + string(method),
		Email:         string(method) + "@example.com",
		PaymentMethod: method,
		CreatedAt:     f.clock.Now(),
		UpdatedAt:     f.clock.Now(),
	}
	require.NoError(f.t, f.db.Create(&c).Error)
	return c.ID
}

func (f *fixture) session(serviceTypeID snowflake.ID, date time.Time, status sessiondomain.Status, clients ...snowflake.ID) snowflake.ID {
	f.t.Helper()
	s := sessiondomain.Session{
		ID:              f.node.Generate(),
		OrgID:           f.orgID,
		ContractorID:    f.contractorID,
		ServiceTypeID:   serviceTypeID,
		SessionDate:     date.UTC(),
		DurationMinutes: 50,
		Status:          status,
		CreatedAt:       f.clock.Now(),
		UpdatedAt:       f.clock.Now(),
	}
	attendees := make([]sessiondomain.SessionAttendee, 0, len(clients))
	for i, clientID := range clients {
		attendees = append(attendees, sessiondomain.SessionAttendee{
			ID:        f.node.Generate(),
			OrgID:     f.orgID,
			SessionID: s.ID,
			ClientID:  clientID,
			Position:  i,
			CreatedAt: f.clock.Now(),
		})
	}
	require.NoError(f.t, sessionrepository.Provide().Insert(f.ctx, f.db, &s, attendees))
	return s.ID
}

func (f *fixture) setStatus(invoiceID snowflake.ID, status domain.InvoiceStatus) {
	f.t.Helper()
	require.NoError(f.t, f.db.Model(&domain.Invoice{}).
		Where("id = ?", invoiceID).
		Update("status", status).Error)
}

func (f *fixture) countInvoices() int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.db.Model(&domain.Invoice{}).Count(&n).Error)
	return n
}

func march(day int) time.Time {
	return time.Date(2026, time.March, day, 10, 0, 0, 0, time.UTC)
}
