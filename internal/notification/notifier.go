// Package notification sends best-effort messages about session lifecycle events.
package notification

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/practicebooks/internal/config"
	"github.com/smallbiznis/practicebooks/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// SessionRejected is sent to the contractor whose session was returned for changes.
type SessionRejected struct {
	SessionID       string
	ContractorName  string
	ContractorEmail string
	ServiceName     string
	SessionDate     time.Time
	Reason          string
}

type Notifier interface {
	SessionRejected(ctx context.Context, msg SessionRejected) error
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Email   email.Provider
	Billing *config.BillingConfigHolder `optional:"true"`
}

type emailNotifier struct {
	log     *zap.Logger
	email   email.Provider
	billing *config.BillingConfigHolder
}

func New(p Params) Notifier {
	return &emailNotifier{
		log:     p.Log.Named("notification"),
		email:   p.Email,
		billing: p.Billing,
	}
}

func (n *emailNotifier) SessionRejected(ctx context.Context, msg SessionRejected) error {
	if !n.billing.Get().RejectionNotifyEmail {
		return nil
	}
	to := strings.TrimSpace(msg.ContractorEmail)
	if to == "" {
		n.log.Debug("no contractor email, skipping rejection notice", zap.String("session_id", msg.SessionID))
		return nil
	}

	return n.email.SendTemplate(ctx, []string{to}, "session_rejected", map[string]any{
		"contractor_name": msg.ContractorName,
		"service_name":    msg.ServiceName,
		"session_date":    msg.SessionDate.Format("2006-01-02"),
		"reason":          msg.Reason,
	})
}

var Module = fx.Module("notification",
	fx.Provide(New),
)
