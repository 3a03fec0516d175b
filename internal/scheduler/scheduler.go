package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/practicebooks/internal/audit/domain"
	"github.com/smallbiznis/practicebooks/internal/authorization"
	"github.com/smallbiznis/practicebooks/internal/clock"
	invoicedomain "github.com/smallbiznis/practicebooks/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/practicebooks/internal/observability/metrics"
	"github.com/smallbiznis/practicebooks/internal/orgcontext"
	orgdomain "github.com/smallbiznis/practicebooks/internal/organization/domain"
	"github.com/smallbiznis/practicebooks/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const JobBatchSweep = "batch_sweep"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	OrgSvc     orgdomain.Service
	InvoiceSvc invoicedomain.Service
	AuthzSvc   authorization.Service `optional:"true"`
	AuditSvc   auditdomain.Service   `optional:"true"`
	SweepLock  *ratelimit.SweepLock  `optional:"true"`
	Clock      clock.Clock           `optional:"true"`
	Config     Config                `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	orgSvc     orgdomain.Service
	invoiceSvc invoicedomain.Service
	authzSvc   authorization.Service
	auditSvc   auditdomain.Service
	sweepLock  *ratelimit.SweepLock
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.OrgSvc == nil || p.InvoiceSvc == nil {
		return nil, ErrInvalidConfig
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      clk,
		orgSvc:     p.OrgSvc,
		invoiceSvc: p.InvoiceSvc,
		authzSvc:   p.AuthzSvc,
		auditSvc:   p.AuditSvc,
		sweepLock:  p.SweepLock,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = orgcontext.WithActor(ctx, orgcontext.Actor{Role: authorization.RoleSystem, ID: "scheduler"})
	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every scheduled job a single time.
func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, JobBatchSweep, s.cfg.JobTimeout, s.BatchSweepJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	expected := time.Now().Add(s.cfg.RunInterval)
	s.runOnceLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case tick := <-ticker.C:
			if lag := tick.Sub(expected); lag > 0 {
				obsmetrics.Scheduler().ObserveRunLoopLag(lag)
			}
			expected = tick.Add(s.cfg.RunInterval)
			s.runOnceLogged(ctx)
		}
	}
}

func (s *Scheduler) runOnceLogged(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.log.Error("scheduler run failed", zap.Error(err))
	}
}

func (s *Scheduler) authorize(ctx context.Context, orgID snowflake.ID, object, action string) error {
	if s.authzSvc == nil {
		return nil
	}
	return s.authzSvc.Authorize(ctx, orgID, object, action)
}

func (s *Scheduler) audit(ctx context.Context, orgID snowflake.ID, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, orgID, action, "batch_sweep", orgID.String(), metadata); err != nil {
		s.logger(ctx).Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}
