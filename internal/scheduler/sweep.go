package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/practicebooks/internal/authorization"
	invoicedomain "github.com/smallbiznis/practicebooks/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/practicebooks/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/practicebooks/internal/organization/domain"
	"go.uber.org/zap"
)

// GroupFailure is one (client, month) group the sweep could not invoice.
type GroupFailure struct {
	OrgID         snowflake.ID                     `json:"organization_id"`
	ClientID      snowflake.ID                     `json:"client_id"`
	BillingPeriod string                           `json:"billing_period"`
	Reason        invoicedomain.BatchFailureReason `json:"reason,omitempty"`
	Err           error                            `json:"-"`
	Message       string                           `json:"error"`
}

// SweepSummary reports what a batch sweep did. Failures never stop other groups.
type SweepSummary struct {
	RunID            string         `json:"run_id"`
	StartedAt        time.Time      `json:"started_at"`
	OrgsScanned      int            `json:"organizations_scanned"`
	OrgsSwept        int            `json:"organizations_swept"`
	OrgsLocked       int            `json:"organizations_locked"`
	GroupsConsidered int            `json:"groups_considered"`
	CreatedInvoices  []snowflake.ID `json:"created_invoice_ids"`
	Skipped          int            `json:"skipped"`
	Failures         []GroupFailure `json:"failures"`
}

// Err joins every failure, or nil when the sweep was clean.
func (s SweepSummary) Err() error {
	errs := make([]error, 0, len(s.Failures))
	for _, f := range s.Failures {
		errs = append(errs, f.Err)
	}
	return errors.Join(errs...)
}

// SweepOptions narrows a sweep. The zero value sweeps every batch-enabled
// organization whose billing day is today.
type SweepOptions struct {
	OrgID snowflake.ID
	// IgnoreBillingDay sweeps the org even when today is not one of its billing days.
	IgnoreBillingDay bool
}

func (s *Scheduler) BatchSweepJob(ctx context.Context) error {
	summary, err := s.RunBatchSweep(ctx, SweepOptions{})
	if err != nil {
		return err
	}
	return summary.Err()
}

// RunBatchSweep invoices every unbilled scholarship group in completed months.
func (s *Scheduler) RunBatchSweep(ctx context.Context, opts SweepOptions) (SweepSummary, error) {
	ctx, run, owner := s.ensureJobRun(ctx, JobBatchSweep)

	now := s.clock.Now()
	summary := SweepSummary{
		RunID:           run.runID,
		StartedAt:       now,
		CreatedInvoices: []snowflake.ID{},
		Failures:        []GroupFailure{},
	}
	run.sweep = &summary
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	orgs, err := s.sweepTargets(ctx, opts)
	if err != nil {
		return summary, err
	}

	schedMetrics := obsmetrics.Scheduler()
	for _, org := range orgs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.OrgsScanned++
		if !opts.IgnoreBillingDay && !org.IsBatchBillingDay(now) {
			continue
		}
		if err := s.sweepOrg(ctx, run, org, now, &summary); err != nil {
			s.logSweepError(ctx, run, "scheduler.sweep.org_failed", org.ID, err)
			summary.Failures = append(summary.Failures, GroupFailure{
				OrgID:   org.ID,
				Err:     fmt.Errorf("organization %s: %w", org.ID, err),
				Message: err.Error(),
			})
		}
	}
	schedMetrics.AddBatchProcessed(JobBatchSweep, "organizations", summary.OrgsSwept)
	return summary, nil
}

// sweepSkips reports whether a group failure only means its sessions are billed
// elsewhere already.
func sweepSkips(reason invoicedomain.BatchFailureReason) bool {
	switch reason {
	case invoicedomain.ReasonAlreadyExists, invoicedomain.ReasonAllInvoiced:
		return true
	}
	return false
}

func (s *Scheduler) sweepTargets(ctx context.Context, opts SweepOptions) ([]*orgdomain.Organization, error) {
	if opts.OrgID != 0 {
		org, err := s.orgSvc.GetByID(ctx, opts.OrgID)
		if err != nil {
			return nil, err
		}
		return []*orgdomain.Organization{org}, nil
	}

	var (
		out     []*orgdomain.Organization
		afterID snowflake.ID
	)
	for {
		page, err := s.orgSvc.ListBatchEnabled(ctx, afterID, s.cfg.OrgBatchSize)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < s.cfg.OrgBatchSize {
			return out, nil
		}
		afterID = page[len(page)-1].ID
	}
}

func (s *Scheduler) sweepOrg(ctx context.Context, run *jobRun, org *orgdomain.Organization, now time.Time, summary *SweepSummary) error {
	ctx = s.withLogContext(ctx, org.ID)
	if err := s.authorize(ctx, org.ID, authorization.ObjectSweep, authorization.ActionSweepRun); err != nil {
		return err
	}

	lockStart := s.clock.Now()
	release, ok, err := s.sweepLock.Acquire(ctx, org.ID)
	obsmetrics.Scheduler().ObserveLockWait(obsmetrics.LockResourceSweepOrg, s.clock.Now().Sub(lockStart))
	if err != nil {
		return err
	}
	if !ok {
		summary.OrgsLocked++
		s.logger(ctx).Info("scheduler.sweep.org_locked", zap.String("org_id", org.ID.String()))
		return nil
	}
	defer release(context.WithoutCancel(ctx))

	summary.OrgsSwept++
	loc := org.Location()
	local := now.In(loc)
	cutoff := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)

	groups, err := s.invoiceSvc.ListBatchGroups(ctx, org.ID, cutoff, loc)
	if err != nil {
		return err
	}
	summary.GroupsConsidered += len(groups)

	var created, skipped, failed int
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		invoice, err := s.invoiceSvc.GenerateBatchInvoice(ctx, org.ID, group.ClientID, group.BillingPeriod)
		if err == nil {
			created++
			run.AddProcessed(1)
			summary.CreatedInvoices = append(summary.CreatedInvoices, invoice.ID)
			continue
		}
		reason, _ := invoicedomain.BatchReason(err)
		if sweepSkips(reason) {
			skipped++
			summary.Skipped++
			continue
		}
		failed++
		s.logSweepError(ctx, run, "scheduler.sweep.group_failed", org.ID, err,
			zap.String("client_id", group.ClientID.String()),
			zap.String("billing_period", group.BillingPeriod.String()),
		)
		summary.Failures = append(summary.Failures, GroupFailure{
			OrgID:         org.ID,
			ClientID:      group.ClientID,
			BillingPeriod: group.BillingPeriod.String(),
			Reason:        reason,
			Err:           err,
			Message:       err.Error(),
		})
	}

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.AddSweepGroups(obsmetrics.SweepOutcomeCreated, created)
	schedMetrics.AddSweepGroups(obsmetrics.SweepOutcomeSkipped, skipped)
	schedMetrics.AddSweepGroups(obsmetrics.SweepOutcomeFailed, failed)

	s.audit(ctx, org.ID, "batch_sweep.completed", map[string]any{
		"run_id":  summary.RunID,
		"cutoff":  cutoff.Format(time.RFC3339),
		"groups":  len(groups),
		"created": created,
		"skipped": skipped,
		"failed":  failed,
	})
	s.logger(ctx).Info("scheduler.sweep.org_done",
		zap.String("org_id", org.ID.String()),
		zap.Int("groups", len(groups)),
		zap.Int("created", created),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)
	return nil
}
