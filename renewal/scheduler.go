/*
scheduler.go - Autonomous renewal job

PURPOSE:
  Periodically walks active employees and resets each employee-category
  whose renewal period has elapsed. Replaces the platform's manual
  whole-database reset with an idempotent, per-cadence job.

DESIGN:
  - Ticker-driven background goroutine, bounded worker fan-out.
  - Idempotency: RecordCategoryReset claims (employee, category, period)
    before any state is touched; a duplicate claim is a skip.
  - Per-employee failures are logged and counted; the run continues.
  - context cancellation stops the pass cleanly mid-batch.

SEE ALSO:
  - period.go: due/catch-up math
  - reset.go:  the preserved destructive batch reset
*/
package renewal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/uniformhq/entitlement-engine/eligibility"
	"github.com/uniformhq/entitlement-engine/ledger"
	"github.com/uniformhq/entitlement-engine/refs"
)

// =============================================================================
// SCHEDULER
// =============================================================================

type Scheduler struct {
	Employees  EmployeeStore
	Runs       RunStore
	Aggregator *eligibility.Aggregator
	Ledger     *ledger.Ledger
	Locks      *ledger.EntityLock

	CheckInterval time.Duration
	Workers       int
	Now           func() time.Time
	Log           zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewScheduler(employees EmployeeStore, runs RunStore, agg *eligibility.Aggregator, led *ledger.Ledger, locks *ledger.EntityLock, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		Employees:     employees,
		Runs:          runs,
		Aggregator:    agg,
		Ledger:        led,
		Locks:         locks,
		CheckInterval: time.Hour,
		Workers:       4,
		Now:           time.Now,
		Log:           log,
	}
}

// Start begins the background loop. The first pass runs immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		if _, err := s.RunOnce(ctx); err != nil {
			s.Log.Error().Err(err).Msg("renewal pass failed")
		}
		for {
			select {
			case <-s.ticker.C:
				if _, err := s.RunOnce(ctx); err != nil {
					s.Log.Error().Err(err).Msg("renewal pass failed")
				}
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	s.Log.Info().Dur("interval", s.CheckInterval).Int("workers", s.Workers).Msg("renewal scheduler started")
}

// Stop halts the loop and waits for an in-flight pass.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Log.Info().Msg("renewal scheduler stopped")
	}
}

// RunOnce executes one full pass and records it.
func (s *Scheduler) RunOnce(ctx context.Context) (Run, error) {
	now := s.Now()
	run := Run{
		ID:        uuid.NewString(),
		StartedAt: now,
		Status:    RunRunning,
	}
	if err := s.Runs.SaveRun(ctx, run); err != nil {
		return run, fmt.Errorf("save run record: %w", err)
	}

	employees, err := s.Employees.ListActiveEmployees(ctx)
	if err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
		_ = s.Runs.SaveRun(ctx, run)
		return run, fmt.Errorf("list active employees: %w", err)
	}

	type outcome struct{ processed, skipped, failed int }
	results := make(chan outcome, len(employees))
	jobs := make(chan eligibility.Employee)

	workers := s.Workers
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for emp := range jobs {
				p, sk, err := s.processEmployee(ctx, run.ID, emp, now)
				o := outcome{processed: p, skipped: sk}
				if err != nil {
					o.failed = 1
					s.Log.Warn().Err(err).Str("employee", emp.ID.Canonical()).Msg("renewal failed for employee")
				}
				results <- o
			}
		}()
	}

feed:
	for _, emp := range employees {
		select {
		case jobs <- emp:
		case <-ctx.Done():
			// Stop feeding; workers drain what they hold.
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	for o := range results {
		run.Processed += o.processed
		run.Skipped += o.skipped
		run.Failed += o.failed
	}

	completed := s.Now()
	run.CompletedAt = &completed
	run.Status = RunCompleted
	if err := ctx.Err(); err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
	}
	if err := s.Runs.SaveRun(ctx, run); err != nil {
		return run, fmt.Errorf("finalize run record: %w", err)
	}

	s.Log.Info().
		Str("run", run.ID).
		Int("processed", run.Processed).
		Int("skipped", run.Skipped).
		Int("failed", run.Failed).
		Msg("renewal pass completed")
	return run, ctx.Err()
}

// processEmployee resets every due category for one employee.
func (s *Scheduler) processEmployee(ctx context.Context, runID string, emp eligibility.Employee, now time.Time) (processed, skipped int, err error) {
	unlock := s.Locks.Lock(emp.ID.Canonical())
	defer unlock()

	// Re-read under the lock; the listing may be stale.
	emp, err = s.Employees.EmployeeByRef(ctx, emp.ID)
	if err != nil {
		return 0, 0, err
	}

	snapshot, err := s.Aggregator.Snapshot(ctx, emp)
	if err != nil {
		return 0, 0, err
	}

	changed := false
	var claims []CategoryReset
	for category, entitlement := range snapshot {
		cadence := entitlement.CadenceMonths
		anchor := emp.ResetAnchor(category)
		if !Due(anchor, cadence, now) {
			continue
		}
		periodStart := CurrentPeriodStart(anchor, cadence, now)

		claim := CategoryReset{
			EmployeeID:  emp.ID,
			Category:    category,
			PeriodStart: periodStart,
			RunID:       runID,
			AppliedAt:   now,
		}
		if err := s.Runs.RecordCategoryReset(ctx, claim); err != nil {
			if errors.Is(err, ledger.ErrAlreadyReset) {
				skipped++
				continue
			}
			return processed, skipped, err
		}

		if err := s.applyReset(ctx, &emp, category, entitlement, periodStart); err != nil {
			s.releaseClaims(ctx, claim)
			return processed, skipped, err
		}
		claims = append(claims, claim)
		changed = true
		processed++
	}

	if changed {
		if err := s.Employees.UpdateEmployee(ctx, emp); err != nil {
			// The employee document still carries the old anchors, so
			// give the claims back for the next pass to redo.
			s.releaseClaims(ctx, claims...)
			return processed, skipped, err
		}
	}
	return processed, skipped, nil
}

// releaseClaims drops claims whose reset failed to stick. A failed
// release means the period stays skipped until its next boundary, which
// is the pre-release behavior, so it is logged rather than returned.
func (s *Scheduler) releaseClaims(ctx context.Context, claims ...CategoryReset) {
	for _, c := range claims {
		if err := s.Runs.ReleaseCategoryReset(ctx, c.EmployeeID, c.Category, c.PeriodStart); err != nil {
			s.Log.Warn().
				Err(err).
				Str("employee", c.EmployeeID.Canonical()).
				Str("category", string(c.Category)).
				Msg("failed to release reset claim")
		}
	}
}

func (s *Scheduler) applyReset(ctx context.Context, emp *eligibility.Employee, category eligibility.Category, entitlement eligibility.Entitlement, periodStart time.Time) error {
	err := s.Ledger.Append(ctx, ledger.Entry{
		ID:             uuid.NewString(),
		EmployeeID:     emp.ID,
		Category:       category,
		Quantity:       entitlement.Quantity,
		Type:           ledger.EntryReset,
		EffectiveAt:    periodStart,
		Reason:         "scheduled renewal",
		IdempotencyKey: resetKey(emp.ID, category, periodStart),
		CreatedAt:      s.Now(),
	})
	// The claim record already guards the period; a duplicate ledger key
	// here means a previous attempt got as far as the append.
	if err != nil && !errors.Is(err, ledger.ErrDuplicateIdempotencyKey) {
		return err
	}

	if emp.Eligibility == nil {
		emp.Eligibility = make(map[eligibility.Category]int)
	}
	if emp.CycleDuration == nil {
		emp.CycleDuration = make(map[eligibility.Category]int)
	}
	if emp.EligibilityResetDates == nil {
		emp.EligibilityResetDates = make(map[eligibility.Category]time.Time)
	}
	emp.Eligibility[category] = entitlement.Quantity
	emp.CycleDuration[category] = entitlement.CadenceMonths
	emp.EligibilityResetDates[category] = periodStart
	return nil
}

func resetKey(employeeID refs.Ref, category eligibility.Category, periodStart time.Time) string {
	return "reset|" + employeeID.Canonical() + "|" + string(category) + "|" + periodStart.UTC().Format(time.RFC3339)
}
