package memory

import (
	"context"
	"sort"
	"time"

	"github.com/uniformhq/entitlement-engine/eligibility"
	"github.com/uniformhq/entitlement-engine/integrity"
	"github.com/uniformhq/entitlement-engine/ledger"
	"github.com/uniformhq/entitlement-engine/orders"
	"github.com/uniformhq/entitlement-engine/refs"
	"github.com/uniformhq/entitlement-engine/renewal"
)

// =============================================================================
// RENEWAL RUNS - renewal.RunStore
// =============================================================================

func (s *Store) SaveRun(_ context.Context, run renewal.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

func (s *Store) ListRuns(_ context.Context, limit int) ([]renewal.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]renewal.Run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) RecordCategoryReset(_ context.Context, reset renewal.CategoryReset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := resetClaimKey(reset.EmployeeID, reset.Category, reset.PeriodStart)
	if s.categoryResets[key] {
		return ledger.ErrAlreadyReset
	}
	s.categoryResets[key] = true
	return nil
}

func (s *Store) ReleaseCategoryReset(_ context.Context, employeeID refs.Ref, category eligibility.Category, periodStart time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.categoryResets, resetClaimKey(employeeID, category, periodStart))
	return nil
}

func resetClaimKey(employeeID refs.Ref, category eligibility.Category, periodStart time.Time) string {
	return employeeID.Canonical() + "|" + string(category) + "|" + periodStart.UTC().Format(time.RFC3339)
}

// =============================================================================
// INTEGRITY - integrity.ReportStore / integrity.Source
// =============================================================================

func (s *Store) SaveReport(_ context.Context, r integrity.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.ID] = r
	return nil
}

func (s *Store) ListReports(_ context.Context, limit int) ([]integrity.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]integrity.Report, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListEmployeesAll(_ context.Context) ([]eligibility.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []eligibility.Employee
	for _, emp := range s.employees {
		out = append(out, copyEmployee(emp))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Canonical() < out[j].ID.Canonical() })
	return out, nil
}

func (s *Store) ListCompanies(_ context.Context) ([]eligibility.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []eligibility.Company
	for _, c := range s.companies {
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) ListRules(_ context.Context) ([]eligibility.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []eligibility.Rule
	for _, r := range s.rules {
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) ListSubcategories(_ context.Context) ([]eligibility.Subcategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []eligibility.Subcategory
	for _, sc := range s.subcategories {
		out = append(out, sc)
	}
	return out, nil
}

func (s *Store) ListCategories(_ context.Context) ([]eligibility.CategoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []eligibility.CategoryRecord
	for _, cr := range s.categories {
		out = append(out, cr)
	}
	return out, nil
}

func (s *Store) ListOrders(_ context.Context) ([]orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []orders.Order
	for _, o := range s.orders {
		out = append(out, copyOrder(o))
	}
	return out, nil
}
