package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/uniformhq/entitlement-engine/eligibility"
	"github.com/uniformhq/entitlement-engine/ledger"
	"github.com/uniformhq/entitlement-engine/refs"
)

// =============================================================================
// SEEDING - Test/dev fixtures
// =============================================================================

// PutEmployee inserts or replaces an employee, initializing the version
// counter on first insert.
func (s *Store) PutEmployee(emp eligibility.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if emp.Version == 0 {
		emp.Version = 1
	}
	s.employees[emp.ID.Canonical()] = copyEmployee(emp)
}

func (s *Store) PutCompany(c eligibility.Company) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.companies[c.ID.Canonical()] = c
}

func (s *Store) PutRule(r eligibility.Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.ID.Canonical()] = r
}

func (s *Store) PutSubcategory(sc eligibility.Subcategory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subcategories[sc.ID.Canonical()] = sc
}

func (s *Store) PutCategory(cr eligibility.CategoryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[cr.ID.Canonical()] = cr
}

// =============================================================================
// EMPLOYEES - renewal.EmployeeStore / orders.EmployeeReader
// =============================================================================

func (s *Store) ListActiveEmployees(_ context.Context) ([]eligibility.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []eligibility.Employee
	for _, emp := range s.employees {
		if emp.Active {
			out = append(out, copyEmployee(emp))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Canonical() < out[j].ID.Canonical() })
	return out, nil
}

func (s *Store) EmployeeByRef(_ context.Context, ref refs.Ref) (eligibility.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if emp, ok := s.employees[ref.Canonical()]; ok {
		return copyEmployee(emp), nil
	}
	// Legacy numeric employee numbers resolve too.
	for _, emp := range s.employees {
		if emp.Number != "" && emp.Number == ref.Canonical() {
			return copyEmployee(emp), nil
		}
	}
	return eligibility.Employee{}, ledger.ErrEmployeeNotFound
}

func (s *Store) UpdateEmployee(_ context.Context, emp eligibility.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.employees[emp.ID.Canonical()]
	if !ok {
		return ledger.ErrEmployeeNotFound
	}
	if stored.Version != emp.Version {
		return ledger.ErrConcurrentModification
	}
	emp.Version++
	s.employees[emp.ID.Canonical()] = copyEmployee(emp)
	return nil
}

// =============================================================================
// COMPANIES - eligibility.CompanyStore
// =============================================================================

func (s *Store) CompanyByRef(_ context.Context, ref refs.Ref) (eligibility.Company, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.companies[ref.Canonical()]; ok {
		return c, true, nil
	}
	for _, c := range s.companies {
		if c.Code != "" && c.Code == ref.Canonical() {
			return c, true, nil
		}
	}
	return eligibility.Company{}, false, nil
}

// =============================================================================
// RULES - eligibility.RuleStore
// =============================================================================

func (s *Store) ActiveRules(_ context.Context, companyID refs.Ref, designation string, gender eligibility.Gender) ([]eligibility.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := strings.TrimSpace(designation)
	var out []eligibility.Rule
	for _, r := range s.rules {
		if r.Status != eligibility.RuleActive || r.Gender != gender {
			continue
		}
		if !r.CompanyID.Equal(companyID) {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(r.Designation), want) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// =============================================================================
// TAXONOMY - eligibility.TaxonomyStore
// =============================================================================

func (s *Store) SubcategoryByRef(_ context.Context, ref refs.Ref) (eligibility.Subcategory, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.subcategories[ref.Canonical()]
	return sc, ok, nil
}

func (s *Store) CategoryByRef(_ context.Context, ref refs.Ref) (eligibility.CategoryRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cr, ok := s.categories[ref.Canonical()]
	return cr, ok, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func copyEmployee(emp eligibility.Employee) eligibility.Employee {
	out := emp
	out.Eligibility = copyMap(emp.Eligibility)
	out.CycleDuration = copyMap(emp.CycleDuration)
	if emp.EligibilityResetDates != nil {
		out.EligibilityResetDates = make(map[eligibility.Category]time.Time, len(emp.EligibilityResetDates))
		for k, v := range emp.EligibilityResetDates {
			out.EligibilityResetDates[k] = v
		}
	}
	return out
}

func copyMap(in map[eligibility.Category]int) map[eligibility.Category]int {
	if in == nil {
		return nil
	}
	out := make(map[eligibility.Category]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
