/*
Package integrity is the scheduled reference-consistency job.

PURPOSE:
  Legacy data holds the same reference in three shapes and lets them
  dangle. Instead of per-incident diagnostic scripts, one checker scans
  the graph on a schedule and persists a report:

    orders        -> employee resolvable
    employees     -> company resolvable
    rules         -> subcategory known to the taxonomy or normalizable
    subcategories -> parent category present

  The checker NEVER mutates data. Findings are classified:
    dangling  - reference points at nothing
    mistyped  - reference fits no known id shape
    unknown   - category name outside the canonical enumeration

SEE ALSO:
  - refs:        shape classification
  - eligibility: the normalizer that decides "unknown"
*/
package integrity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/uniformhq/entitlement-engine/eligibility"
	"github.com/uniformhq/entitlement-engine/orders"
	"github.com/uniformhq/entitlement-engine/refs"
)

// =============================================================================
// FINDINGS & REPORTS
// =============================================================================

type FindingKind string

const (
	FindingDangling FindingKind = "dangling"
	FindingMistyped FindingKind = "mistyped"
	FindingUnknown  FindingKind = "unknown"
)

type Finding struct {
	Collection string
	DocumentID string
	Field      string
	RawValue   string
	Kind       FindingKind
}

type ReportStatus string

const (
	ReportRunning   ReportStatus = "running"
	ReportCompleted ReportStatus = "completed"
	ReportFailed    ReportStatus = "failed"
)

type Report struct {
	ID        string
	StartedAt time.Time
	Status    ReportStatus

	Scanned  int
	Findings []Finding

	CompletedAt *time.Time
	Error       string
}

// =============================================================================
// SOURCES - Read-only scan surface
// =============================================================================

// Source is everything the checker reads. Implemented by store/memory
// and store/mongo.
type Source interface {
	ListEmployeesAll(ctx context.Context) ([]eligibility.Employee, error)
	ListCompanies(ctx context.Context) ([]eligibility.Company, error)
	ListRules(ctx context.Context) ([]eligibility.Rule, error)
	ListSubcategories(ctx context.Context) ([]eligibility.Subcategory, error)
	ListCategories(ctx context.Context) ([]eligibility.CategoryRecord, error)
	ListOrders(ctx context.Context) ([]orders.Order, error)
}

// ReportStore persists integrity reports.
type ReportStore interface {
	SaveReport(ctx context.Context, r Report) error
	ListReports(ctx context.Context, limit int) ([]Report, error)
}

// =============================================================================
// CHECKER
// =============================================================================

type Checker struct {
	Source  Source
	Reports ReportStore
	Now     func() time.Time
	Log     zerolog.Logger
}

// Run scans the whole graph and persists one report.
func (c *Checker) Run(ctx context.Context) (Report, error) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	report := Report{
		ID:        uuid.NewString(),
		StartedAt: now(),
		Status:    ReportRunning,
	}
	if err := c.Reports.SaveReport(ctx, report); err != nil {
		return report, err
	}

	fail := func(err error) (Report, error) {
		report.Status = ReportFailed
		report.Error = err.Error()
		_ = c.Reports.SaveReport(ctx, report)
		return report, err
	}

	employees, err := c.Source.ListEmployeesAll(ctx)
	if err != nil {
		return fail(err)
	}
	companies, err := c.Source.ListCompanies(ctx)
	if err != nil {
		return fail(err)
	}
	rules, err := c.Source.ListRules(ctx)
	if err != nil {
		return fail(err)
	}
	subcategories, err := c.Source.ListSubcategories(ctx)
	if err != nil {
		return fail(err)
	}
	categories, err := c.Source.ListCategories(ctx)
	if err != nil {
		return fail(err)
	}
	orderList, err := c.Source.ListOrders(ctx)
	if err != nil {
		return fail(err)
	}

	employeeIdx := indexRefs(employees, func(e eligibility.Employee) []refs.Ref {
		return []refs.Ref{e.ID, refs.Parse(e.Number)}
	})
	companyIdx := indexRefs(companies, func(co eligibility.Company) []refs.Ref {
		return []refs.Ref{co.ID, refs.Parse(co.Code)}
	})
	subcategoryIdx := indexRefs(subcategories, func(sc eligibility.Subcategory) []refs.Ref {
		return []refs.Ref{sc.ID}
	})
	categoryIdx := indexRefs(categories, func(cr eligibility.CategoryRecord) []refs.Ref {
		return []refs.Ref{cr.ID}
	})

	// orders -> employee
	for _, o := range orderList {
		report.Scanned++
		report.add(check("orders", o.ID.Canonical(), "employee", o.EmployeeID, employeeIdx))
	}

	// employees -> company
	for _, e := range employees {
		report.Scanned++
		report.add(check("employees", e.ID.Canonical(), "company", e.CompanyID, companyIdx))
	}

	// rules -> subcategory known or normalizable
	for _, r := range rules {
		report.Scanned++
		if !r.SubcategoryID.IsZero() {
			if f := check("eligibilityrules", r.ID.Canonical(), "subcategory", r.SubcategoryID, subcategoryIdx); f != nil {
				report.add(f)
				continue
			}
		} else if _, known := eligibility.NormalizeKnown(r.Subcategory); !known {
			report.add(&Finding{
				Collection: "eligibilityrules",
				DocumentID: r.ID.Canonical(),
				Field:      "subcategory",
				RawValue:   r.Subcategory,
				Kind:       FindingUnknown,
			})
		}
	}

	// subcategories -> parent category
	for _, sc := range subcategories {
		report.Scanned++
		report.add(check("subcategories", sc.ID.Canonical(), "category", sc.CategoryID, categoryIdx))
	}

	completed := now()
	report.CompletedAt = &completed
	report.Status = ReportCompleted
	if err := c.Reports.SaveReport(ctx, report); err != nil {
		return report, err
	}

	c.Log.Info().
		Str("report", report.ID).
		Int("scanned", report.Scanned).
		Int("findings", len(report.Findings)).
		Msg("integrity scan completed")
	return report, nil
}

func (r *Report) add(f *Finding) {
	if f != nil {
		r.Findings = append(r.Findings, *f)
	}
}

// check classifies one reference against an index of known canonicals.
func check(collection, documentID, field string, ref refs.Ref, known map[string]struct{}) *Finding {
	if ref.IsZero() {
		return &Finding{Collection: collection, DocumentID: documentID, Field: field, Kind: FindingDangling}
	}
	if ref.Kind() == refs.KindOpaque {
		return &Finding{Collection: collection, DocumentID: documentID, Field: field, RawValue: ref.Canonical(), Kind: FindingMistyped}
	}
	if _, ok := known[ref.Canonical()]; !ok {
		return &Finding{Collection: collection, DocumentID: documentID, Field: field, RawValue: ref.Canonical(), Kind: FindingDangling}
	}
	return nil
}

func indexRefs[T any](items []T, keys func(T) []refs.Ref) map[string]struct{} {
	idx := make(map[string]struct{}, len(items))
	for _, item := range items {
		for _, r := range keys(item) {
			if !r.IsZero() {
				idx[r.Canonical()] = struct{}{}
			}
		}
	}
	return idx
}

// =============================================================================
// SCHEDULED LOOP
// =============================================================================

// StartLoop scans once immediately, then on an interval until the
// context ends.
func (c *Checker) StartLoop(ctx context.Context, interval time.Duration) {
	go func() {
		if _, err := c.Run(ctx); err != nil {
			c.Log.Error().Err(err).Msg("integrity scan failed")
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := c.Run(ctx); err != nil {
					c.Log.Error().Err(err).Msg("integrity scan failed")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
