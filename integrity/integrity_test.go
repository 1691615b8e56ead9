package integrity_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/uniformhq/entitlement-engine/eligibility"
	"github.com/uniformhq/entitlement-engine/integrity"
	"github.com/uniformhq/entitlement-engine/orders"
	"github.com/uniformhq/entitlement-engine/refs"
	"github.com/uniformhq/entitlement-engine/store/memory"
)

func findingsOfKind(r integrity.Report, kind integrity.FindingKind) []integrity.Finding {
	var out []integrity.Finding
	for _, f := range r.Findings {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

func TestCleanGraphProducesNoFindings(t *testing.T) {
	store := memory.New()
	company := eligibility.Company{ID: refs.New(), Name: "Horizon Air"}
	store.PutCompany(company)

	catRef := refs.New()
	store.PutCategory(eligibility.CategoryRecord{ID: catRef, Name: "Shirts"})
	subRef := refs.New()
	store.PutSubcategory(eligibility.Subcategory{ID: subRef, Name: "Formal Shirt", CategoryID: catRef})

	emp := eligibility.Employee{ID: refs.New(), Number: "482913", CompanyID: company.ID, Active: true}
	store.PutEmployee(emp)

	store.PutRule(eligibility.Rule{
		ID: refs.New(), CompanyID: company.ID, Designation: "Pilot",
		Gender: eligibility.GenderUnisex, SubcategoryID: subRef,
		Status: eligibility.RuleActive,
	})

	require.NoError(t, store.CreateOrder(context.Background(), orders.Order{
		ID: refs.New(), EmployeeID: emp.ID, CompanyID: company.ID,
		Status: orders.StatusDelivered, PlacedAt: time.Now(),
	}))

	checker := &integrity.Checker{Source: store, Reports: store, Log: zerolog.Nop()}
	report, err := checker.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, integrity.ReportCompleted, report.Status)
	require.Empty(t, report.Findings)
	require.Equal(t, 4, report.Scanned)
}

func TestDanglingAndMistypedAndUnknownFindings(t *testing.T) {
	store := memory.New()
	company := eligibility.Company{ID: refs.New()}
	store.PutCompany(company)

	// Employee referencing a company that does not exist.
	orphan := eligibility.Employee{ID: refs.New(), CompanyID: refs.New(), Active: true}
	store.PutEmployee(orphan)

	// Order whose employee reference is a shape no id ever takes.
	require.NoError(t, store.CreateOrder(context.Background(), orders.Order{
		ID: refs.New(), EmployeeID: refs.Parse("EMP-BROKEN"), CompanyID: company.ID,
		PlacedAt: time.Now(),
	}))

	// Rule whose raw subcategory name is outside the enumeration.
	store.PutRule(eligibility.Rule{
		ID: refs.New(), CompanyID: company.ID, Designation: "Pilot",
		Gender: eligibility.GenderUnisex, Subcategory: "Aviator Scarf",
		Status: eligibility.RuleActive,
	})

	// Subcategory with a dangling parent category.
	store.PutSubcategory(eligibility.Subcategory{ID: refs.New(), Name: "Formal Shirt", CategoryID: refs.New()})

	checker := &integrity.Checker{Source: store, Reports: store, Log: zerolog.Nop()}
	report, err := checker.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, findingsOfKind(report, integrity.FindingDangling), 2) // orphan employee + subcategory parent
	require.Len(t, findingsOfKind(report, integrity.FindingMistyped), 1) // broken order reference
	require.Len(t, findingsOfKind(report, integrity.FindingUnknown), 1)  // scarf rule

	// The checker never mutates: the broken documents are still there.
	employees, err := store.ListEmployeesAll(context.Background())
	require.NoError(t, err)
	require.Len(t, employees, 1)

	// And the report was persisted.
	reports, err := store.ListReports(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Equal(t, report.ID, reports[0].ID)
}

func TestStartLoopScansImmediately(t *testing.T) {
	store := memory.New()
	company := eligibility.Company{ID: refs.New()}
	store.PutCompany(company)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checker := &integrity.Checker{Source: store, Reports: store, Log: zerolog.Nop()}
	// The interval is far beyond the test; only the startup scan can
	// produce a report in time.
	checker.StartLoop(ctx, time.Hour)

	require.Eventually(t, func() bool {
		reports, err := store.ListReports(context.Background(), 10)
		return err == nil && len(reports) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEmployeeResolvableByLegacyNumber(t *testing.T) {
	store := memory.New()
	company := eligibility.Company{ID: refs.New()}
	store.PutCompany(company)

	emp := eligibility.Employee{ID: refs.New(), Number: "482913", CompanyID: company.ID, Active: true}
	store.PutEmployee(emp)

	// An order that references the employee by the legacy 6-digit number
	// is NOT dangling.
	require.NoError(t, store.CreateOrder(context.Background(), orders.Order{
		ID: refs.New(), EmployeeID: refs.Parse("482913"), CompanyID: company.ID,
		PlacedAt: time.Now(),
	}))

	checker := &integrity.Checker{Source: store, Reports: store, Log: zerolog.Nop()}
	report, err := checker.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Findings)
}
