/*
main.go - Admin CLI for the entitlement engine

PURPOSE:
  Operational verbs that should not sit behind an HTTP endpoint:

    eligctl reset          Destructive batch reset: deletes ALL orders
                           and recomputes eligibility for every active
                           employee. A sleep-then-proceed delay gives the
                           operator a window to Ctrl-C.
    eligctl migrate-rules  Collapses the two legacy rule collections
                           into the canonical one (mongo store only).
    eligctl verify-refs    Runs one referential-integrity scan and
                           prints the findings.

EXIT CODES:
  0 success, 1 failure, 2 usage error.

SEE ALSO:
  - renewal/reset.go:              the destructive batch
  - store/mongo/migrate.go:        the rule migration
  - integrity/integrity.go:        the reference scan
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/uniformhq/entitlement-engine/config"
	"github.com/uniformhq/entitlement-engine/factory"
	"github.com/uniformhq/entitlement-engine/integrity"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	verb := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := factory.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup: %v\n", err)
		os.Exit(1)
	}
	defer app.Close(context.Background())

	switch verb {
	case "reset":
		runReset(ctx, app)
	case "migrate-rules":
		runMigrate(ctx, app)
	case "verify-refs":
		runVerify(ctx, app)
	default:
		usage()
		os.Exit(2)
	}
}

func runReset(ctx context.Context, app *factory.App) {
	summary, err := app.Reset.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reset: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("orders deleted:  %d\n", summary.OrdersDeleted)
	fmt.Printf("employees reset: %d\n", summary.EmployeesReset)
	fmt.Printf("failed:          %d\n", summary.Failed)
	fmt.Printf("took:            %s\n", summary.Duration)
}

func runMigrate(ctx context.Context, app *factory.App) {
	if app.Mongo == nil {
		fmt.Fprintln(os.Stderr, "migrate-rules requires STORE=mongo")
		os.Exit(2)
	}
	result, err := app.Mongo.MigrateRules(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate-rules: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("migrated:   %d\n", result.Migrated)
	fmt.Printf("superseded: %d\n", result.Superseded)
	fmt.Printf("conflicts:  %d\n", result.Conflicts)
}

func runVerify(ctx context.Context, app *factory.App) {
	report, err := app.Checker.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify-refs: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("documents scanned: %d\n", report.Scanned)
	if len(report.Findings) == 0 {
		fmt.Println("no findings")
		return
	}
	for _, f := range report.Findings {
		printFinding(f)
	}
	fmt.Printf("%d findings\n", len(report.Findings))
}

func printFinding(f integrity.Finding) {
	fmt.Printf("  [%s] %s/%s field=%s value=%q\n", f.Kind, f.Collection, f.DocumentID, f.Field, f.RawValue)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: eligctl <reset|migrate-rules|verify-refs>")
}
