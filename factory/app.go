/*
Package factory assembles the application from configuration.

PURPOSE:
  One place builds the dependency graph: config -> logger -> store ->
  decrypter -> aggregator -> ledger -> services -> handler. Both
  binaries (renewald, eligctl) construct the same App and pick the
  pieces they need.

SEE ALSO:
  - cmd/renewald/main.go: daemon startup
  - cmd/eligctl/main.go:  admin verbs
*/
package factory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/uniformhq/entitlement-engine/api"
	"github.com/uniformhq/entitlement-engine/config"
	"github.com/uniformhq/entitlement-engine/eligibility"
	"github.com/uniformhq/entitlement-engine/integrity"
	"github.com/uniformhq/entitlement-engine/ledger"
	"github.com/uniformhq/entitlement-engine/logging"
	"github.com/uniformhq/entitlement-engine/orders"
	"github.com/uniformhq/entitlement-engine/pii"
	"github.com/uniformhq/entitlement-engine/procurement"
	"github.com/uniformhq/entitlement-engine/renewal"
	"github.com/uniformhq/entitlement-engine/store/memory"
	mongostore "github.com/uniformhq/entitlement-engine/store/mongo"
)

// Store is the full persistence surface the engine needs. Satisfied by
// store/memory and store/mongo.
type Store interface {
	ledger.Store

	renewal.EmployeeStore
	renewal.RunStore
	renewal.OrderPurger

	eligibility.RuleStore
	eligibility.TaxonomyStore
	eligibility.CompanyStore

	orders.OrderStore
	procurement.PurchaseOrderStore
	procurement.GoodsReceiptStore

	integrity.Source
	integrity.ReportStore
}

// App is the assembled application.
type App struct {
	Config config.Config
	Log    zerolog.Logger
	Store  Store

	Aggregator *eligibility.Aggregator
	Ledger     *ledger.Ledger
	Orders     *orders.Service
	Scheduler  *renewal.Scheduler
	Checker    *integrity.Checker
	Reset      *renewal.DestructiveReset
	Handler    *api.Handler

	// Mongo is non-nil when STORE=mongo; eligctl's migrate-rules verb
	// needs the concrete store.
	Mongo *mongostore.Store
}

// New builds the App. The caller owns Close.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	log := logging.New(cfg.LogLevel, cfg.Development())

	decrypter, err := buildDecrypter(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Log: log}

	switch cfg.Store {
	case config.StoreMongo:
		st, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDatabase, decrypter)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		if err := st.EnsureIndexes(ctx); err != nil {
			_ = st.Close(ctx)
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
		app.Store = st
		app.Mongo = st
	default:
		app.Store = memory.New()
	}

	app.Aggregator = eligibility.NewAggregator(app.Store, app.Store, decrypter)
	app.Ledger = ledger.New(app.Store)
	locks := ledger.NewEntityLock()

	app.Orders = &orders.Service{
		Orders:         app.Store,
		Employees:      app.Store,
		Companies:      app.Store,
		Ledger:         app.Ledger,
		Locks:          locks,
		PurchaseOrders: app.Store,
		Receipts:       app.Store,
		Log:            log.With().Str("component", "orders").Logger(),
	}

	app.Scheduler = renewal.NewScheduler(app.Store, app.Store, app.Aggregator, app.Ledger, locks,
		log.With().Str("component", "renewal").Logger())
	app.Scheduler.CheckInterval = cfg.RenewalInterval
	app.Scheduler.Workers = cfg.RenewalWorkers

	app.Checker = &integrity.Checker{
		Source:  app.Store,
		Reports: app.Store,
		Log:     log.With().Str("component", "integrity").Logger(),
	}

	app.Reset = &renewal.DestructiveReset{
		Employees:    app.Store,
		Orders:       app.Store,
		Aggregator:   app.Aggregator,
		ConfirmDelay: cfg.ResetConfirmDelay,
		Log:          log.With().Str("component", "reset").Logger(),
	}

	app.Handler = &api.Handler{
		Employees:  app.Store,
		Aggregator: app.Aggregator,
		Ledger:     app.Ledger,
		Orders:     app.Store,
		OrderSvc:   app.Orders,
		Runs:       app.Store,
		Reports:    app.Store,
		Scheduler:  app.Scheduler,
		Checker:    app.Checker,
		Log:        log.With().Str("component", "api").Logger(),
	}
	if app.Mongo != nil {
		app.Handler.Store = app.Mongo
	}

	return app, nil
}

// Close releases held connections.
func (a *App) Close(ctx context.Context) error {
	if a.Mongo != nil {
		return a.Mongo.Close(ctx)
	}
	return nil
}

func buildDecrypter(cfg config.Config) (pii.Decrypter, error) {
	if cfg.PIIKey == "" {
		return pii.Passthrough{}, nil
	}
	dec, err := pii.NewAESCBC(cfg.PIIKey)
	if err != nil {
		return nil, fmt.Errorf("PII_KEY: %w", err)
	}
	return dec, nil
}
