/*
handlers.go - HTTP handlers for the renewal daemon

PURPOSE:
  Exposes entitlement previews, per-category balances, the order
  workflow, run history, and manual job triggers. Handlers parse and
  validate input, delegate to domain logic, and map error classes to
  HTTP status codes.

ERROR HANDLING:
  - 400: client errors (shortage, illegal transition, bad input)
  - 404: missed lookups
  - 409: optimistic-concurrency conflicts (retryable)
  - 500: everything else

SEE ALSO:
  - dto.go: request/response shapes
  - server.go: router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/uniformhq/entitlement-engine/eligibility"
	"github.com/uniformhq/entitlement-engine/integrity"
	"github.com/uniformhq/entitlement-engine/ledger"
	"github.com/uniformhq/entitlement-engine/orders"
	"github.com/uniformhq/entitlement-engine/refs"
	"github.com/uniformhq/entitlement-engine/renewal"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger is the optional store health probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Employees  renewal.EmployeeStore
	Aggregator *eligibility.Aggregator
	Ledger     *ledger.Ledger
	Orders     orders.OrderStore
	OrderSvc   *orders.Service
	Runs       renewal.RunStore
	Reports    integrity.ReportStore
	Scheduler  *renewal.Scheduler
	Checker    *integrity.Checker

	// Store is probed by /healthz when set.
	Store Pinger

	Log zerolog.Logger
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness and, when a store is wired, reachability.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if h.Store != nil {
		if err := h.Store.Ping(r.Context()); err != nil {
			status["status"] = "degraded"
			status["store"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		status["store"] = "ok"
	}
	writeJSON(w, http.StatusOK, status)
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// GetEmployee returns the employee record by id or legacy number.
// GET /api/employees/{ref}
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, ok := h.employee(w, r)
	if !ok {
		return
	}

	dto := EmployeeDTO{
		ID:          emp.ID.Canonical(),
		Number:      emp.Number,
		CompanyID:   emp.CompanyID.Canonical(),
		Name:        emp.Name,
		Email:       emp.Email,
		Designation: emp.Designation,
		Gender:      string(emp.Gender),
		Active:      emp.Active,
	}
	if !emp.JoinedAt.IsZero() {
		dto.JoinedAt = emp.JoinedAt.Format("2006-01-02")
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetEntitlement previews the employee's rule-derived entitlement
// without touching stored state.
// GET /api/employees/{ref}/entitlement
func (h *Handler) GetEntitlement(w http.ResponseWriter, r *http.Request) {
	emp, ok := h.employee(w, r)
	if !ok {
		return
	}

	snapshot, err := h.Aggregator.Snapshot(r.Context(), emp)
	if err != nil {
		writeDomainError(w, "Failed to compute entitlement", err)
		return
	}

	lines := make([]EntitlementLineDTO, 0, len(snapshot))
	for category, ent := range snapshot {
		lines = append(lines, EntitlementLineDTO{
			Category:      string(category),
			Quantity:      ent.Quantity,
			CadenceMonths: ent.CadenceMonths,
		})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Category < lines[j].Category })
	writeJSON(w, http.StatusOK, lines)
}

// GetBalance returns the remaining allowance per category for the
// current period, replayed from the ledger.
// GET /api/employees/{ref}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	emp, ok := h.employee(w, r)
	if !ok {
		return
	}

	categories := make([]eligibility.Category, 0, len(emp.Eligibility))
	for category := range emp.Eligibility {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	lines := make([]BalanceLineDTO, 0, len(categories))
	for _, category := range categories {
		entitlement := emp.Eligibility[category]
		cadence := emp.CycleDuration[category]
		if cadence <= 0 {
			cadence = eligibility.DefaultCadenceMonths(category)
		}
		// Replay from the last applied reset, the same window order
		// placement charges against. A boundary the scheduler has not
		// applied yet must not hide consumption from the reader.
		periodStart := emp.ResetAnchor(category)

		available, err := h.Ledger.Available(r.Context(), emp.ID, category, entitlement, periodStart)
		if err != nil {
			writeDomainError(w, "Failed to compute balance", err)
			return
		}
		lines = append(lines, BalanceLineDTO{
			Category:      string(category),
			Entitlement:   entitlement,
			Available:     available,
			PeriodStart:   periodStart.Format(time.RFC3339),
			CadenceMonths: cadence,
		})
	}
	writeJSON(w, http.StatusOK, lines)
}

// ListEmployeeOrders returns the employee's orders, newest first.
// GET /api/employees/{ref}/orders
func (h *Handler) ListEmployeeOrders(w http.ResponseWriter, r *http.Request) {
	emp, ok := h.employee(w, r)
	if !ok {
		return
	}

	list, err := h.Orders.OrdersByEmployee(r.Context(), emp.ID)
	if err != nil {
		writeDomainError(w, "Failed to list orders", err)
		return
	}
	dtos := make([]OrderDTO, 0, len(list))
	for _, o := range list {
		dtos = append(dtos, toOrderDTO(o))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) employee(w http.ResponseWriter, r *http.Request) (eligibility.Employee, bool) {
	ref := refs.Parse(chi.URLParam(r, "ref"))
	if ref.IsZero() {
		writeError(w, http.StatusBadRequest, "Missing employee reference", nil)
		return eligibility.Employee{}, false
	}
	emp, err := h.Employees.EmployeeByRef(r.Context(), ref)
	if err != nil {
		writeDomainError(w, "Failed to resolve employee", err)
		return eligibility.Employee{}, false
	}
	return emp, true
}

// =============================================================================
// ORDER HANDLERS
// =============================================================================

// PlaceOrder places an order against the employee's remaining allowance.
// POST /api/orders
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.EmployeeRef == "" || len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "employeeRef and items are required", nil)
		return
	}

	placement := orders.PlacementRequest{
		EmployeeRef: refs.Parse(req.EmployeeRef),
		Actor:       req.Actor,
	}
	for _, item := range req.Items {
		if item.Subcategory == "" || item.Quantity <= 0 {
			writeError(w, http.StatusBadRequest, "Each item needs a subcategory and a positive quantity", nil)
			return
		}
		price := decimal.Zero
		if item.UnitPrice != "" {
			parsed, err := decimal.NewFromString(item.UnitPrice)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid unit price", err)
				return
			}
			price = parsed
		}
		placement.Items = append(placement.Items, orders.RequestedItem{
			ProductID:   refs.Parse(item.ProductID),
			Subcategory: item.Subcategory,
			Quantity:    item.Quantity,
			UnitPrice:   price,
		})
	}

	order, err := h.OrderSvc.Place(r.Context(), placement)
	if err != nil {
		writeDomainError(w, "Failed to place order", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderDTO(order))
}

// GetOrder returns one order by id or order number.
// GET /api/orders/{ref}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.Orders.OrderByRef(r.Context(), refs.Parse(chi.URLParam(r, "ref")))
	if err != nil {
		writeDomainError(w, "Failed to resolve order", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(order))
}

// ApproveBySiteAdmin runs the first approval step.
// POST /api/orders/{ref}/approve/site
func (h *Handler) ApproveBySiteAdmin(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, h.OrderSvc.ApproveBySiteAdmin)
}

// ApproveByCompanyAdmin runs the gated second approval step.
// POST /api/orders/{ref}/approve/company
func (h *Handler) ApproveByCompanyAdmin(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, h.OrderSvc.ApproveByCompanyAdmin)
}

// DispatchOrder marks an approved order dispatched.
// POST /api/orders/{ref}/dispatch
func (h *Handler) DispatchOrder(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, h.OrderSvc.Dispatch)
}

// DeliverOrder marks a dispatched order delivered and records the GRN.
// POST /api/orders/{ref}/deliver
func (h *Handler) DeliverOrder(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, h.OrderSvc.Deliver)
}

// CancelOrder cancels a pre-dispatch order and restores its consumption.
// POST /api/orders/{ref}/cancel
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.terminalAction(w, r, h.OrderSvc.Cancel)
}

// ReturnOrder returns a delivered order and restores its consumption.
// POST /api/orders/{ref}/return
func (h *Handler) ReturnOrder(w http.ResponseWriter, r *http.Request) {
	h.terminalAction(w, r, h.OrderSvc.Return)
}

func (h *Handler) orderAction(w http.ResponseWriter, r *http.Request, fn func(context.Context, refs.Ref, string) (orders.Order, error)) {
	var req ActionRequest
	decodeOptional(r, &req)

	order, err := fn(r.Context(), refs.Parse(chi.URLParam(r, "ref")), req.Actor)
	if err != nil {
		writeDomainError(w, "Order action failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(order))
}

func (h *Handler) terminalAction(w http.ResponseWriter, r *http.Request, fn func(context.Context, refs.Ref, string, string) (orders.Order, error)) {
	var req ActionRequest
	decodeOptional(r, &req)

	order, err := fn(r.Context(), refs.Parse(chi.URLParam(r, "ref")), req.Reason, req.Actor)
	if err != nil {
		writeDomainError(w, "Order action failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderDTO(order))
}

// =============================================================================
// RUNS, REPORTS, AND MANUAL TRIGGERS
// =============================================================================

// ListRuns returns renewal run history, most recent first.
// GET /api/runs?limit=N
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Runs.ListRuns(r.Context(), queryLimit(r, 50))
	if err != nil {
		writeDomainError(w, "Failed to list runs", err)
		return
	}
	dtos := make([]RunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListIntegrityReports returns integrity scan history, most recent first.
// GET /api/integrity/reports?limit=N
func (h *Handler) ListIntegrityReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.Reports.ListReports(r.Context(), queryLimit(r, 20))
	if err != nil {
		writeDomainError(w, "Failed to list reports", err)
		return
	}
	dtos := make([]ReportDTO, 0, len(reports))
	for _, report := range reports {
		dtos = append(dtos, toReportDTO(report))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// TriggerRenewal runs one scheduler pass synchronously.
// POST /api/admin/renewal/run
func (h *Handler) TriggerRenewal(w http.ResponseWriter, r *http.Request) {
	run, err := h.Scheduler.RunOnce(r.Context())
	if err != nil {
		writeDomainError(w, "Renewal run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(run))
}

// TriggerIntegrity runs one integrity scan synchronously.
// POST /api/admin/integrity/run
func (h *Handler) TriggerIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.Checker.Run(r.Context())
	if err != nil {
		writeDomainError(w, "Integrity scan failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(report))
}

// =============================================================================
// HELPERS
// =============================================================================

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

// decodeOptional tolerates an empty body on action endpoints.
func decodeOptional(r *http.Request, v any) {
	if r.Body == nil {
		return
	}
	_ = json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the engine's error classes onto status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case ledger.IsRetryable(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
