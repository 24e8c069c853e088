/*
handlers.go - HTTP API handlers for the obligation ledger engine

PURPOSE:
  Exposes the billing, trust, expense and report services via REST API.
  Handlers parse the request, call one engine operation and serialize the
  result. Every business rule lives in the engine packages.

ENDPOINTS:
  Properties:
    GET    /api/properties                     List properties
    POST   /api/properties                     Create property
    GET    /api/properties/{id}/units          List units
    POST   /api/properties/{id}/units          Create unit
    POST   /api/units/{id}/leases              Create lease

  Obligations & late fees:
    GET    /api/obligations                    List (property_id, unit_id, kind, active)
    POST   /api/obligations                    Create obligation
    DELETE /api/obligations/{id}               Deactivate
    POST   /api/obligations/{id}/supersede     Replace (rent change)
    GET    /api/obligations/{id}/outstanding   Balance as of ?as_of
    POST   /api/obligations/{id}/payments      Record payment (FIFO allocation)
    POST   /api/obligations/{id}/sweep         Evaluate one obligation
    POST   /api/late-fee-configs               Set fee policy for an owner
    POST   /api/charges/{id}/waive             Waive a pending charge
    POST   /api/sweep                          Run the late-fee sweep

  Trust (handlers_trust.go), expenses and receipts (handlers_expense.go),
  reports (handlers_report.go), scenarios (scenarios.go).

ERROR HANDLING:
  Engine errors map to HTTP status by kind (errors.go):
  - 400: ValidationError
  - 404: NotFoundError
  - 409: ConflictError (duplicate charge, insufficient funds, cycle)
  - 503: lock held elsewhere, retry
  - 500: everything else, including IntegrityError

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wdeanegpt/property-sub001/billing"
	"github.com/wdeanegpt/property-sub001/expense"
	"github.com/wdeanegpt/property-sub001/ledger"
	"github.com/wdeanegpt/property-sub001/report"
	"github.com/wdeanegpt/property-sub001/trust"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Services are the engine components the API calls into.
type Services struct {
	Store       ledger.TxStore
	Obligations *billing.Obligations
	Payments    *billing.PaymentLedger
	Sweeper     *billing.Sweeper
	Trust       *trust.Ledger
	Expenses    *expense.Ledger
	Reports     *report.Aggregator
	// Receipts is nil when receipt processing is disabled.
	Receipts *expense.ReceiptWorker
}

// NewServices builds every engine service over one store. locker and
// publisher may be nil.
func NewServices(store ledger.TxStore, locker ledger.Locker, publisher ledger.Publisher, log *zap.Logger) Services {
	if log == nil {
		log = zap.NewNop()
	}
	billingOpts := []billing.Option{
		billing.WithLocker(locker),
		billing.WithPublisher(publisher),
		billing.WithLogger(log),
	}
	return Services{
		Store:       store,
		Obligations: billing.NewObligations(store, billingOpts...),
		Payments:    billing.NewPaymentLedger(store, billingOpts...),
		Sweeper:     billing.NewSweeper(store, billingOpts...),
		Trust:       trust.NewLedger(store, trust.WithLocker(locker), trust.WithPublisher(publisher), trust.WithLogger(log)),
		Expenses:    expense.NewLedger(store, expense.WithLogger(log)),
		Reports:     report.NewAggregator(store, log),
	}
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	svc      Services
	logger   *zap.Logger
	validate *validator.Validate
	now      func() time.Time

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over svc.
func NewHandler(svc Services, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		svc:      svc,
		logger:   log.Named("api"),
		validate: newValidator(),
		now:      time.Now,
	}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// PROPERTY HANDLERS
// =============================================================================

func (h *Handler) ListProperties(w http.ResponseWriter, r *http.Request) {
	props, err := h.svc.Store.ListProperties(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]PropertyDTO, len(props))
	for i, p := range props {
		dtos[i] = toPropertyDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateProperty(w http.ResponseWriter, r *http.Request) {
	var req CreatePropertyRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p := ledger.Property{
		ID:        ledger.PropertyID(idOrNew(req.ID)),
		Name:      strings.TrimSpace(req.Name),
		CreatedAt: h.now().UTC(),
	}
	if err := h.svc.Store.InsertProperty(r.Context(), p); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPropertyDTO(p))
}

func (h *Handler) GetProperty(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Store.GetProperty(r.Context(), ledger.PropertyID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPropertyDTO(p))
}

func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	propertyID := ledger.PropertyID(chi.URLParam(r, "id"))
	if _, err := h.svc.Store.GetProperty(r.Context(), propertyID); err != nil {
		h.fail(w, r, err)
		return
	}
	units, err := h.svc.Store.ListUnits(r.Context(), ledger.UnitFilter{PropertyID: propertyID})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]UnitDTO, len(units))
	for i, u := range units {
		dtos[i] = toUnitDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	var req CreateUnitRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	rent, err := ledger.ParseMoney("market_rent", req.MarketRent)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	propertyID := ledger.PropertyID(chi.URLParam(r, "id"))
	if _, err := h.svc.Store.GetProperty(r.Context(), propertyID); err != nil {
		h.fail(w, r, err)
		return
	}
	u := ledger.Unit{
		ID:         ledger.UnitID(idOrNew(req.ID)),
		PropertyID: propertyID,
		Number:     req.Number,
		MarketRent: ledger.Cents(rent),
		CreatedAt:  h.now().UTC(),
	}
	if err := h.svc.Store.InsertUnit(r.Context(), u); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUnitDTO(u))
}

func (h *Handler) CreateLease(w http.ResponseWriter, r *http.Request) {
	var req CreateLeaseRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	rent, err := ledger.ParseMoney("monthly_rent", req.MonthlyRent)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if req.StartDate.IsZero() {
		h.fail(w, r, ledger.NewValidationError("start_date", "is required", nil))
		return
	}
	if req.EndDate != nil && req.EndDate.Before(req.StartDate) {
		h.fail(w, r, ledger.NewValidationError("end_date", "must not be before start_date", nil))
		return
	}
	unitID := ledger.UnitID(chi.URLParam(r, "id"))
	if _, err := h.svc.Store.GetUnit(r.Context(), unitID); err != nil {
		h.fail(w, r, err)
		return
	}
	l := ledger.Lease{
		ID:          ledger.LeaseID(idOrNew(req.ID)),
		UnitID:      unitID,
		TenantName:  req.TenantName,
		MonthlyRent: ledger.Cents(rent),
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Active:      true,
		CreatedAt:   h.now().UTC(),
	}
	if err := h.svc.Store.InsertLease(r.Context(), l); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaseDTO(l))
}

// =============================================================================
// OBLIGATION HANDLERS
// =============================================================================

func (h *Handler) ListObligations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ledger.ObligationFilter{
		PropertyID: ledger.PropertyID(q.Get("property_id")),
		Kind:       ledger.ObligationKind(q.Get("kind")),
		Frequency:  ledger.Frequency(q.Get("frequency")),
		ActiveOnly: q.Get("active") == "true",
	}
	if u := q.Get("unit_id"); u != "" {
		f.UnitIDs = []ledger.UnitID{ledger.UnitID(u)}
	}
	obligations, err := h.svc.Obligations.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]ObligationDTO, len(obligations))
	for i, o := range obligations {
		dtos[i] = toObligationDTO(o)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateObligation(w http.ResponseWriter, r *http.Request) {
	var req CreateObligationRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := ledger.ParseMoney("amount", req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.svc.Obligations.Create(r.Context(), billing.ObligationInput{
		Owner:       req.owner(),
		LeaseID:     ledger.LeaseID(req.LeaseID),
		Kind:        ledger.ObligationKind(req.Kind),
		Description: req.Description,
		Amount:      amount,
		Frequency:   ledger.Frequency(req.Frequency),
		AnchorDay:   req.AnchorDay,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toObligationDTO(o))
}

func (h *Handler) GetObligation(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Obligations.Get(r.Context(), ledger.ObligationID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toObligationDTO(o))
}

// DeactivateObligation stops an obligation from being swept.
func (h *Handler) DeactivateObligation(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Obligations.Deactivate(r.Context(), ledger.ObligationID(chi.URLParam(r, "id"))); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SupersedeObligation(w http.ResponseWriter, r *http.Request) {
	var req SupersedeObligationRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := ledger.ParseMoney("amount", req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.svc.Obligations.Supersede(r.Context(), ledger.ObligationID(chi.URLParam(r, "id")), billing.ObligationInput{
		Owner:       req.owner(),
		LeaseID:     ledger.LeaseID(req.LeaseID),
		Kind:        ledger.ObligationKind(req.Kind),
		Description: req.Description,
		Amount:      amount,
		Frequency:   ledger.Frequency(req.Frequency),
		AnchorDay:   req.AnchorDay,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toObligationDTO(o))
}

func (h *Handler) GetOutstanding(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.svc.Payments.Outstanding(r.Context(), ledger.ObligationID(chi.URLParam(r, "id")), asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutstandingDTO(b))
}

// =============================================================================
// LATE-FEE CONFIGURATION HANDLERS
// =============================================================================

func (h *Handler) ListLateFeeConfigs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ledger.LateFeeConfigFilter{
		PropertyID: ledger.PropertyID(q.Get("property_id")),
		ActiveOnly: q.Get("active") == "true",
	}
	if q.Has("unit_id") {
		u := ledger.UnitID(q.Get("unit_id"))
		f.UnitID = &u
	}
	configs, err := h.svc.Obligations.LateFeeConfigs(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]LateFeeConfigDTO, len(configs))
	for i, c := range configs {
		dtos[i] = toLateFeeConfigDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SetLateFeeConfig replaces the active fee policy of the owner.
func (h *Handler) SetLateFeeConfig(w http.ResponseWriter, r *http.Request) {
	var req LateFeeConfigRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	value, err := ledger.ParseMoney("fee_value", req.FeeValue)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	minFee, err := optionalDecimal("minimum_fee", req.MinimumFee)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	maxFee, err := optionalDecimal("maximum_fee", req.MaximumFee)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.svc.Obligations.SetLateFeeConfig(r.Context(), billing.LateFeeConfigInput{
		Owner:           req.owner(),
		FeeType:         ledger.FeeType(req.FeeType),
		FeeValue:        value,
		GracePeriodDays: req.GracePeriodDays,
		MinimumFee:      minFee,
		MaximumFee:      maxFee,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLateFeeConfigDTO(c))
}

// =============================================================================
// PAYMENT & CHARGE HANDLERS
// =============================================================================

// RecordPayment records a payment and returns its allocation breakdown.
// A retried request with the same idempotency key gets 409.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := ledger.ParseMoney("amount", req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	key := req.IdempotencyKey
	if key == "" {
		key = r.Header.Get("Idempotency-Key")
	}
	res, err := h.svc.Payments.RecordPayment(r.Context(), billing.PaymentInput{
		ObligationID:   ledger.ObligationID(chi.URLParam(r, "id")),
		Amount:         amount,
		Date:           req.PaymentDate,
		Method:         req.Method,
		Reference:      req.Reference,
		IdempotencyKey: key,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResultDTO(res))
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	payments, err := h.svc.Payments.Payments(r.Context(), ledger.PaymentFilter{
		ObligationIDs: []ledger.ObligationID{ledger.ObligationID(chi.URLParam(r, "id"))},
		From:          from,
		To:            to,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetAllocations(w http.ResponseWriter, r *http.Request) {
	allocs, err := h.svc.Payments.Allocations(r.Context(), ledger.PaymentID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTOs(allocs))
}

func (h *Handler) ListCharges(w http.ResponseWriter, r *http.Request) {
	f := ledger.ChargeFilter{ObligationIDs: []ledger.ObligationID{ledger.ObligationID(chi.URLParam(r, "id"))}}
	if s := r.URL.Query().Get("status"); s != "" {
		f.Statuses = []ledger.ChargeStatus{ledger.ChargeStatus(s)}
	}
	charges, err := h.svc.Payments.Charges(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toChargeDTOs(charges))
}

func (h *Handler) WaiveCharge(w http.ResponseWriter, r *http.Request) {
	var req WaiveChargeRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.svc.Payments.WaiveCharge(r.Context(), ledger.ChargeID(chi.URLParam(r, "id")), req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toChargeDTO(c))
}

// =============================================================================
// SWEEP HANDLERS
// =============================================================================

// TriggerSweep runs the late-fee sweep over every active obligation.
// Running it again with the same as_of creates nothing new.
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if r.ContentLength != 0 {
		if err := h.decode(w, r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = ledger.DateOf(h.now())
	}
	res, err := h.svc.Sweeper.Sweep(r.Context(), asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSweepResultDTO(res))
}

func (h *Handler) SweepObligation(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ev, err := h.svc.Sweeper.SweepObligation(r.Context(), ledger.ObligationID(chi.URLParam(r, "id")), asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEvaluationDTO(ev))
}

// =============================================================================
// HELPERS
// =============================================================================

// asOf reads ?as_of, defaulting to today.
func (h *Handler) asOf(r *http.Request) (ledger.Date, error) {
	d, err := queryDate(r, "as_of")
	if err != nil {
		return ledger.Date{}, err
	}
	if d == nil {
		return ledger.DateOf(h.now()), nil
	}
	return *d, nil
}

func queryDate(r *http.Request, name string) (*ledger.Date, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, nil
	}
	d, err := ledger.ParseDate(s)
	if err != nil {
		return nil, ledger.NewValidationError(name, "must be a YYYY-MM-DD date", nil)
	}
	return &d, nil
}

func optionalDecimal(field, s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := ledger.ParseMoney(field, s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func idOrNew(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return ledger.NewID()
}
