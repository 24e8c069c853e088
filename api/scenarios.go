/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that run the engine end to end on fresh
	data and return what happened. Each one demonstrates one rule.

AVAILABLE SCENARIOS:

	late-fee-charge:    monthly rent, 5-day grace, swept on day 10, $50 fixed fee
	fifo-allocation:    $35 payment over $30 and $20 charges, oldest first
	percentage-clamp:   5% of $1000 clamped to a $40 maximum
	trust-transfer:     $200 from a $500 account to a $100 account
	category-cycle:     re-parenting a category under its own descendant

HOW SCENARIOS WORK:
 1. Create a new property and unit with generated ids
 2. Drive the engine services exactly as the API handlers do
 3. Return the created ids and the observed outcome

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "fifo-allocation"}

NOTE:

	Scenarios only add data; nothing is reset. Every load creates a new
	property, so loading twice is safe.

SEE ALSO:
  - handlers.go: The same service calls behind the REST endpoints
*/
package api

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/wdeanegpt/property-sub001/billing"
	"github.com/wdeanegpt/property-sub001/expense"
	"github.com/wdeanegpt/property-sub001/ledger"
	"github.com/wdeanegpt/property-sub001/trust"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "late-fee-charge",
		Name:        "Late Fee Charge",
		Description: "Monthly rent due on the 1st, 5-day grace, unpaid on the 10th: one $50 charge",
		Category:    "billing",
	},
	{
		ID:          "fifo-allocation",
		Name:        "FIFO Allocation",
		Description: "$35 payment over $30 and $20 late fees: first paid, second reduced to $15",
		Category:    "billing",
	},
	{
		ID:          "percentage-clamp",
		Name:        "Percentage Fee Clamp",
		Description: "5% of $1000 with a $20 minimum and $40 maximum: charged $40",
		Category:    "billing",
	},
	{
		ID:          "trust-transfer",
		Name:        "Trust Transfer",
		Description: "$200 from an account holding $500 to one holding $100: both end at $300",
		Category:    "trust",
	},
	{
		ID:          "category-cycle",
		Name:        "Category Cycle",
		Description: "Moving a category under its own grandchild is rejected and nothing changes",
		Category:    "expense",
	},
}

type scenarioLoader func(ctx context.Context, h *Handler) (ScenarioResultDTO, error)

var scenarioLoaders = map[string]scenarioLoader{
	"late-fee-charge":  loadLateFeeChargeScenario,
	"fifo-allocation":  loadFIFOAllocationScenario,
	"percentage-clamp": loadPercentageClampScenario,
	"trust-transfer":   loadTrustTransferScenario,
	"category-cycle":   loadCategoryCycleScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario runs a scenario and returns its outcome.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		h.fail(w, r, ledger.NewNotFoundError("scenario", req.ScenarioID))
		return
	}

	res, err := load(r.Context(), h)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	for _, s := range scenarios {
		if s.ID == req.ScenarioID {
			res.Scenario = s
		}
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, res)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// seedUnit creates a property with one unit.
func (h *Handler) seedUnit(ctx context.Context, name string) (ledger.Property, ledger.Unit, error) {
	now := h.now().UTC()
	p := ledger.Property{ID: ledger.PropertyID(ledger.NewID()), Name: name, CreatedAt: now}
	if err := h.svc.Store.InsertProperty(ctx, p); err != nil {
		return p, ledger.Unit{}, err
	}
	u := ledger.Unit{ID: ledger.UnitID(ledger.NewID()), PropertyID: p.ID, Number: "101", MarketRent: ledger.MustMoney("1000"), CreatedAt: now}
	if err := h.svc.Store.InsertUnit(ctx, u); err != nil {
		return p, u, err
	}
	return p, u, nil
}

// monthlyRent creates $1000 rent due on the 1st from January 2024.
func (h *Handler) monthlyRent(ctx context.Context, u ledger.Unit) (ledger.RecurringObligation, error) {
	return h.svc.Obligations.Create(ctx, billing.ObligationInput{
		Owner:       ledger.OwnerContext{UnitID: u.ID},
		Kind:        ledger.KindRent,
		Description: "Monthly rent",
		Amount:      ledger.MustMoney("1000"),
		Frequency:   ledger.Monthly,
		AnchorDay:   1,
		StartDate:   ledger.MustDate("2024-01-01"),
	})
}

func (h *Handler) fixedFee(ctx context.Context, p ledger.Property, fee string, grace int) error {
	_, err := h.svc.Obligations.SetLateFeeConfig(ctx, billing.LateFeeConfigInput{
		Owner:           ledger.OwnerContext{PropertyID: p.ID},
		FeeType:         ledger.FeeFixed,
		FeeValue:        ledger.MustMoney(fee),
		GracePeriodDays: grace,
	})
	return err
}

func loadLateFeeChargeScenario(ctx context.Context, h *Handler) (ScenarioResultDTO, error) {
	p, u, err := h.seedUnit(ctx, "Late Fee Demo")
	if err != nil {
		return ScenarioResultDTO{}, err
	}
	o, err := h.monthlyRent(ctx, u)
	if err != nil {
		return ScenarioResultDTO{}, err
	}
	if err := h.fixedFee(ctx, p, "50", 5); err != nil {
		return ScenarioResultDTO{}, err
	}

	ev, err := h.svc.Sweeper.SweepObligation(ctx, o.ID, ledger.MustDate("2024-03-10"))
	if err != nil {
		return ScenarioResultDTO{}, err
	}
	return ScenarioResultDTO{
		Created: map[string]string{"property_id": string(p.ID), "unit_id": string(u.ID), "obligation_id": string(o.ID)},
		Outcome: toEvaluationDTO(ev),
	}, nil
}

func loadFIFOAllocationScenario(ctx context.Context, h *Handler) (ScenarioResultDTO, error) {
	p, u, err := h.seedUnit(ctx, "FIFO Demo")
	if err != nil {
		return ScenarioResultDTO{}, err
	}
	o, err := h.monthlyRent(ctx, u)
	if err != nil {
		return ScenarioResultDTO{}, err
	}

	// $30 for January, then the policy drops to $20 for February.
	if err := h.fixedFee(ctx, p, "30", 5); err != nil {
		return ScenarioResultDTO{}, err
	}
	if _, err := h.svc.Sweeper.SweepObligation(ctx, o.ID, ledger.MustDate("2024-01-10")); err != nil {
		return ScenarioResultDTO{}, err
	}
	if err := h.fixedFee(ctx, p, "20", 5); err != nil {
		return ScenarioResultDTO{}, err
	}
	if _, err := h.svc.Sweeper.SweepObligation(ctx, o.ID, ledger.MustDate("2024-02-10")); err != nil {
		return ScenarioResultDTO{}, err
	}

	res, err := h.svc.Payments.RecordPayment(ctx, billing.PaymentInput{
		ObligationID: o.ID,
		Amount:       ledger.MustMoney("35"),
		Date:         ledger.MustDate("2024-02-15"),
		Method:       "ach",
		Reference:    "scenario fifo-allocation",
	})
	if err != nil {
		return ScenarioResultDTO{}, err
	}
	charges, err := h.svc.Payments.Charges(ctx, ledger.ChargeFilter{ObligationIDs: []ledger.ObligationID{o.ID}})
	if err != nil {
		return ScenarioResultDTO{}, err
	}
	return ScenarioResultDTO{
		Created: map[string]string{"property_id": string(p.ID), "obligation_id": string(o.ID), "payment_id": string(res.Payment.ID)},
		Outcome: map[string]any{"payment": toPaymentResultDTO(res), "charges": toChargeDTOs(charges)},
	}, nil
}

func loadPercentageClampScenario(ctx context.Context, h *Handler) (ScenarioResultDTO, error) {
	p, u, err := h.seedUnit(ctx, "Percentage Fee Demo")
	if err != nil {
		return ScenarioResultDTO{}, err
	}
	o, err := h.monthlyRent(ctx, u)
	if err != nil {
		return ScenarioResultDTO{}, err
	}
	minFee, maxFee := ledger.MustMoney("20"), ledger.MustMoney("40")
	if _, err := h.svc.Obligations.SetLateFeeConfig(ctx, billing.LateFeeConfigInput{
		Owner:           ledger.OwnerContext{PropertyID: p.ID},
		FeeType:         ledger.FeePercentage,
		FeeValue:        ledger.MustMoney("5"),
		GracePeriodDays: 5,
		MinimumFee:      &minFee,
		MaximumFee:      &maxFee,
	}); err != nil {
		return ScenarioResultDTO{}, err
	}

	ev, err := h.svc.Sweeper.SweepObligation(ctx, o.ID, ledger.MustDate("2024-03-10"))
	if err != nil {
		return ScenarioResultDTO{}, err
	}
	return ScenarioResultDTO{
		Created: map[string]string{"property_id": string(p.ID), "obligation_id": string(o.ID)},
		Outcome: toEvaluationDTO(ev),
	}, nil
}

func loadTrustTransferScenario(ctx context.Context, h *Handler) (ScenarioResultDTO, error) {
	p, _, err := h.seedUnit(ctx, "Trust Demo")
	if err != nil {
		return ScenarioResultDTO{}, err
	}
	open := func(name string, balance decimal.Decimal) (ledger.TrustAccount, error) {
		return h.svc.Trust.OpenAccount(ctx, trust.AccountInput{
			Owner:          ledger.OwnerContext{PropertyID: p.ID},
			Name:           name,
			AccountType:    ledger.AccountEscrow,
			OpeningBalance: balance,
		})
	}
	a, err := open("Account A", ledger.MustMoney("500"))
	if err != nil {
		return ScenarioResultDTO{}, err
	}
	b, err := open("Account B", ledger.MustMoney("100"))
	if err != nil {
		return ScenarioResultDTO{}, err
	}

	res, err := h.svc.Trust.Transfer(ctx, a.ID, b.ID, ledger.MustMoney("200"), trust.Meta{Description: "scenario trust-transfer"})
	if err != nil {
		return ScenarioResultDTO{}, err
	}
	reports, err := h.svc.Trust.ReconcileAll(ctx, ledger.TrustAccountFilter{PropertyID: p.ID})
	if err != nil {
		return ScenarioResultDTO{}, err
	}
	recs := make([]ReconciliationDTO, len(reports))
	for i, rep := range reports {
		recs[i] = toReconciliationDTO(rep)
	}
	return ScenarioResultDTO{
		Created: map[string]string{"property_id": string(p.ID), "account_a": string(a.ID), "account_b": string(b.ID)},
		Outcome: map[string]any{"transfer": toTransferDTO(res), "reconciliation": recs},
	}, nil
}

func loadCategoryCycleScenario(ctx context.Context, h *Handler) (ScenarioResultDTO, error) {
	x, err := h.svc.Expenses.CreateCategory(ctx, expense.CategoryInput{Name: "Maintenance"})
	if err != nil {
		return ScenarioResultDTO{}, err
	}
	y, err := h.svc.Expenses.CreateCategory(ctx, expense.CategoryInput{Name: "Plumbing", ParentID: &x.ID})
	if err != nil {
		return ScenarioResultDTO{}, err
	}
	z, err := h.svc.Expenses.CreateCategory(ctx, expense.CategoryInput{Name: "Emergency Plumbing", ParentID: &y.ID})
	if err != nil {
		return ScenarioResultDTO{}, err
	}

	_, cycleErr := h.svc.Expenses.UpdateCategory(ctx, x.ID, expense.CategoryUpdate{ParentID: &z.ID})
	if cycleErr == nil || !ledger.IsConflict(cycleErr) {
		return ScenarioResultDTO{}, cycleErr
	}
	after, err := h.svc.Expenses.Category(ctx, x.ID)
	if err != nil {
		return ScenarioResultDTO{}, err
	}
	return ScenarioResultDTO{
		Created: map[string]string{"x": string(x.ID), "y": string(y.ID), "z": string(z.ID)},
		Outcome: map[string]any{"rejected": cycleErr.Error(), "x_after": toCategoryDTO(after)},
	}, nil
}
