/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Runs each scenario against an empty store and checks the outcome it
	reports. The scenarios double as end-to-end tests of the engine.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenario_LateFeeCharge(t *testing.T) {
	// GIVEN: Rent due on the 1st, 5-day grace, $50 fixed fee
	// WHEN: Sweeping on the 10th
	// THEN: One $50 charge for March

	h := setupTestHandler(t)

	res, err := loadLateFeeChargeScenario(context.Background(), h)
	require.NoError(t, err)

	ev, ok := res.Outcome.(EvaluationDTO)
	require.True(t, ok)
	require.NotNil(t, ev.Charge)
	assert.Equal(t, "50.00", ev.Charge.Amount)
	assert.Equal(t, "2024-03-01", ev.Charge.PeriodStart.String())
	assert.NotEmpty(t, res.Created["obligation_id"])
}

func TestScenario_FIFOAllocation(t *testing.T) {
	// GIVEN: Pending $30 (January) and $20 (February) charges
	// WHEN: Paying $35
	// THEN: January is paid in full, February keeps $15

	h := setupTestHandler(t)

	res, err := loadFIFOAllocationScenario(context.Background(), h)
	require.NoError(t, err)

	out, ok := res.Outcome.(map[string]any)
	require.True(t, ok)
	payment := out["payment"].(PaymentResultDTO)
	require.Len(t, payment.Allocations, 2)
	assert.Equal(t, "30.00", payment.Allocations[0].Amount)
	assert.True(t, payment.Allocations[0].Full)
	assert.Equal(t, "5.00", payment.Allocations[1].Amount)
	assert.False(t, payment.Allocations[1].Full)
	assert.Equal(t, "0.00", payment.Remainder)

	byStatus := map[string][]ChargeDTO{}
	for _, c := range out["charges"].([]ChargeDTO) {
		byStatus[c.Status] = append(byStatus[c.Status], c)
	}
	require.Len(t, byStatus["paid"], 1)
	require.Len(t, byStatus["pending"], 1)
	assert.Equal(t, "15.00", byStatus["pending"][0].Amount)
	assert.Equal(t, "2024-02-01", byStatus["pending"][0].PeriodStart.String())
}

func TestScenario_PercentageClamp(t *testing.T) {
	h := setupTestHandler(t)

	res, err := loadPercentageClampScenario(context.Background(), h)
	require.NoError(t, err)

	ev := res.Outcome.(EvaluationDTO)
	require.NotNil(t, ev.Charge)
	assert.Equal(t, "40.00", ev.Charge.Amount)
}

func TestScenario_TrustTransfer(t *testing.T) {
	h := setupTestHandler(t)

	res, err := loadTrustTransferScenario(context.Background(), h)
	require.NoError(t, err)

	out := res.Outcome.(map[string]any)
	tr := out["transfer"].(TransferDTO)
	assert.Equal(t, "300.00", tr.Withdrawal.BalanceAfter)
	assert.Equal(t, "300.00", tr.Deposit.BalanceAfter)

	recs := out["reconciliation"].([]ReconciliationDTO)
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.True(t, r.Balanced, r.AccountID)
	}
}

func TestScenario_CategoryCycle(t *testing.T) {
	h := setupTestHandler(t)

	res, err := loadCategoryCycleScenario(context.Background(), h)
	require.NoError(t, err)

	out := res.Outcome.(map[string]any)
	assert.Contains(t, out["rejected"], "own ancestor")
	assert.Nil(t, out["x_after"].(CategoryDTO).ParentID)
}

func TestLoadScenario_ViaAPI(t *testing.T) {
	// GIVEN: The scenario endpoints
	// WHEN: Loading the same scenario twice
	// THEN: Both loads succeed on separate properties and it becomes current

	_, router := setupTestRouter(t)

	rec := do(t, router, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]ScenarioDTO](t, rec), len(scenarioLoaders))

	first := do(t, router, http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": "late-fee-charge"})
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	second := do(t, router, http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": "late-fee-charge"})
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())

	a := decodeBody[ScenarioResultDTO](t, first)
	b := decodeBody[ScenarioResultDTO](t, second)
	assert.Equal(t, "late-fee-charge", a.Scenario.ID)
	assert.NotEqual(t, a.Created["property_id"], b.Created["property_id"])

	rec = do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "late-fee-charge", decodeBody[ScenarioDTO](t, rec).ID)
}

func TestScenarioDefinitions_HaveLoaders(t *testing.T) {
	for _, s := range scenarios {
		_, ok := scenarioLoaders[s.ID]
		assert.True(t, ok, s.ID)
	}
}
