/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Obligation lifecycle over HTTP (create, sweep, pay, outstanding)
- Error kind to status mapping (400, 404, 409)
- Idempotent payments and trust overdrafts
- Spreadsheet export and disabled receipt processing
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wdeanegpt/property-sub001/store/sqlstore"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var fixedNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

func setupTestHandler(t *testing.T) *Handler {
	store, err := sqlstore.Open(sqlstore.SQLite, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(NewServices(store, nil, nil, nil), nil)
	h.now = func() time.Time { return fixedNow }
	return h
}

func setupTestRouter(t *testing.T) (*Handler, http.Handler) {
	h := setupTestHandler(t)
	return h, NewRouter(h, RouterConfig{})
}

func do(t *testing.T, router http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seedRent creates prop-1/unit-1 with $1000 monthly rent due on the 1st and
// a $50 fixed late fee after 5 days of grace. It returns the obligation id.
func seedRent(t *testing.T, router http.Handler) string {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/properties", map[string]any{"id": "prop-1", "name": "Elm Street"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/properties/prop-1/units", map[string]any{
		"id": "unit-1", "number": "1A", "market_rent": "1000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/obligations", map[string]any{
		"unit_id":    "unit-1",
		"kind":       "rent",
		"amount":     "1000",
		"frequency":  "monthly",
		"anchor_day": 1,
		"start_date": "2024-01-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	o := decodeBody[ObligationDTO](t, rec)
	assert.Equal(t, "prop-1", o.PropertyID)

	rec = do(t, router, http.MethodPost, "/api/late-fee-configs", map[string]any{
		"property_id":       "prop-1",
		"fee_type":          "fixed",
		"fee_value":         "50",
		"grace_period_days": 5,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return o.ID
}

// =============================================================================
// OBLIGATION LIFECYCLE
// =============================================================================

func TestObligationLifecycle(t *testing.T) {
	// GIVEN: Rent due Jan 1 with a $50 fee after 5 days of grace
	// WHEN: Sweeping on Jan 10, sweeping again, then paying $30
	// THEN: One charge is created, the rerun adds nothing, and the payment
	//       reduces the charge to $20

	_, router := setupTestRouter(t)
	id := seedRent(t, router)

	rec := do(t, router, http.MethodPost, "/api/sweep", map[string]any{"as_of": "2024-01-10"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decodeBody[SweepResultDTO](t, rec)
	assert.Equal(t, 1, first.Evaluated)
	require.Len(t, first.Charges, 1)
	assert.Equal(t, "50.00", first.Charges[0].Amount)
	assert.Equal(t, "2024-01-01", first.Charges[0].PeriodStart.String())

	rec = do(t, router, http.MethodPost, "/api/sweep", map[string]any{"as_of": "2024-01-10"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[SweepResultDTO](t, rec).Charges)

	rec = do(t, router, http.MethodPost, "/api/obligations/"+id+"/payments", map[string]any{
		"amount": "30", "payment_date": "2024-01-12", "method": "ach",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	paid := decodeBody[PaymentResultDTO](t, rec)
	require.Len(t, paid.Allocations, 1)
	assert.Equal(t, first.Charges[0].ID, paid.Allocations[0].ChargeID)
	assert.Equal(t, "30.00", paid.Allocations[0].Amount)
	assert.False(t, paid.Allocations[0].Full)
	assert.Equal(t, "0.00", paid.Remainder)

	rec = do(t, router, http.MethodGet, "/api/obligations/"+id+"/charges?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	charges := decodeBody[[]ChargeDTO](t, rec)
	require.Len(t, charges, 1)
	assert.Equal(t, "20.00", charges[0].Amount)
	assert.Equal(t, "50.00", charges[0].OriginalAmount)

	rec = do(t, router, http.MethodGet, "/api/payments/"+paid.Payment.ID+"/allocations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]AllocationDTO](t, rec), 1)
}

func TestTriggerSweep_DefaultsToToday(t *testing.T) {
	// GIVEN: A handler whose clock reads Jan 10
	// WHEN: Triggering a sweep with no body
	// THEN: The sweep runs as of Jan 10

	_, router := setupTestRouter(t)
	seedRent(t, router)

	req := httptest.NewRequest(http.MethodPost, "/api/sweep", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[SweepResultDTO](t, rec)
	assert.Equal(t, "2024-01-10", res.AsOf.String())
	assert.Len(t, res.Charges, 1)
}

func TestWaiveCharge(t *testing.T) {
	// GIVEN: A pending late fee
	// WHEN: Waiving it twice
	// THEN: The first succeeds, the second conflicts

	_, router := setupTestRouter(t)
	id := seedRent(t, router)
	rec := do(t, router, http.MethodPost, "/api/obligations/"+id+"/sweep?as_of=2024-01-10", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ev := decodeBody[EvaluationDTO](t, rec)
	require.NotNil(t, ev.Charge)

	rec = do(t, router, http.MethodPost, "/api/charges/"+ev.Charge.ID+"/waive", map[string]any{"reason": "first offence"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	c := decodeBody[ChargeDTO](t, rec)
	assert.Equal(t, "waived", c.Status)
	assert.Equal(t, "first offence", c.WaivedReason)

	rec = do(t, router, http.MethodPost, "/api/charges/"+ev.Charge.ID+"/waive", map[string]any{"reason": "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestErrorStatusMapping(t *testing.T) {
	_, router := setupTestRouter(t)
	id := seedRent(t, router)

	tests := []struct {
		name      string
		method    string
		path      string
		body      any
		wantCode  int
		wantField string
	}{
		{
			name:      "missing required field",
			method:    http.MethodPost,
			path:      "/api/obligations",
			body:      map[string]any{"unit_id": "unit-1", "amount": "10", "frequency": "monthly", "anchor_day": 1},
			wantCode:  http.StatusBadRequest,
			wantField: "kind",
		},
		{
			name:      "payment below one cent",
			method:    http.MethodPost,
			path:      "/api/obligations/" + id + "/payments",
			body:      map[string]any{"amount": "0.004", "payment_date": "2024-01-05", "method": "ach"},
			wantCode:  http.StatusBadRequest,
			wantField: "amount",
		},
		{
			name:     "unknown field",
			method:   http.MethodPost,
			path:     "/api/properties",
			body:     map[string]any{"name": "x", "color": "blue"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:      "bad query date",
			method:    http.MethodGet,
			path:      "/api/properties/prop-1/aging?as_of=yesterday",
			wantCode:  http.StatusBadRequest,
			wantField: "as_of",
		},
		{
			name:     "missing obligation",
			method:   http.MethodGet,
			path:     "/api/obligations/nope",
			wantCode: http.StatusNotFound,
		},
		{
			name:     "missing unit owner",
			method:   http.MethodPost,
			path:     "/api/obligations",
			body:     map[string]any{"unit_id": "ghost", "kind": "rent", "amount": "10", "frequency": "monthly", "anchor_day": 1, "start_date": "2024-01-01"},
			wantCode: http.StatusNotFound,
		},
		{
			name:     "unknown scenario",
			method:   http.MethodPost,
			path:     "/api/scenarios/load",
			body:     map[string]any{"scenario_id": "nope"},
			wantCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			resp := decodeBody[ErrorResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, resp.Field)
			}
		})
	}
}

func TestRecordPayment_IdempotencyKeyConflicts(t *testing.T) {
	// GIVEN: A payment recorded with an Idempotency-Key header
	// WHEN: The same request is retried
	// THEN: The retry gets 409 and only one payment exists

	_, router := setupTestRouter(t)
	id := seedRent(t, router)
	body := map[string]any{"amount": "1000", "payment_date": "2024-01-02", "method": "check"}

	rec := do(t, router, http.MethodPost, "/api/obligations/"+id+"/payments", body, "Idempotency-Key", "pay-jan")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "pay-jan", decodeBody[PaymentResultDTO](t, rec).Payment.IdempotencyKey)

	rec = do(t, router, http.MethodPost, "/api/obligations/"+id+"/payments", body, "Idempotency-Key", "pay-jan")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/obligations/"+id+"/payments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]PaymentDTO](t, rec), 1)
}

// =============================================================================
// TRUST ACCOUNTS
// =============================================================================

func TestTrust_OverdraftRejected(t *testing.T) {
	// GIVEN: An account holding $100
	// WHEN: Withdrawing $150
	// THEN: 409 and the balance is unchanged

	_, router := setupTestRouter(t)
	seedRent(t, router)

	rec := do(t, router, http.MethodPost, "/api/trust/accounts", map[string]any{
		"property_id": "prop-1", "name": "Deposits", "account_type": "security_deposit", "opening_balance": "100",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	acct := decodeBody[AccountDTO](t, rec)
	assert.Equal(t, "100.00", acct.Balance)

	rec = do(t, router, http.MethodPost, "/api/trust/accounts/"+acct.ID+"/withdrawals", map[string]any{"amount": "150"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Error, "insufficient funds")

	rec = do(t, router, http.MethodGet, "/api/trust/accounts/"+acct.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100.00", decodeBody[AccountDTO](t, rec).Balance)

	rec = do(t, router, http.MethodGet, "/api/trust/accounts/"+acct.ID+"/reconcile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[ReconciliationDTO](t, rec).Balanced)
}

func TestTrust_Transfer(t *testing.T) {
	_, router := setupTestRouter(t)
	seedRent(t, router)

	open := func(name, balance string) string {
		rec := do(t, router, http.MethodPost, "/api/trust/accounts", map[string]any{
			"property_id": "prop-1", "name": name, "account_type": "escrow", "opening_balance": balance,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		return decodeBody[AccountDTO](t, rec).ID
	}
	from, to := open("A", "500"), open("B", "100")

	rec := do(t, router, http.MethodPost, "/api/trust/transfers", map[string]any{
		"from_account_id": from, "to_account_id": to, "amount": "200",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tr := decodeBody[TransferDTO](t, rec)
	assert.Equal(t, "300.00", tr.Withdrawal.BalanceAfter)
	assert.Equal(t, "300.00", tr.Deposit.BalanceAfter)
	assert.Equal(t, tr.TransferID, tr.Deposit.TransferID)

	rec = do(t, router, http.MethodPost, "/api/trust/transfers", map[string]any{
		"from_account_id": from, "to_account_id": from, "amount": "1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// EXPENSES, RECEIPTS & REPORTS
// =============================================================================

func TestCategoryCycleRejected(t *testing.T) {
	_, router := setupTestRouter(t)

	create := func(name string, parent *string) string {
		rec := do(t, router, http.MethodPost, "/api/categories", map[string]any{"name": name, "parent_id": parent})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		return decodeBody[CategoryDTO](t, rec).ID
	}
	x := create("Maintenance", nil)
	y := create("Plumbing", &x)

	rec := do(t, router, http.MethodPatch, "/api/categories/"+x, map[string]any{"parent_id": y})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/categories/"+x, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeBody[CategoryDTO](t, rec).ParentID)
}

func TestSubmitReceipt_DisabledIs503(t *testing.T) {
	_, router := setupTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/receipts", map[string]any{"receipt_id": "r-1", "image": []byte("jpeg")})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRentRoll_XLSX(t *testing.T) {
	// GIVEN: A property with one unit
	// WHEN: Requesting the rent roll as a spreadsheet
	// THEN: An xlsx attachment comes back

	_, router := setupTestRouter(t)
	seedRent(t, router)

	rec := do(t, router, http.MethodGet, "/api/properties/prop-1/rent-roll?as_of=2024-01-10&format=xlsx", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")
}

func TestRentRoll_JSON(t *testing.T) {
	_, router := setupTestRouter(t)
	seedRent(t, router)

	rec := do(t, router, http.MethodGet, "/api/properties/prop-1/rent-roll?as_of=2024-01-10", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	roll := decodeBody[RentRollDTO](t, rec)
	assert.Len(t, roll.Rows, 1)
}

func TestHealth(t *testing.T) {
	_, router := setupTestRouter(t)

	rec := do(t, router, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
