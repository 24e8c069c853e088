package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wdeanegpt/property-sub001/ledger"
	"github.com/wdeanegpt/property-sub001/trust"
)

// =============================================================================
// TRUST ACCOUNT HANDLERS
// =============================================================================
//
//   GET    /api/trust/accounts                   List (property_id, active)
//   POST   /api/trust/accounts                   Open account
//   GET    /api/trust/accounts/{id}              Account with balance
//   GET    /api/trust/accounts/{id}/transactions Postings, oldest first
//   POST   /api/trust/accounts/{id}/deposits     Deposit
//   POST   /api/trust/accounts/{id}/withdrawals  Withdraw (409 if short)
//   GET    /api/trust/accounts/{id}/reconcile    Reconcile one account
//   POST   /api/trust/transfers                  Transfer between accounts
//   POST   /api/trust/reconcile                  Reconcile every account

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	accounts, err := h.svc.Trust.Accounts(r.Context(), ledger.TrustAccountFilter{
		PropertyID: ledger.PropertyID(q.Get("property_id")),
		ActiveOnly: q.Get("active") == "true",
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var req OpenAccountRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	opening := decimal.Zero
	if req.OpeningBalance != "" {
		d, err := ledger.ParseMoney("opening_balance", req.OpeningBalance)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		opening = d
	}
	a, err := h.svc.Trust.OpenAccount(r.Context(), trust.AccountInput{
		Owner:          req.owner(),
		Name:           req.Name,
		AccountType:    ledger.AccountType(req.AccountType),
		OpeningBalance: opening,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(a))
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Trust.Account(r.Context(), ledger.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(a))
}

func (h *Handler) AccountHistory(w http.ResponseWriter, r *http.Request) {
	txs, err := h.svc.Trust.History(r.Context(), ledger.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]TrustTransactionDTO, len(txs))
	for i, t := range txs {
		dtos[i] = toTrustTransactionDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.posting(w, r, h.svc.Trust.Deposit)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.posting(w, r, h.svc.Trust.Withdraw)
}

type postFunc func(ctx context.Context, id ledger.AccountID, amount decimal.Decimal, meta trust.Meta) (ledger.TrustTransaction, error)

func (h *Handler) posting(w http.ResponseWriter, r *http.Request, post postFunc) {
	var req PostingRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := ledger.ParseMoney("amount", req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tx, err := post(r.Context(), ledger.AccountID(chi.URLParam(r, "id")), amount,
		trust.Meta{Description: req.Description, Reference: req.Reference})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTrustTransactionDTO(tx))
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := ledger.ParseMoney("amount", req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.svc.Trust.Transfer(r.Context(),
		ledger.AccountID(req.FromAccountID), ledger.AccountID(req.ToAccountID), amount,
		trust.Meta{Description: req.Description, Reference: req.Reference})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransferDTO(res))
}

// ReconcileAccount returns the report with 200 when balanced and 500 with
// the report attached when the account does not add up.
func (h *Handler) ReconcileAccount(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Trust.Reconcile(r.Context(), ledger.AccountID(chi.URLParam(r, "id")))
	if err != nil && !ledger.IsIntegrity(err) {
		h.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusInternalServerError
		h.logger.Error("trust account out of balance", zap.String("account_id", string(rep.AccountID)), zap.Error(err))
	}
	writeJSON(w, status, toReconciliationDTO(rep))
}

// ReconcileAll checks every account. Mismatches are listed, not corrected.
func (h *Handler) ReconcileAll(w http.ResponseWriter, r *http.Request) {
	reports, err := h.svc.Trust.ReconcileAll(r.Context(), ledger.TrustAccountFilter{
		PropertyID: ledger.PropertyID(r.URL.Query().Get("property_id")),
	})
	if err != nil && !ledger.IsIntegrity(err) {
		h.fail(w, r, err)
		return
	}
	dtos := make([]ReconciliationDTO, len(reports))
	for i, rep := range reports {
		dtos[i] = toReconciliationDTO(rep)
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusInternalServerError
		h.logger.Error("trust reconciliation found mismatches", zap.Error(err))
	}
	writeJSON(w, status, dtos)
}
