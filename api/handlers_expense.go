package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/wdeanegpt/property-sub001/expense"
	"github.com/wdeanegpt/property-sub001/ledger"
)

// =============================================================================
// CATEGORY HANDLERS
// =============================================================================
//
//   GET    /api/categories                  List (parent_id, active)
//   POST   /api/categories                  Create
//   GET    /api/categories/{id}             Get
//   PATCH  /api/categories/{id}             Rename, tax flag, re-parent (409 on cycle)
//   POST   /api/categories/{id}/deactivate  Deactivate, moving expenses and children up

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ledger.CategoryFilter{ActiveOnly: q.Get("active") == "true"}
	if q.Has("parent_id") {
		id := ledger.CategoryID(q.Get("parent_id"))
		f.ParentID = &id
	}
	cats, err := h.svc.Expenses.Categories(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]CategoryDTO, len(cats))
	for i, c := range cats {
		dtos[i] = toCategoryDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CreateCategoryRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.svc.Expenses.CreateCategory(r.Context(), expense.CategoryInput{
		Name:          req.Name,
		ParentID:      categoryID(req.ParentID),
		TaxDeductible: req.TaxDeductible,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryDTO(c))
}

func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Expenses.Category(r.Context(), ledger.CategoryID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryDTO(c))
}

func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req UpdateCategoryRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.svc.Expenses.UpdateCategory(r.Context(), ledger.CategoryID(chi.URLParam(r, "id")), expense.CategoryUpdate{
		Name:          req.Name,
		TaxDeductible: req.TaxDeductible,
		ParentID:      categoryID(req.ParentID),
		ClearParent:   req.ClearParent,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryDTO(c))
}

func (h *Handler) DeactivateCategory(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Expenses.DeactivateCategory(r.Context(), ledger.CategoryID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeactivationDTO{
		Category:           toCategoryDTO(res.Category),
		ExpensesReassigned: res.ExpensesReassigned,
		ChildrenReparented: res.ChildrenReparented,
	})
}

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================
//
//   GET    /api/expenses                  List (property_id, unit_id, category_id, vendor, status, from, to)
//   POST   /api/expenses                  Record
//   GET    /api/expenses/{id}             Get
//   POST   /api/expenses/{id}/status      Change status (paid needs date and method)
//   PUT    /api/expenses/{id}/category    Recategorize

func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	f, err := expenseFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	expenses, err := h.svc.Expenses.Expenses(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]ExpenseDTO, len(expenses))
	for i, e := range expenses {
		dtos[i] = toExpenseDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) RecordExpense(w http.ResponseWriter, r *http.Request) {
	var req CreateExpenseRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := ledger.ParseMoney("amount", req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tax := decimal.Zero
	if req.TaxAmount != "" {
		if tax, err = ledger.ParseMoney("tax_amount", req.TaxAmount); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	e, err := h.svc.Expenses.RecordExpense(r.Context(), expense.ExpenseInput{
		Owner:           req.owner(),
		CategoryID:      categoryID(req.CategoryID),
		Vendor:          req.Vendor,
		Description:     req.Description,
		Amount:          amount,
		TaxAmount:       tax,
		TransactionDate: req.TransactionDate,
		Status:          ledger.ExpenseStatus(req.Status),
		PaymentDate:     req.PaymentDate,
		PaymentMethod:   req.PaymentMethod,
		ReceiptID:       ledger.ReceiptID(req.ReceiptID),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseDTO(e))
}

func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Expenses.Expense(r.Context(), ledger.ExpenseID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(e))
}

func (h *Handler) UpdateExpenseStatus(w http.ResponseWriter, r *http.Request) {
	var req ExpenseStatusRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.svc.Expenses.UpdateStatus(r.Context(), ledger.ExpenseID(chi.URLParam(r, "id")), expense.StatusChange{
		Status:        ledger.ExpenseStatus(req.Status),
		PaymentDate:   req.PaymentDate,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(e))
}

func (h *Handler) RecategorizeExpense(w http.ResponseWriter, r *http.Request) {
	var req RecategorizeRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.svc.Expenses.Recategorize(r.Context(), ledger.ExpenseID(chi.URLParam(r, "id")), categoryID(req.CategoryID))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(e))
}

// =============================================================================
// RECEIPT HANDLERS
// =============================================================================
//
//   POST   /api/receipts              Queue a receipt image (202)
//   GET    /api/receipts/{id}/draft   Expense pre-filled from the extraction

// SubmitReceipt queues the image and returns immediately. Submitting the
// same receipt id again is harmless.
func (h *Handler) SubmitReceipt(w http.ResponseWriter, r *http.Request) {
	if h.svc.Receipts == nil {
		writeError(w, http.StatusServiceUnavailable, "receipt processing is disabled", nil)
		return
	}
	var req SubmitReceiptRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	err := h.svc.Receipts.Submit(r.Context(), expense.ReceiptJob{
		ReceiptID: ledger.ReceiptID(req.ReceiptID),
		ExpenseID: ledger.ExpenseID(req.ExpenseID),
		Image:     req.Image,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"receipt_id": req.ReceiptID, "status": "queued"})
}

func (h *Handler) DraftFromReceipt(w http.ResponseWriter, r *http.Request) {
	draft, err := h.svc.Expenses.DraftFromReceipt(r.Context(), ledger.ReceiptID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDraftDTO(draft))
}

// expenseFilter reads the shared expense query parameters.
func expenseFilter(r *http.Request) (ledger.ExpenseFilter, error) {
	q := r.URL.Query()
	f := ledger.ExpenseFilter{
		PropertyID: ledger.PropertyID(q.Get("property_id")),
		UnitID:     ledger.UnitID(q.Get("unit_id")),
		Vendor:     q.Get("vendor"),
	}
	if c := q.Get("category_id"); c != "" {
		id := ledger.CategoryID(c)
		f.CategoryID = &id
	}
	for _, s := range q["status"] {
		status := ledger.ExpenseStatus(s)
		if !status.Valid() {
			return f, ledger.NewValidationError("status", "unknown status "+s, nil)
		}
		f.Statuses = append(f.Statuses, status)
	}
	var err error
	if f.From, err = queryDate(r, "from"); err != nil {
		return f, err
	}
	if f.To, err = queryDate(r, "to"); err != nil {
		return f, err
	}
	return f, nil
}
