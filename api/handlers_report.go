package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wdeanegpt/property-sub001/ledger"
	"github.com/wdeanegpt/property-sub001/report"
)

// =============================================================================
// REPORT HANDLERS
// =============================================================================
//
//   GET /api/properties/{id}/rent-roll?as_of=&format=xlsx
//   GET /api/properties/{id}/aging?as_of=
//   GET /api/reports/expenses?group_by=&format=xlsx (+ expense filters)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *Handler) RentRoll(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	propertyID := ledger.PropertyID(chi.URLParam(r, "id"))
	roll, err := h.svc.Reports.RentRoll(r.Context(), propertyID, asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if wantsXLSX(r) {
		h.writeXLSX(w, r, fmt.Sprintf("rent-roll-%s-%s.xlsx", propertyID, asOf), func(buf *bytes.Buffer) error {
			return report.WriteRentRollXLSX(buf, roll)
		})
		return
	}
	writeJSON(w, http.StatusOK, toRentRollDTO(roll))
}

func (h *Handler) Aging(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOf(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rep, err := h.svc.Reports.Aging(r.Context(), ledger.PropertyID(chi.URLParam(r, "id")), asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgingDTO(rep))
}

func (h *Handler) ExpenseReport(w http.ResponseWriter, r *http.Request) {
	f, err := expenseFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	groupBy := report.GroupBy(r.URL.Query().Get("group_by"))
	if groupBy == "" {
		groupBy = report.GroupByCategory
	}
	rep, err := h.svc.Reports.ExpenseReport(r.Context(), report.ExpenseReportQuery{Filter: f, GroupBy: groupBy})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if wantsXLSX(r) {
		h.writeXLSX(w, r, fmt.Sprintf("expenses-by-%s.xlsx", groupBy), func(buf *bytes.Buffer) error {
			return report.WriteExpenseReportXLSX(buf, rep)
		})
		return
	}
	writeJSON(w, http.StatusOK, toExpenseReportDTO(rep))
}

func wantsXLSX(r *http.Request) bool {
	return r.URL.Query().Get("format") == "xlsx"
}

// writeXLSX renders into a buffer first so a failed export still gets a
// JSON error instead of a truncated file.
func (h *Handler) writeXLSX(w http.ResponseWriter, r *http.Request, filename string, render func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
