package handler

import (
	"net/http"
	"strconv"

	"github.com/hitoshi/ksiportal/internal/billing"
	"github.com/hitoshi/ksiportal/internal/middleware"
	"github.com/hitoshi/ksiportal/internal/model"
)

// BillingHandler は請求履歴と支払いのHTTPハンドラー。
type BillingHandler struct{}

// NewBillingHandler はBillingHandlerを生成する。
func NewBillingHandler() *BillingHandler {
	return &BillingHandler{}
}

// billResponse は請求履歴の1件。Period は "Spring 2025" 形式。
type billResponse struct {
	model.BillingHistoryItem
	Period string `json:"period"`
}

// BillingHistory は請求履歴を取得して返す。
// GET /api/billing-history
func (h *BillingHandler) BillingHistory(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}
	if err := ws.Billing.FetchHistory(r.Context()); err != nil {
		handleError(w, err)
		return
	}

	items := ws.Billing.History.Snapshot().Data
	out := make([]billResponse, 0, len(items))
	for _, item := range items {
		out = append(out, billResponse{
			BillingHistoryItem: item,
			Period:             model.RegistrationPeriod(item.RegYear, item.RegSem),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// PayBill は請求の支払いを開始する。
// 決済URLはブラウザが新しいタブで開くため、レスポンスで返す。
// POST /api/billing/{id}/pay
func (h *BillingHandler) PayBill(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}
	id, ok := intParam(w, r, "id")
	if !ok {
		return
	}

	if !ws.Billing.History.Loaded() {
		if err := ws.Billing.FetchHistory(r.Context()); err != nil {
			handleError(w, err)
			return
		}
	}
	item, found := ws.Billing.FindBill(id)
	if !found {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewBillNotFoundError(strconv.Itoa(id)))
		return
	}
	if item.IsBillPaid {
		middleware.WriteErrorResponse(w, http.StatusConflict,
			model.NewInvalidRequestError("This bill has already been paid."))
		return
	}

	var opened string
	result, err := ws.Orchestrator.PayBill(r.Context(), item, billing.NavigatorFunc(func(paymentURL string) {
		opened = paymentURL
	}))
	if err != nil {
		handleError(w, err)
		return
	}
	result.PaymentURL = opened
	writeJSON(w, http.StatusOK, result)
}
