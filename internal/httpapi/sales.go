package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/service"
)

func (a *API) saleRoutes(r chi.Router) {
	r.Post("/", a.handleCreateSale)
	r.Get("/", a.handleListSales)
	r.Get("/{id}", a.handleGetSale)
	r.Get("/{id}/invoice", a.handleInvoice)
	r.Get("/{id}/receipt", a.handleReceipt)
}

func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sale, err := a.service.CreateSale(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	perPage, _ := strconv.Atoi(query.Get("per_page"))

	resp, err := a.service.ListSales(r.Context(), service.SaleQuery{
		From:    query.Get("from"),
		To:      query.Get("to"),
		UserID:  query.Get("user_id"),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	detail, err := a.service.GetSaleDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) handleInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, err := a.service.Invoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	if r.URL.Query().Get("format") != "html" {
		writeJSON(w, http.StatusOK, invoice)
		return
	}
	body, err := renderInvoiceHTML(invoice, a.service.Location())
	if err != nil {
		a.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (a *API) handleReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := a.service.BuildReceipt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (a *API) handleCreateReturn(w http.ResponseWriter, r *http.Request) {
	var req domain.ReturnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ret, err := a.service.CreateReturn(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"return": ret})
}

func (a *API) purchaseRoutes(r chi.Router) {
	r.Post("/", a.handleCreatePurchase)
	r.Get("/", a.handleListPurchases)
	r.Get("/stats", a.handlePurchaseStats)
	r.Get("/{id}", a.handleGetPurchase)
}

func (a *API) handleCreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req domain.PurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	purchase, err := a.service.CreatePurchase(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"purchase": purchase})
}

func (a *API) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	purchases, err := a.service.ListPurchases(r.Context(), service.PurchaseQuery{
		From:       query.Get("from"),
		To:         query.Get("to"),
		SupplierID: query.Get("supplier_id"),
		Limit:      parsePositiveLimit(query.Get("limit"), 100, 500),
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchases": purchases})
}

func (a *API) handlePurchaseStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.service.PurchaseStats(r.Context(), r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleGetPurchase(w http.ResponseWriter, r *http.Request) {
	purchase, err := a.service.GetPurchase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchase": purchase})
}

func (a *API) handleCashDrawerOpen(w http.ResponseWriter, r *http.Request) {
	var req domain.CashDrawerOpenRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	resp, err := a.service.OpenCashDrawer(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
