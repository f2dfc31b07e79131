package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/service"
)

func (a *API) animalRoutes(r chi.Router) {
	r.Get("/", a.handleListAnimals)
	r.Post("/", a.handleCreateAnimal)
	r.Get("/search", a.handleSearchAnimals)
	r.Get("/species", a.handleListSpecies)
	r.Get("/{id}", a.handleClinicalHistory)
	r.Patch("/{id}", a.handleUpdateAnimal)
	r.Delete("/{id}", a.handleDeactivateAnimal)
	r.Post("/{id}/consultations", a.handleCreateConsultation)
}

func (a *API) handleListAnimals(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	animals, err := a.service.ListAnimals(r.Context(), domain.AnimalFilter{
		Query:           query.Get("q"),
		Species:         query.Get("species"),
		IncludeInactive: queryBool(r, "include_inactive"),
		Limit:           parsePositiveLimit(query.Get("limit"), 200, 500),
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"animals": animals})
}

func (a *API) handleCreateAnimal(w http.ResponseWriter, r *http.Request) {
	var req domain.AnimalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	animal, err := a.service.CreateAnimal(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"animal": animal})
}

func (a *API) handleSearchAnimals(w http.ResponseWriter, r *http.Request) {
	animals, err := a.service.SearchAnimals(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"animals": animals})
}

func (a *API) handleListSpecies(w http.ResponseWriter, r *http.Request) {
	species, err := a.service.ListSpecies(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"species": species})
}

func (a *API) handleClinicalHistory(w http.ResponseWriter, r *http.Request) {
	history, err := a.service.ClinicalHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (a *API) handleUpdateAnimal(w http.ResponseWriter, r *http.Request) {
	var req domain.AnimalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	animal, err := a.service.UpdateAnimal(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"animal": animal})
}

func (a *API) handleDeactivateAnimal(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeactivateAnimal(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCreateConsultation(w http.ResponseWriter, r *http.Request) {
	var req domain.ConsultationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.CreateConsultation(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) consultationRoutes(r chi.Router) {
	r.Get("/pending", a.handlePendingConsultations)
	r.Get("/{id}", a.handleGetConsultation)
	r.Get("/{id}/cart", a.handleConsultationCart)
	r.Post("/{id}/sale", a.handleBillConsultation)
}

func (a *API) handlePendingConsultations(w http.ResponseWriter, r *http.Request) {
	pending, err := a.service.PendingConsultations(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"consultations": pending})
}

func (a *API) handleGetConsultation(w http.ResponseWriter, r *http.Request) {
	consultation, err := a.service.GetConsultation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"consultation": consultation})
}

func (a *API) handleConsultationCart(w http.ResponseWriter, r *http.Request) {
	cart, err := a.service.ConsultationCart(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (a *API) handleBillConsultation(w http.ResponseWriter, r *http.Request) {
	var req domain.ConsultationBillRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sale, err := a.service.BillConsultation(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
}

func (a *API) assistantRoutes(r chi.Router) {
	r.Use(a.limitAssistant)
	r.Post("/chat", a.handleAssistantChat)
	r.Post("/sales-help", a.handleSalesHelp)
}

// limitAssistant caps model calls per user since every request costs quota.
func (a *API) limitAssistant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if actor, ok := service.ActorFromContext(r.Context()); ok {
			key = actor.UserID
		}
		if !a.assistantLimiter.Allow(key) {
			writeError(w, http.StatusTooManyRequests, errors.New("too many assistant requests"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleAssistantChat(w http.ResponseWriter, r *http.Request) {
	var req domain.AssistantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.AssistantChat(r.Context(), req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSalesHelp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.AssistantSalesHelp(r.Context(), req.Message)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
