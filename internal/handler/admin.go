package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/qbit/internal/core"
	"github.com/qbit/internal/model"
)

type AdminHandler struct {
	svc *core.Service
}

func NewAdminHandler(svc *core.Service) *AdminHandler {
	return &AdminHandler{svc: svc}
}

func (h *AdminHandler) ListBans(w http.ResponseWriter, r *http.Request) {
	bans, err := h.svc.Bans(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if bans == nil {
		bans = []model.BanEntry{}
	}
	writeJSON(w, http.StatusOK, bans)
}

type banRequest struct {
	Namespace string `json:"namespace"`
	Value     string `json:"value"`
	// WithAddresses also bans every address an account is connected from.
	WithAddresses bool `json:"withAddresses"`
}

func (h *AdminHandler) AddBan(w http.ResponseWriter, r *http.Request) {
	var req banRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	ns, err := model.ParseBanNamespace(req.Namespace)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := h.svc.Ban(r.Context(), ns, req.Value, req.WithAddresses)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"disconnected": n})
}

func (h *AdminHandler) RemoveBan(w http.ResponseWriter, r *http.Request) {
	ns, err := model.ParseBanNamespace(chi.URLParam(r, "namespace"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.Unban(r.Context(), ns, chi.URLParam(r, "value")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
