package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/qbit/internal/core"
	"github.com/qbit/internal/middleware"
)

type APIHandler struct {
	svc *core.Service
}

func NewAPIHandler(svc *core.Service) *APIHandler {
	return &APIHandler{svc: svc}
}

func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *APIHandler) GetDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.svc.Devices(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (h *APIHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.Users(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type claimResponse struct {
	DeviceID string `json:"deviceId"`
	State    string `json:"state"`
}

func (h *APIHandler) GetClaim(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, err := h.svc.ClaimState(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{DeviceID: id, State: string(state)})
}

// RequestClaim starts the handshake; the outcome arrives on the user's sockets as claim:result.
func (h *APIHandler) RequestClaim(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.GetIdentity(r.Context())
	id := chi.URLParam(r, "id")
	if err := h.svc.RequestClaim(r.Context(), identity, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, claimResponse{DeviceID: id, State: "pending"})
}

func (h *APIHandler) Unclaim(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.GetIdentity(r.Context())
	if err := h.svc.Unclaim(r.Context(), identity, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pokeRequest struct {
	Text              string `json:"text"`
	SenderBitmap      string `json:"senderBitmap"`
	SenderBitmapWidth int    `json:"senderBitmapWidth"`
	TextBitmap        string `json:"textBitmap"`
	TextBitmapWidth   int    `json:"textBitmapWidth"`
}

func (h *APIHandler) PokeDevice(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.GetIdentity(r.Context())
	var req pokeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	err := h.svc.PokeDevice(r.Context(), identity, chi.URLParam(r, "id"), core.Poke{
		Text:              req.Text,
		SenderBitmap:      req.SenderBitmap,
		SenderBitmapWidth: req.SenderBitmapWidth,
		TextBitmap:        req.TextBitmap,
		TextBitmapWidth:   req.TextBitmapWidth,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) PokeUser(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.GetIdentity(r.Context())
	var req pokeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	n, err := h.svc.PokeUser(r.Context(), identity, chi.URLParam(r, "id"), req.Text)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"delivered": n})
}
