package handler

import (
	"net/http"
	"time"

	"github.com/qbit/internal/core"
)

// ConfigHandler serves the public limits clients need to render their UI.
type ConfigHandler struct {
	heartbeat time.Duration
}

func NewConfigHandler(heartbeat time.Duration) *ConfigHandler {
	return &ConfigHandler{heartbeat: heartbeat}
}

// GetClientConfig needs no authentication.
func (h *ConfigHandler) GetClientConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{
		"claimTimeoutSec":      int(core.ClaimTimeout / time.Second),
		"heartbeatIntervalSec": int(h.heartbeat / time.Second),
		"maxPokeText":          core.MaxPokeText,
	})
}
