package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/qbit/internal/auth"
	"github.com/qbit/internal/core"
	"github.com/qbit/internal/middleware"
)

type RouterConfig struct {
	Auth               auth.Authenticator
	WS                 WSConfig
	AdminAPIKey        string
	CORSAllowedOrigins string
	HeartbeatInterval  time.Duration
	// PokesPerMinute limits HTTP pokes per user. Zero means 60.
	PokesPerMinute int
}

// NewRouter mounts every HTTP and websocket route of the server.
func NewRouter(svc *core.Service, cfg RouterConfig) (http.Handler, *WSHandler) {
	if cfg.PokesPerMinute <= 0 {
		cfg.PokesPerMinute = 60
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	apiH := NewAPIHandler(svc)
	adminH := NewAdminHandler(svc)
	wsH := NewWSHandler(svc, cfg.WS)
	configH := NewConfigHandler(cfg.HeartbeatInterval)

	origins := []string{"*"}
	if o := strings.TrimSpace(cfg.CORSAllowedOrigins); o != "" && o != "*" {
		origins = strings.Split(o, ",")
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Admin-Key"},
		MaxAge:         300,
	}))

	r.Get("/health", apiH.Health)
	r.Get("/api/config", configH.GetClientConfig)
	r.Get("/device", wsH.ServeDevice)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(cfg.Auth))
		r.Get("/ws", wsH.ServeUser)
		r.Get("/api/devices", apiH.GetDevices)
		r.Get("/api/users", apiH.GetUsers)
		r.Get("/api/devices/{id}/claim", apiH.GetClaim)
		r.Post("/api/devices/{id}/claim", apiH.RequestClaim)
		r.Delete("/api/devices/{id}/claim", apiH.Unclaim)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(cfg.PokesPerMinute, time.Minute))
			r.Post("/api/devices/{id}/poke", apiH.PokeDevice)
			r.Post("/api/users/{id}/poke", apiH.PokeUser)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.AdminKey(cfg.AdminAPIKey))
		r.Get("/bans", adminH.ListBans)
		r.Post("/bans", adminH.AddBan)
		r.Delete("/bans/{namespace}/{value}", adminH.RemoveBan)
	})
	return r, wsH
}
