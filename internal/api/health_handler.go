package api

import (
	"context"
	"net/http"
	"time"

	"github.com/blagoySimandov/autoflow/internal/models"
	"github.com/blagoySimandov/autoflow/internal/state"
)

const (
	healthPingTimeout = 3 * time.Second
	aiTestTimeout     = 15 * time.Second
)

type ConnectionTester interface {
	Configured() bool
	TestConnection(ctx context.Context) (string, error)
}

type TransportModes interface {
	Simulated(ch models.Channel) bool
}

type HealthHandler struct {
	store       state.Store
	generator   ConnectionTester
	transports  TransportModes
	provider    string
	authEnabled bool
}

func NewHealthHandler(store state.Store, generator ConnectionTester, transports TransportModes, provider string, authEnabled bool) *HealthHandler {
	return &HealthHandler{
		store:       store,
		generator:   generator,
		transports:  transports,
		provider:    provider,
		authEnabled: authEnabled,
	}
}

type HealthResponse struct {
	Status       string            `json:"status"`
	Store        string            `json:"store"`
	AIProvider   string            `json:"aiProvider"`
	AIConfigured bool              `json:"aiConfigured"`
	Channels     map[string]string `json:"channels"`
	AuthEnabled  bool              `json:"authEnabled"`
	Timestamp    string            `json:"timestamp"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:       "Online",
		Store:        h.storeStatus(r.Context()),
		AIProvider:   h.provider,
		AIConfigured: h.generator.Configured(),
		Channels:     make(map[string]string, len(models.ChannelPriority)),
		AuthEnabled:  h.authEnabled,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	for _, ch := range models.ChannelPriority {
		mode := "live"
		if h.transports.Simulated(ch) {
			mode = "simulated"
		}
		resp.Channels[string(ch)] = mode
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HealthHandler) storeStatus(ctx context.Context) string {
	if h.store == nil {
		return "not_configured"
	}
	ctx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		return "unreachable"
	}
	return "reachable"
}

type AITestResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (h *HealthHandler) AITest(w http.ResponseWriter, r *http.Request) {
	if !h.generator.Configured() {
		writeJSON(w, http.StatusOK, AITestResponse{Error: "No API key configured"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), aiTestTimeout)
	defer cancel()
	reply, err := h.generator.TestConnection(ctx)
	if err != nil {
		writeJSON(w, http.StatusOK, AITestResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, AITestResponse{Success: true, Response: reply})
}
