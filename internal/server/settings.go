package server

import (
	"context"
	"net/http"
	"time"
)

// refetchTimeout bounds a manual refresh once it no longer follows the
// request context.
const refetchTimeout = 30 * time.Second

// GET /api/init
// Returns the bootstrap snapshot: state, categories and catalog metadata.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Bootstrap.Snapshot())
}

// POST /api/init/refresh
// Drops back to loading and fetches the init data again, blocking until
// the fetch succeeds or falls back. A client that disconnects does not
// abort the fetch shared by every user.
func (s *Server) handleInitRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), refetchTimeout)
	defer cancel()
	s.writeJSON(w, http.StatusOK, s.deps.Bootstrap.Refetch(ctx))
}

type settingsResponse struct {
	Provider  string            `json:"provider"`
	Contract  string            `json:"contract"`
	Model     string            `json:"model,omitempty"`
	Streaming bool              `json:"streaming"`
	Endpoints map[string]string `json:"endpoints"`
	Upstream  upstreamStatus    `json:"upstream"`
}

type upstreamStatus struct {
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

// GET /api/settings
// Describes the configured upstream and whether it currently answers.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	up := s.cfg.Upstream
	resp := settingsResponse{
		Provider:  up.Provider,
		Contract:  s.deps.Assistant.Contract(),
		Model:     s.deps.Model,
		Streaming: up.Streaming,
		Endpoints: map[string]string{
			"base":     up.BaseURL,
			"chat":     up.ChatPath,
			"stream":   up.StreamPath,
			"init":     up.InitPath,
			"health":   up.HealthPath,
			"products": up.ProductsPath,
			"options":  up.OptionsPath,
		},
	}
	if s.deps.Pinger == nil {
		resp.Upstream.Error = "no upstream configured"
	} else if err := s.deps.Pinger.Ping(r.Context()); err != nil {
		resp.Upstream.Error = err.Error()
	} else {
		resp.Upstream.Reachable = true
	}
	s.writeJSON(w, http.StatusOK, resp)
}
