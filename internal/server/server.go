// Package server exposes the shopping assistant over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"shopping-assistant-backend/internal/bootstrap"
	"shopping-assistant-backend/internal/config"
	"shopping-assistant-backend/internal/conversation"
	"shopping-assistant-backend/internal/types"
	"shopping-assistant-backend/internal/upstream"
)

type Assistant interface {
	Chat(ctx context.Context, req types.ChatRequest) (*types.ChatReply, error)
	ChatStream(ctx context.Context, req types.ChatRequest, emit func(types.StreamEvent)) (*types.ChatReply, error)
	Contract() string
}

type Bootstrap interface {
	Snapshot() bootstrap.Snapshot
	Refetch(ctx context.Context) bootstrap.Snapshot
}

type Conversations interface {
	List(ctx context.Context) ([]conversation.Conversation, error)
	Get(ctx context.Context, id string) (*conversation.Conversation, error)
	Delete(ctx context.Context, id string) error
	UpdateTitle(ctx context.Context, id, title string) error
}

type Catalog interface {
	ProductsByName(ctx context.Context, productName string) ([]upstream.Product, error)
	Product(ctx context.Context, id int) (*upstream.Product, error)
	Options(ctx context.Context, column string) ([]string, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the HTTP surface. Catalog and Pinger may be
// nil when no shopping backend is configured.
type Deps struct {
	Assistant     Assistant
	Bootstrap     Bootstrap
	Conversations Conversations
	Catalog       Catalog
	Pinger        Pinger
	// Model names the model answering chat turns, for the settings page.
	Model  string
	Logger *zap.Logger
}

type Server struct {
	router   *chi.Mux
	cfg      config.Config
	deps     Deps
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewServer(cfg config.Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{ConversationHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s := &Server{
		router: r,
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/settings", s.handleSettings)

	s.router.Get("/api/init", s.handleInit)
	s.router.Post("/api/init/refresh", s.handleInitRefresh)

	s.router.Post("/api/chat", s.handleChat)
	s.router.Post("/api/chat/stream", s.handleChatStream)
	s.router.Get("/api/chat/ws", s.handleChatWS)
	s.router.Post("/api/validate", s.handleValidate)

	s.router.Route("/api/conversations", func(r chi.Router) {
		r.Get("/", s.handleListConversations)
		r.Get("/{id}", s.handleGetConversation)
		r.Delete("/{id}", s.handleDeleteConversation)
		r.Patch("/{id}/title", s.handleRenameConversation)
	})

	s.router.Get("/api/products", s.handleProducts)
	s.router.Get("/api/products/{id}", s.handleProduct)
	s.router.Get("/api/options/{column}", s.handleOptions)
}

func (s *Server) Router() http.Handler { return s.router }

// HTTPServer wraps the router with the timeouts used in production. Write
// timeout is left unset because chat streams stay open for a whole turn.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Address(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, types.ErrorResponse{Error: msg})
}
