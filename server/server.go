// Package server exposes the HTTP boundary: discussion and independent
// chat streaming over SSE, conversation CRUD, and the model catalog.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/parleyhq/parley/orchestrator"
	"github.com/parleyhq/parley/provider"
	"github.com/parleyhq/parley/provider/openrouter"
	"github.com/parleyhq/parley/store"
)

// Completer is the upstream surface the server needs: the provider
// interface for orchestrated turns and title generation, plus raw SSE
// passthrough for independent chat.
type Completer interface {
	provider.Provider
	Stream(ctx context.Context, model string, messages []provider.Message) (io.ReadCloser, error)
}

// ModelLister serves the model catalog.
type ModelLister interface {
	List(ctx context.Context) []openrouter.Model
}

// Server wires the handlers to their collaborators.
type Server struct {
	store     *store.Store
	orch      *orchestrator.Orchestrator
	completer Completer
	catalog   ModelLister
	validate  *validator.Validate
	log       *slog.Logger
}

// New creates a server. A nil logger falls back to slog's default.
func New(st *store.Store, orch *orchestrator.Orchestrator, completer Completer, catalog ModelLister, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store:     st,
		orch:      orch,
		completer: completer,
		catalog:   catalog,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		log:       log,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/discuss", s.handleDiscuss)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/models", s.handleModels)
	mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	mux.HandleFunc("POST /api/conversations", s.handleCreateConversation)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("PATCH /api/conversations/{id}", s.handleRenameConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)
	mux.HandleFunc("GET /api/conversations/{id}/messages", s.handleListMessages)
	mux.HandleFunc("POST /api/conversations/{id}/messages", s.handleCreateMessage)
	return mux
}
