package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/parleyhq/parley/api"
	"github.com/parleyhq/parley/orchestrator"
	"github.com/parleyhq/parley/pkg/slogx"
	"github.com/parleyhq/parley/prompt"
	"github.com/parleyhq/parley/provider"
	"github.com/parleyhq/parley/store"
)

type discussRequest struct {
	ConversationID string            `json:"conversationId" validate:"required"`
	UserMessage    string            `json:"userMessage" validate:"required"`
	Mode           api.Mode          `json:"mode" validate:"required,oneof=round_robin moderated"`
	Participants   []api.Participant `json:"participants" validate:"required,min=1,dive"`
	MaxRounds      int               `json:"maxRounds" validate:"required,min=1,max=10"`
}

func (s *Server) handleDiscuss(w http.ResponseWriter, r *http.Request) {
	var req discussRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	// First prompt of a fresh conversation also names it, off to the
	// side of the run.
	go s.maybeGenerateTitle(req.ConversationID, req.UserMessage, req.Participants)

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// The request context doubles as the run's cancellation signal: a
	// client disconnect stops scheduling and aborts the in-flight
	// upstream call.
	events := s.orch.Orchestrate(r.Context(), orchestrator.Request{
		ConversationID: req.ConversationID,
		UserMessage:    req.UserMessage,
		Mode:           req.Mode,
		Participants:   req.Participants,
		MaxRounds:      req.MaxRounds,
	})
	for event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			s.log.Error("failed to encode event", slogx.Error(err))
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}

type chatRequest struct {
	Model    string             `json:"model" validate:"required"`
	Messages []provider.Message `json:"messages" validate:"required,min=1"`
}

// handleChat serves independent mode: one model, no shared history, the
// provider's SSE body piped through untouched. A multi-model panel opens
// one of these per participant, each with its own cancellation.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	messages := append([]provider.Message{provider.System(prompt.Independent())}, req.Messages...)
	body, err := s.completer.Stream(r.Context(), req.Model, messages)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"data": s.catalog.List(r.Context())})
}

type createConversationRequest struct {
	Title        string                  `json:"title"`
	Mode         api.Mode                `json:"mode" validate:"required,oneof=independent round_robin moderated"`
	Participants []store.ParticipantSpec `json:"participants" validate:"required,min=1,dive"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	conv, err := s.store.CreateConversation(r.Context(), req.Title, req.Mode, req.Participants)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := s.store.ListConversations(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if conversations == nil {
		conversations = []api.Conversation{}
	}
	s.writeJSON(w, http.StatusOK, conversations)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.GetConversation(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, conv)
}

type renameConversationRequest struct {
	Title string `json:"title" validate:"required"`
}

func (s *Server) handleRenameConversation(w http.ResponseWriter, r *http.Request) {
	var req renameConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	err := s.store.UpdateConversationTitle(r.Context(), r.PathValue("id"), req.Title)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteConversation(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createMessageRequest struct {
	Role          string  `json:"role" validate:"required,oneof=user participant moderator"`
	Content       string  `json:"content" validate:"required"`
	ParticipantID *string `json:"participantId"`
	ModelID       *string `json:"modelId"`
	RoundNumber   *int    `json:"roundNumber"`
}

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	msg, err := s.store.CreateMessage(r.Context(), api.Message{
		ConversationID: r.PathValue("id"),
		Role:           req.Role,
		Content:        req.Content,
		ParticipantID:  req.ParticipantID,
		ModelID:        req.ModelID,
		RoundNumber:    req.RoundNumber,
	})
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.store.ListMessages(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if messages == nil {
		messages = []api.Message{}
	}
	s.writeJSON(w, http.StatusOK, messages)
}

// maybeGenerateTitle names a conversation after its first prompt, using
// the first participant's model. Best effort: any failure leaves the
// default title in place.
func (s *Server) maybeGenerateTitle(conversationID, topic string, participants []api.Participant) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil || conv.Title != store.DefaultTitle || len(participants) == 0 {
		return
	}

	title, err := s.completer.Complete(ctx, participants[0].ModelID, []provider.Message{
		provider.System("You name conversations. Reply with a concise title of at most six words. No quotes, no punctuation at the end."),
		provider.User("Name a conversation about: " + topic),
	})
	if err != nil {
		s.log.Debug("title generation failed",
			"conversation_id", conversationID, slogx.Error(err))
		return
	}
	title = strings.Trim(strings.TrimSpace(title), `"`)
	if title == "" {
		return
	}
	if err := s.store.UpdateConversationTitle(ctx, conversationID, title); err != nil {
		s.log.Debug("failed to store generated title",
			"conversation_id", conversationID, slogx.Error(err))
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("failed to encode response", slogx.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
