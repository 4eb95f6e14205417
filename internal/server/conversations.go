package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"shopping-assistant-backend/internal/conversation"
)

type conversationSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
	MessageCount int    `json:"messageCount"`
	Active       bool   `json:"active"`
}

// GET /api/conversations
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.deps.Conversations.List(r.Context())
	if err != nil {
		s.logger.Error("list conversations", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	active := activeConversationID(r)
	out := make([]conversationSummary, 0, len(convs))
	for _, c := range convs {
		out = append(out, conversationSummary{
			ID:           c.ID,
			Title:        c.Title,
			CreatedAt:    c.CreatedAt.UnixMilli(),
			UpdatedAt:    c.UpdatedAt.UnixMilli(),
			MessageCount: len(c.Messages),
			Active:       c.ID == active,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"conversations": out, "activeId": active})
}

// GET /api/conversations/{id}
func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := s.deps.Conversations.Get(r.Context(), id)
	if errors.Is(err, conversation.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		s.logger.Error("get conversation", zap.String("conversation_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	// Opening a conversation makes it the active one.
	s.setConversationCookie(w, c.ID)
	s.writeJSON(w, http.StatusOK, c)
}

// DELETE /api/conversations/{id}
func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.deps.Conversations.Delete(r.Context(), id)
	if errors.Is(err, conversation.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		s.logger.Error("delete conversation", zap.String("conversation_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}
	if activeConversationID(r) == id {
		s.clearConversationCookie(w)
	}
	w.WriteHeader(http.StatusNoContent)
}

// PATCH /api/conversations/{id}/title with {"title": "..."}
func (s *Server) handleRenameConversation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	title := strings.TrimSpace(body.Title)
	if title == "" {
		s.writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	id := chi.URLParam(r, "id")
	err := s.deps.Conversations.UpdateTitle(r.Context(), id, title)
	if errors.Is(err, conversation.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		s.logger.Error("rename conversation", zap.String("conversation_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to rename conversation")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"id": id, "title": title})
}
