package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"shopping-assistant-backend/internal/assistant"
	"shopping-assistant-backend/internal/types"
	"shopping-assistant-backend/internal/validator"
)

// maxBodyBytes leaves room for a base64 encoded photo.
const maxBodyBytes = 20 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func emptyTurn(req types.ChatRequest) bool {
	return strings.TrimSpace(req.Message) == "" && req.Image == ""
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if emptyTurn(req) {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	req.ConversationID = s.conversationFor(w, r, req.ConversationID)

	reply, err := s.deps.Assistant.Chat(r.Context(), req)
	if errors.Is(err, assistant.ErrEmptyMessage) {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if err != nil {
		s.logger.Warn("chat turn failed", zap.String("conversation_id", req.ConversationID), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, reply)
}

// handleChatStream relays a turn as server-sent events: content deltas in
// arrival order, then the interpreted reply as a metadata event, then done.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	var req types.ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if emptyTurn(req) {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	req.ConversationID = s.conversationFor(w, r, req.ConversationID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	_, err := s.deps.Assistant.ChatStream(r.Context(), req, func(ev types.StreamEvent) {
		if err := writeEvent(w, ev); err != nil {
			return
		}
		flusher.Flush()
	})
	if err != nil {
		s.logger.Warn("chat stream failed", zap.String("conversation_id", req.ConversationID), zap.Error(err))
	}
}

func writeEvent(w io.Writer, ev types.StreamEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}

// handleChatWS runs turns over a WebSocket, one at a time per connection,
// sending the same events as the SSE stream.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	id := activeConversationID(r)
	if id == "" {
		id = uuid.NewString()
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(types.StreamEvent{Type: types.EventConnected, ConversationID: id}); err != nil {
		return
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket closed unexpectedly", zap.String("conversation_id", id), zap.Error(err))
			}
			return
		}

		var req types.ChatRequest
		if err := json.Unmarshal(message, &req); err != nil {
			if err := conn.WriteJSON(types.StreamEvent{Type: types.EventError, Message: "invalid message format"}); err != nil {
				return
			}
			continue
		}
		if req.ConversationID == "" {
			req.ConversationID = id
		}
		id = req.ConversationID

		var writeErr error
		_, err = s.deps.Assistant.ChatStream(r.Context(), req, func(ev types.StreamEvent) {
			if writeErr == nil {
				writeErr = conn.WriteJSON(ev)
			}
		})
		if err != nil {
			s.logger.Warn("websocket chat turn failed", zap.String("conversation_id", id), zap.Error(err))
		}
		if writeErr != nil {
			return
		}
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origins := s.cfg.Server.AllowedOrigins
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(origins, origin)
}

// handleValidate sanitizes a posted ChatResponse candidate and reports what
// was wrong with it.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "could not read body")
		return
	}
	resp, res := validator.SanitizeJSON(body)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"response":   resp,
		"validation": res,
	})
}
