package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// CookieName holds the id of the conversation the browser last used.
	CookieName = "assistant_conversation"
	// CookieMaxAge keeps the active conversation across browser restarts.
	CookieMaxAge = 30 * 24 * time.Hour

	ConversationHeader = "X-Conversation-Id"
)

func (s *Server) setConversationCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(CookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.cfg.Server.SecureCookies,
	})
}

func (s *Server) clearConversationCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.cfg.Server.SecureCookies,
	})
}

// activeConversationID reads the conversation id from the cookie, then the
// header, then the query string.
func activeConversationID(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if id := r.Header.Get(ConversationHeader); id != "" {
		return id
	}
	return r.URL.Query().Get("conversationId")
}

// conversationFor picks the id for a chat turn: the one in the body, else the
// active one, else a new one. The choice is echoed back as cookie and header.
func (s *Server) conversationFor(w http.ResponseWriter, r *http.Request, requested string) string {
	id := strings.TrimSpace(requested)
	if id == "" {
		id = activeConversationID(r)
	}
	if id == "" {
		id = uuid.NewString()
	}
	s.setConversationCookie(w, id)
	w.Header().Set(ConversationHeader, id)
	return id
}
