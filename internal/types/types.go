package types

import (
	"shopping-assistant-backend/internal/parser"
	"shopping-assistant-backend/internal/validator"
)

type ChatRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
	Message        string `json:"message"`
	System         string `json:"system,omitempty"`
	// Image is base64 encoded; ImageMediaType defaults to image/jpeg.
	Image          string `json:"image,omitempty"`
	ImageMediaType string `json:"image_media_type,omitempty"`
}

// ChatReply is the interpreted answer for one chat turn. Exactly one of
// Response, Parsed or PlainText is set.
type ChatReply struct {
	ConversationID string                      `json:"conversationId"`
	Contract       string                      `json:"contract"`
	Response       *validator.ChatResponse     `json:"response,omitempty"`
	Parsed         *parser.ParsedChatData      `json:"parsed,omitempty"`
	PlainText      string                      `json:"plainText,omitempty"`
	Validation     *validator.ValidationResult `json:"validation,omitempty"`
	Repaired       bool                        `json:"repaired"`
	Degraded       bool                        `json:"degraded"`
}

// Message is the text to show for the reply whatever its shape.
func (r *ChatReply) Message() string {
	switch {
	case r.Response != nil:
		return r.Response.Message
	case r.Parsed != nil:
		return r.Parsed.Message
	}
	return r.PlainText
}

func (r *ChatReply) QuickActions() []string {
	switch {
	case r.Response != nil:
		return r.Response.QuickActions
	case r.Parsed != nil:
		return r.Parsed.QuickActions
	}
	return nil
}

const (
	EventContent  = "content"
	EventMetadata = "metadata"
	EventDone     = "done"
	EventError    = "error"

	// EventConnected opens a WebSocket session and carries its conversation id.
	EventConnected = "connected"
)

// StreamEvent is one server-sent event, both as read from the upstream
// stream and as relayed to the browser.
type StreamEvent struct {
	Type           string     `json:"type"`
	Delta          string     `json:"delta,omitempty"`
	Message        string     `json:"message,omitempty"`
	ConversationID string     `json:"conversationId,omitempty"`
	Reply          *ChatReply `json:"reply,omitempty"`
}

// Turn is one message of the history sent to the model.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is what a chat provider receives for one turn.
type CompletionRequest struct {
	ConversationID        string
	Messages              []Turn
	System                string
	Image                 string
	ImageMediaType        string
	LastSuggestedFunction string
}

type InitResponse struct {
	Status     string        `json:"status"`
	Categories []string      `json:"categories"`
	Metadata   *InitMetadata `json:"metadata,omitempty"`
}

type InitMetadata struct {
	TotalProducts   int      `json:"total_products"`
	ColorsAvailable []string `json:"colors_available"`
	LastUpdated     string   `json:"last_updated"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
