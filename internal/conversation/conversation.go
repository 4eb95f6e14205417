// Package conversation holds the persisted chat transcript model.
package conversation

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"shopping-assistant-backend/internal/types"
	"shopping-assistant-backend/internal/validator"
)

const (
	DefaultTitle   = "New Conversation"
	TitleMaxRunes  = 30
	DefaultHistory = 10

	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var ErrNotFound = errors.New("conversation not found")

type Message struct {
	Role               string                        `json:"role"`
	Content            string                        `json:"content"`
	QuickActions       []string                      `json:"quick_actions,omitempty"`
	SuggestedFunctions []validator.SuggestedFunction `json:"suggested_functions,omitempty"`
	Data               *validator.ResponseData       `json:"data,omitempty"`
	CreatedAt          time.Time                     `json:"created_at"`
}

type Conversation struct {
	ID                    string    `json:"id"`
	Title                 string    `json:"title"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
	Messages              []Message `json:"messages"`
	LastSuggestedFunction string    `json:"last_suggested_function,omitempty"`
}

func New(now time.Time) *Conversation {
	return &Conversation{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []Message{},
	}
}

// TitleFrom derives a conversation title from the first user message.
func TitleFrom(message string) string {
	message = strings.TrimSpace(message)
	if message == "" {
		return DefaultTitle
	}
	if utf8.RuneCountInString(message) <= TitleMaxRunes {
		return message
	}
	return string([]rune(message)[:TitleMaxRunes]) + "..."
}

func (c *Conversation) AddUserMessage(content string, now time.Time) {
	if c.Title == DefaultTitle && !c.hasUserMessage() {
		c.Title = TitleFrom(content)
	}
	c.Messages = append(c.Messages, Message{Role: RoleUser, Content: content, CreatedAt: now})
	c.UpdatedAt = now
}

// AddReply appends the assistant side of a turn and remembers the suggested
// function so the next request can pass it back upstream.
func (c *Conversation) AddReply(reply *types.ChatReply, now time.Time) {
	msg := Message{
		Role:         RoleAssistant,
		Content:      reply.Message(),
		QuickActions: reply.QuickActions(),
		CreatedAt:    now,
	}
	if r := reply.Response; r != nil {
		msg.SuggestedFunctions = r.SuggestedFunctions
		msg.Data = r.Data
		if len(r.SuggestedFunctions) > 0 {
			c.LastSuggestedFunction = r.SuggestedFunctions[0].Function
		}
	}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = now
}

// History returns the last n messages as model turns.
func (c *Conversation) History(n int) []types.Turn {
	msgs := c.Messages
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]types.Turn, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, types.Turn{Role: m.Role, Content: m.Content})
	}
	return out
}

func (c *Conversation) hasUserMessage() bool {
	for _, m := range c.Messages {
		if m.Role == RoleUser {
			return true
		}
	}
	return false
}

// EncodeMessages and DecodeMessages define the stored form of the transcript.
func EncodeMessages(msgs []Message) (string, error) {
	if msgs == nil {
		msgs = []Message{}
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeMessages(s string) ([]Message, error) {
	var msgs []Message
	if s == "" {
		return []Message{}, nil
	}
	if err := json.Unmarshal([]byte(s), &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}
