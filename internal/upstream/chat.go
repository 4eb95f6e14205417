package upstream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"shopping-assistant-backend/internal/types"
)

type chatBody struct {
	ClientConversationID  string       `json:"client_conversation_id,omitempty"`
	Messages              []types.Turn `json:"messages"`
	Message               string       `json:"message,omitempty"`
	TopK                  int          `json:"top_k,omitempty"`
	LastSuggestedFunction string       `json:"last_suggested_function,omitempty"`
	System                string       `json:"system,omitempty"`
	Image                 string       `json:"image,omitempty"`
	ImageMediaType        string       `json:"image_media_type,omitempty"`
}

func (c *Client) chatBody(req types.CompletionRequest) chatBody {
	body := chatBody{
		ClientConversationID:  req.ConversationID,
		Messages:              req.Messages,
		TopK:                  c.cfg.TopK,
		LastSuggestedFunction: req.LastSuggestedFunction,
		System:                req.System,
	}
	if body.Messages == nil {
		body.Messages = []types.Turn{}
	}
	if n := len(req.Messages); n > 0 {
		body.Message = req.Messages[n-1].Content
	}
	if req.Image != "" {
		body.Image = req.Image
		body.ImageMediaType = req.ImageMediaType
		if body.ImageMediaType == "" {
			body.ImageMediaType = "image/jpeg"
		}
	}
	return body
}

// Complete sends one chat turn and returns the raw response body. The body
// is not interpreted here.
func (c *Client) Complete(ctx context.Context, req types.CompletionRequest) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, c.cfg.ChatPath, c.chatBody(req))
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("chat: read response: %w", err)
	}
	return string(b), nil
}

// ErrStream is wrapped by errors reported in-band by the stream.
var ErrStream = errors.New("upstream stream error")

// Stream sends one chat turn to the streaming endpoint, calls onDelta for
// each content chunk in arrival order and returns the assembled text.
func (c *Client) Stream(ctx context.Context, req types.CompletionRequest, onDelta func(string)) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, c.cfg.StreamPath, c.chatBody(req))
	if err != nil {
		return "", fmt.Errorf("chat stream: %w", err)
	}
	defer resp.Body.Close()

	text, err := ReadStream(resp.Body, onDelta)
	if err != nil {
		c.logger.Warn("chat stream ended with error", zap.Error(err))
		return text, err
	}
	return text, nil
}

// ReadStream assembles a chat stream. Lines prefixed "data: " carry
// StreamEvent JSON; other non-empty lines are treated as plain text so a
// backend that streams raw text still works.
func ReadStream(r io.Reader, onDelta func(string)) (string, error) {
	var text strings.Builder
	emit := func(s string) {
		if s == "" {
			return
		}
		text.WriteString(s)
		if onDelta != nil {
			onDelta(s)
		}
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 4<<20)
	sawEvent := false
	for sc.Scan() {
		line := sc.Text()
		payload, isData := strings.CutPrefix(line, "data:")
		if !isData {
			if line == "" || strings.HasPrefix(line, ":") || strings.HasPrefix(line, "event:") {
				continue
			}
			if sawEvent {
				continue
			}
			if text.Len() > 0 {
				emit("\n")
			}
			emit(line)
			continue
		}
		sawEvent = true
		payload = strings.TrimPrefix(payload, " ")
		if payload == "[DONE]" {
			return text.String(), nil
		}

		var ev types.StreamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			emit(payload)
			continue
		}
		switch ev.Type {
		case types.EventContent:
			emit(ev.Delta)
		case types.EventDone:
			return text.String(), nil
		case types.EventError:
			msg := ev.Message
			if msg == "" {
				msg = "unknown error"
			}
			return text.String(), fmt.Errorf("%w: %s", ErrStream, msg)
		}
	}
	if err := sc.Err(); err != nil {
		return text.String(), fmt.Errorf("read chat stream: %w", err)
	}
	return text.String(), nil
}
