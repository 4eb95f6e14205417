// Package llm answers chat turns with an OpenAI-compatible model directly,
// for deployments without the shopping backend's chat endpoint.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"shopping-assistant-backend/internal/config"
	"shopping-assistant-backend/internal/types"
)

type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	// envelope wraps each answer as {"reply": "<answer>"} so it reads the
	// same as the backend's nested contract.
	envelope bool
	logger   *zap.Logger
}

func New(cfg config.LLMConfig, contract string, logger *zap.Logger) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return NewWithClient(openai.NewClientWithConfig(oc), cfg, contract, logger)
}

func NewWithClient(client *openai.Client, cfg config.LLMConfig, contract string, logger *zap.Logger) *Client {
	return &Client{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		envelope:    contract == config.ContractNested,
		logger:      logger,
	}
}

func (c *Client) Model() string { return c.model }

func (c *Client) request(req types.CompletionRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for i, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == openai.ChatMessageRoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msg := openai.ChatCompletionMessage{Role: role, Content: m.Content}
		if i == len(req.Messages)-1 && req.Image != "" && role == openai.ChatMessageRoleUser {
			msg = imageMessage(m.Content, req.Image, req.ImageMediaType)
		}
		messages = append(messages, msg)
	}
	return openai.ChatCompletionRequest{
		Model:          c.model,
		Temperature:    c.temperature,
		MaxTokens:      c.maxTokens,
		Messages:       messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}
}

func imageMessage(text, image, mediaType string) openai.ChatCompletionMessage {
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: text},
			{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: "data:" + mediaType + ";base64," + image},
			},
		},
	}
}

func (c *Client) Complete(ctx context.Context, req types.CompletionRequest) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.client.CreateChatCompletion(ctx, c.request(req))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: no choices")
	}
	return c.wrap(resp.Choices[0].Message.Content)
}

// Stream relays content deltas in arrival order and returns the assembled
// answer. With the envelope on, deltas are the raw model text and only the
// returned value is wrapped.
func (c *Client) Stream(ctx context.Context, req types.CompletionRequest, onDelta func(string)) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	stream, err := c.client.CreateChatCompletionStream(ctx, c.request(req))
	if err != nil {
		return "", fmt.Errorf("chat stream: %w", err)
	}
	defer stream.Close()

	var text strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			c.logger.Warn("chat stream recv failed", zap.Error(err))
			return text.String(), fmt.Errorf("chat stream: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		text.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}
	return c.wrap(text.String())
}

func (c *Client) wrap(content string) (string, error) {
	if !c.envelope {
		return content, nil
	}
	b, err := json.Marshal(map[string]string{"reply": content})
	if err != nil {
		return "", fmt.Errorf("wrap reply: %w", err)
	}
	return string(b), nil
}
