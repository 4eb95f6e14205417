// Package assistant runs one chat turn end to end: it loads the
// conversation, asks the provider, interprets the answer under the
// configured response contract and stores the result.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"shopping-assistant-backend/internal/config"
	"shopping-assistant-backend/internal/conversation"
	"shopping-assistant-backend/internal/prompts"
	"shopping-assistant-backend/internal/types"
)

var ErrEmptyMessage = errors.New("message or image is required")

// Provider answers a chat turn with the raw model output.
type Provider interface {
	Complete(ctx context.Context, req types.CompletionRequest) (string, error)
	Stream(ctx context.Context, req types.CompletionRequest, onDelta func(string)) (string, error)
}

type Conversations interface {
	Get(ctx context.Context, id string) (*conversation.Conversation, error)
	Save(ctx context.Context, c *conversation.Conversation) error
}

type CategorySource interface {
	Categories() []string
}

type Options struct {
	Contract    string
	HistorySize int
	// SingleShot answers streaming turns with one Complete call; the
	// reply then arrives as a single content event.
	SingleShot bool
	Now        func() time.Time
}

type Service struct {
	provider      Provider
	conversations Conversations
	categories    CategorySource
	prompts       *prompts.Set
	logger        *zap.Logger
	opts          Options
	locks         keyedMutex
}

func New(provider Provider, conversations Conversations, categories CategorySource, promptSet *prompts.Set, logger *zap.Logger, opts Options) *Service {
	if opts.Contract == "" {
		opts.Contract = config.ContractStaged
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = conversation.DefaultHistory
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		provider:      provider,
		conversations: conversations,
		categories:    categories,
		prompts:       promptSet,
		logger:        logger,
		opts:          opts,
		locks:         keyedMutex{locks: make(map[string]*refMutex)},
	}
}

func (s *Service) Contract() string { return s.opts.Contract }

// Chat runs one turn against the provider's single-shot endpoint.
func (s *Service) Chat(ctx context.Context, req types.ChatRequest) (*types.ChatReply, error) {
	return s.turn(ctx, req, s.provider.Complete)
}

// ChatStream runs one turn against the streaming endpoint. emit receives
// the content deltas in order, then a metadata event carrying the
// interpreted reply and a done event. On failure it receives a single
// error event instead.
func (s *Service) ChatStream(ctx context.Context, req types.ChatRequest, emit func(types.StreamEvent)) (*types.ChatReply, error) {
	call := func(ctx context.Context, creq types.CompletionRequest) (string, error) {
		if s.opts.SingleShot {
			raw, err := s.provider.Complete(ctx, creq)
			if err == nil {
				emit(types.StreamEvent{Type: types.EventContent, Delta: raw})
			}
			return raw, err
		}
		return s.provider.Stream(ctx, creq, func(delta string) {
			emit(types.StreamEvent{Type: types.EventContent, Delta: delta})
		})
	}
	reply, err := s.turn(ctx, req, call)
	if err != nil {
		emit(types.StreamEvent{Type: types.EventError, Message: err.Error()})
		return nil, err
	}
	emit(types.StreamEvent{Type: types.EventMetadata, Reply: reply})
	emit(types.StreamEvent{Type: types.EventDone})
	return reply, nil
}

type completeFunc func(ctx context.Context, req types.CompletionRequest) (string, error)

func (s *Service) turn(ctx context.Context, req types.ChatRequest, call completeFunc) (*types.ChatReply, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" && req.Image == "" {
		return nil, ErrEmptyMessage
	}

	now := s.opts.Now()
	id := req.ConversationID
	if id == "" {
		id = conversation.New(now).ID
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	conv, err := s.loadConversation(ctx, id, now)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With(zap.String("conversation_id", conv.ID))

	system := req.System
	if system == "" {
		system, err = s.prompts.System(s.opts.Contract, s.categories.Categories())
		if err != nil {
			return nil, err
		}
	}

	conv.AddUserMessage(message, now)
	creq := types.CompletionRequest{
		ConversationID:        conv.ID,
		Messages:              conv.History(s.opts.HistorySize),
		System:                system,
		Image:                 req.Image,
		ImageMediaType:        req.ImageMediaType,
		LastSuggestedFunction: conv.LastSuggestedFunction,
	}

	raw, err := call(ctx, creq)
	if err != nil {
		logger.Warn("chat provider call failed", zap.Error(err))
		return nil, fmt.Errorf("chat turn: %w", err)
	}

	reply := s.interpret(ctx, logger, creq, raw)
	reply.ConversationID = conv.ID

	conv.AddReply(reply, s.opts.Now())
	if err := s.conversations.Save(ctx, conv); err != nil {
		logger.Error("failed to save conversation", zap.Error(err))
	}
	return reply, nil
}

func (s *Service) loadConversation(ctx context.Context, id string, now time.Time) (*conversation.Conversation, error) {
	conv, err := s.conversations.Get(ctx, id)
	if errors.Is(err, conversation.ErrNotFound) {
		conv = conversation.New(now)
		conv.ID = id
		return conv, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return conv, nil
}

// keyedMutex serializes turns per conversation.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
