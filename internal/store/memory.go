package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"shopping-assistant-backend/internal/conversation"
)

type memoryEntry struct {
	value     string
	updatedAt time.Time
}

// MemoryCache is a process-local key/value cache. Entries older than ttl
// are dropped on read; a zero ttl keeps them forever.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if m.ttl > 0 && m.now().Sub(e.updatedAt) > m.ttl {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemoryCache) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value, updatedAt: m.now()}
	return nil
}

func (m *MemoryCache) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// MemoryConversations keeps conversations in process memory. Values are
// copied on the way in and out so callers never share slices with the store.
type MemoryConversations struct {
	mu            sync.RWMutex
	conversations map[string]conversation.Conversation
	maxMessages   int
}

func NewMemoryConversations(maxMessages int) *MemoryConversations {
	return &MemoryConversations{
		conversations: make(map[string]conversation.Conversation),
		maxMessages:   maxMessages,
	}
}

func (m *MemoryConversations) List(_ context.Context) ([]conversation.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]conversation.Conversation, 0, len(m.conversations))
	for _, c := range m.conversations {
		out = append(out, copyConversation(c))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryConversations) Get(_ context.Context, id string) (*conversation.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, conversation.ErrNotFound
	}
	out := copyConversation(c)
	return &out, nil
}

func (m *MemoryConversations) Save(_ context.Context, c *conversation.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := copyConversation(*c)
	m.trim(&stored)
	m.conversations[c.ID] = stored
	return nil
}

func (m *MemoryConversations) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[id]; !ok {
		return conversation.ErrNotFound
	}
	delete(m.conversations, id)
	return nil
}

func (m *MemoryConversations) UpdateTitle(_ context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return conversation.ErrNotFound
	}
	c.Title = title
	c.UpdatedAt = time.Now()
	m.conversations[id] = c
	return nil
}

func (m *MemoryConversations) trim(c *conversation.Conversation) {
	if m.maxMessages <= 0 {
		return
	}
	if len(c.Messages) > m.maxMessages {
		c.Messages = c.Messages[len(c.Messages)-m.maxMessages:]
	}
}

func copyConversation(c conversation.Conversation) conversation.Conversation {
	c.Messages = append([]conversation.Message(nil), c.Messages...)
	if c.Messages == nil {
		c.Messages = []conversation.Message{}
	}
	return c
}
