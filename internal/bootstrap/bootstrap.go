// Package bootstrap loads the catalog init data (categories and metadata)
// cache-first, refreshing it in the background and retrying the remote
// fetch with exponential backoff.
package bootstrap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"shopping-assistant-backend/internal/types"
)

const DefaultKey = "chatbot_init_data"

var (
	DefaultTTL         = time.Hour
	DefaultRetryDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	DefaultCategories  = []string{"car", "backpack"}
)

type Fetcher interface {
	FetchInit(ctx context.Context) (*types.InitResponse, error)
}

type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateReady         State = "ready"
)

type Source string

const (
	SourceCache    Source = "cache"
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
)

type Options struct {
	Key               string
	TTL               time.Duration
	RetryDelays       []time.Duration
	DefaultCategories []string
	Now               func() time.Time
	// Sleep waits between attempts; it returns early with ctx.Err() when
	// ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Snapshot is a copy of the bootstrap state safe to hand to readers.
type Snapshot struct {
	State         State               `json:"state"`
	IsInitialized bool                `json:"isInitialized"`
	IsLoading     bool                `json:"isLoading"`
	Refreshing    bool                `json:"refreshing"`
	Categories    []string            `json:"categories"`
	Metadata      *types.InitMetadata `json:"metadata"`
	Source        Source              `json:"source,omitempty"`
	Error         string              `json:"error,omitempty"`
}

type Bootstrapper struct {
	fetcher Fetcher
	storage Storage
	logger  *zap.Logger
	opts    Options

	mu   sync.Mutex
	snap Snapshot
	wg   sync.WaitGroup
}

func New(fetcher Fetcher, storage Storage, logger *zap.Logger, opts Options) *Bootstrapper {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.RetryDelays == nil {
		opts.RetryDelays = DefaultRetryDelays
	}
	if len(opts.DefaultCategories) == 0 {
		opts.DefaultCategories = DefaultCategories
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Bootstrapper{
		fetcher: fetcher,
		storage: storage,
		logger:  logger,
		opts:    opts,
		snap:    Snapshot{State: StateUninitialized, Categories: []string{}},
	}
}

// Start initializes from a fresh cache entry when there is one, refreshing
// it in the background, and otherwise fetches with the loading flag set.
// It returns once the state is ready.
func (b *Bootstrapper) Start(ctx context.Context) Snapshot {
	if cached := b.readCache(ctx); cached != nil {
		age := cached.age(b.opts.Now())
		if age <= b.opts.TTL {
			b.logger.Info("using cached init data", zap.Duration("age", age))
			b.update(func(s *Snapshot) {
				s.State = StateReady
				s.IsInitialized = true
				s.IsLoading = false
				s.Refreshing = true
				s.Categories = b.categoriesOrDefault(cached.Categories)
				s.Metadata = cached.Metadata
				s.Source = SourceCache
				s.Error = ""
			})
			snap := b.Snapshot()
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.refresh(context.WithoutCancel(ctx))
			}()
			return snap
		}
		b.logger.Info("init cache expired", zap.Duration("age", age))
	}
	return b.load(ctx)
}

// Refetch runs a blocking fetch with the loading flag set, as a user
// initiated retry.
func (b *Bootstrapper) Refetch(ctx context.Context) Snapshot {
	return b.load(ctx)
}

func (b *Bootstrapper) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.snap
	s.Categories = append([]string(nil), b.snap.Categories...)
	if b.snap.Metadata != nil {
		m := *b.snap.Metadata
		m.ColorsAvailable = append([]string(nil), m.ColorsAvailable...)
		s.Metadata = &m
	}
	return s
}

// Categories implements the category source used by the chat prompts.
func (b *Bootstrapper) Categories() []string {
	return b.Snapshot().Categories
}

// Wait blocks until any background refresh has finished.
func (b *Bootstrapper) Wait() {
	b.wg.Wait()
}

// load fetches with the loading flag set. When ctx is cancelled before a
// fetch succeeds, data already being served is restored instead of being
// replaced by the defaults.
func (b *Bootstrapper) load(ctx context.Context) Snapshot {
	prev := b.Snapshot()
	b.update(func(s *Snapshot) {
		s.State = StateLoading
		s.IsLoading = true
		s.Error = ""
	})

	resp, err := b.fetchWithRetry(ctx)
	if err != nil && ctx.Err() != nil && prev.IsInitialized {
		b.logger.Warn("init fetch cancelled, keeping current data", zap.Error(err))
		b.update(func(s *Snapshot) {
			*s = prev
			s.Error = err.Error()
		})
		return b.Snapshot()
	}
	if err != nil {
		b.logger.Warn("init fetch exhausted retries, using default categories", zap.Error(err))
		b.update(func(s *Snapshot) {
			s.State = StateReady
			s.IsInitialized = true
			s.IsLoading = false
			s.Categories = append([]string(nil), b.opts.DefaultCategories...)
			s.Metadata = nil
			s.Source = SourceFallback
			s.Error = err.Error()
		})
		return b.Snapshot()
	}

	b.apply(ctx, resp)
	return b.Snapshot()
}

// refresh replaces the cached data on success. On failure the data already
// shown is kept and only the error is recorded.
func (b *Bootstrapper) refresh(ctx context.Context) {
	resp, err := b.fetchWithRetry(ctx)
	if err != nil {
		b.logger.Warn("background init refresh failed", zap.Error(err))
		b.update(func(s *Snapshot) {
			s.Refreshing = false
			s.Error = err.Error()
		})
		return
	}
	b.apply(ctx, resp)
}

func (b *Bootstrapper) apply(ctx context.Context, resp *types.InitResponse) {
	b.writeCache(ctx, resp.Categories, resp.Metadata)
	b.update(func(s *Snapshot) {
		s.State = StateReady
		s.IsInitialized = true
		s.IsLoading = false
		s.Refreshing = false
		s.Categories = b.categoriesOrDefault(resp.Categories)
		s.Metadata = resp.Metadata
		s.Source = SourceRemote
		s.Error = ""
	})
	b.logger.Info("init data loaded", zap.Strings("categories", resp.Categories))
}

func (b *Bootstrapper) fetchWithRetry(ctx context.Context) (*types.InitResponse, error) {
	attempts := len(b.opts.RetryDelays) + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := b.fetcher.FetchInit(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		b.logger.Warn("init fetch failed",
			zap.Int("attempt", attempt+1),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		if attempt == attempts-1 {
			break
		}
		if err := b.opts.Sleep(ctx, b.opts.RetryDelays[attempt]); err != nil {
			return nil, fmt.Errorf("init fetch aborted: %w", err)
		}
	}
	return nil, lastErr
}

func (b *Bootstrapper) categoriesOrDefault(categories []string) []string {
	if len(categories) == 0 {
		return append([]string(nil), b.opts.DefaultCategories...)
	}
	return append([]string(nil), categories...)
}

func (b *Bootstrapper) update(fn func(s *Snapshot)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.snap)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
