package bootstrap

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"shopping-assistant-backend/internal/types"
)

// Storage is the key/value port the init data is cached in.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Clear(ctx context.Context, key string) error
}

// CachedInitData is the stored form of the init payload. Timestamp is the
// fetch time in Unix milliseconds.
type CachedInitData struct {
	Categories []string            `json:"categories"`
	Metadata   *types.InitMetadata `json:"metadata"`
	Timestamp  int64               `json:"timestamp"`
}

func (c CachedInitData) age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(c.Timestamp))
}

// readCache returns the cached entry, or nil when there is none. Corrupt or
// structurally invalid entries are cleared and reported as a miss.
func (b *Bootstrapper) readCache(ctx context.Context) *CachedInitData {
	raw, ok, err := b.storage.Get(ctx, b.opts.Key)
	if err != nil {
		b.logger.Warn("init cache read failed", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}

	var data CachedInitData
	if err := json.Unmarshal([]byte(raw), &data); err != nil || data.Categories == nil || data.Timestamp <= 0 {
		b.logger.Warn("discarding invalid init cache entry", zap.String("key", b.opts.Key), zap.Error(err))
		if err := b.storage.Clear(ctx, b.opts.Key); err != nil {
			b.logger.Warn("init cache clear failed", zap.Error(err))
		}
		return nil
	}
	return &data
}

func (b *Bootstrapper) writeCache(ctx context.Context, categories []string, metadata *types.InitMetadata) {
	data := CachedInitData{
		Categories: categories,
		Metadata:   metadata,
		Timestamp:  b.opts.Now().UnixMilli(),
	}
	raw, err := json.Marshal(data)
	if err != nil {
		b.logger.Warn("init cache encode failed", zap.Error(err))
		return
	}
	if err := b.storage.Set(ctx, b.opts.Key, string(raw)); err != nil {
		b.logger.Warn("init cache write failed", zap.Error(err))
	}
}

// ClearCache drops the cached init data.
func (b *Bootstrapper) ClearCache(ctx context.Context) error {
	return b.storage.Clear(ctx, b.opts.Key)
}
