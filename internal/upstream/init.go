package upstream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"shopping-assistant-backend/internal/types"
)

const pingTimeout = 5 * time.Second

// FetchInit loads the categories and catalog metadata. Calling it also wakes
// a sleeping backend deployment.
func (c *Client) FetchInit(ctx context.Context) (*types.InitResponse, error) {
	var out types.InitResponse
	if err := c.getJSON(ctx, c.cfg.InitPath, &out); err != nil {
		return nil, fmt.Errorf("fetch init: %w", err)
	}
	c.logger.Debug("init data received",
		zap.String("status", out.Status),
		zap.Strings("categories", out.Categories),
	)
	return &out, nil
}

// Ping checks that the upstream API answers within a fixed 5s budget.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	resp, err := c.do(ctx, http.MethodGet, c.cfg.HealthPath, nil)
	if err != nil {
		return fmt.Errorf("ping upstream: %w", err)
	}
	resp.Body.Close()
	return nil
}
