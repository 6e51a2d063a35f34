package conversation

import (
	"context"
	"errors"

	"github.com/lumivoice/frontdesk-ai/pkg/logging"
)

// FallbackClient wraps a primary completion client with a fallback provider.
// A timeout is never retried, since the turn's deadline is already gone and
// the caller is waiting; every other primary failure tries the fallback once.
type FallbackClient struct {
	primary  CompletionClient
	fallback CompletionClient
	logger   *logging.Logger
}

// NewFallbackClient creates a fallback-enabled completion client. If
// fallback is nil, only the primary is used.
func NewFallbackClient(primary, fallback CompletionClient, logger *logging.Logger) *FallbackClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackClient{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (c *FallbackClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CompletionResponse{}, err
	}

	c.logger.Warn("primary completion failed, attempting fallback",
		"error", err.Error(),
		"fallback_available", c.fallback != nil,
	)

	if c.fallback == nil {
		return CompletionResponse{}, err
	}

	fallbackResp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		c.logger.Error("fallback completion also failed",
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		return CompletionResponse{}, fallbackErr
	}

	c.logger.Info("fallback completion succeeded after primary failure")
	return fallbackResp, nil
}
