package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	resp  CompletionResponse
	err   error
	calls int
}

func (s *stubClient) Complete(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
	s.calls++
	return s.resp, s.err
}

func TestFallbackClientPrimarySucceeds(t *testing.T) {
	primary := &stubClient{resp: CompletionResponse{Text: "hello"}}
	fallback := &stubClient{resp: CompletionResponse{Text: "fallback"}}
	c := NewFallbackClient(primary, fallback, nil)

	resp, err := c.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Zero(t, fallback.calls)
}

func TestFallbackClientUsedOnPrimaryError(t *testing.T) {
	primary := &stubClient{err: errors.New("throttled")}
	fallback := &stubClient{resp: CompletionResponse{Text: "fallback"}}
	c := NewFallbackClient(primary, fallback, nil)

	resp, err := c.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", resp.Text)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestFallbackClientNeverRetriesTimeouts(t *testing.T) {
	primary := &stubClient{err: context.DeadlineExceeded}
	fallback := &stubClient{resp: CompletionResponse{Text: "fallback"}}
	c := NewFallbackClient(primary, fallback, nil)

	_, err := c.Complete(context.Background(), CompletionRequest{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, fallback.calls, "a timed-out turn must not be retried against the fallback")
}

func TestFallbackClientBothFail(t *testing.T) {
	primary := &stubClient{err: errors.New("primary down")}
	fallback := &stubClient{err: errors.New("fallback down")}
	c := NewFallbackClient(primary, fallback, nil)

	_, err := c.Complete(context.Background(), CompletionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallback down")
}

func TestFallbackClientNoFallbackConfigured(t *testing.T) {
	primary := &stubClient{err: errors.New("primary down")}
	c := NewFallbackClient(primary, nil, nil)

	_, err := c.Complete(context.Background(), CompletionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary down")
}
