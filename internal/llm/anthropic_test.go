package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docverify/internal/resilience"
	"github.com/sells-group/docverify/pkg/anthropic"
)

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func fastOptions() Options {
	return Options{
		Retry: resilience.RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	}
}

func textResponse(s string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: s}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 10},
	}
}

func TestAnthropic_Generate(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			req.MaxTokens == 512 &&
			req.Temperature != nil && *req.Temperature == 0 &&
			len(req.System) == 1 && req.System[0].CacheControl != nil &&
			len(req.Messages) == 1 && req.Messages[0].Content == "prompt"
	})).Return(textResponse("  {\"a\":1}  "), nil).Once()

	m := NewAnthropic(client, fastOptions())
	out, err := m.Generate(context.Background(), Request{
		Model:     "claude-haiku-4-5-20251001",
		System:    "json only",
		Prompt:    "prompt",
		MaxTokens: 512,
		Phase:     "extract/identity",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out)
	client.AssertExpectations(t)
}

func TestAnthropic_Generate_EmptyCompletion(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("   "), nil).Once()

	_, err := NewAnthropic(client, fastOptions()).Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelUnavailable))
}

func TestAnthropic_Generate_TransportError(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("unauthorized")).Once()

	_, err := NewAnthropic(client, fastOptions()).Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelUnavailable))
	assert.False(t, errors.Is(err, ErrModelTimeout))
	client.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestAnthropic_Generate_RetriesTransient(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("read tcp: connection reset by peer")).Once()
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"ok":true}`), nil).Once()

	out, err := NewAnthropic(client, fastOptions()).Generate(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
	client.AssertNumberOfCalls(t, "CreateMessage", 2)
}

func TestAnthropic_Generate_Timeout(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded).Once()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := NewAnthropic(client, fastOptions()).Generate(ctx, Request{Prompt: "p"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelTimeout))
}

func TestAnthropic_Generate_BreakerOpens(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("bad gateway")).Times(2)

	opts := fastOptions()
	opts.Retry.MaxAttempts = 1
	opts.Breaker = resilience.BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour}
	m := NewAnthropic(client, opts)

	for i := 0; i < 3; i++ {
		_, err := m.Generate(context.Background(), Request{Prompt: "p"})
		assert.True(t, errors.Is(err, ErrModelUnavailable))
	}
	// Third call is rejected by the breaker without reaching the client.
	client.AssertNumberOfCalls(t, "CreateMessage", 2)
}

func TestModelFunc(t *testing.T) {
	var m Model = ModelFunc(func(_ context.Context, req Request) (string, error) {
		return req.Prompt + "!", nil
	})
	out, err := m.Generate(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi!", out)
}
