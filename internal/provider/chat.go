package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/MimeLyc/scene-sub-translator/internal/llm"
	"github.com/MimeLyc/scene-sub-translator/internal/scene"
	"github.com/MimeLyc/scene-sub-translator/internal/translator"
	"github.com/MimeLyc/scene-sub-translator/pkg/log"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 2 * time.Second
	maxRetryDelay     = 2 * time.Minute
)

// chatAPI is the part of llm.Client used here.
type chatAPI interface {
	llm.Completer
	Model() string
}

// ChatClient translates through an OpenAI-compatible chat completions API.
type ChatClient struct {
	api        chatAPI
	maxRetries int
	retryDelay time.Duration
}

func newChatClient(cfg Config) (translator.Client, error) {
	api, err := llm.NewClient(&cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Name, err)
	}
	return NewChatClient(api, cfg.MaxRetries, cfg.RetryDelay), nil
}

// NewChatClient wraps api. A negative maxRetries or a non-positive
// retryDelay selects the default.
func NewChatClient(api chatAPI, maxRetries int, retryDelay time.Duration) *ChatClient {
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	return &ChatClient{api: api, maxRetries: maxRetries, retryDelay: retryDelay}
}

func (c *ChatClient) SupportsParallelRequests() bool {
	return true
}

func (c *ChatClient) RequestTranslation(ctx context.Context, req translator.Request) (*scene.Round, error) {
	messages := []llm.Message{{Role: "user", Content: req.Prompt.User}}
	opts := llm.NewChatCompletionOptions().WithSystemPrompt(req.Prompt.System)

	return c.complete(ctx, req.Prompt, func(ctx context.Context) (*llm.ChatResponse, error) {
		return c.api.ChatCompletion(ctx, messages, opts)
	})
}

// RequestRetranslation replays the earlier exchange and asks for corrections.
func (c *ChatClient) RequestRetranslation(ctx context.Context, prior *scene.Round, errs []error) (*scene.Round, error) {
	if prior == nil {
		return nil, errors.New("no previous translation to correct")
	}
	retry := translator.RetryInstructions(errs)
	prompt := scene.Prompt{System: prior.Prompt.System, User: prior.Prompt.User + "\n\n" + retry}

	return c.complete(ctx, prompt, func(ctx context.Context) (*llm.ChatResponse, error) {
		conv := llm.NewConversation(c.api,
			llm.WithSystemPrompt(prior.Prompt.System),
			llm.WithInitialMessages(
				llm.Message{Role: "user", Content: prior.Prompt.User},
				llm.Message{Role: "assistant", Content: prior.Text},
			),
		)
		return conv.SendMessage(ctx, retry)
	})
}

// complete runs send with transport retries and converts the reply to a Round.
// Quota failures come back as a Round so the caller can stop the run cleanly.
func (c *ChatClient) complete(ctx context.Context, prompt scene.Prompt, send func(context.Context) (*llm.ChatResponse, error)) (*scene.Round, error) {
	var (
		resp  *llm.ChatResponse
		quota bool
		tries int
	)
	operation := func() error {
		tries++
		var err error
		resp, err = send(ctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, llm.ErrQuotaExceeded):
			log.Error("Provider quota exhausted: %v", err)
			quota = true
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case !retryable(err):
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("Retrying translation request (attempt %d/%d) after %v: %v", tries, c.maxRetries, wait, err)
	}

	if err := backoff.RetryNotify(operation, c.policy(ctx), notify); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if tries > c.maxRetries && retryable(err) {
			return nil, fmt.Errorf("translation request failed after %d retries: %w", c.maxRetries, err)
		}
		return nil, err
	}
	if quota {
		return &scene.Round{Prompt: prompt, QuotaReached: true, Model: c.api.Model()}, nil
	}
	return toRound(resp, prompt, c.api.Model()), nil
}

// policy doubles retryDelay after each failed attempt, up to maxRetries retries.
func (c *ChatClient) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.retryDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = max(c.retryDelay, maxRetryDelay)
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.maxRetries)), ctx)
}

func retryable(err error) bool {
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

func toRound(resp *llm.ChatResponse, prompt scene.Prompt, model string) *scene.Round {
	round := &scene.Round{
		Text:              resp.Content(),
		Prompt:            prompt,
		FinishReason:      resp.FinishReason(),
		ReachedTokenLimit: resp.Truncated(),
		PromptTokens:      resp.Usage.PromptTokens,
		OutputTokens:      resp.Usage.CompletionTokens,
		Model:             resp.Model,
	}
	if round.Model == "" {
		round.Model = model
	}
	return round
}
