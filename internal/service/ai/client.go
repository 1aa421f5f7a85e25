package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"syscall"
	"time"

	"kenchat/internal/apperrors"
	"kenchat/internal/config"
	"kenchat/internal/logger"

	"github.com/sirupsen/logrus"
)

// Client implements Provider against an OpenAI-compatible chat completions API
type Client struct {
	cfg        config.OpenAIConfig
	models     *config.ModelsConfig
	httpClient *http.Client
}

var _ Provider = (*Client)(nil)

// NewClient creates a new gateway client
func NewClient(cfg config.OpenAIConfig, models *config.ModelsConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		models:     models,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// DefaultModel returns the configured default model ID
func (c *Client) DefaultModel() string {
	return c.models.GetDefaultModel()
}

// ValidateModel checks the model against the supported-model list
func (c *Client) ValidateModel(model string) error {
	if model != "" && !c.models.IsValidModel(model) {
		return apperrors.AIInvalidModel("model %q is not supported", model)
	}
	return nil
}

type chatRequest struct {
	Model         string         `json:"model"`
	Messages      []Message      `json:"messages"`
	Stream        bool           `json:"stream"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		Delta        Message `json:"delta"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage,omitempty"`
}

// GenerateResponse sends a chat completion request and returns the full
// response with cost computed from the provider-reported usage.
func (c *Client) GenerateResponse(ctx context.Context, messages []Message, model string, opts Options) (*Response, error) {
	model, err := c.resolveModel(model)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Stream:      false,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"model":         model,
		"message_count": len(messages),
	}).Info("Calling completion API")

	resp, err := c.doWithRetry(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.AINetwork("error reading response body", err)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(raw, &chatResp); err != nil {
		return nil, apperrors.AIService("error decoding response", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, apperrors.AIService("no choices in response", nil)
	}

	result := &Response{
		ID:           chatResp.ID,
		Created:      chatResp.Created,
		Model:        model,
		Content:      chatResp.Choices[0].Message.Content,
		FinishReason: chatResp.Choices[0].FinishReason,
	}
	if chatResp.Usage != nil {
		result.Usage = *chatResp.Usage
	}
	result.Cost = c.costFor(model, result.Usage)

	logger.Log.WithFields(logrus.Fields{
		"model":         model,
		"total_tokens":  result.Usage.TotalTokens,
		"cost":          result.Cost,
		"finish_reason": result.FinishReason,
	}).Debug("Completed generation")

	return result, nil
}

// GenerateResponseStream sends a streaming chat completion request. Content
// deltas are delivered as they arrive; the last chunk carries the assembled
// response with usage and cost.
func (c *Client) GenerateResponseStream(ctx context.Context, messages []Message, model string, opts Options) (<-chan StreamChunk, error) {
	model, err := c.resolveModel(model)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(chatRequest{
		Model:         model,
		Messages:      messages,
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
		Temperature:   opts.Temperature,
		MaxTokens:     opts.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"model":         model,
		"message_count": len(messages),
	}).Info("Calling completion API (streaming)")

	resp, err := c.doWithRetry(ctx, body)
	if err != nil {
		return nil, err
	}

	chunks := make(chan StreamChunk)

	go func() {
		defer resp.Body.Close()
		defer close(chunks)

		result := &Response{Model: model}
		var content strings.Builder

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" || line == "data: [DONE]" {
				continue
			}
			if !strings.HasPrefix(line, "data: ") {
				continue
			}

			var streamResp chatResponse
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &streamResp); err != nil {
				logger.Log.WithError(err).Warn("Error parsing stream chunk")
				continue
			}

			if streamResp.ID != "" && result.ID == "" {
				result.ID = streamResp.ID
				result.Created = streamResp.Created
			}
			// Usage arrives in a trailing chunk with empty choices
			if streamResp.Usage != nil {
				result.Usage = *streamResp.Usage
			}
			if len(streamResp.Choices) > 0 {
				choice := streamResp.Choices[0]
				if choice.FinishReason != "" {
					result.FinishReason = choice.FinishReason
				}
				if choice.Delta.Content != "" {
					content.WriteString(choice.Delta.Content)
					select {
					case chunks <- StreamChunk{Content: choice.Delta.Content}:
					case <-ctx.Done():
						return
					}
				}
			}
		}

		if err := scanner.Err(); err != nil {
			chunks <- StreamChunk{Err: apperrors.AINetwork("stream interrupted", err)}
			return
		}

		result.Content = content.String()
		result.Cost = c.costFor(model, result.Usage)
		chunks <- StreamChunk{Final: result}
	}()

	return chunks, nil
}

// resolveModel substitutes the default model and validates the result
func (c *Client) resolveModel(model string) (string, error) {
	if model == "" {
		model = c.DefaultModel()
	}
	if err := c.ValidateModel(model); err != nil {
		return "", err
	}
	return model, nil
}

func (c *Client) costFor(model string, usage Usage) float64 {
	m := c.models.GetModel(model)
	if m == nil {
		return 0
	}
	return m.CostFor(usage.PromptTokens, usage.CompletionTokens)
}

// doWithRetry posts the request body, retrying transient failures (HTTP
// 429/500/502/503/504 and connection resets) with exponential backoff plus
// jitter. The caller owns the returned body.
func (c *Client) doWithRetry(ctx context.Context, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			delay := c.backoff(attempt)
			logger.Log.WithFields(logrus.Fields{
				"attempt": attempt,
				"delay":   delay.String(),
			}).Info("Retrying completion request")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("error creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = apperrors.AINetwork("error sending request", err)
			if isConnectionError(err) {
				continue
			}
			return nil, lastErr
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()

		if isRetryableStatus(resp.StatusCode) {
			lastErr = c.statusError(resp.StatusCode, respBody)
			continue
		}
		return nil, c.statusError(resp.StatusCode, respBody)
	}

	return nil, lastErr
}

// backoff computes base * 2^(attempt-2) plus random jitter, capped.
// attempt is 1-based; the first retry (attempt 2) sleeps roughly the base.
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.cfg.BackoffBase * time.Duration(1<<uint(attempt-2))
	jitter := time.Duration(rand.Int63n(int64(c.cfg.BackoffBase)/2 + 1))
	delay += jitter
	if delay > c.cfg.BackoffCap {
		delay = c.cfg.BackoffCap
	}
	return delay
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isConnectionError(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, io.ErrUnexpectedEOF)
}

func (c *Client) statusError(status int, body []byte) error {
	detail := strings.TrimSpace(string(body))
	switch status {
	case http.StatusBadRequest:
		return apperrors.AIInvalidModel("provider rejected request: %s", detail)
	case http.StatusUnauthorized:
		return apperrors.AIService("provider rejected credentials", nil)
	case http.StatusPaymentRequired:
		return apperrors.AIQuotaExceeded("provider quota exceeded")
	case http.StatusTooManyRequests:
		return apperrors.AIRateLimit("provider rate limit exceeded")
	default:
		return apperrors.AIService(fmt.Sprintf("provider returned status %d", status), nil)
	}
}
