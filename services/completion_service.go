package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"chatdesk/config"
	"chatdesk/models"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

// NoResponseText is returned when the endpoint answers without any content.
const NoResponseText = "No response"

// Completer sends one chat completion request. It makes a single attempt and
// always returns either the reply text or a *CompletionError.
type Completer interface {
	SendChat(ctx context.Context, history []models.Message, newMessage models.Message, modelID string) (string, error)
}

// CompletionError is what a failed completion is reduced to. Message prefers
// the remote service's own error text.
type CompletionError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *CompletionError) Error() string { return e.Message }

func (e *CompletionError) Unwrap() error { return e.Err }

func statusMessage(status int) string {
	return fmt.Sprintf("Request failed with status code %d", status)
}

// NewCompleter picks the transport named in the config.
func NewCompleter(cfg *config.Config) Completer {
	if cfg.Transport == "openai" {
		return NewOpenAICompleter(cfg.BaseURL(), cfg.APIKey, cfg.Timeout)
	}
	return NewRestyCompleter(cfg.APIURL, cfg.APIKey, cfg.Timeout)
}

// buildMessages strips history down to role and content and appends the new
// message.
func buildMessages(history []models.Message, newMessage models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	for _, m := range history {
		out = append(out, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	return append(out, openai.ChatCompletionMessage{Role: string(newMessage.Role), Content: newMessage.Content})
}

func firstChoiceContent(resp openai.ChatCompletionResponse) string {
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return NoResponseText
	}
	return resp.Choices[0].Message.Content
}

func observeCompletion(transport string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	completionRequests.WithLabelValues(transport, outcome).Inc()
	completionDuration.WithLabelValues(transport).Observe(time.Since(start).Seconds())
}

type RestyCompleter struct {
	client *resty.Client
	url    string
	apiKey string
}

var _ Completer = (*RestyCompleter)(nil)

// NewRestyCompleter posts to url with the bearer apiKey. A zero timeout
// leaves the request unbounded.
func NewRestyCompleter(url, apiKey string, timeout time.Duration) *RestyCompleter {
	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &RestyCompleter{client: client, url: url, apiKey: apiKey}
}

func (c *RestyCompleter) SendChat(ctx context.Context, history []models.Message, newMessage models.Message, modelID string) (string, error) {
	start := time.Now()
	reply, err := c.sendChat(ctx, history, newMessage, modelID)
	observeCompletion("resty", start, err)
	return reply, err
}

func (c *RestyCompleter) sendChat(ctx context.Context, history []models.Message, newMessage models.Message, modelID string) (string, error) {
	requestBody := openai.ChatCompletionRequest{
		Model:    modelID,
		Messages: buildMessages(history, newMessage),
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(requestBody).
		Post(c.url)
	if err != nil {
		log.Error().Err(err).Str("model", modelID).Msg("completion request failed")
		return "", &CompletionError{Message: err.Error(), Err: err}
	}

	log.Debug().
		Int("status", resp.StatusCode()).
		Dur("latency", resp.Time()).
		Str("model", modelID).
		Msg("completion response")

	if !resp.IsSuccess() {
		msg := statusMessage(resp.StatusCode())
		var errResp openai.ErrorResponse
		if json.Unmarshal(resp.Body(), &errResp) == nil && errResp.Error != nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		return "", &CompletionError{StatusCode: resp.StatusCode(), Message: msg}
	}

	var result openai.ChatCompletionResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return "", &CompletionError{
			StatusCode: resp.StatusCode(),
			Message:    "malformed response body: " + err.Error(),
			Err:        err,
		}
	}
	return firstChoiceContent(result), nil
}

// OpenAICompleter goes through the go-openai client. The gateway has to be
// OpenAI compatible below baseURL.
type OpenAICompleter struct {
	client *openai.Client
}

var _ Completer = (*OpenAICompleter)(nil)

func NewOpenAICompleter(baseURL, apiKey string, timeout time.Duration) *OpenAICompleter {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAICompleter{client: openai.NewClientWithConfig(cfg)}
}

func (c *OpenAICompleter) SendChat(ctx context.Context, history []models.Message, newMessage models.Message, modelID string) (string, error) {
	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    modelID,
		Messages: buildMessages(history, newMessage),
	})
	if err != nil {
		err = toCompletionError(err)
		observeCompletion("openai", start, err)
		log.Error().Err(err).Str("model", modelID).Msg("completion request failed")
		return "", err
	}
	observeCompletion("openai", start, nil)
	return firstChoiceContent(resp), nil
}

func toCompletionError(err error) *CompletionError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return &CompletionError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &CompletionError{StatusCode: reqErr.HTTPStatusCode, Message: statusMessage(reqErr.HTTPStatusCode), Err: err}
	}
	return &CompletionError{Message: err.Error(), Err: err}
}
