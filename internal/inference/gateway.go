// Package inference performs single-shot text generation against an external
// HTTPS service speaking the OpenAI chat-completions wire format.
//
// The gateway is deliberately narrow: one request, one response, no
// streaming. Errors are classified into three kinds so the capability bridge
// can map them onto guest-visible codes: ErrTransport (connection, DNS, TLS),
// ErrRemote (non-success status), ErrDecode (unexpected response shape).
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrNotConfigured reports a generate call with no endpoint configured.
	ErrNotConfigured = errors.New("inference: not configured")
	// ErrTransport reports a connection-level failure.
	ErrTransport = errors.New("inference: transport")
	// ErrRemote reports a non-success HTTP status from the service.
	ErrRemote = errors.New("inference: remote")
	// ErrDecode reports a response body without the expected shape.
	ErrDecode = errors.New("inference: decode")
)

// bodyPrefixLimit bounds how much of an error response body is carried in
// the error message.
const bodyPrefixLimit = 2048

// Config selects the remote service.
type Config struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}

// Request is one generation request from a guest or the CLI.
type Request struct {
	SystemPrompt string  `json:"system_prompt,omitempty"`
	UserPrompt   string  `json:"user_prompt"`
	MaxTokens    int     `json:"max_tokens"`
	Temperature  float32 `json:"temperature"`
}

// Response carries the generated text. Confidence is always 1.0: the
// external service does not expose one, and interpretation is left to the
// caller.
type Response struct {
	Text       string  `json:"text"`
	TokensUsed int     `json:"tokens_used"`
	Confidence float32 `json:"confidence"`
}

// Gateway issues generation requests. The zero value is not usable; use
// NewGateway.
type Gateway struct {
	client *http.Client
}

// NewGateway creates a gateway with a long-lived HTTP client whose overall
// request timeout is five minutes. Cancellation comes from the caller's
// context, so an interrupted execution can abandon in-flight transport
// before that timeout is reached.
func NewGateway() *Gateway {
	return &Gateway{
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate performs one synchronous generation request. It honours ctx
// cancellation: if the surrounding execution is interrupted, the transport
// is abandoned.
func (g *Gateway) Generate(ctx context.Context, cfg Config, req Request) (*Response, error) {
	if cfg.Endpoint == "" {
		return nil, ErrNotConfigured
	}

	var messages []chatMessage
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserPrompt})

	body := chatRequest{
		Model:     cfg.Model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	}
	// Only a strictly positive temperature is forwarded; zero means
	// "service default".
	if req.Temperature > 0 {
		body.Temperature = req.Temperature
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		cfg.Endpoint+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		prefix, _ := io.ReadAll(io.LimitReader(resp.Body, bodyPrefixLimit))
		return nil, fmt.Errorf("%w: status %d: %s", ErrRemote, resp.StatusCode, string(prefix))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: response has no choices", ErrDecode)
	}
	if parsed.Usage == nil {
		return nil, fmt.Errorf("%w: response has no usage", ErrDecode)
	}

	return &Response{
		Text:       parsed.Choices[0].Message.Content,
		TokensUsed: parsed.Usage.CompletionTokens,
		Confidence: 1.0,
	}, nil
}
