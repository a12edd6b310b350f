// Package ollama implements the inference client against a local Ollama server.
//
// Generate posts to /api/generate with streaming enabled and accumulates the NDJSON
// fragments into a single reply. When the model is missing and auto-pull was requested,
// it performs one blocking /api/pull and retries generation exactly once.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/doeshing/qw/internal/domain"
	"github.com/doeshing/qw/internal/ports"
)

const (
	generatePath = "/api/generate"
	pullPath     = "/api/pull"
)

// Client talks to an Ollama server.
type Client struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
	logger     ports.Logger
	notices    io.Writer
}

// NewClient builds a client for endpoint. timeout bounds each generate call; pulls are
// bounded only by the caller's context. Pull notices are written to notices.
func NewClient(endpoint string, httpClient *http.Client, timeout time.Duration, logger ports.Logger, notices io.Writer) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if notices == nil {
		notices = io.Discard
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: httpClient,
		timeout:    timeout,
		logger:     logger,
		notices:    notices,
	}
}

type generateRequest struct {
	Model   string           `json:"model"`
	Prompt  string           `json:"prompt"`
	System  string           `json:"system,omitempty"`
	Stream  bool             `json:"stream"`
	Options *generateOptions `json:"options,omitempty"`
}

type generateOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
	Seed        *int     `json:"seed,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type pullRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

// modelMissingError signals that the server does not have the requested model.
type modelMissingError struct {
	msg string
}

func (e *modelMissingError) Error() string { return e.msg }

func serverError(msg string) error {
	if strings.Contains(strings.ToLower(msg), "not found") {
		return &modelMissingError{msg: msg}
	}
	return errors.New(msg)
}

// Generate implements ports.InferenceClient.
func (c *Client) Generate(ctx context.Context, req ports.InferenceRequest) (string, error) {
	reply, err := c.generate(ctx, req)
	if err == nil {
		return reply, nil
	}

	var missing *modelMissingError
	if !errors.As(err, &missing) {
		return "", &domain.InferenceUnavailableError{
			Model: req.Model,
			Err:   err,
			Hint:  "is `ollama serve` running and the model pulled?",
		}
	}
	if !req.AutoPull {
		return "", &domain.InferenceUnavailableError{
			Model: req.Model,
			Err:   err,
			Hint:  fmt.Sprintf("run `ollama pull %s` or pass --auto-pull", req.Model),
		}
	}

	fmt.Fprintf(c.notices, "qw: model %s not found locally, pulling it now\n", req.Model)
	if err := c.Pull(ctx, req.Model); err != nil {
		return "", &domain.InferenceUnavailableError{Model: req.Model, Err: fmt.Errorf("pull: %w", err)}
	}

	reply, err = c.generate(ctx, req)
	if err != nil {
		return "", &domain.InferenceUnavailableError{
			Model: req.Model,
			Err:   err,
			Hint:  "model was pulled but generation still failed",
		}
	}
	return reply, nil
}

func (c *Client) generate(ctx context.Context, req ports.InferenceRequest) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(buildGenerateRequest(req))
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+generatePath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", statusError(resp)
	}

	reply, err := Accumulate(resp.Body, func(line []byte, err error) {
		c.debug("skipping malformed chunk", map[string]interface{}{"line": string(line), "error": err.Error()})
	})
	if err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}

	reply = strings.TrimSpace(reply)
	c.debug("reply received", map[string]interface{}{
		"model":   req.Model,
		"size":    humanize.Bytes(uint64(len(reply))),
		"elapsed": time.Since(start).String(),
	})
	return reply, nil
}

// Pull asks the server to download model and blocks until it reports completion.
func (c *Client) Pull(ctx context.Context, model string) error {
	body, err := json.Marshal(pullRequest{Model: model, Stream: false})
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+pullPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}

	var status struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode pull status: %w", err)
	}
	if status.Error != "" {
		return errors.New(status.Error)
	}
	c.debug("model pulled", map[string]interface{}{"model": model, "status": status.Status})
	return nil
}

func buildGenerateRequest(req ports.InferenceRequest) generateRequest {
	out := generateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		System: req.SystemPrompt,
		Stream: true,
	}
	s := req.Sampling
	if s.Temperature != nil || s.TopP != nil || s.MaxTokens != nil || s.Seed != nil || len(s.Stop) > 0 {
		out.Options = &generateOptions{
			Temperature: s.Temperature,
			TopP:        s.TopP,
			NumPredict:  s.MaxTokens,
			Seed:        s.Seed,
			Stop:        s.Stop,
		}
	}
	return out
}

// statusError turns an HTTP error response into an error, keeping the server's message.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	if resp.StatusCode == http.StatusNotFound {
		if msg == "" {
			msg = "model not found"
		}
		return &modelMissingError{msg: msg}
	}
	if msg == "" {
		msg = resp.Status
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
}

func (c *Client) debug(msg string, fields map[string]interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, fields)
	}
}

var _ ports.InferenceClient = (*Client)(nil)
