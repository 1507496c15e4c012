// Package formclient talks to the formulation service: one streaming
// POST per operation, consumed through a stream session until the
// terminal frame carries the operation's result.
package formclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/craftlabs/forma/internal/models"
	"github.com/craftlabs/forma/internal/stream"
	"github.com/craftlabs/forma/internal/timers"
)

// Endpoint paths for the three formulation operations.
const (
	PathAnalyze     = "/api/v1/formulate/analyze"
	PathSuggestions = "/api/v1/formulate/suggestions"
	PathSynthesize  = "/api/v1/formulate/synthesize"
)

// Client implements workflow.Runner against a formulation server.
type Client struct {
	baseURL string
	hc      *http.Client
	clock   timers.Clock
	cfg     stream.Config
	logger  *slog.Logger
	status  func(models.StatusUpdate)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithClock replaces the timer clock (tests use a fake).
func WithClock(clock timers.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithStreamConfig overrides the session auto-clear delays.
func WithStreamConfig(cfg stream.Config) Option {
	return func(c *Client) { c.cfg = cfg }
}

// WithStatusFunc forwards every streamed status update to fn, letting the
// CLI render live progress while an operation runs.
func WithStatusFunc(fn func(models.StatusUpdate)) Option {
	return func(c *Client) { c.status = fn }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 120 * time.Second},
		clock:   timers.SystemClock{},
		cfg:     stream.DefaultConfig(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Analyze runs the image-analysis operation to completion.
func (c *Client) Analyze(ctx context.Context, req models.OperationRequest) (*models.AnalysisResult, error) {
	payload, err := c.run(ctx, PathAnalyze, req)
	if err != nil {
		return nil, err
	}
	var result models.AnalysisResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode analysis payload: %w", err)
	}
	return &result, nil
}

// Suggest runs the suggestion-generation operation to completion.
func (c *Client) Suggest(ctx context.Context, req models.OperationRequest) ([]models.Suggestion, error) {
	payload, err := c.run(ctx, PathSuggestions, req)
	if err != nil {
		return nil, err
	}
	var suggestions []models.Suggestion
	if err := json.Unmarshal(payload, &suggestions); err != nil {
		return nil, fmt.Errorf("decode suggestions payload: %w", err)
	}
	return suggestions, nil
}

// Synthesize runs the final formulation operation to completion.
func (c *Client) Synthesize(ctx context.Context, req models.OperationRequest) (*models.Formulation, error) {
	payload, err := c.run(ctx, PathSynthesize, req)
	if err != nil {
		return nil, err
	}
	var formulation models.Formulation
	if err := json.Unmarshal(payload, &formulation); err != nil {
		return nil, fmt.Errorf("decode formulation payload: %w", err)
	}
	return &formulation, nil
}

// run drives one stream session for path and blocks until its terminal
// frame, returning the complete payload or the error text.
func (c *Client) run(ctx context.Context, path string, req models.OperationRequest) (json.RawMessage, error) {
	done := make(chan struct{})
	var (
		payload json.RawMessage
		errText string
	)
	once := func(fn func()) func() {
		ran := false
		return func() {
			if !ran {
				ran = true
				fn()
			}
		}
	}
	settle := once(func() { close(done) })

	ctrl := stream.NewController(c.clock, c.open(path), c.cfg, stream.Callbacks{
		OnStatus: c.status,
		OnResult: func(p []byte) {
			payload = p
			settle()
		},
		OnError: func(msg string) {
			errText = msg
			settle()
		},
	}, c.logger)

	ctrl.Start(ctx, req)
	select {
	case <-done:
	case <-ctx.Done():
		ctrl.Stop()
		return nil, ctx.Err()
	}

	if errText != "" {
		return nil, errors.New(errText)
	}
	if len(payload) == 0 {
		return nil, errors.New("completion frame carried no payload")
	}
	return payload, nil
}

// open builds the OpenFunc for one endpoint. Non-2xx responses and
// transport failures surface as open errors, which the session controller
// maps to its Error state.
func (c *Client) open(path string) stream.OpenFunc {
	return func(ctx context.Context, req models.OperationRequest) (io.ReadCloser, error) {
		body, err := json.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")

		resp, err := c.hc.Do(httpReq)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("formulation service: %s", resp.Status)
		}
		return resp.Body, nil
	}
}
