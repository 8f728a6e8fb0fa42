// Package modelhttp sends JSON requests to hosted model APIs and maps
// failures onto the domain's model service errors.
package modelhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/custodia-labs/strata/internal/core/domain"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// Client posts JSON to one API.
type Client struct {
	// Service names the endpoint in errors, e.g. "openai".
	Service string

	// BaseURL is prefixed to every path.
	BaseURL string

	// Headers are set on every request.
	Headers map[string]string

	// HTTP is the underlying client. Its timeout bounds each call.
	HTTP *http.Client
}

// PostJSON sends body to path and decodes a 2xx response into out.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", c.Service, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", c.Service, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// Get fetches path and discards the body. Used for connectivity checks.
func (c *Client) Get(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", c.Service, err)
	}
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out any) error {
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Classify(c.Service, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Classify(c.Service, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.ModelServiceError{
			Service:    c.Service,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.Service, err)
	}
	return nil
}

// Classify maps a transport error. Timeouts become ErrModelServiceTimeout;
// cancellation passes through untouched.
func Classify(service string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return fmt.Errorf("%w: %s: %v", domain.ErrModelServiceTimeout, service, err)
	}
	return &domain.ModelServiceError{Service: service, Message: err.Error()}
}

// errorMessage extracts {"error":{"message":...}} or {"error":"..."} bodies,
// falling back to the raw text.
func errorMessage(body []byte) string {
	var structured struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &structured) == nil && len(structured.Error) > 0 {
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(structured.Error, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
		var s string
		if json.Unmarshal(structured.Error, &s) == nil && s != "" {
			return s
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody] + "..."
	}
	return msg
}
