package transport

import (
	"bytes"
	"context"
	"errors"
	"fetchguard/internal/ports"
	"fetchguard/internal/types"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

const maxBodyBytes = 8 << 20

// HTTP is the net/http Transport. Endpoints are joined onto BaseURL.
type HTTP struct {
	baseURL string
	cli     *http.Client
}

// NewHTTP returns a transport with the given per-request timeout. 0 means no timeout.
func NewHTTP(baseURL string, timeout time.Duration) *HTTP {
	return NewHTTPWithClient(baseURL, &http.Client{Timeout: timeout})
}

func NewHTTPWithClient(baseURL string, cli *http.Client) *HTTP {
	return &HTTP{baseURL: strings.TrimRight(baseURL, "/"), cli: cli}
}

// Perform sends payload as JSON (when not nil) and returns the response body. Non-2xx responses
// become *types.TransportError with the status and body.
func (h *HTTP) Perform(ctx context.Context, method types.Method, endpoint string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, types.Err(types.ErrEncode, err, "marshal %s payload", endpoint)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, string(method), h.url(endpoint), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok, ok := ports.TokenFromContext(ctx); ok {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := h.cli.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	out, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classify(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.WithFields(log.Fields{
			"method":   method,
			"endpoint": endpoint,
			"status":   resp.StatusCode,
		}).Debug("non-2xx response")
		return nil, types.NewStatusError(resp.StatusCode, out)
	}
	if len(bytes.TrimSpace(out)) == 0 {
		return []byte("null"), nil
	}
	if !json.Valid(out) {
		return nil, types.Err(types.ErrEncode, nil, "%s %s: response is not JSON", method, endpoint)
	}
	return out, nil
}

func (h *HTTP) url(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return h.baseURL + endpoint
}

// classify maps client errors to the transport taxonomy. Anything that is not a timeout failed to
// connect or lost the connection.
func classify(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &types.TransportError{Kind: types.Timeout, Err: err}
	}
	return &types.TransportError{Kind: types.ConnectionFailed, Err: err}
}
