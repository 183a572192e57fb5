// Package asaas is a small client for the Asaas v3 API: customers, payments
// and PIX QR codes. Monetary values travel in reais.
package asaas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/shared/extract"
)

const DefaultBaseURL = "https://api.asaas.com"

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

func New(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: base, apiKey: cfg.APIKey, http: hc, logger: slog.Default()}
}

func (c *Client) SetLogger(logger *slog.Logger) {
	c.logger = logger
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool { return c.apiKey != "" }

type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("asaas: http %d: %s", e.StatusCode, e.Message)
}

func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// do sends one request. The returned document does not exist when the body
// is not JSON.
func (c *Client) do(ctx context.Context, method, path string, payload any) (gjson.Result, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("asaas: encode %s: %w", path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("asaas: build %s %s: %w", method, path, err)
	}
	req.Header.Set("access_token", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("asaas: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("asaas: read %s: %w", path, err)
	}

	doc, _ := extract.Decode(raw)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: res.StatusCode, Message: errorMessage(doc, res.StatusCode), Body: raw}
		c.logger.WarnContext(ctx, "asaas request failed",
			"method", method, "path", path, "status", res.StatusCode, "message", apiErr.Message)
		return doc, apiErr
	}
	return doc, nil
}

// errorMessage joins the descriptions of an {"errors":[{code,description}]} body.
func errorMessage(doc gjson.Result, status int) string {
	if v, ok := extract.Path(doc, "errors"); ok && v.IsArray() {
		var parts []string
		for _, it := range v.Array() {
			if s, ok := extract.First(it, extract.StringAt("description", "code")); ok {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}
	if s, ok := extract.String(doc, "message"); ok {
		return s
	}
	return fmt.Sprintf("erro desconhecido do gateway (HTTP %d)", status)
}
