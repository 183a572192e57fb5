// Package iugu talks to the Iugu marketplace API: invoices, card charges and
// sub-account tokens. Payloads are treated as loosely typed JSON because the
// same field shows up under different keys across endpoints.
package iugu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/DKMA-Tecnologia-e-Marketing/sistema-inspecao-itl-sub000/internal/shared/extract"
)

const (
	DefaultBaseURL = "https://api.iugu.com"
	defaultTimeout = 20 * time.Second
)

type Config struct {
	BaseURL     string
	MasterToken string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

type Client struct {
	baseURL     string
	masterToken string
	http        *http.Client
	logger      *slog.Logger
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
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: base, masterToken: cfg.MasterToken, http: hc, logger: slog.Default()}
}

func (c *Client) SetLogger(logger *slog.Logger) {
	c.logger = logger
}

// MasterToken is the platform account token, used whenever no sub-account
// token applies.
func (c *Client) MasterToken() string { return c.masterToken }

// Response is a decoded gateway reply. Doc does not exist when the body is
// not JSON.
type Response struct {
	StatusCode int
	Body       []byte
	Doc        gjson.Result
}

// do sends one request authenticated with token. Non-2xx replies return
// both the Response and an *APIError so callers can still classify the body.
func (c *Client) do(ctx context.Context, method, path, token string, payload any) (Response, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Response{}, fmt.Errorf("iugu: encode %s: %w", path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return Response{}, fmt.Errorf("iugu: build %s %s: %w", method, path, err)
	}
	req.SetBasicAuth(token, "")
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("iugu: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return Response{StatusCode: res.StatusCode}, fmt.Errorf("iugu: read %s: %w", path, err)
	}

	out := Response{StatusCode: res.StatusCode, Body: raw}
	if doc, derr := extract.Decode(raw); derr == nil {
		out.Doc = doc
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: res.StatusCode, Message: ErrorMessage(out.Doc, res.StatusCode), Body: raw}
		c.logger.WarnContext(ctx, "iugu request failed",
			"method", method, "path", path, "status", res.StatusCode, "message", apiErr.Message)
		return out, apiErr
	}
	return out, nil
}
