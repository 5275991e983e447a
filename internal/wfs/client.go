package wfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
)

// FetchError is a network, status, payload or parse failure.
type FetchError struct {
	URL     string
	Status  int
	Payload string // service-reported error, if any
	Err     error
}

func (e *FetchError) Error() string {
	switch {
	case e.Payload != "":
		return fmt.Sprintf("wfs %s: service error: %s", e.URL, e.Payload)
	case e.Status != 0 && e.Err == nil:
		return fmt.Sprintf("wfs %s: unexpected status %d", e.URL, e.Status)
	default:
		return fmt.Sprintf("wfs %s: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client fetches feature collections.
type Client struct {
	http *http.Client
	log  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a client. The default HTTP client times out after 30s.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{Timeout: 30 * time.Second},
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// maxBody caps the response size read from the service.
const maxBody = 256 << 20

// Fetch performs the GetFeature request and parses the response. Every
// failure is returned as a *FetchError.
func (c *Client) Fetch(ctx context.Context, req Request) (*geojson.FeatureCollection, error) {
	req = req.WithDefaults()

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: err}
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Warn("wfs fetch failed", zap.String("url", req.URL), zap.Error(err))
		return nil, &FetchError{URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &FetchError{URL: req.URL, Status: resp.StatusCode, Err: err}
	}

	if payload := errorPayload(body); payload != "" {
		c.log.Warn("wfs service error",
			zap.String("url", req.URL),
			zap.Int("status", resp.StatusCode),
			zap.String("error", payload))
		return nil, &FetchError{URL: req.URL, Status: resp.StatusCode, Payload: payload}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("wfs unexpected status", zap.String("url", req.URL), zap.Int("status", resp.StatusCode))
		return nil, &FetchError{URL: req.URL, Status: resp.StatusCode}
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Status: resp.StatusCode, Err: fmt.Errorf("parsing geojson: %w", err)}
	}

	c.log.Debug("wfs fetched",
		zap.String("url", req.URL),
		zap.String("typeName", req.TypeName),
		zap.Int("features", len(fc.Features)),
		zap.Duration("took", time.Since(start)))
	return fc, nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	switch req.Method {
	case MethodPost:
		body, err := json.Marshal(req.Params())
		if err != nil {
			return nil, err
		}
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("Accept", "application/json")
		return r, nil

	case MethodGet:
		target := req.URL
		if q := req.Query(); q != "" {
			sep := "?"
			if strings.Contains(target, "?") {
				sep = "&"
			}
			target += sep + q
		}
		r, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		r.Header.Set("Accept", "application/json")
		return r, nil

	default:
		return nil, fmt.Errorf("unsupported method %q", req.Method)
	}
}

// errorPayload extracts the "error" member of a JSON object body. Services
// report failures this way even with status 200.
func errorPayload(body []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	raw := bytes.TrimSpace(envelope.Error)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("false")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}
