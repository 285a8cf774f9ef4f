// Package tariff talks to the remote tariff-calculation service.
package tariff

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/etf-team/tariffbot/core/logger"
	"github.com/etf-team/tariffbot/core/telegram/netutil"
)

const defaultMaxResponseBytes = 1 << 20

// Config configures the client.
type Config struct {
	BaseURL          string        `yaml:"base_url" envconfig:"TARIFF_BASE_URL"`
	Timeout          time.Duration `yaml:"timeout" envconfig:"TARIFF_TIMEOUT"`
	MaxResponseBytes int64         `yaml:"max_response_bytes" envconfig:"TARIFF_MAX_RESPONSE_BYTES"`
}

// Normalize fills defaults and validates the base URL.
func (c *Config) Normalize() error {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = "https://etf-team.ru/api"
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid tariff.base_url %q", c.BaseURL)
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = defaultMaxResponseBytes
	}
	return nil
}

// Client issues exactly one HTTP request per Submit call; it never retries.
type Client struct {
	baseURL string
	http    *http.Client
	maxBody int64
}

// New builds a client from cfg. A nil httpClient gets a tuned client without retries.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = netutil.NewClient(netutil.ClientOptions{Timeout: cfg.Timeout})
	}
	return &Client{baseURL: cfg.BaseURL, http: httpClient, maxBody: cfg.MaxResponseBytes}, nil
}

// Submit sends req and returns the response body on 2xx.
// Non-2xx answers yield *StatusError; transport failures yield *NetworkError.
func (c *Client) Submit(ctx context.Context, req Request) ([]byte, error) {
	httpReq, err := c.build(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		kind := netutil.Classify(err)
		logger.Warn(ctx, "tariff", "submit.network",
			slog.String("endpoint", req.Path),
			slog.String("err_kind", kind),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return nil, &NetworkError{Kind: kind, Endpoint: req.Path, Err: unwrapURLError(err)}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Warn(ctx, "tariff", "submit.status",
			slog.String("status", "fail"),
			slog.String("endpoint", req.Path),
			slog.Int("http_code", resp.StatusCode),
			slog.Duration("duration", logger.Took(start)),
		)
		return nil, &StatusError{Code: resp.StatusCode, Endpoint: req.Path}
	}
	if readErr != nil {
		kind := netutil.Classify(readErr)
		return nil, &NetworkError{Kind: kind, Endpoint: req.Path, Err: readErr}
	}

	logger.Info(ctx, "tariff", "submit.ok",
		slog.String("status", "ok"),
		slog.String("endpoint", req.Path),
		slog.Int("http_code", resp.StatusCode),
		slog.Int("bytes", len(body)),
		slog.Duration("duration", logger.Took(start)),
	)
	return body, nil
}

func (c *Client) build(ctx context.Context, req Request) (*http.Request, error) {
	if req.Path == "" {
		return nil, errors.New("tariff: empty request path")
	}
	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var (
		body        []byte
		contentType string
	)
	switch {
	case req.File != nil && req.JSON != nil:
		return nil, errors.New("tariff: request carries both a file and a JSON body")
	case req.File != nil:
		var err error
		if body, contentType, err = multipartBody(req.File); err != nil {
			return nil, fmt.Errorf("tariff: build multipart body: %w", err)
		}
	case req.JSON != nil:
		var err error
		if body, err = json.Marshal(req.JSON); err != nil {
			return nil, fmt.Errorf("tariff: encode JSON body: %w", err)
		}
		contentType = "application/json"
	default:
		return nil, errors.New("tariff: request has no body")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tariff: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json, text/plain")
	return httpReq, nil
}

func multipartBody(f *File) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FieldPayload, escapeQuotes(f.Name)))
	h.Set("Content-Type", SpreadsheetContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(f.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// unwrapURLError drops the *url.Error wrapper so user-facing text does not
// repeat the method and full URL.
func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err
	}
	return err
}
