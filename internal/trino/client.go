package trino

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"trino-ingest/internal/domain"
)

const (
	userAgent      = "trino-ingest"
	connectTimeout = 5 * time.Second
	maxErrorBody   = 4 << 10
)

// ClientOptions configures optional Client behavior.
type ClientOptions struct {
	// PollInterval is the minimum delay between two GETs of the same
	// statement. Zero disables pacing.
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Client submits statements to one coordinator. It is safe for concurrent
// use; the statements it returns are not.
type Client struct {
	session      *Session
	httpClient   *http.Client
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewClient creates a Client. A nil httpClient gets NewHTTPClient(0).
func NewClient(session *Session, httpClient *http.Client, opts ...ClientOptions) *Client {
	options := ClientOptions{}
	if len(opts) > 0 {
		options = opts[0]
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		session:      session,
		httpClient:   httpClient,
		pollInterval: options.PollInterval,
		logger:       logger,
	}
}

// NewHTTPClient returns an http.Client with a 5s connect timeout and the given
// response header timeout (5s when zero).
func NewHTTPClient(readTimeout time.Duration) *http.Client {
	if readTimeout <= 0 {
		readTimeout = 5 * time.Second
	}
	dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
			TLSHandshakeTimeout:   connectTimeout,
			ResponseHeaderTimeout: readTimeout,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   4,
		},
	}
}

// Session returns the session the client was created with.
func (c *Client) Session() *Session { return c.session }

// Submit posts query to the coordinator and returns the statement positioned
// at the first response. A query rejected in that first response returns
// *domain.QueryFailedError and no statement.
func (c *Client) Submit(ctx context.Context, query string) (*Statement, error) {
	traceToken := uuid.New().String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.session.statementURL(), strings.NewReader(query))
	if err != nil {
		return nil, fmt.Errorf("build statement request: %w", err)
	}
	for k, v := range c.session.headers() {
		req.Header.Set(k, v)
	}
	req.Header.Set(HeaderTraceToken, traceToken)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	results, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("submit query: %w", err)
	}

	stmt := &Statement{
		client:     c,
		traceToken: traceToken,
		state:      StateQueued,
	}
	if c.pollInterval > 0 {
		stmt.limiter = rate.NewLimiter(rate.Every(c.pollInterval), 1)
	}
	stmt.accept(results)
	c.logger.Debug("trino statement submitted", "query_id", results.ID, "trace_token", traceToken)

	if results.Error != nil {
		stmt.state = StateFailed
		return nil, stmt.failure()
	}
	return stmt, nil
}

// do sends req with the common headers and decodes a QueryResults body.
func (c *Client) do(req *http.Request) (*QueryResults, error) {
	req.Header.Set("User-Agent", userAgent)
	if c.session.password != "" {
		req.SetBasicAuth(c.session.user, c.session.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &domain.ProtocolError{StatusCode: resp.StatusCode, Message: msg}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var results QueryResults
	if err := dec.Decode(&results); err != nil {
		return nil, &domain.ProtocolError{StatusCode: resp.StatusCode, Message: "decode response: " + err.Error()}
	}
	return &results, nil
}

// deleteStatement cancels the statement behind uri.
func (c *Client) deleteStatement(ctx context.Context, uri string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, uri, nil)
	if err != nil {
		return fmt.Errorf("build cancel request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderUser, c.session.user)
	if c.session.password != "" {
		req.SetBasicAuth(c.session.user, c.session.password)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusGone, http.StatusNotFound:
		return nil
	default:
		return &domain.ProtocolError{StatusCode: resp.StatusCode, Message: "cancel statement"}
	}
}
