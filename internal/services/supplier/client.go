package supplier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/retry"
)

// ClientConfig describes the supplier endpoints and call budgets.
type ClientConfig struct {
	BaseURL      string
	AuthPath     string
	ProductsPath string
	Username     string
	Password     string
	// Format is sent as content negotiation: json, xml, csv or empty.
	Format string

	RequestTimeout    time.Duration
	AuthRetries       int
	PageRetries       int
	Backoff           []time.Duration
	RetryableStatuses []int
}

type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *logger.Logger
	authPolicy retry.Policy
	pagePolicy retry.Policy
}

func NewClient(cfg ClientConfig, logger *logger.Logger) *Client {
	base := retry.Policy{
		Timeout:           cfg.RequestTimeout,
		Backoff:           cfg.Backoff,
		RetryableStatuses: cfg.RetryableStatuses,
		Logger:            logger,
	}
	authPolicy := base
	authPolicy.Name = "auth"
	authPolicy.Attempts = cfg.AuthRetries
	pagePolicy := base
	pagePolicy.Name = "page"
	pagePolicy.Attempts = cfg.PageRetries

	return &Client{
		config: cfg,
		// Per-attempt timeouts come from the retry policy context.
		httpClient: &http.Client{},
		logger:     logger,
		authPolicy: authPolicy,
		pagePolicy: pagePolicy,
	}
}

// WithSleep replaces the backoff sleeper of both policies. Used by tests.
func (c *Client) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Client {
	c.authPolicy.Sleep = sleep
	c.pagePolicy.Sleep = sleep
	return c
}

// Page is one raw product page as returned by the supplier.
type Page struct {
	Body        []byte
	ContentType string
	StatusCode  int
}

// Authenticate exchanges the configured credentials for a session token.
// Any failure, transient or not, is returned as *AuthenticationError once
// the auth retry budget is spent.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"username": c.config.Username,
		"password": c.config.Password,
	})
	if err != nil {
		return "", &AuthenticationError{Err: fmt.Errorf("failed to marshal credentials: %w", err)}
	}

	token, err := retry.Do(ctx, c.authPolicy, func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.config.AuthPath), bytes.NewReader(payload))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		body, _, status, err := c.do(req)
		if err != nil {
			return "", err
		}
		if status < 200 || status > 299 {
			return "", &StatusError{Status: status, Body: body}
		}
		return parseToken(body)
	})
	if err != nil {
		return "", &AuthenticationError{Err: err}
	}

	c.logger.Debug("Authenticated against supplier %s", c.config.BaseURL)
	return token, nil
}

// FetchPage requests one page of products. Non-2xx answers come back as
// *StatusError so that callers can inspect the body for stop signals.
func (c *Client) FetchPage(ctx context.Context, token string, offset, limit int) (*Page, error) {
	return retry.Do(ctx, c.pagePolicy, func(ctx context.Context) (*Page, error) {
		u, err := url.Parse(c.endpoint(c.config.ProductsPath))
		if err != nil {
			return nil, fmt.Errorf("invalid products url: %w", err)
		}
		q := u.Query()
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(limit))
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", acceptHeader(c.config.Format))

		body, contentType, status, err := c.do(req)
		if err != nil {
			return nil, err
		}
		if status < 200 || status > 299 {
			return nil, &StatusError{Status: status, Body: body}
		}
		return &Page{Body: body, ContentType: contentType, StatusCode: status}, nil
	})
}

func (c *Client) do(req *http.Request) ([]byte, string, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", 0, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", 0, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.Header.Get("Content-Type"), resp.StatusCode, nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func acceptHeader(format string) string {
	switch strings.ToLower(format) {
	case "json":
		return "application/json"
	case "xml":
		return "application/xml"
	case "csv":
		return "text/csv"
	default:
		return "application/json, application/xml;q=0.9, text/csv;q=0.8, */*;q=0.5"
	}
}

// parseToken accepts {"token": ...}, {"access_token": ...},
// {"data": {"token": ...}} or a bare token string.
func parseToken(body []byte) (string, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", fmt.Errorf("empty token response")
	}

	var resp struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
		Data        struct {
			Token string `json:"token"`
		} `json:"data"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(trimmed), &resp); err != nil {
		if strings.ContainsAny(trimmed, " \n{}<") {
			return "", fmt.Errorf("unrecognized token response")
		}
		return strings.Trim(trimmed, `"`), nil
	}

	for _, t := range []string{resp.Token, resp.AccessToken, resp.Data.Token} {
		if t != "" {
			return t, nil
		}
	}
	if resp.Error != "" {
		return "", fmt.Errorf("token exchange rejected: %s", resp.Error)
	}
	return "", fmt.Errorf("token missing from response")
}
