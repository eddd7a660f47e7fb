// Package marketplace implements the HTTP adapter to the external
// marketplace order API.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/panelworks/production-engine/internal/config"
	"github.com/panelworks/production-engine/internal/domain"
	"github.com/panelworks/production-engine/pkg/errors"
	"github.com/panelworks/production-engine/pkg/metrics"
	"github.com/panelworks/production-engine/pkg/resilience"
)

// Client talks to the marketplace REST API. Network failures are retried
// with exponential backoff; explicit error responses are never retried.
// All calls run through a shared circuit breaker.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	maxRetries int
	breaker    *resilience.CircuitBreaker
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewClient creates a marketplace API client
func NewClient(cfg config.MarketplaceConfig, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		apiToken: cfg.APIToken,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxRetries: cfg.MaxRetries,
		breaker:    resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("marketplace"), logger),
		metrics:    m,
		logger:     logger.With("component", "marketplace_client"),
	}
}

// FetchOrders retrieves one page of orders matching the query
func (c *Client) FetchOrders(ctx context.Context, query domain.OrderQuery) (*domain.OrderPage, error) {
	params := url.Values{}
	for _, id := range query.StatusIDs {
		params.Add("statusId", id)
	}
	if !query.ConfirmedSince.IsZero() {
		params.Set("confirmedFrom", query.ConfirmedSince.UTC().Format(time.RFC3339))
	}
	if !query.ConfirmedUntil.IsZero() {
		params.Set("confirmedTo", query.ConfirmedUntil.UTC().Format(time.RFC3339))
	}
	if query.PageToken != "" {
		params.Set("pageToken", query.PageToken)
	}
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}

	var page domain.OrderPage
	if err := c.doJSON(ctx, "fetch_orders", http.MethodGet, "/orders?"+params.Encode(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// FetchOrder retrieves a single order by id
func (c *Client) FetchOrder(ctx context.Context, orderID string) (*domain.MarketplaceOrder, error) {
	var order domain.MarketplaceOrder
	err := c.doJSON(ctx, "fetch_order", http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, &order)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListStatuses retrieves the marketplace status catalogue
func (c *Client) ListStatuses(ctx context.Context) ([]domain.MarketplaceStatus, error) {
	var response struct {
		Statuses []domain.MarketplaceStatus `json:"statuses"`
	}
	if err := c.doJSON(ctx, "list_statuses", http.MethodGet, "/statuses", nil, &response); err != nil {
		return nil, err
	}
	return response.Statuses, nil
}

// SetStatus pushes a status change for an order
func (c *Client) SetStatus(ctx context.Context, orderID, statusID string) error {
	body := map[string]string{"statusId": statusID}
	return c.doJSON(ctx, "set_status", http.MethodPut, "/orders/"+url.PathEscape(orderID)+"/status", body, nil)
}

// doJSON performs one logical API call: breaker, retries, JSON decode.
func (c *Client) doJSON(ctx context.Context, operation, method, path string, body, out any) error {
	start := time.Now()

	result, err := c.breaker.Execute(ctx, func() (any, error) {
		return c.doWithRetries(ctx, method, path, body)
	})

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordMarketplaceCall(operation, outcome, time.Since(start))
	}
	if err != nil {
		if err == resilience.ErrCircuitOpen {
			return errors.ErrTransientExternal("marketplace").Wrap(err)
		}
		return err
	}

	if out == nil {
		return nil
	}
	data := result.([]byte)
	if err := json.Unmarshal(data, out); err != nil {
		return errors.ErrTransientExternal("marketplace").
			WithDetail("reason", "undecodable response body").
			Wrap(err)
	}
	return nil
}

// doWithRetries issues the request, retrying transport-level failures with
// exponential backoff. HTTP error responses come back immediately: a 4xx
// means the request itself is wrong and a retry cannot fix it.
func (c *Client) doWithRetries(ctx context.Context, method, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, errors.ErrInternal("failed to encode marketplace request").Wrap(err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			c.logger.Warn("retrying marketplace call",
				"method", method,
				"path", path,
				"attempt", attempt,
				"backoff", backoff.String(),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		data, retryable, err := c.doOnce(ctx, method, path, payload)
		if err == nil {
			return data, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, errors.ErrTransientExternal("marketplace").
		WithDetail("attempts", strconv.Itoa(c.maxRetries+1)).
		Wrap(lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte) (data []byte, retryable bool, err error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, false, errors.ErrInternal("failed to build marketplace request").Wrap(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("marketplace request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read marketplace response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, false, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, domain.ErrOrderNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, errors.ErrTransientExternal("marketplace").
			WithDetail("status", strconv.Itoa(resp.StatusCode))
	default:
		return nil, false, errors.ErrBadRequest(
			fmt.Sprintf("marketplace rejected the request with status %d", resp.StatusCode))
	}
}
