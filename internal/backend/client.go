package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fjod/go_pos/internal/domain"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	maxErrorBody = 512
	pingPath     = "/settings/payment-methods"
)

type Config struct {
	BaseURL         string
	ClerkID         string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	// Transport defaults to http.DefaultTransport and is always wrapped by otelhttp.
	Transport http.RoundTripper
}

// Client talks to the inventory and transactions REST service on behalf of
// one clerk.
type Client struct {
	baseURL string
	clerkID string
	timeout time.Duration
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "backend",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// 4xx answers mean the backend is up
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUnreachable)
		},
	})

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		clerkID: cfg.ClerkID,
		timeout: cfg.Timeout,
		http:    &http.Client{Transport: otelhttp.NewTransport(transport)},
		breaker: breaker,
	}
}

func (c *Client) FetchProducts(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	if err := c.do(ctx, http.MethodGet, "/products", nil, &products); err != nil {
		return nil, fmt.Errorf("fetch products: %w", err)
	}
	return products, nil
}

// SubmitTransaction posts a completed sale.
func (c *Client) SubmitTransaction(ctx context.Context, tx domain.Transaction) (*domain.ServerTransaction, error) {
	var created domain.ServerTransaction
	if err := c.do(ctx, http.MethodPost, "/transactions", tx, &created); err != nil {
		return nil, fmt.Errorf("submit transaction: %w", err)
	}
	return &created, nil
}

func (c *Client) FetchTransactions(ctx context.Context) ([]domain.ServerTransaction, error) {
	var transactions []domain.ServerTransaction
	if err := c.do(ctx, http.MethodGet, "/transactions", nil, &transactions); err != nil {
		return nil, fmt.Errorf("fetch transactions: %w", err)
	}
	return transactions, nil
}

// RefundTransaction marks the whole transaction refunded.
func (c *Client) RefundTransaction(ctx context.Context, id int64) (*domain.ServerTransaction, error) {
	body := map[string]domain.TransactionStatus{"status": domain.TransactionStatusRefunded}
	var updated domain.ServerTransaction
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/transactions/%d", id), body, &updated); err != nil {
		return nil, fmt.Errorf("refund transaction %d: %w", id, err)
	}
	return &updated, nil
}

func (c *Client) FetchRefundableItems(ctx context.Context, transactionID int64) ([]domain.RefundItem, error) {
	var items []domain.RefundItem
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/transactions/%d/refund", transactionID), nil, &items); err != nil {
		return nil, fmt.Errorf("fetch refundable items for %d: %w", transactionID, err)
	}
	return items, nil
}

func (c *Client) CreateRefund(ctx context.Context, form domain.RefundForm) (*domain.Refund, error) {
	var refund domain.Refund
	if err := c.do(ctx, http.MethodPost, "/refunds", form, &refund); err != nil {
		return nil, fmt.Errorf("create refund: %w", err)
	}
	return &refund, nil
}

func (c *Client) FetchRefunds(ctx context.Context) ([]domain.Refund, error) {
	var refunds []domain.Refund
	if err := c.do(ctx, http.MethodGet, "/refunds", nil, &refunds); err != nil {
		return nil, fmt.Errorf("fetch refunds: %w", err)
	}
	return refunds, nil
}

func (c *Client) FetchRefund(ctx context.Context, id int64) (*domain.Refund, error) {
	var refund domain.Refund
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/refunds/%d", id), nil, &refund); err != nil {
		return nil, fmt.Errorf("fetch refund %d: %w", id, err)
	}
	return &refund, nil
}

func (c *Client) FetchPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	var methods []domain.PaymentMethod
	if err := c.do(ctx, http.MethodGet, "/settings/payment-methods", nil, &methods); err != nil {
		return nil, fmt.Errorf("fetch payment methods: %w", err)
	}
	return methods, nil
}

func (c *Client) FetchCategories(ctx context.Context) ([]domain.Category, error) {
	var categories []domain.Category
	if err := c.do(ctx, http.MethodGet, "/categories", nil, &categories); err != nil {
		return nil, fmt.Errorf("fetch categories: %w", err)
	}
	return categories, nil
}

// Ping reports whether the backend answers at all. Any HTTP response below
// 500 counts as reachable. It skips the circuit breaker so an open circuit
// does not hide a recovered backend, and hits the small payment-methods
// listing rather than the product catalog.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.send(ctx, http.MethodGet, pingPath, nil)
	if errors.Is(err, ErrUnreachable) {
		return err
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.send(ctx, method, path, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", c.clerkID)
	req.Header.Set("Authorization", "Bearer "+c.clerkID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrUnreachable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncateBody(body)}
	}
	return body, nil
}

// truncateBody cuts an error body to maxErrorBody bytes on a rune boundary.
func truncateBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= maxErrorBody {
		return text
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
