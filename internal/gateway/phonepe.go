// Package gateway wraps the PhonePe checkout API: OAuth token exchange,
// order creation and order status lookup. It is a pure I/O adapter; the
// only state it keeps is the cached access token.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// State is the gateway's payment state normalized to the three values the
// reconciliation engine understands.
type State string

const (
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	StatePending   State = "PENDING"
)

var (
	// ErrTimeout marks a gateway call that did not answer in time. The
	// booking is untouched and the caller may retry on the next signal.
	ErrTimeout = errors.New("gateway request timed out")

	// ErrOrderNotFound means the gateway has no order for the given reference.
	ErrOrderNotFound = errors.New("gateway order not found")
)

// APIError is a definitive gateway-side rejection (4xx) or fault (5xx),
// preserved verbatim for diagnostics.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Transient reports whether the error is a gateway-side fault worth retrying.
func (e *APIError) Transient() bool {
	return e.StatusCode >= 500
}

type CreateOrderRequest struct {
	MerchantOrderID string
	Amount          int64 // minor currency unit (paise)
	RedirectURL     string
}

type Order struct {
	OrderID     string
	RedirectURL string
	State       State
}

type OrderStatus struct {
	OrderID       string
	State         State
	TransactionID string
	PaymentMode   string
	ErrorCode     string
}

type Config struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	ClientVersion string
	Timeout       time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   int64  `json:"expires_at"`
}

// GetAccessToken returns the cached token while it is still valid and
// exchanges credentials for a fresh one otherwise. Concurrent callers in an
// expired window may each refresh; the cache only ever holds a live token.
func (c *Client) GetAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.now().Before(c.tokenExpiry) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("client_version", c.cfg.ClientVersion)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tok tokenResponse
	if err := c.do(req, &tok); err != nil {
		return "", fmt.Errorf("exchange credentials: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("exchange credentials: empty access token")
	}

	c.mu.Lock()
	c.token = tok.AccessToken
	// Refresh a minute early so an in-flight call never rides an expiring token.
	c.tokenExpiry = time.Unix(tok.ExpiresAt, 0).Add(-time.Minute)
	c.mu.Unlock()

	return tok.AccessToken, nil
}

type payRequest struct {
	MerchantOrderID string      `json:"merchantOrderId"`
	Amount          int64       `json:"amount"`
	PaymentFlow     paymentFlow `json:"paymentFlow"`
}

type paymentFlow struct {
	Type         string       `json:"type"`
	MerchantURLs merchantURLs `json:"merchantUrls"`
}

type merchantURLs struct {
	RedirectURL string `json:"redirectUrl"`
}

type payResponse struct {
	OrderID     string `json:"orderId"`
	State       string `json:"state"`
	RedirectURL string `json:"redirectUrl"`
}

// CreateOrder registers a checkout order for the given amount and returns
// the gateway order reference plus the payer redirect URL.
func (c *Client) CreateOrder(ctx context.Context, reqBody CreateOrderRequest) (*Order, error) {
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payRequest{
		MerchantOrderID: reqBody.MerchantOrderID,
		Amount:          reqBody.Amount,
		PaymentFlow: paymentFlow{
			Type:         "PG_CHECKOUT",
			MerchantURLs: merchantURLs{RedirectURL: reqBody.RedirectURL},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/checkout/v2/pay", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "O-Bearer "+token)

	var resp payResponse
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	return &Order{
		OrderID:     resp.OrderID,
		RedirectURL: resp.RedirectURL,
		State:       normalizeState(resp.State),
	}, nil
}

type statusResponse struct {
	OrderID        string `json:"orderId"`
	State          string `json:"state"`
	ErrorCode      string `json:"errorCode"`
	PaymentDetails []struct {
		TransactionID string `json:"transactionId"`
		PaymentMode   string `json:"paymentMode"`
	} `json:"paymentDetails"`
}

// GetOrderStatus returns the gateway's current view of an order, normalized
// to the engine's three-state vocabulary.
func (c *Client) GetOrderStatus(ctx context.Context, merchantOrderID string) (*OrderStatus, error) {
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/checkout/v2/order/%s/status", c.cfg.BaseURL, url.PathEscape(merchantOrderID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Authorization", "O-Bearer "+token)

	var resp statusResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}

	status := &OrderStatus{
		OrderID:   resp.OrderID,
		State:     normalizeState(resp.State),
		ErrorCode: resp.ErrorCode,
	}
	if len(resp.PaymentDetails) > 0 {
		status.TransactionID = resp.PaymentDetails[0].TransactionID
		status.PaymentMode = resp.PaymentDetails[0].PaymentMode
	}
	return status, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return ErrTimeout
		}
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read gateway response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrOrderNotFound
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var body struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &body) == nil {
			apiErr.Code = body.Code
			apiErr.Message = body.Message
		}
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var uerr *url.Error
	return errors.As(err, &uerr) && uerr.Timeout()
}

func normalizeState(s string) State {
	switch strings.ToUpper(s) {
	case "COMPLETED":
		return StateCompleted
	case "FAILED", "EXPIRED":
		return StateFailed
	default:
		return StatePending
	}
}
