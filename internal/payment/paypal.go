package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PayPalClient talks to the PayPal Orders v2 REST API.
type PayPalClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *zap.Logger

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

func NewPayPalClient(baseURL, clientID, clientSecret string, httpClient *http.Client, logger *zap.Logger) *PayPalClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &PayPalClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		logger:       logger,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type apiError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	DebugID string `json:"debug_id"`
}

type paypalCapture struct {
	Status string `json:"status"`
	Amount Amount `json:"amount"`
}

type paypalUnit struct {
	Amount   *Amount `json:"amount,omitempty"`
	Payments struct {
		Captures []paypalCapture `json:"captures"`
	} `json:"payments"`
}

type paypalOrder struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	Payer         Payer        `json:"payer"`
	PurchaseUnits []paypalUnit `json:"purchase_units"`
}

// toCaptured prefers the captured amount over the requested one.
func (o paypalOrder) toCaptured() *CapturedOrder {
	out := &CapturedOrder{ID: o.ID, Status: o.Status, Payer: o.Payer}
	for _, u := range o.PurchaseUnits {
		switch {
		case len(u.Payments.Captures) > 0:
			out.PurchaseUnits = append(out.PurchaseUnits, CapturedUnit{Amount: u.Payments.Captures[0].Amount})
		case u.Amount != nil:
			out.PurchaseUnits = append(out.PurchaseUnits, CapturedUnit{Amount: *u.Amount})
		}
	}
	return out
}

func (c *PayPalClient) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	var order Order
	err := c.do(ctx, "create order", http.MethodPost, "/v2/checkout/orders", uuid.NewString(), req, &order)
	if err != nil {
		return nil, err
	}
	c.logger.Info("paypal order created", zap.String("order_id", order.ID), zap.String("status", order.Status))
	return &order, nil
}

// CaptureOrder uses a request id derived from the order id, so a repeated
// capture of the same order is answered from PayPal's idempotency cache.
func (c *PayPalClient) CaptureOrder(ctx context.Context, orderID string) (*CapturedOrder, error) {
	var order paypalOrder
	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", url.PathEscape(orderID))
	if err := c.do(ctx, "capture order", http.MethodPost, path, "capture-"+orderID, struct{}{}, &order); err != nil {
		return nil, err
	}
	return order.toCaptured(), nil
}

func (c *PayPalClient) GetOrder(ctx context.Context, orderID string) (*CapturedOrder, error) {
	var order paypalOrder
	path := fmt.Sprintf("/v2/checkout/orders/%s", url.PathEscape(orderID))
	if err := c.do(ctx, "get order", http.MethodGet, path, "", nil, &order); err != nil {
		return nil, err
	}
	return order.toCaptured(), nil
}

func (c *PayPalClient) do(ctx context.Context, op, method, path, requestID string, body, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(op, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func (c *PayPalClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.expiresAt) {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("oauth token: build request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("oauth token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", decodeError("oauth token", resp)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("oauth token: decode response: %w", err)
	}

	c.accessToken = tr.AccessToken
	// refresh a minute early
	c.expiresAt = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - time.Minute)
	return c.accessToken, nil
}

func decodeError(op string, resp *http.Response) error {
	perr := &ProviderError{Op: op, StatusCode: resp.StatusCode}
	var body apiError
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		perr.Name = body.Name
		perr.Message = body.Message
		perr.DebugID = body.DebugID
	}
	if perr.Message == "" {
		perr.Message = http.StatusText(resp.StatusCode)
	}
	return perr
}
