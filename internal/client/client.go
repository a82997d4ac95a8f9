// Package client is a small HTTP client for the storefront order API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nazeru/storefront-go/internal/order/domain"
	"github.com/nazeru/storefront-go/pkg/idempotency"
)

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type Item struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type PlaceOrderRequest struct {
	UserID          string         `json:"userId"`
	CustomerEmail   string         `json:"customerEmail"`
	Items           []Item         `json:"items"`
	ShippingAddress domain.Address `json:"shippingAddress"`
	PaymentMethod   string         `json:"paymentMethod"`
	ShippingMethod  string         `json:"shippingMethod,omitempty"`
	CustomerNote    string         `json:"customerNote,omitempty"`
}

type PlacedOrder struct {
	OrderNumber       string     `json:"orderNumber"`
	Total             string     `json:"total"`
	Status            string     `json:"status"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery"`
}

// PlaceOrder posts an order with a fresh idempotency key.
func (c *Client) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlacedOrder, error) {
	var out struct {
		Order PlacedOrder `json:"order"`
	}
	err := c.do(ctx, http.MethodPost, "/api/orders", req, &out, idempotency.Header, uuid.NewString())
	return out.Order, err
}

func (c *Client) Track(ctx context.Context, number string) (domain.Tracking, error) {
	var out struct {
		Tracking domain.Tracking `json:"tracking"`
	}
	err := c.do(ctx, http.MethodGet, "/api/orders/track/"+url.PathEscape(number), nil, &out)
	return out.Tracking, err
}

// OrderID resolves an order number to its id through the customer's list.
func (c *Client) OrderID(ctx context.Context, userID, number string) (string, error) {
	var out struct {
		Orders []struct {
			ID          string `json:"id"`
			OrderNumber string `json:"orderNumber"`
		} `json:"orders"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/orders/my-orders?userId="+url.QueryEscape(userID), nil, &out); err != nil {
		return "", err
	}
	for _, o := range out.Orders {
		if o.OrderNumber == number {
			return o.ID, nil
		}
	}
	return "", &APIError{StatusCode: http.StatusNotFound, Message: "order " + number + " not found for " + userID}
}

func (c *Client) Cancel(ctx context.Context, orderID, reason string) error {
	return c.do(ctx, http.MethodPut, "/api/orders/"+url.PathEscape(orderID)+"/cancel", map[string]string{"reason": reason}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, headers ...string) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &env) != nil || env.Error == "" {
			env.Error = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: env.Error}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
