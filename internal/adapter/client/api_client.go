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

	"github.com/rl1809/milk-route/internal/adapter/handler"
)

// APIError is a non-2xx answer from the ledger server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
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

func (c *Client) Products(ctx context.Context) ([]handler.ProductJSON, error) {
	var out []handler.ProductJSON
	err := c.do(ctx, http.MethodGet, "/api/products", nil, "", &out)
	return out, err
}

func (c *Client) Balance(ctx context.Context, shopID string) (handler.BalanceJSON, error) {
	var out handler.BalanceJSON
	err := c.do(ctx, http.MethodGet, "/api/shops/"+url.PathEscape(shopID)+"/balance", nil, "", &out)
	return out, err
}

func (c *Client) Summary(ctx context.Context, date string) (handler.SummaryJSON, error) {
	var out handler.SummaryJSON
	err := c.do(ctx, http.MethodGet, "/api/summary?date="+url.QueryEscape(date), nil, "", &out)
	return out, err
}

func (c *Client) Shops(ctx context.Context, date, sort string, pendingOnly bool) ([]handler.ShopStatusJSON, error) {
	q := url.Values{}
	q.Set("date", date)
	if sort != "" {
		q.Set("sort", sort)
	}
	if pendingOnly {
		q.Set("pending", "true")
	}
	var out []handler.ShopStatusJSON
	err := c.do(ctx, http.MethodGet, "/api/shops?"+q.Encode(), nil, "", &out)
	return out, err
}

func (c *Client) OpenCart(ctx context.Context) (handler.CartJSON, error) {
	var out handler.CartJSON
	err := c.do(ctx, http.MethodPost, "/api/carts", nil, "", &out)
	return out, err
}

func (c *Client) SetQuantity(ctx context.Context, cartID, productID string, quantity int) (handler.CartJSON, error) {
	var out handler.CartJSON
	path := "/api/carts/" + url.PathEscape(cartID) + "/lines/" + url.PathEscape(productID)
	err := c.do(ctx, http.MethodPut, path, handler.QuantityRequest{Quantity: quantity}, "", &out)
	return out, err
}

func (c *Client) DiscardCart(ctx context.Context, cartID string) error {
	return c.do(ctx, http.MethodDelete, "/api/carts/"+url.PathEscape(cartID), nil, "", nil)
}

// SaveCart posts the cart as a delivery with a fresh idempotency key.
func (c *Client) SaveCart(ctx context.Context, cartID, shopID, date string) (handler.DeliveryResponse, error) {
	var out handler.DeliveryResponse
	body := handler.SaveCartRequest{ShopID: shopID, Date: date}
	err := c.do(ctx, http.MethodPost, "/api/carts/"+url.PathEscape(cartID)+"/save", body, uuid.NewString(), &out)
	return out, err
}

func (c *Client) Pay(ctx context.Context, shopID, date, amount string) (handler.PaymentResponse, error) {
	var out handler.PaymentResponse
	body := handler.PaymentRequest{ShopID: shopID, Date: date, Amount: amount}
	err := c.do(ctx, http.MethodPost, "/api/payments", body, uuid.NewString(), &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, payload any, idemKey string, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
