package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	apperr "dinesync/internal/xpkg/errors"
	"dinesync/pkg/logger"
	"dinesync/pkg/models"
)

// Client talks to the ordering system's REST API. Every request carries
// the session token; a 401 clears the session through the onAuthError
// callback before the error is returned.
type Client struct {
	baseURL     string
	http        *http.Client
	logger      *logger.Logger
	token       func() string
	onAuthError func()
}

func NewClient(baseURL string, log *logger.Logger, token func() string, onAuthError func()) *Client {
	return &Client{
		baseURL:     baseURL,
		http:        &http.Client{Timeout: 15 * time.Second},
		logger:      log,
		token:       token,
		onAuthError: onAuthError,
	}
}

func (c *Client) GetOrder(ctx context.Context, id int) (*models.Order, error) {
	var order models.Order
	if err := c.do(ctx, http.MethodGet, "/orders/"+strconv.Itoa(id), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) CreateOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: order must contain at least one item", apperr.ErrValidation)
	}
	var order models.Order
	if err := c.do(ctx, http.MethodPost, "/orders", req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) CreatePayment(ctx context.Context, orderID int) (*models.PaymentToken, error) {
	body := map[string]int{"order_id": orderID}
	var token models.PaymentToken
	if err := c.do(ctx, http.MethodPost, "/payment/create", body, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

func (c *Client) GetPaymentStatus(ctx context.Context, orderID int) (models.PaymentStatus, error) {
	var resp models.PaymentStatusResponse
	if err := c.do(ctx, http.MethodGet, "/payment/"+strconv.Itoa(orderID)+"/status", nil, &resp); err != nil {
		return "", err
	}
	return resp.PaymentStatus, nil
}

func (c *Client) RequestAssistance(ctx context.Context, orderID int) error {
	body := map[string]int{"order_id": orderID}
	return c.do(ctx, http.MethodPost, "/orders/"+strconv.Itoa(orderID)+"/assistance", body, nil)
}

func (c *Client) StartSession(ctx context.Context, tableID int) (*models.Session, error) {
	body := map[string]int{"table_id": tableID}
	var session models.Session
	if err := c.do(ctx, http.MethodPost, "/session/start", body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) EndSession(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/session/end", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.token(); token != "" {
		req.Header.Set("X-Session-Token", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if c.onAuthError != nil {
			c.onAuthError()
		}
		return apperr.ErrAuth
	case resp.StatusCode == http.StatusNotFound:
		return apperr.ErrNotFound
	case resp.StatusCode >= 500:
		c.logger.Error("", "api_server_error",
			fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode), nil)
		return apperr.ErrServer
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: %s", apperr.ErrValidation, serverMessage(resp.Body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", apperr.ErrServer, err)
	}
	return nil
}

// serverMessage extracts the server-supplied error message from a 4xx
// body, falling back to a generic one.
func serverMessage(body io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return "an error occurred"
}
