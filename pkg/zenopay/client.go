package zenopay

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
	"time"

	"github.com/shopspring/decimal"

	"github.com/burudani/burudani-backend/pkg/config"
	"github.com/burudani/burudani-backend/pkg/enums"
	pkgerrors "github.com/burudani/burudani-backend/pkg/errors"
)

const (
	defaultBaseURL        = "https://zenoapi.com"
	defaultTimeout        = 30 * time.Second
	initiatePath          = "api/payments/mobile_money_tanzania"
	orderStatusPath       = "api/payments/order-status"
	apiKeyHeader          = "x-api-key"
	responseBodyReadLimit = 64 * 1024
	errorBodyReadLimit    = 1024

	OperationInitiate = "initiate_charge"
	OperationQuery    = "query_status"

	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var errAPIKeyRequired = errors.New("zenopay api key is required")

// Observer receives the latency of every provider call.
type Observer interface {
	ObserveGatewayCall(operation, outcome string, elapsed time.Duration)
}

// Client calls the ZenoPay mobile-money API. It holds no ledger state.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	observer   Observer
	now        func() time.Time
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithObserver records call latency.
func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// NewClient builds the ZenoPay client from its configuration block.
func NewClient(cfg config.ZenoPayConfig, opts ...Option) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errAPIKeyRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client := &Client{
		apiKey:     key,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: timeout}
	}
	return client, nil
}

// ChargeRequest is the input to InitiateCharge.
type ChargeRequest struct {
	OrderID     string
	Amount      decimal.Decimal
	Currency    enums.Currency
	BuyerPhone  string
	BuyerEmail  string
	BuyerName   string
	CallbackURL string
}

// ProviderAck is the provider's acceptance of a charge. Its shape is opaque.
type ProviderAck struct {
	Raw json.RawMessage
}

// StatusRecord is the subset of an order-status response the ledger consumes.
type StatusRecord struct {
	Status        enums.PaymentStatus
	TransactionID string
	Reference     string
	Channel       string
	Raw           json.RawMessage
}

type chargePayload struct {
	OrderID    string `json:"order_id"`
	BuyerEmail string `json:"buyer_email"`
	BuyerName  string `json:"buyer_name"`
	BuyerPhone string `json:"buyer_phone"`
	Amount     int64  `json:"amount"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

// InitiateCharge asks the provider to push a mobile-money prompt to the buyer.
// Transport failures, timeouts and non-2xx responses are returned as
// GATEWAY_ERROR; they say nothing about whether the buyer will pay.
func (c *Client) InitiateCharge(ctx context.Context, req ChargeRequest) (*ProviderAck, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "zenopay client not configured")
	}
	if err := validateCharge(req); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(chargePayload{
		OrderID:    req.OrderID,
		BuyerEmail: req.BuyerEmail,
		BuyerName:  req.BuyerName,
		BuyerPhone: req.BuyerPhone,
		Amount:     req.Amount.IntPart(),
		WebhookURL: strings.TrimSpace(req.CallbackURL),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "marshal charge request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(initiatePath), bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "build charge request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	body, err := c.do(httpReq, OperationInitiate)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "charge response is not valid json")
	}
	return &ProviderAck{Raw: json.RawMessage(body)}, nil
}

// QueryStatus fetches the provider's view of an order.
func (c *Client) QueryStatus(ctx context.Context, orderID string) (*StatusRecord, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "zenopay client not configured")
	}
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id is required")
	}

	endpoint := c.buildURL(orderStatusPath) + "?" + url.Values{"order_id": []string{trimmed}}.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "build order status request")
	}

	body, err := c.do(httpReq, OperationQuery)
	if err != nil {
		return nil, err
	}
	return parseStatus(body)
}

func (c *Client) do(req *http.Request, operation string) ([]byte, error) {
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	started := c.now()
	resp, err := c.httpClient.Do(req)
	elapsed := c.now().Sub(started)
	if err != nil {
		c.observe(operation, OutcomeError, elapsed)
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, fmt.Sprintf("execute %s request", operation))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.observe(operation, OutcomeError, elapsed)
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			fmt.Sprintf("%s request failed", operation))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		c.observe(operation, OutcomeError, elapsed)
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, fmt.Sprintf("read %s response", operation))
	}
	c.observe(operation, OutcomeSuccess, elapsed)
	return body, nil
}

func (c *Client) observe(operation, outcome string, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveGatewayCall(operation, outcome, elapsed)
	}
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}

func validateCharge(req ChargeRequest) error {
	if strings.TrimSpace(req.OrderID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "order_id is required")
	}
	if strings.TrimSpace(req.BuyerPhone) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer_phone is required")
	}
	if !req.Amount.IsPositive() || !req.Amount.IsInteger() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be a positive whole number")
	}
	if req.Currency != "" && req.Currency != enums.CurrencyTZS {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("currency %s is not supported", req.Currency))
	}
	return nil
}

type orderStatusResponse struct {
	Data []struct {
		PaymentStatus *string `json:"payment_status"`
		TransID       *string `json:"transid"`
		Reference     *string `json:"reference"`
		Channel       *string `json:"channel"`
	} `json:"data"`
}

func parseStatus(body []byte) (*StatusRecord, error) {
	var resp orderStatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "decode order status response")
	}
	if len(resp.Data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "order status response has no data")
	}

	first := resp.Data[0]
	if first.PaymentStatus == nil || strings.TrimSpace(*first.PaymentStatus) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "order status response is missing payment_status")
	}
	status, err := enums.ParsePaymentStatus(*first.PaymentStatus)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "order status response has unknown payment_status")
	}

	return &StatusRecord{
		Status:        status,
		TransactionID: deref(first.TransID),
		Reference:     deref(first.Reference),
		Channel:       deref(first.Channel),
		Raw:           json.RawMessage(body),
	}, nil
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
