package zenopay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/burudani/burudani-backend/pkg/config"
	"github.com/burudani/burudani-backend/pkg/enums"
	pkgerrors "github.com/burudani/burudani-backend/pkg/errors"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type recordingObserver struct {
	calls []string
}

func (o *recordingObserver) ObserveGatewayCall(operation, outcome string, _ time.Duration) {
	o.calls = append(o.calls, operation+":"+outcome)
}

func newTestClient(t *testing.T, rt roundTripFunc, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithHTTPClient(&http.Client{Transport: rt})}, opts...)
	client, err := NewClient(config.ZenoPayConfig{APIKey: "zp-key", BaseURL: "http://zeno.test/"}, opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func validCharge() ChargeRequest {
	return ChargeRequest{
		OrderID:     "o1",
		Amount:      decimal.NewFromInt(1000),
		Currency:    enums.CurrencyTZS,
		BuyerPhone:  "+255700000000",
		BuyerEmail:  "buyer@example.com",
		BuyerName:   "buyer",
		CallbackURL: "https://api.burudani.test/api/v1/webhooks/zenopay",
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(config.ZenoPayConfig{APIKey: "  "}); err == nil {
		t.Fatal("expected api key error")
	}
}

func TestInitiateChargeRequest(t *testing.T) {
	var captured *http.Request
	var payload map[string]any
	observer := &recordingObserver{}

	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		captured = req
		body, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("unmarshal body: %v", err)
		}
		return jsonResponse(http.StatusOK, `{"status":"success","resultcode":"000","message":"Request in progress"}`), nil
	}, WithObserver(observer))

	ack, err := client.InitiateCharge(context.Background(), validCharge())
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	if captured.Method != http.MethodPost {
		t.Fatalf("unexpected method %s", captured.Method)
	}
	if got := captured.URL.String(); got != "http://zeno.test/api/payments/mobile_money_tanzania" {
		t.Fatalf("unexpected url %q", got)
	}
	if captured.Header.Get("x-api-key") != "zp-key" {
		t.Fatalf("api key header missing")
	}
	if payload["order_id"] != "o1" || payload["buyer_phone"] != "+255700000000" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if amount, ok := payload["amount"].(float64); !ok || amount != 1000 {
		t.Fatalf("amount should be sent as an integer, got %#v", payload["amount"])
	}
	if payload["webhook_url"] != "https://api.burudani.test/api/v1/webhooks/zenopay" {
		t.Fatalf("unexpected webhook url %v", payload["webhook_url"])
	}
	if !strings.Contains(string(ack.Raw), "Request in progress") {
		t.Fatalf("expected raw ack to be kept, got %s", ack.Raw)
	}
	if len(observer.calls) != 1 || observer.calls[0] != "initiate_charge:success" {
		t.Fatalf("unexpected observations %v", observer.calls)
	}
}

func TestInitiateChargeOmitsEmptyWebhookURL(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(req.Body)
		if strings.Contains(string(body), "webhook_url") {
			t.Fatalf("webhook_url should be omitted, got %s", body)
		}
		return jsonResponse(http.StatusOK, `{}`), nil
	})
	req := validCharge()
	req.CallbackURL = ""
	if _, err := client.InitiateCharge(context.Background(), req); err != nil {
		t.Fatalf("initiate: %v", err)
	}
}

func TestInitiateChargeGatewayErrors(t *testing.T) {
	cases := map[string]roundTripFunc{
		"transport": func(*http.Request) (*http.Response, error) {
			return nil, context.DeadlineExceeded
		},
		"non-2xx": func(*http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusBadRequest, `{"status":"error","message":"Invalid phone"}`), nil
		},
		"invalid-json": func(*http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `<html>`), nil
		},
	}

	for name, rt := range cases {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, rt)
			_, err := client.InitiateCharge(context.Background(), validCharge())
			if !pkgerrors.IsCode(err, pkgerrors.CodeGateway) {
				t.Fatalf("expected gateway error, got %v", err)
			}
		})
	}
}

func TestInitiateChargeTimeoutIsGatewayError(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := client.InitiateCharge(ctx, validCharge())
	if !pkgerrors.IsCode(err, pkgerrors.CodeGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded in chain, got %v", err)
	}
}

func TestInitiateChargeValidatesInput(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		t.Fatal("no request expected for invalid input")
		return nil, nil
	})

	fractional := validCharge()
	fractional.Amount = decimal.RequireFromString("10.50")
	missingPhone := validCharge()
	missingPhone.BuyerPhone = ""
	usd := validCharge()
	usd.Currency = "USD"

	for _, req := range []ChargeRequest{fractional, missingPhone, usd} {
		_, err := client.InitiateCharge(context.Background(), req)
		if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	}
}

func TestQueryStatusParsesFirstRecord(t *testing.T) {
	var capturedURL string
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		if req.Header.Get("x-api-key") != "zp-key" {
			t.Fatalf("api key header missing")
		}
		return jsonResponse(http.StatusOK, `{"reference":"x","result":"SUCCESS","data":[{"order_id":"o 1","payment_status":"completed","transid":"T123","reference":"r1","channel":"MPESA-TZ","amount":"1000"}]}`), nil
	})

	record, err := client.QueryStatus(context.Background(), "o 1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if capturedURL != "http://zeno.test/api/payments/order-status?order_id=o+1" {
		t.Fatalf("unexpected url %q", capturedURL)
	}
	if record.Status != enums.PaymentStatusCompleted {
		t.Fatalf("unexpected status %s", record.Status)
	}
	if record.TransactionID != "T123" || record.Reference != "r1" || record.Channel != "MPESA-TZ" {
		t.Fatalf("unexpected provider fields %+v", record)
	}
	if len(record.Raw) == 0 {
		t.Fatalf("expected raw payload")
	}
}

func TestQueryStatusRejectsIncompleteResponses(t *testing.T) {
	bodies := []string{
		`{"data":[]}`,
		`{"result":"FAIL"}`,
		`{"data":[{"transid":"T1"}]}`,
		`{"data":[{"payment_status":"SETTLED"}]}`,
		`not json`,
	}
	for _, body := range bodies {
		body := body
		client := newTestClient(t, func(*http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, body), nil
		})
		_, err := client.QueryStatus(context.Background(), "o1")
		if !pkgerrors.IsCode(err, pkgerrors.CodeGateway) {
			t.Fatalf("body %s: expected gateway error, got %v", body, err)
		}
	}
}

func TestQueryStatusRequiresOrderID(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	if _, err := client.QueryStatus(context.Background(), " "); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNilClientIsDependencyError(t *testing.T) {
	var client *Client
	if _, err := client.QueryStatus(context.Background(), "o1"); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}
