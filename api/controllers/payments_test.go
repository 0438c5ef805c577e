package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burudani/burudani-backend/api/middleware"
	"github.com/burudani/burudani-backend/internal/payments"
	"github.com/burudani/burudani-backend/pkg/db/models"
	"github.com/burudani/burudani-backend/pkg/enums"
	pkgerrors "github.com/burudani/burudani-backend/pkg/errors"
	"github.com/burudani/burudani-backend/pkg/pagination"
)

type stubPaymentsService struct {
	createInput payments.CreateInput
	createErr   error

	pollOrderID string
	pollCaller  *uuid.UUID
	pollErr     error

	listOwner  uuid.UUID
	listParams pagination.Params
	listResult *payments.ListResult
	listErr    error
}

func (s *stubPaymentsService) Create(_ context.Context, input payments.CreateInput) (*payments.CreateResult, error) {
	s.createInput = input
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &payments.CreateResult{
		Payment: &models.PaymentIntent{
			ID:       uuid.New(),
			OrderID:  "ord-1",
			Amount:   input.Amount,
			Currency: enums.Currency(input.Currency),
			Status:   enums.PaymentStatusInitiated,
		},
		ProviderPayload: json.RawMessage(`{"status":"success"}`),
	}, nil
}

func (s *stubPaymentsService) Poll(_ context.Context, orderID string, callerID *uuid.UUID) (*payments.PollResult, error) {
	s.pollOrderID = orderID
	s.pollCaller = callerID
	if s.pollErr != nil {
		return nil, s.pollErr
	}
	return &payments.PollResult{
		Payment:        &models.PaymentIntent{OrderID: orderID, Status: enums.PaymentStatusInitiated},
		LiveCheckError: "provider unreachable",
	}, nil
}

func (s *stubPaymentsService) ListForOwner(_ context.Context, ownerID uuid.UUID, params pagination.Params) (*payments.ListResult, error) {
	s.listOwner = ownerID
	s.listParams = params
	if s.listErr != nil {
		return nil, s.listErr
	}
	if s.listResult != nil {
		return s.listResult, nil
	}
	return &payments.ListResult{}, nil
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestCreatePayment(t *testing.T) {
	svc := &stubPaymentsService{}
	handler := CreatePayment(svc, nil)

	body := `{"amount":"1500.00","currency":"tzs","buyer_phone":" 0712345678 ","buyer_email":"a@example.com","buyer_name":"Asha"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body))
	owner := uuid.New()
	req = req.WithContext(middleware.WithUserID(req.Context(), owner.String()))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "TZS", svc.createInput.Currency)
	assert.Equal(t, "0712345678", svc.createInput.BuyerPhone)
	require.NotNil(t, svc.createInput.OwnerID)
	assert.Equal(t, owner, *svc.createInput.OwnerID)
	assert.True(t, svc.createInput.Amount.Equal(decimal.RequireFromString("1500")))

	var data createPaymentResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &data))
	assert.Equal(t, "ord-1", data.OrderID)
	assert.Equal(t, "INITIATED", data.Status)
	assert.JSONEq(t, `{"status":"success"}`, string(data.ProviderPayload))
}

func TestCreatePaymentGuestHasNoOwner(t *testing.T) {
	svc := &stubPaymentsService{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(`{"amount":"1000","buyer_phone":"0712345678"}`))
	rec := httptest.NewRecorder()

	CreatePayment(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Nil(t, svc.createInput.OwnerID)
}

func TestCreatePaymentValidation(t *testing.T) {
	cases := map[string]string{
		"missing phone":  `{"amount":"1000"}`,
		"unknown field":  `{"amount":"1000","buyer_phone":"0712","extra":true}`,
		"bad email":      `{"amount":"1000","buyer_phone":"0712","buyer_email":"nope"}`,
		"bad currency":   `{"amount":"1000","buyer_phone":"0712","currency":"TZSH"}`,
		"malformed json": `{"amount":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &stubPaymentsService{}
			rec := httptest.NewRecorder()
			CreatePayment(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body)))

			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			env := decodeEnvelope(t, rec)
			require.NotNil(t, env.Error)
			assert.Equal(t, string(pkgerrors.CodeValidation), env.Error.Code)
			assert.Empty(t, svc.createInput.BuyerPhone)
		})
	}
}

func TestCreatePaymentGatewayFailure(t *testing.T) {
	svc := &stubPaymentsService{
		createErr: pkgerrors.New(pkgerrors.CodeGateway, "payment initiation failed").
			WithDetails(map[string]any{"order_id": "ord-1", "status": "FAILED"}),
	}
	rec := httptest.NewRecorder()
	CreatePayment(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(`{"amount":"1000","buyer_phone":"0712"}`)))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "payment initiation failed", env.Error.Message)
	assert.Equal(t, "FAILED", env.Error.Details["status"])
}

func TestGetPayment(t *testing.T) {
	svc := &stubPaymentsService{}
	router := chi.NewRouter()
	router.Get("/api/v1/payments/{orderId}", GetPayment(svc, nil))

	caller := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/ord-42", nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), caller.String()))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ord-42", svc.pollOrderID)
	require.NotNil(t, svc.pollCaller)
	assert.Equal(t, caller, *svc.pollCaller)

	var data pollPaymentResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &data))
	assert.Equal(t, "provider unreachable", data.LiveCheckError)
	assert.Equal(t, enums.PaymentStatusInitiated, data.Payment.Status)
}

func TestGetPaymentNotFound(t *testing.T) {
	svc := &stubPaymentsService{pollErr: pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")}
	router := chi.NewRouter()
	router.Get("/api/v1/payments/{orderId}", GetPayment(svc, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/payments/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPayments(t *testing.T) {
	svc := &stubPaymentsService{listResult: &payments.ListResult{
		Payments:   []models.PaymentIntent{{OrderID: "ord-2"}, {OrderID: "ord-1"}},
		NextCursor: "next",
	}}
	owner := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments?limit=2&cursor=abc", nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), owner.String()))
	rec := httptest.NewRecorder()

	ListPayments(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, owner, svc.listOwner)
	assert.Equal(t, pagination.Params{Limit: 2, Cursor: "abc"}, svc.listParams)

	var data listPaymentsResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &data))
	assert.Len(t, data.Payments, 2)
	assert.Equal(t, "next", data.NextCursor)
}

func TestListPaymentsEmptyPageIsArray(t *testing.T) {
	svc := &stubPaymentsService{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments", nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
	rec := httptest.NewRecorder()

	ListPayments(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"payments":[]}`, string(decodeEnvelope(t, rec).Data))
	assert.Equal(t, pagination.DefaultLimit, svc.listParams.Limit)
}

func TestListPaymentsRejects(t *testing.T) {
	svc := &stubPaymentsService{}

	rec := httptest.NewRecorder()
	ListPayments(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/payments", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments?limit=500", nil)
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
	rec = httptest.NewRecorder()
	ListPayments(svc, nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
