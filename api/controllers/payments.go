package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/burudani/burudani-backend/api/middleware"
	"github.com/burudani/burudani-backend/api/responses"
	"github.com/burudani/burudani-backend/api/validators"
	"github.com/burudani/burudani-backend/internal/payments"
	"github.com/burudani/burudani-backend/pkg/db/models"
	pkgerrors "github.com/burudani/burudani-backend/pkg/errors"
	"github.com/burudani/burudani-backend/pkg/logger"
	"github.com/burudani/burudani-backend/pkg/pagination"
)

// PaymentsService is the engine surface used by the payment handlers.
type PaymentsService interface {
	Create(ctx context.Context, input payments.CreateInput) (*payments.CreateResult, error)
	Poll(ctx context.Context, orderID string, callerID *uuid.UUID) (*payments.PollResult, error)
	ListForOwner(ctx context.Context, ownerID uuid.UUID, params pagination.Params) (*payments.ListResult, error)
}

type createPaymentRequest struct {
	OrderID     string          `json:"order_id" validate:"omitempty,max=100"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency" validate:"omitempty,len=3"`
	BuyerPhone  string          `json:"buyer_phone" validate:"required,max=20"`
	BuyerEmail  string          `json:"buyer_email" validate:"omitempty,email"`
	BuyerName   string          `json:"buyer_name" validate:"omitempty,max=255"`
	CallbackURL string          `json:"callback_url" validate:"omitempty,url"`
}

type createPaymentResponse struct {
	OrderID         string                `json:"order_id"`
	Status          string                `json:"status"`
	ProviderPayload json.RawMessage       `json:"provider_payload"`
	Payment         *models.PaymentIntent `json:"payment"`
}

type pollPaymentResponse struct {
	Payment         *models.PaymentIntent `json:"payment"`
	ProviderPayload json.RawMessage       `json:"provider_payload,omitempty"`
	LiveCheckError  string                `json:"live_check_error,omitempty"`
}

type listPaymentsResponse struct {
	Payments   []models.PaymentIntent `json:"payments"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

// CreatePayment registers an intent and asks the provider to charge the buyer.
func CreatePayment(svc PaymentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		var body createPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), payments.CreateInput{
			OrderID:     validators.SanitizeString(body.OrderID, 100),
			OwnerID:     middleware.CallerID(r.Context()),
			Amount:      body.Amount,
			Currency:    strings.ToUpper(strings.TrimSpace(body.Currency)),
			BuyerPhone:  validators.NormalizePhone(body.BuyerPhone),
			BuyerEmail:  validators.NormalizeEmail(body.BuyerEmail),
			BuyerName:   validators.SanitizeString(body.BuyerName, 255),
			CallbackURL: strings.TrimSpace(body.CallbackURL),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, createPaymentResponse{
			OrderID:         result.Payment.OrderID,
			Status:          string(result.Payment.Status),
			ProviderPayload: result.ProviderPayload,
			Payment:         result.Payment,
		})
	}
}

// GetPayment returns an intent and refreshes it from the provider while it is open.
func GetPayment(svc PaymentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		result, err := svc.Poll(r.Context(), chi.URLParam(r, "orderId"), middleware.CallerID(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, pollPaymentResponse{
			Payment:         result.Payment,
			ProviderPayload: result.ProviderPayload,
			LiveCheckError:  result.LiveCheckError,
		})
	}
}

// ListPayments pages through the caller's intents, newest first.
func ListPayments(svc PaymentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		caller := middleware.CallerID(r.Context())
		if caller == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cursor, err := validators.ParseCursor(r, "cursor")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListForOwner(r.Context(), *caller, pagination.Params{
			Limit:  limit,
			Cursor: cursor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := result.Payments
		if items == nil {
			items = []models.PaymentIntent{}
		}
		responses.WriteSuccess(w, listPaymentsResponse{Payments: items, NextCursor: result.NextCursor})
	}
}
