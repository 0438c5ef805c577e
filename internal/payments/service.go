package payments

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/burudani/burudani-backend/pkg/db/models"
	"github.com/burudani/burudani-backend/internal/users"
	dbtypes "github.com/burudani/burudani-backend/pkg/db/types"
	"github.com/burudani/burudani-backend/pkg/enums"
	pkgerrors "github.com/burudani/burudani-backend/pkg/errors"
	"github.com/burudani/burudani-backend/pkg/logger"
	"github.com/burudani/burudani-backend/pkg/outbox"
	"github.com/burudani/burudani-backend/pkg/outbox/payloads"
	"github.com/burudani/burudani-backend/pkg/pagination"
	"github.com/burudani/burudani-backend/pkg/zenopay"
)

const (
	maxApplyAttempts = 3
	maxOrderIDLength = 100

	failureReasonGateway  = "payment initiation failed at provider"
	failureReasonProvider = "reported failed by provider"
	failureReasonExpired  = "no provider confirmation before expiry"
)

var errStaleStatus = errors.New("payment intent status changed concurrently")

// ServiceParams groups dependencies for the reconciliation engine.
type ServiceParams struct {
	Repo              Repository
	Gateway           Gateway
	TransactionRunner txRunner
	Outbox            outboxEmitter
	Users             userLookup
	Recorder          Recorder
	Logger            *logger.Logger
	// CallbackURL is sent to the provider when a create request names none.
	CallbackURL string
	Now         func() time.Time
}

// Service owns payment intent state. Gateway calls never run inside a transaction.
type Service struct {
	repo        Repository
	gateway     Gateway
	tx          txRunner
	outbox      outboxEmitter
	users       userLookup
	recorder    Recorder
	logg        *logger.Logger
	callbackURL string
	now         func() time.Time
}

// NewService builds the reconciliation engine.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repo required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	recorder := params.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:        params.Repo,
		gateway:     params.Gateway,
		tx:          params.TransactionRunner,
		outbox:      params.Outbox,
		users:       params.Users,
		recorder:    recorder,
		logg:        logg,
		callbackURL: strings.TrimSpace(params.CallbackURL),
		now:         func() time.Time { return now().UTC() },
	}, nil
}

// Create stores a PENDING intent, asks the provider to charge it, and settles
// it as INITIATED or FAILED depending on the answer.
func (s *Service) Create(ctx context.Context, input CreateInput) (*CreateResult, error) {
	intent, err := s.buildIntent(ctx, input)
	if err != nil {
		return nil, err
	}

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Create(ctx, intent)
	}); err != nil {
		return nil, pkgerrors.Ensure(err, pkgerrors.CodePersistence, "create payment intent")
	}
	ctx = s.logg.WithOrderID(ctx, intent.OrderID)

	callbackURL := strings.TrimSpace(input.CallbackURL)
	if callbackURL == "" {
		callbackURL = s.callbackURL
	}
	ack, gatewayErr := s.gateway.InitiateCharge(ctx, zenopay.ChargeRequest{
		OrderID:     intent.OrderID,
		Amount:      intent.Amount,
		Currency:    intent.Currency,
		BuyerPhone:  intent.BuyerPhone,
		BuyerEmail:  deref(intent.BuyerEmail),
		BuyerName:   deref(intent.BuyerName),
		CallbackURL: callbackURL,
	})

	if gatewayErr != nil {
		s.logg.Error(ctx, "payment initiation failed", gatewayErr)
		settled, err := s.settleCreate(ctx, intent, enums.PaymentStatusFailed, map[string]any{
			"failure_reason": failureReasonGateway,
		})
		if err != nil {
			return nil, err
		}
		if settled.Status != enums.PaymentStatusFailed {
			// A webhook or poll settled the intent while the charge call was in flight.
			return &CreateResult{Payment: settled}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, gatewayErr, "payment initiation failed").
			WithDetails(map[string]any{
				"order_id": settled.OrderID,
				"status":   settled.Status,
			})
	}

	var raw json.RawMessage
	if ack != nil {
		raw = ack.Raw
	}
	settled, err := s.settleCreate(ctx, intent, enums.PaymentStatusInitiated, map[string]any{
		"provider_ack": dbtypes.JSON(raw),
	})
	if err != nil {
		return nil, err
	}
	return &CreateResult{Payment: settled, ProviderPayload: raw}, nil
}

// settleCreate moves a fresh intent out of PENDING. When another signal got
// there first the current row is returned untouched.
func (s *Service) settleCreate(ctx context.Context, intent *models.PaymentIntent, to enums.PaymentStatus, fields map[string]any) (*models.PaymentIntent, error) {
	fields["status"] = to
	fields["updated_at"] = s.now()

	var (
		result  *models.PaymentIntent
		applied bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpdateGuarded(ctx, intent.OrderID, enums.PaymentStatusPending, fields)
		if err != nil {
			return err
		}
		if !ok {
			current, err := repo.FindByOrderID(ctx, intent.OrderID)
			if err != nil {
				return err
			}
			result = current
			return nil
		}
		updated := *intent
		applyFields(&updated, fields)
		if err := s.emitTransition(ctx, tx, &updated, enums.PaymentStatusPending, enums.TriggerCreate, intent.OwnerID); err != nil {
			return err
		}
		result = &updated
		applied = true
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Ensure(err, pkgerrors.CodePersistence, "settle payment intent")
	}
	if applied {
		s.observeTransition(ctx, result, enums.PaymentStatusPending, enums.TriggerCreate)
	}
	return result, nil
}

// Poll returns the intent, refreshing it from the provider while it is not
// terminal. A failed live check leaves the stored status alone.
func (s *Service) Poll(ctx context.Context, orderID string, callerID *uuid.UUID) (*PollResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	ctx = s.logg.WithOrderID(ctx, orderID)

	intent, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeView(intent, callerID); err != nil {
		return nil, err
	}
	if intent.Status.IsTerminal() {
		return &PollResult{Payment: intent}, nil
	}

	record, err := s.gateway.QueryStatus(ctx, orderID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "payment live status check failed")
		return &PollResult{Payment: intent, LiveCheckError: liveCheckMessage(err)}, nil
	}

	updated, _, err := s.applyReport(ctx, orderID, StatusReport{
		Status:        record.Status,
		TransactionID: record.TransactionID,
		Reference:     record.Reference,
		Channel:       record.Channel,
	}, enums.TriggerPoll, callerID, nil)
	if err != nil {
		return nil, err
	}
	return &PollResult{Payment: updated, ProviderPayload: record.Raw}, nil
}

// HandleWebhook applies an authenticated provider callback and audits it.
func (s *Service) HandleWebhook(ctx context.Context, delivery WebhookDelivery) (*WebhookResult, error) {
	orderID := strings.TrimSpace(delivery.OrderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id required")
	}
	ctx = s.logg.WithOrderID(ctx, orderID)

	status, err := enums.ParsePaymentStatus(delivery.PaymentStatus)
	if err != nil {
		s.recordDelivery(ctx, webhookEvent(delivery, orderID, enums.WebhookOutcomeInvalid))
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown payment_status").
			WithDetails(map[string]any{"payment_status": delivery.PaymentStatus})
	}

	audit := func(ctx context.Context, repo Repository, before, after *models.PaymentIntent, outcome enums.WebhookOutcome) error {
		event := webhookEvent(delivery, orderID, outcome)
		event.PaymentIntentID = &before.ID
		event.StatusBefore = stringPtr(before.Status.String())
		event.StatusAfter = stringPtr(after.Status.String())
		return repo.AppendWebhookEvent(ctx, event)
	}

	updated, outcome, err := s.applyReport(ctx, orderID, StatusReport{
		Status:        status,
		TransactionID: delivery.TransactionID,
		Reference:     delivery.Reference,
		Channel:       delivery.Channel,
	}, enums.TriggerWebhook, nil, audit)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.recordDelivery(ctx, webhookEvent(delivery, orderID, enums.WebhookOutcomeNotFound))
		}
		return nil, err
	}

	s.recorder.ObserveWebhook(outcome.String())
	if outcome == enums.WebhookOutcomeIgnoredTerminal && status != updated.Status {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"stored_status":   updated.Status,
			"reported_status": status,
		}), "webhook disagrees with settled payment")
	}
	return &WebhookResult{OrderID: orderID, Outcome: outcome, Status: updated.Status}, nil
}

// Expire moves an intent to EXPIRED when it is still non-terminal and has not
// changed since cutoff. It reports whether the intent was expired.
func (s *Service) Expire(ctx context.Context, orderID string, cutoff time.Time) (bool, error) {
	var (
		expired *models.PaymentIntent
		from    enums.PaymentStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByOrderIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if current.Status.IsTerminal() || current.UpdatedAt.After(cutoff) {
			return nil
		}
		fields := map[string]any{
			"status":         enums.PaymentStatusExpired,
			"failure_reason": failureReasonExpired,
			"updated_at":     s.now(),
		}
		ok, err := repo.UpdateGuarded(ctx, orderID, current.Status, fields)
		if err != nil || !ok {
			return err
		}
		updated := *current
		applyFields(&updated, fields)
		if err := s.emitTransition(ctx, tx, &updated, current.Status, enums.TriggerExpiry, nil); err != nil {
			return err
		}
		from = current.Status
		expired = &updated
		return nil
	})
	if err != nil {
		return false, pkgerrors.Ensure(err, pkgerrors.CodePersistence, "expire payment intent")
	}
	if expired == nil {
		return false, nil
	}
	s.observeTransition(s.logg.WithOrderID(ctx, orderID), expired, from, enums.TriggerExpiry)
	return true, nil
}

// ListStale returns non-terminal intents untouched since cutoff.
func (s *Service) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentIntent, error) {
	return s.repo.ListStaleNonTerminal(ctx, cutoff, limit)
}

// ListForOwner returns a page of the caller's intents, newest first.
func (s *Service) ListForOwner(ctx context.Context, ownerID uuid.UUID, params pagination.Params) (*ListResult, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListByOwner(ctx, ownerID, limit+1, cursor)
	if err != nil {
		return nil, err
	}

	page, next := pagination.Trim(rows, limit, func(row models.PaymentIntent) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return &ListResult{Payments: page, NextCursor: next}, nil
}

type auditFunc func(ctx context.Context, repo Repository, before, after *models.PaymentIntent, outcome enums.WebhookOutcome) error

// applyReport re-reads the intent under lock and applies the report. A stale
// compare-and-swap is retried against the fresh row.
func (s *Service) applyReport(ctx context.Context, orderID string, report StatusReport, trigger enums.PaymentTrigger, actor *uuid.UUID, audit auditFunc) (*models.PaymentIntent, enums.WebhookOutcome, error) {
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		var (
			result  *models.PaymentIntent
			outcome enums.WebhookOutcome
			from    enums.PaymentStatus
		)
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			current, err := repo.FindByOrderIDForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			from = current.Status

			var fields map[string]any
			outcome, fields = resolveReport(current, report)
			updated := *current
			if len(fields) > 0 {
				fields["updated_at"] = s.now()
				ok, err := repo.UpdateGuarded(ctx, orderID, current.Status, fields)
				if err != nil {
					return err
				}
				if !ok {
					return errStaleStatus
				}
				applyFields(&updated, fields)
			}
			if outcome == enums.WebhookOutcomeApplied {
				if err := s.emitTransition(ctx, tx, &updated, from, trigger, actor); err != nil {
					return err
				}
			}
			if audit != nil {
				if err := audit(ctx, repo, current, &updated, outcome); err != nil {
					return err
				}
			}
			result = &updated
			return nil
		})
		if errors.Is(err, errStaleStatus) {
			s.logg.Debug(ctx, "payment intent moved concurrently, retrying")
			continue
		}
		if err != nil {
			return nil, "", pkgerrors.Ensure(err, pkgerrors.CodePersistence, "apply payment status")
		}
		if outcome == enums.WebhookOutcomeApplied {
			s.observeTransition(ctx, result, from, trigger)
		}
		return result, outcome, nil
	}
	return nil, "", pkgerrors.Wrap(pkgerrors.CodePersistence, errStaleStatus, "apply payment status")
}

func (s *Service) buildIntent(ctx context.Context, input CreateInput) (*models.PaymentIntent, error) {
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.Amount.IsInteger() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be a whole number")
	}
	phone := strings.TrimSpace(input.BuyerPhone)
	if phone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer_phone required")
	}
	currency, err := enums.ParseCurrency(input.Currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported currency")
	}
	orderID := strings.TrimSpace(input.OrderID)
	if orderID == "" {
		orderID = uuid.NewString()
	}
	if len(orderID) > maxOrderIDLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id too long")
	}

	email := strings.TrimSpace(input.BuyerEmail)
	name := strings.TrimSpace(input.BuyerName)
	if input.OwnerID != nil && s.users != nil && (email == "" || name == "") {
		user, err := s.users.FindByID(ctx, *input.OwnerID)
		if err != nil {
			if errors.Is(err, users.ErrNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown account")
			}
			return nil, pkgerrors.Ensure(err, pkgerrors.CodePersistence, "load buyer")
		}
		if email == "" {
			email = user.Email
		}
		if name == "" {
			name = emailLocalPart(user.Email)
		}
	}

	now := s.now()
	return &models.PaymentIntent{
		OrderID:    orderID,
		OwnerID:    input.OwnerID,
		Amount:     input.Amount,
		Currency:   currency,
		Status:     enums.PaymentStatusPending,
		Method:     enums.PaymentMethodMobileMoney,
		BuyerPhone: phone,
		BuyerEmail: optionalString(email),
		BuyerName:  optionalString(name),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *Service) emitTransition(ctx context.Context, tx *gorm.DB, intent *models.PaymentIntent, from enums.PaymentStatus, trigger enums.PaymentTrigger, actor *uuid.UUID) error {
	var actorRef *outbox.ActorRef
	if actor != nil {
		actorRef = &outbox.ActorRef{UserID: *actor}
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentStatusChanged,
		AggregateType: enums.AggregatePaymentIntent,
		AggregateID:   intent.ID,
		Actor:         actorRef,
		OccurredAt:    intent.UpdatedAt,
		Data: payloads.PaymentStatusChangedEvent{
			PaymentIntentID: intent.ID,
			OrderID:         intent.OrderID,
			OwnerID:         intent.OwnerID,
			From:            from,
			To:              intent.Status,
			Trigger:         trigger,
			Amount:          intent.Amount,
			Currency:        intent.Currency,
			TransactionID:   intent.ProviderTransactionID,
			FailureReason:   intent.FailureReason,
			OccurredAt:      intent.UpdatedAt,
		},
	})
}

func (s *Service) observeTransition(ctx context.Context, intent *models.PaymentIntent, from enums.PaymentStatus, trigger enums.PaymentTrigger) {
	s.recorder.ObserveTransition(from.String(), intent.Status.String(), trigger.String())
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": intent.OrderID,
		"from":     from,
		"to":       intent.Status,
		"trigger":  trigger,
	}), "payment.transition")
}

// recordDelivery audits a webhook that could not be tied to an intent. A
// failed insert is logged so the caller still sees the original rejection.
func (s *Service) recordDelivery(ctx context.Context, event *models.PaymentWebhookEvent) {
	s.recorder.ObserveWebhook(event.Outcome.String())
	if err := s.repo.AppendWebhookEvent(ctx, event); err != nil {
		s.logg.Error(ctx, "record webhook delivery", err)
	}
}

func webhookEvent(delivery WebhookDelivery, orderID string, outcome enums.WebhookOutcome) *models.PaymentWebhookEvent {
	event := &models.PaymentWebhookEvent{
		OrderID:        orderID,
		ReportedStatus: strings.TrimSpace(delivery.PaymentStatus),
		Outcome:        outcome,
		TransactionID:  optionalString(delivery.TransactionID),
		Reference:      optionalString(delivery.Reference),
		Channel:        optionalString(delivery.Channel),
		RawBody:        string(delivery.RawBody),
	}
	if len(delivery.Metadata) > 0 && json.Valid(delivery.Metadata) {
		event.Metadata = dbtypes.JSON(delivery.Metadata)
	}
	return event
}

// authorizeView hides owned intents from everyone but their owner. Guest
// intents are visible to any caller holding the order id.
func authorizeView(intent *models.PaymentIntent, callerID *uuid.UUID) error {
	if intent.OwnerID == nil {
		return nil
	}
	if callerID == nil || *callerID != *intent.OwnerID {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return nil
}

func liveCheckMessage(err error) string {
	if typed := pkgerrors.As(err); typed != nil && typed.Message() != "" {
		return typed.Message()
	}
	return "payment provider status check failed"
}

func emailLocalPart(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
