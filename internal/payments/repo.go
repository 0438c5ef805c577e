package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/burudani/burudani-backend/pkg/db"
	"github.com/burudani/burudani-backend/pkg/db/models"
	"github.com/burudani/burudani-backend/pkg/enums"
	pkgerrors "github.com/burudani/burudani-backend/pkg/errors"
	"github.com/burudani/burudani-backend/pkg/pagination"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	if intent == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent required")
	}
	if err := r.db.WithContext(ctx).Create(intent).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return pkgerrors.New(pkgerrors.CodeConflict, "order id already used").
				WithDetails(map[string]any{"order_id": intent.OrderID})
		}
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create payment intent")
	}
	return nil
}

func (r *repository) FindByOrderID(ctx context.Context, orderID string) (*models.PaymentIntent, error) {
	return r.find(r.db.WithContext(ctx), orderID)
}

// FindByOrderIDForUpdate holds a row lock until the surrounding transaction ends.
func (r *repository) FindByOrderIDForUpdate(ctx context.Context, orderID string) (*models.PaymentIntent, error) {
	return r.find(forUpdate(r.db.WithContext(ctx)), orderID)
}

func (r *repository) find(query *gorm.DB, orderID string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := query.Where("order_id = ?", orderID).First(&intent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load payment intent")
	}
	return &intent, nil
}

// UpdateGuarded writes fields only while the row still has the expected status.
// It reports false when another writer moved the status first.
func (r *repository) UpdateGuarded(ctx context.Context, orderID string, expected enums.PaymentStatus, fields map[string]any) (bool, error) {
	if len(fields) == 0 {
		return true, nil
	}
	if _, ok := fields["updated_at"]; !ok {
		fields["updated_at"] = time.Now().UTC()
	}
	res := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("order_id = ? AND status = ?", orderID, expected).
		Updates(fields)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodePersistence, res.Error, "update payment intent")
	}
	return res.RowsAffected > 0, nil
}

// ListByOwner returns owned intents newest first, starting after cursor when set.
func (r *repository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.PaymentIntent, error) {
	var rows []models.PaymentIntent
	query := r.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(clampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list payment intents")
	}
	return rows, nil
}

// ListStaleNonTerminal returns PENDING/INITIATED intents untouched since cutoff, oldest first.
func (r *repository) ListStaleNonTerminal(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentIntent, error) {
	var rows []models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("status IN ?", enums.NonTerminalPaymentStatuses).
		Where("updated_at < ?", cutoff.UTC()).
		Order("updated_at ASC").
		Limit(clampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "list stale payment intents")
	}
	return rows, nil
}

func (r *repository) AppendWebhookEvent(ctx context.Context, event *models.PaymentWebhookEvent) error {
	if event == nil {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "record webhook delivery")
	}
	return nil
}

func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector != nil && db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
