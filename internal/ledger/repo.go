package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quillcoach/credits-backend/internal/repo"
	"github.com/quillcoach/credits-backend/pkg/db/models"
	"github.com/quillcoach/credits-backend/pkg/enums"
)

// Repository persists accounts and their transaction log. Only the Mutator
// calls CompareAndSwapBalance and AppendTransaction.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateAccount(ctx context.Context, account *models.Account) error
	FindAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	FindAccountForShare(ctx context.Context, id uuid.UUID) (*models.Account, error)
	CompareAndSwapBalance(ctx context.Context, update BalanceUpdate) (bool, error)
	AppendTransaction(ctx context.Context, txn *models.CreditTransaction) error
	FindTransaction(ctx context.Context, accountID, id uuid.UUID) (*models.CreditTransaction, error)
	ListTransactions(ctx context.Context, query TransactionQuery) ([]models.CreditTransaction, error)
	LoadLog(ctx context.Context, accountID uuid.UUID) ([]models.CreditTransaction, error)
	ListPurchasesForTrainer(ctx context.Context, trainerID uuid.UUID, from, to time.Time) ([]models.CreditTransaction, error)
	ListAccountIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

// BalanceUpdate is a version-guarded write of a new balance.
type BalanceUpdate struct {
	AccountID       uuid.UUID
	ExpectedVersion int64
	Credits         int64
	EntryAt         time.Time
	PlanID          *uuid.UUID
	PlanName        string
}

// TransactionQuery selects a page of an account's log, newest first.
type TransactionQuery struct {
	AccountID      uuid.UUID
	Type           *enums.TransactionType
	BeforeSequence *int64
	Limit          int
}

type repository struct {
	repo.Base
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bound(tx)}
}

func (r *repository) CreateAccount(ctx context.Context, account *models.Account) error {
	return r.DB(ctx).Create(account).Error
}

func (r *repository) FindAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := r.DB(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// FindAccountForShare blocks concurrent balance writes until the surrounding
// transaction ends. SQLite has no row locks and serializes writers anyway.
func (r *repository) FindAccountForShare(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	query := r.DB(ctx).Where("id = ?", id)
	if query.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "SHARE"})
	}
	var account models.Account
	if err := query.First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) CompareAndSwapBalance(ctx context.Context, update BalanceUpdate) (bool, error) {
	values := map[string]any{
		"credits":       update.Credits,
		"version":       gorm.Expr("version + 1"),
		"last_entry_at": update.EntryAt,
		"updated_at":    update.EntryAt,
	}
	if update.PlanID != nil {
		values["current_plan_id"] = *update.PlanID
		values["current_plan_name"] = update.PlanName
		values["current_plan_assigned_at"] = update.EntryAt
	}
	res := r.DB(ctx).Model(&models.Account{}).
		Where("id = ? AND version = ?", update.AccountID, update.ExpectedVersion).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) AppendTransaction(ctx context.Context, txn *models.CreditTransaction) error {
	return r.DB(ctx).Create(txn).Error
}

func (r *repository) FindTransaction(ctx context.Context, accountID, id uuid.UUID) (*models.CreditTransaction, error) {
	return repo.FindOne[models.CreditTransaction](r.DB(ctx), "account_id = ? AND id = ?", accountID, id)
}

func (r *repository) ListTransactions(ctx context.Context, query TransactionQuery) ([]models.CreditTransaction, error) {
	q := r.DB(ctx).Where("account_id = ?", query.AccountID)
	if query.Type != nil {
		q = q.Where("type = ?", *query.Type)
	}
	if query.BeforeSequence != nil {
		q = q.Where("sequence < ?", *query.BeforeSequence)
	}
	var rows []models.CreditTransaction
	err := q.Order("sequence DESC").Limit(query.Limit).Find(&rows).Error
	return rows, err
}

func (r *repository) LoadLog(ctx context.Context, accountID uuid.UUID) ([]models.CreditTransaction, error) {
	var rows []models.CreditTransaction
	err := r.DB(ctx).
		Where("account_id = ?", accountID).
		Order("sequence ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListPurchasesForTrainer(ctx context.Context, trainerID uuid.UUID, from, to time.Time) ([]models.CreditTransaction, error) {
	var rows []models.CreditTransaction
	err := r.DB(ctx).
		Where("trainer_id = ? AND type = ?", trainerID, enums.TransactionTypePurchase).
		Where("created_at >= ? AND created_at < ?", from, to).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListAccountIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	q := r.DB(ctx).Model(&models.Account{})
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	var ids []uuid.UUID
	err := q.Order("id ASC").Limit(limit).Pluck("id", &ids).Error
	return ids, err
}
