// Package ledger settles metered usage against user balances. Every
// settlement is all-or-nothing: the sufficiency check, the balance
// decrement, the usage records, and the audit transaction commit as one
// unit under a per-user row lock.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go.uber.org/zap"

	"multichat/internal/logging"
	"multichat/internal/metrics"
	"multichat/internal/pricing"
	"multichat/pkg/models"
)

// ErrIntegrity means the guarded decrement found a balance that no
// longer covered the charge after the lock was taken. The caller may
// retry the settlement as a fresh operation; the ledger never retries
// internally.
var ErrIntegrity = errors.New("ledger: balance integrity violation")

// ErrUserNotFound means the settlement target does not exist.
var ErrUserNotFound = errors.New("ledger: user not found")

// InsufficientFundsError reports how far short the balance fell. No
// partial debit happens: either the whole batch is charged or nothing.
type InsufficientFundsError struct {
	Required  float64
	Available float64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("ledger: insufficient funds: required $%.6f, available $%.6f", e.Required, e.Available)
}

// UsageEntry is one billable model invocation inside a settlement.
type UsageEntry struct {
	ModelID      string
	InputTokens  int
	OutputTokens int
	Unmetered    bool
}

// SettleResult reports a committed settlement.
type SettleResult struct {
	Debited      float64
	BalanceAfter float64
}

// Service is the billing ledger.
type Service struct {
	db      *gorm.DB
	pricing *pricing.Engine
}

// NewService creates a ledger over the given database and pricing engine.
func NewService(db *gorm.DB, pricing *pricing.Engine) *Service {
	return &Service{db: db, pricing: pricing}
}

// lockUser loads the user's row under FOR UPDATE. SQLite has no row
// locks; there the connection pool must be capped at one so writers
// serialize at the connection level instead.
func lockUser(tx *gorm.DB, userID uint) (*models.User, error) {
	q := tx
	if tx.Dialector.Name() != "sqlite" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var user models.User
	if err := q.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Cost prices a single entry without touching the ledger.
func (s *Service) Cost(e UsageEntry) float64 {
	return s.pricing.Cost(e.ModelID, e.InputTokens, e.OutputTokens)
}

// TotalCost prices a batch of entries.
func (s *Service) TotalCost(entries []UsageEntry) float64 {
	var total float64
	for _, e := range entries {
		total += s.Cost(e)
	}
	return total
}

// Settle charges the user for a batch of usage entries, tagged with the
// session kind (chat, arena, arbitration). Concurrent settlements for
// the same user serialize on the row lock, so two requests can never
// both pass the sufficiency check against a stale balance.
func (s *Service) Settle(ctx context.Context, userID uint, kind string, entries []UsageEntry) (*SettleResult, error) {
	if len(entries) == 0 {
		return nil, errors.New("ledger: settlement needs at least one usage entry")
	}

	total := s.TotalCost(entries)
	result := &SettleResult{Debited: total}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, userID)
		if err != nil {
			return err
		}

		if user.Balance < total {
			return &InsufficientFundsError{Required: total, Available: user.Balance}
		}

		if total > 0 {
			// Guarded decrement. With the row locked this should never
			// miss; a zero row count means the invariant broke.
			res := tx.Model(&models.User{}).
				Where("id = ? AND balance >= ?", userID, total).
				Update("balance", gorm.Expr("balance - ?", total))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrIntegrity
			}

			if err := tx.Create(&models.Transaction{
				UserID:       userID,
				Amount:       -total,
				Type:         models.TxSpending,
				Description:  fmt.Sprintf("%s usage across %d model call(s)", kind, len(entries)),
				BalanceAfter: user.Balance - total,
			}).Error; err != nil {
				return err
			}
		}

		for _, e := range entries {
			if err := tx.Create(&models.UsageLog{
				UserID:       userID,
				Model:        e.ModelID,
				Kind:         kind,
				InputTokens:  e.InputTokens,
				OutputTokens: e.OutputTokens,
				Cost:         s.Cost(e),
				Unmetered:    e.Unmetered,
			}).Error; err != nil {
				return err
			}
		}

		result.BalanceAfter = user.Balance - total
		return nil
	})
	if err != nil {
		var insufficient *InsufficientFundsError
		if errors.As(err, &insufficient) {
			metrics.Get().InsufficientFunds.Inc()
		}
		return nil, err
	}

	for _, e := range entries {
		metrics.Get().RecordUsageCost(e.ModelID, kind, s.Cost(e))
	}

	logging.L().Info("settlement committed",
		zap.Uint("user_id", userID),
		zap.String("kind", kind),
		zap.Int("entries", len(entries)),
		zap.Float64("debited", total))
	return result, nil
}

// AdjustBalance applies a signed credit or debit with no sufficiency
// check, for deposits and manual corrections. It serializes on the same
// per-user row lock as Settle.
func (s *Service) AdjustBalance(ctx context.Context, userID uint, amount float64, txType, description string) (*models.Transaction, error) {
	var record *models.Transaction

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := lockUser(tx, userID)
		if err != nil {
			return err
		}

		if err := tx.Model(&models.User{}).
			Where("id = ?", userID).
			Update("balance", gorm.Expr("balance + ?", amount)).Error; err != nil {
			return err
		}

		record = &models.Transaction{
			UserID:       userID,
			Amount:       amount,
			Type:         txType,
			Description:  description,
			BalanceAfter: user.Balance + amount,
		}
		return tx.Create(record).Error
	})
	if err != nil {
		return nil, err
	}

	logging.L().Info("balance adjusted",
		zap.Uint("user_id", userID),
		zap.String("type", txType),
		zap.Float64("amount", amount),
		zap.Float64("balance_after", record.BalanceAfter))
	return record, nil
}

// Balance returns the user's current balance.
func (s *Service) Balance(ctx context.Context, userID uint) (float64, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return user.Balance, nil
}

// History returns the user's balance transactions, newest first.
func (s *Service) History(ctx context.Context, userID uint, limit int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var txs []models.Transaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// Usage returns the user's usage records, newest first.
func (s *Service) Usage(ctx context.Context, userID uint, limit int) ([]models.UsageLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var logs []models.UsageLog
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
