package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"multichat/internal/catalog"
	"multichat/internal/pricing"
	"multichat/pkg/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// One connection so concurrent transactions serialize; SQLite has
	// no row locks to do it for us.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Transaction{}, &models.UsageLog{}))
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := openTestDB(t)
	engine := pricing.NewEngine(catalog.New(catalog.Credentials{
		OpenAI: true, Anthropic: true, Google: true, Together: true,
	}))
	return NewService(db, engine), db
}

func createUser(t *testing.T, db *gorm.DB, balance float64) *models.User {
	t.Helper()
	user := &models.User{
		Username:     "tester",
		Email:        "tester@example.com",
		PasswordHash: "x",
		IsActive:     true,
		Balance:      balance,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// claude-sonnet-4.5 at $4/$20 per 1M: 1M in + 175K out = $7.50.
func sonnetEntry() UsageEntry {
	return UsageEntry{ModelID: "claude-sonnet-4.5", InputTokens: 1_000_000, OutputTokens: 175_000}
}

func TestSettle_DebitsAndRecords(t *testing.T) {
	svc, db := newTestService(t)
	user := createUser(t, db, 10.00)

	result, err := svc.Settle(context.Background(), user.ID, models.UsageChat, []UsageEntry{sonnetEntry()})
	require.NoError(t, err)
	assert.InDelta(t, 7.50, result.Debited, 1e-9)
	assert.InDelta(t, 2.50, result.BalanceAfter, 1e-9)

	balance, err := svc.Balance(context.Background(), user.ID)
	require.NoError(t, err)
	assert.InDelta(t, 2.50, balance, 1e-9)

	var logs []models.UsageLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, models.UsageChat, logs[0].Kind)
	assert.InDelta(t, 7.50, logs[0].Cost, 1e-9)

	var txs []models.Transaction
	require.NoError(t, db.Find(&txs).Error)
	require.Len(t, txs, 1)
	assert.Equal(t, models.TxSpending, txs[0].Type)
	assert.InDelta(t, -7.50, txs[0].Amount, 1e-9)
	assert.InDelta(t, 2.50, txs[0].BalanceAfter, 1e-9)
}

func TestSettle_InsufficientFundsIsAllOrNothing(t *testing.T) {
	svc, db := newTestService(t)
	// Two entries fit, the third pushes the batch over.
	user := createUser(t, db, 20.00)

	entries := []UsageEntry{sonnetEntry(), sonnetEntry(), sonnetEntry()} // $22.50 total
	_, err := svc.Settle(context.Background(), user.ID, models.UsageArena, entries)

	var insufficient *InsufficientFundsError
	require.True(t, errors.As(err, &insufficient))
	assert.InDelta(t, 22.50, insufficient.Required, 1e-9)
	assert.InDelta(t, 20.00, insufficient.Available, 1e-9)

	// Nothing was written: no partial debit, no 2-of-3 usage rows.
	var logCount, txCount int64
	require.NoError(t, db.Model(&models.UsageLog{}).Count(&logCount).Error)
	require.NoError(t, db.Model(&models.Transaction{}).Count(&txCount).Error)
	assert.Zero(t, logCount)
	assert.Zero(t, txCount)

	balance, err := svc.Balance(context.Background(), user.ID)
	require.NoError(t, err)
	assert.InDelta(t, 20.00, balance, 1e-9)
}

func TestSettle_ConcurrentSettlementsNeverDoubleSpend(t *testing.T) {
	svc, db := newTestService(t)
	// Each settlement costs $7.50; the balance covers one but not both.
	user := createUser(t, db, 10.00)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = svc.Settle(context.Background(), user.ID, models.UsageChat, []UsageEntry{sonnetEntry()})
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var insufficient *InsufficientFundsError
		require.True(t, errors.As(err, &insufficient), "unexpected error: %v", err)
		rejected++
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	balance, err := svc.Balance(context.Background(), user.ID)
	require.NoError(t, err)
	assert.InDelta(t, 2.50, balance, 1e-9)
}

func TestSettle_UnmeteredEntryCostsNothingButIsFlagged(t *testing.T) {
	svc, db := newTestService(t)
	user := createUser(t, db, 5.00)

	result, err := svc.Settle(context.Background(), user.ID, models.UsageChat, []UsageEntry{
		{ModelID: "deepseek-r1", Unmetered: true},
	})
	require.NoError(t, err)
	assert.Zero(t, result.Debited)

	var logs []models.UsageLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Unmetered)
	assert.Zero(t, logs[0].Cost)

	// A zero debit appends no spending transaction.
	var txCount int64
	require.NoError(t, db.Model(&models.Transaction{}).Count(&txCount).Error)
	assert.Zero(t, txCount)
}

func TestSettle_UnknownUser(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Settle(context.Background(), 9999, models.UsageChat, []UsageEntry{sonnetEntry()})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAdjustBalance_DepositAndCorrection(t *testing.T) {
	svc, db := newTestService(t)
	user := createUser(t, db, 0)

	deposit, err := svc.AdjustBalance(context.Background(), user.ID, 25.00, models.TxDeposit, "Stripe checkout")
	require.NoError(t, err)
	assert.InDelta(t, 25.00, deposit.BalanceAfter, 1e-9)

	// Negative adjustments need no sufficiency check.
	correction, err := svc.AdjustBalance(context.Background(), user.ID, -30.00, models.TxAdminAdjustment, "chargeback")
	require.NoError(t, err)
	assert.InDelta(t, -5.00, correction.BalanceAfter, 1e-9)

	balance, err := svc.Balance(context.Background(), user.ID)
	require.NoError(t, err)
	assert.InDelta(t, -5.00, balance, 1e-9)
}

func TestLedgerInvariant_BalanceEqualsTransactionSumMinusUsage(t *testing.T) {
	svc, db := newTestService(t)
	user := createUser(t, db, 0)
	ctx := context.Background()

	_, err := svc.AdjustBalance(ctx, user.ID, 50.00, models.TxDeposit, "deposit")
	require.NoError(t, err)
	_, err = svc.AdjustBalance(ctx, user.ID, -3.00, models.TxAdminAdjustment, "correction")
	require.NoError(t, err)
	_, err = svc.Settle(ctx, user.ID, models.UsageChat, []UsageEntry{sonnetEntry()})
	require.NoError(t, err)
	_, err = svc.Settle(ctx, user.ID, models.UsageArena, []UsageEntry{sonnetEntry(), sonnetEntry()})
	require.NoError(t, err)

	var deposits, usage float64
	require.NoError(t, db.Model(&models.Transaction{}).
		Where("user_id = ? AND type != ?", user.ID, models.TxSpending).
		Select("COALESCE(SUM(amount), 0)").Scan(&deposits).Error)
	require.NoError(t, db.Model(&models.UsageLog{}).
		Where("user_id = ?", user.ID).
		Select("COALESCE(SUM(cost), 0)").Scan(&usage).Error)

	balance, err := svc.Balance(ctx, user.ID)
	require.NoError(t, err)
	assert.InDelta(t, deposits-usage, balance, 1e-9)
	assert.InDelta(t, 24.50, balance, 1e-9)
}

func TestHistory_NewestFirst(t *testing.T) {
	svc, db := newTestService(t)
	user := createUser(t, db, 0)
	ctx := context.Background()

	_, err := svc.AdjustBalance(ctx, user.ID, 10.00, models.TxDeposit, "first")
	require.NoError(t, err)
	_, err = svc.AdjustBalance(ctx, user.ID, 5.00, models.TxDeposit, "second")
	require.NoError(t, err)

	history, err := svc.History(ctx, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "second", history[0].Description)
	assert.Equal(t, "first", history[1].Description)
}
