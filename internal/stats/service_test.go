package stats

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"multichat/pkg/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(&models.User{}, &models.UsageLog{}, &models.Transaction{}))
	return gdb
}

func seedUsage(t *testing.T, gdb *gorm.DB, userID uint, model string, cost float64, in, out int64, at time.Time) {
	t.Helper()
	log := &models.UsageLog{
		UserID:       userID,
		Model:        model,
		Kind:         models.UsageChat,
		InputTokens:  int(in),
		OutputTokens: int(out),
		Cost:         cost,
	}
	require.NoError(t, gdb.Create(log).Error)
	require.NoError(t, gdb.Model(log).Update("created_at", at).Error)
}

func TestUserStatsAggregation(t *testing.T) {
	gdb := openTestDB(t)
	alice := &models.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x", IsActive: true}
	bob := &models.User{Username: "bob", Email: "bob@example.com", PasswordHash: "x", IsActive: true}
	require.NoError(t, gdb.Create(alice).Error)
	require.NoError(t, gdb.Create(bob).Error)

	now := time.Now().UTC()
	seedUsage(t, gdb, alice.ID, "gpt-5.2", 3.00, 1000, 500, now)
	seedUsage(t, gdb, alice.ID, "gpt-5.2", 1.00, 400, 100, now.Add(-time.Hour))
	seedUsage(t, gdb, alice.ID, "claude-sonnet-4.5", 2.00, 600, 300, now.AddDate(0, 0, -45))
	seedUsage(t, gdb, bob.ID, "gpt-5.2", 9.00, 9000, 9000, now)

	svc := NewService(gdb, nil)
	got, err := svc.UserStats(context.Background(), alice.ID)
	require.NoError(t, err)

	assert.InDelta(t, 6.00, got.TotalSpent, 1e-9)
	assert.Equal(t, int64(3), got.TotalRequests)
	assert.Equal(t, int64(2000), got.TotalInputTokens)
	assert.Equal(t, int64(900), got.TotalOutputTokens)
	// the 45-day-old entry falls outside the recent window
	assert.InDelta(t, 4.00, got.RecentSpending30d, 1e-9)

	require.Len(t, got.UsageByModel, 2)
	assert.Equal(t, "gpt-5.2", got.UsageByModel[0].Model)
	assert.Equal(t, int64(2), got.UsageByModel[0].Count)
	assert.InDelta(t, 4.00, got.UsageByModel[0].TotalCost, 1e-9)
	assert.Equal(t, "claude-sonnet-4.5", got.UsageByModel[1].Model)
}

func TestUserStatsEmpty(t *testing.T) {
	gdb := openTestDB(t)
	user := &models.User{Username: "new", Email: "new@example.com", PasswordHash: "x", IsActive: true}
	require.NoError(t, gdb.Create(user).Error)

	svc := NewService(gdb, nil)
	got, err := svc.UserStats(context.Background(), user.ID)
	require.NoError(t, err)

	assert.Zero(t, got.TotalSpent)
	assert.Zero(t, got.TotalRequests)
	assert.Empty(t, got.UsageByModel)
}

func TestAdminOverview(t *testing.T) {
	gdb := openTestDB(t)
	alice := &models.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x", IsActive: true}
	bob := &models.User{Username: "bob", Email: "bob@example.com", PasswordHash: "x", IsActive: true}
	carol := &models.User{Username: "carol", Email: "carol@example.com", PasswordHash: "x", IsActive: false}
	require.NoError(t, gdb.Create(alice).Error)
	require.NoError(t, gdb.Create(bob).Error)
	require.NoError(t, gdb.Create(carol).Error)

	now := time.Now().UTC()
	seedUsage(t, gdb, alice.ID, "gpt-5.2", 5.00, 1000, 500, now)
	seedUsage(t, gdb, bob.ID, "gemini-3-flash", 1.00, 2000, 1000, now)
	seedUsage(t, gdb, bob.ID, "gpt-5.2", 2.00, 500, 250, now.Add(-48*time.Hour))

	svc := NewService(gdb, nil)
	got, err := svc.AdminOverview(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(3), got.TotalUsers)
	assert.Equal(t, int64(2), got.ActiveUsers)
	assert.InDelta(t, 8.00, got.TotalRevenue, 1e-9)
	assert.Equal(t, int64(3), got.TotalRequests)
	assert.Equal(t, int64(5250), got.TotalTokens)
	assert.Equal(t, int64(2), got.Requests24h)
	assert.InDelta(t, 6.00, got.Revenue24h, 1e-9)

	require.Len(t, got.TopUsers, 2)
	assert.Equal(t, "alice", got.TopUsers[0].Username)
	assert.InDelta(t, 5.00, got.TopUsers[0].TotalSpent, 1e-9)
	assert.Equal(t, "bob", got.TopUsers[1].Username)
	assert.InDelta(t, 3.00, got.TopUsers[1].TotalSpent, 1e-9)
	assert.Equal(t, int64(2), got.TopUsers[1].RequestCount)

	require.Len(t, got.UsageByModel, 2)
	assert.Equal(t, "gpt-5.2", got.UsageByModel[0].Model)
	assert.InDelta(t, 7.00, got.UsageByModel[0].TotalCost, 1e-9)
}
