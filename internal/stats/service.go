// Package stats aggregates usage and spending figures for the user
// dashboard and the admin overview.
package stats

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"go.uber.org/zap"

	"multichat/internal/db"
	"multichat/internal/logging"
	"multichat/pkg/models"
)

const adminOverviewCacheKey = "stats:admin:overview"
const adminOverviewTTL = time.Minute

// ModelUsage is aggregated usage for one model.
type ModelUsage struct {
	Model        string  `json:"model"`
	Count        int64   `json:"count"`
	TotalCost    float64 `json:"total_cost"`
	InputTokens  int64   `json:"total_input"`
	OutputTokens int64   `json:"total_output"`
}

// UserStats summarizes one user's consumption.
type UserStats struct {
	TotalSpent        float64      `json:"total_spent"`
	TotalRequests     int64        `json:"total_requests"`
	TotalInputTokens  int64        `json:"total_input_tokens"`
	TotalOutputTokens int64        `json:"total_output_tokens"`
	RecentSpending30d float64      `json:"recent_spending_30d"`
	UsageByModel      []ModelUsage `json:"usage_by_model"`
}

// TopUser is one row of the admin spending leaderboard.
type TopUser struct {
	Username     string  `json:"username"`
	Email        string  `json:"email"`
	TotalSpent   float64 `json:"total_spent"`
	RequestCount int64   `json:"request_count"`
}

// AdminOverview summarizes the whole platform.
type AdminOverview struct {
	TotalUsers    int64        `json:"total_users"`
	ActiveUsers   int64        `json:"active_users"`
	TotalRevenue  float64      `json:"total_revenue"`
	TotalRequests int64        `json:"total_requests"`
	TotalTokens   int64        `json:"total_tokens"`
	Requests24h   int64        `json:"requests_24h"`
	Revenue24h    float64      `json:"revenue_24h"`
	TopUsers      []TopUser    `json:"top_users"`
	UsageByModel  []ModelUsage `json:"usage_by_model"`
}

// Service computes stats, caching the expensive admin rollup in Redis.
type Service struct {
	db    *gorm.DB
	cache *db.RedisClient
}

// NewService creates a stats service. cache may be nil; the overview is
// then recomputed on every call.
func NewService(gdb *gorm.DB, cache *db.RedisClient) *Service {
	return &Service{db: gdb, cache: cache}
}

// UserStats aggregates one user's usage.
func (s *Service) UserStats(ctx context.Context, userID uint) (*UserStats, error) {
	out := &UserStats{}
	base := s.db.WithContext(ctx).Model(&models.UsageLog{}).Where("user_id = ?", userID)

	type totals struct {
		Spent    float64
		Requests int64
		Input    int64
		Output   int64
	}
	var t totals
	err := base.Session(&gorm.Session{}).
		Select("COALESCE(SUM(cost),0) AS spent, COUNT(*) AS requests, COALESCE(SUM(input_tokens),0) AS input, COALESCE(SUM(output_tokens),0) AS output").
		Scan(&t).Error
	if err != nil {
		return nil, err
	}
	out.TotalSpent = t.Spent
	out.TotalRequests = t.Requests
	out.TotalInputTokens = t.Input
	out.TotalOutputTokens = t.Output

	err = base.Session(&gorm.Session{}).
		Where("created_at >= ?", time.Now().UTC().AddDate(0, 0, -30)).
		Select("COALESCE(SUM(cost),0)").
		Scan(&out.RecentSpending30d).Error
	if err != nil {
		return nil, err
	}

	err = base.Session(&gorm.Session{}).
		Select("model, COUNT(*) AS count, COALESCE(SUM(cost),0) AS total_cost, COALESCE(SUM(input_tokens),0) AS input_tokens, COALESCE(SUM(output_tokens),0) AS output_tokens").
		Group("model").
		Order("total_cost DESC").
		Scan(&out.UsageByModel).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AdminOverview aggregates platform-wide figures, served from Redis
// when a fresh copy is cached.
func (s *Service) AdminOverview(ctx context.Context) (*AdminOverview, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, adminOverviewCacheKey); err == nil {
			var out AdminOverview
			if err := json.Unmarshal([]byte(cached), &out); err == nil {
				return &out, nil
			}
		}
	}

	out, err := s.computeAdminOverview(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(out); err == nil {
			if err := s.cache.Set(ctx, adminOverviewCacheKey, data, adminOverviewTTL); err != nil {
				logging.L().Warn("failed to cache admin overview", zap.Error(err))
			}
		}
	}
	return out, nil
}

func (s *Service) computeAdminOverview(ctx context.Context) (*AdminOverview, error) {
	out := &AdminOverview{}
	gdb := s.db.WithContext(ctx)

	if err := gdb.Model(&models.User{}).Count(&out.TotalUsers).Error; err != nil {
		return nil, err
	}
	if err := gdb.Model(&models.User{}).Where("is_active = ?", true).Count(&out.ActiveUsers).Error; err != nil {
		return nil, err
	}

	type totals struct {
		Revenue  float64
		Requests int64
		Tokens   int64
	}
	var t totals
	err := gdb.Model(&models.UsageLog{}).
		Select("COALESCE(SUM(cost),0) AS revenue, COUNT(*) AS requests, COALESCE(SUM(input_tokens)+SUM(output_tokens),0) AS tokens").
		Scan(&t).Error
	if err != nil {
		return nil, err
	}
	out.TotalRevenue = t.Revenue
	out.TotalRequests = t.Requests
	out.TotalTokens = t.Tokens

	dayAgo := time.Now().UTC().Add(-24 * time.Hour)
	var recent totals
	err = gdb.Model(&models.UsageLog{}).
		Where("created_at >= ?", dayAgo).
		Select("COALESCE(SUM(cost),0) AS revenue, COUNT(*) AS requests").
		Scan(&recent).Error
	if err != nil {
		return nil, err
	}
	out.Requests24h = recent.Requests
	out.Revenue24h = recent.Revenue

	err = gdb.Model(&models.UsageLog{}).
		Select("users.username, users.email, COALESCE(SUM(usage_logs.cost),0) AS total_spent, COUNT(usage_logs.id) AS request_count").
		Joins("JOIN users ON users.id = usage_logs.user_id").
		Group("users.id, users.username, users.email").
		Order("total_spent DESC").
		Limit(10).
		Scan(&out.TopUsers).Error
	if err != nil {
		return nil, err
	}

	err = gdb.Model(&models.UsageLog{}).
		Select("model, COUNT(*) AS count, COALESCE(SUM(cost),0) AS total_cost, COALESCE(SUM(input_tokens),0) AS input_tokens, COALESCE(SUM(output_tokens),0) AS output_tokens").
		Group("model").
		Order("total_cost DESC").
		Scan(&out.UsageByModel).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
