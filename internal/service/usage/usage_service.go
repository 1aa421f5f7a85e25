// Package usage fronts the append-only usage ledger: recording events,
// aggregate reporting, and cost ceiling checks with webhook alerting.
package usage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"kenchat/internal/config"
	"kenchat/internal/logger"
	"kenchat/internal/metrics"
	"kenchat/internal/repository/db"

	"github.com/sirupsen/logrus"
)

// Service handles usage recording and cost accounting
type Service struct {
	db         db.Database
	cfg        config.CostConfig
	httpClient *http.Client
	now        func() time.Time
}

// NewService creates a new usage Service
func NewService(database db.Database, cfg config.CostConfig) *Service {
	return &Service{
		db:         database,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		now:        time.Now,
	}
}

// Record appends one ledger entry. A recording failure is logged and
// swallowed: losing a usage event under-counts cost but never blocks the
// chat flow.
func (s *Service) Record(entry db.UsageLog) {
	if _, err := s.db.RecordUsage(entry); err != nil {
		logger.Log.WithError(err).WithFields(logrus.Fields{
			"user_id": entry.UserID,
			"action":  entry.Action,
			"cost":    entry.Cost,
		}).Error("Failed to record usage entry")
		return
	}
	metrics.Global().TokensTotal.Add(float64(entry.TotalTokens))
	metrics.Global().CostUSDTotal.Add(entry.Cost)
}

// Stats summarizes a user's spend over the standard windows
type Stats struct {
	TodayCost float64 `json:"today_cost"`
	WeekCost  float64 `json:"week_cost"`
	MonthCost float64 `json:"month_cost"`
}

// GetStats computes the user's spend for the current day, week, and month
func (s *Service) GetStats(userID string) (*Stats, error) {
	now := s.now()

	today, err := s.db.TotalCostForUser(userID, dayStart(now), now)
	if err != nil {
		return nil, fmt.Errorf("failed to compute daily cost: %w", err)
	}
	week, err := s.db.TotalCostForUser(userID, weekStart(now), now)
	if err != nil {
		return nil, fmt.Errorf("failed to compute weekly cost: %w", err)
	}
	month, err := s.db.TotalCostForUser(userID, monthStart(now), now)
	if err != nil {
		return nil, fmt.Errorf("failed to compute monthly cost: %w", err)
	}

	return &Stats{TodayCost: today, WeekCost: week, MonthCost: month}, nil
}

// Report is the aggregate usage report over an arbitrary window
type Report struct {
	Start         time.Time             `json:"start"`
	End           time.Time             `json:"end"`
	TotalCost     float64               `json:"total_cost"`
	Daily         []db.DailyCost        `json:"daily"`
	Conversations []db.ConversationCost `json:"conversations"`
}

// GetReport builds the daily and per-conversation breakdowns for a window
func (s *Service) GetReport(userID string, start, end time.Time) (*Report, error) {
	total, err := s.db.TotalCostForUser(userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to compute total cost: %w", err)
	}
	daily, err := s.db.DailyBreakdown(userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to compute daily breakdown: %w", err)
	}
	conversations, err := s.db.ConversationBreakdown(userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to compute conversation breakdown: %w", err)
	}

	return &Report{
		Start:         start,
		End:           end,
		TotalCost:     total,
		Daily:         daily,
		Conversations: conversations,
	}, nil
}

// ConversationCost returns the ledger total for one conversation
func (s *Service) ConversationCost(conversationID string) (float64, error) {
	total, err := s.db.TotalCostForConversation(conversationID)
	if err != nil {
		return 0, fmt.Errorf("failed to compute conversation cost: %w", err)
	}
	return total, nil
}

// ListLogs returns raw ledger entries matching the filter
func (s *Service) ListLogs(userID string, filter db.UsageFilter) ([]db.UsageLog, error) {
	entries, err := s.db.ListUsage(userID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage logs: %w", err)
	}
	return entries, nil
}

// CleanupOldLogs deletes ledger entries past the retention window
func (s *Service) CleanupOldLogs() (int64, error) {
	if s.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().AddDate(0, 0, -s.cfg.RetentionDays)
	return s.db.DeleteUsageOlderThan(cutoff)
}

// Window starts. Weeks start on Monday.

func dayStart(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

func weekStart(now time.Time) time.Time {
	day := dayStart(now)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func monthStart(now time.Time) time.Time {
	y, m, _ := now.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
}

type webhookAlert struct {
	UserID      string  `json:"user_id"`
	Tier        string  `json:"tier"`
	Level       string  `json:"level"`
	CurrentCost float64 `json:"current_cost"`
	LimitUSD    float64 `json:"limit_usd"`
}

// sendAlert posts a cost alert to the configured webhook. Failures are
// logged and ignored; alerting never affects the chat flow.
func (s *Service) sendAlert(alert webhookAlert) {
	if s.cfg.AlertWebhookURL == "" {
		return
	}

	body, err := json.Marshal(alert)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to marshal cost alert")
		return
	}

	resp, err := s.httpClient.Post(s.cfg.AlertWebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		logger.Log.WithError(err).Warn("Failed to deliver cost alert webhook")
		return
	}
	resp.Body.Close()

	logger.Log.WithFields(logrus.Fields{
		"user_id": alert.UserID,
		"tier":    alert.Tier,
		"level":   alert.Level,
	}).Info("Delivered cost alert webhook")
}
