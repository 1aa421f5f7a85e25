package usage

import (
	"time"

	"kenchat/internal/logger"

	"github.com/sirupsen/logrus"
)

// LimitStatus is the outcome of evaluating one cost ceiling
type LimitStatus struct {
	Tier          string  `json:"tier"`
	LimitUSD      float64 `json:"limit_usd"`
	CurrentCost   float64 `json:"current_cost"`
	IsWithinLimit bool    `json:"is_within_limit"`
	IsWarning     bool    `json:"is_warning"`
}

// EvaluateLimit compares an accumulated cost against a ceiling and its
// warning threshold percentage. Pure function, no I/O.
func EvaluateLimit(currentCost, limitUSD, warningPercent float64) LimitStatus {
	status := LimitStatus{
		LimitUSD:      limitUSD,
		CurrentCost:   currentCost,
		IsWithinLimit: currentCost <= limitUSD,
	}
	if status.IsWithinLimit && warningPercent > 0 {
		status.IsWarning = currentCost >= limitUSD*warningPercent/100
	}
	return status
}

// CostLimitReport aggregates the evaluation of every configured tier.
// IsWithinLimit is false when any tier is breached; IsWarning is true when
// any non-breached tier is in its warning band.
type CostLimitReport struct {
	Statuses      []LimitStatus `json:"statuses"`
	IsWithinLimit bool          `json:"is_within_limit"`
	IsWarning     bool          `json:"is_warning"`
}

// CheckCostLimits evaluates all configured cost tiers (daily, weekly,
// monthly) for a user and emits alerts on warnings and breaches. Limits are
// advisory: the report never blocks the triggering request, and evaluation
// failures degrade to "within limit" so a ledger outage cannot take down
// the chat flow.
func (s *Service) CheckCostLimits(userID string) *CostLimitReport {
	report := &CostLimitReport{IsWithinLimit: true}
	now := s.now()

	tiers := []struct {
		name  string
		limit float64
		start time.Time
	}{
		{"daily", s.cfg.DailyLimitUSD, dayStart(now)},
		{"weekly", s.cfg.WeeklyLimitUSD, weekStart(now)},
		{"monthly", s.cfg.MonthlyLimitUSD, monthStart(now)},
	}

	for _, tier := range tiers {
		if tier.limit <= 0 {
			continue
		}

		cost, err := s.db.TotalCostForUser(userID, tier.start, now)
		if err != nil {
			logger.Log.WithError(err).WithFields(logrus.Fields{
				"user_id": userID,
				"tier":    tier.name,
			}).Error("Cost limit check failed, assuming within limit")
			continue
		}

		status := EvaluateLimit(cost, tier.limit, s.cfg.WarningPercent)
		status.Tier = tier.name
		report.Statuses = append(report.Statuses, status)

		if !status.IsWithinLimit {
			report.IsWithinLimit = false
			logger.Log.WithFields(logrus.Fields{
				"user_id": userID,
				"tier":    tier.name,
				"cost":    cost,
				"limit":   tier.limit,
			}).Warn("Cost limit exceeded")
			s.sendAlert(webhookAlert{
				UserID: userID, Tier: tier.name, Level: "breach",
				CurrentCost: cost, LimitUSD: tier.limit,
			})
		} else if status.IsWarning {
			report.IsWarning = true
			logger.Log.WithFields(logrus.Fields{
				"user_id": userID,
				"tier":    tier.name,
				"cost":    cost,
				"limit":   tier.limit,
			}).Warn("Approaching cost limit")
			s.sendAlert(webhookAlert{
				UserID: userID, Tier: tier.name, Level: "warning",
				CurrentCost: cost, LimitUSD: tier.limit,
			})
		}
	}

	return report
}

// ConfiguredLimits describes the active cost ceilings for display
type ConfiguredLimits struct {
	DailyLimitUSD   float64 `json:"daily_limit_usd,omitempty"`
	WeeklyLimitUSD  float64 `json:"weekly_limit_usd,omitempty"`
	MonthlyLimitUSD float64 `json:"monthly_limit_usd,omitempty"`
	WarningPercent  float64 `json:"warning_percent"`
}

// Limits returns the configured ceilings
func (s *Service) Limits() ConfiguredLimits {
	return ConfiguredLimits{
		DailyLimitUSD:   s.cfg.DailyLimitUSD,
		WeeklyLimitUSD:  s.cfg.WeeklyLimitUSD,
		MonthlyLimitUSD: s.cfg.MonthlyLimitUSD,
		WarningPercent:  s.cfg.WarningPercent,
	}
}
