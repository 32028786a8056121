package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// PendingSource lists employees that have drafts waiting for review.
type PendingSource interface {
	EmployeesWithPendingDrafts(ctx context.Context) ([]string, error)
}

type notifier interface {
	Due(ctx context.Context, employeeID string) (bool, error)
	NotifyIfDue(ctx context.Context, employeeID string) Outcome
}

type Summary struct {
	TotalEmployeesProcessed int `json:"total_employees_processed"`
	NotificationsSent       int `json:"notifications_sent"`
	SkippedCooldown         int `json:"skipped_cooldown"`
	Errors                  int `json:"errors"`
}

// Reminder re-notifies every employee with pending drafts. It is meant to run on a timer.
type Reminder struct {
	pending PendingSource
	gateway notifier
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewReminder builds a reminder sending at most perMinute messages a minute.
// perMinute <= 0 disables throttling.
func NewReminder(pending PendingSource, gateway notifier, perMinute int, logger *zap.Logger) *Reminder {
	if logger == nil {
		logger = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}

	return &Reminder{
		pending: pending,
		gateway: gateway,
		limiter: limiter,
		logger:  logger,
	}
}

func (r *Reminder) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	employees, err := r.pending.EmployeesWithPendingDrafts(ctx)
	if err != nil {
		return summary, fmt.Errorf("list pending drafts: %w", err)
	}

	for _, employeeID := range employees {
		summary.TotalEmployeesProcessed++

		due, err := r.gateway.Due(ctx, employeeID)
		if err != nil {
			r.logger.Error("failed to check notification cooldown", zap.String("employee_id", employeeID), zap.Error(err))
			summary.Errors++
			continue
		}
		if !due {
			summary.SkippedCooldown++
			continue
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return summary, err
		}

		switch r.gateway.NotifyIfDue(ctx, employeeID) {
		case Sent:
			summary.NotificationsSent++
		case Cooldown:
			summary.SkippedCooldown++
		default:
			summary.Errors++
		}
	}

	r.logger.Info("notification run completed",
		zap.Int("total_employees_processed", summary.TotalEmployeesProcessed),
		zap.Int("notifications_sent", summary.NotificationsSent),
		zap.Int("skipped_cooldown", summary.SkippedCooldown),
		zap.Int("errors", summary.Errors),
	)

	return summary, nil
}
