package notification

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/resume-updater/internal/metrics"
	"github.com/spigell/resume-updater/internal/store"
)

const (
	recordsPartition = "notifications"

	DefaultCooldown = 24 * time.Hour

	subject   = "Resume Update Required"
	plainText = "You have a pending resume update to review."
)

// Outcome of a NotifyIfDue call.
type Outcome string

const (
	Sent     Outcome = metrics.NotificationSent
	Cooldown Outcome = metrics.NotificationCooldown
	Failed   Outcome = metrics.NotificationFailed
)

// Record is the per-employee entry of the notifications collection.
type Record struct {
	ID               string    `json:"id"`
	PartitionKey     string    `json:"partitionKey"`
	EmployeeID       string    `json:"employee_id"`
	LastNotification time.Time `json:"last_notification"`
}

type addressBook interface {
	Email(ctx context.Context, employeeID string) (string, error)
}

type Options struct {
	Cooldown    time.Duration
	ReviewerURL string
	Metrics     *metrics.Manager
	Now         func() time.Time
}

// Gateway sends review reminders and remembers when each employee was last notified,
// so several triggered trackers do not flood the same inbox.
type Gateway struct {
	records     store.Collection
	directory   addressBook
	sender      Sender
	cooldown    time.Duration
	reviewerURL string
	metrics     *metrics.Manager
	now         func() time.Time
	logger      *zap.Logger
}

func NewGateway(records store.Collection, directory addressBook, sender Sender, logger *zap.Logger, opts Options) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Cooldown < 0 {
		opts.Cooldown = 0
	}

	return &Gateway{
		records:     records,
		directory:   directory,
		sender:      sender,
		cooldown:    opts.Cooldown,
		reviewerURL: opts.ReviewerURL,
		metrics:     opts.Metrics,
		now:         opts.Now,
		logger:      logger,
	}
}

// LastSent reports when the employee was last notified. ok is false if never.
func (g *Gateway) LastSent(ctx context.Context, employeeID string) (time.Time, bool, error) {
	var r Record
	err := g.records.Get(ctx, recordsPartition, recordID(employeeID), &r)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("read notification record: %w", err)
	}
	return r.LastNotification, true, nil
}

func (g *Gateway) RecordSent(ctx context.Context, employeeID string, at time.Time) error {
	r := Record{
		ID:               recordID(employeeID),
		PartitionKey:     recordsPartition,
		EmployeeID:       employeeID,
		LastNotification: at.UTC(),
	}
	item := store.Item{ID: r.ID, PartitionKey: recordsPartition, Body: r}

	err := g.records.Create(ctx, item)
	if errors.Is(err, store.ErrDuplicate) {
		err = g.records.Replace(ctx, item)
	}
	if err != nil {
		return fmt.Errorf("write notification record: %w", err)
	}
	return nil
}

// Due reports whether the employee is outside the cooldown window.
func (g *Gateway) Due(ctx context.Context, employeeID string) (bool, error) {
	last, ok, err := g.LastSent(ctx, employeeID)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return g.now().Sub(last) >= g.cooldown, nil
}

// NotifyIfDue sends a reminder unless the employee is inside the cooldown window.
// Failures are logged and reported as Failed; they never abort the caller.
func (g *Gateway) NotifyIfDue(ctx context.Context, employeeID string) Outcome {
	log := g.logger.With(zap.String("employee_id", employeeID))

	due, err := g.Due(ctx, employeeID)
	if err != nil {
		log.Error("failed to check notification cooldown", zap.Error(err))
		return g.observe(Failed)
	}
	if !due {
		log.Debug("notification skipped, employee is inside the cooldown window", zap.Duration("cooldown", g.cooldown))
		return g.observe(Cooldown)
	}

	to, err := g.directory.Email(ctx, employeeID)
	if err != nil {
		log.Error("could not send notification, no e-mail found", zap.Error(err))
		return g.observe(Failed)
	}

	if err := g.sender.Send(ctx, g.message(to)); err != nil {
		log.Error("failed to send notification", zap.Error(err))
		return g.observe(Failed)
	}

	if err := g.RecordSent(ctx, employeeID, g.now()); err != nil {
		log.Warn("notification sent but the send time was not recorded", zap.Error(err))
	}

	log.Info("notification sent", zap.String("to", to))
	return g.observe(Sent)
}

func (g *Gateway) message(to string) Message {
	link := ""
	if g.reviewerURL != "" {
		link = fmt.Sprintf(`<p><a href="%s">Review the update</a></p>`, html.EscapeString(g.reviewerURL))
	}

	return Message{
		To:      to,
		Subject: subject,
		Text:    plainText,
		HTML: `<html>
	<body>
		<h1>Resume Update Review Required</h1>
		<p>You have a pending resume update that needs your review.</p>
		<p>Please log in to review and approve the updates.</p>
		` + link + `
	</body>
</html>`,
	}
}

func (g *Gateway) observe(o Outcome) Outcome {
	g.metrics.Notification(string(o))
	return o
}

func recordID(employeeID string) string {
	return "notification-" + employeeID
}
