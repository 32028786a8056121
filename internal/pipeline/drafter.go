package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/resume-updater/internal/ai"
	"github.com/spigell/resume-updater/internal/logger"
	"github.com/spigell/resume-updater/internal/metrics"
	"github.com/spigell/resume-updater/internal/tracker"
)

// Drafter generates the work-experience draft of a triggered tracker and tells the employee.
type Drafter struct {
	search   searcher
	writer   ai.Writer
	repo     *tracker.Repository
	notifier notifier
	metrics  *metrics.Manager
	now      func() time.Time
	logger   *zap.Logger
}

func NewDrafter(s searcher, writer ai.Writer, repo *tracker.Repository, n notifier, m *metrics.Manager, logger *zap.Logger) *Drafter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Drafter{
		search:   s,
		writer:   writer,
		repo:     repo,
		notifier: n,
		metrics:  m,
		now:      time.Now,
		logger:   logger,
	}
}

// Generate runs resume fetch, project fetch, generation, persist and notification in that
// order. Nothing is retried. On failure the tracker stays in_progress without a description,
// which RetryDraft can pick up later.
func (d *Drafter) Generate(ctx context.Context, t *tracker.Tracker) (*tracker.Tracker, error) {
	log := logger.WithTracker(d.logger, t.ID, t.EmployeeID, t.ProjectNumber)

	updated, err := d.generate(ctx, t)
	d.metrics.DraftGenerated(err == nil)
	if err != nil {
		log.Error("draft generation failed", zap.Error(err))
		d.recordFailure(ctx, t, err, log)
		return nil, err
	}

	log.Info("draft generated", zap.String("project_name", updated.ProjectName), zap.Int64("version", updated.Version))

	outcome := d.notifier.NotifyIfDue(ctx, updated.EmployeeID)
	log.Debug("notification", zap.String("outcome", string(outcome)))

	return updated, nil
}

func (d *Drafter) generate(ctx context.Context, t *tracker.Tracker) (*tracker.Tracker, error) {
	resume, err := d.search.Resume(ctx, t.EmployeeID)
	if err != nil {
		return nil, fmt.Errorf("fetch resume: %w", err)
	}

	project, err := projectText(ctx, d.search, t.ProjectNumber)
	if err != nil {
		return nil, err
	}

	exp, err := d.writer.DraftExperience(ctx, ai.DraftRequest{
		Resume:  resume.Text(),
		Project: project,
		Today:   d.now(),
	})
	d.metrics.LLMCall("draft", err == nil)
	if err != nil {
		return nil, fmt.Errorf("draft experience: %w", err)
	}

	description := composeDescription(exp)
	updated, err := d.repo.Update(ctx, t.EmployeeID, t.ProjectNumber, func(cur *tracker.Tracker) error {
		if cur.AddedToResume != tracker.StatusInProgress {
			return fmt.Errorf("tracker status changed to %q while drafting: %w", cur.AddedToResume, tracker.ErrSkip)
		}
		cur.SetDraft(exp.Title, description)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("persist draft: %w", err)
	}

	return updated, nil
}

// recordFailure leaves a hint on the tracker. It is best effort and only logs its own errors.
func (d *Drafter) recordFailure(ctx context.Context, t *tracker.Tracker, cause error, log *zap.Logger) {
	if errors.Is(cause, tracker.ErrSkip) || errors.Is(cause, context.Canceled) {
		return
	}

	_, err := d.repo.Update(ctx, t.EmployeeID, t.ProjectNumber, func(cur *tracker.Tracker) error {
		if !cur.NeedsDraft() {
			return tracker.ErrSkip
		}
		cur.DraftError = cause.Error()
		return nil
	})
	if err != nil && !errors.Is(err, tracker.ErrSkip) {
		log.Warn("could not record draft failure", zap.Error(err))
	}
}

func composeDescription(exp *ai.Experience) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{exp.Title, exp.Summary} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}
