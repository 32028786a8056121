package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/resume-updater/internal/ai"
	"github.com/spigell/resume-updater/internal/logger"
	"github.com/spigell/resume-updater/internal/metrics"
	"github.com/spigell/resume-updater/internal/tracker"
)

// Check is a single gate of the trigger decision.
type Check interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Evaluate(ctx context.Context, t *tracker.Tracker) (Verdict, error)
}

// Verdict is the outcome of one check.
type Verdict struct {
	Pass   bool
	Reason string
}

// CheckStatus describes a check at runtime.
type CheckStatus struct {
	Name    string
	Enabled bool
	Reason  string
}

// Engine decides whether a tracker should move on to draft generation. Checks run in order
// and the first failing one stops the evaluation.
type Engine struct {
	checks  []Check
	logger  *zap.Logger
	metrics *metrics.Manager
}

func NewEngine(logger *zap.Logger, m *metrics.Manager, checks ...Check) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{checks: checks, logger: logger, metrics: m}
}

// DefaultChecks is the threshold, status and already-on-resume sequence.
func DefaultChecks(threshold float64, s searcher, writer ai.Writer, repo *tracker.Repository, m *metrics.Manager) []Check {
	return []Check{
		NewThresholdCheck(threshold),
		NewStatusCheck(),
		NewResumeCheck(s, writer, repo, m),
	}
}

// ShouldTrigger reports whether every enabled check passes. A check may update the tracker
// in place (see the already-on-resume check).
func (e *Engine) ShouldTrigger(ctx context.Context, t *tracker.Tracker) (bool, error) {
	log := logger.WithTracker(e.logger, t.ID, t.EmployeeID, t.ProjectNumber)

	for _, check := range e.checks {
		if !check.IsEnabled() {
			log.Debug("trigger check disabled", zap.String("name", check.Name()))
			continue
		}

		verdict, err := check.Evaluate(ctx, t)
		if err != nil {
			return false, fmt.Errorf("%s: %w", check.Name(), err)
		}

		log.Debug("trigger check",
			zap.String("name", check.Name()),
			zap.Bool("pass", verdict.Pass),
			zap.String("reason", verdict.Reason),
		)

		if !verdict.Pass {
			return false, nil
		}
	}

	return true, nil
}

// Describe returns the status of every check.
func (e *Engine) Describe() []CheckStatus {
	statuses := make([]CheckStatus, 0, len(e.checks))
	for _, check := range e.checks {
		status := CheckStatus{Name: check.Name(), Enabled: check.IsEnabled()}
		if r, ok := check.(interface{ DisabledReason() string }); ok {
			status.Reason = r.DisabledReason()
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// DisableByName marks the check with the given name as disabled while keeping it in the list.
func DisableByName(checks []Check, name, reason string) {
	for _, check := range checks {
		if check.Name() == name {
			check.Disable(reason)
		}
	}
}

type toggle struct {
	disabled bool
	reason   string
}

func (t *toggle) Disable(reason string) {
	t.disabled = true
	t.reason = reason
}

func (t *toggle) IsEnabled() bool { return !t.disabled }

func (t *toggle) DisabledReason() string { return t.reason }

type thresholdCheck struct {
	toggle
	threshold float64
}

// NewThresholdCheck passes once the reported hours reach threshold.
func NewThresholdCheck(threshold float64) Check {
	if threshold <= 0 {
		threshold = tracker.DefaultHoursThreshold
	}
	return &thresholdCheck{threshold: threshold}
}

func (c *thresholdCheck) Name() string { return "hours_threshold" }

func (c *thresholdCheck) Evaluate(_ context.Context, t *tracker.Tracker) (Verdict, error) {
	if t.TotalHours >= c.threshold {
		return Verdict{Pass: true}, nil
	}
	return Verdict{Reason: fmt.Sprintf("%.2f hours is below the %.2f threshold", t.TotalHours, c.threshold)}, nil
}

type statusCheck struct {
	toggle
}

// NewStatusCheck passes only for trackers that were never triggered.
func NewStatusCheck() Check {
	return &statusCheck{}
}

func (c *statusCheck) Name() string { return "status" }

func (c *statusCheck) Evaluate(_ context.Context, t *tracker.Tracker) (Verdict, error) {
	if t.AddedToResume == tracker.StatusNo {
		return Verdict{Pass: true}, nil
	}
	return Verdict{Reason: fmt.Sprintf("status is %q", t.AddedToResume)}, nil
}

type resumeCheck struct {
	toggle
	search  searcher
	writer  ai.Writer
	repo    *tracker.Repository
	metrics *metrics.Manager
}

// NewResumeCheck asks the model whether the project is already described on the resume.
// A "yes" marks the tracker as added to the resume and fails the check.
func NewResumeCheck(s searcher, writer ai.Writer, repo *tracker.Repository, m *metrics.Manager) Check {
	return &resumeCheck{search: s, writer: writer, repo: repo, metrics: m}
}

func (c *resumeCheck) Name() string { return "already_on_resume" }

func (c *resumeCheck) Evaluate(ctx context.Context, t *tracker.Tracker) (Verdict, error) {
	resume, err := c.search.Resume(ctx, t.EmployeeID)
	if err != nil {
		return Verdict{}, err
	}
	resumeText := resume.Text()
	if strings.TrimSpace(resumeText) == "" {
		return Verdict{Pass: true, Reason: "no resume on record"}, nil
	}

	project, err := projectText(ctx, c.search, t.ProjectNumber)
	if err != nil {
		return Verdict{}, err
	}

	present, err := c.writer.AlreadyOnResume(ctx, resumeText, project)
	c.metrics.LLMCall("classify", err == nil)
	if err != nil {
		return Verdict{}, err
	}
	if !present {
		return Verdict{Pass: true}, nil
	}

	if err := c.reconcileAlreadyOnResume(ctx, t); err != nil {
		return Verdict{}, err
	}
	return Verdict{Reason: "project is already on the resume"}, nil
}

// reconcileAlreadyOnResume records that the project needs no update. The tracker is refreshed
// in place with the stored state.
func (c *resumeCheck) reconcileAlreadyOnResume(ctx context.Context, t *tracker.Tracker) error {
	updated, err := c.repo.Update(ctx, t.EmployeeID, t.ProjectNumber, func(cur *tracker.Tracker) error {
		if cur.AddedToResume != tracker.StatusNo {
			return tracker.ErrSkip
		}
		cur.AddedToResume = tracker.StatusYes
		return nil
	})
	if err != nil && !errors.Is(err, tracker.ErrSkip) {
		return fmt.Errorf("mark tracker as already on resume: %w", err)
	}
	if updated != nil {
		*t = *updated
	}
	return nil
}
