package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/resume-updater/internal/apperror"
	"github.com/spigell/resume-updater/internal/lock"
	"github.com/spigell/resume-updater/internal/logger"
	"github.com/spigell/resume-updater/internal/metrics"
	"github.com/spigell/resume-updater/internal/store"
	"github.com/spigell/resume-updater/internal/tracker"
)

const eventType = "project_key_member"

// Result statuses of ProcessEvent.
const (
	StatusTriggered = "triggered"
	StatusStored    = "stored"
)

type Result struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id"`
	TrackerID string `json:"tracker_id"`
	Message   string `json:"message"`
}

// KeyMemberEvent is the append-only audit record of one ingestion call.
type KeyMemberEvent struct {
	ID                  string    `json:"id"`
	PartitionKey        string    `json:"partitionKey"`
	Type                string    `json:"type"`
	EmployeeID          string    `json:"employee_id"`
	EmployeeDisplayName string    `json:"employee_display_name"`
	ProjectNumber       string    `json:"project_number"`
	SubjectArea         string    `json:"subject_area"`
	ProjectRoleName     string    `json:"project_role_name"`
	JobHours            float64   `json:"job_hours"`
	JobFamilyCode       string    `json:"employee_job_family_function_code"`
	Timestamp           time.Time `json:"timestamp"`
}

// PendingUpdate is a draft waiting for the employee's decision.
type PendingUpdate struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	ProjectNumber string  `json:"project_number"`
	ProjectName   string  `json:"project_name"`
	Content       string  `json:"content"`
	TotalHours    float64 `json:"total_hours"`
	Role          string  `json:"role"`
}

// Processor is the ingestion entry point.
type Processor struct {
	events  store.Collection
	repo    *tracker.Repository
	engine  *Engine
	drafter *Drafter
	locker  lock.Locker
	metrics *metrics.Manager
	now     func() time.Time
	newID   func() string
	logger  *zap.Logger
}

func NewProcessor(events store.Collection, repo *tracker.Repository, engine *Engine, drafter *Drafter, locker lock.Locker, m *metrics.Manager, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = lock.Nop{}
	}
	return &Processor{
		events:  events,
		repo:    repo,
		engine:  engine,
		drafter: drafter,
		locker:  locker,
		metrics: m,
		now:     time.Now,
		newID:   uuid.NewString,
		logger:  logger,
	}
}

// ProcessEvent stores the raw event, upserts the tracker, evaluates the trigger and, when it
// fires, flips the tracker to in_progress and generates the draft. Any failure aborts the
// call; a tracker flipped before a failed draft stays in_progress without a description.
func (p *Processor) ProcessEvent(ctx context.Context, entry tracker.KeyMemberEntry) (*Result, error) {
	a, err := entry.Normalize()
	if err != nil {
		return nil, err
	}

	trackerID := tracker.ID(a.ProjectNumber, a.EmployeeID)
	log := logger.WithTracker(p.logger, trackerID, a.EmployeeID, a.ProjectNumber)

	release, err := p.locker.Acquire(ctx, trackerID)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, apperror.Wrap(err, apperror.CodeConflict, "tracker is busy", http.StatusConflict)
		}
		return nil, apperror.External("tracker lock unavailable", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("failed to release tracker lock", zap.Error(err))
		}
	}()

	eventID, err := p.storeEvent(ctx, entry, a)
	if err != nil {
		return nil, err
	}

	t, err := p.repo.GetOrCreate(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("upsert tracker: %w", err)
	}

	fire, err := p.engine.ShouldTrigger(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("evaluate trigger: %w", err)
	}

	if !fire {
		p.metrics.EventIngested(StatusStored)
		return &Result{
			Status:    StatusStored,
			EventID:   eventID,
			TrackerID: trackerID,
			Message:   fmt.Sprintf("Event stored, total hours: %v", t.TotalHours),
		}, nil
	}

	t, err = p.repo.Update(ctx, a.EmployeeID, a.ProjectNumber, func(cur *tracker.Tracker) error {
		if cur.AddedToResume != tracker.StatusNo {
			return tracker.ErrSkip
		}
		cur.AddedToResume = tracker.StatusInProgress
		return nil
	})
	if errors.Is(err, tracker.ErrSkip) {
		log.Info("tracker left status no concurrently, not triggering")
		p.metrics.EventIngested(StatusStored)
		return &Result{
			Status:    StatusStored,
			EventID:   eventID,
			TrackerID: trackerID,
			Message:   fmt.Sprintf("Event stored, total hours: %v", t.TotalHours),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mark tracker in progress: %w", err)
	}

	p.metrics.TriggerFired()
	log.Info("resume update triggered", zap.Float64("total_hours", t.TotalHours))

	final, err := p.drafter.Generate(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("generate draft: %w", err)
	}

	p.metrics.EventIngested(StatusTriggered)
	return &Result{
		Status:    StatusTriggered,
		EventID:   eventID,
		TrackerID: trackerID,
		Message:   fmt.Sprintf("Resume update triggered. Total hours: %v", final.TotalHours),
	}, nil
}

func (p *Processor) storeEvent(ctx context.Context, entry tracker.KeyMemberEntry, a tracker.Assignment) (string, error) {
	event := KeyMemberEvent{
		ID:                  p.newID(),
		PartitionKey:        a.ProjectNumber,
		Type:                eventType,
		EmployeeID:          a.EmployeeID,
		EmployeeDisplayName: entry.EmployeeDisplayName,
		ProjectNumber:       a.ProjectNumber,
		SubjectArea:         entry.SubjectArea,
		ProjectRoleName:     entry.ProjectRoleName,
		JobHours:            entry.JobHours,
		JobFamilyCode:       entry.JobFamilyCode,
		Timestamp:           p.now().UTC(),
	}

	if err := p.events.Create(ctx, store.Item{ID: event.ID, PartitionKey: event.PartitionKey, Body: event}); err != nil {
		return "", fmt.Errorf("store event: %w", err)
	}
	return event.ID, nil
}

// RetryDraft re-runs draft generation for a tracker stuck in_progress without a description.
func (p *Processor) RetryDraft(ctx context.Context, employeeID, projectNumber string) (*tracker.Tracker, error) {
	t, err := p.repo.Get(ctx, employeeID, projectNumber)
	if err != nil {
		return nil, err
	}
	if !t.NeedsDraft() {
		return nil, apperror.Wrap(
			fmt.Errorf("tracker %s is %q with draft ready %v", t.ID, t.AddedToResume, t.DraftReady),
			apperror.CodeInvalidState, "tracker has no failed draft to retry", http.StatusConflict,
		)
	}

	return p.drafter.Generate(ctx, t)
}

// PendingUpdates lists the drafts an employee can review.
func (p *Processor) PendingUpdates(ctx context.Context, employeeID string) ([]PendingUpdate, error) {
	trackers, err := p.repo.PendingForEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	updates := make([]PendingUpdate, 0, len(trackers))
	for _, t := range trackers {
		role := ""
		if current := t.CurrentRole(); current != nil {
			role = current.RoleName
		}
		updates = append(updates, PendingUpdate{
			ID:            t.ID,
			Name:          t.SubjectArea,
			ProjectNumber: t.ProjectNumber,
			ProjectName:   t.ProjectName,
			Content:       t.Description,
			TotalHours:    t.TotalHours,
			Role:          role,
		})
	}
	return updates, nil
}
