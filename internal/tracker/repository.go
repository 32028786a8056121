package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/resume-updater/internal/logger"
	"github.com/spigell/resume-updater/internal/metrics"
	"github.com/spigell/resume-updater/internal/store"
)

// Consistency selects how concurrent writers to one tracker are reconciled.
type Consistency string

const (
	// LastWriterWins replaces the stored document unconditionally.
	LastWriterWins Consistency = "last-writer-wins"
	// Conditional replaces only when the stored version is the one that was read,
	// re-reading and re-applying the mutation on conflict.
	Conditional Consistency = "conditional"

	defaultConflictRetries = 3
)

// Validate rejects unknown modes. Empty means LastWriterWins.
func (c Consistency) Validate() error {
	switch c {
	case "", LastWriterWins, Conditional:
		return nil
	default:
		return fmt.Errorf("unknown consistency mode %q, expected %q or %q", string(c), LastWriterWins, Conditional)
	}
}

// ErrSkip aborts an Update without writing and without reporting a failure.
var ErrSkip = errors.New("tracker update skipped")

type Options struct {
	Consistency     Consistency
	ConflictRetries int
	ReviewPeriod    time.Duration
	Metrics         *metrics.Manager
	Now             func() time.Time
}

type Repository struct {
	trackers    store.Collection
	consistency Consistency
	retries     int
	review      time.Duration
	metrics     *metrics.Manager
	now         func() time.Time
	logger      *zap.Logger
}

func NewRepository(trackers store.Collection, logger *zap.Logger, opts Options) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Consistency == "" {
		opts.Consistency = LastWriterWins
	}
	if opts.ConflictRetries <= 0 {
		opts.ConflictRetries = defaultConflictRetries
	}
	if opts.ReviewPeriod <= 0 {
		opts.ReviewPeriod = DefaultReviewPeriod
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Repository{
		trackers:    trackers,
		consistency: opts.Consistency,
		retries:     opts.ConflictRetries,
		review:      opts.ReviewPeriod,
		metrics:     opts.Metrics,
		now:         func() time.Time { return opts.Now().UTC() },
		logger:      logger,
	}
}

// GetOrCreate records the latest hours snapshot of an assignment. A new tracker starts at
// status "no" and version 1. An existing one gets its hours replaced (not summed), its role
// history reconciled and its version bumped.
func (r *Repository) GetOrCreate(ctx context.Context, a Assignment) (*Tracker, error) {
	id := ID(a.ProjectNumber, a.EmployeeID)
	log := logger.WithTracker(r.logger, id, a.EmployeeID, a.ProjectNumber)

	_, err := r.Get(ctx, a.EmployeeID, a.ProjectNumber)
	switch {
	case errors.Is(err, ErrNotFound):
		t, err := r.create(ctx, a)
		if err == nil {
			log.Info("tracker created", zap.Float64("total_hours", t.TotalHours))
			return t, nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return nil, err
		}
		log.Debug("tracker was created concurrently, updating instead")
	case err != nil:
		return nil, err
	}

	t, err := r.Update(ctx, a.EmployeeID, a.ProjectNumber, func(t *Tracker) error {
		t.TotalHours = a.Hours
		if a.SubjectArea != "" {
			t.SubjectArea = a.SubjectArea
		}
		if a.DisplayName != "" {
			t.EmployeeDisplayName = a.DisplayName
		}
		if t.ApplyRole(a.RoleName, a.JobFamilyCode, r.now()) {
			log.Info("role changed", zap.String("role_name", a.RoleName), zap.String("job_family_code", a.JobFamilyCode))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug("tracker updated", zap.Float64("total_hours", t.TotalHours), zap.Int64("version", t.Version))
	return t, nil
}

func (r *Repository) create(ctx context.Context, a Assignment) (*Tracker, error) {
	now := r.now()
	t := &Tracker{
		ID:                  ID(a.ProjectNumber, a.EmployeeID),
		PartitionKey:        Partition,
		EmployeeID:          a.EmployeeID,
		EmployeeDisplayName: a.DisplayName,
		ProjectNumber:       a.ProjectNumber,
		SubjectArea:         a.SubjectArea,
		TotalHours:          a.Hours,
		AddedToResume:       StatusNo,
		CreatedTimestamp:    now,
		LastUpdated:         now,
		Version:             1,
		ReviewDate:          now.Add(r.review),
	}
	t.ApplyRole(a.RoleName, a.JobFamilyCode, now)

	if err := r.trackers.Create(ctx, store.Item{ID: t.ID, PartitionKey: Partition, Body: t}); err != nil {
		return nil, fmt.Errorf("create tracker %s: %w", t.ID, err)
	}
	return t, nil
}

func (r *Repository) Get(ctx context.Context, employeeID, projectNumber string) (*Tracker, error) {
	id := ID(projectNumber, employeeID)

	var t Tracker
	if err := r.trackers.Get(ctx, Partition, id, &t); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("tracker %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("read tracker %s: %w", id, err)
	}
	return &t, nil
}

// Save persists a staged tracker: the version is bumped by one and last_updated refreshed.
// In conditional mode the write is rejected with ErrConflict when the stored version is no
// longer the one the tracker was read at.
func (r *Repository) Save(ctx context.Context, t *Tracker) error {
	prev := t.Version
	t.Version = prev + 1
	t.LastUpdated = r.now()

	var opts []store.ReplaceOption
	if r.consistency == Conditional {
		opts = append(opts, store.IfVersion(prev))
	}

	err := r.trackers.Replace(ctx, store.Item{ID: t.ID, PartitionKey: Partition, Body: t}, opts...)
	if err == nil {
		return nil
	}

	t.Version = prev
	switch {
	case errors.Is(err, store.ErrVersionConflict):
		r.metrics.VersionConflict()
		return fmt.Errorf("tracker %s: %w", t.ID, ErrConflict)
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("tracker %s: %w", t.ID, ErrNotFound)
	default:
		return fmt.Errorf("save tracker %s: %w", t.ID, err)
	}
}

// Update reads the tracker, applies mutate and saves it. In conditional mode a version
// conflict re-reads the tracker and re-applies mutate. Returning ErrSkip from mutate leaves
// the tracker untouched; Update then returns the unchanged tracker together with ErrSkip.
func (r *Repository) Update(ctx context.Context, employeeID, projectNumber string, mutate func(*Tracker) error) (*Tracker, error) {
	attempts := 1
	if r.consistency == Conditional {
		attempts = r.retries + 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		t, err := r.Get(ctx, employeeID, projectNumber)
		if err != nil {
			return nil, err
		}

		if err := mutate(t); err != nil {
			return t, err
		}

		err = r.Save(ctx, t)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}

		lastErr = err
		r.logger.Warn("tracker version conflict, retrying",
			append(logger.TrackerFields(t.ID, employeeID, projectNumber), zap.Int("attempt", attempt+1))...,
		)
	}

	return nil, lastErr
}

// Discard marks the tracker as discarded. Discarding an already discarded tracker still
// bumps its version. It reports false when no tracker exists.
func (r *Repository) Discard(ctx context.Context, employeeID, projectNumber string) (bool, error) {
	_, err := r.Update(ctx, employeeID, projectNumber, func(t *Tracker) error {
		t.AddedToResume = StatusDiscarded
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	r.metrics.TrackerDiscarded()
	logger.WithTracker(r.logger, ID(projectNumber, employeeID), employeeID, projectNumber).Info("tracker discarded")
	return true, nil
}

// PendingForEmployee lists the employee's in-progress trackers that carry a draft.
func (r *Repository) PendingForEmployee(ctx context.Context, employeeID string) ([]Tracker, error) {
	return r.query(ctx,
		store.Eq("employee_id", employeeID),
		store.Eq("added_to_resume", StatusInProgress),
		store.Eq("draft_ready", true),
	)
}

// InProgress lists every in-progress tracker, with or without a draft.
func (r *Repository) InProgress(ctx context.Context) ([]Tracker, error) {
	return r.query(ctx, store.Eq("added_to_resume", StatusInProgress))
}

// ForEmployee lists every tracker of an employee.
func (r *Repository) ForEmployee(ctx context.Context, employeeID string) ([]Tracker, error) {
	return r.query(ctx, store.Eq("employee_id", employeeID))
}

// EmployeesWithPendingDrafts returns distinct employee ids having reviewable drafts, sorted.
func (r *Repository) EmployeesWithPendingDrafts(ctx context.Context) ([]string, error) {
	trackers, err := r.query(ctx,
		store.Eq("added_to_resume", StatusInProgress),
		store.Eq("draft_ready", true),
	)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(trackers))
	employees := make([]string, 0, len(trackers))
	for _, t := range trackers {
		if _, ok := seen[t.EmployeeID]; ok {
			continue
		}
		seen[t.EmployeeID] = struct{}{}
		employees = append(employees, t.EmployeeID)
	}
	sort.Strings(employees)
	return employees, nil
}

func (r *Repository) query(ctx context.Context, conds ...store.Condition) ([]Tracker, error) {
	raw, err := r.trackers.Query(ctx, Partition, conds...)
	if err != nil {
		return nil, fmt.Errorf("query trackers: %w", err)
	}

	trackers, err := store.DecodeAll[Tracker](raw)
	if err != nil {
		return nil, fmt.Errorf("decode trackers: %w", err)
	}
	return trackers, nil
}
