package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/resume-updater/internal/ai"
	"github.com/spigell/resume-updater/internal/apperror"
	"github.com/spigell/resume-updater/internal/docx"
	"github.com/spigell/resume-updater/internal/logger"
	"github.com/spigell/resume-updater/internal/metrics"
	"github.com/spigell/resume-updater/internal/tracker"
)

// ProjectUpdate is one approved draft. An empty Description falls back to the stored draft.
type ProjectUpdate struct {
	ProjectNumber string `json:"project_number" binding:"required"`
	Description   string `json:"description"`
}

// ReviewResult reports what a save reconciled.
type ReviewResult struct {
	DocumentSaved bool              `json:"document_saved"`
	Saved         []string          `json:"saved"`
	Failed        map[string]string `json:"failed,omitempty"`
}

// OK reports whether every submitted project ended up on the resume and in its tracker.
func (r *ReviewResult) OK() bool {
	return r != nil && r.DocumentSaved && len(r.Failed) == 0
}

var errResumeUnavailable = apperror.New(apperror.CodeNotFound, "resume document is not available", http.StatusNotFound)

// Reviewer applies the employee's save and discard decisions.
type Reviewer struct {
	search    searcher
	writer    ai.Writer
	blobs     blobStore
	container string
	repo      *tracker.Repository
	metrics   *metrics.Manager
	logger    *zap.Logger
}

func NewReviewer(s searcher, writer ai.Writer, blobs blobStore, container string, repo *tracker.Repository, m *metrics.Manager, logger *zap.Logger) *Reviewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reviewer{
		search:    s,
		writer:    writer,
		blobs:     blobs,
		container: container,
		repo:      repo,
		metrics:   m,
		logger:    logger,
	}
}

type staged struct {
	projectNumber string
	title         string
	description   string
}

// ApplyUpdates inserts every approved draft into the resume document at one shared anchor,
// saves the document once and only then marks the trackers as added. A tracker that fails to
// persist after the document was saved is logged and reported, the rest still get written.
func (r *Reviewer) ApplyUpdates(ctx context.Context, employeeID string, updates []ProjectUpdate) (*ReviewResult, error) {
	if len(updates) == 0 {
		return nil, apperror.Validation("at least one project is required", nil)
	}
	updates = collapseUpdates(updates)

	log := r.logger.With(zap.String(logger.FieldEmployeeID, employeeID))
	result := &ReviewResult{Failed: make(map[string]string)}

	resume, err := r.search.Resume(ctx, employeeID)
	if err != nil {
		return nil, apperror.External("resume lookup failed", err)
	}
	if resume.SourceFile == "" {
		return nil, fmt.Errorf("employee %s: %w", employeeID, errResumeUnavailable)
	}

	data, err := r.blobs.Download(ctx, r.container, resume.SourceFile)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", resume.SourceFile, errors.Join(errResumeUnavailable, err))
	}

	doc, err := docx.Open(data)
	if err != nil {
		return nil, apperror.Validation("resume is not a word document", err)
	}

	anchor, err := r.writer.LocateAnchor(ctx, doc.Text())
	r.metrics.LLMCall("anchor", err == nil)
	if err != nil {
		return nil, apperror.External("could not locate where to insert the update", err)
	}
	log.Debug("insertion anchor located", zap.String("start_phrase", anchor.Phrase), zap.String("analysis", anchor.Analysis))

	var stage []staged
	for _, u := range updates {
		s, err := r.stage(ctx, employeeID, u, doc, anchor.Phrase)
		if err != nil {
			log.Warn("project not applied", zap.String(logger.FieldProjectNumber, u.ProjectNumber), zap.Error(err))
			result.Failed[u.ProjectNumber] = err.Error()
			continue
		}
		stage = append(stage, s)
	}

	if len(stage) == 0 {
		return result, nil
	}

	out, err := doc.Bytes()
	if err != nil {
		return nil, fmt.Errorf("pack resume: %w", err)
	}
	if err := r.blobs.Upload(ctx, r.container, resume.SourceFile, out, true); err != nil {
		return nil, apperror.External("saving the resume failed", err)
	}
	result.DocumentSaved = true
	log.Info("resume document saved", zap.String("file", resume.SourceFile), zap.Int("projects", len(stage)))

	if err := r.search.IndexResume(ctx, employeeID, resume.SourceFile, doc.Text()); err != nil {
		log.Warn("resume index was not updated", zap.Error(err))
	}

	for _, s := range stage {
		_, err := r.repo.Update(ctx, employeeID, s.projectNumber, func(cur *tracker.Tracker) error {
			cur.AddedToResume = tracker.StatusYes
			cur.SetDraft(s.title, s.description)
			return nil
		})
		if err != nil {
			log.Error("tracker was not marked as added", zap.String(logger.FieldProjectNumber, s.projectNumber), zap.Error(err))
			result.Failed[s.projectNumber] = err.Error()
			continue
		}
		result.Saved = append(result.Saved, s.projectNumber)
	}
	r.metrics.ReviewSaved(len(result.Saved))

	return result, nil
}

// collapseUpdates keeps one entry per project in first-seen order. An edited
// description wins over a bare project number.
func collapseUpdates(updates []ProjectUpdate) []ProjectUpdate {
	index := make(map[string]int, len(updates))
	out := make([]ProjectUpdate, 0, len(updates))
	for _, u := range updates {
		i, seen := index[u.ProjectNumber]
		if !seen {
			index[u.ProjectNumber] = len(out)
			out = append(out, u)
			continue
		}
		if strings.TrimSpace(out[i].Description) == "" {
			out[i].Description = u.Description
		}
	}
	return out
}

func (r *Reviewer) stage(ctx context.Context, employeeID string, u ProjectUpdate, doc *docx.Document, anchor string) (staged, error) {
	t, err := r.repo.Get(ctx, employeeID, u.ProjectNumber)
	if err != nil {
		return staged{}, err
	}
	if t.AddedToResume != tracker.StatusInProgress {
		return staged{}, fmt.Errorf("tracker %s is %q: %w", t.ID, t.AddedToResume, apperror.ErrInvalidState)
	}

	description := strings.TrimSpace(u.Description)
	if description == "" {
		description = t.Description
	}
	if description == "" {
		return staged{}, apperror.Validation("no description to save", nil)
	}

	section, err := r.writer.SplitDescription(ctx, description)
	r.metrics.LLMCall("split", err == nil)
	if err != nil {
		return staged{}, fmt.Errorf("split description: %w", err)
	}

	if !doc.InsertBefore(anchor, section.Title, section.Body) {
		return staged{}, fmt.Errorf("anchor %q not found in the resume", anchor)
	}

	return staged{projectNumber: u.ProjectNumber, title: section.Title, description: description}, nil
}

// Discard records that the employee does not want the draft.
func (r *Reviewer) Discard(ctx context.Context, employeeID, projectNumber string) error {
	ok, err := r.repo.Discard(ctx, employeeID, projectNumber)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("tracker %s: %w", tracker.ID(projectNumber, employeeID), tracker.ErrNotFound)
	}
	return nil
}

// Resume returns the current resume file of an employee.
func (r *Reviewer) Resume(ctx context.Context, employeeID string) (string, []byte, error) {
	resume, err := r.search.Resume(ctx, employeeID)
	if err != nil {
		return "", nil, apperror.External("resume lookup failed", err)
	}
	if resume.SourceFile == "" {
		return "", nil, fmt.Errorf("employee %s: %w", employeeID, errResumeUnavailable)
	}

	data, err := r.blobs.Download(ctx, r.container, resume.SourceFile)
	if err != nil {
		return "", nil, fmt.Errorf("download %s: %w", resume.SourceFile, errors.Join(errResumeUnavailable, err))
	}
	return resume.SourceFile, data, nil
}
