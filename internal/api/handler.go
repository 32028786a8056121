// Package api is the HTTP front door of the resume pipeline.
package api

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/spigell/resume-updater/internal/apperror"
	"github.com/spigell/resume-updater/internal/pipeline"
	"github.com/spigell/resume-updater/internal/tracker"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

type Processor interface {
	ProcessEvent(ctx context.Context, entry tracker.KeyMemberEntry) (*pipeline.Result, error)
	RetryDraft(ctx context.Context, employeeID, projectNumber string) (*tracker.Tracker, error)
	PendingUpdates(ctx context.Context, employeeID string) ([]pipeline.PendingUpdate, error)
}

type Reviewer interface {
	ApplyUpdates(ctx context.Context, employeeID string, updates []pipeline.ProjectUpdate) (*pipeline.ReviewResult, error)
	Discard(ctx context.Context, employeeID, projectNumber string) error
	Resume(ctx context.Context, employeeID string) (string, []byte, error)
}

type FeedbackStore interface {
	Store(ctx context.Context, employeeID, kind, content string) (*pipeline.FeedbackRecord, error)
}

type Handler struct {
	processor       Processor
	reviewer        Reviewer
	feedback        FeedbackStore
	defaultEmployee string
}

func NewHandler(p Processor, r Reviewer, f FeedbackStore, defaultEmployee string) *Handler {
	return &Handler{processor: p, reviewer: r, feedback: f, defaultEmployee: defaultEmployee}
}

type DiscardRequest struct {
	EmployeeID    string `json:"employee_id"`
	ProjectNumber string `json:"project_number" binding:"required"`
}

// SaveRequest accepts either bare project numbers or updates carrying edited descriptions.
type SaveRequest struct {
	EmployeeID     string                   `json:"employee_id"`
	ProjectNumbers []string                 `json:"project_numbers"`
	Updates        []pipeline.ProjectUpdate `json:"updates" binding:"omitempty,dive"`
}

type FeedbackRequest struct {
	Type    string `json:"type"`
	Content string `json:"content" binding:"required"`
}

type RetryRequest struct {
	EmployeeID    string `json:"employee_id"`
	ProjectNumber string `json:"project_number" binding:"required"`
}

// employee resolves the acting employee: body, then header, then the configured default.
func (h *Handler) employee(c *gin.Context, fromBody string) (string, error) {
	for _, candidate := range []string{fromBody, c.GetHeader(headerEmployeeID), h.defaultEmployee} {
		if id := strings.TrimSpace(candidate); id != "" {
			return id, nil
		}
	}
	return "", apperror.Validation("employee id is required", nil)
}

func (h *Handler) CurrentUser(c *gin.Context) {
	id, err := h.employee(c, "")
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"employee_id": id})
}

func (h *Handler) PendingUpdates(c *gin.Context) {
	id, err := h.employee(c, "")
	if err != nil {
		writeError(c, err)
		return
	}

	updates, err := h.processor.PendingUpdates(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"projects": updates})
}

func (h *Handler) Discard(c *gin.Context) {
	var req DiscardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	id, err := h.employee(c, req.EmployeeID)
	if err != nil {
		writeError(c, err)
		return
	}

	if err := h.reviewer.Discard(c.Request.Context(), id, req.ProjectNumber); err != nil {
		writeError(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{"message": "Update discarded successfully"})
}

func (h *Handler) Save(c *gin.Context) {
	var req SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	id, err := h.employee(c, req.EmployeeID)
	if err != nil {
		writeError(c, err)
		return
	}

	updates := req.Updates
	for _, number := range req.ProjectNumbers {
		updates = append(updates, pipeline.ProjectUpdate{ProjectNumber: number})
	}
	if len(updates) == 0 {
		writeError(c, apperror.Validation("project numbers are required", nil))
		return
	}

	result, err := h.reviewer.ApplyUpdates(c.Request.Context(), id, updates)
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	if !result.OK() {
		status = http.StatusMultiStatus
	}
	success(c, status, result)
}

func (h *Handler) Feedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	id, err := h.employee(c, "")
	if err != nil {
		writeError(c, err)
		return
	}

	record, err := h.feedback.Store(c.Request.Context(), id, req.Type, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, http.StatusCreated, gin.H{"feedback_id": record.ID})
}

// Download streams the employee's current resume document.
func (h *Handler) Download(c *gin.Context) {
	id, err := h.employee(c, "")
	if err != nil {
		writeError(c, err)
		return
	}

	name, data, err := h.reviewer.Resume(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(name)))
	c.Data(http.StatusOK, docxContentType, data)
}

// Events ingests one key-member entry, the synchronous twin of the Kafka consumer.
func (h *Handler) Events(c *gin.Context) {
	var entry tracker.KeyMemberEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.processor.ProcessEvent(c.Request.Context(), entry)
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, http.StatusOK, result)
}

func (h *Handler) Retry(c *gin.Context) {
	var req RetryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	id, err := h.employee(c, req.EmployeeID)
	if err != nil {
		writeError(c, err)
		return
	}

	t, err := h.processor.RetryDraft(c.Request.Context(), id, req.ProjectNumber)
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, http.StatusOK, gin.H{
		"tracker_id":   t.ID,
		"project_name": t.ProjectName,
		"content":      t.Description,
	})
}
