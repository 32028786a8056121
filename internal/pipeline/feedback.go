package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spigell/resume-updater/internal/apperror"
	"github.com/spigell/resume-updater/internal/store"
)

const feedbackPartition = "feedback"

type FeedbackRecord struct {
	ID           string    `json:"id"`
	PartitionKey string    `json:"partitionKey"`
	EmployeeID   string    `json:"employee_id"`
	Type         string    `json:"type"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
}

// Feedback stores free-text employee feedback. Nothing in the pipeline reads it back.
type Feedback struct {
	records store.Collection
	now     func() time.Time
}

func NewFeedback(records store.Collection) *Feedback {
	return &Feedback{records: records, now: time.Now}
}

func (f *Feedback) Store(ctx context.Context, employeeID, kind, content string) (*FeedbackRecord, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperror.Validation("feedback content is required", nil)
	}

	now := f.now().UTC()
	r := &FeedbackRecord{
		ID:           fmt.Sprintf("feedback-%s-%s", now.Format("20060102150405"), employeeID),
		PartitionKey: feedbackPartition,
		EmployeeID:   employeeID,
		Type:         kind,
		Content:      content,
		Timestamp:    now,
	}

	err := f.records.Create(ctx, store.Item{ID: r.ID, PartitionKey: feedbackPartition, Body: r})
	if errors.Is(err, store.ErrDuplicate) {
		r.ID = r.ID + "-" + uuid.NewString()[:8]
		err = f.records.Create(ctx, store.Item{ID: r.ID, PartitionKey: feedbackPartition, Body: r})
	}
	if err != nil {
		return nil, fmt.Errorf("store feedback: %w", err)
	}
	return r, nil
}
