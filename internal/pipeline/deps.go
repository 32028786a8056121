// Package pipeline drives a tracker from an incoming assignment event through the trigger
// decision, draft generation and the employee's review.
package pipeline

import (
	"context"
	"fmt"

	"github.com/spigell/resume-updater/internal/notification"
	"github.com/spigell/resume-updater/internal/search"
)

type searcher interface {
	Resume(ctx context.Context, employeeID string) (*search.Resume, error)
	ProjectPages(ctx context.Context, projectNumber string) ([]search.Page, error)
	IndexResume(ctx context.Context, employeeID, filename, text string) error
}

type blobStore interface {
	Download(ctx context.Context, container, name string) ([]byte, error)
	Upload(ctx context.Context, container, name string, data []byte, overwrite bool) error
}

type notifier interface {
	NotifyIfDue(ctx context.Context, employeeID string) notification.Outcome
}

// projectPageSeparator joins chunked project pages back into one description.
const projectPageSeparator = "\n"

func projectText(ctx context.Context, s searcher, projectNumber string) (string, error) {
	pages, err := s.ProjectPages(ctx, projectNumber)
	if err != nil {
		return "", fmt.Errorf("fetch project %s: %w", projectNumber, err)
	}
	return search.JoinContent(pages, projectPageSeparator), nil
}
