// Package tracker owns the per-(employee, project) resume tracker: its record shape,
// status lifecycle, role history and persistence.
package tracker

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spigell/resume-updater/internal/apperror"
	"github.com/spigell/resume-updater/internal/store"
)

const (
	// Partition holds every tracker.
	Partition = "resumeupdatestatus"

	DefaultHoursThreshold = 40.0
	DefaultReviewPeriod   = 30 * 24 * time.Hour

	displayNameSeparator = " - "
)

var (
	ErrNotFound = apperror.Wrap(store.ErrNotFound, apperror.CodeNotFound, "tracker not found", http.StatusNotFound)
	ErrConflict = apperror.Wrap(store.ErrVersionConflict, apperror.CodeConflict, "tracker was modified concurrently", http.StatusConflict)

	ErrMalformedDisplayName = apperror.Wrap(
		errors.New(`display name must look like "Last, First - employee_id"`),
		apperror.CodeInvalidInput, "malformed employee display name", http.StatusBadRequest,
	)
	ErrMissingField = apperror.Wrap(errors.New("required event field is empty"), apperror.CodeInvalidInput, "missing event field", http.StatusBadRequest)
)

type Status string

const (
	StatusNo         Status = "no"
	StatusInProgress Status = "in_progress"
	StatusYes        Status = "yes"
	StatusDiscarded  Status = "discarded"
)

// Terminal reports whether no further transition leaves this status.
func (s Status) Terminal() bool {
	return s == StatusYes || s == StatusDiscarded
}

// Role is one interval of the employee's role on the project. EndDate is nil while open.
type Role struct {
	RoleName      string     `json:"role_name"`
	JobFamilyCode string     `json:"job_family_code"`
	StartDate     time.Time  `json:"start_date"`
	EndDate       *time.Time `json:"end_date"`
}

type Tracker struct {
	ID                  string    `json:"id"`
	PartitionKey        string    `json:"partitionKey"`
	EmployeeID          string    `json:"employee_id"`
	EmployeeDisplayName string    `json:"employee_display_name"`
	ProjectNumber       string    `json:"project_number"`
	SubjectArea         string    `json:"subject_area"`
	TotalHours          float64   `json:"total_hours"`
	AddedToResume       Status    `json:"added_to_resume"`
	ProjectName         string    `json:"project_name"`
	Description         string    `json:"description"`
	DraftReady          bool      `json:"draft_ready"`
	DraftError          string    `json:"draft_error,omitempty"`
	RoleHistory         []Role    `json:"role_history"`
	CreatedTimestamp    time.Time `json:"created_timestamp"`
	LastUpdated         time.Time `json:"last_updated"`
	Version             int64     `json:"version"`
	ReviewDate          time.Time `json:"review_date"`
}

// ID is the composite tracker key.
func ID(projectNumber, employeeID string) string {
	return projectNumber + "-" + employeeID
}

// CurrentRole is the last role interval, or nil for an empty history.
func (t *Tracker) CurrentRole() *Role {
	if len(t.RoleHistory) == 0 {
		return nil
	}
	return &t.RoleHistory[len(t.RoleHistory)-1]
}

// ApplyRole closes the current role and opens a new one when the role name or job family
// changed. It reports whether the history grew.
func (t *Tracker) ApplyRole(roleName, jobFamilyCode string, now time.Time) bool {
	current := t.CurrentRole()
	if current != nil && current.RoleName == roleName && current.JobFamilyCode == jobFamilyCode {
		return false
	}

	if current != nil && current.EndDate == nil {
		end := now
		current.EndDate = &end
	}

	t.RoleHistory = append(t.RoleHistory, Role{
		RoleName:      roleName,
		JobFamilyCode: jobFamilyCode,
		StartDate:     now,
	})
	return true
}

// SetDraft stores generated text and keeps the draft_ready flag in sync.
func (t *Tracker) SetDraft(projectName, description string) {
	t.ProjectName = projectName
	t.Description = description
	t.DraftReady = strings.TrimSpace(description) != ""
	if t.DraftReady {
		t.DraftError = ""
	}
}

// NeedsDraft reports the recoverable state left behind by a failed draft generation.
func (t *Tracker) NeedsDraft() bool {
	return t.AddedToResume == StatusInProgress && !t.DraftReady
}

// KeyMemberEntry is an incoming project assignment snapshot.
type KeyMemberEntry struct {
	EmployeeDisplayName string  `json:"employee_display_name" mapstructure:"employee_display_name" binding:"required"`
	ProjectNumber       string  `json:"project_number" mapstructure:"project_number" binding:"required"`
	SubjectArea         string  `json:"subject_area" mapstructure:"subject_area"`
	ProjectRoleName     string  `json:"project_role_name" mapstructure:"project_role_name"`
	JobHours            float64 `json:"job_hours" mapstructure:"job_hours" binding:"gte=0"`
	JobFamilyCode       string  `json:"employee_job_family_function_code" mapstructure:"employee_job_family_function_code"`
}

// Assignment is a validated entry with the employee identity extracted.
type Assignment struct {
	EmployeeID    string
	DisplayName   string
	ProjectNumber string
	SubjectArea   string
	RoleName      string
	JobFamilyCode string
	Hours         float64
}

// Normalize validates the entry and extracts the employee id from the display name.
func (e KeyMemberEntry) Normalize() (Assignment, error) {
	employeeID, err := ParseDisplayName(e.EmployeeDisplayName)
	if err != nil {
		return Assignment{}, err
	}

	project := strings.TrimSpace(e.ProjectNumber)
	if project == "" {
		return Assignment{}, fmt.Errorf("project_number: %w", ErrMissingField)
	}
	if e.JobHours < 0 {
		return Assignment{}, apperror.Validation(fmt.Sprintf("job_hours must not be negative, got %v", e.JobHours), nil)
	}

	return Assignment{
		EmployeeID:    employeeID,
		DisplayName:   strings.TrimSpace(e.EmployeeDisplayName),
		ProjectNumber: project,
		SubjectArea:   strings.TrimSpace(e.SubjectArea),
		RoleName:      strings.TrimSpace(e.ProjectRoleName),
		JobFamilyCode: strings.TrimSpace(e.JobFamilyCode),
		Hours:         e.JobHours,
	}, nil
}

// ParseDisplayName extracts the employee id from "Last, First - employee_id".
func ParseDisplayName(displayName string) (string, error) {
	idx := strings.LastIndex(displayName, displayNameSeparator)
	if idx < 0 {
		return "", fmt.Errorf("%q: %w", displayName, ErrMalformedDisplayName)
	}

	employeeID := strings.TrimSpace(displayName[idx+len(displayNameSeparator):])
	if employeeID == "" {
		return "", fmt.Errorf("%q: %w", displayName, ErrMalformedDisplayName)
	}
	return employeeID, nil
}
