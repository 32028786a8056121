package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/resume-updater/internal/apperror"
	"github.com/spigell/resume-updater/internal/metrics"
	"github.com/spigell/resume-updater/internal/pipeline"
	"github.com/spigell/resume-updater/internal/tracker"
)

type fakeProcessor struct {
	processFn func(ctx context.Context, entry tracker.KeyMemberEntry) (*pipeline.Result, error)
	retryFn   func(ctx context.Context, employeeID, projectNumber string) (*tracker.Tracker, error)
	pendingFn func(ctx context.Context, employeeID string) ([]pipeline.PendingUpdate, error)
}

func (f *fakeProcessor) ProcessEvent(ctx context.Context, entry tracker.KeyMemberEntry) (*pipeline.Result, error) {
	return f.processFn(ctx, entry)
}

func (f *fakeProcessor) RetryDraft(ctx context.Context, employeeID, projectNumber string) (*tracker.Tracker, error) {
	return f.retryFn(ctx, employeeID, projectNumber)
}

func (f *fakeProcessor) PendingUpdates(ctx context.Context, employeeID string) ([]pipeline.PendingUpdate, error) {
	return f.pendingFn(ctx, employeeID)
}

type fakeReviewer struct {
	applyFn   func(ctx context.Context, employeeID string, updates []pipeline.ProjectUpdate) (*pipeline.ReviewResult, error)
	discardFn func(ctx context.Context, employeeID, projectNumber string) error
	resumeFn  func(ctx context.Context, employeeID string) (string, []byte, error)
}

func (f *fakeReviewer) ApplyUpdates(ctx context.Context, employeeID string, updates []pipeline.ProjectUpdate) (*pipeline.ReviewResult, error) {
	return f.applyFn(ctx, employeeID, updates)
}

func (f *fakeReviewer) Discard(ctx context.Context, employeeID, projectNumber string) error {
	return f.discardFn(ctx, employeeID, projectNumber)
}

func (f *fakeReviewer) Resume(ctx context.Context, employeeID string) (string, []byte, error) {
	return f.resumeFn(ctx, employeeID)
}

type fakeFeedback struct {
	stored []string
}

func (f *fakeFeedback) Store(_ context.Context, employeeID, kind, content string) (*pipeline.FeedbackRecord, error) {
	f.stored = append(f.stored, employeeID+"/"+kind+"/"+content)
	return &pipeline.FeedbackRecord{ID: "feedback-1"}, nil
}

func newTestRouter(p Processor, r Reviewer, f FeedbackStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(NewHandler(p, r, f, "99999"), metrics.NewManager(), nil)
}

func do(t *testing.T, router http.Handler, method, target, body string, header map[string]string) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env Envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestCurrentUserHeaderAndDefault(t *testing.T) {
	router := newTestRouter(&fakeProcessor{}, &fakeReviewer{}, &fakeFeedback{})

	w, env := do(t, router, http.MethodGet, "/current-user", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Ok)
	assert.Equal(t, map[string]any{"employee_id": "99999"}, env.Data)

	_, env = do(t, router, http.MethodGet, "/current-user", "", map[string]string{headerEmployeeID: "500"})
	assert.Equal(t, map[string]any{"employee_id": "500"}, env.Data)
	assert.NotEmpty(t, w.Header().Get(headerRequestID))
}

func TestPendingUpdates(t *testing.T) {
	proc := &fakeProcessor{
		pendingFn: func(_ context.Context, employeeID string) ([]pipeline.PendingUpdate, error) {
			assert.Equal(t, "500", employeeID)
			return []pipeline.PendingUpdate{{ID: "100-500", ProjectNumber: "100", Content: "draft"}}, nil
		},
	}
	router := newTestRouter(proc, &fakeReviewer{}, &fakeFeedback{})

	w, _ := do(t, router, http.MethodGet, "/pending-updates", "", map[string]string{headerEmployeeID: "500"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"project_number":"100"`)
}

func TestDiscardValidation(t *testing.T) {
	router := newTestRouter(&fakeProcessor{}, &fakeReviewer{}, &fakeFeedback{})

	w, env := do(t, router, http.MethodPost, "/discard", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, apperror.CodeInvalidInput, env.Error.Code)
	assert.Equal(t, "projectnumber is required", env.Error.Message)

	w, env = do(t, router, http.MethodPost, "/discard", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Ok)
}

func TestDiscardNotFound(t *testing.T) {
	rev := &fakeReviewer{
		discardFn: func(_ context.Context, employeeID, projectNumber string) error {
			assert.Equal(t, "500", employeeID)
			assert.Equal(t, "100", projectNumber)
			return tracker.ErrNotFound
		},
	}
	router := newTestRouter(&fakeProcessor{}, rev, &fakeFeedback{})

	w, env := do(t, router, http.MethodPost, "/discard", `{"employee_id":"500","project_number":"100"}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperror.CodeNotFound, env.Error.Code)
}

func TestSaveMergesProjectNumbersAndUpdates(t *testing.T) {
	rev := &fakeReviewer{
		applyFn: func(_ context.Context, employeeID string, updates []pipeline.ProjectUpdate) (*pipeline.ReviewResult, error) {
			assert.Equal(t, "99999", employeeID)
			assert.Equal(t, []pipeline.ProjectUpdate{
				{ProjectNumber: "100", Description: "Edited"},
				{ProjectNumber: "200"},
			}, updates)
			return &pipeline.ReviewResult{DocumentSaved: true, Saved: []string{"100"}, Failed: map[string]string{"200": "boom"}}, nil
		},
	}
	router := newTestRouter(&fakeProcessor{}, rev, &fakeFeedback{})

	w, env := do(t, router, http.MethodPost, "/save", `{"updates":[{"project_number":"100","description":"Edited"}],"project_numbers":["200"]}`, nil)
	assert.Equal(t, http.StatusMultiStatus, w.Code)
	assert.True(t, env.Ok)
}

func TestSaveRequiresProjects(t *testing.T) {
	router := newTestRouter(&fakeProcessor{}, &fakeReviewer{}, &fakeFeedback{})

	w, _ := do(t, router, http.MethodPost, "/save", `{"employee_id":"500"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFeedback(t *testing.T) {
	fb := &fakeFeedback{}
	router := newTestRouter(&fakeProcessor{}, &fakeReviewer{}, fb)

	w, env := do(t, router, http.MethodPost, "/feedback", `{"type":"general","content":"nice"}`, map[string]string{headerEmployeeID: "500"})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, map[string]any{"feedback_id": "feedback-1"}, env.Data)
	assert.Equal(t, []string{"500/general/nice"}, fb.stored)
}

func TestDownload(t *testing.T) {
	rev := &fakeReviewer{
		resumeFn: func(context.Context, string) (string, []byte, error) {
			return "team/doe-jane.docx", []byte("PK"), nil
		},
	}
	router := newTestRouter(&fakeProcessor{}, rev, &fakeFeedback{})

	w, _ := do(t, router, http.MethodGet, "/download", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, docxContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="doe-jane.docx"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "PK", w.Body.String())
}

func TestEvents(t *testing.T) {
	proc := &fakeProcessor{
		processFn: func(_ context.Context, entry tracker.KeyMemberEntry) (*pipeline.Result, error) {
			assert.Equal(t, 45.0, entry.JobHours)
			return &pipeline.Result{Status: pipeline.StatusTriggered, TrackerID: "100-500"}, nil
		},
	}
	router := newTestRouter(proc, &fakeReviewer{}, &fakeFeedback{})

	body := `{"employee_display_name":"Doe, Jane - 500","project_number":"100","job_hours":45}`
	w, env := do(t, router, http.MethodPost, "/events", body, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "triggered", env.Data.(map[string]any)["status"])

	w, _ = do(t, router, http.MethodPost, "/events", `{"project_number":"100","job_hours":-1}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRetryInvalidState(t *testing.T) {
	proc := &fakeProcessor{
		retryFn: func(context.Context, string, string) (*tracker.Tracker, error) {
			return nil, apperror.ErrInvalidState
		},
	}
	router := newTestRouter(proc, &fakeReviewer{}, &fakeFeedback{})

	w, env := do(t, router, http.MethodPost, "/retry", `{"project_number":"100"}`, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperror.CodeInvalidState, env.Error.Code)
}

func TestUnknownErrorsAreHidden(t *testing.T) {
	proc := &fakeProcessor{
		pendingFn: func(context.Context, string) ([]pipeline.PendingUpdate, error) {
			return nil, assert.AnError
		},
	}
	router := newTestRouter(proc, &fakeReviewer{}, &fakeFeedback{})

	w, env := do(t, router, http.MethodGet, "/pending-updates", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperror.CodeInternalError, env.Error.Code)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}

func TestMetricsAndHealth(t *testing.T) {
	router := newTestRouter(&fakeProcessor{}, &fakeReviewer{}, &fakeFeedback{})

	w, _ := do(t, router, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "resume_updater_http_request")
}
