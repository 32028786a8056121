package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, updateIndex bool) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(Config{
		Endpoint:      srv.URL,
		ResumesIndex:  "resumes",
		ProjectsIndex: "projects",
		UpdateIndex:   updateIndex,
	}, "secret", nil)
}

func TestProjectPagesSendsFilterAndSortsPages(t *testing.T) {
	var got query
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/indexes/projects/docs/search" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("api-key") != "secret" {
			t.Fatalf("missing api key header")
		}
		if r.URL.Query().Get("api-version") != defaultAPIVersion {
			t.Fatalf("unexpected api version %q", r.URL.Query().Get("api-version"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		_, _ = io.WriteString(w, `{"value":[
			{"id":"2","project_number":"123","content":"Project 2","sourcefile":"file2","sourcepage":2},
			{"id":"1","project_number":"123","content":"Project 1","sourcefile":"file1","sourcepage":1}
		]}`)
	}, false)

	pages, err := client.ProjectPages(context.Background(), "123")
	if err != nil {
		t.Fatalf("ProjectPages returned error: %v", err)
	}

	if got.Search != "*" || got.Filter != "project_number eq '123'" || got.Select != projectFields {
		t.Fatalf("unexpected query: %+v", got)
	}
	if len(pages) != 2 || pages[0].SourcePage != 1 || pages[1].SourcePage != 2 {
		t.Fatalf("expected pages sorted by sourcepage, got %+v", pages)
	}
	if JoinContent(pages, "\n") != "Project 1\nProject 2" {
		t.Fatalf("unexpected joined content %q", JoinContent(pages, "\n"))
	}
}

func TestProjectPagesEscapesQuotes(t *testing.T) {
	var got query
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = io.WriteString(w, `{"value":[]}`)
	}, false)

	if _, err := client.ProjectPages(context.Background(), "O'1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Filter != "project_number eq 'O''1'" {
		t.Fatalf("unexpected filter %q", got.Filter)
	}
}

func TestResumeKeepsSingleSourceFile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"value":[
			{"id":"b","employee_id":"500","content":"second","sourcefile":"500.docx","sourcepage":"2"},
			{"id":"a","employee_id":"500","content":"first","sourcefile":"500.docx","sourcepage":1},
			{"id":"c","employee_id":"501","content":"other","sourcefile":"501.docx","sourcepage":1}
		]}`)
	}, false)

	resume, err := client.Resume(context.Background(), "500")
	if err != nil {
		t.Fatalf("Resume returned error: %v", err)
	}
	if resume.SourceFile != "500.docx" {
		t.Fatalf("unexpected source file %q", resume.SourceFile)
	}
	if resume.Text() != "first\nsecond" {
		t.Fatalf("unexpected resume text %q", resume.Text())
	}
}

func TestResumeEmptyResultIsTolerated(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"value":[]}`)
	}, false)

	resume, err := client.Resume(context.Background(), "500")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resume.SourceFile != "" || resume.Text() != "" {
		t.Fatalf("expected empty resume, got %+v", resume)
	}
}

func TestSearchBadStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, false)

	if _, err := client.ProjectPages(context.Background(), "1"); err == nil {
		t.Fatalf("expected error on bad status")
	}
}

func TestIndexResume(t *testing.T) {
	calls := 0
	var payload struct {
		Value []map[string]any `json:"value"`
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/indexes/resumes/docs/index" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}, true)

	if err := client.IndexResume(context.Background(), "500", "Doe Jane.docx", "text"); err != nil {
		t.Fatalf("IndexResume returned error: %v", err)
	}
	if calls != 1 || len(payload.Value) != 1 {
		t.Fatalf("expected one indexed document, calls=%d payload=%+v", calls, payload)
	}
	if payload.Value[0]["id"] != "Doe_Jane_docx" || payload.Value[0]["@search.action"] != "mergeOrUpload" {
		t.Fatalf("unexpected document %+v", payload.Value[0])
	}
}

func TestIndexResumeDisabled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("no request expected when index updates are disabled")
	}, false)

	if err := client.IndexResume(context.Background(), "500", "x.docx", "text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
