package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spigell/resume-updater/internal/ai"
	"github.com/spigell/resume-updater/internal/notification"
	"github.com/spigell/resume-updater/internal/search"
	"github.com/spigell/resume-updater/internal/store"
	"github.com/spigell/resume-updater/internal/store/memory"
	"github.com/spigell/resume-updater/internal/tracker"
)

type fakeSearch struct {
	mu       sync.Mutex
	resumes  map[string]*search.Resume
	projects map[string][]search.Page
	err      error
	indexed  []string
}

func newFakeSearch() *fakeSearch {
	return &fakeSearch{
		resumes: map[string]*search.Resume{
			"500": {
				EmployeeID: "500",
				SourceFile: "doe-jane.docx",
				Pages:      []search.Page{{Content: "Jane Doe\nWork Experience\nArchitect, Fort Meyer Beach, USA 2023"}},
			},
		},
		projects: map[string][]search.Page{
			"100": {
				{ProjectNumber: "100", SourcePage: 1, Content: "Harbor bridge retrofit"},
				{ProjectNumber: "100", SourcePage: 2, Content: "Seismic upgrade"},
			},
		},
	}
}

func (f *fakeSearch) Resume(_ context.Context, employeeID string) (*search.Resume, error) {
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.resumes[employeeID]; ok {
		return r, nil
	}
	return &search.Resume{EmployeeID: employeeID}, nil
}

func (f *fakeSearch) ProjectPages(_ context.Context, projectNumber string) ([]search.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.projects[projectNumber], nil
}

func (f *fakeSearch) IndexResume(_ context.Context, employeeID, filename, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, employeeID+"/"+filename)
	return nil
}

type fakeWriter struct {
	mu sync.Mutex

	experience *ai.Experience
	draftErr   error
	present    bool
	section    *ai.Section
	splitErr   error
	anchor     string

	drafts     []ai.DraftRequest
	classified int
	splits     []string
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		experience: &ai.Experience{
			Title:   "Engineer, Oakland, USA 2024",
			Summary: "March 2024 to Present. Led the harbor bridge retrofit.",
		},
		anchor: "Architect, Fort Meyer Beach, USA 2023",
	}
}

func (f *fakeWriter) DraftExperience(_ context.Context, req ai.DraftRequest) (*ai.Experience, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, req)
	if f.draftErr != nil {
		return nil, f.draftErr
	}
	exp := *f.experience
	return &exp, nil
}

func (f *fakeWriter) AlreadyOnResume(context.Context, string, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classified++
	return f.present, nil
}

func (f *fakeWriter) SplitDescription(_ context.Context, text string) (*ai.Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.splits = append(f.splits, text)
	if f.splitErr != nil {
		return nil, f.splitErr
	}
	if f.section != nil {
		return f.section, nil
	}
	title, body, _ := strings.Cut(text, "\n")
	return &ai.Section{Title: title, Body: body}, nil
}

func (f *fakeWriter) LocateAnchor(context.Context, string) (*ai.Anchor, error) {
	return &ai.Anchor{Analysis: "first entry", Phrase: f.anchor}, nil
}

type fakeBlobs struct {
	mu        sync.Mutex
	files     map[string][]byte
	uploadErr error
	uploads   int
}

func (f *fakeBlobs) Download(_ context.Context, container, name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[container+"/"+name]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return data, nil
}

func (f *fakeBlobs) Upload(_ context.Context, container, name string, data []byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.files[container+"/"+name] = data
	return nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeNotifier) NotifyIfDue(_ context.Context, employeeID string) notification.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, employeeID)
	return notification.Sent
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type harness struct {
	search    *fakeSearch
	writer    *fakeWriter
	blobs     *fakeBlobs
	notifier  *fakeNotifier
	repo      *tracker.Repository
	events    store.Collection
	trackers  store.Collection
	engine    *Engine
	drafter   *Drafter
	processor *Processor
	reviewer  *Reviewer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := memory.New()
	clock := &stepClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}

	h := &harness{
		search:   newFakeSearch(),
		writer:   newFakeWriter(),
		blobs:    &fakeBlobs{files: map[string][]byte{"resumes/doe-jane.docx": resumeDocx(t)}},
		notifier: &fakeNotifier{},
		events:   db.Collection(store.KeyMembers),
		trackers: db.Collection(store.ResumeTrackers),
	}
	h.repo = tracker.NewRepository(h.trackers, nil, tracker.Options{Now: clock.Now})
	h.engine = NewEngine(nil, nil, DefaultChecks(tracker.DefaultHoursThreshold, h.search, h.writer, h.repo, nil)...)
	h.drafter = NewDrafter(h.search, h.writer, h.repo, h.notifier, nil, nil)
	h.drafter.now = clock.Now
	h.processor = NewProcessor(h.events, h.repo, h.engine, h.drafter, nil, nil, nil)
	h.processor.now = clock.Now
	h.reviewer = NewReviewer(h.search, h.writer, h.blobs, "resumes", h.repo, nil, nil)
	return h
}

func entry(project string, hours float64) tracker.KeyMemberEntry {
	return tracker.KeyMemberEntry{
		EmployeeDisplayName: "Doe, Jane - 500",
		ProjectNumber:       project,
		SubjectArea:         "fsu",
		ProjectRoleName:     "PM",
		JobHours:            hours,
		JobFamilyCode:       "ENCE",
	}
}

const resumeXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
	`<w:p><w:r><w:t>Jane Doe</w:t></w:r></w:p>` +
	`<w:p><w:r><w:t>Work Experience</w:t></w:r></w:p>` +
	`<w:p><w:r><w:t>Architect, Fort Meyer Beach, USA 2023</w:t></w:r></w:p>` +
	`<w:sectPr/></w:body></w:document>`

func resumeDocx(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := f.Write([]byte(resumeXML)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}
