package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/spigell/resume-updater/internal/tracker"
)

type countingCheck struct {
	toggle
	name  string
	pass  bool
	err   error
	calls int
}

func (c *countingCheck) Name() string { return c.name }

func (c *countingCheck) Evaluate(context.Context, *tracker.Tracker) (Verdict, error) {
	c.calls++
	return Verdict{Pass: c.pass}, c.err
}

func TestEngineStopsAtFirstFailure(t *testing.T) {
	first := &countingCheck{name: "first", pass: false}
	second := &countingCheck{name: "second", pass: true}
	engine := NewEngine(nil, nil, first, second)

	fire, err := engine.ShouldTrigger(context.Background(), &tracker.Tracker{})
	if err != nil {
		t.Fatalf("ShouldTrigger: %v", err)
	}
	if fire || second.calls != 0 {
		t.Fatalf("evaluation must stop at the first failing check")
	}
}

func TestEngineSkipsDisabledChecks(t *testing.T) {
	blocked := &countingCheck{name: "blocked", pass: false}
	checks := []Check{blocked, &countingCheck{name: "open", pass: true}}
	DisableByName(checks, "blocked", "maintenance")
	engine := NewEngine(nil, nil, checks...)

	fire, err := engine.ShouldTrigger(context.Background(), &tracker.Tracker{})
	if err != nil {
		t.Fatalf("ShouldTrigger: %v", err)
	}
	if !fire || blocked.calls != 0 {
		t.Fatalf("disabled check must be skipped")
	}

	statuses := engine.Describe()
	if len(statuses) != 2 || statuses[0].Enabled || statuses[0].Reason != "maintenance" || !statuses[1].Enabled {
		t.Fatalf("unexpected statuses %+v", statuses)
	}
}

func TestEngineWrapsCheckError(t *testing.T) {
	boom := errors.New("boom")
	engine := NewEngine(nil, nil, &countingCheck{name: "broken", err: boom})

	_, err := engine.ShouldTrigger(context.Background(), &tracker.Tracker{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestStatusCheck(t *testing.T) {
	check := NewStatusCheck()
	for _, status := range []tracker.Status{tracker.StatusNo, tracker.StatusInProgress, tracker.StatusYes, tracker.StatusDiscarded} {
		v, err := check.Evaluate(context.Background(), &tracker.Tracker{AddedToResume: status})
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if v.Pass != (status == tracker.StatusNo) {
			t.Fatalf("status %s: unexpected verdict %+v", status, v)
		}
	}
}

func TestThresholdCheckDefault(t *testing.T) {
	check := NewThresholdCheck(0)

	v, _ := check.Evaluate(context.Background(), &tracker.Tracker{TotalHours: tracker.DefaultHoursThreshold})
	if !v.Pass {
		t.Fatalf("threshold must be inclusive")
	}
	v, _ = check.Evaluate(context.Background(), &tracker.Tracker{TotalHours: 39.999})
	if v.Pass || v.Reason == "" {
		t.Fatalf("expected a failing verdict with a reason, got %+v", v)
	}
}

func TestReconcileAlreadyOnResumeKeepsLaterStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	triggered(t, h, "100")

	check := NewResumeCheck(h.search, h.writer, h.repo, nil).(*resumeCheck)
	tr, _ := h.repo.Get(ctx, "500", "100")
	version := tr.Version

	if err := check.reconcileAlreadyOnResume(ctx, tr); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	stored, _ := h.repo.Get(ctx, "500", "100")
	if stored.AddedToResume != tracker.StatusInProgress || stored.Version != version {
		t.Fatalf("only a tracker at status no may be marked yes, got %+v", stored)
	}
}
