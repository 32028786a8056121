// Package ai describes the language-model operations the resume pipeline relies on.
package ai

import (
	"context"
	"time"
)

// Experience is a drafted work-experience entry.
type Experience struct {
	// Title names the project, its location and year.
	Title string
	// Summary is the past-tense blurb, phrased "<estimated start> to Present".
	Summary string
}

// Section is a free-text description split into a heading and its body.
type Section struct {
	Title string
	Body  string
}

// DraftRequest carries everything the model sees when drafting an entry.
type DraftRequest struct {
	Resume  string
	Project string
	// Today anchors the estimated start date.
	Today time.Time
}

// Anchor is the phrase a new entry is inserted before.
type Anchor struct {
	Analysis string
	Phrase   string
}

// Writer is implemented by every provider that can draft and place resume entries.
type Writer interface {
	DraftExperience(ctx context.Context, req DraftRequest) (*Experience, error)
	AlreadyOnResume(ctx context.Context, resume, project string) (bool, error)
	SplitDescription(ctx context.Context, text string) (*Section, error)
	LocateAnchor(ctx context.Context, document string) (*Anchor, error)
}
