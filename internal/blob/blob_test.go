package blob

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
)

func TestUploadDownload(t *testing.T) {
	ctx := context.Background()
	s := New(afero.NewMemMapFs(), "/data")

	if err := s.Upload(ctx, "resumes", "500.docx", []byte("v1"), true); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := s.Upload(ctx, "resumes", "500.docx", []byte("v2"), true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	data, err := s.Download(ctx, "resumes", "500.docx")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(data) != "v2" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestUploadWithoutOverwrite(t *testing.T) {
	ctx := context.Background()
	s := New(afero.NewMemMapFs(), "")

	if err := s.Upload(ctx, "resumes", "a.docx", []byte("v1"), false); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	if err := s.Upload(ctx, "resumes", "a.docx", []byte("v2"), false); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestDownloadMissing(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/data")

	if _, err := s.Download(context.Background(), "resumes", "missing.docx"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRejectsTraversal(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/data")

	if _, err := s.Download(context.Background(), "resumes", "../secret"); err == nil {
		t.Fatalf("expected error for path traversal")
	}
	if err := s.Upload(context.Background(), "", "a.docx", nil, true); err == nil {
		t.Fatalf("expected error for empty container")
	}
}
