// Package store defines the partitioned document collection contract used by the
// tracker pipeline. Documents are schemaless JSON bodies addressed by (partition, id).
package store

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrDuplicate       = errors.New("document already exists")
	ErrVersionConflict = errors.New("document version changed")
)

// Collection names.
const (
	KeyMembers       = "project_key_members"
	ResumeTrackers   = "resume_trackers"
	Notifications    = "notifications"
	EmployeeMetadata = "employee_metadata"
	Feedback         = "feedback"
)

// Item is a document ready to be written. Body is marshalled to JSON.
type Item struct {
	ID           string
	PartitionKey string
	Body         any
}

// Collection is a single logical container of documents.
type Collection interface {
	// Create stores a new document. It fails with ErrDuplicate when the id is taken.
	Create(ctx context.Context, item Item) error
	// Replace overwrites an existing document. It fails with ErrNotFound when absent and
	// ErrVersionConflict when an IfVersion precondition does not hold.
	Replace(ctx context.Context, item Item, opts ...ReplaceOption) error
	// Get decodes the document into out.
	Get(ctx context.Context, partition, id string, out any) error
	// Query returns the documents of a partition matching every condition, in insertion order.
	// An empty partition searches all partitions.
	Query(ctx context.Context, partition string, conds ...Condition) ([]json.RawMessage, error)
	Delete(ctx context.Context, partition, id string) error
}

// Database hands out collections by name.
type Database interface {
	Collection(name string) Collection
}

// ReplaceOptions collects the preconditions of a Replace call.
type ReplaceOptions struct {
	// IfVersion, when set, requires the stored body's "version" field to equal the value.
	IfVersion *int64
}

type ReplaceOption func(*ReplaceOptions)

// IfVersion makes Replace conditional on the currently stored version.
func IfVersion(v int64) ReplaceOption {
	return func(o *ReplaceOptions) {
		o.IfVersion = &v
	}
}

// ApplyReplaceOptions folds opts into a ReplaceOptions value.
func ApplyReplaceOptions(opts ...ReplaceOption) ReplaceOptions {
	var o ReplaceOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// DecodeAll unmarshals raw query results into a typed slice.
func DecodeAll[T any](docs []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := json.Unmarshal(doc, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
