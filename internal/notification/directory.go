package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/resume-updater/internal/store"
)

const metadataPartition = "metadata"

var ErrNoAddress = errors.New("no e-mail address on record")

// Employee is an entry of the employee_metadata collection.
type Employee struct {
	ID           string `json:"id"`
	PartitionKey string `json:"partitionKey"`
	EmployeeID   string `json:"employee_id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Department   string `json:"department,omitempty"`
}

// Directory resolves employees from the metadata collection.
type Directory struct {
	metadata store.Collection
}

func NewDirectory(metadata store.Collection) *Directory {
	return &Directory{metadata: metadata}
}

func (d *Directory) Lookup(ctx context.Context, employeeID string) (*Employee, error) {
	raw, err := d.metadata.Query(ctx, metadataPartition, store.Eq("employee_id", employeeID))
	if err != nil {
		return nil, fmt.Errorf("query employee metadata: %w", err)
	}

	employees, err := store.DecodeAll[Employee](raw)
	if err != nil {
		return nil, fmt.Errorf("decode employee metadata: %w", err)
	}
	if len(employees) == 0 {
		return nil, fmt.Errorf("employee %s: %w", employeeID, store.ErrNotFound)
	}
	return &employees[0], nil
}

func (d *Directory) Email(ctx context.Context, employeeID string) (string, error) {
	e, err := d.Lookup(ctx, employeeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("employee %s: %w", employeeID, ErrNoAddress)
		}
		return "", err
	}
	if strings.TrimSpace(e.Email) == "" {
		return "", fmt.Errorf("employee %s: %w", employeeID, ErrNoAddress)
	}
	return e.Email, nil
}

// Register stores or replaces an employee record.
func (d *Directory) Register(ctx context.Context, e Employee) error {
	e.ID = "metadata-" + e.EmployeeID
	e.PartitionKey = metadataPartition

	item := store.Item{ID: e.ID, PartitionKey: metadataPartition, Body: e}
	err := d.metadata.Create(ctx, item)
	if errors.Is(err, store.ErrDuplicate) {
		err = d.metadata.Replace(ctx, item)
	}
	if err != nil {
		return fmt.Errorf("store employee metadata: %w", err)
	}
	return nil
}
