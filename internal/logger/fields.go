package logger

import (
	"strings"

	"go.uber.org/zap"
)

// Structured field keys shared across packages.
const (
	FieldProvider  = "ai_provider"
	FieldModel     = "ai_model"
	FieldOperation = "operation"

	FieldTrackerID     = "tracker_id"
	FieldEmployeeID    = "employee_id"
	FieldProjectNumber = "project_number"
)

// StringField is a key/value pair rendered as a zap string field.
type StringField struct {
	Key   string
	Value string
}

// StringFields trims every pair and drops the ones with an empty key or value.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		key, value := strings.TrimSpace(f.Key), strings.TrimSpace(f.Value)
		if key == "" || value == "" {
			continue
		}
		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches fields to logger. A nil logger becomes a no-op one.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// LLMFields describes one model call.
func LLMFields(provider, model, operation string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
		StringField{Key: FieldOperation, Value: operation},
	)
}

// WithLLMCall attaches provider, model and operation to logger.
func WithLLMCall(logger *zap.Logger, provider, model, operation string) *zap.Logger {
	return WithFields(logger, LLMFields(provider, model, operation)...)
}

// TrackerFields identifies a resume tracker. Empty values are dropped.
func TrackerFields(trackerID, employeeID, projectNumber string) []zap.Field {
	return StringFields(
		StringField{Key: FieldTrackerID, Value: trackerID},
		StringField{Key: FieldEmployeeID, Value: employeeID},
		StringField{Key: FieldProjectNumber, Value: projectNumber},
	)
}

// WithTracker attaches tracker identity to logger.
func WithTracker(logger *zap.Logger, trackerID, employeeID, projectNumber string) *zap.Logger {
	return WithFields(logger, TrackerFields(trackerID, employeeID, projectNumber)...)
}
