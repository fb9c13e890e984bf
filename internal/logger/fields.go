package logger

import (
	"strings"

	"go.uber.org/zap"
)

// Structured field keys shared by the AI path.
const (
	FieldProvider  = "ai_provider"
	FieldModel     = "ai_model"
	FieldOperation = "ai_operation"
	FieldSource    = "ai_source"
	FieldScope     = "scope"
)

// pairs turns alternating key/value strings into zap fields, trimming both
// and skipping pairs with an empty side. A trailing key without a value is
// ignored.
func pairs(kv ...string) []zap.Field {
	out := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, value := strings.TrimSpace(kv[i]), strings.TrimSpace(kv[i+1])
		if key == "" || value == "" {
			continue
		}
		out = append(out, zap.String(key, value))
	}
	return out
}

// With attaches fields to log. A nil log becomes a no-op logger.
func With(log *zap.Logger, fields ...zap.Field) *zap.Logger {
	if log == nil {
		log = zap.NewNop()
	}
	if len(fields) == 0 {
		return log
	}
	return log.With(fields...)
}

// CommonFields describes the AI provider and model. Empty values are left out.
func CommonFields(provider, model string) []zap.Field {
	return pairs(FieldProvider, provider, FieldModel, model)
}

func WithCommonFields(log *zap.Logger, provider, model string) *zap.Logger {
	return With(log, CommonFields(provider, model)...)
}

// OperationFields describes an artifact operation and where its result came
// from.
func OperationFields(operation, source string) []zap.Field {
	return pairs(FieldOperation, operation, FieldSource, source)
}

// ScopeField names the budget scope a call is charged to.
func ScopeField(scope string) zap.Field {
	return zap.String(FieldScope, scope)
}
