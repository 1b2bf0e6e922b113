package errmodel

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Category values for compact errors.
const (
	CategoryValidation = "validation"
	CategoryTransport  = "transport"
	CategoryPolicy     = "policy"
	CategorySystem     = "system"
)

// Codes shared across packages. Callers match on these with IsCode.
const (
	CodeUnauthorized  = "unauthorized"
	CodeUnknownTool   = "unknown_tool"
	CodeInvalidInput  = "invalid_input"
	CodeBadFrame      = "bad_frame"
	CodeDuplicateTool = "duplicate_tool"
	CodeLintFailed    = "lint_failed"
	CodeNotFound      = "not_found"
	CodeUnavailable   = "unavailable"
)

// Error is the compact error payload returned by APIs and used internally.
// It implements the error interface.
type Error struct {
	Category string         `json:"category"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Context  map[string]any `json:"context,omitempty"`
	Causes   []Error        `json:"causes,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// New constructs a new compact error.
func New(category, code, message string, ctx map[string]any, causes ...error) *Error {
	ce := &Error{Category: category, Code: code, Message: truncate(message, 512)}
	if len(ctx) > 0 {
		ce.Context = truncateContext(ctx)
	}
	for _, c := range causes {
		if c == nil {
			continue
		}
		ce.Causes = append(ce.Causes, *From(c))
	}
	return ce
}

// From converts any error into a compact Error. If err is already *Error, it's returned as-is.
func From(err error) *Error {
	var ce *Error
	if err == nil {
		return nil
	}
	if errors.As(err, &ce) {
		return ce
	}
	// Default to system/internal for unknown error types.
	return &Error{Category: CategorySystem, Code: "internal", Message: truncate(err.Error(), 512)}
}

// Convenience constructors.
func Validation(code, message string, ctx map[string]any) *Error {
	return New(CategoryValidation, code, message, ctx)
}

func Policy(code, message string, ctx map[string]any) *Error {
	return New(CategoryPolicy, code, message, ctx)
}

func System(code, message string, ctx map[string]any, cause error) *Error {
	if cause != nil {
		return New(CategorySystem, code, message, ctx, cause)
	}
	return New(CategorySystem, code, message, ctx)
}

// Unauthorized is the AuthorizationError: no credential or one that failed verification.
func Unauthorized(message string, cause error) *Error {
	if cause != nil {
		return New(CategoryPolicy, CodeUnauthorized, message, nil, cause)
	}
	return New(CategoryPolicy, CodeUnauthorized, message, nil)
}

// UnknownTool reports a lookup of a tool name that is not registered.
func UnknownTool(name string) *Error {
	return Validation(CodeUnknownTool, "tool not found", map[string]any{"tool": name})
}

// InvalidInput reports the first field that failed schema validation.
// expected is the declared type, or "absent" for fields the schema does not declare.
func InvalidInput(tool, field, expected, reason string) *Error {
	return Validation(CodeInvalidInput, "tool input validation failed", map[string]any{
		"tool":     tool,
		"field":    field,
		"expected": expected,
		"error":    reason,
	})
}

// DuplicateTool is raised when a registry already holds a definition with that name.
func DuplicateTool(name string) *Error {
	return System(CodeDuplicateTool, "tool already registered", map[string]any{"tool": name}, nil)
}

// Framing reports a protocol message that could not be decoded; it ends the session.
func Framing(message string, cause error) *Error {
	if cause != nil {
		return New(CategoryTransport, CodeBadFrame, message, nil, cause)
	}
	return New(CategoryTransport, CodeBadFrame, message, nil)
}

// HTTPStatus maps category/code to HTTP status.
func HTTPStatus(e *Error) int {
	if e == nil {
		return http.StatusInternalServerError
	}
	switch e.Category {
	case CategoryValidation:
		// Special-case common codes
		switch e.Code {
		case CodeNotFound, CodeUnknownTool:
			return http.StatusNotFound
		case "conflict":
			return http.StatusConflict
		default:
			return http.StatusBadRequest
		}
	case CategoryPolicy:
		switch e.Code {
		case CodeUnauthorized:
			return http.StatusUnauthorized
		case "forbidden":
			return http.StatusForbidden
		case "method_not_allowed":
			return http.StatusMethodNotAllowed
		default:
			return http.StatusForbidden
		}
	case CategoryTransport:
		return http.StatusBadRequest
	case CategorySystem:
		if e.Code == CodeUnavailable {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// WriteHTTP writes a compact error envelope to the response writer.
// It attempts to include the trace_id if present in ctx.
func WriteHTTP(w http.ResponseWriter, r *http.Request, err error) {
	ce := From(err)
	if ce == nil {
		ce = &Error{Category: CategorySystem, Code: "internal", Message: "unknown error"}
	}
	status := HTTPStatus(ce)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	traceID := ""
	if r != nil {
		if span := trace.SpanFromContext(r.Context()); span != nil {
			sc := span.SpanContext()
			if sc.HasTraceID() {
				traceID = sc.TraceID().String()
			}
		}
	}
	// Envelope { error: Error, trace_id?: string }
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":    ce,
		"trace_id": traceID,
	})
}

// truncate trims a string to max characters.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// truncateContext trims long string values in the context map.
func truncateContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		switch t := v.(type) {
		case string:
			out[k] = truncate(t, 256)
		default:
			// Try to stringify primitive slices to keep payload compact.
			b, err := json.Marshal(t)
			if err == nil && len(b) > 0 {
				// Avoid giant blobs; keep a preview
				s := string(b)
				if len(s) > 256 {
					s = truncate(s, 256)
				}
				out[k] = s
			} else {
				out[k] = t
			}
		}
	}
	return out
}

// IsCategory checks if err belongs to a specific category.
func IsCategory(err error, category string) bool {
	ce := From(err)
	return ce != nil && strings.EqualFold(ce.Category, category)
}

// IsCode reports whether err is a compact error carrying code.
func IsCode(err error, code string) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Code == code
}

// Field returns a string context value such as "tool" or "field", or "".
func Field(err error, key string) string {
	ce := From(err)
	if ce == nil || ce.Context == nil {
		return ""
	}
	s, _ := ce.Context[key].(string)
	return s
}
