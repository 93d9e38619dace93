package attributes

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TraceIDEvaluator handles evaluation and validation of trace ID expressions.
type TraceIDEvaluator struct {
	program *vm.Program
}

// NewTraceIDEvaluator compiles exprStr against the session environment.
// If exprStr is empty, the evaluator yields a zero trace ID and the SDK picks a random one.
func NewTraceIDEvaluator(exprStr string) (*TraceIDEvaluator, error) {
	if exprStr == "" {
		return &TraceIDEvaluator{}, nil
	}

	program, err := expr.Compile(exprStr, expr.Env(sessionTypes))
	if err != nil {
		return nil, fmt.Errorf("failed to compile trace-id expression: %w", err)
	}
	return &TraceIDEvaluator{program: program}, nil
}

// EvaluateAndValidate evaluates the expression and returns the trace ID plus
// warning attributes for the span when the result had to be hashed.
func (e *TraceIDEvaluator) EvaluateAndValidate(session *SessionInfo) (trace.TraceID, []attribute.KeyValue, error) {
	if e.program == nil {
		return trace.TraceID{}, nil, nil
	}
	if session == nil {
		return trace.TraceID{}, nil, fmt.Errorf("no session info available")
	}

	output, err := expr.Run(e.program, sessionEnv(session))
	if err != nil {
		return trace.TraceID{}, nil, fmt.Errorf("failed to evaluate trace-id expression: %w", err)
	}

	resultStr := fmt.Sprint(output)

	if len(resultStr) == 32 {
		if traceID, err := trace.TraceIDFromHex(resultStr); err == nil {
			return traceID, nil, nil
		}
	}

	// not a trace id: first 16 bytes of SHA-256
	hash := sha256.Sum256([]byte(resultStr))
	traceID, err := trace.TraceIDFromHex(hex.EncodeToString(hash[:16]))
	if err != nil {
		return trace.TraceID{}, nil, fmt.Errorf("failed to create trace ID from hash: %w", err)
	}

	warnings := []attribute.KeyValue{
		attribute.String("_trace_id_expr_result", resultStr),
		attribute.String("_trace_id_invalid_warning", fmt.Sprintf("Expression result %q is not a valid 32-char hex trace ID, used SHA-256 hash instead", resultStr)),
	}
	return traceID, warnings, nil
}

// ParentIDEvaluator handles evaluation and validation of parent span ID expressions.
type ParentIDEvaluator struct {
	program *vm.Program
}

// NewParentIDEvaluator compiles exprStr against the session environment.
// If exprStr is empty, the session span has no parent.
func NewParentIDEvaluator(exprStr string) (*ParentIDEvaluator, error) {
	if exprStr == "" {
		return &ParentIDEvaluator{}, nil
	}

	program, err := expr.Compile(exprStr, expr.Env(sessionTypes))
	if err != nil {
		return nil, fmt.Errorf("failed to compile parent-id expression: %w", err)
	}
	return &ParentIDEvaluator{program: program}, nil
}

// EvaluateAndValidate returns the parent span ID, or a zero ID plus warnings
// when the result is not 16 hex characters.
func (e *ParentIDEvaluator) EvaluateAndValidate(session *SessionInfo) (trace.SpanID, []attribute.KeyValue, error) {
	if e.program == nil {
		return trace.SpanID{}, nil, nil
	}
	if session == nil {
		return trace.SpanID{}, nil, fmt.Errorf("no session info available")
	}

	output, err := expr.Run(e.program, sessionEnv(session))
	if err != nil {
		return trace.SpanID{}, nil, fmt.Errorf("failed to evaluate parent-id expression: %w", err)
	}

	resultStr := fmt.Sprint(output)

	if len(resultStr) == 16 {
		if spanID, err := trace.SpanIDFromHex(resultStr); err == nil {
			return spanID, nil, nil
		}
	}

	warnings := []attribute.KeyValue{
		attribute.String("_parent_id_expr_result", resultStr),
		attribute.String("_parent_id_invalid_warning", fmt.Sprintf("Expression result %q is not a valid 16-char hex span ID, using null parent ID instead", resultStr)),
	}
	return trace.SpanID{}, warnings, nil
}
