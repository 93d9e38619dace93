package attributes

import (
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestTraceIDEvaluator_ValidHex(t *testing.T) {
	evaluator, err := NewTraceIDEvaluator(`env["TRACE_ID"]`)
	if err != nil {
		t.Fatalf("NewTraceIDEvaluator() error = %v", err)
	}

	session := &SessionInfo{
		Address: "AA:BB",
		Env:     map[string]string{"TRACE_ID": "0123456789abcdef0123456789abcdef"},
	}

	traceID, warnings, err := evaluator.EvaluateAndValidate(session)
	if err != nil {
		t.Fatalf("EvaluateAndValidate() error = %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("Expected no warnings for valid trace ID, got %d", len(warnings))
	}

	expectedTraceID, err := trace.TraceIDFromHex("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("trace.TraceIDFromHex() error = %v", err)
	}
	if traceID != expectedTraceID {
		t.Errorf("traceID = %v, want %v", traceID, expectedTraceID)
	}
}

func TestTraceIDEvaluator_HashedFromAddress(t *testing.T) {
	evaluator, err := NewTraceIDEvaluator(`address + "/" + name`)
	if err != nil {
		t.Fatalf("NewTraceIDEvaluator() error = %v", err)
	}

	session := &SessionInfo{Address: "AA:BB", Name: "Insole"}

	traceID, warnings, err := evaluator.EvaluateAndValidate(session)
	if err != nil {
		t.Fatalf("EvaluateAndValidate() error = %v", err)
	}
	if traceID == (trace.TraceID{}) {
		t.Error("Expected non-zero trace ID (hashed)")
	}
	if len(warnings) != 2 {
		t.Fatalf("Expected 2 warnings for hashed trace ID, got %d", len(warnings))
	}
	if warnings[0].Key != "_trace_id_expr_result" || warnings[0].Value.AsString() != "AA:BB/Insole" {
		t.Errorf("warnings[0] = %v, want _trace_id_expr_result=AA:BB/Insole", warnings[0])
	}
	if warnings[1].Key != "_trace_id_invalid_warning" {
		t.Errorf("warnings[1].Key = %q, want _trace_id_invalid_warning", warnings[1].Key)
	}

	// hashing is deterministic so one device maps to one trace
	again, _, err := evaluator.EvaluateAndValidate(&SessionInfo{Address: "AA:BB", Name: "Insole"})
	if err != nil {
		t.Fatalf("EvaluateAndValidate() error = %v", err)
	}
	if again != traceID {
		t.Errorf("trace ID not stable: %v != %v", again, traceID)
	}
}

func TestTraceIDEvaluator_NoExpression(t *testing.T) {
	evaluator, err := NewTraceIDEvaluator("")
	if err != nil {
		t.Fatalf("NewTraceIDEvaluator(\"\") error = %v", err)
	}

	traceID, warnings, err := evaluator.EvaluateAndValidate(nil)
	if err != nil {
		t.Fatalf("EvaluateAndValidate() error = %v", err)
	}
	if traceID != (trace.TraceID{}) {
		t.Error("Expected zero trace ID when no expression is configured")
	}
	if len(warnings) != 0 {
		t.Errorf("Expected no warnings, got %d", len(warnings))
	}
}

func TestTraceIDEvaluator_Errors(t *testing.T) {
	if _, err := NewTraceIDEvaluator(`total`); err == nil {
		t.Error("Expected compile error: matrix variables are not in the session environment")
	}

	evaluator, err := NewTraceIDEvaluator(`address`)
	if err != nil {
		t.Fatalf("NewTraceIDEvaluator() error = %v", err)
	}
	if _, _, err := evaluator.EvaluateAndValidate(nil); err == nil {
		t.Error("Expected error for nil session")
	}
}

func TestParentIDEvaluator_ValidHex(t *testing.T) {
	evaluator, err := NewParentIDEvaluator(`env["PARENT_SPAN_ID"]`)
	if err != nil {
		t.Fatalf("NewParentIDEvaluator() error = %v", err)
	}

	session := &SessionInfo{Env: map[string]string{"PARENT_SPAN_ID": "0123456789abcdef"}}

	spanID, warnings, err := evaluator.EvaluateAndValidate(session)
	if err != nil {
		t.Fatalf("EvaluateAndValidate() error = %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("Expected no warnings, got %d", len(warnings))
	}

	want, _ := trace.SpanIDFromHex("0123456789abcdef")
	if spanID != want {
		t.Errorf("spanID = %v, want %v", spanID, want)
	}
}

func TestParentIDEvaluator_InvalidHex(t *testing.T) {
	evaluator, err := NewParentIDEvaluator(`env["PARENT_SPAN_ID"]`)
	if err != nil {
		t.Fatalf("NewParentIDEvaluator() error = %v", err)
	}

	spanID, warnings, err := evaluator.EvaluateAndValidate(&SessionInfo{})
	if err != nil {
		t.Fatalf("EvaluateAndValidate() error = %v", err)
	}
	if spanID != (trace.SpanID{}) {
		t.Error("Expected zero span ID for invalid parent")
	}
	if len(warnings) != 2 {
		t.Errorf("Expected 2 warnings, got %d", len(warnings))
	}
}

func TestParentIDEvaluator_NoExpression(t *testing.T) {
	evaluator, err := NewParentIDEvaluator("")
	if err != nil {
		t.Fatalf("NewParentIDEvaluator(\"\") error = %v", err)
	}

	spanID, warnings, err := evaluator.EvaluateAndValidate(nil)
	if err != nil {
		t.Fatalf("EvaluateAndValidate() error = %v", err)
	}
	if spanID != (trace.SpanID{}) || len(warnings) != 0 {
		t.Error("Expected zero span ID and no warnings when no expression is configured")
	}
}

func TestNewSessionInfo(t *testing.T) {
	t.Setenv("MATRIX_STREAMER_TEST_VAR", "x=y")

	s := NewSessionInfo("AA:BB", "Insole")
	if s.Address != "AA:BB" || s.Name != "Insole" {
		t.Errorf("session = %+v", s)
	}
	if s.Env["MATRIX_STREAMER_TEST_VAR"] != "x=y" {
		t.Errorf("Env[MATRIX_STREAMER_TEST_VAR] = %q, want x=y", s.Env["MATRIX_STREAMER_TEST_VAR"])
	}
}
