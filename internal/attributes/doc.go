// Package attributes evaluates user-supplied expressions for span attributes,
// trace IDs and parent span IDs.
//
// Expressions use the expr language. Two environments exist:
//   - matrix environment (Evaluator): rows, columns, values, flat, total,
//     max, cop_x, cop_y, has_cop, computed from one decoded matrix
//   - session environment (TraceIDEvaluator, ParentIDEvaluator): address,
//     name, and env (the process environment)
//
// Invalid trace IDs are hashed with SHA-256 to produce valid IDs.
// Invalid parent IDs result in a null parent (zero span ID).
package attributes
