package attributes

import (
	"fmt"
	"reflect"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/op/go-logging"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mrzor/matrix-streamer/internal/config"
	"github.com/mrzor/matrix-streamer/internal/matrix"
)

var log = logging.MustGetLogger("attributes")

// Evaluator handles compilation and evaluation of custom attribute expressions.
type Evaluator struct {
	customAttrs   []config.CustomAttribute
	compiledExprs []*vm.Program
}

// NewEvaluator pre-compiles all custom attribute expressions against the matrix environment.
func NewEvaluator(customAttrs []config.CustomAttribute) (*Evaluator, error) {
	compiledExprs := make([]*vm.Program, len(customAttrs))
	for i, attr := range customAttrs {
		program, err := expr.Compile(attr.Expression, expr.Env(matrixTypes))
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression for attribute %q: %w", attr.Name, err)
		}
		compiledExprs[i] = program
	}

	return &Evaluator{
		customAttrs:   customAttrs,
		compiledExprs: compiledExprs,
	}, nil
}

// Len returns the number of configured attributes.
func (e *Evaluator) Len() int {
	return len(e.customAttrs)
}

// Evaluate runs every expression against m.
// Expressions that fail at runtime are logged and skipped.
func (e *Evaluator) Evaluate(m *matrix.Matrix) ([]attribute.KeyValue, error) {
	if len(e.customAttrs) == 0 || m == nil {
		return nil, nil
	}

	env := matrixEnv(m)

	var attrs []attribute.KeyValue
	for i, customAttr := range e.customAttrs {
		output, err := expr.Run(e.compiledExprs[i], env)
		if err != nil {
			log.Warningf("failed to evaluate expression for attribute %q: %v", customAttr.Name, err)
			continue
		}

		// maps expand into one attribute per key with dot notation
		outputValue := reflect.ValueOf(output)
		if outputValue.Kind() == reflect.Map {
			for _, key := range outputValue.MapKeys() {
				keyStr := fmt.Sprintf("%v", key.Interface())
				attrName := customAttr.Name + "." + sanitizeAttributeName(keyStr)
				attrs = append(attrs, toAttribute(attrName, outputValue.MapIndex(key).Interface()))
			}
			continue
		}

		attrs = append(attrs, toAttribute(customAttr.Name, output))
	}

	return attrs, nil
}

// toAttribute keeps scalar types and formats everything else with %v.
func toAttribute(name string, v interface{}) attribute.KeyValue {
	switch val := v.(type) {
	case bool:
		return attribute.Bool(name, val)
	case int:
		return attribute.Int(name, val)
	case int64:
		return attribute.Int64(name, val)
	case float64:
		return attribute.Float64(name, val)
	case string:
		return attribute.String(name, val)
	default:
		return attribute.String(name, fmt.Sprintf("%v", v))
	}
}

// sanitizeAttributeName replaces non-alphanumeric characters with underscores.
func sanitizeAttributeName(name string) string {
	result := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result[i] = c
		} else {
			result[i] = '_'
		}
	}
	return string(result)
}
