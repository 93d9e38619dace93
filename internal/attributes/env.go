package attributes

import (
	"os"
	"strings"

	"github.com/mrzor/matrix-streamer/internal/matrix"
)

// SessionInfo describes the session a trace is recorded for.
type SessionInfo struct {
	Address string
	Name    string
	Env     map[string]string
}

// NewSessionInfo captures the current process environment alongside the device identity.
func NewSessionInfo(address, name string) *SessionInfo {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return &SessionInfo{Address: address, Name: name, Env: env}
}

// sessionTypes declares the session environment for type checking.
var sessionTypes = map[string]interface{}{
	"address": "",
	"name":    "",
	"env":     map[string]string{},
}

func sessionEnv(s *SessionInfo) map[string]interface{} {
	env := s.Env
	if env == nil {
		env = map[string]string{}
	}
	return map[string]interface{}{
		"address": s.Address,
		"name":    s.Name,
		"env":     env,
	}
}

// matrixTypes declares the matrix environment for type checking.
var matrixTypes = map[string]interface{}{
	"rows":    0,
	"columns": 0,
	"values":  [][]int{},
	"flat":    []int{},
	"total":   0,
	"max":     0,
	"cop_x":   0.0,
	"cop_y":   0.0,
	"has_cop": false,
}

func matrixEnv(m *matrix.Matrix) map[string]interface{} {
	values := make([][]int, len(m.Values))
	for r, row := range m.Values {
		values[r] = make([]int, len(row))
		for c, v := range row {
			values[r][c] = int(v)
		}
	}
	x, y, ok := m.CentreOfPressure()

	return map[string]interface{}{
		"rows":    m.Rows,
		"columns": m.Columns,
		"values":  values,
		"flat":    m.Flat(),
		"total":   m.Total(),
		"max":     m.Max(),
		"cop_x":   x,
		"cop_y":   y,
		"has_cop": ok,
	}
}
