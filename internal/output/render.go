package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/mrzor/matrix-streamer/internal/matrix"
)

// shades maps increasing pressure to denser glyphs.
const shades = " .:-=+*#%@"

// RenderOption configures a Renderer.
type RenderOption func(*Renderer)

// WithThreshold zeroes values at or below n and shifts the rest down by n.
func WithThreshold(n int) RenderOption {
	return func(r *Renderer) {
		r.threshold = n
	}
}

// WithGain multiplies values after thresholding.
func WithGain(g int) RenderOption {
	return func(r *Renderer) {
		if g > 0 {
			r.gain = g
		}
	}
}

// WithMirror flips columns left-right.
func WithMirror(on bool) RenderOption {
	return func(r *Renderer) {
		r.mirror = on
	}
}

// WithScale sets the value drawn with the densest glyph. Defaults to 255.
func WithScale(n int) RenderOption {
	return func(r *Renderer) {
		if n > 0 {
			r.scale = n
		}
	}
}

// Renderer draws matrices as text.
type Renderer struct {
	w         io.Writer
	threshold int
	gain      int
	mirror    bool
	scale     int
}

// NewRenderer writes frames to w.
func NewRenderer(w io.Writer, opts ...RenderOption) *Renderer {
	r := &Renderer{w: w, gain: 1, scale: 255}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Remap returns a new matrix with threshold, gain and mirroring applied.
// The input is not modified.
func (r *Renderer) Remap(m *matrix.Matrix) *matrix.Matrix {
	out := matrix.New(m.Dimensions())
	for i, row := range m.Values {
		for j, v := range row {
			x := (int(v) - r.threshold) * r.gain
			if x < 0 {
				x = 0
			}
			if x > 0xFFFF {
				x = 0xFFFF
			}
			col := j
			if r.mirror {
				col = m.Columns - 1 - j
			}
			out.Values[i][col] = uint16(x)
		}
	}
	return out
}

// Render writes one frame followed by a summary line.
func (r *Renderer) Render(m *matrix.Matrix) error {
	remapped := r.Remap(m)

	var b strings.Builder
	for _, row := range remapped.Values {
		for _, v := range row {
			b.WriteByte(r.glyph(int(v)))
			b.WriteByte(' ')
		}
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "%s total=%d max=%d", remapped.Dimensions(), remapped.Total(), remapped.Max())
	if x, y, ok := remapped.CentreOfPressure(); ok {
		fmt.Fprintf(&b, " cop=(%.2f, %.2f)", x, y)
	}
	b.WriteByte('\n')

	_, err := io.WriteString(r.w, b.String())
	return err
}

func (r *Renderer) glyph(v int) byte {
	if v <= 0 {
		return shades[0]
	}
	idx := v * (len(shades) - 1) / r.scale
	if idx < 1 {
		idx = 1
	}
	if idx > len(shades)-1 {
		idx = len(shades) - 1
	}
	return shades[idx]
}
