package matrix

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrBadDimensions is returned when the dimensions characteristic is not exactly two bytes.
	ErrBadDimensions = errors.New("dimensions must be exactly 2 bytes")
	// ErrUnsupportedWidth is returned for element widths other than 1 or 2 bytes.
	ErrUnsupportedWidth = errors.New("unsupported element width")
)

// DecodeError reports a payload whose length disagrees with the declared dimensions.
type DecodeError struct {
	Expected int
	Actual   int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("payload is %d bytes, expected %d", e.Actual, e.Expected)
}

// Dimensions is the grid shape advertised by the peripheral.
type Dimensions struct {
	Rows    int
	Columns int
}

// Cells returns rows*columns.
func (d Dimensions) Cells() int {
	return d.Rows * d.Columns
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Rows, d.Columns)
}

// DecodeDimensions parses the dimensions characteristic: rows then columns, one byte each.
func DecodeDimensions(b []byte) (Dimensions, error) {
	if len(b) != 2 {
		return Dimensions{}, fmt.Errorf("%w: got %d", ErrBadDimensions, len(b))
	}
	return Dimensions{Rows: int(b[0]), Columns: int(b[1])}, nil
}

// Encode returns the 2-byte wire form of the dimensions.
func (d Dimensions) Encode() []byte {
	return []byte{byte(d.Rows), byte(d.Columns)}
}

// Matrix is one decoded pressure snapshot.
type Matrix struct {
	Rows    int
	Columns int
	Values  [][]uint16
}

// New allocates a zeroed matrix of the given shape.
func New(dims Dimensions) *Matrix {
	values := make([][]uint16, dims.Rows)
	for r := range values {
		values[r] = make([]uint16, dims.Columns)
	}
	return &Matrix{Rows: dims.Rows, Columns: dims.Columns, Values: values}
}

// Dimensions returns the matrix shape.
func (m *Matrix) Dimensions() Dimensions {
	return Dimensions{Rows: m.Rows, Columns: m.Columns}
}

func checkWidth(width int) error {
	if width != 1 && width != 2 {
		return fmt.Errorf("%w: %d", ErrUnsupportedWidth, width)
	}
	return nil
}

// ExpectedSize returns the payload length for the given shape and element width.
func ExpectedSize(dims Dimensions, width int) int {
	return dims.Cells() * width
}

// Decode interprets payload as a row-major grid of little-endian elements.
func Decode(payload []byte, dims Dimensions, width int) (*Matrix, error) {
	if err := checkWidth(width); err != nil {
		return nil, err
	}

	expected := ExpectedSize(dims, width)
	if len(payload) != expected {
		return nil, &DecodeError{Expected: expected, Actual: len(payload)}
	}

	m := New(dims)
	offset := 0
	for r := 0; r < dims.Rows; r++ {
		row := m.Values[r]
		for c := 0; c < dims.Columns; c++ {
			if width == 1 {
				row[c] = uint16(payload[offset])
			} else {
				row[c] = binary.LittleEndian.Uint16(payload[offset:])
			}
			offset += width
		}
	}

	return m, nil
}

// Encode serialises the matrix in the same layout Decode reads.
// Values that do not fit the width are rejected.
func Encode(m *Matrix, width int) ([]byte, error) {
	if err := checkWidth(width); err != nil {
		return nil, err
	}

	out := make([]byte, 0, ExpectedSize(m.Dimensions(), width))
	for r, row := range m.Values {
		if len(row) != m.Columns {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", r, len(row), m.Columns)
		}
		for c, v := range row {
			if width == 1 {
				if v > 0xFF {
					return nil, fmt.Errorf("value %d at (%d,%d) does not fit in one byte", v, r, c)
				}
				out = append(out, byte(v))
				continue
			}
			out = binary.LittleEndian.AppendUint16(out, v)
		}
	}

	return out, nil
}
