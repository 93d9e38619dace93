package matrix

// Flat returns all values in row-major order.
func (m *Matrix) Flat() []int {
	flat := make([]int, 0, m.Rows*m.Columns)
	for _, row := range m.Values {
		for _, v := range row {
			flat = append(flat, int(v))
		}
	}
	return flat
}

// Total returns the sum of all cells.
func (m *Matrix) Total() int {
	total := 0
	for _, row := range m.Values {
		for _, v := range row {
			total += int(v)
		}
	}
	return total
}

// Max returns the largest cell value, or 0 for an empty matrix.
func (m *Matrix) Max() int {
	highest := 0
	for _, row := range m.Values {
		for _, v := range row {
			if int(v) > highest {
				highest = int(v)
			}
		}
	}
	return highest
}

// CentreOfPressure returns the pressure-weighted centroid in cell coordinates
// (x along columns, y along rows). ok is false when the matrix carries no load.
func (m *Matrix) CentreOfPressure() (x, y float64, ok bool) {
	var total, sumX, sumY float64
	for r, row := range m.Values {
		for c, v := range row {
			w := float64(v)
			total += w
			sumX += float64(c) * w
			sumY += float64(r) * w
		}
	}
	if total == 0 {
		return 0, 0, false
	}
	return sumX / total, sumY / total, true
}
