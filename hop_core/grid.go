package hop_core

import (
	"fmt"
	"math"
	"strings"
)

// StateToGrid arranges a state of n² units row-major into an n×n grid,
// mapping +1 to white (1.0) and -1 to black (0.0). Unit k lands in cell
// (k/n, k%n).
func StateToGrid(state []int) ([][]float64, error) {
	side, err := gridSide(len(state))
	if err != nil {
		return nil, err
	}
	grid := make([][]float64, side)
	for r := 0; r < side; r++ {
		grid[r] = make([]float64, side)
		for c := 0; c < side; c++ {
			if state[r*side+c] > 0 {
				grid[r][c] = 1.0
			}
		}
	}
	return grid, nil
}

// GridToState is the inverse of StateToGrid; cells >= 0.5 become +1.
func GridToState(grid [][]float64) ([]int, error) {
	side := len(grid)
	if side == 0 {
		return nil, fmt.Errorf("%w: empty grid", ErrInvalidPattern)
	}
	state := make([]int, 0, side*side)
	for r, row := range grid {
		if len(row) != side {
			return nil, fmt.Errorf("%w: grid row %d has %d cells, want %d", ErrDimensionMismatch, r, len(row), side)
		}
		for _, v := range row {
			if v >= 0.5 {
				state = append(state, 1)
			} else {
				state = append(state, -1)
			}
		}
	}
	return state, nil
}

// ParseASCIIPattern reads a pattern drawn as text, one row per line.
// '#', 'X', 'x', '*' and '1' are +1; '.', ' ', '-', '_' and '0' are -1.
// All lines must have the same width.
func ParseASCIIPattern(lines []string) ([]int, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: empty ascii pattern", ErrInvalidPattern)
	}
	width := len(lines[0])
	state := make([]int, 0, width*len(lines))
	for r, line := range lines {
		if len(line) != width {
			return nil, fmt.Errorf("%w: ascii row %d has width %d, want %d", ErrDimensionMismatch, r, len(line), width)
		}
		for c, ch := range line {
			switch ch {
			case '#', 'X', 'x', '*', '1':
				state = append(state, 1)
			case '.', ' ', '-', '_', '0':
				state = append(state, -1)
			default:
				return nil, fmt.Errorf("%w: ascii cell (%d,%d) is %q", ErrInvalidPattern, r, c, ch)
			}
		}
	}
	if len(state) == 0 {
		return nil, fmt.Errorf("%w: empty ascii pattern", ErrInvalidPattern)
	}
	return state, nil
}

// FormatASCII renders a state of n² units as n lines of '#' and '.'.
func FormatASCII(state []int) (string, error) {
	side, err := gridSide(len(state))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.Grow(side * (side + 1))
	for i, v := range state {
		if v > 0 {
			b.WriteByte('#')
		} else {
			b.WriteByte('.')
		}
		if (i+1)%side == 0 {
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

func gridSide(n int) (int, error) {
	side := int(math.Round(math.Sqrt(float64(n))))
	if n == 0 || side*side != n {
		return 0, fmt.Errorf("%w: %d units do not form a square grid", ErrDimensionMismatch, n)
	}
	return side, nil
}
