// Package hop_core holds the numeric core of the recall engine: the Hebbian
// model builder, the energy function and the asynchronous recovery loop.
package hop_core

import (
	"fmt"

	"hopfield_sync/hop_learnRules"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
)

// Model is an immutable Hopfield network. It is safe to share between
// goroutines; every accessor returns a copy.
type Model struct {
	n        int
	k        int
	weights  blas64.General
	bias     blas64.Vector
	memories [][]int // K×N, one stored pattern per row
	energies []float64
}

// BuildModel stores an N×K pattern set (row = unit, column = pattern) with
// the Hebbian rule.
func BuildModel(patterns [][]int) (*Model, error) {
	return BuildModelWithRule(patterns, hop_learnRules.HebbianStorageRule{})
}

func BuildModelWithRule(patterns [][]int, rule hop_learnRules.StorageRule) (*Model, error) {
	n, k, err := validatePatterns(patterns)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, fmt.Errorf("build model: nil storage rule")
	}

	weights := blas64.General{Rows: n, Cols: n, Stride: n, Data: make([]float64, n*n)}
	rule.StorePatterns(weights, patterns)
	for i := 0; i < n; i++ {
		weights.Data[i*weights.Stride+i] = 0
		for j := i + 1; j < n; j++ {
			upper, lower := i*weights.Stride+j, j*weights.Stride+i
			mean := (weights.Data[upper] + weights.Data[lower]) / 2
			weights.Data[upper], weights.Data[lower] = mean, mean
		}
	}

	model := &Model{
		n:        n,
		k:        k,
		weights:  weights,
		bias:     blas64.Vector{N: n, Inc: 1, Data: make([]float64, n)},
		memories: make([][]int, k),
		energies: make([]float64, k),
	}

	x := newFloatVector(n)
	scratch := newFloatVector(n)
	for p := 0; p < k; p++ {
		memory := make([]int, n)
		for i := 0; i < n; i++ {
			memory[i] = patterns[i][p]
		}
		model.memories[p] = memory
		loadState(x, memory)
		model.energies[p] = model.energy(x, scratch)
	}
	return model, nil
}

// Units returns N.
func (m *Model) Units() int { return m.n }

// PatternCount returns K.
func (m *Model) PatternCount() int { return m.k }

func (m *Model) Weight(i, j int) float64 {
	return m.weights.Data[i*m.weights.Stride+j]
}

// Weights returns a copy of W as N rows.
func (m *Model) Weights() [][]float64 {
	out := make([][]float64, m.n)
	for i := range out {
		row := make([]float64, m.n)
		copy(row, m.weights.Data[i*m.weights.Stride:i*m.weights.Stride+m.n])
		out[i] = row
	}
	return out
}

func (m *Model) Bias() []float64 {
	out := make([]float64, m.n)
	copy(out, m.bias.Data)
	return out
}

// PatternEnergy returns the reference energy of stored pattern k (0-based).
func (m *Model) PatternEnergy(k int) float64 {
	return m.energies[k]
}

func (m *Model) PatternEnergies() []float64 {
	out := make([]float64, m.k)
	copy(out, m.energies)
	return out
}

// Pattern returns a copy of stored pattern k (0-based) as a state vector.
func (m *Model) Pattern(k int) []int {
	return CopyState(m.memories[k])
}

// Patterns returns a copy of the original N×K pattern set.
func (m *Model) Patterns() [][]int {
	out := make([][]int, m.n)
	for i := range out {
		out[i] = make([]int, m.k)
		for p := 0; p < m.k; p++ {
			out[i][p] = m.memories[p][i]
		}
	}
	return out
}

// MatchPattern returns the index of the stored pattern equal to state, or -1.
func (m *Model) MatchPattern(state []int) int {
	for p, memory := range m.memories {
		if CompareStates(memory, state) {
			return p
		}
	}
	return -1
}

// Energy computes E(s) = -0.5 * s·W·s - b·s.
func Energy(m *Model, state []int) (float64, error) {
	if len(state) != m.n {
		return 0, fmt.Errorf("%w: state has %d units, model has %d", ErrDimensionMismatch, len(state), m.n)
	}
	x := newFloatVector(m.n)
	loadState(x, state)
	return m.energy(x, newFloatVector(m.n)), nil
}

// LocalField computes a_i = sum_j W[i,j]*s[j] - b[i].
func LocalField(m *Model, state []int, i int) (float64, error) {
	if len(state) != m.n {
		return 0, fmt.Errorf("%w: state has %d units, model has %d", ErrDimensionMismatch, len(state), m.n)
	}
	if i < 0 || i >= m.n {
		return 0, fmt.Errorf("local field: unit %d out of range [0,%d)", i, m.n)
	}
	x := newFloatVector(m.n)
	loadState(x, state)
	return m.localField(x, i), nil
}

// energy recomputes the full quadratic form; scratch is overwritten.
func (m *Model) energy(x, scratch blas64.Vector) float64 {
	blas64.Gemv(blas.NoTrans, 1, m.weights, x, 0, scratch)
	return -0.5*blas64.Dot(x, scratch) - blas64.Dot(m.bias, x)
}

func (m *Model) localField(x blas64.Vector, i int) float64 {
	row := blas64.Vector{N: m.n, Inc: 1, Data: m.weights.Data[i*m.weights.Stride : i*m.weights.Stride+m.n]}
	return blas64.Dot(row, x) - m.bias.Data[i]
}

func validatePatterns(patterns [][]int) (int, int, error) {
	n := len(patterns)
	if n < 1 {
		return 0, 0, fmt.Errorf("%w: pattern set has no units", ErrInvalidPattern)
	}
	k := len(patterns[0])
	if k < 1 {
		return 0, 0, fmt.Errorf("%w: pattern set has no patterns", ErrInvalidPattern)
	}
	for i, row := range patterns {
		if len(row) != k {
			return 0, 0, fmt.Errorf("%w: unit %d has %d entries, want %d", ErrInvalidPattern, i, len(row), k)
		}
		for p, v := range row {
			if v != 1 && v != -1 {
				return 0, 0, fmt.Errorf("%w: entry (%d,%d) is %d", ErrInvalidPattern, i, p, v)
			}
		}
	}
	return n, k, nil
}

func newFloatVector(n int) blas64.Vector {
	return blas64.Vector{N: n, Inc: 1, Data: make([]float64, n)}
}

func loadState(x blas64.Vector, state []int) {
	for i, v := range state {
		x.Data[i] = float64(v)
	}
}
