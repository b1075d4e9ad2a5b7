package hop_core

import (
	"fmt"
	"math/rand"
)

// Hamming counts the coordinates in which a and b differ.
func Hamming(a []int, b []int) (int, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: hamming of %d and %d units", ErrDimensionMismatch, len(a), len(b))
	}
	diff := 0
	for i := range a {
		if a[i] != b[i] {
			diff++
		}
	}
	return diff, nil
}

func CompareStates(a []int, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func CopyState(state []int) []int {
	copied := make([]int, len(state))
	copy(copied, state)
	return copied
}

// ValidateState checks that every unit holds -1 or +1.
func ValidateState(state []int) error {
	for i, v := range state {
		if v != 1 && v != -1 {
			return fmt.Errorf("%w: unit %d is %d", ErrInvalidPattern, i, v)
		}
	}
	return nil
}

// StackPatterns lays K state vectors of equal length out as the N×K pattern
// set accepted by BuildModel.
func StackPatterns(patterns ...[]int) ([][]int, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("%w: no patterns", ErrInvalidPattern)
	}
	n := len(patterns[0])
	if n == 0 {
		return nil, fmt.Errorf("%w: pattern set has no units", ErrInvalidPattern)
	}
	stacked := make([][]int, n)
	for i := range stacked {
		stacked[i] = make([]int, len(patterns))
	}
	for p, pattern := range patterns {
		if len(pattern) != n {
			return nil, fmt.Errorf("%w: pattern %d has %d units, want %d", ErrDimensionMismatch, p, len(pattern), n)
		}
		for i, v := range pattern {
			stacked[i][p] = v
		}
	}
	return stacked, nil
}

// RandomPatterns draws k uniformly random ±1 patterns of n units and
// returns them as an N×K pattern set.
func RandomPatterns(n int, k int, localRand *rand.Rand) [][]int {
	patterns := make([][]int, n)
	for i := 0; i < n; i++ {
		patterns[i] = make([]int, k)
		for p := 0; p < k; p++ {
			patterns[i][p] = localRand.Intn(2)*2 - 1
		}
	}
	return patterns
}
