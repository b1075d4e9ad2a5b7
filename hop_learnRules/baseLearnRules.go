package hop_learnRules

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/blas/blas64"
)

// StorageRule accumulates a validated N×K pattern set (row = unit,
// column = pattern) into a zeroed N×N weight matrix. The model builder
// zeroes the diagonal and symmetrises whatever the rule leaves behind.
type StorageRule interface {
	StorePatterns(weights blas64.General, patterns [][]int)
}

type HebbianStorageRule struct{}

// StorePatterns adds the average outer product of every pattern column with
// itself: W += (1/K) * p_k ⊗ p_k.
func (rule HebbianStorageRule) StorePatterns(weights blas64.General, patterns [][]int) {
	n := len(patterns)
	k := len(patterns[0])
	column := blas64.Vector{N: n, Inc: 1, Data: make([]float64, n)}
	alpha := 1.0 / float64(k)
	for p := 0; p < k; p++ {
		for i := 0; i < n; i++ {
			column.Data[i] = float64(patterns[i][p])
		}
		blas64.Ger(alpha, column, column, weights)
	}
}

func RuleFactory(name string) (StorageRule, error) {
	switch strings.ToUpper(name) {
	case "", "HEBBIAN":
		return HebbianStorageRule{}, nil
	}
	return nil, fmt.Errorf("storage rule is invalid: %s", name)
}
