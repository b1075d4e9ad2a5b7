package hop_stimHandlers

import (
	"fmt"
	"math/rand"
	"strings"
)

// CorruptionHandler derives a noisy starting state from a stored pattern.
// Implementations never mutate pattern.
type CorruptionHandler interface {
	Corrupt(pattern []int, amount int, localRand *rand.Rand) []int
}

func CorruptionFactory(name string) (CorruptionHandler, error) {
	switch strings.ToUpper(name) {
	case "", "FLIP":
		return FlipBitsCorruption{}, nil
	case "OCCLUDE":
		return OcclusionCorruption{}, nil
	}
	return nil, fmt.Errorf("corruption type is invalid: %s", name)
}

func clampAmount(amount int, n int) int {
	if amount < 0 {
		return 0
	}
	if amount > n {
		return n
	}
	return amount
}
