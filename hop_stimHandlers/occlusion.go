package hop_stimHandlers

import "math/rand"

// OcclusionCorruption blacks out (-1) a contiguous run of amount units
// starting at a random position, wrapping around the end of the vector.
type OcclusionCorruption struct{}

func (OcclusionCorruption) Corrupt(pattern []int, amount int, localRand *rand.Rand) []int {
	noisy := make([]int, len(pattern))
	copy(noisy, pattern)
	n := len(pattern)
	amount = clampAmount(amount, n)
	if amount == 0 {
		return noisy
	}
	start := localRand.Intn(n)
	for j := 0; j < amount; j++ {
		noisy[(start+j)%n] = -1
	}
	return noisy
}
