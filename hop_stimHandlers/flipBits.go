package hop_stimHandlers

import "math/rand"

// FlipBitsCorruption flips exactly amount distinct units chosen uniformly.
type FlipBitsCorruption struct{}

func (FlipBitsCorruption) Corrupt(pattern []int, amount int, localRand *rand.Rand) []int {
	noisy := make([]int, len(pattern))
	copy(noisy, pattern)
	amount = clampAmount(amount, len(pattern))
	for _, i := range localRand.Perm(len(pattern))[:amount] {
		noisy[i] = -noisy[i]
	}
	return noisy
}
