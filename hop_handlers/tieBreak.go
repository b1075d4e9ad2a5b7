package hop_handlers

// PositiveTieBreak is the zero-temperature sign rule with a zero field
// mapped to +1. Stored patterns of a bias-free network are fixed points
// under this convention.
type PositiveTieBreak struct{}

func (PositiveTieBreak) Update(field float64, current int) int {
	return OutputSign(field)
}

// KeepStateTieBreak behaves like PositiveTieBreak except that a zero field
// leaves the unit unchanged.
type KeepStateTieBreak struct{}

func (KeepStateTieBreak) Update(field float64, current int) int {
	if field == 0 {
		return current
	}
	return OutputSign(field)
}

func OutputSign(x float64) int {
	if x >= 0 {
		return 1
	}
	return -1
}
