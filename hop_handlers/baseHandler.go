package hop_handlers

import (
	"fmt"
	"strings"
)

// UnitUpdater decides the new value of a single unit from its local field
// and its current value.
type UnitUpdater interface {
	Update(field float64, current int) int
}

func UpdaterFactory(name string) (UnitUpdater, error) {
	switch strings.ToUpper(name) {
	case "", "POSITIVE":
		return PositiveTieBreak{}, nil
	case "KEEP":
		return KeepStateTieBreak{}, nil
	}
	return nil, fmt.Errorf("update rule is invalid: %s", name)
}
