package hop_core

import (
	"fmt"
	"math"
	"math/rand"

	"hopfield_sync/hop_handlers"
)

const (
	DefaultMaxIterations = 1000
	EnergyTolerance      = 1e-6

	// trajectories grow by append past this many recorded steps
	trajectoryPrealloc = 1024
)

// ConvergenceReason tells why a recall loop stopped.
type ConvergenceReason string

const (
	ReasonStable ConvergenceReason = "stable"
	ReasonMemory ConvergenceReason = "memory"
	ReasonEnergy ConvergenceReason = "energy"
	ReasonLimit  ConvergenceReason = "limit"
)

// Step is one recorded point of a trajectory. Iteration 0 is the initial
// state; Unit is -1 there.
type Step struct {
	Iteration int
	Unit      int
	State     []int
	Energy    float64
}

// RecallOptions tune a recall run. Zero values select the defaults.
type RecallOptions struct {
	MaxIterations int // default 1000
	Patience      int // default max(5, N/100)
	MinIterations int // default Patience
	Update        hop_handlers.UnitUpdater
	// OnStep, when set, is called synchronously for every recorded step,
	// including iteration 0. State must not be retained past the call
	// unless copied; it aliases the trajectory snapshot.
	OnStep func(Step)
}

// Trajectory holds the recorded states and energies, index 0 being the
// initial state.
type Trajectory struct {
	States   [][]int   `json:"states"`
	Energies []float64 `json:"energies"`
}

type RecallResult struct {
	Trajectory
	Converged      bool              `json:"converged"`
	Reason         ConvergenceReason `json:"reason"`
	Iterations     int               `json:"iterations"`
	MatchedPattern int               `json:"matched_pattern"`
}

func (r RecallResult) FinalState() []int {
	return r.States[len(r.States)-1]
}

func (r RecallResult) FinalEnergy() float64 {
	return r.Energies[len(r.Energies)-1]
}

// DefaultPatience returns max(5, n/100).
func DefaultPatience(n int) int {
	if p := n / 100; p > 5 {
		return p
	}
	return 5
}

func (opts RecallOptions) withDefaults(n int) RecallOptions {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.Patience <= 0 {
		opts.Patience = DefaultPatience(n)
	}
	if opts.MinIterations <= 0 {
		opts.MinIterations = opts.Patience
	}
	if opts.Update == nil {
		opts.Update = hop_handlers.PositiveTieBreak{}
	}
	return opts
}

// Recall runs asynchronous energy descent from initial until a convergence
// condition holds or MaxIterations updates have been made. Each iteration
// picks one unit uniformly from localRand, sets it from its local field and
// records the full state and energy. Convergence is only tested from
// iteration MinIterations on: the last Patience recorded states are
// identical, the state equals a stored pattern, or the energy is within
// EnergyTolerance of targetEnergy. Running out of iterations is not an
// error; the result then has Converged false and Reason ReasonLimit.
//
// initial is never mutated.
func Recall(model *Model, initial []int, targetEnergy float64, opts RecallOptions, localRand *rand.Rand) (RecallResult, error) {
	if model == nil {
		return RecallResult{}, fmt.Errorf("recall: nil model")
	}
	if localRand == nil {
		return RecallResult{}, fmt.Errorf("recall: nil random source")
	}
	if len(initial) != model.n {
		return RecallResult{}, fmt.Errorf("%w: initial state has %d units, model has %d", ErrDimensionMismatch, len(initial), model.n)
	}
	if err := ValidateState(initial); err != nil {
		return RecallResult{}, err
	}
	opts = opts.withDefaults(model.n)

	n := model.n
	state := CopyState(initial)
	x := newFloatVector(n)
	scratch := newFloatVector(n)
	loadState(x, state)

	capacity := trajectoryPrealloc
	if opts.MaxIterations < capacity {
		capacity = opts.MaxIterations + 1
	}
	result := RecallResult{
		Trajectory: Trajectory{
			States:   make([][]int, 0, capacity),
			Energies: make([]float64, 0, capacity),
		},
		Reason:         ReasonLimit,
		MatchedPattern: -1,
	}
	window := newStateWindow(opts.Patience)

	record := func(t int, unit int, energy float64) {
		snapshot := CopyState(state)
		result.States = append(result.States, snapshot)
		result.Energies = append(result.Energies, energy)
		window.push(snapshot)
		if opts.OnStep != nil {
			opts.OnStep(Step{Iteration: t, Unit: unit, State: snapshot, Energy: energy})
		}
	}
	record(0, -1, model.energy(x, scratch))

	for t := 1; t <= opts.MaxIterations; t++ {
		i := localRand.Intn(n)
		field := model.localField(x, i)
		state[i] = opts.Update.Update(field, state[i])
		x.Data[i] = float64(state[i])

		energy := model.energy(x, scratch)
		record(t, i, energy)
		result.Iterations = t

		if t < opts.MinIterations {
			continue
		}
		if reason, ok := checkConvergence(model, state, energy, targetEnergy, window); ok {
			result.Converged = true
			result.Reason = reason
			break
		}
	}

	result.MatchedPattern = model.MatchPattern(state)
	return result, nil
}

// checkConvergence reports the first condition that holds. When several hold
// at once the most specific one wins: memory, then energy, then stability.
func checkConvergence(model *Model, state []int, energy float64, targetEnergy float64, window *stateWindow) (ConvergenceReason, bool) {
	if model.MatchPattern(state) >= 0 {
		return ReasonMemory, true
	}
	if math.Abs(energy-targetEnergy) < EnergyTolerance {
		return ReasonEnergy, true
	}
	if window.stable() {
		return ReasonStable, true
	}
	return "", false
}
