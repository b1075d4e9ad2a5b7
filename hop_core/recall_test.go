package hop_core_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"hopfield_sync/hop_core"
	"hopfield_sync/hop_handlers"
)

// ── recall from a stored pattern ──────────────────────────────────────────────

func TestRecall_StoredPatternConvergesAtMinimum(t *testing.T) {
	a := []int{1, 1, -1, -1}
	m := mustBuild(t, a, []int{1, -1, 1, -1})

	res, err := hop_core.Recall(m, a, m.PatternEnergy(0), hop_core.RecallOptions{MaxIterations: 50}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Converged {
		t.Fatal("recall from a stored pattern must converge")
	}
	if res.Reason != hop_core.ReasonMemory {
		t.Fatalf("want memory match, got %s", res.Reason)
	}
	minIter := hop_core.DefaultPatience(4)
	if res.Iterations != minIter {
		t.Fatalf("convergence must be declared exactly at iteration %d, got %d", minIter, res.Iterations)
	}
	if len(res.States) >= 51 {
		t.Fatalf("trajectory length %d, want < 51", len(res.States))
	}
	if res.MatchedPattern != 0 {
		t.Fatalf("want matched pattern 0, got %d", res.MatchedPattern)
	}
}

func TestRecall_HugeIterationCapStopsAtMinimum(t *testing.T) {
	a := []int{1, 1, -1, -1}
	m := mustBuild(t, a, []int{1, -1, 1, -1})

	for _, maxIter := range []int{math.MaxInt32, math.MaxInt} {
		res, err := hop_core.Recall(m, a, m.PatternEnergy(0), hop_core.RecallOptions{MaxIterations: maxIter}, rand.New(rand.NewSource(1)))
		if err != nil {
			t.Fatal(err)
		}
		if !res.Converged || res.Iterations != hop_core.DefaultPatience(4) {
			t.Fatalf("max=%d: converged=%v after %d iterations", maxIter, res.Converged, res.Iterations)
		}
		if len(res.States) != res.Iterations+1 || cap(res.States) > 1<<16 {
			t.Fatalf("max=%d: trajectory len %d cap %d", maxIter, len(res.States), cap(res.States))
		}
	}
}

func TestRecall_NeverConvergesBeforeMinIterations(t *testing.T) {
	a := walsh(16, 1)
	m := mustBuild(t, a, walsh(16, 2))
	for _, minIter := range []int{1, 3, 17, 40} {
		res, err := hop_core.Recall(m, a, m.PatternEnergy(0), hop_core.RecallOptions{
			MaxIterations: 100,
			MinIterations: minIter,
		}, rand.New(rand.NewSource(int64(minIter))))
		if err != nil {
			t.Fatal(err)
		}
		if res.Iterations != minIter {
			t.Fatalf("min=%d: converged at %d", minIter, res.Iterations)
		}
	}
}

// ── trajectory invariants ─────────────────────────────────────────────────────

func TestRecall_TrajectoryInvariants(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	patterns := hop_core.RandomPatterns(36, 3, r)
	m, err := hop_core.BuildModel(patterns)
	if err != nil {
		t.Fatal(err)
	}
	initial := make([]int, 36)
	for i := range initial {
		initial[i] = r.Intn(2)*2 - 1
	}
	before := hop_core.CopyState(initial)

	res, err := hop_core.Recall(m, initial, m.PatternEnergy(0), hop_core.RecallOptions{MaxIterations: 300}, r)
	if err != nil {
		t.Fatal(err)
	}
	if !hop_core.CompareStates(initial, before) {
		t.Fatal("Recall must not mutate the caller's state")
	}
	if !hop_core.CompareStates(res.States[0], initial) {
		t.Fatal("iteration 0 must hold the initial state verbatim")
	}
	e0, _ := hop_core.Energy(m, initial)
	if res.Energies[0] != e0 {
		t.Fatalf("iteration 0 energy %v, want %v", res.Energies[0], e0)
	}
	if len(res.States) != res.Iterations+1 || len(res.Energies) != res.Iterations+1 {
		t.Fatalf("trajectory length %d/%d, want %d", len(res.States), len(res.Energies), res.Iterations+1)
	}
	for step := 1; step < len(res.States); step++ {
		d, _ := hop_core.Hamming(res.States[step-1], res.States[step])
		if d > 1 {
			t.Fatalf("step %d changed %d units", step, d)
		}
		if res.Energies[step] > res.Energies[step-1]+1e-9 {
			t.Fatalf("energy rose at step %d: %v -> %v", step, res.Energies[step-1], res.Energies[step])
		}
	}
}

func TestRecall_LimitReachedIsNotAnError(t *testing.T) {
	m := mustBuild(t, walsh(16, 1), walsh(16, 2), walsh(16, 3))
	initial := hop_core.CopyState(walsh(16, 1))
	initial[0] = -initial[0]

	res, err := hop_core.Recall(m, initial, 1e9, hop_core.RecallOptions{
		MaxIterations: 10,
		MinIterations: 1000,
	}, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatal(err)
	}
	if res.Converged {
		t.Fatal("run capped before min iterations must not converge")
	}
	if res.Reason != hop_core.ReasonLimit {
		t.Fatalf("want limit, got %s", res.Reason)
	}
	if res.Iterations != 10 || len(res.States) != 11 {
		t.Fatalf("want 10 iterations and 11 states, got %d and %d", res.Iterations, len(res.States))
	}
}

func TestRecall_Reproducible(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	m, err := hop_core.BuildModel(hop_core.RandomPatterns(25, 2, r))
	if err != nil {
		t.Fatal(err)
	}
	initial := hop_core.RandomPatterns(25, 1, r)
	state := make([]int, 25)
	for i := range state {
		state[i] = initial[i][0]
	}
	opts := hop_core.RecallOptions{MaxIterations: 200, Patience: 30}

	a, _ := hop_core.Recall(m, state, m.PatternEnergy(0), opts, rand.New(rand.NewSource(99)))
	b, _ := hop_core.Recall(m, state, m.PatternEnergy(0), opts, rand.New(rand.NewSource(99)))
	if a.Iterations != b.Iterations || a.Reason != b.Reason {
		t.Fatalf("same seed must give same run: %d/%s vs %d/%s", a.Iterations, a.Reason, b.Iterations, b.Reason)
	}
	for i := range a.States {
		if !hop_core.CompareStates(a.States[i], b.States[i]) {
			t.Fatalf("trajectories diverge at step %d", i)
		}
	}
}

// ── convergence conditions ────────────────────────────────────────────────────

func TestRecall_StabilityCondition(t *testing.T) {
	// A single stored pattern whose negation is also a minimum; starting
	// from the negation the state never changes and never matches.
	p := walsh(16, 1)
	m := mustBuild(t, p)
	neg := make([]int, len(p))
	for i, v := range p {
		neg[i] = -v
	}
	res, err := hop_core.Recall(m, neg, 1e9, hop_core.RecallOptions{MaxIterations: 100, Patience: 8}, rand.New(rand.NewSource(4)))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Converged || res.Reason != hop_core.ReasonStable {
		t.Fatalf("want stable convergence, got converged=%v reason=%s", res.Converged, res.Reason)
	}
	if res.Iterations != 8 {
		t.Fatalf("want stability at iteration 8, got %d", res.Iterations)
	}
	if res.MatchedPattern != -1 {
		t.Fatalf("negated pattern must not match, got %d", res.MatchedPattern)
	}
}

func TestRecall_EnergyCondition(t *testing.T) {
	p := walsh(16, 1)
	m := mustBuild(t, p)
	neg := make([]int, len(p))
	for i, v := range p {
		neg[i] = -v
	}
	// The negated pattern has the same energy as the stored one.
	res, err := hop_core.Recall(m, neg, m.PatternEnergy(0), hop_core.RecallOptions{MaxIterations: 100, Patience: 50, MinIterations: 3}, rand.New(rand.NewSource(4)))
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != hop_core.ReasonEnergy || res.Iterations != 3 {
		t.Fatalf("want energy match at 3, got %s at %d", res.Reason, res.Iterations)
	}
}

// ── recovery of corrupted patterns ────────────────────────────────────────────

func TestRecall_RecoversCorruptedPattern(t *testing.T) {
	const n = 16
	stored := [][]int{walsh(n, 1), walsh(n, 2), walsh(n, 3)}
	m := mustBuild(t, stored...)
	opts := hop_core.RecallOptions{MaxIterations: 2000, Patience: 200}

	recovered := 0
	const trials = 40
	for trial := 0; trial < trials; trial++ {
		r := rand.New(rand.NewSource(int64(1000 + trial)))
		target := trial % len(stored)
		noisy := hop_core.CopyState(stored[target])
		for _, i := range r.Perm(n)[:1+trial%2] {
			noisy[i] = -noisy[i]
		}
		res, err := hop_core.Recall(m, noisy, m.PatternEnergy(target), opts, r)
		if err != nil {
			t.Fatal(err)
		}
		if hop_core.CompareStates(res.FinalState(), stored[target]) {
			recovered++
		}
	}
	if recovered < trials*95/100 {
		t.Fatalf("recovered %d/%d corrupted patterns", recovered, trials)
	}
}

// ── updater / observer ────────────────────────────────────────────────────────

func TestRecall_OnStepSeesEveryRecordedStep(t *testing.T) {
	a := walsh(16, 1)
	m := mustBuild(t, a, walsh(16, 2))
	var seen []int
	res, err := hop_core.Recall(m, a, m.PatternEnergy(0), hop_core.RecallOptions{
		MaxIterations: 30,
		OnStep:        func(s hop_core.Step) { seen = append(seen, s.Iteration) },
	}, rand.New(rand.NewSource(8)))
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != len(res.States) {
		t.Fatalf("observer saw %d steps, trajectory has %d", len(seen), len(res.States))
	}
	for i, it := range seen {
		if it != i {
			t.Fatalf("step %d reported iteration %d", i, it)
		}
	}
}

func TestRecall_KeepStateTieBreak(t *testing.T) {
	// Two units with no coupling: every field is exactly zero.
	m := mustBuild(t, []int{1, 1}, []int{1, -1})
	if m.Weight(0, 1) != 0 {
		t.Fatalf("want zero coupling, got %v", m.Weight(0, 1))
	}
	start := []int{-1, -1}

	keep, err := hop_core.Recall(m, start, 1e9, hop_core.RecallOptions{
		MaxIterations: 20,
		Patience:      100,
		Update:        hop_handlers.KeepStateTieBreak{},
	}, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatal(err)
	}
	if !hop_core.CompareStates(keep.FinalState(), start) {
		t.Fatalf("keep tie-break must hold the state, got %v", keep.FinalState())
	}

	pos, err := hop_core.Recall(m, start, 1e9, hop_core.RecallOptions{
		MaxIterations: 200,
		Patience:      100,
	}, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatal(err)
	}
	if !hop_core.CompareStates(pos.FinalState(), []int{1, 1}) {
		t.Fatalf("zero field must resolve to +1, got %v", pos.FinalState())
	}
}

// ── errors ────────────────────────────────────────────────────────────────────

func TestRecall_Errors(t *testing.T) {
	m := mustBuild(t, []int{1, 1, -1, -1})
	r := rand.New(rand.NewSource(1))

	if _, err := hop_core.Recall(m, []int{1, 1}, 0, hop_core.RecallOptions{}, r); !errors.Is(err, hop_core.ErrDimensionMismatch) {
		t.Fatalf("want ErrDimensionMismatch, got %v", err)
	}
	if _, err := hop_core.Recall(m, []int{1, 0, 1, 1}, 0, hop_core.RecallOptions{}, r); !errors.Is(err, hop_core.ErrInvalidPattern) {
		t.Fatalf("want ErrInvalidPattern, got %v", err)
	}
	if _, err := hop_core.Recall(m, []int{1, 1, 1, 1}, 0, hop_core.RecallOptions{}, nil); err == nil {
		t.Fatal("want error for nil random source")
	}
	if _, err := hop_core.Recall(nil, []int{1}, 0, hop_core.RecallOptions{}, r); err == nil {
		t.Fatal("want error for nil model")
	}
}

func TestDefaultPatience(t *testing.T) {
	cases := map[int]int{1: 5, 100: 5, 499: 5, 600: 6, 10000: 100}
	for n, want := range cases {
		if got := hop_core.DefaultPatience(n); got != want {
			t.Fatalf("DefaultPatience(%d) = %d, want %d", n, got, want)
		}
	}
}
