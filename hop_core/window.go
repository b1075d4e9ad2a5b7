package hop_core

// stateWindow is a fixed-capacity ring of the most recent recorded states.
// It keeps references to snapshots, which are never mutated once recorded.
type stateWindow struct {
	states [][]int
	next   int
	count  int
}

func newStateWindow(capacity int) *stateWindow {
	return &stateWindow{states: make([][]int, capacity)}
}

func (w *stateWindow) push(state []int) {
	w.states[w.next] = state
	w.next = (w.next + 1) % len(w.states)
	if w.count < len(w.states) {
		w.count++
	}
}

// stable reports whether the window is full and every state in it is
// identical.
func (w *stateWindow) stable() bool {
	if w.count < len(w.states) {
		return false
	}
	first := w.states[0]
	for _, s := range w.states[1:] {
		if !CompareStates(first, s) {
			return false
		}
	}
	return true
}
