package hop_controllers

// RecoveryRateData holds the aggregated outcome of every session sharing a
// network size, pattern count and corruption type.
type RecoveryRateData struct {
	N              int     `json:"n"`
	K              int     `json:"k"`
	Corruption     string  `json:"corruption"`
	ConvergedCount int     `json:"converged_count"`
	RecoveredCount int     `json:"recovered_count"`
	TotalCount     int     `json:"total_count"`
	AvgIterations  float64 `json:"avg_iterations"`
	RecoveryRate   float64 `json:"recovery_rate"`
}

// SessionAvgsAndCounts summarises every session stored with one pattern
// count and update rule.
type SessionAvgsAndCounts struct {
	K                 int     `json:"k"`
	UpdateRule        string  `json:"update_rule"`
	AvgIterations     float64 `json:"avg_iterations"`
	TotalCount        int     `json:"total_count"`
	ConvergedCount    int     `json:"converged_count"`
	RecoveredCount    int     `json:"recovered_count"`
	LimitReachedCount int     `json:"limit_reached_count"`
}

type HistogramEntry struct {
	RangeLabel              string  `json:"range_label"`
	RecoveredCount          int     `json:"recovered_count"`
	TotalCount              int     `json:"total_count"`
	AvgIterationsToRecovery float64 `json:"avg_iterations_to_recovery"`
	RecoveryRate            float64 `json:"recovery_rate"`
}
