package hop_controllers

import (
	"hopfield_sync/hop_core"
	"hopfield_sync/hop_handlers"
	"hopfield_sync/hop_learnRules"
	"hopfield_sync/hop_stimHandlers"
)

type RecallSessionState struct {
	Patterns      [][]int
	TargetIndex   int
	TargetPattern []int
	InitialState  []int
	model         *hop_core.Model
}

type RecallSettings struct {
	N                 int
	K                 int
	Noise             int
	Patience          int
	MinIterations     int
	Corruption        string
	StorageRule       string
	UpdateRule        string
	corruptionHandler hop_stimHandlers.CorruptionHandler
	storageRule       hop_learnRules.StorageRule
	updater           hop_handlers.UnitUpdater
}

type SessionData struct {
	Seed            int64
	Iterations      int
	Converged       bool
	Reason          hop_core.ConvergenceReason
	Status          string
	TargetIndex     int
	MatchedPattern  int
	Recovered       bool
	InitialDistance int
	FinalDistance   int
	TargetEnergy    float64
	FinalEnergy     float64
	InitialState    []int
	FinalState      []int
	Trajectory      hop_core.Trajectory `json:"-"`
}

const (
	StatusFinished     = "FINISHED"
	StatusLimitReached = "LIMIT_REACHED"
)
