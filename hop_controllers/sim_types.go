package hop_controllers

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionWatched  = errors.New("session already has a watcher")
)

type OpenSession struct {
	Uid                 string
	Config              RecallSettings
	StartTime           time.Time
	MaxSessionCount     int
	CurrentSessionCount int
	Tracking            bool                     `json:"-"`
	CurrentStateChannel chan SessionStateMessage `json:"-"`
}

type SessionMap struct {
	Sessions map[string]*OpenSession
	Mutex    sync.RWMutex
}

const (
	CommandStep     = "STEP"
	CommandFinished = "FINISHED"
)

type SessionStateMessage struct {
	CommandType  string // STEP or FINISHED
	SessionState interface{}
}

type StepMessage struct {
	Iteration int
	Unit      int
	Energy    float64
	State     []int
}

type SimulationSettings struct {
	MaxSessionCount int      `json:"max_session_count"`
	MaxIterations   int      `json:"max_iterations"`
	MaxWorkerCount  int      `json:"max_worker_count"`
	Seed            int64    `json:"seed"`
	Patience        int      `json:"patience"`
	MinIterations   int      `json:"min_iterations"`
	NConfigs        []int    `json:"n_configs"`
	KConfigs        []int    `json:"k_configs"`
	NoiseConfigs    []int    `json:"noise_configs"`
	Corruptions     []string `json:"corruptions"`
	StorageRules    []string `json:"storage_rules"`
	UpdateRules     []string `json:"update_rules"`
}

type SimulationRecord struct {
	Uid      string
	Settings RecallSettings
	Sessions []SessionData
}
