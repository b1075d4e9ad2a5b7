package hop_controllers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/beevik/ntp"
	"github.com/sourcegraph/conc/pool"
)

const (
	sessionBufferSize = 10
	sendIterThreshold = 10
	sendIterStep      = 100
)

type SimulationController struct {
	RecallController   RecallController
	DatabaseController *DatabaseController
	// NtpServer stamps sessions with network time when set; the local clock
	// is used otherwise and whenever the server cannot be reached.
	NtpServer string
}

// Function to read and deserialize JSON file
func (s *SimulationController) LoadSimulationSettings(filename string) (*SimulationSettings, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var settings SimulationSettings
	err = json.Unmarshal(data, &settings)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	if settings.MaxWorkerCount < 1 {
		settings.MaxWorkerCount = 1
	}
	if settings.MaxSessionCount < 1 {
		settings.MaxSessionCount = 1
	}

	return &settings, nil
}

func (s *SimulationController) SimulateOnStart(settingsFile string, sessionMap *SessionMap) {
	simSettings, err := s.LoadSimulationSettings(settingsFile)
	if err != nil {
		log.Fatalf("Error loading settings: %v", err)
	}

	fmt.Println("Settings loaded:")
	fmt.Println(simSettings)

	records := s.Simulate(simSettings, sessionMap)
	fmt.Printf("-- All automatic configs finished: %d configurations --\n", len(records))
}

// Simulate runs MaxSessionCount recall sessions for every combination of the
// configured grid, one pool task per combination. Invalid combinations are
// skipped. Every session is persisted when a database is attached.
func (s *SimulationController) Simulate(simSettings *SimulationSettings, sessionMap *SessionMap) []SimulationRecord {
	workerPool := pool.NewWithResults[SimulationRecord]().WithMaxGoroutines(max(simSettings.MaxWorkerCount, 1))
	configIndex := int64(0)
	for _, corruption := range orDefault(simSettings.Corruptions) {
		for _, storageRule := range orDefault(simSettings.StorageRules) {
			for _, updateRule := range orDefault(simSettings.UpdateRules) {
				for _, n := range simSettings.NConfigs {
					for _, k := range simSettings.KConfigs {
						for _, noise := range simSettings.NoiseConfigs {
							settings, err := s.RecallController.SettingsFactory(n, k, noise, corruption, storageRule, updateRule)
							if err != nil {
								log.Printf("skipping config n=%d k=%d noise=%d: %v", n, k, noise, err)
								continue
							}
							settings.Patience = simSettings.Patience
							settings.MinIterations = simSettings.MinIterations
							baseSeed := simSettings.Seed + configIndex*int64(simSettings.MaxSessionCount)
							configIndex++

							workerPool.Go(func() SimulationRecord {
								return s.runConfig(settings, simSettings, baseSeed, sessionMap)
							})
						}
					}
				}
			}
		}
	}
	return workerPool.Wait()
}

func (s *SimulationController) runConfig(settings RecallSettings, simSettings *SimulationSettings, baseSeed int64, sessionMap *SessionMap) SimulationRecord {
	startTime := s.getCurrentTime()
	token := s.generateToken(startTime, settings)
	sessionChannel := make(chan SessionStateMessage, sessionBufferSize)
	sessionMap.Register(&OpenSession{
		Uid:                 token,
		Config:              settings,
		StartTime:           startTime,
		MaxSessionCount:     simSettings.MaxSessionCount,
		CurrentStateChannel: sessionChannel,
	})
	defer func() {
		sessionMap.Remove(token)
		close(sessionChannel)
	}()

	record := SimulationRecord{Uid: token, Settings: settings}
	for i := 0; i < simSettings.MaxSessionCount; i++ {
		sessionStart := s.getCurrentTime()
		seed := time.Now().UnixNano()
		if simSettings.Seed != 0 {
			seed = baseSeed + int64(i)
		}
		localRand := rand.New(rand.NewSource(seed))

		var stateChannel chan<- SessionStateMessage
		if sessionMap.IsTracking(token) {
			stateChannel = sessionChannel
		}
		session, err := s.RecallController.StartRecallSession(settings, stateChannel, simSettings.MaxIterations, sendIterThreshold, sendIterStep, seed, localRand)
		if err != nil {
			log.Printf("session %s/%d failed: %v", token[:8], i, err)
			continue
		}
		sessionEnd := s.getCurrentTime()

		if s.DatabaseController != nil {
			if _, err := s.DatabaseController.InsertSession(token, settings, session, sessionStart, sessionEnd); err != nil {
				log.Printf("failed to persist session %s/%d: %v", token[:8], i, err)
			}
		}
		record.Sessions = append(record.Sessions, session)
		sessionMap.Increment(token)
	}
	return record
}

func (s *SimulationController) getCurrentTime() time.Time {
	if s.NtpServer == "" {
		return time.Now()
	}
	t, err := s.getCurrentTimeFromNTP()
	if err != nil {
		return time.Now()
	}
	return t
}

func (s *SimulationController) getCurrentTimeFromNTP() (time.Time, error) {
	t, err := ntp.Time(s.NtpServer)
	if err != nil {
		return t, fmt.Errorf("failed to get time from NTP server: %w", err)
	}
	return t, nil
}

func (s *SimulationController) generateToken(startTime time.Time, config RecallSettings) string {
	idStamp := fmt.Sprintf("%d%d%d%s%s%s%s", config.N, config.K, config.Noise, config.Corruption, config.StorageRule, config.UpdateRule, startTime)
	h := sha256.New()
	h.Write([]byte(idStamp))
	return hex.EncodeToString(h.Sum(nil))
}

func orDefault(names []string) []string {
	if len(names) == 0 {
		return []string{""}
	}
	return names
}

func NewSessionMap() *SessionMap {
	return &SessionMap{
		Sessions: make(map[string]*OpenSession),
	}
}

func (m *SessionMap) Register(session *OpenSession) {
	m.Mutex.Lock()
	m.Sessions[session.Uid] = session
	m.Mutex.Unlock()
}

func (m *SessionMap) Remove(uid string) {
	m.Mutex.Lock()
	delete(m.Sessions, uid)
	m.Mutex.Unlock()
}

func (m *SessionMap) Increment(uid string) {
	m.Mutex.Lock()
	if session, ok := m.Sessions[uid]; ok {
		session.CurrentSessionCount += 1
	}
	m.Mutex.Unlock()
}

func (m *SessionMap) IsTracking(uid string) bool {
	m.Mutex.RLock()
	defer m.Mutex.RUnlock()
	session, ok := m.Sessions[uid]
	return ok && session.Tracking
}

// Track marks a session as watched and returns its state channel. A session
// streams to one watcher at a time.
func (m *SessionMap) Track(uid string) (<-chan SessionStateMessage, error) {
	m.Mutex.Lock()
	defer m.Mutex.Unlock()
	session, ok := m.Sessions[uid]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if session.Tracking {
		return nil, ErrSessionWatched
	}
	session.Tracking = true
	return session.CurrentStateChannel, nil
}

func (m *SessionMap) Untrack(uid string) {
	m.Mutex.Lock()
	if session, ok := m.Sessions[uid]; ok {
		session.Tracking = false
	}
	m.Mutex.Unlock()
}

// Config returns a copy of the settings of an open session.
func (m *SessionMap) Config(uid string) (RecallSettings, bool) {
	m.Mutex.RLock()
	defer m.Mutex.RUnlock()
	session, ok := m.Sessions[uid]
	if !ok {
		return RecallSettings{}, false
	}
	return session.Config, true
}

func (m *SessionMap) MarshalSessions() ([]byte, error) {
	m.Mutex.RLock()
	defer m.Mutex.RUnlock()
	return json.Marshal(m.Sessions)
}
