package hop_controllers

import (
	"fmt"
	"math/rand"
	"strings"

	"hopfield_sync/hop_core"
	"hopfield_sync/hop_handlers"
	"hopfield_sync/hop_learnRules"
	"hopfield_sync/hop_stimHandlers"

	"github.com/sourcegraph/conc/pool"
)

type RecallController struct {
}

func (RecallController) SettingsFactory(n int, k int, noise int, corruption string, storageRule string, updateRule string) (RecallSettings, error) {
	if n < 1 {
		return RecallSettings{}, fmt.Errorf("unit count is invalid: %d", n)
	}
	if k < 1 {
		return RecallSettings{}, fmt.Errorf("pattern count is invalid: %d", k)
	}
	if noise < 0 || noise > n {
		return RecallSettings{}, fmt.Errorf("noise is invalid: %d for %d units", noise, n)
	}

	corruptionHandler, err := hop_stimHandlers.CorruptionFactory(corruption)
	if err != nil {
		return RecallSettings{}, err
	}
	rule, err := hop_learnRules.RuleFactory(storageRule)
	if err != nil {
		return RecallSettings{}, err
	}
	updater, err := hop_handlers.UpdaterFactory(updateRule)
	if err != nil {
		return RecallSettings{}, err
	}

	return RecallSettings{
		N:                 n,
		K:                 k,
		Noise:             noise,
		Corruption:        canonicalName(corruption, "FLIP"),
		StorageRule:       canonicalName(storageRule, "HEBBIAN"),
		UpdateRule:        canonicalName(updateRule, "POSITIVE"),
		corruptionHandler: corruptionHandler,
		storageRule:       rule,
		updater:           updater,
	}, nil
}

// CreateSessionInstance draws a fresh pattern set, stores it and corrupts one
// randomly chosen pattern into the starting state.
func (RecallController) CreateSessionInstance(settings RecallSettings, localRand *rand.Rand) (RecallSessionState, error) {
	patterns := hop_core.RandomPatterns(settings.N, settings.K, localRand)
	model, err := hop_core.BuildModelWithRule(patterns, settings.storageRule)
	if err != nil {
		return RecallSessionState{}, err
	}
	target := localRand.Intn(settings.K)
	targetPattern := model.Pattern(target)
	initial := settings.corruptionHandler.Corrupt(targetPattern, settings.Noise, localRand)

	return RecallSessionState{
		Patterns:      patterns,
		TargetIndex:   target,
		TargetPattern: targetPattern,
		InitialState:  initial,
		model:         model,
	}, nil
}

func (s RecallController) StartRecallSession(settings RecallSettings, stateChannel chan<- SessionStateMessage, maxIterations int, sendIterThreshold int, sendIterStep int, seed int64, localRand *rand.Rand) (SessionData, error) {
	//Setup simulation
	sessionState, err := s.CreateSessionInstance(settings, localRand)
	if err != nil {
		return SessionData{}, err
	}
	model := sessionState.model
	targetEnergy := model.PatternEnergy(sessionState.TargetIndex)

	opts := hop_core.RecallOptions{
		MaxIterations: maxIterations,
		Patience:      settings.Patience,
		MinIterations: settings.MinIterations,
		Update:        settings.updater,
	}
	if stateChannel != nil {
		opts.OnStep = func(step hop_core.Step) {
			if !shouldSendIteration(step.Iteration, sendIterThreshold, sendIterStep) {
				return
			}
			publish(stateChannel, SessionStateMessage{
				CommandType: CommandStep,
				SessionState: StepMessage{
					Iteration: step.Iteration,
					Unit:      step.Unit,
					Energy:    step.Energy,
					State:     step.State,
				},
			})
		}
	}

	//Start simulation
	result, err := hop_core.Recall(model, sessionState.InitialState, targetEnergy, opts, localRand)
	if err != nil {
		return SessionData{}, err
	}

	initialDistance, _ := hop_core.Hamming(sessionState.InitialState, sessionState.TargetPattern)
	finalDistance, _ := hop_core.Hamming(result.FinalState(), sessionState.TargetPattern)
	status := StatusLimitReached
	if result.Converged {
		status = StatusFinished
	}

	session := SessionData{
		Seed:            seed,
		Iterations:      result.Iterations,
		Converged:       result.Converged,
		Reason:          result.Reason,
		Status:          status,
		TargetIndex:     sessionState.TargetIndex,
		MatchedPattern:  result.MatchedPattern,
		Recovered:       finalDistance == 0,
		InitialDistance: initialDistance,
		FinalDistance:   finalDistance,
		TargetEnergy:    targetEnergy,
		FinalEnergy:     result.FinalEnergy(),
		InitialState:    sessionState.InitialState,
		FinalState:      result.FinalState(),
		Trajectory:      result.Trajectory,
	}
	if stateChannel != nil {
		publish(stateChannel, SessionStateMessage{CommandType: CommandFinished, SessionState: session})
	}
	return session, nil
}

// RecallMany runs one independent recall per initial state on at most
// maxWorkers goroutines. Run i uses its own random source seeded seed+i, so
// results do not depend on scheduling. The model is shared read-only.
// opts.OnStep, if set, is called from several goroutines at once.
func (RecallController) RecallMany(model *hop_core.Model, states [][]int, targetEnergies []float64, opts hop_core.RecallOptions, seed int64, maxWorkers int) ([]hop_core.RecallResult, error) {
	if len(states) != len(targetEnergies) {
		return nil, fmt.Errorf("%w: %d states and %d target energies", hop_core.ErrDimensionMismatch, len(states), len(targetEnergies))
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	results := make([]hop_core.RecallResult, len(states))
	workerPool := pool.New().WithErrors().WithMaxGoroutines(maxWorkers)
	for i := range states {
		workerPool.Go(func() error {
			localRand := rand.New(rand.NewSource(seed + int64(i)))
			res, err := hop_core.Recall(model, states[i], targetEnergies[i], opts, localRand)
			if err != nil {
				return fmt.Errorf("recall %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := workerPool.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// shouldSendIteration keeps the first sendIterThreshold iterations and every
// sendIterStep-th one after that.
func shouldSendIteration(iteration int, sendIterThreshold int, sendIterStep int) bool {
	if iteration < sendIterThreshold {
		return true
	}
	return sendIterStep > 0 && iteration%sendIterStep == 0
}

func canonicalName(name string, fallback string) string {
	if name == "" {
		return fallback
	}
	return strings.ToUpper(name)
}

// publish drops the message when nobody is draining the channel.
func publish(stateChannel chan<- SessionStateMessage, msg SessionStateMessage) {
	select {
	case stateChannel <- msg:
	default:
	}
}
