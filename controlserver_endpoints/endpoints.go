package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hopfield_sync/hop_controllers"
	"hopfield_sync/hop_core"
	"hopfield_sync/hop_handlers"

	"golang.org/x/net/websocket"
)

func main() {
	cfg, err := hop_controllers.LoadServerConfig()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	welcomeMessage := " -  -  Hopfield Recall Control Server  -  - "
	fmt.Println(welcomeMessage)

	dbController, err := hop_controllers.NewDatabaseController(cfg)
	if err != nil {
		log.Fatalf("Error opening database: %v", err)
	}
	defer dbController.CloseDb()

	server := &controlServer{
		sessionMap: hop_controllers.NewSessionMap(),
		db:         dbController,
		simController: &hop_controllers.SimulationController{
			RecallController:   hop_controllers.RecallController{},
			DatabaseController: dbController,
			NtpServer:          cfg.NtpServer,
		},
		limits: recallLimits{
			maxUnits:      cfg.RecallMaxUnits,
			maxPatterns:   cfg.RecallMaxPatterns,
			maxIterations: cfg.RecallMaxIterations,
			maxBodyBytes:  cfg.RecallMaxBodyBytes,
		},
	}

	if cfg.SimulateOnStart {
		go server.simController.SimulateOnStart(cfg.SimulationSettings, server.sessionMap)
	}

	log.Printf("listening on %s", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, server.routes()); err != nil {
		log.Fatal(err)
	}
}

type controlServer struct {
	sessionMap    *hop_controllers.SessionMap
	db            *hop_controllers.DatabaseController
	simController *hop_controllers.SimulationController
	limits        recallLimits
}

type recallLimits struct {
	maxUnits      int
	maxPatterns   int
	maxIterations int
	maxBodyBytes  int64
}

func (s *controlServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", s.listSessionMapHandler)
	mux.HandleFunc("/track-sessions", s.trackAllSessionsHandler)
	mux.HandleFunc("/events", s.realTimeSessionHandler)
	mux.Handle("/ws", websocket.Handler(s.realTimeSessionSocket))
	mux.HandleFunc("/get-config", s.settingsByUidHandler)
	mux.HandleFunc("/recall", s.recallHandler)
	mux.HandleFunc("/query-graph", s.graphHandler)
	mux.HandleFunc("/recovery-rate", s.recoveryRateHandler)
	mux.HandleFunc("/iteration-histogram", s.histogramHandler)
	mux.HandleFunc("/sessions-by-k", s.sessionsByKHandler)
	return mux
}

func (s *controlServer) listSessionMapHandler(w http.ResponseWriter, r *http.Request) {
	jsonString, err := s.sessionMap.MarshalSessions()
	if err != nil {
		log.Println(err)
		http.Error(w, "failed to encode sessions", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(jsonString)
}

func setEventStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

func (s *controlServer) trackAllSessionsHandler(w http.ResponseWriter, r *http.Request) {
	setEventStreamHeaders(w)
	clientGone := r.Context().Done()

	rc := http.NewResponseController(w)
	t := time.NewTicker(time.Second * 5)
	defer t.Stop()
	for {
		select {
		case <-clientGone:
			return
		case <-t.C:
			jsonString, err := s.sessionMap.MarshalSessions()
			if err != nil {
				log.Println(err)
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonString); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// realTimeSessionHandler streams the live state messages of one session as
// server-sent events until the session ends or the client leaves.
func (s *controlServer) realTimeSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.FormValue("id")
	stateChannel, err := s.sessionMap.Track(id)
	if err != nil {
		log.Printf("Cannot track session %s: %v", id, err)
		http.Error(w, err.Error(), trackStatus(err))
		return
	}
	defer s.sessionMap.Untrack(id)

	setEventStreamHeaders(w)
	clientGone := r.Context().Done()
	rc := http.NewResponseController(w)
	for {
		select {
		case <-clientGone:
			return
		case currentState, open := <-stateChannel:
			if !open {
				return
			}
			parsedState, err := json.Marshal(currentState)
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", parsedState); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// realTimeSessionSocket is the websocket flavour of realTimeSessionHandler.
func (s *controlServer) realTimeSessionSocket(ws *websocket.Conn) {
	defer ws.Close()
	id := ws.Request().URL.Query().Get("id")
	stateChannel, err := s.sessionMap.Track(id)
	if err != nil {
		websocket.JSON.Send(ws, map[string]string{"error": err.Error()})
		return
	}
	defer s.sessionMap.Untrack(id)

	for currentState := range stateChannel {
		if err := websocket.JSON.Send(ws, currentState); err != nil {
			return
		}
	}
}

func trackStatus(err error) int {
	if errors.Is(err, hop_controllers.ErrSessionWatched) {
		return http.StatusConflict
	}
	return http.StatusNotFound
}

func (s *controlServer) settingsByUidHandler(w http.ResponseWriter, r *http.Request) {
	id := r.FormValue("id")
	config, ok := s.sessionMap.Config(id)
	if !ok {
		log.Println("Session UID not found: ", id)
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, config)
}

type RecallRequestBody struct {
	Patterns      [][]int    `json:"patterns"`
	ASCII         [][]string `json:"ascii"`
	Initial       []int      `json:"initial"`
	InitialASCII  []string   `json:"initial_ascii"`
	TargetPattern *int       `json:"target_pattern"`
	Seed          int64      `json:"seed"`
	MaxIterations int        `json:"max_iterations"`
	Patience      int        `json:"patience"`
	MinIterations int        `json:"min_iterations"`
	UpdateRule    string     `json:"update_rule"`
	Grid          bool       `json:"grid"`
}

type RecallResponseBody struct {
	hop_core.RecallResult
	TargetPattern int           `json:"target_pattern"`
	TargetEnergy  float64       `json:"target_energy"`
	Grids         [][][]float64 `json:"grids,omitempty"`
}

// recallHandler stores the submitted patterns and recalls from the submitted
// state. Without target_pattern the energy target is the stored pattern
// closest to the initial state.
func (s *controlServer) recallHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.limits.maxBodyBytes)
	var body RecallRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	patterns, initial, err := body.resolve()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.limits.check(body, patterns, initial); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	stacked, err := hop_core.StackPatterns(patterns...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	model, err := hop_core.BuildModel(stacked)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	updater, err := hop_handlers.UpdaterFactory(body.UpdateRule)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	target, err := pickTarget(model, initial, body.TargetPattern)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	opts := hop_core.RecallOptions{
		MaxIterations: body.MaxIterations,
		Patience:      body.Patience,
		MinIterations: body.MinIterations,
		Update:        updater,
	}
	result, err := hop_core.Recall(model, initial, model.PatternEnergy(target), opts, rand.New(rand.NewSource(body.Seed)))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	response := RecallResponseBody{
		RecallResult:  result,
		TargetPattern: target,
		TargetEnergy:  model.PatternEnergy(target),
	}
	if body.Grid {
		for _, state := range result.States {
			grid, err := hop_core.StateToGrid(state)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			response.Grids = append(response.Grids, grid)
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func (body RecallRequestBody) resolve() ([][]int, []int, error) {
	patterns := body.Patterns
	for _, lines := range body.ASCII {
		p, err := hop_core.ParseASCIIPattern(lines)
		if err != nil {
			return nil, nil, err
		}
		patterns = append(patterns, p)
	}
	initial := body.Initial
	if len(body.InitialASCII) > 0 {
		p, err := hop_core.ParseASCIIPattern(body.InitialASCII)
		if err != nil {
			return nil, nil, err
		}
		initial = p
	}
	if len(patterns) == 0 || len(initial) == 0 {
		return nil, nil, fmt.Errorf("patterns and initial state are required")
	}
	return patterns, initial, nil
}

func (l recallLimits) check(body RecallRequestBody, patterns [][]int, initial []int) error {
	if body.MaxIterations > l.maxIterations {
		return fmt.Errorf("max_iterations %d exceeds the limit of %d", body.MaxIterations, l.maxIterations)
	}
	if body.Patience > l.maxIterations || body.MinIterations > l.maxIterations {
		return fmt.Errorf("patience and min_iterations may not exceed %d", l.maxIterations)
	}
	if len(patterns) > l.maxPatterns {
		return fmt.Errorf("%d patterns exceed the limit of %d", len(patterns), l.maxPatterns)
	}
	if len(initial) > l.maxUnits || len(patterns[0]) > l.maxUnits {
		return fmt.Errorf("patterns of more than %d units are not accepted", l.maxUnits)
	}
	return nil
}

func pickTarget(model *hop_core.Model, initial []int, requested *int) (int, error) {
	if requested != nil {
		if *requested < 0 || *requested >= model.PatternCount() {
			return 0, fmt.Errorf("target_pattern %d out of range", *requested)
		}
		return *requested, nil
	}
	best, bestDistance := 0, -1
	for k := 0; k < model.PatternCount(); k++ {
		d, err := hop_core.Hamming(model.Pattern(k), initial)
		if err != nil {
			return 0, err
		}
		if bestDistance < 0 || d < bestDistance {
			best, bestDistance = k, d
		}
	}
	return best, nil
}

type GraphRequestBody struct {
	X          string `json:"X"`
	Y          string `json:"Y"`
	Corruption string `json:"Corruption"`
	UpdateRule string `json:"UpdateRule"`
}

func (s *controlServer) graphHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}
	var requestBody GraphRequestBody
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if !s.db.ValidateGraphAxis(requestBody.X) || !s.db.ValidateGraphAxis(requestBody.Y) {
		http.Error(w, "Invalid axis requested", http.StatusBadRequest)
		return
	}

	response, err := s.db.QuerySurfaceGraph(requestBody.X, requestBody.Y, strings.ToUpper(requestBody.Corruption), strings.ToUpper(requestBody.UpdateRule))
	if err != nil {
		log.Printf("Error while querying graph: %v", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

type HistogramRequestBody struct {
	Column     string `json:"Column"`
	Corruption string `json:"Corruption"`
	UpdateRule string `json:"UpdateRule"`
	Buckets    int    `json:"Buckets"`
}

func (s *controlServer) histogramHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}
	requestBody := HistogramRequestBody{Column: "INITIAL_DISTANCE", Buckets: 10}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	histogram, err := s.db.QueryIterationHistogram(requestBody.Column, requestBody.Corruption, requestBody.UpdateRule, requestBody.Buckets)
	if err != nil {
		log.Printf("Error while querying histogram: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, histogram)
}

func (s *controlServer) sessionsByKHandler(w http.ResponseWriter, r *http.Request) {
	k, err := strconv.Atoi(r.FormValue("k"))
	if err != nil {
		http.Error(w, "k must be an integer", http.StatusBadRequest)
		return
	}
	updateRule := r.FormValue("update_rule")
	if updateRule == "" {
		updateRule = "POSITIVE"
	}
	summary, err := s.db.GetSessionsByK(k, updateRule)
	if err != nil {
		log.Printf("Error while querying sessions by k: %v", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *controlServer) recoveryRateHandler(w http.ResponseWriter, r *http.Request) {
	rates, err := s.db.QueryRecoveryRate()
	if err != nil {
		log.Printf("Error while querying recovery rate: %v", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rates)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}
