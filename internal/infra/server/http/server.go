// Package httpserver exposes read-only HTTP handlers for tracker health and match rows.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/ShaiBY10/lolDataAnalysis/internal/app/tracker"
	"github.com/ShaiBY10/lolDataAnalysis/internal/domain/matchstore"
	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/config"
)

const (
	healthPath          = "/healthz"
	trackersPath        = "/trackers"
	trackerDetailPrefix = trackersPath + "/"
	matchesPath         = "/matches"
	matchDetailPrefix   = matchesPath + "/"

	readHeaderTimeout = 5 * time.Second
	lookupTimeout     = 5 * time.Second
)

// StatusProvider reports the latest snapshot of every tracker.
type StatusProvider interface {
	Statuses() []tracker.Status
}

// MatchReader loads persisted match rows.
type MatchReader interface {
	LoadMatch(ctx context.Context, gameID int64, puuid string) (matchstore.Record, error)
}

type handlerFunc func(http.ResponseWriter, *http.Request)

type httpServer struct {
	environment config.Environment
	trackers    StatusProvider
	matches     MatchReader
	started     time.Time
}

type healthPayload struct {
	Status      string         `json:"status"`
	Environment string         `json:"environment"`
	Uptime      string         `json:"uptime"`
	Trackers    int            `json:"trackers"`
	Phases      map[string]int `json:"phases"`
}

type matchPayload struct {
	GameID         int64           `json:"gameId"`
	PUUID          string          `json:"puuid"`
	StartTimestamp *time.Time      `json:"startTimestamp,omitempty"`
	Result         string          `json:"gameResult"`
	PreGame        json.RawMessage `json:"preGameData,omitempty"`
	PostGame       json.RawMessage `json:"postGameData,omitempty"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// NewHandler creates the control API handler. matches may be nil, which disables match lookups.
func NewHandler(environment config.Environment, trackers StatusProvider, matches MatchReader) http.Handler {
	server := &httpServer{environment: environment, trackers: trackers, matches: matches, started: time.Now()}
	mux := http.NewServeMux()

	mux.Handle(healthPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getHealth,
	}))
	mux.Handle(trackersPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.listTrackers,
	}))
	mux.Handle(trackerDetailPrefix, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getTracker,
	}))
	mux.Handle(matchDetailPrefix, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.getMatch,
	}))

	return withCORS(mux)
}

// NewServer wraps handler in an http.Server bound to cfg.Addr.
func NewServer(cfg config.APIServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func (s *httpServer) methodHandlers(handlers map[string]handlerFunc) http.Handler {
	allowed := allowedMethods(handlers)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler(w, r)
			return
		}
		methodNotAllowed(w, allowed...)
	})
}

func allowedMethods(handlers map[string]handlerFunc) []string {
	if len(handlers) == 0 {
		return nil
	}
	allowed := make([]string, 0, len(handlers))
	for method := range handlers {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	return allowed
}

// getHealth reports 503 once every tracker has halted; a partial halt is "degraded".
func (s *httpServer) getHealth(w http.ResponseWriter, _ *http.Request) {
	statuses := s.statuses()
	phases := make(map[string]int)
	halted := 0
	for _, st := range statuses {
		phases[string(st.Phase)]++
		if st.Phase == tracker.PhaseHalted {
			halted++
		}
	}

	payload := healthPayload{
		Status:      "ok",
		Environment: string(s.environment),
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Trackers:    len(statuses),
		Phases:      phases,
	}
	code := http.StatusOK
	switch {
	case len(statuses) > 0 && halted == len(statuses):
		payload.Status = "halted"
		code = http.StatusServiceUnavailable
	case halted > 0:
		payload.Status = "degraded"
	}
	writeJSON(w, code, payload)
}

func (s *httpServer) listTrackers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"trackers": s.statuses()})
}

func (s *httpServer) getTracker(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, trackerDetailPrefix), "/")
	if name == "" {
		writeError(w, http.StatusNotFound, "summoner name required")
		return
	}
	for _, st := range s.statuses() {
		if strings.EqualFold(st.Summoner, name) {
			writeJSON(w, http.StatusOK, st)
			return
		}
	}
	writeError(w, http.StatusNotFound, "tracker not found")
}

// getMatch serves /matches/{gameId}/{puuid}.
func (s *httpServer) getMatch(w http.ResponseWriter, r *http.Request) {
	if s.matches == nil {
		writeError(w, http.StatusNotFound, "match lookups disabled")
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, matchDetailPrefix), "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, http.StatusBadRequest, "expected /matches/{gameId}/{puuid}")
		return
	}
	gameID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || gameID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid game id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), lookupTimeout)
	defer cancel()
	record, err := s.matches.LoadMatch(ctx, gameID, parts[1])
	if err != nil {
		if errors.Is(err, matchstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "match not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "load match failed")
		return
	}
	writeJSON(w, http.StatusOK, matchPayload{
		GameID:         record.GameID,
		PUUID:          record.PUUID,
		StartTimestamp: record.StartTimestamp,
		Result:         string(record.Result),
		PreGame:        json.RawMessage(record.PreGame),
		PostGame:       json.RawMessage(record.PostGame),
		UpdatedAt:      record.UpdatedAt,
	})
}

func (s *httpServer) statuses() []tracker.Status {
	if s.trackers == nil {
		return []tracker.Status{}
	}
	statuses := s.trackers.Statuses()
	if statuses == nil {
		return []tracker.Status{}
	}
	return statuses
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": message})
}

func withCORS(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
