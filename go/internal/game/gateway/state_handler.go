package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livequiz/go/internal/game/gameerr"
	"github.com/mcdev12/livequiz/go/internal/game/view"
	"github.com/rs/zerolog/log"
)

// StateResponse is a one-off snapshot, used by clients to resync after a
// reconnect.
type StateResponse struct {
	View             *view.GameView `json:"view"`
	TimeRemainingSec *int           `json:"time_remaining_sec,omitempty"`
	ServerTime       time.Time      `json:"server_time"`
}

// StateHandler handles HTTP requests for game state
type StateHandler struct {
	observer Observer
	clock    clockwork.Clock
}

// NewStateHandler creates a new state handler
func NewStateHandler(observer Observer, clock clockwork.Clock) *StateHandler {
	return &StateHandler{
		observer: observer,
		clock:    clock,
	}
}

// HandleGetGameState handles GET /api/games/{id}/state
func (h *StateHandler) HandleGetGameState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	gameIDStr := extractGameIDFromPath(r.URL.Path)
	if gameIDStr == "" {
		http.NotFound(w, r)
		return
	}
	gameID, err := uuid.Parse(gameIDStr)
	if err != nil {
		http.Error(w, "Invalid game ID format", http.StatusBadRequest)
		return
	}

	v, err := h.observer.Snapshot(r.Context(), gameID)
	if errors.Is(err, gameerr.ErrGameNotFound) {
		http.Error(w, "Game not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("game_id", gameID.String()).Msg("failed to get game state")
		http.Error(w, "Failed to get game state", http.StatusInternalServerError)
		return
	}

	now := h.clock.Now()
	resp := StateResponse{View: v, ServerTime: now.UTC()}
	if v.Question != nil && v.Game.QuestionStartedAt != nil {
		deadline := v.Game.QuestionStartedAt.Add(time.Duration(v.Question.TimeLimitSec) * time.Second)
		remaining := int(deadline.Sub(now) / time.Second)
		if remaining < 0 {
			remaining = 0
		}
		resp.TimeRemainingSec = &remaining
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode game state response")
	}
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/games/", h.HandleGetGameState)
}

// extractGameIDFromPath extracts the id from /api/games/{id}/state.
func extractGameIDFromPath(path string) string {
	rest, ok := strings.CutPrefix(path, "/api/games/")
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, "/state")
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}
