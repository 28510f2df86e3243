// Package view turns a game's change feed into a stream of fully resolved
// snapshots. Every snapshot is rebuilt from the store, so duplicate or
// reordered change events never leave an observer with drifted state.
package view

import (
	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/game/session"
	"github.com/mcdev12/livequiz/go/internal/models"
)

// Transition flags what changed since the previous snapshot this observer saw.
type Transition struct {
	Started         bool `json:"started"`
	QuestionChanged bool `json:"question_changed"`
	Finished        bool `json:"finished"`
}

// Any reports whether any flag is set.
func (t Transition) Any() bool {
	return t.Started || t.QuestionChanged || t.Finished
}

// QuestionView is a question as shown to players. AnswerIndex is only
// present once the question can no longer be answered.
type QuestionView struct {
	Index         int      `json:"index"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	TimeLimitSec  int      `json:"time_limit"`
	AnswerIndex   *int     `json:"answer_index,omitempty"`
	AnsweredCount int      `json:"answered_count"`
}

// GameView is the complete observable state of one game.
type GameView struct {
	Game          models.Game        `json:"game"`
	Players       []session.Standing `json:"players"`
	QuestionCount int                `json:"question_count"`
	Question      *QuestionView      `json:"question,omitempty"`
	// Results lists every question with its answer once the game is finished.
	Results    []QuestionView `json:"results,omitempty"`
	Transition Transition     `json:"transition"`
}

// CurrentIndex returns the active question index, or -1.
func (v *GameView) CurrentIndex() int {
	return v.Game.QuestionIndex()
}

// Player finds a standing by player id.
func (v *GameView) Player(id uuid.UUID) (session.Standing, bool) {
	for _, p := range v.Players {
		if p.PlayerID == id {
			return p, true
		}
	}
	return session.Standing{}, false
}
