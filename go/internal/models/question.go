package models

import (
	"time"

	"github.com/google/uuid"
)

// Question is one quiz item, fixed when the game is created.
type Question struct {
	ID           uuid.UUID `json:"id"`
	GameID       uuid.UUID `json:"game_id"`
	Order        int       `json:"question_order"`
	Text         string    `json:"question_text"`
	Options      []string  `json:"options"`
	AnswerIndex  int       `json:"answer_index"`
	TimeLimitSec int       `json:"time_limit"`
}

// TimeLimit returns the answer window as a duration.
func (q *Question) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitSec) * time.Second
}

// Answer is one player's response to one question.
type Answer struct {
	ID            uuid.UUID `json:"id"`
	PlayerID      uuid.UUID `json:"player_id"`
	QuestionID    uuid.UUID `json:"question_id"`
	SelectedIndex int       `json:"selected_index"`
	IsCorrect     bool      `json:"is_correct"`
	AnsweredAt    time.Time `json:"answered_at"`
}
