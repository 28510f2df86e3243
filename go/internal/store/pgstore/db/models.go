package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Game struct {
	ID                   uuid.UUID          `json:"id"`
	Code                 string             `json:"code"`
	HostName             string             `json:"host_name"`
	Topic                string             `json:"topic"`
	Status               string             `json:"status"`
	CurrentQuestionIndex pgtype.Int4        `json:"current_question_index"`
	QuestionStartedAt    pgtype.Timestamptz `json:"question_started_at"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

type Player struct {
	ID        uuid.UUID `json:"id"`
	GameID    uuid.UUID `json:"game_id"`
	Name      string    `json:"name"`
	IsHost    bool      `json:"is_host"`
	Score     int32     `json:"score"`
	JoinSeq   int64     `json:"join_seq"`
	TokenHash string    `json:"token_hash"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Question struct {
	ID            uuid.UUID `json:"id"`
	GameID        uuid.UUID `json:"game_id"`
	QuestionOrder int32     `json:"question_order"`
	QuestionText  string    `json:"question_text"`
	Options       []byte    `json:"options"`
	AnswerIndex   int32     `json:"answer_index"`
	TimeLimit     int32     `json:"time_limit"`
}

type Answer struct {
	ID            uuid.UUID `json:"id"`
	PlayerID      uuid.UUID `json:"player_id"`
	QuestionID    uuid.UUID `json:"question_id"`
	SelectedIndex int32     `json:"selected_index"`
	IsCorrect     bool      `json:"is_correct"`
	AnsweredAt    time.Time `json:"answered_at"`
}

type GameOutbox struct {
	ID         uuid.UUID          `json:"id"`
	Seq        int64              `json:"seq"`
	GameID     uuid.UUID          `json:"game_id"`
	Entity     string             `json:"entity"`
	Op         string             `json:"op"`
	Before     []byte             `json:"before"`
	After      []byte             `json:"after"`
	OccurredAt time.Time          `json:"occurred_at"`
	SentAt     pgtype.Timestamptz `json:"sent_at"`
}
