// source: answers.sql

package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const answerColumns = `id, player_id, question_id, selected_index, is_correct, answered_at`

func scanAnswer(row interface{ Scan(...any) error }) (Answer, error) {
	var i Answer
	err := row.Scan(
		&i.ID,
		&i.PlayerID,
		&i.QuestionID,
		&i.SelectedIndex,
		&i.IsCorrect,
		&i.AnsweredAt,
	)
	return i, err
}

const insertAnswerIfAbsent = `-- name: InsertAnswerIfAbsent :one
INSERT INTO answers (id, player_id, question_id, selected_index, is_correct, answered_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT ON CONSTRAINT answers_player_question_key DO NOTHING
RETURNING ` + answerColumns

type InsertAnswerIfAbsentParams struct {
	ID            uuid.UUID `json:"id"`
	PlayerID      uuid.UUID `json:"player_id"`
	QuestionID    uuid.UUID `json:"question_id"`
	SelectedIndex int32     `json:"selected_index"`
	IsCorrect     bool      `json:"is_correct"`
	AnsweredAt    time.Time `json:"answered_at"`
}

// InsertAnswerIfAbsent returns pgx.ErrNoRows when the player already answered.
func (q *Queries) InsertAnswerIfAbsent(ctx context.Context, arg InsertAnswerIfAbsentParams) (Answer, error) {
	row := q.db.QueryRow(ctx, insertAnswerIfAbsent,
		arg.ID,
		arg.PlayerID,
		arg.QuestionID,
		arg.SelectedIndex,
		arg.IsCorrect,
		arg.AnsweredAt,
	)
	return scanAnswer(row)
}

const getAnswer = `-- name: GetAnswer :one
SELECT ` + answerColumns + `
FROM answers
WHERE player_id = $1 AND question_id = $2`

type GetAnswerParams struct {
	PlayerID   uuid.UUID `json:"player_id"`
	QuestionID uuid.UUID `json:"question_id"`
}

func (q *Queries) GetAnswer(ctx context.Context, arg GetAnswerParams) (Answer, error) {
	return scanAnswer(q.db.QueryRow(ctx, getAnswer, arg.PlayerID, arg.QuestionID))
}

const countAnswers = `-- name: CountAnswers :one
SELECT count(*) FROM answers WHERE question_id = $1`

func (q *Queries) CountAnswers(ctx context.Context, questionID uuid.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countAnswers, questionID).Scan(&count)
	return count, err
}
