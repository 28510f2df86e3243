// source: questions.sql

package db

import (
	"context"

	"github.com/google/uuid"
)

const insertQuestionsBatch = `-- name: InsertQuestionsBatch :exec
INSERT INTO questions (id, game_id, question_order, question_text, options, answer_index, time_limit)
SELECT unnest($1::text[])::uuid,
       $2,
       unnest($3::int[]),
       unnest($4::text[]),
       unnest($5::text[])::jsonb,
       unnest($6::int[]),
       unnest($7::int[])`

type InsertQuestionsBatchParams struct {
	IDs          []string  `json:"ids"`
	GameID       uuid.UUID `json:"game_id"`
	Orders       []int32   `json:"orders"`
	Texts        []string  `json:"texts"`
	Options      []string  `json:"options"`
	AnswerIndexs []int32   `json:"answer_indexs"`
	TimeLimits   []int32   `json:"time_limits"`
}

func (q *Queries) InsertQuestionsBatch(ctx context.Context, arg InsertQuestionsBatchParams) error {
	_, err := q.db.Exec(ctx, insertQuestionsBatch,
		arg.IDs,
		arg.GameID,
		arg.Orders,
		arg.Texts,
		arg.Options,
		arg.AnswerIndexs,
		arg.TimeLimits,
	)
	return err
}

const listQuestions = `-- name: ListQuestions :many
SELECT id, game_id, question_order, question_text, options, answer_index, time_limit
FROM questions
WHERE game_id = $1
ORDER BY question_order`

func (q *Queries) ListQuestions(ctx context.Context, gameID uuid.UUID) ([]Question, error) {
	rows, err := q.db.Query(ctx, listQuestions, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Question
	for rows.Next() {
		var i Question
		if err := rows.Scan(
			&i.ID,
			&i.GameID,
			&i.QuestionOrder,
			&i.QuestionText,
			&i.Options,
			&i.AnswerIndex,
			&i.TimeLimit,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getQuestionGameID = `-- name: GetQuestionGameID :one
SELECT game_id FROM questions WHERE id = $1`

func (q *Queries) GetQuestionGameID(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var gameID uuid.UUID
	err := q.db.QueryRow(ctx, getQuestionGameID, id).Scan(&gameID)
	return gameID, err
}
