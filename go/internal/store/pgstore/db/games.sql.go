// source: games.sql

package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const gameColumns = `id, code, host_name, topic, status, current_question_index, question_started_at, created_at, updated_at`

func scanGame(row interface{ Scan(...any) error }) (Game, error) {
	var i Game
	err := row.Scan(
		&i.ID,
		&i.Code,
		&i.HostName,
		&i.Topic,
		&i.Status,
		&i.CurrentQuestionIndex,
		&i.QuestionStartedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const insertGame = `-- name: InsertGame :one
INSERT INTO games (id, code, host_name, topic, status)
VALUES ($1, $2, $3, $4, 'lobby')
RETURNING ` + gameColumns

type InsertGameParams struct {
	ID       uuid.UUID `json:"id"`
	Code     string    `json:"code"`
	HostName string    `json:"host_name"`
	Topic    string    `json:"topic"`
}

func (q *Queries) InsertGame(ctx context.Context, arg InsertGameParams) (Game, error) {
	row := q.db.QueryRow(ctx, insertGame, arg.ID, arg.Code, arg.HostName, arg.Topic)
	return scanGame(row)
}

const getGame = `-- name: GetGame :one
SELECT ` + gameColumns + `
FROM games
WHERE id = $1`

func (q *Queries) GetGame(ctx context.Context, id uuid.UUID) (Game, error) {
	return scanGame(q.db.QueryRow(ctx, getGame, id))
}

const lockGame = `-- name: LockGame :one
SELECT ` + gameColumns + `
FROM games
WHERE id = $1
FOR SHARE`

func (q *Queries) LockGame(ctx context.Context, id uuid.UUID) (Game, error) {
	return scanGame(q.db.QueryRow(ctx, lockGame, id))
}

const getGameByCode = `-- name: GetGameByCode :one
SELECT ` + gameColumns + `
FROM games
WHERE code = $1
ORDER BY (status <> 'finished') DESC, created_at DESC
LIMIT 1`

func (q *Queries) GetGameByCode(ctx context.Context, code string) (Game, error) {
	return scanGame(q.db.QueryRow(ctx, getGameByCode, code))
}

const updateGameStatus = `-- name: UpdateGameStatus :one
UPDATE games
SET status = $4,
    current_question_index = $5,
    question_started_at = COALESCE($6, question_started_at),
    updated_at = now()
WHERE id = $1
  AND status = $2
  AND current_question_index IS NOT DISTINCT FROM $3
RETURNING ` + gameColumns

type UpdateGameStatusParams struct {
	ID                   uuid.UUID          `json:"id"`
	ExpectedStatus       string             `json:"expected_status"`
	ExpectedIndex        pgtype.Int4        `json:"expected_index"`
	Status               string             `json:"status"`
	CurrentQuestionIndex pgtype.Int4        `json:"current_question_index"`
	QuestionStartedAt    pgtype.Timestamptz `json:"question_started_at"`
}

func (q *Queries) UpdateGameStatus(ctx context.Context, arg UpdateGameStatusParams) (Game, error) {
	row := q.db.QueryRow(ctx, updateGameStatus,
		arg.ID,
		arg.ExpectedStatus,
		arg.ExpectedIndex,
		arg.Status,
		arg.CurrentQuestionIndex,
		arg.QuestionStartedAt,
	)
	return scanGame(row)
}
