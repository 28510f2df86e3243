// source: players.sql

package db

import (
	"context"

	"github.com/google/uuid"
)

const playerColumns = `id, game_id, name, is_host, score, join_seq, token_hash, created_at, updated_at`

func scanPlayer(row interface{ Scan(...any) error }) (Player, error) {
	var i Player
	err := row.Scan(
		&i.ID,
		&i.GameID,
		&i.Name,
		&i.IsHost,
		&i.Score,
		&i.JoinSeq,
		&i.TokenHash,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const insertPlayer = `-- name: InsertPlayer :one
INSERT INTO players (id, game_id, name, is_host, token_hash)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + playerColumns

type InsertPlayerParams struct {
	ID        uuid.UUID `json:"id"`
	GameID    uuid.UUID `json:"game_id"`
	Name      string    `json:"name"`
	IsHost    bool      `json:"is_host"`
	TokenHash string    `json:"token_hash"`
}

func (q *Queries) InsertPlayer(ctx context.Context, arg InsertPlayerParams) (Player, error) {
	row := q.db.QueryRow(ctx, insertPlayer, arg.ID, arg.GameID, arg.Name, arg.IsHost, arg.TokenHash)
	return scanPlayer(row)
}

const getPlayer = `-- name: GetPlayer :one
SELECT ` + playerColumns + `
FROM players
WHERE id = $1`

func (q *Queries) GetPlayer(ctx context.Context, id uuid.UUID) (Player, error) {
	return scanPlayer(q.db.QueryRow(ctx, getPlayer, id))
}

const listPlayersByJoin = `-- name: ListPlayersByJoin :many
SELECT ` + playerColumns + `
FROM players
WHERE game_id = $1
ORDER BY join_seq`

func (q *Queries) ListPlayersByJoin(ctx context.Context, gameID uuid.UUID) ([]Player, error) {
	return q.listPlayers(ctx, listPlayersByJoin, gameID)
}

const listPlayersByScore = `-- name: ListPlayersByScore :many
SELECT ` + playerColumns + `
FROM players
WHERE game_id = $1
ORDER BY score DESC, join_seq`

func (q *Queries) ListPlayersByScore(ctx context.Context, gameID uuid.UUID) ([]Player, error) {
	return q.listPlayers(ctx, listPlayersByScore, gameID)
}

func (q *Queries) listPlayers(ctx context.Context, query string, gameID uuid.UUID) ([]Player, error) {
	rows, err := q.db.Query(ctx, query, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Player
	for rows.Next() {
		i, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updatePlayerScore = `-- name: UpdatePlayerScore :one
UPDATE players
SET score = $3,
    updated_at = now()
WHERE id = $1
  AND score = $2
RETURNING ` + playerColumns

type UpdatePlayerScoreParams struct {
	ID            uuid.UUID `json:"id"`
	ExpectedScore int32     `json:"expected_score"`
	Score         int32     `json:"score"`
}

func (q *Queries) UpdatePlayerScore(ctx context.Context, arg UpdatePlayerScoreParams) (Player, error) {
	return scanPlayer(q.db.QueryRow(ctx, updatePlayerScore, arg.ID, arg.ExpectedScore, arg.Score))
}
