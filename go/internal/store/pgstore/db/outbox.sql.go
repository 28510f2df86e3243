// source: outbox.sql

package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const outboxColumns = `id, seq, game_id, entity, op, before, after, occurred_at, sent_at`

func scanOutbox(row interface{ Scan(...any) error }) (GameOutbox, error) {
	var i GameOutbox
	err := row.Scan(
		&i.ID,
		&i.Seq,
		&i.GameID,
		&i.Entity,
		&i.Op,
		&i.Before,
		&i.After,
		&i.OccurredAt,
		&i.SentAt,
	)
	return i, err
}

const insertOutboxEvent = `-- name: InsertOutboxEvent :exec
INSERT INTO game_outbox (id, game_id, entity, op, before, after, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

type InsertOutboxEventParams struct {
	ID         uuid.UUID             `json:"id"`
	GameID     uuid.UUID             `json:"game_id"`
	Entity     string                `json:"entity"`
	Op         string                `json:"op"`
	Before     pqtype.NullRawMessage `json:"before"`
	After      []byte                `json:"after"`
	OccurredAt time.Time             `json:"occurred_at"`
}

func (q *Queries) InsertOutboxEvent(ctx context.Context, arg InsertOutboxEventParams) error {
	_, err := q.db.Exec(ctx, insertOutboxEvent,
		arg.ID,
		arg.GameID,
		arg.Entity,
		arg.Op,
		arg.Before,
		arg.After,
		arg.OccurredAt,
	)
	return err
}

const fetchOutboxByID = `-- name: FetchOutboxByID :one
SELECT ` + outboxColumns + `
FROM game_outbox
WHERE id = $1 AND sent_at IS NULL`

func (q *Queries) FetchOutboxByID(ctx context.Context, id uuid.UUID) (GameOutbox, error) {
	return scanOutbox(q.db.QueryRow(ctx, fetchOutboxByID, id))
}

const fetchUnsentOutbox = `-- name: FetchUnsentOutbox :many
SELECT ` + outboxColumns + `
FROM game_outbox
WHERE sent_at IS NULL
ORDER BY seq
LIMIT $1`

func (q *Queries) FetchUnsentOutbox(ctx context.Context, limit int32) ([]GameOutbox, error) {
	rows, err := q.db.Query(ctx, fetchUnsentOutbox, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GameOutbox
	for rows.Next() {
		i, err := scanOutbox(rows)
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

const markOutboxSent = `-- name: MarkOutboxSent :exec
UPDATE game_outbox SET sent_at = now() WHERE id = $1`

func (q *Queries) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, markOutboxSent, id)
	return err
}

const countUnsentOutbox = `-- name: CountUnsentOutbox :one
SELECT count(*) FROM game_outbox WHERE sent_at IS NULL`

func (q *Queries) CountUnsentOutbox(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countUnsentOutbox).Scan(&count)
	return count, err
}
