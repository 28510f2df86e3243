// Package pgstore implements store.Store on PostgreSQL. Every mutation
// writes a game_outbox row in the same transaction; a trigger announces the
// row with pg_notify and the outbox relay fans it out.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/sqlutil"
	"github.com/mcdev12/livequiz/go/internal/store"
	"github.com/mcdev12/livequiz/go/internal/store/pgstore/db"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

// Store is the PostgreSQL store. Reads run on the pool; every write runs in
// a transaction together with its outbox row.
type Store struct {
	*queries
	pool *pgxpool.Pool
	feed store.ChangeFeed
}

var _ store.Store = (*Store)(nil)

// New creates a Store. feed is where subscribers receive relayed changes,
// usually the local fan-out hub fed by the gateway consumer.
func New(pool *pgxpool.Pool, feed store.ChangeFeed, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		queries: &queries{q: db.New(pool), now: clock.Now},
		pool:    pool,
		feed:    feed,
	}
}

// Queries exposes the generated query layer, for the outbox relay.
func (s *Store) Queries() *db.Queries {
	return s.q
}

// SubscribeChanges implements store.ChangeFeed.
func (s *Store) SubscribeChanges(gameID uuid.UUID, kinds ...models.EntityKind) (store.Subscription, error) {
	if s.feed == nil {
		return nil, errors.New("pgstore: no change feed configured")
	}
	return s.feed.SubscribeChanges(gameID, kinds...)
}

// RunInTx implements store.Store.
func (s *Store) RunInTx(ctx context.Context, fn func(q store.Queries) error) error {
	err := sqlutil.Run(ctx, s.pool,
		func(tx pgx.Tx) *queries { return &queries{q: s.q.WithTx(tx), now: s.now} },
		func(q *queries) error { return fn(q) },
	)
	return unavailable(err)
}

func (s *Store) InsertGame(ctx context.Context, arg store.InsertGameParams) (g *models.Game, err error) {
	err = s.RunInTx(ctx, func(q store.Queries) error { g, err = q.InsertGame(ctx, arg); return err })
	return g, err
}

func (s *Store) UpdateGameStatus(ctx context.Context, arg store.UpdateGameStatusParams) (g *models.Game, err error) {
	err = s.RunInTx(ctx, func(q store.Queries) error { g, err = q.UpdateGameStatus(ctx, arg); return err })
	return g, err
}

func (s *Store) InsertPlayer(ctx context.Context, arg store.InsertPlayerParams) (p *models.Player, err error) {
	err = s.RunInTx(ctx, func(q store.Queries) error { p, err = q.InsertPlayer(ctx, arg); return err })
	return p, err
}

func (s *Store) UpdatePlayerScore(ctx context.Context, arg store.UpdatePlayerScoreParams) (p *models.Player, err error) {
	err = s.RunInTx(ctx, func(q store.Queries) error { p, err = q.UpdatePlayerScore(ctx, arg); return err })
	return p, err
}

func (s *Store) InsertQuestionsBatch(ctx context.Context, gameID uuid.UUID, questions []models.Question) error {
	return s.RunInTx(ctx, func(q store.Queries) error { return q.InsertQuestionsBatch(ctx, gameID, questions) })
}

func (s *Store) InsertAnswerIfAbsent(ctx context.Context, arg store.InsertAnswerParams) (a *models.Answer, inserted bool, err error) {
	err = s.RunInTx(ctx, func(q store.Queries) error { a, inserted, err = q.InsertAnswerIfAbsent(ctx, arg); return err })
	return a, inserted, err
}

// queries implements store.Queries on one connection or transaction.
type queries struct {
	q   *db.Queries
	now func() time.Time
}

var _ store.Queries = (*queries)(nil)

func (r *queries) emit(ctx context.Context, gameID uuid.UUID, entity models.EntityKind, op models.Operation, before, after any) error {
	evt, err := models.NewChangeEvent(gameID, entity, op, before, after, r.now())
	if err != nil {
		return err
	}
	err = r.q.InsertOutboxEvent(ctx, db.InsertOutboxEventParams{
		ID:         evt.ID,
		GameID:     evt.GameID,
		Entity:     string(evt.Entity),
		Op:         string(evt.Op),
		Before:     sqlutil.ToNullRawMessage(evt.Before),
		After:      evt.After,
		OccurredAt: evt.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("failed to write outbox event: %w", err)
	}
	return nil
}

func (r *queries) InsertGame(ctx context.Context, arg store.InsertGameParams) (*models.Game, error) {
	row, err := r.q.InsertGame(ctx, db.InsertGameParams{
		ID:       arg.ID,
		Code:     arg.Code,
		HostName: arg.HostName,
		Topic:    arg.Topic,
	})
	if err != nil {
		return nil, mapErr(err)
	}
	g := dbGameToModel(row)
	if err := r.emit(ctx, g.ID, models.EntityGame, models.OpInsert, nil, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (r *queries) GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	row, err := r.q.GetGame(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	return dbGameToModel(row), nil
}

func (r *queries) GetGameByCode(ctx context.Context, code string) (*models.Game, error) {
	row, err := r.q.GetGameByCode(ctx, code)
	if err != nil {
		return nil, mapErr(err)
	}
	return dbGameToModel(row), nil
}

func (r *queries) LockGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	row, err := r.q.LockGame(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	return dbGameToModel(row), nil
}

func (r *queries) UpdateGameStatus(ctx context.Context, arg store.UpdateGameStatusParams) (*models.Game, error) {
	if arg.Status.Rank() < arg.ExpectedStatus.Rank() {
		return nil, store.ErrConflict
	}
	before, err := r.GetGame(ctx, arg.ID)
	if err != nil {
		return nil, err
	}

	row, err := r.q.UpdateGameStatus(ctx, db.UpdateGameStatusParams{
		ID:                   arg.ID,
		ExpectedStatus:       string(arg.ExpectedStatus),
		ExpectedIndex:        sqlutil.ToPgInt4(arg.ExpectedIndex),
		Status:               string(arg.Status),
		CurrentQuestionIndex: sqlutil.ToPgInt4(arg.CurrentQuestionIndex),
		QuestionStartedAt:    sqlutil.ToPgTimestamptz(arg.QuestionStartedAt),
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrConflict
	}
	if err != nil {
		return nil, mapErr(err)
	}
	g := dbGameToModel(row)
	if err := r.emit(ctx, g.ID, models.EntityGame, models.OpUpdate, before, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (r *queries) InsertPlayer(ctx context.Context, arg store.InsertPlayerParams) (*models.Player, error) {
	row, err := r.q.InsertPlayer(ctx, db.InsertPlayerParams{
		ID:        arg.ID,
		GameID:    arg.GameID,
		Name:      arg.Name,
		IsHost:    arg.IsHost,
		TokenHash: arg.TokenHash,
	})
	if err != nil {
		return nil, mapErr(err)
	}
	p := dbPlayerToModel(row)
	if err := r.emit(ctx, p.GameID, models.EntityPlayer, models.OpInsert, nil, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *queries) GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	row, err := r.q.GetPlayer(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	return dbPlayerToModel(row), nil
}

func (r *queries) ListPlayers(ctx context.Context, gameID uuid.UUID, order store.PlayerOrder) ([]models.Player, error) {
	var (
		rows []db.Player
		err  error
	)
	if order == store.OrderByScore {
		rows, err = r.q.ListPlayersByScore(ctx, gameID)
	} else {
		rows, err = r.q.ListPlayersByJoin(ctx, gameID)
	}
	if err != nil {
		return nil, mapErr(err)
	}
	players := make([]models.Player, len(rows))
	for i, row := range rows {
		players[i] = *dbPlayerToModel(row)
	}
	return players, nil
}

func (r *queries) UpdatePlayerScore(ctx context.Context, arg store.UpdatePlayerScoreParams) (*models.Player, error) {
	if arg.Score < arg.ExpectedScore {
		return nil, store.ErrScoreDecrease
	}
	before, err := r.GetPlayer(ctx, arg.ID)
	if err != nil {
		return nil, err
	}

	row, err := r.q.UpdatePlayerScore(ctx, db.UpdatePlayerScoreParams{
		ID:            arg.ID,
		ExpectedScore: int32(arg.ExpectedScore),
		Score:         int32(arg.Score),
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrConflict
	}
	if err != nil {
		return nil, mapErr(err)
	}
	p := dbPlayerToModel(row)
	if err := r.emit(ctx, p.GameID, models.EntityPlayer, models.OpUpdate, before, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *queries) InsertQuestionsBatch(ctx context.Context, gameID uuid.UUID, questions []models.Question) error {
	arg := db.InsertQuestionsBatchParams{
		GameID:       gameID,
		IDs:          make([]string, len(questions)),
		Orders:       make([]int32, len(questions)),
		Texts:        make([]string, len(questions)),
		Options:      make([]string, len(questions)),
		AnswerIndexs: make([]int32, len(questions)),
		TimeLimits:   make([]int32, len(questions)),
	}
	for i, q := range questions {
		opts, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("failed to marshal options: %w", err)
		}
		arg.IDs[i] = q.ID.String()
		arg.Orders[i] = int32(q.Order)
		arg.Texts[i] = q.Text
		arg.Options[i] = string(opts)
		arg.AnswerIndexs[i] = int32(q.AnswerIndex)
		arg.TimeLimits[i] = int32(q.TimeLimitSec)
	}
	if err := r.q.InsertQuestionsBatch(ctx, arg); err != nil {
		return mapErr(err)
	}
	for _, q := range questions {
		q.GameID = gameID
		if err := r.emit(ctx, gameID, models.EntityQuestion, models.OpInsert, nil, q); err != nil {
			return err
		}
	}
	return nil
}

func (r *queries) ListQuestions(ctx context.Context, gameID uuid.UUID) ([]models.Question, error) {
	rows, err := r.q.ListQuestions(ctx, gameID)
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]models.Question, len(rows))
	for i, row := range rows {
		q, err := dbQuestionToModel(row)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

func (r *queries) GetAnswer(ctx context.Context, playerID, questionID uuid.UUID) (*models.Answer, error) {
	row, err := r.q.GetAnswer(ctx, db.GetAnswerParams{PlayerID: playerID, QuestionID: questionID})
	if err != nil {
		return nil, mapErr(err)
	}
	return dbAnswerToModel(row), nil
}

func (r *queries) InsertAnswerIfAbsent(ctx context.Context, arg store.InsertAnswerParams) (*models.Answer, bool, error) {
	gameID, err := r.q.GetQuestionGameID(ctx, arg.QuestionID)
	if err != nil {
		return nil, false, mapErr(err)
	}

	row, err := r.q.InsertAnswerIfAbsent(ctx, db.InsertAnswerIfAbsentParams{
		ID:            arg.ID,
		PlayerID:      arg.PlayerID,
		QuestionID:    arg.QuestionID,
		SelectedIndex: int32(arg.SelectedIndex),
		IsCorrect:     arg.IsCorrect,
		AnsweredAt:    arg.AnsweredAt,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := r.GetAnswer(ctx, arg.PlayerID, arg.QuestionID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, mapErr(err)
	}

	a := dbAnswerToModel(row)
	if err := r.emit(ctx, gameID, models.EntityAnswer, models.OpInsert, nil, a); err != nil {
		return nil, false, err
	}
	return a, true, nil
}

func (r *queries) CountAnswers(ctx context.Context, questionID uuid.UUID) (int, error) {
	n, err := r.q.CountAnswers(ctx, questionID)
	if err != nil {
		return 0, mapErr(err)
	}
	return int(n), nil
}

// mapErr translates driver errors into store errors.
func mapErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if transient(err) {
		return unavailable(err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		switch pgErr.ConstraintName {
		case "games_active_code_key":
			return store.ErrDuplicateCode
		case "players_game_name_key":
			return store.ErrDuplicateName
		}
		return fmt.Errorf("pgstore: unique violation on %s: %w", pgErr.ConstraintName, err)
	case pgCheckViolation:
		if pgErr.ConstraintName == "players_score_check" {
			return store.ErrScoreDecrease
		}
	}
	return err
}

func dbGameToModel(g db.Game) *models.Game {
	return &models.Game{
		ID:                   g.ID,
		Code:                 g.Code,
		HostName:             g.HostName,
		Topic:                g.Topic,
		Status:               models.GameStatus(g.Status),
		CurrentQuestionIndex: sqlutil.FromPgInt4(g.CurrentQuestionIndex),
		QuestionStartedAt:    sqlutil.FromPgTimestamptz(g.QuestionStartedAt),
		CreatedAt:            g.CreatedAt,
		UpdatedAt:            g.UpdatedAt,
	}
}

func dbPlayerToModel(p db.Player) *models.Player {
	return &models.Player{
		ID:        p.ID,
		GameID:    p.GameID,
		Name:      p.Name,
		IsHost:    p.IsHost,
		Score:     int(p.Score),
		JoinSeq:   p.JoinSeq,
		TokenHash: p.TokenHash,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func dbQuestionToModel(q db.Question) (models.Question, error) {
	var options []string
	if err := json.Unmarshal(q.Options, &options); err != nil {
		return models.Question{}, fmt.Errorf("failed to unmarshal options of question %s: %w", q.ID, err)
	}
	return models.Question{
		ID:           q.ID,
		GameID:       q.GameID,
		Order:        int(q.QuestionOrder),
		Text:         q.QuestionText,
		Options:      options,
		AnswerIndex:  int(q.AnswerIndex),
		TimeLimitSec: int(q.TimeLimit),
	}, nil
}

func dbAnswerToModel(a db.Answer) *models.Answer {
	return &models.Answer{
		ID:            a.ID,
		PlayerID:      a.PlayerID,
		QuestionID:    a.QuestionID,
		SelectedIndex: int(a.SelectedIndex),
		IsCorrect:     a.IsCorrect,
		AnsweredAt:    a.AnsweredAt,
	}
}
