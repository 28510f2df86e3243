// Package memstore is an in-process implementation of store.Store. It backs
// single-node development mode and the engine tests.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/store"
)

// Feed is where committed changes are published and subscribed from.
type Feed interface {
	store.ChangeFeed
	Publish(evt models.ChangeEvent)
}

type nameKey struct {
	gameID uuid.UUID
	name   string
}

type answerKey struct {
	playerID   uuid.UUID
	questionID uuid.UUID
}

// state is copy-on-write: rows are never mutated in place, so a clone only
// needs fresh maps.
type state struct {
	games        map[uuid.UUID]*models.Game
	codes        map[string]uuid.UUID
	players      map[uuid.UUID]*models.Player
	roster       map[uuid.UUID][]uuid.UUID
	names        map[nameKey]uuid.UUID
	questions    map[uuid.UUID][]models.Question
	questionGame map[uuid.UUID]uuid.UUID
	answers      map[answerKey]*models.Answer
	answerCounts map[uuid.UUID]int
	joinSeq      int64
}

func newState() *state {
	return &state{
		games:        make(map[uuid.UUID]*models.Game),
		codes:        make(map[string]uuid.UUID),
		players:      make(map[uuid.UUID]*models.Player),
		roster:       make(map[uuid.UUID][]uuid.UUID),
		names:        make(map[nameKey]uuid.UUID),
		questions:    make(map[uuid.UUID][]models.Question),
		questionGame: make(map[uuid.UUID]uuid.UUID),
		answers:      make(map[answerKey]*models.Answer),
		answerCounts: make(map[uuid.UUID]int),
	}
}

func (s *state) clone() *state {
	c := &state{
		games:        make(map[uuid.UUID]*models.Game, len(s.games)),
		codes:        make(map[string]uuid.UUID, len(s.codes)),
		players:      make(map[uuid.UUID]*models.Player, len(s.players)),
		roster:       make(map[uuid.UUID][]uuid.UUID, len(s.roster)),
		names:        make(map[nameKey]uuid.UUID, len(s.names)),
		questions:    make(map[uuid.UUID][]models.Question, len(s.questions)),
		questionGame: make(map[uuid.UUID]uuid.UUID, len(s.questionGame)),
		answers:      make(map[answerKey]*models.Answer, len(s.answers)),
		answerCounts: make(map[uuid.UUID]int, len(s.answerCounts)),
		joinSeq:      s.joinSeq,
	}
	for k, v := range s.games {
		c.games[k] = v
	}
	for k, v := range s.codes {
		c.codes[k] = v
	}
	for k, v := range s.players {
		c.players[k] = v
	}
	for k, v := range s.roster {
		c.roster[k] = slices.Clone(v)
	}
	for k, v := range s.names {
		c.names[k] = v
	}
	for k, v := range s.questions {
		c.questions[k] = v
	}
	for k, v := range s.questionGame {
		c.questionGame[k] = v
	}
	for k, v := range s.answers {
		c.answers[k] = v
	}
	for k, v := range s.answerCounts {
		c.answerCounts[k] = v
	}
	return c
}

// Store serializes all access behind one mutex. Changes are published while
// the lock is held so subscribers see them in commit order.
type Store struct {
	mu    sync.Mutex
	st    *state
	feed  Feed
	clock clockwork.Clock
}

var _ store.Store = (*Store)(nil)

// New creates an empty store publishing to feed.
func New(feed Feed, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{st: newState(), feed: feed, clock: clock}
}

// SubscribeChanges implements store.ChangeFeed.
func (s *Store) SubscribeChanges(gameID uuid.UUID, kinds ...models.EntityKind) (store.Subscription, error) {
	return s.feed.SubscribeChanges(gameID, kinds...)
}

// RunInTx runs fn against a private copy of the state and swaps it in if fn
// succeeds. fn must only use q; calling methods on s would deadlock.
func (s *Store) RunInTx(ctx context.Context, fn func(q store.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{st: s.st.clone(), now: s.clock.Now}
	if err := fn(t); err != nil {
		return err
	}
	s.st = t.st
	s.publish(t.events)
	return nil
}

func (s *Store) do(ctx context.Context, fn func(t *tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{st: s.st, now: s.clock.Now}
	if err := fn(t); err != nil {
		return err
	}
	s.publish(t.events)
	return nil
}

func (s *Store) publish(events []models.ChangeEvent) {
	if s.feed == nil {
		return
	}
	for _, evt := range events {
		s.feed.Publish(evt)
	}
}

func (s *Store) InsertGame(ctx context.Context, arg store.InsertGameParams) (g *models.Game, err error) {
	err = s.do(ctx, func(t *tx) error { g, err = t.InsertGame(ctx, arg); return err })
	return g, err
}

func (s *Store) GetGame(ctx context.Context, id uuid.UUID) (g *models.Game, err error) {
	err = s.do(ctx, func(t *tx) error { g, err = t.GetGame(ctx, id); return err })
	return g, err
}

func (s *Store) GetGameByCode(ctx context.Context, code string) (g *models.Game, err error) {
	err = s.do(ctx, func(t *tx) error { g, err = t.GetGameByCode(ctx, code); return err })
	return g, err
}

func (s *Store) LockGame(ctx context.Context, id uuid.UUID) (g *models.Game, err error) {
	return s.GetGame(ctx, id)
}

func (s *Store) UpdateGameStatus(ctx context.Context, arg store.UpdateGameStatusParams) (g *models.Game, err error) {
	err = s.do(ctx, func(t *tx) error { g, err = t.UpdateGameStatus(ctx, arg); return err })
	return g, err
}

func (s *Store) InsertPlayer(ctx context.Context, arg store.InsertPlayerParams) (p *models.Player, err error) {
	err = s.do(ctx, func(t *tx) error { p, err = t.InsertPlayer(ctx, arg); return err })
	return p, err
}

func (s *Store) GetPlayer(ctx context.Context, id uuid.UUID) (p *models.Player, err error) {
	err = s.do(ctx, func(t *tx) error { p, err = t.GetPlayer(ctx, id); return err })
	return p, err
}

func (s *Store) ListPlayers(ctx context.Context, gameID uuid.UUID, order store.PlayerOrder) (ps []models.Player, err error) {
	err = s.do(ctx, func(t *tx) error { ps, err = t.ListPlayers(ctx, gameID, order); return err })
	return ps, err
}

func (s *Store) UpdatePlayerScore(ctx context.Context, arg store.UpdatePlayerScoreParams) (p *models.Player, err error) {
	err = s.do(ctx, func(t *tx) error { p, err = t.UpdatePlayerScore(ctx, arg); return err })
	return p, err
}

func (s *Store) InsertQuestionsBatch(ctx context.Context, gameID uuid.UUID, questions []models.Question) error {
	return s.do(ctx, func(t *tx) error { return t.InsertQuestionsBatch(ctx, gameID, questions) })
}

func (s *Store) ListQuestions(ctx context.Context, gameID uuid.UUID) (qs []models.Question, err error) {
	err = s.do(ctx, func(t *tx) error { qs, err = t.ListQuestions(ctx, gameID); return err })
	return qs, err
}

func (s *Store) GetAnswer(ctx context.Context, playerID, questionID uuid.UUID) (a *models.Answer, err error) {
	err = s.do(ctx, func(t *tx) error { a, err = t.GetAnswer(ctx, playerID, questionID); return err })
	return a, err
}

func (s *Store) InsertAnswerIfAbsent(ctx context.Context, arg store.InsertAnswerParams) (a *models.Answer, inserted bool, err error) {
	err = s.do(ctx, func(t *tx) error { a, inserted, err = t.InsertAnswerIfAbsent(ctx, arg); return err })
	return a, inserted, err
}

func (s *Store) CountAnswers(ctx context.Context, questionID uuid.UUID) (n int, err error) {
	err = s.do(ctx, func(t *tx) error { n, err = t.CountAnswers(ctx, questionID); return err })
	return n, err
}

// tx applies operations to one state and buffers the resulting events.
// Every operation validates before it writes, so a failed call leaves the
// state untouched.
type tx struct {
	st     *state
	now    func() time.Time
	events []models.ChangeEvent
}

var _ store.Queries = (*tx)(nil)

func (t *tx) emit(gameID uuid.UUID, entity models.EntityKind, op models.Operation, before, after any) error {
	evt, err := models.NewChangeEvent(gameID, entity, op, before, after, t.now())
	if err != nil {
		return err
	}
	t.events = append(t.events, evt)
	return nil
}

func (t *tx) InsertGame(_ context.Context, arg store.InsertGameParams) (*models.Game, error) {
	if _, taken := t.st.codes[arg.Code]; taken {
		return nil, store.ErrDuplicateCode
	}
	if _, exists := t.st.games[arg.ID]; exists {
		return nil, fmt.Errorf("memstore: game %s already exists", arg.ID)
	}

	now := t.now()
	g := &models.Game{
		ID:        arg.ID,
		Code:      arg.Code,
		HostName:  arg.HostName,
		Topic:     arg.Topic,
		Status:    models.GameStatusLobby,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.emit(g.ID, models.EntityGame, models.OpInsert, nil, g); err != nil {
		return nil, err
	}
	t.st.games[g.ID] = g
	t.st.codes[g.Code] = g.ID
	return g.Clone(), nil
}

func (t *tx) GetGame(_ context.Context, id uuid.UUID) (*models.Game, error) {
	g, ok := t.st.games[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return g.Clone(), nil
}

func (t *tx) GetGameByCode(_ context.Context, code string) (*models.Game, error) {
	if id, ok := t.st.codes[code]; ok {
		return t.st.games[id].Clone(), nil
	}
	var latest *models.Game
	for _, g := range t.st.games {
		if g.Code == code && (latest == nil || g.CreatedAt.After(latest.CreatedAt)) {
			latest = g
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest.Clone(), nil
}

func (t *tx) LockGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	return t.GetGame(ctx, id)
}

func (t *tx) UpdateGameStatus(_ context.Context, arg store.UpdateGameStatusParams) (*models.Game, error) {
	g, ok := t.st.games[arg.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if g.Status != arg.ExpectedStatus || !sameIndex(g.CurrentQuestionIndex, arg.ExpectedIndex) {
		return nil, store.ErrConflict
	}
	if arg.Status.Rank() < g.Status.Rank() {
		return nil, store.ErrConflict
	}

	next := g.Clone()
	next.Status = arg.Status
	next.CurrentQuestionIndex = copyInt(arg.CurrentQuestionIndex)
	if arg.QuestionStartedAt != nil {
		at := *arg.QuestionStartedAt
		next.QuestionStartedAt = &at
	}
	next.UpdatedAt = t.now()

	if err := t.emit(g.ID, models.EntityGame, models.OpUpdate, g, next); err != nil {
		return nil, err
	}
	t.st.games[g.ID] = next
	if !next.IsActive() {
		delete(t.st.codes, next.Code)
	}
	return next.Clone(), nil
}

func nameKeyFor(gameID uuid.UUID, name string) nameKey {
	return nameKey{gameID: gameID, name: strings.ToLower(strings.TrimSpace(name))}
}

func (t *tx) InsertPlayer(_ context.Context, arg store.InsertPlayerParams) (*models.Player, error) {
	if _, ok := t.st.games[arg.GameID]; !ok {
		return nil, store.ErrNotFound
	}
	key := nameKeyFor(arg.GameID, arg.Name)
	if _, taken := t.st.names[key]; taken {
		return nil, store.ErrDuplicateName
	}
	if arg.IsHost {
		for _, id := range t.st.roster[arg.GameID] {
			if t.st.players[id].IsHost {
				return nil, fmt.Errorf("memstore: game %s already has a host", arg.GameID)
			}
		}
	}

	now := t.now()
	p := &models.Player{
		ID:        arg.ID,
		GameID:    arg.GameID,
		Name:      arg.Name,
		IsHost:    arg.IsHost,
		JoinSeq:   t.st.joinSeq + 1,
		TokenHash: arg.TokenHash,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.emit(p.GameID, models.EntityPlayer, models.OpInsert, nil, p); err != nil {
		return nil, err
	}
	t.st.joinSeq++
	t.st.players[p.ID] = p
	t.st.roster[p.GameID] = append(t.st.roster[p.GameID], p.ID)
	t.st.names[key] = p.ID

	out := *p
	return &out, nil
}

func (t *tx) GetPlayer(_ context.Context, id uuid.UUID) (*models.Player, error) {
	p, ok := t.st.players[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (t *tx) ListPlayers(_ context.Context, gameID uuid.UUID, order store.PlayerOrder) ([]models.Player, error) {
	ids := t.st.roster[gameID]
	players := make([]models.Player, 0, len(ids))
	for _, id := range ids {
		players = append(players, *t.st.players[id])
	}
	if order == store.OrderByScore {
		sort.SliceStable(players, func(i, j int) bool {
			return players[i].Score > players[j].Score
		})
	}
	return players, nil
}

func (t *tx) UpdatePlayerScore(_ context.Context, arg store.UpdatePlayerScoreParams) (*models.Player, error) {
	p, ok := t.st.players[arg.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if p.Score != arg.ExpectedScore {
		return nil, store.ErrConflict
	}
	if arg.Score < arg.ExpectedScore {
		return nil, store.ErrScoreDecrease
	}

	next := *p
	next.Score = arg.Score
	next.UpdatedAt = t.now()
	if err := t.emit(p.GameID, models.EntityPlayer, models.OpUpdate, p, &next); err != nil {
		return nil, err
	}
	t.st.players[p.ID] = &next

	out := next
	return &out, nil
}

func (t *tx) InsertQuestionsBatch(_ context.Context, gameID uuid.UUID, questions []models.Question) error {
	if _, ok := t.st.games[gameID]; !ok {
		return store.ErrNotFound
	}
	existing := t.st.questions[gameID]
	seen := make(map[int]bool, len(existing)+len(questions))
	for _, q := range existing {
		seen[q.Order] = true
	}
	for _, q := range questions {
		if seen[q.Order] {
			return fmt.Errorf("memstore: duplicate question order %d for game %s", q.Order, gameID)
		}
		seen[q.Order] = true
	}

	merged := slices.Clone(existing)
	for _, q := range questions {
		q.GameID = gameID
		q.Options = slices.Clone(q.Options)
		if err := t.emit(gameID, models.EntityQuestion, models.OpInsert, nil, q); err != nil {
			return err
		}
		merged = append(merged, q)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Order < merged[j].Order })

	t.st.questions[gameID] = merged
	for _, q := range questions {
		t.st.questionGame[q.ID] = gameID
	}
	return nil
}

func (t *tx) ListQuestions(_ context.Context, gameID uuid.UUID) ([]models.Question, error) {
	stored := t.st.questions[gameID]
	out := make([]models.Question, len(stored))
	for i, q := range stored {
		q.Options = slices.Clone(q.Options)
		out[i] = q
	}
	return out, nil
}

func (t *tx) GetAnswer(_ context.Context, playerID, questionID uuid.UUID) (*models.Answer, error) {
	a, ok := t.st.answers[answerKey{playerID: playerID, questionID: questionID}]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *a
	return &out, nil
}

func (t *tx) InsertAnswerIfAbsent(_ context.Context, arg store.InsertAnswerParams) (*models.Answer, bool, error) {
	key := answerKey{playerID: arg.PlayerID, questionID: arg.QuestionID}
	if existing, ok := t.st.answers[key]; ok {
		out := *existing
		return &out, false, nil
	}
	gameID, ok := t.st.questionGame[arg.QuestionID]
	if !ok {
		return nil, false, store.ErrNotFound
	}
	if _, ok := t.st.players[arg.PlayerID]; !ok {
		return nil, false, store.ErrNotFound
	}

	a := &models.Answer{
		ID:            arg.ID,
		PlayerID:      arg.PlayerID,
		QuestionID:    arg.QuestionID,
		SelectedIndex: arg.SelectedIndex,
		IsCorrect:     arg.IsCorrect,
		AnsweredAt:    arg.AnsweredAt,
	}
	if err := t.emit(gameID, models.EntityAnswer, models.OpInsert, nil, a); err != nil {
		return nil, false, err
	}
	t.st.answers[key] = a
	t.st.answerCounts[arg.QuestionID]++

	out := *a
	return &out, true, nil
}

func (t *tx) CountAnswers(_ context.Context, questionID uuid.UUID) (int, error) {
	return t.st.answerCounts[questionID], nil
}

func sameIndex(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
