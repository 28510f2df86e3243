// Package quizclient is the SDK presentation layers use to host or play a
// game: typed RPC calls, a live view stream and a local countdown.
package quizclient

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livequiz/go/internal/game/service"
	"github.com/mcdev12/livequiz/go/internal/game/session"
	"github.com/mcdev12/livequiz/go/internal/game/timer"
	"github.com/mcdev12/livequiz/go/internal/game/view"
)

// Config configures a Client.
type Config struct {
	// BaseURL serves both the RPC procedures and the websocket gateway.
	BaseURL    string
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	// Clock drives local countdowns.
	Clock clockwork.Clock
	// MaxRetries bounds retries of idempotent calls on transient failures.
	MaxRetries   uint
	RetryInitial time.Duration
	RetryMax     time.Duration
}

func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		HTTPClient:   http.DefaultClient,
		Dialer:       websocket.DefaultDialer,
		Clock:        clockwork.NewRealClock(),
		MaxRetries:   4,
		RetryInitial: 100 * time.Millisecond,
		RetryMax:     2 * time.Second,
	}
}

// Client talks to one quiz server.
type Client struct {
	rpc *service.Client
	cfg Config
}

func New(cfg Config) *Client {
	def := DefaultConfig(cfg.BaseURL)
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = def.HTTPClient
	}
	if cfg.Dialer == nil {
		cfg.Dialer = def.Dialer
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = def.RetryInitial
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = def.RetryMax
	}
	return &Client{
		rpc: service.NewClient(cfg.HTTPClient, cfg.BaseURL),
		cfg: cfg,
	}
}

// CreateGame hosts a new game and returns the host's session. Not retried:
// a lost response would leave an orphaned game behind a retry.
func (c *Client) CreateGame(ctx context.Context, hostName, topic string) (*Session, error) {
	res, err := c.rpc.CreateGame(ctx, &service.CreateGameRequest{HostName: hostName, Topic: topic})
	if err != nil {
		return nil, service.FromConnectError(err)
	}
	return c.newSession(res.Game.ID, res.Game.Code, res.PlayerID, res.HostName, res.Token, true), nil
}

// JoinGame joins by code. Not retried for the same reason as CreateGame.
func (c *Client) JoinGame(ctx context.Context, code, name string) (*Session, error) {
	res, err := c.rpc.JoinGame(ctx, &service.JoinGameRequest{Code: code, Name: name})
	if err != nil {
		return nil, service.FromConnectError(err)
	}
	return c.newSession(res.Game.ID, res.Game.Code, res.PlayerID, res.Name, res.Token, false), nil
}

// Leaderboard returns standings by score.
func (c *Client) Leaderboard(ctx context.Context, gameID uuid.UUID) ([]session.Standing, error) {
	res, err := retry(ctx, c, func() (*service.GetLeaderboardResponse, error) {
		return c.rpc.GetLeaderboard(ctx, &service.GetLeaderboardRequest{GameID: gameID})
	})
	if err != nil {
		return nil, err
	}
	return res.Standings, nil
}

// GameState fetches a one-off snapshot.
func (c *Client) GameState(ctx context.Context, gameID uuid.UUID) (*view.GameView, error) {
	res, err := retry(ctx, c, func() (*service.GetGameStateResponse, error) {
		return c.rpc.GetGameState(ctx, &service.GetGameStateRequest{GameID: gameID})
	})
	if err != nil {
		return nil, err
	}
	return &res.View, nil
}

func (c *Client) newSession(gameID uuid.UUID, code string, playerID uuid.UUID, name, token string, host bool) *Session {
	return &Session{
		client:    c,
		GameID:    gameID,
		Code:      code,
		PlayerID:  playerID,
		Name:      name,
		IsHost:    host,
		token:     token,
		countdown: timer.NewCountdown(c.cfg.Clock),
	}
}

func (c *Client) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryInitial
	b.MaxInterval = c.cfg.RetryMax
	return b
}

// transient reports whether a failed call may succeed if repeated.
func transient(err error) bool {
	switch connect.CodeOf(err) {
	case connect.CodeUnavailable, connect.CodeDeadlineExceeded:
		return true
	}
	return false
}

// retry repeats an idempotent call on transient failures and maps the final
// error back to the gameerr taxonomy.
func retry[T any](ctx context.Context, c *Client, op func() (T, error)) (T, error) {
	res, err := backoff.Retry(ctx, func() (T, error) {
		res, err := op()
		if err != nil && !transient(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(c.backOff()),
		backoff.WithMaxTries(c.cfg.MaxRetries+1),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
		return res, service.FromConnectError(err)
	}
	return res, nil
}
