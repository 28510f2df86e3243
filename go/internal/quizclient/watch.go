package quizclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/livequiz/go/internal/game/gameerr"
	"github.com/mcdev12/livequiz/go/internal/game/gateway"
	"github.com/mcdev12/livequiz/go/internal/game/view"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Watch streams live views of the game. A dropped stream is re-dialled with
// backoff and resumes from a fresh snapshot. The channel closes after the
// finished view, or when ctx is done.
func (s *Session) Watch(ctx context.Context) (<-chan view.GameView, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.watching = true
	s.mu.Unlock()

	out := make(chan view.GameView, 8)
	go s.watch(ctx, conn, out)
	return out, nil
}

func (s *Session) watch(ctx context.Context, conn *websocket.Conn, out chan<- view.GameView) {
	defer func() {
		s.mu.Lock()
		s.watching = false
		s.mu.Unlock()
		close(out)
	}()

	b := s.client.backOff()
	for {
		finished, err := s.readViews(ctx, conn, out)
		conn.Close()
		if finished || ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Str("game_id", s.GameID.String()).Msg("view stream lost, reconnecting")

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.NextBackOff()):
			}
			conn, err = s.dial(ctx)
			if err == nil {
				b.Reset()
				break
			}
			if errors.Is(err, gameerr.ErrGameNotFound) {
				log.Error().Str("game_id", s.GameID.String()).Msg("game disappeared, stopping watch")
				return
			}
			log.Debug().Err(err).Msg("reconnect failed")
		}
	}
}

// readViews forwards views from one connection. It reports true once the
// finished view has been delivered.
func (s *Session) readViews(ctx context.Context, conn *websocket.Conn, out chan<- view.GameView) (bool, error) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var msg gateway.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return false, err
		}
		if msg.Type != gateway.MessageTypeView || msg.View == nil {
			continue
		}

		v := *msg.View
		s.apply(v)
		select {
		case out <- v:
		case <-ctx.Done():
			return false, ctx.Err()
		}
		if v.Game.Status == models.GameStatusFinished {
			return true, nil
		}
	}
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(s.client.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/game"
	u.RawQuery = url.Values{
		"game_id":   {s.GameID.String()},
		"player_id": {s.PlayerID.String()},
	}.Encode()

	conn, resp, err := s.client.cfg.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("game %s: %w", s.GameID, gameerr.ErrGameNotFound)
		}
		return nil, fmt.Errorf("dial game stream: %w", err)
	}
	return conn, nil
}
