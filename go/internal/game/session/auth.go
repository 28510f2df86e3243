package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/game/gameerr"
	"github.com/mcdev12/livequiz/go/internal/identity"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/mcdev12/livequiz/go/internal/store"
)

// Authenticate resolves a credential to a player of gameID.
func (a *App) Authenticate(ctx context.Context, gameID uuid.UUID, cred Credential) (*models.Player, error) {
	if cred.PlayerID == uuid.Nil || cred.Token == "" {
		return nil, gameerr.ErrNotAuthorized
	}
	player, err := a.store.GetPlayer(ctx, cred.PlayerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, gameerr.ErrNotAuthorized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load player: %w", err)
	}
	if player.GameID != gameID || !identity.TokenMatches(cred.Token, player.TokenHash) {
		return nil, gameerr.ErrNotAuthorized
	}
	return player, nil
}

func (a *App) authenticateHost(ctx context.Context, gameID uuid.UUID, cred Credential) (*models.Player, error) {
	player, err := a.Authenticate(ctx, gameID, cred)
	if err != nil {
		return nil, err
	}
	if !player.IsHost {
		return nil, fmt.Errorf("player %s is not the host: %w", player.ID, gameerr.ErrNotAuthorized)
	}
	return player, nil
}
