package chatidentity

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Service coordinates identity persistence, the strict-mode setting and the
// pure authorization decision.
type Service struct {
	store    *Store
	settings *SettingsStore
}

// NewService creates a new chat identity service.
func NewService(store *Store, settings *SettingsStore) *Service {
	return &Service{store: store, settings: settings}
}

// RecordInteraction observes a chat sender: first contact creates the
// identity as unlinked, later contacts refresh the snapshot and last-seen
// timestamp. It never changes link or block state.
func (s *Service) RecordInteraction(ctx context.Context, externalID, workspaceID string, snapshot Snapshot, at time.Time) (*Identity, error) {
	if externalID == "" || workspaceID == "" {
		return nil, fmt.Errorf("%w: external id and workspace id are required", ErrInvalidState)
	}
	return s.store.Upsert(ctx, externalID, workspaceID, snapshot, at)
}

// Link ties an identity to a platform user. Re-linking to the same user is
// idempotent; linking to a different user without unlinking first fails with
// ErrConflict.
func (s *Service) Link(ctx context.Context, externalID, workspaceID string, userID int64, linkedBy *int64, at time.Time) (*Identity, error) {
	status, err := s.store.UserStatusOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !status.Exists {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	if err := s.store.TryLink(ctx, externalID, workspaceID, userID, linkedBy, at); err != nil {
		return nil, err
	}
	return s.store.Require(ctx, externalID, workspaceID)
}

// Unlink detaches the identity from its user, keeping the observed snapshot
// and the block flag.
func (s *Service) Unlink(ctx context.Context, externalID, workspaceID string) (*Identity, error) {
	if err := s.store.Unlink(ctx, externalID, workspaceID); err != nil {
		return nil, err
	}
	return s.store.Require(ctx, externalID, workspaceID)
}

// SetBlocked toggles the block axis independently of link state.
func (s *Service) SetBlocked(ctx context.Context, externalID, workspaceID string, blocked bool, reason string) (*Identity, error) {
	if err := s.store.SetBlocked(ctx, externalID, workspaceID, blocked, reason); err != nil {
		return nil, err
	}
	return s.store.Require(ctx, externalID, workspaceID)
}

// Authorize decides whether a chat sender may interact right now. The
// decision itself is pure; this loads its three inputs (identity, linked
// user status, strict mode) and delegates to Decide.
func (s *Service) Authorize(ctx context.Context, externalID, workspaceID string) (Decision, error) {
	strictMode, err := s.settings.StrictMode(ctx)
	if err != nil {
		return Decision{}, err
	}

	identity, err := s.store.Get(ctx, externalID, workspaceID)
	if err != nil {
		return Decision{}, err
	}

	var user UserStatus
	if identity != nil && identity.UserID != nil {
		user, err = s.store.UserStatusOf(ctx, *identity.UserID)
		if err != nil {
			return Decision{}, err
		}
	}

	return Decide(identity, user, strictMode), nil
}

// AutoLinkByEmail links every unlinked, unblocked identity whose snapshot
// email matches exactly one active user. Identities without a match are left
// alone; a racing manual link just loses quietly.
func (s *Service) AutoLinkByEmail(ctx context.Context, at time.Time) (int, error) {
	identities, err := s.store.ListUnlinkedWithEmail(ctx)
	if err != nil {
		return 0, err
	}

	linked := 0
	for _, identity := range identities {
		userID, err := s.store.ActiveUserByEmail(ctx, identity.Email)
		if err != nil {
			return linked, err
		}
		if userID == nil {
			continue
		}
		err = s.store.TryLink(ctx, identity.ExternalID, identity.WorkspaceID, *userID, nil, at)
		if err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return linked, err
		}
		linked++
	}
	return linked, nil
}

// StrictMode reads the current strict-mode flag.
func (s *Service) StrictMode(ctx context.Context) (bool, error) {
	return s.settings.StrictMode(ctx)
}

// SetStrictMode toggles strict mode at runtime.
func (s *Service) SetStrictMode(ctx context.Context, enabled bool) error {
	return s.settings.SetStrictMode(ctx, enabled)
}
