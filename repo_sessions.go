package bookbuddy

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type refreshSessions struct {
	repo repository.Repository[*RefreshSession]
	db   *bun.DB
}

var _ RefreshSessions = (*refreshSessions)(nil)

// NewRefreshSessionsRepository builds the session ledger on top of bun.
func NewRefreshSessionsRepository(db *bun.DB) RefreshSessions {
	repo := repository.NewRepository[*RefreshSession](db, repository.ModelHandlers[*RefreshSession]{
		NewRecord: func() *RefreshSession { return &RefreshSession{} },
		GetID: func(s *RefreshSession) uuid.UUID {
			if s == nil {
				return uuid.Nil
			}
			return s.ID
		},
		SetID: func(s *RefreshSession, id uuid.UUID) {
			if s != nil {
				s.ID = id
			}
		},
		GetIdentifier: func() string { return "id" },
	})

	return &refreshSessions{repo: repo, db: db}
}

func (r *refreshSessions) Create(ctx context.Context, session *RefreshSession) (*RefreshSession, error) {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	return r.repo.CreateTx(ctx, r.db, session)
}

// GetActive loads a live session by jti. Revoked or missing sessions return
// ErrSessionNotFound.
func (r *refreshSessions) GetActive(ctx context.Context, jti uuid.UUID) (*RefreshSession, error) {
	record := &RefreshSession{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", jti).
		Where("?TableAlias.revoked_at IS NULL").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load refresh session")
	}
	return record, nil
}

// Revoke flips one live session to revoked in a single conditional UPDATE.
// The WHERE clause carries the revoked_at IS NULL guard so two concurrent
// redemptions cannot both win; the loser sees zero rows affected.
func (r *refreshSessions) Revoke(ctx context.Context, jti uuid.UUID) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*RefreshSession)(nil)).
		Set("revoked_at = ?", time.Now()).
		Where("id = ?", jti).
		Where("revoked_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to revoke refresh session")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to read revoke result")
	}
	return n > 0, nil
}

// RevokeAllForUser revokes every live session the user holds and reports how
// many were closed.
func (r *refreshSessions) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*RefreshSession)(nil)).
		Set("revoked_at = ?", time.Now()).
		Where("user_id = ?", userID).
		Where("revoked_at IS NULL").
		Exec(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "failed to revoke user sessions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "failed to read revoke result")
	}
	return n, nil
}

// CountActiveForUser counts live, unexpired sessions for the user.
func (r *refreshSessions) CountActiveForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := r.db.NewSelect().
		Model((*RefreshSession)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.revoked_at IS NULL").
		Where("?TableAlias.expires_at > ?", time.Now()).
		Count(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "failed to count user sessions")
	}
	return n, nil
}
