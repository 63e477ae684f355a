package bookbuddy

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// singleUse is the shared store implementation behind both one-shot token
// tables. T picks the table through its bun tags.
type singleUse[T any] struct {
	db   *bun.DB
	wrap func(SingleUseToken) *T
	base func(*T) *SingleUseToken
}

// NewEmailVerificationTokens builds the store for email verification tokens.
func NewEmailVerificationTokens(db *bun.DB) SingleUseTokens {
	return &singleUse[EmailVerificationToken]{
		db:   db,
		wrap: func(b SingleUseToken) *EmailVerificationToken { return &EmailVerificationToken{SingleUseToken: b} },
		base: func(t *EmailVerificationToken) *SingleUseToken { return &t.SingleUseToken },
	}
}

// NewPasswordResetTokens builds the store for password reset tokens.
func NewPasswordResetTokens(db *bun.DB) SingleUseTokens {
	return &singleUse[PasswordResetToken]{
		db:   db,
		wrap: func(b SingleUseToken) *PasswordResetToken { return &PasswordResetToken{SingleUseToken: b} },
		base: func(t *PasswordResetToken) *SingleUseToken { return &t.SingleUseToken },
	}
}

// ReplaceActive drops the user's unused tokens and inserts the replacement
// inside one transaction, so at most one live token exists per user.
func (s *singleUse[T]) ReplaceActive(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*T)(nil)).
			Where("user_id = ?", userID).
			Where("used_at IS NULL").
			Exec(ctx); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to clear unused tokens")
		}

		record := s.wrap(SingleUseToken{
			ID:        uuid.New(),
			UserID:    userID,
			TokenHash: tokenHash,
			ExpiresAt: expiresAt,
		})
		if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to insert token")
		}
		return nil
	})
}

// GetByHash finds a token by its sha256 hash. Missing rows come back as
// ErrTokenInvalidOrUsed since the caller cannot tell the cases apart anyway.
func (s *singleUse[T]) GetByHash(ctx context.Context, tokenHash string) (*SingleUseToken, error) {
	record := new(T)
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.token_hash = ?", tokenHash).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrTokenInvalidOrUsed
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load token")
	}
	return s.base(record), nil
}

// MarkUsed consumes the token with a conditional UPDATE. A false return
// means a concurrent request already spent it.
func (s *singleUse[T]) MarkUsed(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*T)(nil)).
		Set("used_at = ?", time.Now()).
		Where("id = ?", id).
		Where("used_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to mark token used")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to read token result")
	}
	return n > 0, nil
}

// DeleteUnusedForUser sweeps the user's remaining unused tokens, called after
// a successful redemption.
func (s *singleUse[T]) DeleteUnusedForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.NewDelete().
		Model((*T)(nil)).
		Where("user_id = ?", userID).
		Where("used_at IS NULL").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete unused tokens")
	}
	return nil
}
