package bookbuddy

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var setUserPasswordSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"updated_at" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

type users struct {
	repo repository.Repository[*User]
	db   *bun.DB
}

var _ Users = (*users)(nil)

// NewUsersRepository builds the credential store on top of bun.
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string { return "email" },
	})

	return &users{repo: repo, db: db}
}

func (a *users) Create(ctx context.Context, user *User) (*User, error) {
	user.Email = NormalizeEmail(user.Email)
	user.Username = NormalizeUsername(user.Username)
	if user.ID == uuid.Nil {
		if id, err := hashid.NewUUID(user.Email); err == nil {
			user.ID = id
		} else {
			user.ID = uuid.New()
		}
	}
	return a.repo.CreateTx(ctx, a.db, user)
}

func (a *users) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	record, err := a.repo.GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return record, nil
}

// GetByIdentifier resolves a login identifier. Anything with an "@" is
// treated as an email, everything else as a username.
func (a *users) GetByIdentifier(ctx context.Context, identifier string) (*User, error) {
	trimmed := strings.TrimSpace(identifier)
	if strings.Contains(trimmed, "@") {
		return a.GetByEmail(ctx, trimmed)
	}
	return a.GetByUsername(ctx, trimmed)
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.getByColumn(ctx, "email", NormalizeEmail(email))
}

func (a *users) GetByUsername(ctx context.Context, username string) (*User, error) {
	return a.getByColumn(ctx, "username", NormalizeUsername(username))
}

func (a *users) getByColumn(ctx context.Context, column, value string) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias."+column+" = ?", value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{column: value})
		}
		return nil, err
	}
	return record, nil
}

func (a *users) Update(ctx context.Context, user *User) (*User, error) {
	return a.repo.UpdateTx(ctx, a.db, user, repository.UpdateByID(user.ID.String()))
}

func (a *users) SetPassword(ctx context.Context, tx bun.IDB, userID uuid.UUID, passwordHash string) error {
	if tx == nil {
		tx = a.db
	}
	res, err := a.repo.RawTx(ctx, tx, setUserPasswordSQL, passwordHash, time.Now(), userID.String())
	if err != nil {
		return err
	}
	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": userID.String()})
	}
	return nil
}

func (a *users) MarkEmailVerified(ctx context.Context, userID uuid.UUID) error {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("is_email_verified = ?", true).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to mark email verified")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (a *users) TouchLogin(ctx context.Context, userID uuid.UUID) error {
	now := time.Now()
	_, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("loggedin_at = ?", now).
		Where("id = ?", userID).
		Exec(ctx)
	return err
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeUsername lowercases and trims a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
