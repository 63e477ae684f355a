package bookbuddy

import (
	"context"
	"database/sql"
	"errors"
	"log"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	RefreshSessions() RefreshSessions
	EmailVerifications() SingleUseTokens
	PasswordResets() SingleUseTokens
	Books() Books
	AuthEvents() AuthEvents
}

type mngr struct {
	db                 *bun.DB
	users              Users
	refreshSessions    RefreshSessions
	emailVerifications SingleUseTokens
	passwordResets     SingleUseTokens
	books              Books
	authEvents         AuthEvents
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:                 db,
		users:              NewUsersRepository(db),
		refreshSessions:    NewRefreshSessionsRepository(db),
		emailVerifications: NewEmailVerificationTokens(db),
		passwordResets:     NewPasswordResetTokens(db),
		books:              NewBooksRepository(db),
		authEvents:         NewAuthEventsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.refreshSessions == nil {
		return errors.New("repository refreshSessions should be initialized")
	}

	if m.emailVerifications == nil {
		return errors.New("repository emailVerifications should be initialized")
	}

	if m.passwordResets == nil {
		return errors.New("repository passwordResets should be initialized")
	}

	if m.books == nil {
		return errors.New("repository books should be initialized")
	}

	if m.authEvents == nil {
		return errors.New("repository authEvents should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) RefreshSessions() RefreshSessions {
	return m.refreshSessions
}

func (m mngr) EmailVerifications() SingleUseTokens {
	return m.emailVerifications
}

func (m mngr) PasswordResets() SingleUseTokens {
	return m.passwordResets
}

func (m mngr) Books() Books {
	return m.books
}

func (m mngr) AuthEvents() AuthEvents {
	return m.authEvents
}
