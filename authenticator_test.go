package bookbuddy_test

import (
	"context"
	"testing"

	bookbuddy "github.com/bookbuddy/api"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuther(repo bookbuddy.RepositoryManager, sink bookbuddy.ActivitySink) *bookbuddy.Auther {
	cfg := newTestConfig()
	ts := bookbuddy.NewTokenService(cfg, nil)
	return bookbuddy.NewAuthenticator(repo, ts, cfg).WithActivitySink(sink)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the account and signs the user in", func(t *testing.T) {
		repo := newMemRepo()
		sink := &captureSink{}
		auther := newTestAuther(repo, sink)

		result, err := auther.Register(ctx, bookbuddy.RegisterInput{
			Username: "Reader_One",
			Email:    "Reader@Example.com",
			Password: "password123",
		})
		require.NoError(t, err)
		require.NotNil(t, result)

		assert.Equal(t, "reader_one", result.User.Username)
		assert.Equal(t, "reader@example.com", result.User.Email)
		assert.NotEqual(t, "password123", result.User.PasswordHash)
		assert.NoError(t, bookbuddy.ComparePasswordAndHash("password123", result.User.PasswordHash))

		assert.NotEmpty(t, result.AccessToken)
		assert.NotEmpty(t, result.RefreshToken)
		assert.NotEqual(t, result.AccessToken, result.RefreshToken)

		verdict := auther.TokenService().VerifyAccess(result.AccessToken)
		require.True(t, verdict.Valid)
		assert.Equal(t, result.User.ID.String(), verdict.Claims.UserID())

		refresh := auther.TokenService().VerifyRefresh(result.RefreshToken)
		require.True(t, refresh.Valid)
		assert.Equal(t, result.SessionID.String(), refresh.Claims.SessionID())

		session, err := repo.sessions.GetActive(ctx, result.SessionID)
		require.NoError(t, err)
		assert.Equal(t, result.User.ID, session.UserID)

		events := sink.eventsFor(bookbuddy.ActionRegister)
		require.Len(t, events, 1)
		assert.Equal(t, result.User.ID, *events[0].UserID)
	})

	t.Run("duplicate email is a precise conflict", func(t *testing.T) {
		repo := newMemRepo()
		repo.seedUser(t, "existing", "taken@example.com", "password123")
		auther := newTestAuther(repo, nil)

		_, err := auther.Register(ctx, bookbuddy.RegisterInput{
			Username: "newcomer",
			Email:    "taken@example.com",
			Password: "password123",
		})
		assert.ErrorIs(t, err, bookbuddy.ErrEmailTaken)
	})

	t.Run("duplicate username is a precise conflict", func(t *testing.T) {
		repo := newMemRepo()
		repo.seedUser(t, "taken", "existing@example.com", "password123")
		auther := newTestAuther(repo, nil)

		_, err := auther.Register(ctx, bookbuddy.RegisterInput{
			Username: "Taken",
			Email:    "newcomer@example.com",
			Password: "password123",
		})
		assert.ErrorIs(t, err, bookbuddy.ErrUsernameTaken)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("login by email", func(t *testing.T) {
		repo := newMemRepo()
		user := repo.seedUser(t, "reader", "reader@example.com", "password123")
		auther := newTestAuther(repo, nil)

		result, err := auther.Login(ctx, "reader@example.com", "password123")
		require.NoError(t, err)
		assert.Equal(t, user.ID, result.User.ID)
		assert.NotEmpty(t, result.AccessToken)
		assert.NotEmpty(t, result.RefreshToken)
	})

	t.Run("login by username", func(t *testing.T) {
		repo := newMemRepo()
		repo.seedUser(t, "reader", "reader@example.com", "password123")
		auther := newTestAuther(repo, nil)

		result, err := auther.Login(ctx, "Reader", "password123")
		require.NoError(t, err)
		assert.Equal(t, "reader", result.User.Username)
	})

	t.Run("records the login time", func(t *testing.T) {
		repo := newMemRepo()
		user := repo.seedUser(t, "reader", "reader@example.com", "password123")
		auther := newTestAuther(repo, nil)

		_, err := auther.Login(ctx, "reader", "password123")
		require.NoError(t, err)

		stored, err := repo.users.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.NotNil(t, stored.LoggedInAt)
	})

	t.Run("unknown identifier and wrong password are indistinguishable", func(t *testing.T) {
		repo := newMemRepo()
		repo.seedUser(t, "reader", "reader@example.com", "password123")
		auther := newTestAuther(repo, nil)

		_, errUnknown := auther.Login(ctx, "ghost@example.com", "password123")
		_, errWrong := auther.Login(ctx, "reader@example.com", "not-the-password")

		assert.ErrorIs(t, errUnknown, bookbuddy.ErrInvalidCredentials)
		assert.ErrorIs(t, errWrong, bookbuddy.ErrInvalidCredentials)
		assert.Equal(t, errUnknown.Error(), errWrong.Error())
	})

	t.Run("both failure paths are audited at warn level", func(t *testing.T) {
		repo := newMemRepo()
		repo.seedUser(t, "reader", "reader@example.com", "password123")
		sink := &captureSink{}
		auther := newTestAuther(repo, sink)

		_, err := auther.Login(ctx, "ghost@example.com", "password123")
		require.Error(t, err)
		_, err = auther.Login(ctx, "reader@example.com", "not-the-password")
		require.Error(t, err)

		failed := sink.eventsFor(bookbuddy.ActionLoginFailed)
		require.Len(t, failed, 2)
		assert.Equal(t, bookbuddy.ActivityWarn, failed[0].Level)
		assert.Equal(t, "ghost@example.com", failed[0].Metadata["identifier"])
		assert.Equal(t, bookbuddy.ActivityWarn, failed[1].Level)
		assert.Equal(t, "reader@example.com", failed[1].Metadata["identifier"])
		assert.Empty(t, sink.eventsFor(bookbuddy.ActionLogin))
	})

	t.Run("a fresh login closes every prior session", func(t *testing.T) {
		repo := newMemRepo()
		user := repo.seedUser(t, "reader", "reader@example.com", "password123")
		auther := newTestAuther(repo, nil)

		first, err := auther.Login(ctx, "reader", "password123")
		require.NoError(t, err)
		second, err := auther.Login(ctx, "reader", "password123")
		require.NoError(t, err)

		active := repo.sessions.activeFor(user.ID)
		require.Len(t, active, 1)
		assert.Equal(t, second.SessionID, active[0].ID)

		n, err := repo.sessions.CountActiveForUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = repo.sessions.GetActive(ctx, first.SessionID)
		assert.Error(t, err)
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("rotates the session", func(t *testing.T) {
		repo := newMemRepo()
		user := repo.seedUser(t, "reader", "reader@example.com", "password123")
		sink := &captureSink{}
		auther := newTestAuther(repo, sink)

		login, err := auther.Login(ctx, "reader", "password123")
		require.NoError(t, err)

		rotated, err := auther.Refresh(ctx, login.RefreshToken)
		require.NoError(t, err)

		assert.NotEqual(t, login.SessionID, rotated.SessionID)
		assert.NotEqual(t, login.RefreshToken, rotated.RefreshToken)

		active := repo.sessions.activeFor(user.ID)
		require.Len(t, active, 1)
		assert.Equal(t, rotated.SessionID, active[0].ID)

		assert.Len(t, sink.eventsFor(bookbuddy.ActionRefresh), 1)
	})

	t.Run("replaying a rotated token is reuse", func(t *testing.T) {
		repo := newMemRepo()
		user := repo.seedUser(t, "reader", "reader@example.com", "password123")
		sink := &captureSink{}
		auther := newTestAuther(repo, sink)

		login, err := auther.Login(ctx, "reader", "password123")
		require.NoError(t, err)

		_, err = auther.Refresh(ctx, login.RefreshToken)
		require.NoError(t, err)

		_, err = auther.Refresh(ctx, login.RefreshToken)
		assert.ErrorIs(t, err, bookbuddy.ErrSessionNotFound)

		reuse := sink.eventsFor(bookbuddy.ActionReuse)
		require.Len(t, reuse, 2)

		levels := map[bookbuddy.ActivityLevel]bool{}
		for _, e := range reuse {
			levels[e.Level] = true
			assert.Equal(t, user.ID, *e.UserID)
			assert.Equal(t, login.SessionID.String(), e.Metadata["jti"])
		}
		assert.True(t, levels[bookbuddy.ActivityWarn])
		assert.True(t, levels[bookbuddy.ActivityError])
	})

	t.Run("missing token", func(t *testing.T) {
		auther := newTestAuther(newMemRepo(), nil)
		_, err := auther.Refresh(ctx, "")
		assert.ErrorIs(t, err, bookbuddy.ErrMissingRefreshToken)
	})

	t.Run("garbage token", func(t *testing.T) {
		auther := newTestAuther(newMemRepo(), nil)
		_, err := auther.Refresh(ctx, "not.a.jwt")
		assert.ErrorIs(t, err, bookbuddy.ErrSessionNotFound)
	})

	t.Run("an access token is not a refresh token", func(t *testing.T) {
		repo := newMemRepo()
		repo.seedUser(t, "reader", "reader@example.com", "password123")
		auther := newTestAuther(repo, nil)

		login, err := auther.Login(ctx, "reader", "password123")
		require.NoError(t, err)

		_, err = auther.Refresh(ctx, login.AccessToken)
		assert.ErrorIs(t, err, bookbuddy.ErrSessionNotFound)
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()

	t.Run("closes the presented session", func(t *testing.T) {
		repo := newMemRepo()
		user := repo.seedUser(t, "reader", "reader@example.com", "password123")
		sink := &captureSink{}
		auther := newTestAuther(repo, sink)

		login, err := auther.Login(ctx, "reader", "password123")
		require.NoError(t, err)

		auther.Logout(ctx, login.RefreshToken)

		assert.Empty(t, repo.sessions.activeFor(user.ID))
		events := sink.eventsFor(bookbuddy.ActionLogout)
		require.Len(t, events, 1)
		require.NotNil(t, events[0].UserID)
		assert.Equal(t, user.ID, *events[0].UserID)
	})

	t.Run("invalid tokens still audit, without a subject", func(t *testing.T) {
		sink := &captureSink{}
		auther := newTestAuther(newMemRepo(), sink)

		auther.Logout(ctx, "")
		auther.Logout(ctx, "not.a.jwt")

		events := sink.eventsFor(bookbuddy.ActionLogout)
		require.Len(t, events, 2)
		assert.Nil(t, events[0].UserID)
		assert.Nil(t, events[1].UserID)
	})

	t.Run("logging out twice is not an error", func(t *testing.T) {
		repo := newMemRepo()
		repo.seedUser(t, "reader", "reader@example.com", "password123")
		sink := &captureSink{}
		auther := newTestAuther(repo, sink)

		login, err := auther.Login(ctx, "reader", "password123")
		require.NoError(t, err)

		auther.Logout(ctx, login.RefreshToken)
		auther.Logout(ctx, login.RefreshToken)

		assert.Len(t, sink.eventsFor(bookbuddy.ActionLogout), 2)
	})
}

func TestLogoutAll(t *testing.T) {
	ctx := context.Background()

	repo := newMemRepo()
	user := repo.seedUser(t, "reader", "reader@example.com", "password123")
	sink := &captureSink{}
	auther := newTestAuther(repo, sink)

	login, err := auther.Login(ctx, "reader", "password123")
	require.NoError(t, err)
	// rotate to hold a second historical session, only one stays active
	_, err = auther.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)

	n, err := auther.LogoutAll(ctx, user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Empty(t, repo.sessions.activeFor(user.ID))
	assert.Len(t, sink.eventsFor(bookbuddy.ActionLogoutAll), 1)

	t.Run("no live sessions revokes nothing", func(t *testing.T) {
		n, err := auther.LogoutAll(ctx, uuid.New())
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
