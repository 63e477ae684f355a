// Package bookbuddy implements the BookBuddy API: account registration and
// login, the dual-token session lifecycle, and the saved-book library.
//
// Sessions:
//   - Every login or registration opens one refresh session, persisted by its
//     jti claim. Access tokens are short lived and stateless; refresh tokens
//     rotate on every redemption and a replayed token closes with a reuse
//     audit instead of a new session. A user keeps a single refresh lineage,
//     logging in revokes everything issued before.
//
// Single use tokens:
//   - Email verification and password reset travel as random secrets whose
//     sha256 hash is stored. Each user holds at most one live token per
//     purpose; redemption consumes it with a conditional update so a
//     concurrent replay loses cleanly.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther and the
//     token handlers. Sinks run best-effort (errors are logged) so you can
//     forward to a database or log without blocking authentication.
package bookbuddy
