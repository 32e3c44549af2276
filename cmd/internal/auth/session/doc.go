// Package session implements the client side of the frontdesk session lifecycle.
//
// A Manager owns exactly one Session: the access token, the refresh token and the staff
// profile, together with a status (unauthenticated, restoring, authenticated, refreshing).
// It orchestrates login, logout, startup restoration and refresh, and persists every
// credential change to a credstore.Store before the in-memory state is updated.
//
// Refresh is deduplicated: concurrent callers share one in-flight call. A generation counter
// advanced by Logout makes the result of a refresh that was in flight during logout a no-op.
//
// Transport wraps an http.RoundTripper so that an authenticated call answered with 401 is
// retried once after refresh. A second 401 logs the Session out.
package session
