// Package authapi is the HTTP client for the hotel backend's authentication endpoints:
// login, verify_token, refresh_token and get_profile.
//
// Every response is the backend's JSON envelope {success, token, refresh_token, user, error}.
// Transport failures, non-2xx statuses and success:false payloads are reported as distinct
// errors so the session layer can classify them.
package authapi
