package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// Transport is an http.RoundTripper that authenticates requests with the Session's access token
// and recovers from one expired-token condition per request.
//
// On a 401 it retries exactly once: with the current token if another caller already rotated
// it, otherwise after RefreshAccessToken. A 401 on the retry destroys the Session and is returned
// as ErrUnauthorized. A failed refresh has already destroyed the Session and is returned as is.
type Transport struct {
	m    *Manager
	base http.RoundTripper
}

// NewTransport wraps base. A nil base uses http.DefaultTransport.
func NewTransport(m *Manager, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{m: m, base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token := t.m.AccessToken()
	if token == "" {
		closeBody(req)
		return nil, fmt.Errorf("session.Transport: %w", ErrNotAuthenticated)
	}

	getBody, err := rewindable(req)
	if err != nil {
		return nil, fmt.Errorf("session.Transport: buffer body: %w", err)
	}

	resp, err := t.send(req, getBody, token)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	discard(resp)

	var retried string
	if current := t.m.AccessToken(); current != "" && current != token {
		retried = current
	} else {
		retried, err = t.m.RefreshAccessToken(req.Context())
		if err != nil {
			return nil, fmt.Errorf("session.Transport: refresh after 401: %w", err)
		}
	}
	t.m.metrics.retry()
	t.m.log.Debug("session.retry", "method", req.Method, "path", req.URL.Path)

	resp, err = t.send(req, getBody, retried)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	discard(resp)

	t.m.log.Warn("session.retry.unauthorized", "method", req.Method, "path", req.URL.Path)
	t.m.logoutUnauthorized(context.WithoutCancel(req.Context()))
	return nil, fmt.Errorf("session.Transport: %w: request rejected after refresh", ErrUnauthorized)
}

func (t *Transport) send(req *http.Request, getBody func() (io.ReadCloser, error), token string) (*http.Response, error) {
	r := req.Clone(req.Context())
	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return nil, err
		}
		r.Body = body
		r.GetBody = getBody
	}
	r.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(r)
}

// rewindable returns a body factory so the request can be sent twice.
func rewindable(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		_ = req.Body.Close()
		return req.GetBody, nil
	}
	defer req.Body.Close() //nolint:errcheck // best-effort close
	buf, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}

// HTTPClient returns a client whose requests go through Transport.
func (m *Manager) HTTPClient() *http.Client {
	return &http.Client{Transport: NewTransport(m, m.base)}
}

// Do sends an authenticated request through Transport.
func (m *Manager) Do(req *http.Request) (*http.Response, error) {
	return m.HTTPClient().Do(req)
}
