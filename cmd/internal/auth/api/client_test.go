package authapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", WithHTTPClient(srv.Client()))
}

func TestLogin_OK(t *testing.T) {
	t.Parallel()

	var gotBody loginRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != DefaultRoutes().Login {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Errorf("missing X-Request-ID")
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		_, _ = io.WriteString(w, `{"success":true,"token":"a1","refresh_token":"r1","user":{"id":7,"role":"reception","full_name":"Ana"}}`)
	})

	creds, err := c.Login(context.Background(), "ana", "pw")
	if err != nil {
		t.Fatalf("Login err=%v", err)
	}
	if gotBody.Username != "ana" || gotBody.Password != "pw" {
		t.Fatalf("request body=%+v", gotBody)
	}
	if creds.AccessToken != "a1" || creds.RefreshToken != "r1" {
		t.Fatalf("creds=%+v", creds)
	}
	if creds.User == nil || creds.User.ID != "7" || creds.User.Role != "reception" {
		t.Fatalf("user=%+v", creds.User)
	}
}

func TestLogin_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"unauthorized", 401, `{"success":false,"error":"Invalid credentials"}`, func(err error) bool { return IsStatus(err, 401) }},
		{"server", 500, `boom`, func(err error) bool { return StatusCode(err) == 500 }},
		{"rejected", 200, `{"success":false,"error":"disabled"}`, func(err error) bool { return errors.Is(err, ErrRejected) }},
		{"malformed", 200, `{not json`, func(err error) bool { return errors.Is(err, ErrMalformedResponse) }},
		{"empty", 200, ``, func(err error) bool { return errors.Is(err, ErrMalformedResponse) }},
		{"missing tokens", 200, `{"success":true}`, func(err error) bool { return errors.Is(err, ErrMalformedResponse) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := c.Login(context.Background(), "u", "p")
			if err == nil || !tt.check(err) {
				t.Fatalf("Login err=%v", err)
			}
		})
	}
}

func TestStatusError_MessageFromEnvelope(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"success":false,"error":"Invalid credentials"}`)
	})
	_, err := c.Login(context.Background(), "u", "p")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err=%v want StatusError", err)
	}
	if se.Message != "Invalid credentials" {
		t.Fatalf("Message=%q want=%q", se.Message, "Invalid credentials")
	}
}

func TestVerifyToken(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			_, _ = io.WriteString(w, `{"success":true,"user":{"id":"3","role":"admin"}}`)
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"success":false,"error":"expired"}`)
		}
	})

	p, err := c.VerifyToken(context.Background(), "good")
	if err != nil {
		t.Fatalf("VerifyToken(good) err=%v", err)
	}
	if p.ID != "3" || p.Role != "admin" {
		t.Fatalf("profile=%+v", p)
	}

	_, err = c.VerifyToken(context.Background(), "bad")
	if !IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("VerifyToken(bad) err=%v want 401", err)
	}
}

func TestRefreshToken_KeepsRefreshTokenWhenOmitted(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.RefreshToken != "r1" {
			t.Errorf("refresh_token=%q want=r1", req.RefreshToken)
		}
		_, _ = io.WriteString(w, `{"success":true,"token":"a2"}`)
	})

	creds, err := c.RefreshToken(context.Background(), "r1")
	if err != nil {
		t.Fatalf("RefreshToken err=%v", err)
	}
	if creds.AccessToken != "a2" || creds.RefreshToken != "r1" {
		t.Fatalf("creds=%+v", creds)
	}
}

func TestGetProfile_CustomRoutes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/me" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"success":true,"user":{"id":1,"role":"maintenance","phone":"555"}}`)
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, WithRoutes(Routes{Profile: "/v2/me"}))
	p, err := c.GetProfile(context.Background(), "tok")
	if err != nil {
		t.Fatalf("GetProfile err=%v", err)
	}
	if p.Phone != "555" || p.Role != "maintenance" {
		t.Fatalf("profile=%+v", p)
	}
	if got := c.routes.Login; got != DefaultRoutes().Login {
		t.Fatalf("Login route=%q want default", got)
	}
}

func TestUserID_Unmarshal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want UserID
	}{
		{`1`, "1"},
		{`"u-9"`, "u-9"},
		{`null`, ""},
	}
	for _, tt := range tests {
		var id UserID
		if err := json.Unmarshal([]byte(tt.in), &id); err != nil {
			t.Fatalf("Unmarshal(%s) err=%v", tt.in, err)
		}
		if id != tt.want {
			t.Fatalf("Unmarshal(%s)=%q want=%q", tt.in, id, tt.want)
		}
	}
}
