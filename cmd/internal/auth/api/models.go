package authapi

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UserID accepts a JSON number or string; the backend emits both depending on the endpoint.
type UserID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *UserID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null":
		*id = ""
	case strings.HasPrefix(s, `"`):
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*id = UserID(v)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("user id: %w", err)
		}
		*id = UserID(n.String())
	}
	return nil
}

// Profile is the staff member profile returned by the backend.
//
// ID and Role are authoritative server fields. FullName, Username, Email and Phone are
// user-editable. Token is set only when a profile update response also issues a fresh access token.
type Profile struct {
	ID       UserID `json:"id"`
	Role     string `json:"role"`
	FullName string `json:"full_name,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Token    string `json:"token,omitempty"`
}

// Credentials is the result of a successful login or refresh.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	User         *Profile
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// envelope is the union of every auth endpoint response.
type envelope struct {
	Success      bool     `json:"success"`
	Token        string   `json:"token,omitempty"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	User         *Profile `json:"user,omitempty"`
	Error        string   `json:"error,omitempty"`
	Message      string   `json:"message,omitempty"`
}

func (e envelope) reason() string {
	if e.Error != "" {
		return e.Error
	}
	if e.Message != "" {
		return e.Message
	}
	return "request was not successful"
}
