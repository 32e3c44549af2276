package session

import (
	"encoding/json"
	"strings"

	authapi "frontdesk/cmd/internal/auth/api"
)

// MergeProfile combines the canonical server profile with the locally cached one.
//
// ID and Role always come from the server. FullName, Username, Email and Phone keep the cached
// value when it is non-empty, since profile edits are applied locally first and must survive a
// later login or refresh. A cached profile that belongs to a different user id is ignored.
// Token is never carried over.
func MergeProfile(server authapi.Profile, cached *authapi.Profile) authapi.Profile {
	out := server
	out.Token = ""
	if cached == nil {
		return out
	}
	if cached.ID != "" && server.ID != "" && cached.ID != server.ID {
		return out
	}
	out.FullName = prefer(cached.FullName, server.FullName)
	out.Username = prefer(cached.Username, server.Username)
	out.Email = prefer(cached.Email, server.Email)
	out.Phone = prefer(cached.Phone, server.Phone)
	return out
}

func prefer(local, server string) string {
	if strings.TrimSpace(local) != "" {
		return local
	}
	return server
}

func encodeProfile(p *authapi.Profile) (string, error) {
	if p == nil {
		return "", nil
	}
	c := *p
	c.Token = ""
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeProfile(s string) (*authapi.Profile, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var p authapi.Profile
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, err
	}
	return &p, nil
}
