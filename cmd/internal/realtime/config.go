package realtime

import (
	"errors"
	"net/url"
	"os"
	"strings"
	"time"
)

// ErrConfig is returned for invalid configuration.
var ErrConfig = errors.New("invalid config")

// Config defines the realtime channel configuration.
type Config struct {
	// URL is the push server address (ws:// or wss://).
	URL string

	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration

	// PongTimeout closes a connection that has not answered a ping within this duration.
	// Zero disables the check, so a stalled connection is only noticed by the transport.
	PongTimeout time.Duration

	WriteTimeout time.Duration
	DialTimeout  time.Duration
}

// DefaultConfig returns the stock push server settings.
func DefaultConfig() Config {
	return Config{
		URL:               "ws://localhost:8080",
		HeartbeatInterval: defaultHeartbeatInterval,
		ReconnectDelay:    defaultReconnectDelay,
		WriteTimeout:      defaultWriteTimeout,
		DialTimeout:       defaultDialTimeout,
	}
}

// LoadConfigFromEnv loads realtime configuration from environment variables.
//
// Optional:
//   - FRONTDESK_WS_URL
//   - FRONTDESK_WS_HEARTBEAT_INTERVAL
//   - FRONTDESK_WS_RECONNECT_DELAY
//   - FRONTDESK_WS_PONG_TIMEOUT (0 disables)
//   - FRONTDESK_WS_WRITE_TIMEOUT
//   - FRONTDESK_WS_DIAL_TIMEOUT
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("FRONTDESK_WS_URL")); v != "" {
		cfg.URL = v
	}
	if err := validateURL(cfg.URL); err != nil {
		return Config{}, ErrConfig
	}

	for env, opt := range map[string]struct {
		dst       *time.Duration
		allowZero bool
	}{
		"FRONTDESK_WS_HEARTBEAT_INTERVAL": {&cfg.HeartbeatInterval, false},
		"FRONTDESK_WS_RECONNECT_DELAY":    {&cfg.ReconnectDelay, false},
		"FRONTDESK_WS_PONG_TIMEOUT":       {&cfg.PongTimeout, true},
		"FRONTDESK_WS_WRITE_TIMEOUT":      {&cfg.WriteTimeout, false},
		"FRONTDESK_WS_DIAL_TIMEOUT":       {&cfg.DialTimeout, false},
	} {
		v := os.Getenv(env)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 || (d == 0 && !opt.allowZero) {
			return Config{}, ErrConfig
		}
		*opt.dst = d
	}

	return cfg, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.New("unsupported scheme: " + u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}
