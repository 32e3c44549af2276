package app

import (
	"errors"
	"slices"
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("FD_TEST_STR", "  value ")
	t.Setenv("FD_TEST_BOOL", "true")
	t.Setenv("FD_TEST_BAD_BOOL", "maybe")
	t.Setenv("FD_TEST_INT", "12")
	t.Setenv("FD_TEST_NEG_INT", "-3")
	t.Setenv("FD_TEST_INT32", "0")
	t.Setenv("FD_TEST_DUR", "250ms")
	t.Setenv("FD_TEST_ZERO_DUR", "0s")
	t.Setenv("FD_TEST_CSV", "http://a, ,http://b:*")
	t.Setenv("FD_TEST_EMPTY_CSV", " , ")

	if got := EnvString("FD_TEST_STR", "def"); got != "value" {
		t.Fatalf("EnvString=%q want=value", got)
	}
	if got := EnvString("FD_TEST_UNSET", "def"); got != "def" {
		t.Fatalf("EnvString(unset)=%q want=def", got)
	}
	if !EnvBool("FD_TEST_BOOL", false) || !EnvBool("FD_TEST_BAD_BOOL", true) {
		t.Fatalf("EnvBool parse/default mismatch")
	}
	if got := EnvInt("FD_TEST_INT", 1); got != 12 {
		t.Fatalf("EnvInt=%d want=12", got)
	}
	if got := EnvInt("FD_TEST_NEG_INT", 1); got != 1 {
		t.Fatalf("EnvInt(negative)=%d want=1", got)
	}
	if got := EnvInt32("FD_TEST_INT32", 4); got != 0 {
		t.Fatalf("EnvInt32=%d want=0", got)
	}
	if got := EnvDuration("FD_TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Fatalf("EnvDuration=%v want=250ms", got)
	}
	if got := EnvDuration("FD_TEST_ZERO_DUR", time.Second); got != time.Second {
		t.Fatalf("EnvDuration(zero)=%v want=1s", got)
	}
	if got := EnvCSV("FD_TEST_CSV", nil); !slices.Equal(got, []string{"http://a", "http://b:*"}) {
		t.Fatalf("EnvCSV=%v", got)
	}
	if got := EnvCSV("FD_TEST_EMPTY_CSV", []string{"x"}); !slices.Equal(got, []string{"x"}) {
		t.Fatalf("EnvCSV(blank)=%v want=[x]", got)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AdminAddr != "127.0.0.1:7070" || cfg.CredentialBackend != BackendFile || cfg.NotificationCap != 50 {
		t.Fatalf("defaults=%+v", cfg)
	}
	if cfg.Realtime.ReconnectDelay != 5*time.Second || cfg.Realtime.HeartbeatInterval != 30*time.Second {
		t.Fatalf("realtime defaults=%+v", cfg.Realtime)
	}
	if cfg.Session.LoginTimeout != 10*time.Second {
		t.Fatalf("login timeout=%v want=10s", cfg.Session.LoginTimeout)
	}
}

func TestLoadConfig_UnknownBackend(t *testing.T) {
	t.Setenv("FRONTDESK_CREDENTIAL_BACKEND", "etcd")

	if _, err := LoadConfig(); !errors.Is(err, ErrConfig) {
		t.Fatalf("LoadConfig() err=%v want ErrConfig", err)
	}
}
