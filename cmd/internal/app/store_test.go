package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"frontdesk/cmd/internal/auth/credstore"
	"frontdesk/cmd/security/sealer"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func roundTrip(t *testing.T, st credstore.Store) {
	t.Helper()
	ctx := context.Background()

	if err := st.Put(ctx, map[credstore.Key]string{credstore.KeyAccessToken: "a1"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := st.Get(ctx, credstore.KeyAccessToken)
	if err != nil || !ok || got != "a1" {
		t.Fatalf("Get()=%q,%v,%v want=a1,true,nil", got, ok, err)
	}
}

func TestOpenCredentialStore_Backends(t *testing.T) {
	t.Setenv(sealer.KeyEnv, "")

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	cases := []struct {
		name string
		cfg  Config
	}{
		{name: "memory", cfg: Config{CredentialBackend: BackendMemory}},
		{name: "file", cfg: Config{CredentialBackend: BackendFile, CredentialFile: filepath.Join(t.TempDir(), "creds.json")}},
		{name: "redis", cfg: Config{CredentialBackend: BackendRedis, RedisURL: "redis://" + mr.Addr(), RedisPrefix: "frontdesk", CredentialNamespace: "desk-1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st, pool, err := openCredentialStore(context.Background(), tc.cfg, discardLogger())
			if err != nil {
				t.Fatalf("openCredentialStore(%s): %v", tc.name, err)
			}
			t.Cleanup(func() { _ = st.Close() })
			if pool != nil {
				t.Fatalf("openCredentialStore(%s) returned a pool", tc.name)
			}
			roundTrip(t, st)
		})
	}

	if keys := mr.Keys(); len(keys) == 0 {
		t.Fatalf("redis backend wrote no keys")
	}
}

func TestOpenCredentialStore_MissingURLs(t *testing.T) {
	t.Setenv(sealer.KeyEnv, "")

	for _, backend := range []string{BackendRedis, BackendPostgres} {
		_, _, err := openCredentialStore(context.Background(), Config{CredentialBackend: backend}, discardLogger())
		if !errors.Is(err, ErrConfig) {
			t.Fatalf("openCredentialStore(%s) err=%v want ErrConfig", backend, err)
		}
	}
}

func TestOpenCredentialStore_UnknownBackend(t *testing.T) {
	t.Setenv(sealer.KeyEnv, "")

	_, _, err := openCredentialStore(context.Background(), Config{CredentialBackend: "etcd"}, discardLogger())
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("err=%v want ErrConfig", err)
	}
}

func TestValidateSecurityConfig(t *testing.T) {
	cases := []struct {
		name    string
		key     string
		cfg     Config
		wantErr bool
	}{
		{name: "not required", cfg: Config{CredentialBackend: BackendFile}},
		{name: "required without key", cfg: Config{RequireSealedCredentials: true, CredentialBackend: BackendFile}, wantErr: true},
		{name: "required short key", key: "short", cfg: Config{RequireSealedCredentials: true, CredentialBackend: BackendFile}, wantErr: true},
		{name: "required with key", key: "a long enough passphrase", cfg: Config{RequireSealedCredentials: true, CredentialBackend: BackendFile}},
		{name: "required on memory", key: "a long enough passphrase", cfg: Config{RequireSealedCredentials: true, CredentialBackend: BackendMemory}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(sealer.KeyEnv, tc.key)
			err := ValidateSecurityConfig(tc.cfg)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateSecurityConfig()=%v wantErr=%v", err, tc.wantErr)
			}
		})
	}
}
