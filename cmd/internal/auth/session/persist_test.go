package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	authapi "frontdesk/cmd/internal/auth/api"
	"frontdesk/cmd/internal/auth/authtest"
	"frontdesk/cmd/internal/auth/credstore"
)

// rejectStore fails every Put that writes key.
type rejectStore struct {
	credstore.Store
	key credstore.Key
}

var errRejected = errors.New("store rejected write")

func (s rejectStore) Put(ctx context.Context, values map[credstore.Key]string) error {
	if _, ok := values[s.key]; ok {
		return errRejected
	}
	return s.Store.Put(ctx, values)
}

func newStoreManager(t *testing.T, store credstore.Store) (*Manager, *authtest.Server) {
	t.Helper()
	srv := authtest.New(t)
	srv.AddUser("ana", "secret", authapi.Profile{ID: "1", Role: "admin", FullName: "Server Name"})

	cfg := DefaultConfig()
	cfg.APIBaseURL = srv.URL()
	api := authapi.New(srv.URL(), authapi.WithHTTPClient(srv.Client()))
	return NewManager(cfg, api, store, WithBaseTransport(srv.Client().Transport)), srv
}

func TestLogin_PersistFailureLeavesStoreUntouched(t *testing.T) {
	mem := credstore.NewMemoryStore()
	m, _ := newStoreManager(t, rejectStore{Store: mem, key: credstore.KeyUser})

	_, err := m.Login(context.Background(), "ana", "secret")
	if !errors.Is(err, errRejected) {
		t.Fatalf("Login err=%v want=%v", err, errRejected)
	}
	if got := m.Status(); got != StatusUnauthenticated {
		t.Fatalf("Status()=%q want=%q", got, StatusUnauthenticated)
	}
	for _, k := range credstore.AllKeys {
		if v, ok, _ := mem.Get(context.Background(), k); ok {
			t.Fatalf("store holds %s=%q after failed login", k, v)
		}
	}
}

func TestFileBackedSession_TruncatedDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte(`{"access_token":"a-old","refresh_tok`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	store, err := credstore.NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	m, _ := newStoreManager(t, store)
	ctx := context.Background()

	if _, err := m.RestoreSession(ctx); !errors.Is(err, credstore.ErrCorrupt) {
		t.Fatalf("RestoreSession err=%v want=%v", err, credstore.ErrCorrupt)
	}
	if got := m.Status(); got != StatusUnauthenticated {
		t.Fatalf("Status() after restore=%q want=%q", got, StatusUnauthenticated)
	}

	if _, err := m.Login(ctx, "ana", "secret"); err != nil {
		t.Fatalf("Login err=%v", err)
	}
	got, ok, err := store.Get(ctx, credstore.KeyAccessToken)
	if err != nil || !ok || got != m.AccessToken() {
		t.Fatalf("stored access=%q ok=%v err=%v", got, ok, err)
	}

	// Truncate again under a live Session; logout still has to clear it.
	if err := os.WriteFile(path, []byte(`{"acc`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := m.Logout(ctx); err != nil {
		t.Fatalf("Logout err=%v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("credentials file stat err=%v want not exist", err)
	}
}
