package credstore

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestPostgresStore_Integration(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("FRONTDESK_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("FRONTDESK_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	defer pool.Close()

	s, err := NewPostgresStore(pool, WithSchema("frontdesk_test"), WithNamespace("it-"+time.Now().UTC().Format("150405.000")))
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	exerciseStore(t, s)
}

func TestPostgresOptions(t *testing.T) {
	t.Parallel()

	if _, err := NewPostgresStore(nil); err == nil {
		t.Fatalf("expected nil pool error")
	}

	cases := []struct {
		schema string
		ok     bool
	}{
		{schema: "frontdesk", ok: true},
		{schema: "_x1", ok: true},
		{schema: "", ok: false},
		{schema: "bad-name", ok: false},
		{schema: "1abc", ok: false},
		{schema: `x";drop`, ok: false},
	}
	for _, tc := range cases {
		s := &PostgresStore{}
		err := WithSchema(tc.schema)(s)
		if (err == nil) != tc.ok {
			t.Fatalf("WithSchema(%q) err=%v want ok=%v", tc.schema, err, tc.ok)
		}
	}
}
