package credstore

import (
	"context"
	"fmt"

	"frontdesk/cmd/security/sealer"
)

// SealedStore encrypts every value before it reaches the wrapped Store. It serves the shared
// backends (Redis, Postgres); FileStore seals its whole document itself.
//
// Values written before sealing was enabled are still returned as-is.
type SealedStore struct {
	inner  Store
	sealer *sealer.Sealer
}

// NewSealedStore wraps inner with s.
func NewSealedStore(inner Store, s *sealer.Sealer) *SealedStore {
	return &SealedStore{inner: inner, sealer: s}
}

func (s *SealedStore) Get(ctx context.Context, key Key) (string, bool, error) {
	v, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return v, ok, err
	}
	if !sealer.IsSealed([]byte(v)) {
		return v, true, nil
	}
	plain, err := s.sealer.Open([]byte(v))
	if err != nil {
		return "", false, fmt.Errorf("credstore: open %s: %w", key, err)
	}
	return string(plain), true, nil
}

func (s *SealedStore) Put(ctx context.Context, values map[Key]string) error {
	sealed := make(map[Key]string, len(values))
	for k, v := range values {
		b, err := s.sealer.Seal([]byte(v))
		if err != nil {
			return fmt.Errorf("credstore: seal %s: %w", k, err)
		}
		sealed[k] = string(b)
	}
	return s.inner.Put(ctx, sealed)
}

func (s *SealedStore) Delete(ctx context.Context, keys ...Key) error {
	return s.inner.Delete(ctx, keys...)
}

func (s *SealedStore) Close() error { return s.inner.Close() }
