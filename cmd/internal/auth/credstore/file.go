package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"frontdesk/cmd/security/sealer"
)

// FileStore persists credentials as one JSON document on disk (mode 0600).
//
// The file is re-read on every Get so a `frontdesk login` in another process is picked up by a
// running agent. Writes go to a temp file that is renamed over the original.
// When a Sealer is configured the document is encrypted; an existing plain file is still readable
// and is sealed on the next write. A document that cannot be read (truncated, or sealed with a
// key this process does not have) is replaced by the next Put and removed by a Delete of every key.
type FileStore struct {
	path   string
	sealer *sealer.Sealer
	log    *slog.Logger

	mu     sync.Mutex
	closed bool
}

// FileOption configures FileStore behavior.
type FileOption func(*FileStore)

// WithSealer encrypts the credentials document with s.
func WithSealer(s *sealer.Sealer) FileOption {
	return func(f *FileStore) { f.sealer = s }
}

// WithFileLogger sets the logger used to report replaced documents.
func WithFileLogger(log *slog.Logger) FileOption {
	return func(f *FileStore) {
		if log != nil {
			f.log = log
		}
	}
}

// NewFileStore constructs a FileStore at path. The parent directory is created on first write.
func NewFileStore(path string, opts ...FileOption) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("credstore: empty file path")
	}
	f := &FileStore{path: filepath.Clean(path), log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// DefaultFilePath returns ~/.frontdesk/credentials.json.
func DefaultFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".frontdesk", "credentials.json"), nil
}

// Path returns the backing file path.
func (f *FileStore) Path() string { return f.path }

// Get implements Store.
func (f *FileStore) Get(ctx context.Context, key Key) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", false, ErrClosed
	}

	doc, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := doc[string(key)]
	return v, ok, nil
}

// Put implements Store.
func (f *FileStore) Put(ctx context.Context, values map[Key]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	doc, err := f.load()
	if unreadable(err) {
		f.log.Warn("credstore.file.replaced", "path", f.path, "err", err)
		doc, err = make(map[string]string), nil
	}
	if err != nil {
		return err
	}
	for k, v := range values {
		doc[string(k)] = v
	}
	return f.save(doc)
}

// Delete implements Store.
func (f *FileStore) Delete(ctx context.Context, keys ...Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	doc, err := f.load()
	if unreadable(err) && coversAll(keys) {
		f.log.Warn("credstore.file.removed", "path", f.path, "err", err)
		return f.remove()
	}
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(doc, string(k))
	}
	if len(doc) == 0 {
		return f.remove()
	}
	return f.save(doc)
}

func (f *FileStore) remove() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("credstore: remove: %w", err)
	}
	return nil
}

func unreadable(err error) bool {
	return errors.Is(err, ErrCorrupt) || errors.Is(err, ErrSealed)
}

func coversAll(keys []Key) bool {
	for _, k := range AllKeys {
		if !slices.Contains(keys, k) {
			return false
		}
	}
	return true
}

// Close implements Store.
func (f *FileStore) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *FileStore) load() (map[string]string, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("credstore: read: %w", err)
	}

	if sealer.IsSealed(b) {
		if f.sealer == nil {
			return nil, ErrSealed
		}
		b, err = f.sealer.Open(b)
		if err != nil {
			return nil, fmt.Errorf("%w: open: %w", ErrCorrupt, err)
		}
	}

	doc := make(map[string]string)
	if len(b) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrCorrupt, err)
	}
	return doc, nil
}

func (f *FileStore) save(doc map[string]string) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("credstore: encode: %w", err)
	}
	if f.sealer != nil {
		b, err = f.sealer.Seal(b)
		if err != nil {
			return err
		}
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("credstore: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("credstore: temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("credstore: chmod: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("credstore: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("credstore: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credstore: close: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("credstore: rename: %w", err)
	}
	return nil
}
