package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"zwop/internal/types"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600
)

// Repository is a ClientRepository backed by a single file. All records are held in an
// immutable in-memory snapshot; every insert rewrites the whole file and swaps the snapshot.
// Readers never touch the file and never wait on a writer.
type Repository struct {
	path  string
	codec codec

	// mu serializes writers. Readers only load snap.
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	clients []types.Client
	index   map[string]int
}

func emptySnapshot() *snapshot {
	return &snapshot{index: map[string]int{}}
}

// with returns a copy of s with c appended. s is left untouched.
func (s *snapshot) with(c types.Client) *snapshot {
	next := &snapshot{
		clients: make([]types.Client, len(s.clients), len(s.clients)+1),
		index:   make(map[string]int, len(s.index)+1),
	}
	copy(next.clients, s.clients)
	for k, v := range s.index {
		next.index[k] = v
	}
	next.index[c.ClientKey()] = len(next.clients)
	next.clients = append(next.clients, c)
	return next
}

// NewRepository opens the store at path, creating an empty one if the file does not exist.
// A file that cannot be decoded, or that holds an invalid or repeated record, fails with
// types.ErrCorruptStore.
func NewRepository(path string) (*Repository, error) {
	r := &Repository{path: path, codec: codecFor(path)}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the location of the backing file.
func (r *Repository) Path() string { return r.path }

func (r *Repository) load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), dirPerm); err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "create store dir")
	}

	b, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		empty := emptySnapshot()
		if err := r.persist(empty); err != nil {
			return types.Err(types.ErrDataStoreAccess, err, "create store file %s", r.path)
		}
		r.snap.Store(empty)
		if err := syncDir(filepath.Dir(r.path)); err != nil {
			return types.Err(types.ErrDataStoreAccess, err, "")
		}
		return nil
	} else if err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "read store file %s", r.path)
	}

	records, err := r.codec.decode(b)
	if err != nil {
		return types.Err(types.ErrCorruptStore, err, "decode %s store file %s", r.codec.name, r.path)
	}
	snap := emptySnapshot()
	for i, rec := range records {
		c, err := rec.Client()
		if err != nil {
			return types.Err(types.ErrCorruptStore, err, "record %d in %s", i, r.path)
		}
		if _, dup := snap.index[c.ClientKey()]; dup {
			return types.Err(types.ErrCorruptStore, types.ErrDuplicateKey, "record %d in %s", i, r.path)
		}
		snap.index[c.ClientKey()] = len(snap.clients)
		snap.clients = append(snap.clients, c)
	}
	r.snap.Store(snap)
	return nil
}

func (r *Repository) Get(_ context.Context, key string) (types.Client, error) {
	snap := r.snap.Load()
	i, ok := snap.index[key]
	if !ok {
		return nil, types.Err(types.ErrNotFound, nil, "no client for key")
	}
	return types.CloneClient(snap.clients[i]), nil
}

func (r *Repository) List(_ context.Context) ([]types.Client, error) {
	snap := r.snap.Load()
	out := make([]types.Client, 0, len(snap.clients))
	for _, c := range snap.clients {
		out = append(out, types.CloneClient(c))
	}
	return out, nil
}

func (r *Repository) Put(ctx context.Context, client types.ScopedClient) error {
	return r.insert(ctx, client)
}

func (r *Repository) PutAdmin(ctx context.Context, client types.AdminClient) error {
	return r.insert(ctx, client)
}

// insert runs check, persist and publish under the writer lock, so a reader sees either
// the old snapshot or the new one, and the new one only once it is on disk.
func (r *Repository) insert(ctx context.Context, c types.Client) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	if _, exists := cur.index[c.ClientKey()]; exists {
		return types.Err(types.ErrDuplicateKey, nil, "%s client", c.Kind())
	}
	next := cur.with(types.CloneClient(c))
	if err := r.persist(next); err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "write store file %s", r.path)
	}
	// The file now holds next; publish it even if the directory sync below fails.
	r.snap.Store(next)
	if err := syncDir(filepath.Dir(r.path)); err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "")
	}
	return nil
}

// persist writes the full snapshot to a temp file next to the store and renames it over
// the store, so the file on disk is always a complete version.
func (r *Repository) persist(s *snapshot) error {
	b, err := r.codec.encode(types.ToRecords(s.clients))
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	dir := filepath.Dir(r.path)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := tmpFile.Chmod(filePerm); err != nil {
		return fmt.Errorf("chmod temp store file: %w", err)
	}
	if _, err := tmpFile.Write(b); err != nil {
		return fmt.Errorf("write temp store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush temp store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

// syncDir makes the rename itself durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open store dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync store dir: %w", err)
	}
	return nil
}
