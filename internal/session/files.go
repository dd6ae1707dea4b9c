package session

import (
	"context"
	"fmt"

	"github.com/smancode/sman-sub006/internal/storage"
	"github.com/smancode/sman-sub006/pkg/types"
)

// FileStore persists sessions as JSON files, one per session id.
type FileStore struct {
	st *storage.Storage
}

// NewFileStore creates a file store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{st: storage.New(dir)}
}

// Save writes the session to disk.
func (f *FileStore) Save(ctx context.Context, sess *types.Session) error {
	if err := f.st.Put(ctx, []string{sess.ID()}, sess); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID(), err)
	}
	return nil
}

// Load reads the session with the given id. Returns storage.ErrNotFound
// if it was never saved.
func (f *FileStore) Load(ctx context.Context, id string) (*types.Session, error) {
	sess := &types.Session{}
	if err := f.st.Get(ctx, []string{id}, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Delete removes the persisted session.
func (f *FileStore) Delete(ctx context.Context, id string) error {
	return f.st.Delete(ctx, []string{id})
}

// List returns the ids of all persisted sessions.
func (f *FileStore) List(ctx context.Context) ([]string, error) {
	return f.st.List(ctx, nil)
}
