package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const lockRetry = 10 * time.Millisecond

// Document is a JSON object persisted to one file. Modify only touches the
// top-level keys its callback changes, so unknown keys are kept. Writers in
// other processes are excluded by an flock on <path>.lock.
type Document struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

func NewDocument(path string) *Document {
	return &Document{path: path, lock: flock.New(path + ".lock")}
}

func (d *Document) Load() (map[string]json.RawMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read()
}

// Modify runs fn on the current document while holding the file lock and
// writes the result back when fn reports a change.
func (d *Document) Modify(ctx context.Context, fn func(doc map[string]json.RawMessage) (bool, error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	locked, err := d.lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("failed to lock state document: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to lock state document %s", d.path)
	}
	defer d.lock.Unlock()

	doc, err := d.read()
	if err != nil {
		return err
	}
	changed, err := fn(doc)
	if err != nil || !changed {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state document: %w", err)
	}
	if err := writeFileAtomic(d.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write state document: %w", err)
	}
	return nil
}

func (d *Document) read() (map[string]json.RawMessage, error) {
	doc := map[string]json.RawMessage{}
	data, err := os.ReadFile(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state document: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode state document: %w", err)
	}
	return doc, nil
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
