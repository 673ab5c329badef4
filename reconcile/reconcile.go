// Package reconcile replaces committed artifacts only when their content changed.
package reconcile

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Outcome ...
type Outcome int

const (
	Unchanged Outcome = iota
	Updated
)

func (o Outcome) String() string {
	if o == Updated {
		return "updated"
	}
	return "unchanged"
}

// Result of one reconcile call.
type Result struct {
	Path    string
	Outcome Outcome
	OldHash string // empty when no prior artifact existed
	NewHash string
}

// ReconcileError ...
type ReconcileError struct {
	Path  string
	Cause error
}

func (e *ReconcileError) Error() string {
	return "[reconcile] [" + e.Path + "] " + e.Cause.Error()
}

func (e *ReconcileError) Unwrap() error { return e.Cause }

// Reconciler ...
type Reconciler struct {
	// Root is prepended to relative artifact paths.
	Root string
	// Perm of newly written artifacts, default 0644.
	Perm fs.FileMode
}

// Hash returns the hex content hash used for comparison.
func Hash(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

// Reconcile compares data with the artifact at path and overwrites it on difference.
func (r *Reconciler) Reconcile(path string, data []byte) (Result, error) {
	res, err := r.Compare(path, data)
	if err != nil {
		return res, err
	}
	return res, r.Apply(res, data)
}

// Compare reports what Reconcile would do with data, without writing.
func (r *Reconciler) Compare(path string, data []byte) (Result, error) {
	res := Result{Path: path, NewHash: Hash(data), Outcome: Updated}
	old, err := os.ReadFile(r.resolve(path))
	switch {
	case err == nil:
		res.OldHash = Hash(old)
		if res.OldHash == res.NewHash {
			res.Outcome = Unchanged
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return res, &ReconcileError{Path: path, Cause: err}
	}
	return res, nil
}

// Apply writes data for an Updated result of Compare, Unchanged is a no-op.
func (r *Reconciler) Apply(res Result, data []byte) error {
	if res.Outcome != Updated {
		return nil
	}
	if err := r.write(r.resolve(res.Path), data); err != nil {
		return &ReconcileError{Path: res.Path, Cause: err}
	}
	return nil
}

// resolve ...
func (r *Reconciler) resolve(path string) string {
	if r.Root == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(r.Root, path)
}

// write replaces full atomically via a temp file in the same directory.
func (r *Reconciler) write(full string, data []byte) error {
	perm := r.Perm
	if perm == 0 {
		perm = 0o644
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(full)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), full)
}
