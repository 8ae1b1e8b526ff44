package store

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
)

const defaultLockTimeout = 5 * time.Second

// withWriteLock runs fn while holding the exclusive advisory lock for path.
// The lock lives in a sibling file so it survives the atomic rename of path.
func (s Store) withWriteLock(path string, fn func() error) error {
	timeout := s.LockTimeout
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	lock := flock.New(path + ".lock")
	ok, err := lock.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return ErrWriteDenied
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrLockTimeout
		}
		return err
	}
	if !ok {
		return ErrLockTimeout
	}
	defer func() { _ = lock.Unlock() }()
	return fn()
}

// writeFileAtomic replaces path so readers see either the old or the new
// contents, never a partial file.
func writeFileAtomic(path string, b []byte) error {
	if err := atomic.WriteFile(path, bytes.NewReader(b)); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return ErrWriteDenied
		}
		return err
	}
	return nil
}
