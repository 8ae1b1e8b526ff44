package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"misl/internal/model"
)

var (
	ErrInvalidAccessCode  = errors.New("invalid access code")
	ErrNotFound           = errors.New("list not found")
	ErrWriteDenied        = errors.New("list is not writable")
	ErrLockTimeout        = errors.New("list is locked by another writer")
	ErrDeleteNotSupported = errors.New("deleting lists is not possible")
)

// CorruptError reports a list file that exists but cannot be decoded.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt list file %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

var accessCodeRe = regexp.MustCompile(`(?i)^[a-z0-9]{4,12}$`)

func ValidAccessCode(code string) bool {
	return accessCodeRe.MatchString(code)
}

// Store keeps one JSON file per list in Dir.
//
// Requests are stateless: every call reads the file from disk. The only
// coordination between writers is the advisory lock held while a new version
// of the file is written.
type Store struct {
	Dir string

	// Now stamps meta.changed on save. Defaults to time.Now.
	Now func() time.Time
	// LockTimeout bounds how long Save waits for the write lock.
	LockTimeout time.Duration
}

func (s Store) Path(code string) string {
	return filepath.Join(s.Dir, "list-"+strings.ToLower(code)+".json")
}

func (s Store) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s Store) Load(code string) (*model.List, error) {
	if !ValidAccessCode(code) {
		return nil, ErrInvalidAccessCode
	}
	path := s.Path(code)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	list, err := decodeList(b)
	if err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}
	return list, nil
}

// Save sorts both sides by category, stamps meta.changed and atomically
// replaces the list file. The list is modified in place.
func (s Store) Save(code string, list *model.List) error {
	if !ValidAccessCode(code) {
		return ErrInvalidAccessCode
	}
	path := s.Path(code)
	if err := probeWritable(path); err != nil {
		return err
	}

	list.Normalize()
	sortByCategory(list.Active)
	sortByCategory(list.Inactive)
	now := s.now()
	list.Meta.Changed = &now

	b, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	return s.withWriteLock(path, func() error {
		return writeFileAtomic(path, b)
	})
}

// Create allocates a fresh access code and writes an empty list for it.
func (s Store) Create(title string) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return "", ErrWriteDenied
		}
		return "", err
	}
	for attempt := 0; attempt < 8; attempt++ {
		code, err := newAccessCode()
		if err != nil {
			return "", err
		}
		path := s.Path(code)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if errors.Is(err, fs.ErrPermission) {
			return "", ErrWriteDenied
		}
		if err != nil {
			return "", err
		}
		_ = f.Close()

		list := &model.List{Meta: model.Meta{Name: strings.TrimSpace(title)}}
		if err := s.Save(code, list); err != nil {
			_ = os.Remove(path)
			return "", err
		}
		return code, nil
	}
	return "", errors.New("could not allocate a free access code")
}

// Delete is not supported; lists live until removed out of band.
func (s Store) Delete(code string) error {
	if !ValidAccessCode(code) {
		return ErrInvalidAccessCode
	}
	return ErrDeleteNotSupported
}

func sortByCategory(entries []model.Entry) {
	slices.SortStableFunc(entries, func(a, b model.Entry) int {
		return strings.Compare(a.Category, b.Category)
	})
}

func probeWritable(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		return ErrWriteDenied
	case err != nil:
		return err
	}
	return f.Close()
}
