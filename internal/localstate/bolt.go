package localstate

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"misl/internal/model"

	"go.etcd.io/bbolt"
)

const (
	bucketSnapshots = "snapshots" // key: access code -> Snapshot JSON
	bucketPrefs     = "prefs"     // key: "prefs" -> Prefs JSON
)

// Snapshot is the last list the client saw from the server.
type Snapshot struct {
	List    model.List `json:"list"`
	SavedAt time.Time  `json:"savedAt"`
}

// Prefs are per-device view settings.
type Prefs struct {
	// RowSpacing is the number of blank lines between rows (zoom).
	RowSpacing int `json:"rowSpacing"`
}

type Bolt struct {
	db *bbolt.DB
}

func Open(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketSnapshots)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketPrefs)); err != nil {
			return err
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Bolt{db: db}, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

func snapshotKey(code string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(code)))
}

func (b *Bolt) LoadSnapshot(code string) (Snapshot, bool, error) {
	var (
		snap  Snapshot
		found bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(bucketSnapshots)).Get(snapshotKey(code))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &snap)
	})
	if err != nil {
		return Snapshot{}, false, err
	}
	snap.List.Normalize()
	return snap, found, nil
}

func (b *Bolt) SaveSnapshot(code string, list model.List) error {
	if strings.TrimSpace(code) == "" {
		return errors.New("access code is required")
	}
	data, err := json.Marshal(Snapshot{List: list, SavedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketSnapshots)).Put(snapshotKey(code), data)
	})
}

func (b *Bolt) LoadPrefs() (Prefs, error) {
	var p Prefs
	err := b.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(bucketPrefs)).Get([]byte("prefs"))
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &p)
	})
	return p, err
}

func (b *Bolt) SavePrefs(p Prefs) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketPrefs)).Put([]byte("prefs"), data)
	})
}
