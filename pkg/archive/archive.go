// Package archive provides the badger-backed store for forgotten
// experiences.
//
// When reinforcement decay drives an experience to the floor and it ages
// past the archive threshold, the facade moves it here instead of deleting
// it: archived experiences no longer feed suggestions or learning, but they
// remain restorable by id. The archive is the only disk-resident store in
// the engine besides snapshots.
//
// Example:
//
//	arc, err := archive.Open(archive.Options{Dir: "./data/archive"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer arc.Close()
//
//	arc.Put(exp)
//	restored, _ := arc.Get(exp.ID)
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orneryd/muninn/pkg/experience"
	"github.com/orneryd/muninn/pkg/graph"
)

// Archive errors.
var (
	ErrNotFound = errors.New("archived experience not found")
	ErrClosed   = errors.New("archive closed")
)

var expPrefix = []byte("exp/")

// Record wraps an archived experience with archive bookkeeping.
type Record struct {
	// Key is the archive record key (a uuid, independent of the
	// experience id so re-archiving after restore mints a fresh record).
	Key string `json:"key"`
	// ArchivedAt is when the experience entered the archive.
	ArchivedAt time.Time `json:"archivedAt"`

	ID            string         `json:"id"`
	Path          []graph.NodeID `json:"path"`
	Context       string         `json:"context"`
	Outcome       string         `json:"outcome"`
	Feedback      string         `json:"feedback,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	TraversalTime int64          `json:"traversalTime"`
	Reinforcement float64        `json:"reinforcement"`
	Confidence    float64        `json:"confidence"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Options configures the archive.
type Options struct {
	// Dir is the badger data directory.
	Dir string
	// InMemory runs badger without disk, for tests.
	InMemory bool
	// Logger receives archive debug output.
	Logger *zap.Logger
}

// Archive is a badger-backed experience archive.
type Archive struct {
	db     *badger.DB
	log    *zap.Logger
	closed bool
}

// Open opens (or creates) the archive.
func Open(opts Options) (*Archive, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	badgerOpts := badger.DefaultOptions(opts.Dir)
	badgerOpts = badgerOpts.WithLogger(nil)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	return &Archive{db: db, log: log}, nil
}

func expKey(id string) []byte {
	return append(append([]byte{}, expPrefix...), []byte(id)...)
}

// Put archives an experience. The record is keyed by the experience id;
// archiving the same id twice overwrites the prior record.
func (a *Archive) Put(exp *experience.Experience) (*Record, error) {
	if a.closed {
		return nil, ErrClosed
	}
	if exp == nil || strings.TrimSpace(exp.ID) == "" {
		return nil, fmt.Errorf("archive: %w", graph.ErrInvalidData)
	}

	rec := &Record{
		Key:           uuid.NewString(),
		ArchivedAt:    time.Now().UTC(),
		ID:            exp.ID,
		Path:          exp.Path,
		Context:       exp.Context,
		Outcome:       string(exp.Outcome),
		Feedback:      exp.Feedback,
		Timestamp:     exp.Timestamp,
		TraversalTime: exp.TraversalTime,
		Reinforcement: exp.Reinforcement,
		Confidence:    exp.Confidence,
		Metadata:      exp.Metadata,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("archive: marshal %s: %w", exp.ID, err)
	}

	err = a.db.Update(func(txn *badger.Txn) error {
		return txn.Set(expKey(exp.ID), data)
	})
	if err != nil {
		return nil, fmt.Errorf("archive: put %s: %w", exp.ID, err)
	}

	a.log.Debug("experience archived",
		zap.String("experience", exp.ID),
		zap.String("record", rec.Key))
	return rec, nil
}

// Get returns the archived record for an experience id.
func (a *Archive) Get(id string) (*Record, error) {
	if a.closed {
		return nil, ErrClosed
	}

	var rec Record
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(expKey(id))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Restore removes the record from the archive and rebuilds the experience
// for re-insertion into the live store.
func (a *Archive) Restore(id string) (*experience.Experience, error) {
	rec, err := a.Get(id)
	if err != nil {
		return nil, err
	}

	err = a.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(expKey(id))
	})
	if err != nil {
		return nil, fmt.Errorf("archive: restore %s: %w", id, err)
	}

	return &experience.Experience{
		ID:            rec.ID,
		Path:          rec.Path,
		Context:       rec.Context,
		Outcome:       experience.Outcome(rec.Outcome),
		Feedback:      rec.Feedback,
		Timestamp:     rec.Timestamp,
		TraversalTime: rec.TraversalTime,
		Reinforcement: rec.Reinforcement,
		Confidence:    rec.Confidence,
		Metadata:      rec.Metadata,
	}, nil
}

// Delete permanently removes an archived record.
func (a *Archive) Delete(id string) error {
	if a.closed {
		return ErrClosed
	}
	return a.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(expKey(id)); err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return txn.Delete(expKey(id))
	})
}

// List returns every archived record, newest ArchivedAt first.
func (a *Archive) List() ([]*Record, error) {
	if a.closed {
		return nil, ErrClosed
	}

	records := make([]*Record, 0)
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = expPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(expPrefix); it.ValidForPrefix(expPrefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec Record
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				records = append(records, &rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].ArchivedAt.After(records[j].ArchivedAt)
	})
	return records, nil
}

// Count returns the number of archived records.
func (a *Archive) Count() (int, error) {
	records, err := a.List()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Close shuts the archive down. Idempotent.
func (a *Archive) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	return a.db.Close()
}
