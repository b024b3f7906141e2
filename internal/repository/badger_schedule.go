package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/jspindler/takt/internal/domain"
)

// BadgerScheduleStore implements ScheduleStore on Badger, for sites that
// run takt without a relational database. Entries are stored twice: the
// full document under a machine-scoped key so per-machine range reads are
// one prefix scan, and a pointer under the entry id for direct lookup.
type BadgerScheduleStore struct {
	db *badger.DB
}

// NewBadgerScheduleStore opens (or creates) a Badger store at path.
func NewBadgerScheduleStore(path string) (*BadgerScheduleStore, error) {
	opts := badger.DefaultOptions(filepath.Clean(path))
	opts.Logger = nil
	opts = opts.WithValueLogFileSize(1 << 20)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger store: %w", err)
	}
	return &BadgerScheduleStore{db: db}, nil
}

// NewInMemoryBadgerScheduleStore opens a store that lives only in memory.
// Tests use it in place of a SQLite database.
func NewInMemoryBadgerScheduleStore() (*BadgerScheduleStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening in-memory badger store: %w", err)
	}
	return &BadgerScheduleStore{db: db}, nil
}

func (s *BadgerScheduleStore) Close() error {
	return s.db.Close()
}

func entryKey(machineID, entryID string) []byte {
	return []byte("entry:" + machineID + ":" + entryID)
}

func entryPointerKey(entryID string) []byte {
	return []byte("entry_machine:" + entryID)
}

func machinePrefix(machineID string) []byte {
	return []byte("entry:" + machineID + ":")
}

func (s *BadgerScheduleStore) Create(ctx context.Context, e *domain.ScheduleEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding schedule entry: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(entryKey(e.MachineID, e.ID), data); err != nil {
			return err
		}
		return txn.Set(entryPointerKey(e.ID), []byte(e.MachineID))
	})
	if err != nil {
		return fmt.Errorf("inserting schedule entry: %w", err)
	}
	return nil
}

func (s *BadgerScheduleStore) GetByID(ctx context.Context, id string) (*domain.ScheduleEntry, error) {
	var out domain.ScheduleEntry
	err := s.db.View(func(txn *badger.Txn) error {
		machineID, err := readValue(txn, entryPointerKey(id))
		if err != nil {
			return err
		}
		data, err := readValue(txn, entryKey(string(machineID), id))
		if err != nil {
			return err
		}
		return json.Unmarshal(data, &out)
	})
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("schedule entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading schedule entry: %w", err)
	}
	return &out, nil
}

func (s *BadgerScheduleStore) Update(ctx context.Context, id string, patch EntryPatch) error {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	oldMachine := current.MachineID
	if patch.MachineID != nil {
		current.MachineID = *patch.MachineID
	}
	if patch.StartTime != nil {
		current.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		current.EndTime = *patch.EndTime
	}
	if patch.Status != nil {
		current.Status = *patch.Status
	}
	current.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("encoding schedule entry: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if current.MachineID != oldMachine {
			if err := txn.Delete(entryKey(oldMachine, id)); err != nil {
				return err
			}
			if err := txn.Set(entryPointerKey(id), []byte(current.MachineID)); err != nil {
				return err
			}
		}
		return txn.Set(entryKey(current.MachineID, id), data)
	})
	if err != nil {
		return fmt.Errorf("updating schedule entry: %w", err)
	}
	return nil
}

func (s *BadgerScheduleStore) Delete(ctx context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		machineID, err := readValue(txn, entryPointerKey(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		if err := txn.Delete(entryKey(string(machineID), id)); err != nil {
			return err
		}
		return txn.Delete(entryPointerKey(id))
	})
	if err != nil {
		return fmt.Errorf("deleting schedule entry: %w", err)
	}
	return nil
}

func (s *BadgerScheduleStore) ListByMachine(ctx context.Context, machineID string, from, to time.Time) ([]*domain.ScheduleEntry, error) {
	entries, err := s.scanMachine(machineID, func(e *domain.ScheduleEntry) bool {
		return e.StartTime.Before(to) && e.EndTime.After(from)
	})
	if err != nil {
		return nil, fmt.Errorf("listing entries by machine: %w", err)
	}
	return entries, nil
}

func (s *BadgerScheduleStore) ListByInstance(ctx context.Context, processInstanceID string) ([]*domain.ScheduleEntry, error) {
	var entries []*domain.ScheduleEntry
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("entry:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e domain.ScheduleEntry
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &e)
			}); err != nil {
				return err
			}
			if e.ProcessInstanceID == processInstanceID {
				entry := e
				entries = append(entries, &entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing entries by instance: %w", err)
	}
	sortEntriesByStart(entries)
	return entries, nil
}

func (s *BadgerScheduleStore) DetectConflicts(ctx context.Context, candidate *domain.ScheduleEntry) ([]*domain.ScheduleEntry, error) {
	entries, err := s.scanMachine(candidate.MachineID, func(e *domain.ScheduleEntry) bool {
		return e.ID != candidate.ID &&
			e.Blocking() &&
			e.StartTime.Before(candidate.EndTime) &&
			candidate.StartTime.Before(e.EndTime)
	})
	if err != nil {
		return nil, fmt.Errorf("detecting schedule conflicts: %w", err)
	}
	return entries, nil
}

// scanMachine prefix-scans one machine's entries, keeping those that pass
// the filter, ordered by start time.
func (s *BadgerScheduleStore) scanMachine(machineID string, keep func(*domain.ScheduleEntry) bool) ([]*domain.ScheduleEntry, error) {
	var entries []*domain.ScheduleEntry
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := machinePrefix(machineID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e domain.ScheduleEntry
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &e)
			}); err != nil {
				return err
			}
			if keep(&e) {
				entry := e
				entries = append(entries, &entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortEntriesByStart(entries)
	return entries, nil
}

func sortEntriesByStart(entries []*domain.ScheduleEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].StartTime.Before(entries[j].StartTime)
	})
}

func readValue(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	var out []byte
	err = item.Value(func(v []byte) error {
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}
