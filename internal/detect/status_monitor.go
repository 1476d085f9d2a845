package detect

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"wbpulse/internal/store"
	"wbpulse/internal/types"
)

// statusKeyPrefix namespaces order-status keys in the shared store.
// Key layout: st|{cabinetID}|{srid} -> status string.
const statusKeyPrefix = "st|"

// StatusMonitor persists the last-seen status of every order so that status
// transitions survive process restarts. The detector diffs the statuses
// loaded here against the statuses in the freshly synced snapshot.
type StatusMonitor struct {
	store *store.Store
}

// NewStatusMonitor creates a StatusMonitor on the shared store.
func NewStatusMonitor(s *store.Store) *StatusMonitor {
	return &StatusMonitor{store: s}
}

func statusKey(cabinetID, srid string) []byte {
	return []byte(statusKeyPrefix + cabinetID + "|" + srid)
}

// LoadStatuses returns the recorded status per SRID for one cabinet.
func (m *StatusMonitor) LoadStatuses(cabinetID string) (map[string]types.OrderStatus, error) {
	out := make(map[string]types.OrderStatus)
	prefix := []byte(statusKeyPrefix + cabinetID + "|")

	err := m.store.DB().View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			srid := string(item.Key()[len(prefix):])
			if err := item.Value(func(val []byte) error {
				out[srid] = types.OrderStatus(val)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("status monitor: load %s: %w", cabinetID, err)
	}
	return out, nil
}

// SaveStatuses records the current status of every order in the snapshot.
// Writes are batched; a snapshot larger than one badger transaction is
// split automatically via WriteBatch.
func (m *StatusMonitor) SaveStatuses(cabinetID string, orders []types.Order) error {
	wb := m.store.DB().NewWriteBatch()
	defer wb.Cancel()

	for _, o := range orders {
		if err := wb.Set(statusKey(cabinetID, o.SRID), []byte(o.Status)); err != nil {
			return fmt.Errorf("status monitor: save %s/%s: %w", cabinetID, o.SRID, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("status monitor: flush %s: %w", cabinetID, err)
	}
	return nil
}

// GetStatus returns the recorded status of a single order, or ok=false if
// the order has never been seen.
func (m *StatusMonitor) GetStatus(cabinetID, srid string) (types.OrderStatus, bool, error) {
	var status types.OrderStatus
	err := m.store.DB().View(func(txn *badger.Txn) error {
		item, err := txn.Get(statusKey(cabinetID, srid))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			status = types.OrderStatus(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("status monitor: get %s/%s: %w", cabinetID, srid, err)
	}
	return status, true, nil
}

// Forget removes all recorded statuses for a cabinet. Called when a cabinet
// is deleted.
func (m *StatusMonitor) Forget(cabinetID string) error {
	prefix := []byte(statusKeyPrefix + cabinetID + "|")

	var keys [][]byte
	err := m.store.DB().View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("status monitor: scan %s: %w", cabinetID, err)
	}

	wb := m.store.DB().NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("status monitor: delete: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("status monitor: forget %s: %w", cabinetID, err)
	}
	return nil
}

// ApplyKnownStatuses overlays persisted statuses onto the previous snapshot.
// Orders present in the store but missing from prev are appended with their
// recorded status, so a worker restart between syncs does not make every
// order look new.
func ApplyKnownStatuses(cabinetID string, prev []types.Order, known map[string]types.OrderStatus) []types.Order {
	present := make(map[string]struct{}, len(prev))
	for _, o := range prev {
		present[o.SRID] = struct{}{}
	}
	out := prev
	for srid, status := range known {
		if _, ok := present[srid]; ok {
			continue
		}
		out = append(out, types.Order{CabinetID: cabinetID, SRID: srid, Status: status})
	}
	return out
}
