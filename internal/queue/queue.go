// Package queue implements the notification priority queue on the embedded
// key-value store.
//
// The queue is four FIFO lists, one per priority. Pop always drains CRITICAL
// before HIGH before MEDIUM before LOW; within one priority items come out in
// enqueue order. Items carry their own retry bookkeeping so a worker crash
// between pop and delivery loses at most the in-flight item.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"wbpulse/internal/store"
	"wbpulse/internal/types"
)

// Key layout: q|{rank}|{seq:020d} -> JSON-encoded Item. The sequence is
// shared across priorities; within one priority prefix, key order equals
// enqueue order.
const (
	queueKeyPrefix = "q|"
	seqKey         = "q_seq"
	seqBandwidth   = 128
)

// Item is the envelope stored in the queue.
type Item struct {
	Notification types.Notification `json:"notification"`

	// RetryCount is the number of times this item has been requeued after a
	// failed delivery round.
	RetryCount int `json:"retry_count"`

	// NotBefore defers a requeued item; Pop skips items that are not yet due.
	NotBefore time.Time `json:"not_before,omitzero"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Manager is the badger-backed priority queue.
type Manager struct {
	store *store.Store
	seq   *badger.Sequence
	clock types.Clock
}

// NewManager creates a queue Manager on the shared store.
func NewManager(s *store.Store) (*Manager, error) {
	seq, err := s.DB().GetSequence([]byte(seqKey), seqBandwidth)
	if err != nil {
		return nil, fmt.Errorf("queue: failed to open sequence: %w", err)
	}
	return &Manager{store: s, seq: seq, clock: types.RealClock{}}, nil
}

// SetClock overrides the clock for testing.
func (m *Manager) SetClock(c types.Clock) {
	m.clock = c
}

// Close releases the unused sequence range back to the store.
func (m *Manager) Close() error {
	return m.seq.Release()
}

func priorityPrefix(p types.Priority) []byte {
	return fmt.Appendf(nil, "%s%d|", queueKeyPrefix, p.Rank())
}

// Push enqueues a notification at its priority's tail.
func (m *Manager) Push(n types.Notification) error {
	return m.push(Item{Notification: n, EnqueuedAt: m.clock.Now()})
}

// Requeue re-enqueues a popped item after a failed delivery round. The retry
// count is incremented and the item is deferred by delay.
func (m *Manager) Requeue(item Item, delay time.Duration) error {
	item.RetryCount++
	item.NotBefore = m.clock.Now().Add(delay)
	return m.push(item)
}

func (m *Manager) push(item Item) error {
	seq, err := m.seq.Next()
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalQueue, "failed to allocate sequence", err)
	}

	body, err := json.Marshal(item)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalQueue, "failed to marshal queue item", err)
	}

	key := fmt.Appendf(nil, "%s%020d", priorityPrefix(item.Notification.Priority), seq)
	err = m.store.DB().Update(func(txn *badger.Txn) error {
		return txn.Set(key, body)
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalQueue, "failed to enqueue notification", err)
	}
	return nil
}

// Pop removes and returns the next due notification, scanning priorities in
// drain order. Returns ok=false when every list is empty or only holds
// deferred items that are not yet due.
//
// A deferred item does not block later items in the same priority; backoff
// scheduling deliberately overrides strict FIFO for requeued items.
func (m *Manager) Pop() (Item, bool, error) {
	now := m.clock.Now()

	var (
		item  Item
		found bool
	)
	err := m.store.DB().Update(func(txn *badger.Txn) error {
		for _, p := range types.Priorities {
			prefix := priorityPrefix(p)

			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			it := txn.NewIterator(opts)

			for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
				kv := it.Item()
				var candidate Item
				if err := kv.Value(func(val []byte) error {
					return json.Unmarshal(val, &candidate)
				}); err != nil {
					it.Close()
					return fmt.Errorf("decode item %q: %w", kv.Key(), err)
				}
				if candidate.NotBefore.After(now) {
					continue
				}
				key := kv.KeyCopy(nil)
				it.Close()
				if err := txn.Delete(key); err != nil {
					return err
				}
				item = candidate
				found = true
				return nil
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return Item{}, false, types.NewAppError(types.ErrCodeInternalQueue, "failed to pop notification", err)
	}
	return item, found, nil
}

// Depth returns the number of queued items per priority, including deferred
// ones. Used for metrics and the health endpoint.
func (m *Manager) Depth() (map[types.Priority]int, error) {
	depths := make(map[types.Priority]int, len(types.Priorities))
	err := m.store.DB().View(func(txn *badger.Txn) error {
		for _, p := range types.Priorities {
			prefix := priorityPrefix(p)
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			n := 0
			for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
				n++
			}
			it.Close()
			depths[p] = n
		}
		return nil
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalQueue, "failed to read queue depth", err)
	}
	return depths, nil
}

// Len returns the total number of queued items.
func (m *Manager) Len() (int, error) {
	depths, err := m.Depth()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, n := range depths {
		total += n
	}
	return total, nil
}
