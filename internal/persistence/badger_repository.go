package persistence

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync/atomic"

	"github.com/dgraph-io/badger/v3"
	"github.com/jxskiss/base62"

	"github.com/Varma0717/tradingbot/internal/models"
)

const (
	statePrefix = "state:"
	eventPrefix = "event:"
)

// badgerRepository is the BadgerDB implementation of the StateRepository.
// States live under "state:<symbol>"; journal records under
// "event:<symbol>:<base62 sequence>" so a prefix scan replays them in
// append order.
type badgerRepository struct {
	db  *badger.DB
	seq atomic.Uint64
}

// NewBadgerRepository creates and returns a repository connected to a
// BadgerDB database at the given path.
func NewBadgerRepository(dbPath string) (StateRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging is noisy; errors still come back from the
	// DB operations themselves.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &badgerRepository{db: db}, nil
}

func stateKey(symbol string) []byte { return []byte(statePrefix + symbol) }

// eventKey builds a lexicographically increasing key: timestamp nanos in
// big-endian, base62-encoded to keep keys printable, with a process-local
// sequence to break ties inside one nanosecond.
func (r *badgerRepository) eventKey(event *models.EventRecord) []byte {
	var raw [16]byte
	binary.BigEndian.PutUint64(raw[:8], uint64(event.Timestamp.UnixNano()))
	binary.BigEndian.PutUint64(raw[8:], r.seq.Add(1))
	return append([]byte(eventPrefix+event.Symbol+":"), base62.Encode(raw[:])...)
}

// SaveState marshals the state to JSON and saves it under the symbol key.
func (r *badgerRepository) SaveState(state *models.EngineState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stateKey(state.Symbol.Symbol), data)
	})
}

// LoadState loads one symbol's state; (nil, nil) when absent.
func (r *badgerRepository) LoadState(symbol string) (*models.EngineState, error) {
	var state models.EngineState

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stateKey(symbol))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("state value is empty in database")
			}
			return json.Unmarshal(val, &state)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// ListStates scans the state prefix and returns every persisted symbol.
func (r *badgerRepository) ListStates() ([]*models.EngineState, error) {
	var states []*models.EngineState

	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(statePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var state models.EngineState
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &state)
			})
			if err != nil {
				return err
			}
			states = append(states, &state)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return states, nil
}

// DeleteState removes a symbol's state key. The journal is kept.
func (r *badgerRepository) DeleteState(symbol string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(stateKey(symbol))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// AppendEvent writes one journal record under an increasing key.
func (r *badgerRepository) AppendEvent(event *models.EventRecord) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(r.eventKey(event), data)
	})
}

// Events replays a symbol's journal in append order.
func (r *badgerRepository) Events(symbol string) ([]*models.EventRecord, error) {
	var events []*models.EventRecord

	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(eventPrefix + symbol + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var event models.EventRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			})
			if err != nil {
				return err
			}
			events = append(events, &event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Close gracefully closes the connection to the database.
func (r *badgerRepository) Close() error {
	return r.db.Close()
}
