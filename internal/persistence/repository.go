package persistence

import "github.com/Varma0717/tradingbot/internal/models"

// StateRepository defines the interface for engine state persistence.
// It abstracts the underlying storage mechanism (BadgerDB, in-memory
// test doubles) from the rest of the application.
type StateRepository interface {
	// SaveState atomically saves one symbol's engine state.
	SaveState(state *models.EngineState) error

	// LoadState loads a symbol's state. If none is stored it returns
	// (nil, nil).
	LoadState(symbol string) (*models.EngineState, error)

	// ListStates returns the states of every persisted symbol, for
	// restart recovery.
	ListStates() ([]*models.EngineState, error)

	// DeleteState removes a stopped symbol's state.
	DeleteState(symbol string) error

	// AppendEvent writes one journal record.
	AppendEvent(event *models.EventRecord) error

	// Events returns a symbol's journal records in append order.
	Events(symbol string) ([]*models.EventRecord, error)

	// Close gracefully closes the connection to the database.
	Close() error
}
