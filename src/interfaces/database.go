package interfaces

import "trade-scanner/src/models"

// -----------------------------------------------------------------------------
// ISetupStore defines the contract for setup persistence. Used only by
// the route layer and the composition root, never by the detector core.
// -----------------------------------------------------------------------------

type ISetupStore interface {

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveSetup inserts or updates a setup record.
	SaveSetup(setup models.MSetup) error

	// -----------------------------------------------------------------------------

	// ListSetups returns up to limit setups, newest first. An empty
	// symbol matches all symbols.
	ListSetups(symbol string, limit int) ([]models.MSetup, error)

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
