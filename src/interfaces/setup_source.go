package interfaces

import "trade-scanner/src/models"

// -----------------------------------------------------------------------------
// ISetupSource exposes detector state as snapshots. Implementations
// must return copies, never live references into detector-owned maps.
// -----------------------------------------------------------------------------

type ISetupSource interface {

	// ActiveSetups returns every setup that is not CLOSED or DISMISSED.
	ActiveSetups() []models.MSetup

	// -----------------------------------------------------------------------------

	// DismissSetup externally dismisses a setup by ID. Returns false if
	// no live setup carries that ID.
	DismissSetup(id string, ts int64) bool
}
