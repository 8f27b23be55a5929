package interfaces

import "trade-scanner/src/models"

// -----------------------------------------------------------------------------
// ISnapshotSource fetches point-in-time prices for symbols. Consumed by
// the alert-polling layer, not by the streaming core.
// -----------------------------------------------------------------------------

type ISnapshotSource interface {

	// FetchSnapshot returns the last trade price and previous day close
	// for one symbol.
	FetchSnapshot(symbol string) (models.MPriceSnapshot, error)
}
