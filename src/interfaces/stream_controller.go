package interfaces

// -----------------------------------------------------------------------------
// IStreamController is the slice of the upstream connection manager the
// fan-out layer drives. Both calls are fire-and-forget; transport
// failures are absorbed by the manager.
// -----------------------------------------------------------------------------

type IStreamController interface {

	// Subscribe requests upstream data for the given symbols.
	Subscribe(symbols []string)

	// -----------------------------------------------------------------------------

	// Unsubscribe drops upstream data for the given symbols.
	Unsubscribe(symbols []string)
}
