package contracts

import "errors"

// Error taxonomy shared by every component.
// A missing price and a thin sample are values, not errors: see
// PriceIndex.NearestAtOrBefore (ok == false) and StatusInsufficientSample.
var (
	// ErrStoreUnavailable wraps any failure of a backing store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrRefreshTimeout is recoverable: the previous snapshot stays served.
	ErrRefreshTimeout = errors.New("refresh timed out")

	// ErrInvalidHorizon is returned for a horizon name outside the configured set.
	ErrInvalidHorizon = errors.New("invalid horizon")

	// ErrInvalidWindow is returned for a non-positive or oversized window.
	ErrInvalidWindow = errors.New("invalid window")

	// ErrNotYetAvailable is returned when a cold key could not be computed in time.
	ErrNotYetAvailable = errors.New("leaderboard not yet available")

	// ErrInvalidInput is returned for malformed signals or price points.
	ErrInvalidInput = errors.New("invalid input")
)
