// Package postgres implements the signal log, price index and snapshot
// persistence on PostgreSQL through a shared pgx pool.
package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/contracts"
)

// unavailable wraps a driver error so callers can test for contracts.ErrStoreUnavailable
// while keeping the cause (including context cancellation) reachable.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, contracts.ErrStoreUnavailable, err)
}

// isNotFoundError checks if error indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
