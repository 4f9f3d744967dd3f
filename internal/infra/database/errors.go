package database

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// storeError wraps err with the domain sentinel and, for PostgreSQL, the
// SQLSTATE class so operators can tell a lost connection from a constraint
// problem in the logs.
func storeError(sentinel error, op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%w: %s: %s (sqlstate %s, class %s): %w",
			sentinel, op, pqErr.Message, pqErr.Code, pqErr.Code.Class().Name(), err)
	}
	return fmt.Errorf("%w: %s: %w", sentinel, op, err)
}
