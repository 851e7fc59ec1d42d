package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// mapError adds the operation to err and classifies constraint violations.
// context.DeadlineExceeded and context.Canceled pass through unclassified.
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: duplicate %s: %w", op, pgErr.ConstraintName, err)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: unknown entity: %w", op, err)
		case "23514": // check_violation
			return fmt.Errorf("%s: check %s failed: %w", op, pgErr.ConstraintName, err)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}
