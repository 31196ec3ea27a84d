package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Common error types.
var (
	ErrNotFound            = errors.New("record not found")
	ErrAlreadyExists       = errors.New("record already exists")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrConnectionFailed    = errors.New("database connection failed")
)

// IsNotFoundError checks if an error is a "not found" error.
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, ErrNotFound)
}

// IsConstraintViolationError checks if an error is a constraint violation.
func IsConstraintViolationError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 23505 unique, 23503 foreign key, 23514 check, 23502 not null
		switch pgErr.Code {
		case "23505", "23503", "23514", "23502":
			return true
		}
	}
	return errors.Is(err, ErrConstraintViolation) || errors.Is(err, ErrAlreadyExists)
}

// IsConnectionError checks if an error is a connection-related error.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "08", "57": // connection exception, operator intervention
			return true
		}
	}
	return errors.Is(err, ErrConnectionFailed)
}

// WrapError wraps a database error with appropriate context.
func WrapError(err error, operation string) error {
	if err == nil {
		return nil
	}
	if IsNotFoundError(err) {
		return fmt.Errorf("%s failed: %w", operation, ErrNotFound)
	}
	if IsConstraintViolationError(err) {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%s failed: %w", operation, ErrAlreadyExists)
		}
		return fmt.Errorf("%s failed: %w", operation, ErrConstraintViolation)
	}
	if IsConnectionError(err) {
		return fmt.Errorf("%s failed: %w", operation, ErrConnectionFailed)
	}
	return fmt.Errorf("%s failed: %w", operation, err)
}
