package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound signals the referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict signals a conditional update matched no row: the record changed or vanished since it was read.
	ErrConflict = errors.New("record changed since it was read")
	// ErrCustomerHasAppointments signals a user delete blocked by appointments that reference them as customer.
	ErrCustomerHasAppointments = errors.New("user is referenced as customer by appointments")
	// ErrEmailTaken signals a duplicate email on user create or update.
	ErrEmailTaken = errors.New("email already registered")
)

const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
