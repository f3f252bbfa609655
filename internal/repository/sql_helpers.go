package repository

import (
	"errors"

	cv_errors "cloudvault/pkg/errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// translateError maps driver errors onto the shared sentinels.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return cv_errors.ErrNotFound
	case isUniqueViolation(err):
		return cv_errors.ErrAlreadyExists
	default:
		return err
	}
}
