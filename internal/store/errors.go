package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgErrCodeUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a Postgres unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrCodeUniqueViolation
	}
	return false
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// takeOwned loads one row by id, scoped to the owning user.
func takeOwned[T any](db *gorm.DB, userID, id string) (*T, error) {
	var row T
	if err := db.Where("id = ? AND user_id = ?", id, userID).Take(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}

func takeByID[T any](db *gorm.DB, id string) (*T, error) {
	var row T
	if err := db.Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}
