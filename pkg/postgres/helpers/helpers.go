package helpers

import "gorm.io/gorm"

// WrapTxAndCommit runs fn inside tx when one is given. Otherwise fn runs in a
// new transaction that is committed on success and rolled back on error.
func WrapTxAndCommit[T any](fn func(*gorm.DB) (T, error), db *gorm.DB, tx *gorm.DB) (T, error) {
	if tx != nil {
		return fn(tx)
	}

	var zero T
	tx = db.Begin()
	if tx.Error != nil {
		return zero, tx.Error
	}

	res, err := fn(tx)
	if err != nil {
		tx.Rollback()
		return res, err
	}
	if err := tx.Commit().Error; err != nil {
		return zero, err
	}
	return res, nil
}
