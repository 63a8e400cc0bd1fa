package repository

import (
	"github.com/jmoiron/sqlx"
)

// ext picks the transaction when the caller supplied one, so the same
// repository method can run standalone or join an outer transaction.
func ext(db *sqlx.DB, tx *sqlx.Tx) sqlx.ExtContext {
	if tx != nil {
		return tx
	}
	return db
}
