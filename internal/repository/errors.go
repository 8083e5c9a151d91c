// Package repository is the MySQL implementation of the reservation store.
// Repositories expose "...Tx" methods that run inside a caller-supplied
// *sql.Tx; Store opens and commits those transactions for the engine.
package repository

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/lot-reservation/internal/reservation"
)

// MySQL error numbers worth retrying the whole transaction for.
const (
	errLockDeadlock    = 1213 // ER_LOCK_DEADLOCK
	errLockWaitTimeout = 1205 // ER_LOCK_WAIT_TIMEOUT
)

// IsRetryable reports whether err is a deadlock or lock wait timeout.
// InnoDB rolls the transaction back in both cases, so the caller may run
// it again from the start.
func IsRetryable(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == errLockDeadlock || me.Number == errLockWaitTimeout
	}
	return false
}

// noRecord translates sql.ErrNoRows into the engine's ErrNoRecord.
func noRecord(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return reservation.ErrNoRecord
	}
	return err
}
