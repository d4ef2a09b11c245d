package db

import (
	"fmt"

	"gorm.io/gorm"
)

// Advisory lock keys, one per batch job, so two operators cannot run the same
// job against one database at once.
const (
	LockDistrictImport int64 = 424201
	LockSeedCrimes     int64 = 424202
	LockTrain          int64 = 424203
)

// AdvisoryLock takes a transaction-scoped Postgres advisory lock. It blocks
// until the lock is free and is released on commit or rollback.
func AdvisoryLock(tx *gorm.DB, key int64) error {
	if key == 0 {
		return nil
	}
	if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", key).Error; err != nil {
		return fmt.Errorf("advisory lock %d: %w", key, err)
	}
	return nil
}
