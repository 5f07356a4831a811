package workflow

import (
	"fmt"

	"github.com/propfolio/recon_backend/utils"
	"gorm.io/gorm"
)

// AcquireSessionLock serializes reconciliation per (property, period) across
// instances using MySQL advisory locks. Timeout 0 makes contention immediate:
// a second request for the same key is rejected with ErrorSessionAlreadyRunning
// instead of queueing behind the running session.
// NOTE: GET_LOCK is connection-scoped, so acquire and release must run on a
// pinned connection (gorm Connection or a transaction handle). On the pooled
// handle each statement may land on a different connection: a release can
// miss the owning connection, and two starts sharing one pooled connection
// would re-enter the lock.
func AcquireSessionLock(tx *gorm.DB, propertyId, periodId string) error {
	lockName := sessionLockName(propertyId, periodId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 0)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return utils.ErrorSessionAlreadyRunning
	}
	return nil
}

func ReleaseSessionLock(tx *gorm.DB, propertyId, periodId string) {
	lockName := sessionLockName(propertyId, periodId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

func sessionLockName(propertyId, periodId string) string {
	return fmt.Sprintf("recon:%s:%s", propertyId, periodId)
}
