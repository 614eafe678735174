package utils

import (
	"path/filepath"
	"time"

	"github.com/ferrite-ci/ferrite-engine/logger"
	"github.com/werf/lockgate"
	"github.com/werf/lockgate/pkg/file_locker"
)

const WORKDIR_LOCK_KEY = "workdir-lock"

var locker lockgate.Locker

func init() {
	l, err := file_locker.NewFileLocker(filepath.Join(DefaultConfigDir(), "locks"))
	if err != nil {
		logger.Errorf("cannot initialize file locker: %s", err)
		return
	}
	locker = l
}

// Lock 拿到同一个 workdir 的独占锁，避免并发 run 共享可变目录
func Lock(key string) (*lockgate.LockHandle, error) {
	if key == "" {
		key = WORKDIR_LOCK_KEY
	}
	_, lock, err := locker.Acquire(key, lockgate.AcquireOptions{Shared: false, Timeout: 30 * time.Second})
	if err != nil {
		logger.Errorf("failed to lock %s: %s", key, err)
		return nil, err
	}
	return &lock, err
}

func Unlock(lock *lockgate.LockHandle) error {
	return locker.Release(*lock)
}
