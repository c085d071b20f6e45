package app

import (
	"github.com/merchantiq/storesync/internal/locks"
	"github.com/merchantiq/storesync/internal/scheduler"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Scheduler manages background store synchronization
	Scheduler scheduler.Scheduler

	// LockManager coordinates operation locks across instances
	LockManager *locks.Manager
}
