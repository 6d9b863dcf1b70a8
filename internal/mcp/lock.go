package mcp

import "sync/atomic"

// OperationLock admits one repository operation at a time without
// blocking. Callers that lose the race report the operation as busy.
type OperationLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire reports whether the lock was acquired.
func (l *OperationLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *OperationLock) Release() {
	l.state.Store(0)
}
