package usecase

import "sync"

// Scheduler runs work detached from the caller. Wizard side effects that must not block
// (edit-geometry preload, related artifact loading) go through it.
type Scheduler interface {
	Go(task func())
}

type goroutineScheduler struct{}

func (goroutineScheduler) Go(task func()) { go task() }

// NewGoroutineScheduler returns the production scheduler.
func NewGoroutineScheduler() Scheduler { return goroutineScheduler{} }

type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}

func lockerOrNop(l sync.Locker) sync.Locker {
	if l == nil {
		return nopLocker{}
	}
	return l
}
