package latch

import (
	"fmt"
	"sync"
)

// Mode is the latch mode a page is held in.
type Mode uint8

const (
	RW_S_LATCH  Mode = 1 // 共享锁
	RW_X_LATCH  Mode = 2 // 排他锁
	RW_SX_LATCH Mode = 3 // 共享排他锁: 与S兼容, 与SX/X互斥
	RW_NO_LATCH Mode = 4
)

func (m Mode) String() string {
	switch m {
	case RW_S_LATCH:
		return "S"
	case RW_X_LATCH:
		return "X"
	case RW_SX_LATCH:
		return "SX"
	case RW_NO_LATCH:
		return "NO_LATCH"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// Covers reports whether holding m satisfies a request for want.
func (m Mode) Covers(want Mode) bool {
	switch want {
	case RW_NO_LATCH:
		return true
	case RW_S_LATCH:
		return m == RW_S_LATCH || m == RW_SX_LATCH || m == RW_X_LATCH
	case RW_SX_LATCH:
		return m == RW_SX_LATCH || m == RW_X_LATCH
	case RW_X_LATCH:
		return m == RW_X_LATCH
	}
	return false
}

// Latch 提供了一个简单的锁机制, 支持 S / SX / X 三种模式.
// It is not reentrant.
type Latch struct {
	mu      sync.Mutex
	cond    *sync.Cond
	readers int
	sx      bool
	x       bool
}

// NewLatch 创建一个新的锁
func NewLatch() *Latch {
	l := &Latch{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *Latch) grantable(mode Mode) bool {
	switch mode {
	case RW_S_LATCH:
		return !l.x
	case RW_SX_LATCH:
		return !l.x && !l.sx
	case RW_X_LATCH:
		return !l.x && !l.sx && l.readers == 0
	case RW_NO_LATCH:
		return true
	}
	panic(fmt.Sprintf("latch: invalid mode %v", mode))
}

func (l *Latch) grant(mode Mode) {
	switch mode {
	case RW_S_LATCH:
		l.readers++
	case RW_SX_LATCH:
		l.sx = true
	case RW_X_LATCH:
		l.x = true
	}
}

// Acquire blocks until the latch is held in the given mode.
func (l *Latch) Acquire(mode Mode) {
	l.mu.Lock()
	for !l.grantable(mode) {
		l.cond.Wait()
	}
	l.grant(mode)
	l.mu.Unlock()
}

// TryAcquire takes the latch in the given mode without waiting.
func (l *Latch) TryAcquire(mode Mode) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.grantable(mode) {
		return false
	}
	l.grant(mode)
	return true
}

// Release gives back a latch taken with Acquire or TryAcquire in the same mode.
func (l *Latch) Release(mode Mode) {
	l.mu.Lock()
	switch mode {
	case RW_S_LATCH:
		if l.readers == 0 {
			l.mu.Unlock()
			panic("latch: S release without holder")
		}
		l.readers--
	case RW_SX_LATCH:
		if !l.sx {
			l.mu.Unlock()
			panic("latch: SX release without holder")
		}
		l.sx = false
	case RW_X_LATCH:
		if !l.x {
			l.mu.Unlock()
			panic("latch: X release without holder")
		}
		l.x = false
	}
	l.cond.Broadcast()
	l.mu.Unlock()
}

// Lock 获取写锁
func (l *Latch) Lock() {
	l.Acquire(RW_X_LATCH)
}

// Unlock 释放写锁
func (l *Latch) Unlock() {
	l.Release(RW_X_LATCH)
}

// RLock 获取读锁
func (l *Latch) RLock() {
	l.Acquire(RW_S_LATCH)
}

// RUnlock 释放读锁
func (l *Latch) RUnlock() {
	l.Release(RW_S_LATCH)
}

// TryLock 尝试获取写锁
func (l *Latch) TryLock() bool {
	return l.TryAcquire(RW_X_LATCH)
}

// TryRLock 尝试获取读锁
func (l *Latch) TryRLock() bool {
	return l.TryAcquire(RW_S_LATCH)
}
