package gofat

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// goroutineID extracts the calling goroutine's id by parsing the header
// line of its own stack trace. It is the standard (if inelegant) way to
// build a recursive lock in Go, where sync.Mutex is deliberately not
// reentrant.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	idField := buf[:bytes.IndexByte(buf, ' ')]
	id, _ := strconv.ParseUint(string(idField), 10, 64)
	return id
}

// RecursiveMutex is a mutex that the same goroutine may lock multiple
// times without deadlocking, unlocking once per Lock call before any other
// goroutine can acquire it. It backs Volume.Mutex (spec.md section 5).
type RecursiveMutex struct {
	mu    sync.Mutex
	owner uint64
	count int
	guard sync.Mutex
}

func NewRecursiveMutex() *RecursiveMutex {
	return &RecursiveMutex{}
}

func (m *RecursiveMutex) Lock() {
	id := goroutineID()

	m.guard.Lock()
	if m.count > 0 && m.owner == id {
		m.count++
		m.guard.Unlock()
		return
	}
	m.guard.Unlock()

	m.mu.Lock()

	m.guard.Lock()
	m.owner = id
	m.count = 1
	m.guard.Unlock()
}

func (m *RecursiveMutex) Unlock() {
	m.guard.Lock()
	defer m.guard.Unlock()

	if m.count == 0 {
		panic("gofat: Unlock of unlocked RecursiveMutex")
	}
	m.count--
	if m.count == 0 {
		m.owner = 0
		m.mu.Unlock()
	}
}

// RecursiveRWLock is a reentrant read-write lock backing Node.lock
// (spec.md section 5). A goroutine already holding the write lock may take
// it again, or take a read lock, without blocking on itself.
type RecursiveRWLock struct {
	mu         sync.RWMutex
	guard      sync.Mutex
	writer     uint64
	writeCount int
}

func NewRecursiveRWLock() *RecursiveRWLock {
	return &RecursiveRWLock{}
}

func (l *RecursiveRWLock) Lock() {
	id := goroutineID()

	l.guard.Lock()
	if l.writeCount > 0 && l.writer == id {
		l.writeCount++
		l.guard.Unlock()
		return
	}
	l.guard.Unlock()

	l.mu.Lock()

	l.guard.Lock()
	l.writer = id
	l.writeCount = 1
	l.guard.Unlock()
}

func (l *RecursiveRWLock) Unlock() {
	l.guard.Lock()
	defer l.guard.Unlock()

	if l.writeCount == 0 {
		panic("gofat: Unlock of unlocked RecursiveRWLock")
	}
	l.writeCount--
	if l.writeCount == 0 {
		l.writer = 0
		l.mu.Unlock()
	}
}

func (l *RecursiveRWLock) RLock() {
	id := goroutineID()

	l.guard.Lock()
	if l.writeCount > 0 && l.writer == id {
		// Already hold the write lock on this goroutine; a read lock is
		// implied and the underlying RWMutex must not be touched again.
		l.guard.Unlock()
		return
	}
	l.guard.Unlock()

	l.mu.RLock()
}

func (l *RecursiveRWLock) RUnlock() {
	l.guard.Lock()
	id := goroutineID()
	heldAsWriter := l.writeCount > 0 && l.writer == id
	l.guard.Unlock()

	if heldAsWriter {
		return
	}
	l.mu.RUnlock()
}

////////////////////////////////////////////////////////////////////////////////
// Canonical acquisition order (spec.md section 5):
//
//   Volume.Mutex -> Volume.CheckpathLock -> VCache.lock -> parent Node.lock
//   -> child Node.lock -> Volume.FatLock -> BufObj.lock (host cache, not
//   ours to take)
//
// Between two node locks at the same depth, acquire by ascending inode
// number.

// LockNodePairAscending locks a and b's write locks in ascending-inode
// order and returns an unlock function that releases them in the reverse
// order. If a and b are the same node, it is locked exactly once.
func LockNodePairAscending(a, b *Node) (unlock func()) {
	if a.Inode == b.Inode {
		a.Lock.Lock()
		return a.Lock.Unlock
	}

	first, second := a, b
	if second.Inode < first.Inode {
		first, second = second, first
	}

	first.Lock.Lock()
	second.Lock.Lock()
	return func() {
		second.Lock.Unlock()
		first.Lock.Unlock()
	}
}
