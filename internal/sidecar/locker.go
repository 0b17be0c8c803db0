package sidecar

import "sync"

// Locker hands out one mutex per sidecar path. Every writer of a directory
// (the correction session and the batch labeler) must share one Locker so
// that read-decide-write sequences on the same file are serialized.
// Entries are dropped when no goroutine holds or waits for them.
// The zero value is ready to use.
type Locker struct {
	mu    sync.Mutex
	paths map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocker returns an empty Locker.
func NewLocker() *Locker {
	return &Locker{}
}

// Lock blocks until path is free and returns the matching unlock func.
func (l *Locker) Lock(path string) (unlock func()) {
	l.mu.Lock()
	if l.paths == nil {
		l.paths = make(map[string]*pathLock)
	}
	p, ok := l.paths[path]
	if !ok {
		p = &pathLock{}
		l.paths[path] = p
	}
	p.refs++
	l.mu.Unlock()

	p.mu.Lock()
	return func() {
		p.mu.Unlock()
		l.mu.Lock()
		p.refs--
		if p.refs == 0 {
			delete(l.paths, path)
		}
		l.mu.Unlock()
	}
}

// Len returns the number of paths currently held or waited on.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.paths)
}
