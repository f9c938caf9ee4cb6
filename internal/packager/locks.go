package packager

import (
	"path/filepath"
	"sync"
)

type keyedLock struct {
	mu   sync.Mutex
	refs map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// outputLocks serializes runs that write the same archive path.
var outputLocks = &keyedLock{refs: make(map[string]*lockEntry)}

func (k *keyedLock) lock(key string) func() {
	k.mu.Lock()
	e, ok := k.refs[key]
	if !ok {
		e = &lockEntry{}
		k.refs[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.refs, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.refs)
}

func outputKey(outDir, checksum string) string {
	if abs, err := filepath.Abs(outDir); err == nil {
		outDir = abs
	}
	return filepath.Join(outDir, checksum)
}
