package catalog

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// keyLocks stripes a fixed set of RWMutexes over product ids.
type keyLocks struct {
	stripes [lockStripes]sync.RWMutex
}

func (l *keyLocks) forKey(id string) *sync.RWMutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &l.stripes[h.Sum32()%lockStripes]
}
