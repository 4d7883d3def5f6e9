/**
 * @description
 * This file provides per-user serialization for settlement calls. Concurrent
 * settlements against the same wallet are a double-spend hazard; holding a
 * per-user mutex for the duration of one settlement call makes them queue
 * while settlements for distinct users proceed in parallel.
 *
 * @dependencies
 * - sync: Standard Go library.
 * - github.com/google/uuid: User identifiers.
 */

package app

import (
	"sync"

	"github.com/google/uuid"
)

// userLocks hands out one mutex per user id. The map itself is guarded by its
// own mutex; entries are never removed, which is acceptable for the bounded
// user population a single gateway process serves.
type userLocks struct {
	mapMu sync.Mutex
	muMap map[uuid.UUID]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{muMap: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *userLocks) acquire(userID uuid.UUID) *sync.Mutex {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	if _, exists := l.muMap[userID]; !exists {
		l.muMap[userID] = &sync.Mutex{}
	}
	return l.muMap[userID]
}
