package vfs

import (
	"reflect"

	"gvisor.dev/gvisor/pkg/sync"
	"gvisor.dev/gvisor/pkg/sync/locking"
)

// RWMutex is sync.RWMutex with the correctness validator.
type dirEntryChildrenRWMutex struct {
	mu sync.RWMutex
}

// lockNames is a list of user-friendly lock names.
// Populated in init.
var dirEntryChildrenlockNames []string

// lockNameIndex is used as an index passed to NestedLock and NestedUnlock,
// referring to an index within lockNames.
// Values are specified using the "consts" field of go_template_instance.
type dirEntryChildrenlockNameIndex int

// DO NOT REMOVE: The following function automatically replaced with lock index constants.
const (
	dirEntryChildrenLockNewParent = dirEntryChildrenlockNameIndex(0)
)
const ()

// Lock locks m.
// +checklocksignore
func (m *dirEntryChildrenRWMutex) Lock() {
	locking.AddGLock(dirEntryChildrenprefixIndex, -1)
	m.mu.Lock()
}

// NestedLock locks m knowing that another lock of the same type is held.
// +checklocksignore
func (m *dirEntryChildrenRWMutex) NestedLock(i dirEntryChildrenlockNameIndex) {
	locking.AddGLock(dirEntryChildrenprefixIndex, int(i))
	m.mu.Lock()
}

// Unlock unlocks m.
// +checklocksignore
func (m *dirEntryChildrenRWMutex) Unlock() {
	m.mu.Unlock()
	locking.DelGLock(dirEntryChildrenprefixIndex, -1)
}

// NestedUnlock unlocks m knowing that another lock of the same type is held.
// +checklocksignore
func (m *dirEntryChildrenRWMutex) NestedUnlock(i dirEntryChildrenlockNameIndex) {
	m.mu.Unlock()
	locking.DelGLock(dirEntryChildrenprefixIndex, int(i))
}

// RLock locks m for reading.
// +checklocksignore
func (m *dirEntryChildrenRWMutex) RLock() {
	locking.AddGLock(dirEntryChildrenprefixIndex, -1)
	m.mu.RLock()
}

// RUnlock undoes a single RLock call.
// +checklocksignore
func (m *dirEntryChildrenRWMutex) RUnlock() {
	m.mu.RUnlock()
	locking.DelGLock(dirEntryChildrenprefixIndex, -1)
}

// RLockBypass locks m for reading without executing the validator.
// +checklocksignore
func (m *dirEntryChildrenRWMutex) RLockBypass() {
	m.mu.RLock()
}

// RUnlockBypass undoes a single RLockBypass call.
// +checklocksignore
func (m *dirEntryChildrenRWMutex) RUnlockBypass() {
	m.mu.RUnlock()
}

// DowngradeLock atomically unlocks rw for writing and locks it for reading.
// +checklocksignore
func (m *dirEntryChildrenRWMutex) DowngradeLock() {
	m.mu.DowngradeLock()
}

var dirEntryChildrenprefixIndex *locking.MutexClass

// DO NOT REMOVE: The following function is automatically replaced.
func dirEntryChildreninitLockNames() { dirEntryChildrenlockNames = []string{"newParent"} }

func init() {
	dirEntryChildreninitLockNames()
	dirEntryChildrenprefixIndex = locking.NewMutexClass(reflect.TypeOf(dirEntryChildrenRWMutex{}), dirEntryChildrenlockNames)
}
