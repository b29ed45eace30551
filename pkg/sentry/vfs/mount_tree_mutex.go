package vfs

import (
	"reflect"

	"gvisor.dev/gvisor/pkg/sync"
	"gvisor.dev/gvisor/pkg/sync/locking"
)

// Mutex is sync.Mutex with the correctness validator.
type mountTreeMutex struct {
	mu sync.Mutex
}

var mountTreeprefixIndex *locking.MutexClass

// lockNames is a list of user-friendly lock names.
// Populated in init.
var mountTreelockNames []string

// lockNameIndex is used as an index passed to NestedLock and NestedUnlock,
// referring to an index within lockNames.
// Values are specified using the "consts" field of go_template_instance.
type mountTreelockNameIndex int

// DO NOT REMOVE: The following function automatically replaced with lock index constants.
// LOCK_NAME_INDEX_CONSTANTS
const ()

// Lock locks m.
// +checklocksignore
func (m *mountTreeMutex) Lock() {
	locking.AddGLock(mountTreeprefixIndex, -1)
	m.mu.Lock()
}

// NestedLock locks m knowing that another lock of the same type is held.
// +checklocksignore
func (m *mountTreeMutex) NestedLock(i mountTreelockNameIndex) {
	locking.AddGLock(mountTreeprefixIndex, int(i))
	m.mu.Lock()
}

// Unlock unlocks m.
// +checklocksignore
func (m *mountTreeMutex) Unlock() {
	locking.DelGLock(mountTreeprefixIndex, -1)
	m.mu.Unlock()
}

// NestedUnlock unlocks m knowing that another lock of the same type is held.
// +checklocksignore
func (m *mountTreeMutex) NestedUnlock(i mountTreelockNameIndex) {
	locking.DelGLock(mountTreeprefixIndex, int(i))
	m.mu.Unlock()
}

// DO NOT REMOVE: The following function is automatically replaced.
func mountTreeinitLockNames() {}

func init() {
	mountTreeinitLockNames()
	mountTreeprefixIndex = locking.NewMutexClass(reflect.TypeOf(mountTreeMutex{}), mountTreelockNames)
}
