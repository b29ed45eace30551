package vfs

import (
	"reflect"

	"gvisor.dev/gvisor/pkg/sync"
	"gvisor.dev/gvisor/pkg/sync/locking"
)

// Mutex is sync.Mutex with the correctness validator.
type dirEntryMutex struct {
	mu sync.Mutex
}

var dirEntryprefixIndex *locking.MutexClass

// lockNames is a list of user-friendly lock names.
// Populated in init.
var dirEntrylockNames []string

// lockNameIndex is used as an index passed to NestedLock and NestedUnlock,
// referring to an index within lockNames.
// Values are specified using the "consts" field of go_template_instance.
type dirEntrylockNameIndex int

// DO NOT REMOVE: The following function automatically replaced with lock index constants.
const (
	dirEntryLockReplaced = dirEntrylockNameIndex(0)
)
const ()

// Lock locks m.
// +checklocksignore
func (m *dirEntryMutex) Lock() {
	locking.AddGLock(dirEntryprefixIndex, -1)
	m.mu.Lock()
}

// NestedLock locks m knowing that another lock of the same type is held.
// +checklocksignore
func (m *dirEntryMutex) NestedLock(i dirEntrylockNameIndex) {
	locking.AddGLock(dirEntryprefixIndex, int(i))
	m.mu.Lock()
}

// Unlock unlocks m.
// +checklocksignore
func (m *dirEntryMutex) Unlock() {
	locking.DelGLock(dirEntryprefixIndex, -1)
	m.mu.Unlock()
}

// NestedUnlock unlocks m knowing that another lock of the same type is held.
// +checklocksignore
func (m *dirEntryMutex) NestedUnlock(i dirEntrylockNameIndex) {
	locking.DelGLock(dirEntryprefixIndex, int(i))
	m.mu.Unlock()
}

// DO NOT REMOVE: The following function is automatically replaced.
func dirEntryinitLockNames() { dirEntrylockNames = []string{"replaced"} }

func init() {
	dirEntryinitLockNames()
	dirEntryprefixIndex = locking.NewMutexClass(reflect.TypeOf(dirEntryMutex{}), dirEntrylockNames)
}
