// Copyright 2024 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vfs

import (
	"fmt"

	"gvisor.dev/gvisor/pkg/context"
)

// LockRenameEntries locks the entries involved in moving renamed from
// oldParent into newParent, possibly over replaced, and returns a function
// that unlocks them. replaced may be nil and newParent may equal oldParent.
//
// The children locks of the parents are taken first, then the state locks of
// renamed and replaced. Within each group locks are taken in EntryLess
// order, so concurrent calls over the same entries cannot deadlock whatever
// the direction of the move.
func LockRenameEntries(oldParent, newParent, renamed, replaced *DirEntry) func() {
	p1, p2 := oldParent, newParent
	if p1 == p2 {
		p2 = nil
	} else if EntryLess(p2, p1) {
		p1, p2 = p2, p1
	}
	c1, c2 := renamed, replaced
	if c1 == c2 {
		c2 = nil
	} else if c2 != nil && EntryLess(c2, c1) {
		c1, c2 = c2, c1
	}

	p1.childrenMu.Lock()
	if p2 != nil {
		p2.childrenMu.NestedLock(dirEntryChildrenLockNewParent)
	}
	c1.mu.Lock()
	if c2 != nil {
		c2.mu.NestedLock(dirEntryLockReplaced)
	}

	return func() {
		if c2 != nil {
			c2.mu.NestedUnlock(dirEntryLockReplaced)
		}
		c1.mu.Unlock()
		if p2 != nil {
			p2.childrenMu.NestedUnlock(dirEntryChildrenLockNewParent)
		}
		p1.childrenMu.Unlock()
	}
}

// CommitRenameLocked records in the cache that renamed, a child of
// oldParent, is now named newName in newParent, covering replaced if it is
// not nil. The caller must hold the locks taken by LockRenameEntries for the
// same entries and must already have performed the rename in the Node
// layer. The returned function must be called after those locks are
// released.
func CommitRenameLocked(oldParent, newParent, renamed, replaced *DirEntry, newName string) func(ctx context.Context) {
	if renamed.parent != oldParent {
		panic(fmt.Sprintf("renamed entry %d is not a child of entry %d", renamed.id, oldParent.id))
	}
	if slot, ok := oldParent.children.Get(childSlot{name: renamed.name}); ok && slot.entry == renamed {
		oldParent.children.Delete(slot)
	}
	newParent.children.ReplaceOrInsert(childSlot{name: newName, entry: renamed})
	if replaced != nil {
		replaced.dead = true
	}
	renamed.name = newName
	moved := oldParent != newParent
	if moved {
		newParent.IncRef()
		renamed.parent = newParent
	}
	return func(ctx context.Context) {
		if moved {
			oldParent.DecRef(ctx)
		}
		if replaced != nil {
			replaced.Filesystem().ForgetDirEntry(ctx, replaced)
		}
	}
}
