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

	"github.com/google/btree"
	"gvisor.dev/gvisor/pkg/atomicbitops"
	"gvisor.dev/gvisor/pkg/context"
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
)

// childrenDegree is the btree degree used for DirEntry.children.
const childrenDegree = 8

// lastDirEntryID is the last value handed out as a DirEntry.id.
var lastDirEntryID atomicbitops.Uint64

// DirEntry caches the binding of a name in a directory to a Node.
//
// DirEntries form a tree. A child holds a reference on its parent; a parent
// refers to its children only weakly, through DirEntry.children, and must
// upgrade that pointer with TryIncRef before using it. A child whose
// reference count has dropped to zero is therefore invisible to lookups even
// before it removes itself from its parent.
//
// DirEntries are reference-counted. Unless otherwise specified, all DirEntry
// methods require that a reference is held.
//
// Lock order:
//
//	DirEntry.childrenMu
//	  DirEntry.mu
//
// DirEntry.mu is a leaf: while it is held no other DirEntry lock may be
// taken, except by LockRenameEntries, which orders same-class locks by
// DirEntry.id.
type DirEntry struct {
	dirEntryRefs

	// id orders DirEntries for multi-entry locking. id is immutable.
	id uint64

	// node is the Node this entry names. node is immutable.
	node Node

	// ops is immutable.
	ops DirEntryOps

	mu dirEntryMutex `state:"nosave"`

	// parent is the containing directory, or nil for a root. The reference on
	// parent is dropped by destroy. parent is protected by mu.
	parent *DirEntry

	// name is this entry's name in parent. name is protected by mu.
	name string

	// dead is true if the file named by this entry was removed from the
	// namespace. dead is protected by mu.
	dead bool

	// mounts is the number of Mounts whose mountpoint is this entry. mounts
	// is protected by mu.
	mounts uint32

	childrenMu dirEntryChildrenRWMutex `state:"nosave"`

	// children maps names to child entries without holding references on
	// them. children is nil for non-directories. children is protected by
	// childrenMu.
	children *btree.BTreeG[childSlot]

	// lruEntry links the entry into its Filesystem's LRU cache. It is
	// protected by the cache's mutex.
	lruEntry dirEntryEntry
}

// childSlot is an element of DirEntry.children.
type childSlot struct {
	name  string
	entry *DirEntry
}

func childSlotLess(a, b childSlot) bool {
	return a.name < b.name
}

// NewDirEntry returns a DirEntry naming node as name in parent, with one
// reference. If parent is not nil, the new entry takes a reference on it;
// the caller must hold one already. NewDirEntry does not insert the entry
// into parent's children.
func NewDirEntry(node Node, parent *DirEntry, name string) *DirEntry {
	if node == nil {
		panic("vfs.NewDirEntry called with nil Node")
	}
	d := &DirEntry{
		id:     lastDirEntryID.Add(1),
		node:   node,
		ops:    opsFor(node),
		parent: parent,
		name:   name,
	}
	if node.IsDir() {
		d.children = btree.NewG[childSlot](childrenDegree, childSlotLess)
	}
	if parent != nil {
		parent.IncRef()
	}
	d.InitRefs()
	return d
}

// NewUnrootedDirEntry returns a DirEntry for node with no parent, such as a
// Filesystem root.
func NewUnrootedDirEntry(node Node) *DirEntry {
	return NewDirEntry(node, nil, "")
}

// DecRef decrements d's reference count. When the count reaches zero, d
// removes itself from its parent and releases its reference on the parent.
func (d *DirEntry) DecRef(ctx context.Context) {
	d.dirEntryRefs.DecRef(func() {
		d.destroy(ctx)
	})
}

func (d *DirEntry) destroy(ctx context.Context) {
	d.mu.Lock()
	parent := d.parent
	name := d.name
	d.parent = nil
	d.mu.Unlock()

	if parent != nil {
		parent.removeChild(name, d)
		parent.DecRef(ctx)
	}
	if d.children != nil {
		d.childrenMu.Lock()
		d.children.Clear(false)
		d.childrenMu.Unlock()
	}
}

// Node returns the Node named by d.
func (d *DirEntry) Node() Node {
	return d.node
}

// Ops returns d's DirEntryOps.
func (d *DirEntry) Ops() DirEntryOps {
	return d.ops
}

// Filesystem returns the Filesystem that owns d's Node.
func (d *DirEntry) Filesystem() *Filesystem {
	return d.node.Filesystem()
}

// LocalName returns d's current name in its parent. The name of a root entry
// is empty.
func (d *DirEntry) LocalName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.name
}

// ParentOrSelf returns d's parent, or d if it is a root, with a new
// reference.
func (d *DirEntry) ParentOrSelf() *DirEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.parent
	if p == nil {
		p = d
	}
	p.IncRef()
	return p
}

// IsRoot returns true if d has no parent.
func (d *DirEntry) IsRoot() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.parent == nil
}

// IsDead returns true if the file d names has been removed from the
// namespace.
func (d *DirEntry) IsDead() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dead
}

// MountCount returns the number of Mounts whose mountpoint is d.
func (d *DirEntry) MountCount() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mounts
}

func (d *DirEntry) incMounts() {
	d.mu.Lock()
	d.mounts++
	d.mu.Unlock()
}

func (d *DirEntry) decMounts() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mounts == 0 {
		panic(fmt.Sprintf("DirEntry %q has no mounts to remove", d.name))
	}
	d.mounts--
}

// String implements fmt.Stringer.String.
func (d *DirEntry) String() string {
	return fmt.Sprintf("DirEntry{id: %d, name: %q}", d.id, d.LocalName())
}

// EntryLess is the total order used when more than one DirEntry lock of the
// same class must be held.
func EntryLess(a, b *DirEntry) bool {
	return a.id < b.id
}

// PrepareDelete must be called before the file d names is removed from the
// namespace. If PrepareDelete succeeds, the caller must call either
// AbortDelete or CommitDelete; d.mu stays locked until then.
//
// PrepareDelete returns EBUSY if d is a mountpoint.
func (d *DirEntry) PrepareDelete() error {
	d.mu.Lock()
	if d.dead {
		d.mu.Unlock()
		return linuxerr.ENOENT
	}
	if d.mounts != 0 {
		d.mu.Unlock()
		return linuxerr.EBUSY
	}
	return nil
}

// AbortDelete must be called after PrepareDelete if the deletion fails.
// +checklocksrelease:d.mu
func (d *DirEntry) AbortDelete() {
	d.mu.Unlock()
}

// CommitDelete must be called after PrepareDelete if the deletion succeeds.
// d is marked dead, removed from its parent's children and dropped from its
// Filesystem's cache.
// +checklocksrelease:d.mu
func (d *DirEntry) CommitDelete(ctx context.Context) {
	d.dead = true
	parent := d.parent
	name := d.name
	d.mu.Unlock()

	if parent != nil {
		parent.removeChild(name, d)
	}
	d.Filesystem().ForgetDirEntry(ctx, d)
}
