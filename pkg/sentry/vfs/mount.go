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
	"gvisor.dev/gvisor/pkg/log"
	"gvisor.dev/gvisor/pkg/sync"
)

// WhatToMount describes the tree a new Mount exposes: either the whole of a
// Filesystem or, for a bind mount, the subtree below an existing
// NamespaceNode.
type WhatToMount struct {
	fs   *Filesystem
	bind NamespaceNode
}

// MountFilesystem returns a WhatToMount for the root of fs.
func MountFilesystem(fs *Filesystem) WhatToMount {
	return WhatToMount{fs: fs}
}

// MountBind returns a WhatToMount for the subtree at node. The caller keeps
// its references on node.
func MountBind(node NamespaceNode) WhatToMount {
	return WhatToMount{bind: node}
}

// Mount grafts a subtree of a Filesystem into the namespace.
//
// Mounts are reference-counted. A Mount that is attached to a mountpoint is
// kept alive by its parent.
type Mount struct {
	mountRefs

	// vfs, id, fs and root are immutable. The Mount holds a reference on
	// root.
	vfs  *VirtualFilesystem
	id   uint64
	fs   *Filesystem
	root *DirEntry

	flagsMu sync.Mutex

	// flags is protected by flagsMu.
	flags MountFlags

	// The following fields are protected by VirtualFilesystem.mountMu.

	// parent is the Mount this Mount is attached to. The Mount holds no
	// reference on parent; readers upgrade it with TryIncRef.
	parent *Mount

	// point is the entry in parent this Mount covers. The Mount holds a
	// reference on point while attached.
	point *DirEntry

	// submounts maps covered entries in this Mount to the Mount attached
	// there. The map holds a reference on each child Mount.
	submounts map[*DirEntry]*Mount
}

// NewMount returns a new unattached Mount with one reference. flags must be
// a subset of MountStoredOnMount.
func NewMount(what WhatToMount, flags MountFlags) *Mount {
	if what.fs != nil {
		return newMountWithRoot(what.fs.Root(), flags)
	}
	if what.bind.entry == nil {
		panic("vfs.NewMount called with empty WhatToMount")
	}
	return newMountWithRoot(what.bind.entry, flags)
}

func newMountWithRoot(root *DirEntry, flags MountFlags) *Mount {
	if !MountStoredOnMount.Contains(flags) {
		panic(fmt.Sprintf("mount flags %#x are not all stored on the mount", uint64(flags)))
	}
	fs := root.Filesystem()
	root.IncRef()
	mnt := &Mount{
		vfs:   fs.vfs,
		id:    fs.vfs.nextMountID(),
		fs:    fs,
		root:  root,
		flags: flags,
	}
	mnt.InitRefs()
	log.Debugf("vfs: new mount %d of filesystem %q (%v)", mnt.id, fs.name, flags)
	return mnt
}

// DecRef decrements mnt's reference count, releasing its root when the count
// reaches zero.
func (mnt *Mount) DecRef(ctx context.Context) {
	mnt.mountRefs.DecRef(func() {
		mnt.root.DecRef(ctx)
	})
}

// ID returns mnt's mount ID.
func (mnt *Mount) ID() uint64 {
	return mnt.id
}

// Filesystem returns the Filesystem mnt exposes.
func (mnt *Mount) Filesystem() *Filesystem {
	return mnt.fs
}

// Flags returns mnt's current flags.
func (mnt *Mount) Flags() MountFlags {
	mnt.flagsMu.Lock()
	defer mnt.flagsMu.Unlock()
	return mnt.flags
}

// SetFlags replaces mnt's flags, as done by a remount. flags must be a subset
// of MountStoredOnMount.
func (mnt *Mount) SetFlags(flags MountFlags) {
	if !MountStoredOnMount.Contains(flags) {
		panic(fmt.Sprintf("mount flags %#x are not all stored on the mount", uint64(flags)))
	}
	mnt.flagsMu.Lock()
	defer mnt.flagsMu.Unlock()
	mnt.flags = flags
}

// Root returns the NamespaceNode at the root of mnt, with new references.
func (mnt *Mount) Root() NamespaceNode {
	mnt.IncRef()
	mnt.root.IncRef()
	return NamespaceNode{mount: MountInfo{mount: mnt}, entry: mnt.root}
}

// Mountpoint returns the NamespaceNode mnt is attached to, with new
// references. It returns false if mnt is not attached or its parent is
// being destroyed.
func (mnt *Mount) Mountpoint() (NamespaceNode, bool) {
	mnt.vfs.mountMu.Lock()
	defer mnt.vfs.mountMu.Unlock()
	parent := mnt.parent
	if parent == nil || !parent.TryIncRef() {
		return NamespaceNode{}, false
	}
	mnt.point.IncRef()
	return NamespaceNode{mount: MountInfo{mount: parent}, entry: mnt.point}, true
}

// submountAt returns the Mount attached at d in mnt, with a new reference, or
// nil.
func (mnt *Mount) submountAt(d *DirEntry) *Mount {
	mnt.vfs.mountMu.Lock()
	defer mnt.vfs.mountMu.Unlock()
	child := mnt.submounts[d]
	if child != nil {
		child.IncRef()
	}
	return child
}

// String implements fmt.Stringer.String.
func (mnt *Mount) String() string {
	return fmt.Sprintf("Mount{id: %d, fs: %q, flags: %v}", mnt.id, mnt.fs.name, mnt.Flags())
}
