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

// Package vfs implements the directory entry cache and the mount namespace
// layer: DirEntry caches name-to-Node bindings, Mount grafts a Filesystem's
// tree into the namespace, and NamespaceNode names a location in it.
//
// Lock order:
//
//	VirtualFilesystem.mountMu
//	  DirEntry.childrenMu
//	    DirEntry.mu
//
// Mount.flagsMu and the locks of EntryCache implementations are leaves.
package vfs

import (
	"gvisor.dev/gvisor/pkg/atomicbitops"
	"gvisor.dev/gvisor/pkg/context"
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
	"gvisor.dev/gvisor/pkg/log"
)

// VirtualFilesystemOptions configures a VirtualFilesystem.
type VirtualFilesystemOptions struct {
	// GlobalEntryLimit bounds the number of entries held by all LRU caches of
	// the VirtualFilesystem's Filesystems. Zero means no global bound.
	GlobalEntryLimit uint64
}

// VirtualFilesystem ties Filesystems and Mounts together. It hands out mount
// IDs and protects the mount tree.
type VirtualFilesystem struct {
	// lastMountID is the last allocated mount ID.
	lastMountID atomicbitops.Uint64

	// cacheLimit is shared by the LRU caches of all Filesystems. It may be
	// nil.
	cacheLimit *DirEntryCacheLimiter

	// mountMu serializes changes to the mount tree: Mount.parent, Mount.point
	// and Mount.submounts.
	mountMu mountTreeMutex
}

// NewVirtualFilesystem returns a VirtualFilesystem with no mounts.
func NewVirtualFilesystem(opts VirtualFilesystemOptions) *VirtualFilesystem {
	vfs := &VirtualFilesystem{}
	if opts.GlobalEntryLimit != 0 {
		vfs.cacheLimit = NewDirEntryCacheLimiter(opts.GlobalEntryLimit)
	}
	return vfs
}

// CacheLimiter returns the limiter shared by vfs's LRU caches, or nil.
func (vfs *VirtualFilesystem) CacheLimiter() *DirEntryCacheLimiter {
	return vfs.cacheLimit
}

func (vfs *VirtualFilesystem) nextMountID() uint64 {
	return vfs.lastMountID.Add(1)
}

// AttachMount attaches mnt at the NamespaceNode at. If at is already covered
// by a mount, mnt is stacked on top of the covering mount's root. The caller
// keeps its references on mnt and at.
func (vfs *VirtualFilesystem) AttachMount(ctx context.Context, mnt *Mount, at NamespaceNode) error {
	target := at.mount.mount
	if target == nil || mnt.vfs != vfs || target.vfs != vfs {
		return linuxerr.EINVAL
	}
	if !at.entry.node.IsDir() {
		return linuxerr.ENOTDIR
	}

	vfs.mountMu.Lock()
	defer vfs.mountMu.Unlock()
	if mnt.parent != nil {
		return linuxerr.EBUSY
	}
	point := at.entry
	for {
		child := target.submounts[point]
		if child == nil {
			break
		}
		target, point = child, child.root
	}
	if point.IsDead() {
		return linuxerr.ENOENT
	}

	point.IncRef()
	point.incMounts()
	mnt.IncRef()
	mnt.parent = target
	mnt.point = point
	if target.submounts == nil {
		target.submounts = make(map[*DirEntry]*Mount)
	}
	target.submounts[point] = mnt
	log.Debugf("vfs: attached mount %d under mount %d", mnt.id, target.id)
	return nil
}

// DetachMount detaches mnt from its mountpoint. It returns EBUSY if other
// mounts are attached inside mnt.
func (vfs *VirtualFilesystem) DetachMount(ctx context.Context, mnt *Mount) error {
	vfs.mountMu.Lock()
	parent, point := mnt.parent, mnt.point
	if parent == nil {
		vfs.mountMu.Unlock()
		return linuxerr.EINVAL
	}
	if len(mnt.submounts) != 0 {
		vfs.mountMu.Unlock()
		return linuxerr.EBUSY
	}
	delete(parent.submounts, point)
	point.decMounts()
	mnt.parent = nil
	mnt.point = nil
	vfs.mountMu.Unlock()

	log.Debugf("vfs: detached mount %d from mount %d", mnt.id, parent.id)
	point.DecRef(ctx)
	mnt.DecRef(ctx)
	return nil
}
