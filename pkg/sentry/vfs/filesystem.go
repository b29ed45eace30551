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

	"gvisor.dev/gvisor/pkg/atomicbitops"
	"gvisor.dev/gvisor/pkg/context"
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
	"gvisor.dev/gvisor/pkg/log"
	"gvisor.dev/gvisor/pkg/sync"
)

// FilesystemOptions configures a Filesystem.
type FilesystemOptions struct {
	// Name identifies the Filesystem in logs and mount listings.
	Name string

	// CacheMode selects the eviction policy for the Filesystem's entries.
	CacheMode CacheMode

	// LRUCapacity is the LRU size for CacheModeCached. Zero selects
	// DefaultLRUCapacity.
	LRUCapacity uint64
}

// Filesystem is the per-filesystem state the entry cache needs: its eviction
// policy, its root entry and a node ID allocator for implementations.
//
// A Filesystem is owned by the code that created it, which must call Release
// when it is no longer mounted.
type Filesystem struct {
	vfs  *VirtualFilesystem
	name string
	mode CacheMode

	cache EntryCache

	// nextNodeID is the next value returned by NextNodeID.
	nextNodeID atomicbitops.Uint64

	rootMu sync.Mutex

	// root is the Filesystem's root entry. The Filesystem holds a reference
	// on it. root is protected by rootMu.
	root *DirEntry
}

// NewFilesystem returns a Filesystem without a root. The caller must install
// one with SetRoot before the Filesystem is mounted.
func (vfs *VirtualFilesystem) NewFilesystem(opts FilesystemOptions) *Filesystem {
	fs := &Filesystem{
		vfs:   vfs,
		name:  opts.Name,
		mode:  opts.CacheMode,
		cache: newEntryCache(opts.CacheMode, opts.LRUCapacity, vfs.cacheLimit),
	}
	fs.nextNodeID.Store(1)
	log.Debugf("vfs: new filesystem %q, cache mode %v", opts.Name, opts.CacheMode)
	return fs
}

// VirtualFilesystem returns the VirtualFilesystem fs belongs to.
func (fs *Filesystem) VirtualFilesystem() *VirtualFilesystem {
	return fs.vfs
}

// Name returns fs's name.
func (fs *Filesystem) Name() string {
	return fs.name
}

// CacheMode returns fs's cache mode.
func (fs *Filesystem) CacheMode() CacheMode {
	return fs.mode
}

// NextNodeID returns a node ID unique within fs.
func (fs *Filesystem) NextNodeID() uint64 {
	return fs.nextNodeID.Add(1) - 1
}

// SetRoot installs root as fs's root entry, taking ownership of the caller's
// reference. SetRoot may only be called once.
func (fs *Filesystem) SetRoot(root *DirEntry) {
	fs.rootMu.Lock()
	defer fs.rootMu.Unlock()
	if fs.root != nil {
		panic(fmt.Sprintf("filesystem %q already has a root", fs.name))
	}
	if root.Filesystem() != fs {
		panic(fmt.Sprintf("root of filesystem %q belongs to filesystem %q", fs.name, root.Filesystem().Name()))
	}
	fs.root = root
}

// Root returns fs's root entry. The Filesystem keeps its own reference, so
// the caller receives none.
func (fs *Filesystem) Root() *DirEntry {
	fs.rootMu.Lock()
	defer fs.rootMu.Unlock()
	if fs.root == nil {
		panic(fmt.Sprintf("filesystem %q has no root", fs.name))
	}
	return fs.root
}

// DidCreateDirEntry is called after d was inserted into its parent's
// children.
func (fs *Filesystem) DidCreateDirEntry(d *DirEntry) {
	fs.cache.Admit(d)
}

// DidAccessDirEntry is called after a cached d was found again.
func (fs *Filesystem) DidAccessDirEntry(d *DirEntry) {
	fs.cache.Touch(d)
}

// PurgeOldEntries lets the cache release entries beyond its capacity. It is
// called with no DirEntry locks held.
func (fs *Filesystem) PurgeOldEntries(ctx context.Context) {
	fs.cache.Purge(ctx)
}

// ForgetDirEntry releases the cache's reference on d, if any.
func (fs *Filesystem) ForgetDirEntry(ctx context.Context, d *DirEntry) {
	fs.cache.Forget(ctx, d)
}

// CachedEntries returns the number of entries retained by fs's cache.
func (fs *Filesystem) CachedEntries() uint64 {
	return fs.cache.Size()
}

// SetLRUCapacity changes the capacity of a CacheModeCached Filesystem and
// releases entries beyond it. It returns EINVAL for other modes.
func (fs *Filesystem) SetLRUCapacity(ctx context.Context, capacity uint64) error {
	c, ok := fs.cache.(*lruCache)
	if !ok {
		return linuxerr.EINVAL
	}
	c.SetMaxSize(capacity)
	c.Purge(ctx)
	return nil
}

// Release drops every cached entry and the root.
func (fs *Filesystem) Release(ctx context.Context) {
	fs.cache.Flush(ctx)
	fs.rootMu.Lock()
	root := fs.root
	fs.root = nil
	fs.rootMu.Unlock()
	if root != nil {
		root.DecRef(ctx)
	}
	log.Debugf("vfs: released filesystem %q", fs.name)
}
