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
	"time"

	"gvisor.dev/gvisor/pkg/abi/linux"
	"gvisor.dev/gvisor/pkg/context"
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
	"gvisor.dev/gvisor/pkg/log"
)

// creationResult records how GetOrCreateChild obtained a child.
type creationResult int

const (
	// existed means the child was found in the cache or by Node.Lookup.
	existed creationResult = iota

	// created means the child was made by a NodeCreator.
	created
)

// revalidateLog reports entries dropped by failed revalidation.
var revalidateLog = log.BasicRateLimitedLogger(time.Minute)

// GetOrCreateChild returns the child of d named name, with a new reference.
// If the child is not cached, GetOrCreateChild asks d's Node to look it up,
// and if the lookup fails with ENOENT it asks creator to make one. The
// returned boolean is true if the child already existed, that is, if creator
// was not used.
//
// Concurrent calls for the same name see the same DirEntry, and at most one
// of them calls creator.
func (d *DirEntry) GetOrCreateChild(ctx context.Context, mount MountInfo, name string, creator NodeCreator) (*DirEntry, bool, error) {
	if err := checkChildName(name); err != nil {
		return nil, false, err
	}
	if d.children == nil {
		return nil, false, linuxerr.ENOTDIR
	}

	child, res, err := d.getOrCreateChild(ctx, mount, name, creator)
	if err != nil {
		return nil, false, err
	}
	if res == existed {
		valid, err := child.ops.Revalidate(ctx, child)
		if err != nil {
			child.DecRef(ctx)
			return nil, false, err
		}
		if !valid {
			revalidationFailures.Increment()
			revalidateLog.Debugf("vfs: dropping stale entry %q", name)
			d.removeChild(name, child)
			child.Filesystem().ForgetDirEntry(ctx, child)
			child.DecRef(ctx)
			// The fresh result is trusted without another Revalidate.
			child, res, err = d.getOrCreateChildSlow(ctx, mount, name, creator)
			if err != nil {
				return nil, false, err
			}
		}
	}
	return child, res == existed, nil
}

func (d *DirEntry) getOrCreateChild(ctx context.Context, mount MountInfo, name string, creator NodeCreator) (*DirEntry, creationResult, error) {
	if child := d.cachedChild(name); child != nil {
		cacheHits.Increment()
		d.Filesystem().DidAccessDirEntry(child)
		return child, existed, nil
	}
	return d.getOrCreateChildSlow(ctx, mount, name, creator)
}

// cachedChild returns the live cached child named name with a new reference,
// or nil.
func (d *DirEntry) cachedChild(name string) *DirEntry {
	d.childrenMu.RLock()
	defer d.childrenMu.RUnlock()
	return d.cachedChildLocked(name)
}

// +checklocksread:d.childrenMu
func (d *DirEntry) cachedChildLocked(name string) *DirEntry {
	slot, ok := d.children.Get(childSlot{name: name})
	if !ok || !slot.entry.TryIncRef() {
		return nil
	}
	return slot.entry
}

// getOrCreateChildSlow resolves name while holding d.childrenMu for writing,
// so that only one caller consults the Node layer for a given name.
func (d *DirEntry) getOrCreateChildSlow(ctx context.Context, mount MountInfo, name string, creator NodeCreator) (*DirEntry, creationResult, error) {
	d.childrenMu.Lock()
	if child := d.cachedChildLocked(name); child != nil {
		d.childrenMu.Unlock()
		cacheHits.Increment()
		d.Filesystem().DidAccessDirEntry(child)
		return child, existed, nil
	}
	cacheMisses.Increment()

	res := existed
	node, err := d.node.Lookup(ctx, mount, name)
	if linuxerr.Equals(linuxerr.ENOENT, err) {
		res = created
		node, err = creator.CreateNode(ctx, d.node, mount, name)
	}
	if err != nil {
		d.childrenMu.Unlock()
		return nil, existed, err
	}

	child := NewDirEntry(node, d, name)
	d.children.ReplaceOrInsert(childSlot{name: name, entry: child})
	d.childrenMu.Unlock()

	if res == created {
		entriesCreated.Increment()
	}
	if log.IsLogging(log.Debug) {
		log.Debugf("vfs: cached %q in directory %d (created: %t)", name, d.id, res == created)
	}
	fs := child.Filesystem()
	fs.DidCreateDirEntry(child)
	fs.PurgeOldEntries(ctx)
	return child, res, nil
}

// removeChild removes the slot for name if it still refers to child.
func (d *DirEntry) removeChild(name string, child *DirEntry) bool {
	if d.children == nil {
		return false
	}
	d.childrenMu.Lock()
	defer d.childrenMu.Unlock()
	slot, ok := d.children.Get(childSlot{name: name})
	if !ok || slot.entry != child {
		return false
	}
	d.children.Delete(slot)
	return true
}

func (d *DirEntry) createEntryInternal(ctx context.Context, mount MountInfo, name string, creator NodeCreator) (*DirEntry, bool, error) {
	if err := checkCreateName(name); err != nil {
		return nil, false, err
	}
	if d.IsDead() {
		return nil, false, linuxerr.ENOENT
	}
	return d.GetOrCreateChild(ctx, mount, name, creator)
}

// CreateEntry creates the child of d named name using creator and returns it
// with a new reference. CreateEntry returns EEXIST if the child already
// exists.
func (d *DirEntry) CreateEntry(ctx context.Context, mount MountInfo, name string, creator NodeCreator) (*DirEntry, error) {
	child, existed, err := d.createEntryInternal(ctx, mount, name, creator)
	if err != nil {
		return nil, err
	}
	if existed {
		child.DecRef(ctx)
		return nil, linuxerr.EEXIST
	}
	return child, nil
}

// GetOrCreateEntry is like CreateEntry, but returns the existing child
// instead of failing.
func (d *DirEntry) GetOrCreateEntry(ctx context.Context, mount MountInfo, name string, creator NodeCreator) (*DirEntry, error) {
	child, _, err := d.createEntryInternal(ctx, mount, name, creator)
	return child, err
}

// lookupCreator is the NodeCreator used by ComponentLookup. It only looks the
// name up again, so a missing file stays missing.
var lookupCreator = CreateNodeFunc(func(ctx context.Context, parent Node, mount MountInfo, name string) (Node, error) {
	return parent.Lookup(ctx, mount, name)
})

// ComponentLookup returns the child of d named name with a new reference, or
// ENOENT.
func (d *DirEntry) ComponentLookup(ctx context.Context, mount MountInfo, name string) (*DirEntry, error) {
	child, _, err := d.GetOrCreateChild(ctx, mount, name, lookupCreator)
	return child, err
}

// CreateDir creates a directory named name in d, outside of any mount, and
// returns it with a new reference. d's Node must implement DirectoryMaker.
func (d *DirEntry) CreateDir(ctx context.Context, name string) (*DirEntry, error) {
	return d.CreateEntry(ctx, DetachedMountInfo(), name, CreateNodeFunc(func(ctx context.Context, parent Node, mount MountInfo, name string) (Node, error) {
		dm, ok := parent.(DirectoryMaker)
		if !ok {
			return nil, linuxerr.EPERM
		}
		return dm.Mkdir(ctx, mount, name, linux.ModeDirectory|0777)
	}))
}

// CopyChildNames returns the sorted names of d's live cached children. The
// result reflects the cache only, so it may omit files that exist but were
// never looked up.
func (d *DirEntry) CopyChildNames(ctx context.Context) []string {
	if d.children == nil {
		return nil
	}
	var (
		names []string
		held  []*DirEntry
	)
	d.childrenMu.RLock()
	d.children.Ascend(func(slot childSlot) bool {
		if slot.entry.TryIncRef() {
			names = append(names, slot.name)
			held = append(held, slot.entry)
		}
		return true
	})
	d.childrenMu.RUnlock()
	for _, child := range held {
		child.DecRef(ctx)
	}
	return names
}
