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
	"gvisor.dev/gvisor/pkg/abi/linux"
	"gvisor.dev/gvisor/pkg/context"
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
	"gvisor.dev/gvisor/pkg/fspath"
)

// NamespaceNode is a location in the namespace: a DirEntry as seen through a
// particular Mount.
//
// NamespaceNode is a value type. Functions that return a NamespaceNode give
// the caller references on its Mount and DirEntry, released with DecRef.
// MakeNamespaceNode and the accessors do not take references.
type NamespaceNode struct {
	mount MountInfo
	entry *DirEntry
}

// MakeNamespaceNode pairs mnt and d without taking references.
func MakeNamespaceNode(mnt *Mount, d *DirEntry) NamespaceNode {
	return NamespaceNode{mount: MountInfo{mount: mnt}, entry: d}
}

// NewAnonymousNamespaceNode returns a NamespaceNode for d outside of any
// mount. It takes ownership of the caller's reference on d.
func NewAnonymousNamespaceNode(d *DirEntry) NamespaceNode {
	return NamespaceNode{entry: d}
}

// NewAnonymousUnrootedNamespaceNode returns a NamespaceNode for node with a
// fresh parentless DirEntry and no mount.
func NewAnonymousUnrootedNamespaceNode(node Node) NamespaceNode {
	return NewAnonymousNamespaceNode(NewUnrootedDirEntry(node))
}

// Ok returns true if n names something.
func (n NamespaceNode) Ok() bool {
	return n.entry != nil
}

// Mount returns n's MountInfo.
func (n NamespaceNode) Mount() MountInfo {
	return n.mount
}

// Entry returns n's DirEntry.
func (n NamespaceNode) Entry() *DirEntry {
	return n.entry
}

// IncRef increments the reference counts of n's Mount and DirEntry.
func (n NamespaceNode) IncRef() {
	if n.mount.mount != nil {
		n.mount.mount.IncRef()
	}
	n.entry.IncRef()
}

// DecRef decrements the reference counts of n's Mount and DirEntry.
func (n NamespaceNode) DecRef(ctx context.Context) {
	n.entry.DecRef(ctx)
	if n.mount.mount != nil {
		n.mount.mount.DecRef(ctx)
	}
}

// Equal returns true if n and other name the same entry through the same
// Mount.
func (n NamespaceNode) Equal(other NamespaceNode) bool {
	return n.mount.mount == other.mount.mount && n.entry == other.entry
}

// WithNewEntry returns a NamespaceNode for d on n's Mount. It takes a new
// reference on the Mount and ownership of the caller's reference on d.
func (n NamespaceNode) WithNewEntry(d *DirEntry) NamespaceNode {
	if n.mount.mount != nil {
		n.mount.mount.IncRef()
	}
	return NamespaceNode{mount: n.mount, entry: d}
}

// MountIfRoot returns n's Mount if n is the root of it, and EINVAL
// otherwise.
func (n NamespaceNode) MountIfRoot() (*Mount, error) {
	if mnt := n.mount.mount; mnt != nil && mnt.root == n.entry {
		return mnt, nil
	}
	return nil, linuxerr.EINVAL
}

// Mountpoint returns the NamespaceNode that n's Mount covers, if n is the
// root of an attached Mount.
func (n NamespaceNode) Mountpoint() (NamespaceNode, bool) {
	mnt, err := n.MountIfRoot()
	if err != nil {
		return NamespaceNode{}, false
	}
	return mnt.Mountpoint()
}

// EscapeMount walks from mount roots to the nodes they cover until it
// reaches a node that is not the root of an attached Mount. The result
// carries new references.
func (n NamespaceNode) EscapeMount(ctx context.Context) NamespaceNode {
	n.IncRef()
	for {
		mp, ok := n.Mountpoint()
		if !ok {
			return n
		}
		n.DecRef(ctx)
		n = mp
	}
}

// EnterMount walks from n into the roots of the Mounts stacked on it. The
// result carries new references.
func (n NamespaceNode) EnterMount(ctx context.Context) NamespaceNode {
	n.IncRef()
	for n.mount.mount != nil {
		child := n.mount.mount.submountAt(n.entry)
		if child == nil {
			break
		}
		root := child.Root()
		child.DecRef(ctx)
		n.DecRef(ctx)
		n = root
	}
	return n
}

// parent returns the parent of n, crossing mount boundaries, or n itself at
// the namespace root. The result carries new references.
func (n NamespaceNode) parent(ctx context.Context) NamespaceNode {
	escaped := n.EscapeMount(ctx)
	p := escaped.WithNewEntry(escaped.entry.ParentOrSelf())
	escaped.DecRef(ctx)
	return p
}

// LookupChild resolves the single path component name relative to n and
// returns the result with new references. "" and "." name n itself, ".."
// names the parent of n, possibly in another Mount. Any Mount covering the
// result is entered.
func (n NamespaceNode) LookupChild(ctx context.Context, name string) (NamespaceNode, error) {
	if !n.entry.node.IsDir() {
		return NamespaceNode{}, linuxerr.ENOTDIR
	}
	if len(name) > linux.NAME_MAX {
		return NamespaceNode{}, linuxerr.ENAMETOOLONG
	}
	switch name {
	case "", ".":
		n.IncRef()
		return n, nil
	case "..":
		return n.parent(ctx), nil
	}

	child, err := n.entry.ComponentLookup(ctx, n.mount, name)
	if err != nil {
		return NamespaceNode{}, err
	}
	cn := n.WithNewEntry(child)
	entered := cn.EnterMount(ctx)
	cn.DecRef(ctx)
	return entered, nil
}

// CreateNode creates the child of n named name using creator and returns it
// with new references. It fails with EROFS on a read-only Mount and EEXIST
// if the child exists.
func (n NamespaceNode) CreateNode(ctx context.Context, name string, creator NodeCreator) (NamespaceNode, error) {
	if err := n.mount.CheckReadonlyFilesystem(); err != nil {
		return NamespaceNode{}, err
	}
	child, err := n.entry.CreateEntry(ctx, n.mount, name, creator)
	if err != nil {
		return NamespaceNode{}, err
	}
	return n.WithNewEntry(child), nil
}

// OpenCreateNode returns the child of n named name, creating it with creator
// if needed. If exclusive is set, as for O_CREAT|O_EXCL, an existing child is
// an error (EEXIST). On a read-only Mount an existing child is still
// returned, and only creation fails with EROFS.
func (n NamespaceNode) OpenCreateNode(ctx context.Context, name string, creator NodeCreator, exclusive bool) (NamespaceNode, error) {
	if err := n.mount.CheckReadonlyFilesystem(); err != nil {
		if exclusive {
			return NamespaceNode{}, err
		}
		child, lerr := n.entry.ComponentLookup(ctx, n.mount, name)
		if linuxerr.Equals(linuxerr.ENOENT, lerr) {
			return NamespaceNode{}, err
		}
		if lerr != nil {
			return NamespaceNode{}, lerr
		}
		return n.WithNewEntry(child), nil
	}
	var (
		child *DirEntry
		err   error
	)
	if exclusive {
		child, err = n.entry.CreateEntry(ctx, n.mount, name, creator)
	} else {
		child, err = n.entry.GetOrCreateEntry(ctx, n.mount, name, creator)
	}
	if err != nil {
		return NamespaceNode{}, err
	}
	return n.WithNewEntry(child), nil
}

// Path returns the absolute path of n in its namespace. Entries removed from
// the namespace are suffixed with " (deleted)".
func (n NamespaceNode) Path(ctx context.Context) string {
	var b fspath.Builder
	dead := n.entry.IsDead()
	cur := n
	cur.IncRef()
	for {
		if mp, ok := cur.Mountpoint(); ok {
			cur.DecRef(ctx)
			cur = mp
			continue
		}
		p := cur.entry.ParentOrSelf()
		if p == cur.entry {
			p.DecRef(ctx)
			break
		}
		b.PrependComponent(cur.entry.LocalName())
		next := cur.WithNewEntry(p)
		cur.DecRef(ctx)
		cur = next
	}
	cur.DecRef(ctx)
	b.PrependByte('/')
	if dead {
		b.AppendString(" (deleted)")
	}
	return b.String()
}
