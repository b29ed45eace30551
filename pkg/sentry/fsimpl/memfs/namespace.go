// Copyright 2019 The gVisor Authors.
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

package memfs

import (
	"sort"

	"gvisor.dev/dcache/pkg/sentry/vfs"
	"gvisor.dev/gvisor/pkg/context"
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
)

// ReadDir returns the sorted names in the memfs directory n.
func ReadDir(n vfs.Node) ([]string, error) {
	dir, err := directoryOf(n)
	if err != nil {
		return nil, err
	}
	names := dir.names()
	sort.Strings(names)
	return names, nil
}

// Unlink removes the non-directory named name from the directory at parent.
func Unlink(ctx context.Context, parent vfs.NamespaceNode, name string) error {
	if vfs.IsReservedName(name) {
		return linuxerr.EISDIR
	}
	return removeChild(ctx, parent, name, false /* wantDir */)
}

// Rmdir removes the empty directory named name from the directory at
// parent.
func Rmdir(ctx context.Context, parent vfs.NamespaceNode, name string) error {
	switch name {
	case "":
		return linuxerr.ENOENT
	case ".":
		return linuxerr.EINVAL
	case "..":
		return linuxerr.ENOTEMPTY
	}
	return removeChild(ctx, parent, name, true /* wantDir */)
}

func removeChild(ctx context.Context, parent vfs.NamespaceNode, name string, wantDir bool) error {
	if err := parent.Mount().CheckReadonlyFilesystem(); err != nil {
		return err
	}
	dir, err := directoryOf(parent.Entry().Node())
	if err != nil {
		return err
	}
	fs := dir.inode.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	child, err := parent.Entry().ComponentLookup(ctx, parent.Mount(), name)
	if err != nil {
		return err
	}
	defer child.DecRef(ctx)
	childInode := child.Node().(*inode)
	if wantDir {
		childDir, ok := childInode.impl.(*directory)
		if !ok {
			return linuxerr.ENOTDIR
		}
		if !childDir.empty() {
			return linuxerr.ENOTEMPTY
		}
	} else if childInode.IsDir() {
		return linuxerr.EISDIR
	}

	if err := child.PrepareDelete(); err != nil {
		return err
	}
	dir.remove(name)
	if !wantDir {
		childInode.decLinks()
	}
	child.CommitDelete(ctx)
	return nil
}

// Rename moves the file named oldName in oldParent to newName in newParent,
// replacing any file already there. Both parents must be reached through the
// same Mount.
func Rename(ctx context.Context, oldParent vfs.NamespaceNode, oldName string, newParent vfs.NamespaceNode, newName string) error {
	if oldParent.Mount().Mount() != newParent.Mount().Mount() {
		return linuxerr.EXDEV
	}
	if err := newParent.Mount().CheckReadonlyFilesystem(); err != nil {
		return err
	}
	if vfs.IsReservedName(oldName) || vfs.IsReservedName(newName) {
		return linuxerr.EBUSY
	}
	oldDir, err := directoryOf(oldParent.Entry().Node())
	if err != nil {
		return err
	}
	newDir, err := directoryOf(newParent.Entry().Node())
	if err != nil {
		return err
	}
	if oldDir.inode.fs != newDir.inode.fs {
		return linuxerr.EXDEV
	}
	fs := oldDir.inode.fs
	fs.mu.Lock()
	defer fs.mu.Unlock()

	renamed, err := oldParent.Entry().ComponentLookup(ctx, oldParent.Mount(), oldName)
	if err != nil {
		return err
	}
	defer renamed.DecRef(ctx)
	if isAncestorOrSelf(ctx, renamed, newParent.Entry()) {
		return linuxerr.EINVAL
	}
	replaced, err := newParent.Entry().ComponentLookup(ctx, newParent.Mount(), newName)
	switch {
	case linuxerr.Equals(linuxerr.ENOENT, err):
		replaced = nil
	case err != nil:
		return err
	default:
		defer replaced.DecRef(ctx)
	}

	renamedInode := renamed.Node().(*inode)
	var replacedInode *inode
	if replaced != nil {
		replacedInode = replaced.Node().(*inode)
		if replacedInode == renamedInode {
			return nil
		}
		if renamedInode.IsDir() {
			replacedDir, ok := replacedInode.impl.(*directory)
			if !ok {
				return linuxerr.ENOTDIR
			}
			if !replacedDir.empty() {
				return linuxerr.ENOTEMPTY
			}
		} else if replacedInode.IsDir() {
			return linuxerr.EISDIR
		}
		if replaced.MountCount() != 0 {
			return linuxerr.EBUSY
		}
	}
	if renamed.MountCount() != 0 {
		return linuxerr.EBUSY
	}

	unlock := vfs.LockRenameEntries(oldParent.Entry(), newParent.Entry(), renamed, replaced)
	oldDir.remove(oldName)
	if replacedInode != nil {
		newDir.remove(newName)
		if !replacedInode.IsDir() {
			replacedInode.decLinks()
		}
	}
	if err := newDir.insert(newName, renamedInode); err != nil {
		panic("memfs: rename target reappeared under filesystem.mu: " + err.Error())
	}
	done := vfs.CommitRenameLocked(oldParent.Entry(), newParent.Entry(), renamed, replaced, newName)
	unlock()
	done(ctx)
	return nil
}

// isAncestorOrSelf returns true if a is d or one of its ancestors.
func isAncestorOrSelf(ctx context.Context, a, d *vfs.DirEntry) bool {
	d.IncRef()
	for {
		if d == a {
			d.DecRef(ctx)
			return true
		}
		p := d.ParentOrSelf()
		if p == d {
			p.DecRef(ctx)
			d.DecRef(ctx)
			return false
		}
		d.DecRef(ctx)
		d = p
	}
}
