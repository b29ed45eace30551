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

// Package memfs provides an in-memory filesystem: the directory maps held
// by its inodes are the sole source of truth for the state of the
// filesystem, and its DirEntries are pinned for the Filesystem's lifetime.
//
// Lock order:
//
//	filesystem.mu
//	  vfs.DirEntry locks
//	    directory.mu
//	      inode.mu
package memfs

import (
	"fmt"

	"gvisor.dev/dcache/pkg/sentry/vfs"
	"gvisor.dev/gvisor/pkg/abi/linux"
	"gvisor.dev/gvisor/pkg/atomicbitops"
	"gvisor.dev/gvisor/pkg/context"
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
	"gvisor.dev/gvisor/pkg/sync"
)

// Name is the default filesystem name.
const Name = "memfs"

// filesystem is the memfs state shared by all of its inodes.
type filesystem struct {
	vfsfs *vfs.Filesystem

	// mu serializes changes to the shape of the tree (unlink, rmdir and
	// rename). Creation is serialized per directory by the entry cache.
	mu sync.Mutex
}

// NewFilesystem returns a new memfs Filesystem whose root is an empty
// directory with the given permissions.
func NewFilesystem(vfsObj *vfs.VirtualFilesystem, name string, mode linux.FileMode) *vfs.Filesystem {
	if name == "" {
		name = Name
	}
	fs := &filesystem{
		vfsfs: vfsObj.NewFilesystem(vfs.FilesystemOptions{
			Name:      name,
			CacheMode: vfs.CacheModePermanent,
		}),
	}
	root := fs.newDirectory(mode)
	fs.vfsfs.SetRoot(vfs.NewUnrootedDirEntry(root))
	return fs.vfsfs
}

// inode represents a filesystem object. It implements vfs.Node.
type inode struct {
	fs *filesystem

	// ino is immutable.
	ino uint64

	// mode includes the file type bits. mode is immutable.
	mode linux.FileMode

	// nlink is the number of directory entries naming the inode.
	nlink atomicbitops.Uint32

	// impl is one of *directory, *regularFile or *namedPipe. impl is
	// immutable.
	impl any
}

func (fs *filesystem) newInode(impl any, mode linux.FileMode) *inode {
	return &inode{
		fs:   fs,
		ino:  fs.vfsfs.NextNodeID(),
		mode: mode,
		impl: impl,
	}
}

func (i *inode) incLinks() {
	i.nlink.Add(1)
}

func (i *inode) decLinks() {
	if i.nlink.Add(^uint32(0)) == ^uint32(0) {
		panic(fmt.Sprintf("memfs inode %d has no links to remove", i.ino))
	}
}

// Lookup implements vfs.Node.Lookup.
func (i *inode) Lookup(ctx context.Context, mount vfs.MountInfo, name string) (vfs.Node, error) {
	dir, ok := i.impl.(*directory)
	if !ok {
		return nil, linuxerr.ENOTDIR
	}
	child := dir.lookup(name)
	if child == nil {
		return nil, linuxerr.ENOENT
	}
	return child, nil
}

// IsDir implements vfs.Node.IsDir.
func (i *inode) IsDir() bool {
	_, ok := i.impl.(*directory)
	return ok
}

// Filesystem implements vfs.Node.Filesystem.
func (i *inode) Filesystem() *vfs.Filesystem {
	return i.fs.vfsfs
}

// Mkdir implements vfs.DirectoryMaker.Mkdir.
func (i *inode) Mkdir(ctx context.Context, mount vfs.MountInfo, name string, mode linux.FileMode) (vfs.Node, error) {
	return MkdirCreator(mode).CreateNode(ctx, i, mount, name)
}

// Stat describes an inode.
type Stat struct {
	Ino   uint64
	Mode  linux.FileMode
	Nlink uint32
}

// StatNode returns the Stat of a memfs Node.
func StatNode(n vfs.Node) (Stat, error) {
	i, ok := n.(*inode)
	if !ok {
		return Stat{}, linuxerr.EXDEV
	}
	return Stat{Ino: i.ino, Mode: i.mode, Nlink: i.nlink.Load()}, nil
}

// regularFile is a regular file without contents.
type regularFile struct{}

// namedPipe is a FIFO.
type namedPipe struct{}
