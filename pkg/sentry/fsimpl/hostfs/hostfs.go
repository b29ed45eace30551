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

// Package hostfs provides a Filesystem whose files live in a directory of
// the host. Entries are revalidated against the host on every cached lookup,
// so files renamed or removed behind the Filesystem's back are looked up
// again.
//
// Lock order:
//
//	vfs.DirEntry locks
//		inode.mu
package hostfs

import (
	"fmt"
	"path"

	"github.com/bluele/gcache"
	"golang.org/x/sys/unix"
	"gvisor.dev/dcache/pkg/sentry/vfs"
	"gvisor.dev/gvisor/pkg/abi/linux"
	"gvisor.dev/gvisor/pkg/context"
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
	"gvisor.dev/gvisor/pkg/log"
	"gvisor.dev/gvisor/pkg/sync"
)

// Name is the default name of a hostfs Filesystem.
const Name = "hostfs"

// DefaultNodeTableSize is the number of host files whose inodes are
// remembered when Options.NodeTableSize is zero.
const DefaultNodeTableSize = 1024

// Options configures NewFilesystem.
type Options struct {
	// Root is the host directory served by the Filesystem.
	Root string

	// Name identifies the Filesystem. If empty, Name is used.
	Name string

	// CacheMode is the Filesystem's entry cache policy.
	CacheMode vfs.CacheMode

	// LRUCapacity is passed through to vfs.FilesystemOptions.
	LRUCapacity uint64

	// NodeTableSize bounds the table that maps host files to inodes.
	NodeTableSize int
}

// nodeKey identifies a host file.
type nodeKey struct {
	dev uint64
	ino uint64
}

func keyOf(st *unix.Stat_t) nodeKey {
	return nodeKey{dev: uint64(st.Dev), ino: uint64(st.Ino)}
}

// filesystem is the hostfs state shared by all of its inodes.
type filesystem struct {
	vfsfs *vfs.Filesystem

	// nodes maps nodeKey to *inode, so that hard links to a host file
	// share a Node while the file is remembered.
	nodes gcache.Cache
}

// NewFilesystem returns a Filesystem serving opts.Root.
func NewFilesystem(vfsObj *vfs.VirtualFilesystem, opts Options) (*vfs.Filesystem, error) {
	if opts.Name == "" {
		opts.Name = Name
	}
	if opts.NodeTableSize <= 0 {
		opts.NodeTableSize = DefaultNodeTableSize
	}
	var st unix.Stat_t
	if err := unix.Stat(opts.Root, &st); err != nil {
		return nil, hostError(err)
	}
	if linuxFileType(&st) != linux.ModeDirectory {
		return nil, linuxerr.ENOTDIR
	}
	fs := &filesystem{
		vfsfs: vfsObj.NewFilesystem(vfs.FilesystemOptions{
			Name:        opts.Name,
			CacheMode:   opts.CacheMode,
			LRUCapacity: opts.LRUCapacity,
		}),
		nodes: gcache.New(opts.NodeTableSize).LRU().Build(),
	}
	root := fs.inodeFor(&st, path.Clean(opts.Root))
	fs.vfsfs.SetRoot(vfs.NewUnrootedDirEntry(root))
	log.Infof("hostfs: serving %q as %q", opts.Root, opts.Name)
	return fs.vfsfs, nil
}

// inodeFor returns the inode for the host file described by st, found at
// hostPath.
func (fs *filesystem) inodeFor(st *unix.Stat_t, hostPath string) *inode {
	key := keyOf(st)
	mode := linux.FileMode(st.Mode)
	if v, err := fs.nodes.Get(key); err == nil {
		if i := v.(*inode); i.mode.FileType() == mode.FileType() {
			i.setPath(hostPath)
			return i
		}
	}
	i := &inode{
		fs:   fs,
		key:  key,
		mode: mode,
		path: hostPath,
	}
	if err := fs.nodes.Set(key, i); err != nil {
		log.Warningf("hostfs: remembering %v: %v", key, err)
	}
	return i
}

// inode represents a host file. It implements vfs.Node.
type inode struct {
	fs *filesystem

	// key and mode are immutable. A host file whose type changes gets a
	// new inode.
	key  nodeKey
	mode linux.FileMode

	mu sync.Mutex

	// path is the host path the file was last seen at. path is protected
	// by mu.
	path string
}

func (i *inode) hostPath() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.path
}

func (i *inode) setPath(p string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.path = p
}

func (i *inode) childPath(name string) string {
	return path.Join(i.hostPath(), name)
}

// Lookup implements vfs.Node.Lookup.
func (i *inode) Lookup(ctx context.Context, mount vfs.MountInfo, name string) (vfs.Node, error) {
	if !i.IsDir() {
		return nil, linuxerr.ENOTDIR
	}
	p := i.childPath(name)
	var st unix.Stat_t
	if err := unix.Fstatat(unix.AT_FDCWD, p, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return nil, hostError(err)
	}
	return i.fs.inodeFor(&st, p), nil
}

// IsDir implements vfs.Node.IsDir.
func (i *inode) IsDir() bool {
	return i.mode.FileType() == linux.ModeDirectory
}

// Filesystem implements vfs.Node.Filesystem.
func (i *inode) Filesystem() *vfs.Filesystem {
	return i.fs.vfsfs
}

// Mkdir implements vfs.DirectoryMaker.Mkdir.
func (i *inode) Mkdir(ctx context.Context, mount vfs.MountInfo, name string, mode linux.FileMode) (vfs.Node, error) {
	return MkdirCreator(mode).CreateNode(ctx, i, mount, name)
}

// NewDirEntryOps implements vfs.DirEntryOpsCreator.
func (i *inode) NewDirEntryOps() vfs.DirEntryOps {
	return entryOps{}
}

// String implements fmt.Stringer.
func (i *inode) String() string {
	return fmt.Sprintf("hostfs inode %d:%d (%s)", i.key.dev, i.key.ino, i.hostPath())
}

// Stat describes a host file.
type Stat struct {
	Dev  uint64
	Ino  uint64
	Mode linux.FileMode
	Path string
}

// StatNode returns what hostfs knows about a hostfs Node.
func StatNode(n vfs.Node) (Stat, error) {
	i, ok := n.(*inode)
	if !ok {
		return Stat{}, linuxerr.EXDEV
	}
	return Stat{Dev: i.key.dev, Ino: i.key.ino, Mode: i.mode, Path: i.hostPath()}, nil
}

// hostError converts an error returned by package unix.
func hostError(err error) error {
	if errno, ok := err.(unix.Errno); ok {
		return linuxerr.ErrorFromUnix(errno)
	}
	return err
}

func linuxFileType(st *unix.Stat_t) linux.FileMode {
	return linux.FileMode(st.Mode).FileType()
}
