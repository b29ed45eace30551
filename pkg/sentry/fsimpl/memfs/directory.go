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
	"gvisor.dev/dcache/pkg/sentry/vfs"
	"gvisor.dev/gvisor/pkg/abi/linux"
	"gvisor.dev/gvisor/pkg/context"
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
	"gvisor.dev/gvisor/pkg/sync"
)

type directory struct {
	inode inode

	mu sync.Mutex

	// children is protected by mu.
	children map[string]*inode
}

func (fs *filesystem) newDirectory(mode linux.FileMode) *inode {
	dir := &directory{children: make(map[string]*inode)}
	dir.inode = inode{
		fs:   fs,
		ino:  fs.vfsfs.NextNodeID(),
		mode: linux.ModeDirectory | mode.Permissions(),
		impl: dir,
	}
	// "." and the entry in the parent.
	dir.inode.nlink.Store(2)
	return &dir.inode
}

func (dir *directory) lookup(name string) *inode {
	dir.mu.Lock()
	defer dir.mu.Unlock()
	return dir.children[name]
}

// insert adds child as name. It returns EEXIST if name is taken.
func (dir *directory) insert(name string, child *inode) error {
	dir.mu.Lock()
	defer dir.mu.Unlock()
	if _, ok := dir.children[name]; ok {
		return linuxerr.EEXIST
	}
	dir.children[name] = child
	if child.IsDir() {
		dir.inode.incLinks()
	}
	return nil
}

func (dir *directory) remove(name string) *inode {
	dir.mu.Lock()
	defer dir.mu.Unlock()
	child := dir.children[name]
	if child == nil {
		return nil
	}
	delete(dir.children, name)
	if child.IsDir() {
		dir.inode.decLinks()
	}
	return child
}

func (dir *directory) empty() bool {
	dir.mu.Lock()
	defer dir.mu.Unlock()
	return len(dir.children) == 0
}

func (dir *directory) names() []string {
	dir.mu.Lock()
	defer dir.mu.Unlock()
	names := make([]string, 0, len(dir.children))
	for name := range dir.children {
		names = append(names, name)
	}
	return names
}

func directoryOf(n vfs.Node) (*directory, error) {
	i, ok := n.(*inode)
	if !ok {
		return nil, linuxerr.EXDEV
	}
	dir, ok := i.impl.(*directory)
	if !ok {
		return nil, linuxerr.ENOTDIR
	}
	return dir, nil
}

// MkdirCreator returns a vfs.NodeCreator that makes directories.
func MkdirCreator(mode linux.FileMode) vfs.NodeCreator {
	return vfs.CreateNodeFunc(func(ctx context.Context, parent vfs.Node, mount vfs.MountInfo, name string) (vfs.Node, error) {
		dir, err := directoryOf(parent)
		if err != nil {
			return nil, err
		}
		child := dir.inode.fs.newDirectory(mode)
		if err := dir.insert(name, child); err != nil {
			return nil, err
		}
		return child, nil
	})
}

// MknodCreator returns a vfs.NodeCreator that makes regular files or named
// pipes, depending on the file type bits of mode.
func MknodCreator(mode linux.FileMode) vfs.NodeCreator {
	return vfs.CreateNodeFunc(func(ctx context.Context, parent vfs.Node, mount vfs.MountInfo, name string) (vfs.Node, error) {
		dir, err := directoryOf(parent)
		if err != nil {
			return nil, err
		}
		var impl any
		switch mode.FileType() {
		case 0, linux.ModeRegular:
			impl = &regularFile{}
			mode = linux.ModeRegular | mode.Permissions()
		case linux.ModeNamedPipe:
			impl = &namedPipe{}
		default:
			return nil, linuxerr.EPERM
		}
		child := dir.inode.fs.newInode(impl, mode)
		child.incLinks()
		if err := dir.insert(name, child); err != nil {
			return nil, err
		}
		return child, nil
	})
}

// LinkCreator returns a vfs.NodeCreator that names target again, as link(2)
// does. Directories cannot be linked.
func LinkCreator(target vfs.Node) vfs.NodeCreator {
	return vfs.CreateNodeFunc(func(ctx context.Context, parent vfs.Node, mount vfs.MountInfo, name string) (vfs.Node, error) {
		dir, err := directoryOf(parent)
		if err != nil {
			return nil, err
		}
		i, ok := target.(*inode)
		if !ok || i.fs != dir.inode.fs {
			return nil, linuxerr.EXDEV
		}
		if i.IsDir() {
			return nil, linuxerr.EPERM
		}
		i.incLinks()
		if err := dir.insert(name, i); err != nil {
			i.decLinks()
			return nil, err
		}
		return i, nil
	})
}
