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

package hostfs

import (
	"golang.org/x/sys/unix"
	"gvisor.dev/dcache/pkg/sentry/vfs"
	"gvisor.dev/gvisor/pkg/abi/linux"
	"gvisor.dev/gvisor/pkg/context"
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
)

func parentInode(parent vfs.Node) (*inode, error) {
	i, ok := parent.(*inode)
	if !ok {
		return nil, linuxerr.EXDEV
	}
	if !i.IsDir() {
		return nil, linuxerr.ENOTDIR
	}
	return i, nil
}

// created stats a file just made at p.
func (i *inode) created(p string) (vfs.Node, error) {
	var st unix.Stat_t
	if err := unix.Fstatat(unix.AT_FDCWD, p, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return nil, hostError(err)
	}
	return i.fs.inodeFor(&st, p), nil
}

// MkdirCreator returns a NodeCreator that makes host directories with the
// given permissions.
func MkdirCreator(mode linux.FileMode) vfs.NodeCreator {
	return vfs.CreateNodeFunc(func(ctx context.Context, parent vfs.Node, mount vfs.MountInfo, name string) (vfs.Node, error) {
		dir, err := parentInode(parent)
		if err != nil {
			return nil, err
		}
		p := dir.childPath(name)
		if err := unix.Mkdirat(unix.AT_FDCWD, p, uint32(mode.Permissions())); err != nil {
			return nil, hostError(err)
		}
		return dir.created(p)
	})
}

// MknodCreator returns a NodeCreator that makes regular files or FIFOs on
// the host. Other file types fail with EPERM.
func MknodCreator(mode linux.FileMode) vfs.NodeCreator {
	return vfs.CreateNodeFunc(func(ctx context.Context, parent vfs.Node, mount vfs.MountInfo, name string) (vfs.Node, error) {
		dir, err := parentInode(parent)
		if err != nil {
			return nil, err
		}
		m := mode
		switch m.FileType() {
		case 0:
			m |= linux.ModeRegular
		case linux.ModeRegular, linux.ModeNamedPipe:
		default:
			return nil, linuxerr.EPERM
		}
		p := dir.childPath(name)
		if err := unix.Mknodat(unix.AT_FDCWD, p, uint32(m), 0); err != nil {
			return nil, hostError(err)
		}
		return dir.created(p)
	})
}
