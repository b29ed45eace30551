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
	"strings"

	"gvisor.dev/gvisor/pkg/abi/linux"
)

// MountFlags is a set of mount(2) flags.
type MountFlags uint64

// Mount flags.
const (
	MountReadOnly    MountFlags = linux.MS_RDONLY
	MountNoSUID      MountFlags = linux.MS_NOSUID
	MountNoDev       MountFlags = linux.MS_NODEV
	MountNoExec      MountFlags = linux.MS_NOEXEC
	MountSynchronous MountFlags = linux.MS_SYNCHRONOUS
	MountMandLock    MountFlags = linux.MS_MANDLOCK
	MountDirSync     MountFlags = linux.MS_DIRSYNC
	MountNoATime     MountFlags = linux.MS_NOATIME
	MountNoDirATime  MountFlags = linux.MS_NODIRATIME
	MountRelATime    MountFlags = linux.MS_RELATIME
	MountStrictATime MountFlags = linux.MS_STRICTATIME

	// MountStoredOnMount are the flags a Mount records. Any other flag passed
	// to NewMount is a programming error.
	MountStoredOnMount = MountReadOnly | MountNoSUID | MountNoDev | MountNoExec | MountNoATime | MountNoDirATime | MountRelATime

	// MountStoredOnFilesystem are the flags that describe the superblock
	// rather than the mount.
	MountStoredOnFilesystem = MountReadOnly | MountDirSync | MountMandLock | MountSynchronous
)

var mountFlagNames = []struct {
	flag MountFlags
	name string
}{
	{MountReadOnly, "ro"},
	{MountNoSUID, "nosuid"},
	{MountNoDev, "nodev"},
	{MountNoExec, "noexec"},
	{MountSynchronous, "sync"},
	{MountMandLock, "mand"},
	{MountDirSync, "dirsync"},
	{MountNoATime, "noatime"},
	{MountNoDirATime, "nodiratime"},
	{MountRelATime, "relatime"},
	{MountStrictATime, "strictatime"},
}

// Contains returns true if f includes every flag in other.
func (f MountFlags) Contains(other MountFlags) bool {
	return f&other == other
}

// String returns the flags in /proc/mounts option syntax.
func (f MountFlags) String() string {
	var opts []string
	if f&MountReadOnly == 0 {
		opts = append(opts, "rw")
	}
	for _, fn := range mountFlagNames {
		if f&fn.flag != 0 {
			opts = append(opts, fn.name)
		}
	}
	return strings.Join(opts, ",")
}
