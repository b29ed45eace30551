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
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
)

// MountInfo is the Mount, if any, through which a Node is being accessed.
// A MountInfo holds no references.
type MountInfo struct {
	mount *Mount
}

// DetachedMountInfo returns a MountInfo for access outside of any mount.
func DetachedMountInfo() MountInfo {
	return MountInfo{}
}

// Mount returns the Mount, or nil if mi is detached.
func (mi MountInfo) Mount() *Mount {
	return mi.mount
}

// IsDetached returns true if mi has no Mount.
func (mi MountInfo) IsDetached() bool {
	return mi.mount == nil
}

// Flags returns the flags of the Mount. Detached access behaves as noatime.
func (mi MountInfo) Flags() MountFlags {
	if mi.mount == nil {
		return MountNoATime
	}
	return mi.mount.Flags()
}

// CheckReadonlyFilesystem returns EROFS if writes through mi are forbidden.
func (mi MountInfo) CheckReadonlyFilesystem() error {
	if mi.Flags()&MountReadOnly != 0 {
		return linuxerr.EROFS
	}
	return nil
}
