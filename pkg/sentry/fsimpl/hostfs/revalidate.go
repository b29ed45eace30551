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
	"gvisor.dev/gvisor/pkg/context"
	"gvisor.dev/gvisor/pkg/log"
	"gvisor.dev/gvisor/pkg/metric"
)

var staleEntries = metric.MustCreateNewUint64Metric("/hostfs/stale_entries", false /* sync */, "Number of cached hostfs entries that no longer match the host.")

// entryOps implements vfs.DirEntryOps for hostfs entries.
type entryOps struct{}

// Revalidate implements vfs.DirEntryOps.Revalidate. An entry is valid if the
// host file now found under its name is the one it was created for.
func (entryOps) Revalidate(ctx context.Context, d *vfs.DirEntry) (bool, error) {
	i, ok := d.Node().(*inode)
	if !ok {
		return true, nil
	}
	parent := d.ParentOrSelf()
	defer parent.DecRef(ctx)
	if parent == d {
		return true, nil
	}
	dir, ok := parent.Node().(*inode)
	if !ok {
		return true, nil
	}
	p := dir.childPath(d.LocalName())
	var st unix.Stat_t
	switch err := unix.Fstatat(unix.AT_FDCWD, p, &st, unix.AT_SYMLINK_NOFOLLOW); err {
	case nil:
	case unix.ENOENT, unix.ENOTDIR:
		staleEntries.Increment()
		log.Debugf("hostfs: %s is gone", i)
		return false, nil
	default:
		return false, hostError(err)
	}
	if keyOf(&st) != i.key || linuxFileType(&st) != i.mode.FileType() {
		staleEntries.Increment()
		log.Debugf("hostfs: %s was replaced", i)
		return false, nil
	}
	i.setPath(p)
	return true, nil
}
