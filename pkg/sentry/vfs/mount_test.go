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
	"testing"

	"gvisor.dev/gvisor/pkg/errors"
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
)

func newTestMount(t *testing.T, env *testEnv, flags MountFlags) *Mount {
	t.Helper()
	mnt := NewMount(MountFilesystem(env.fs), flags)
	t.Cleanup(func() { mnt.DecRef(env.ctx) })
	return mnt
}

func TestNewMountRejectsFilesystemFlags(t *testing.T) {
	env := newTestEnv(t, FilesystemOptions{CacheMode: CacheModePermanent})
	for _, flags := range []MountFlags{MountSynchronous, MountDirSync, MountMandLock, MountReadOnly | MountStrictATime} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("NewMount with flags %#x did not panic", uint64(flags))
				}
			}()
			NewMount(MountFilesystem(env.fs), flags)
		}()
	}
}

func TestMountInfoFlags(t *testing.T) {
	env := newTestEnv(t, FilesystemOptions{CacheMode: CacheModePermanent})
	for _, test := range []struct {
		name      string
		info      MountInfo
		wantFlags MountFlags
		wantErr   *errors.Error
	}{
		{
			name:      "detached",
			info:      DetachedMountInfo(),
			wantFlags: MountNoATime,
		},
		{
			name:      "read-write",
			info:      MountInfo{mount: newTestMount(t, env, MountNoExec)},
			wantFlags: MountNoExec,
		},
		{
			name:      "read-only",
			info:      MountInfo{mount: newTestMount(t, env, MountReadOnly|MountNoDev)},
			wantFlags: MountReadOnly | MountNoDev,
			wantErr:   linuxerr.EROFS,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			if got := test.info.Flags(); got != test.wantFlags {
				t.Errorf("Flags: got %v, want %v", got, test.wantFlags)
			}
			if err := test.info.CheckReadonlyFilesystem(); !linuxerr.Equals(test.wantErr, err) {
				t.Errorf("CheckReadonlyFilesystem: got error %v, want %v", err, test.wantErr)
			}
		})
	}
}

func TestRemount(t *testing.T) {
	env := newTestEnv(t, FilesystemOptions{CacheMode: CacheModePermanent})
	mnt := newTestMount(t, env, 0)
	info := MountInfo{mount: mnt}
	if err := info.CheckReadonlyFilesystem(); err != nil {
		t.Fatalf("CheckReadonlyFilesystem: got error %v, want nil", err)
	}
	mnt.SetFlags(MountReadOnly)
	if err := info.CheckReadonlyFilesystem(); !linuxerr.Equals(linuxerr.EROFS, err) {
		t.Errorf("CheckReadonlyFilesystem after remount: got error %v, want EROFS", err)
	}
}

func TestMountIDsIncrease(t *testing.T) {
	env := newTestEnv(t, FilesystemOptions{CacheMode: CacheModePermanent})
	var last uint64
	for i := 0; i < 3; i++ {
		id := newTestMount(t, env, 0).ID()
		if id <= last {
			t.Errorf("mount %d: got ID %d, want more than %d", i, id, last)
		}
		last = id
	}
}

func TestMountRoot(t *testing.T) {
	env := newTestEnv(t, FilesystemOptions{CacheMode: CacheModePermanent})
	mnt := newTestMount(t, env, 0)
	root := mnt.Root()
	defer root.DecRef(env.ctx)

	if root.Entry() != env.root || root.Mount().Mount() != mnt {
		t.Errorf("Root: got (%v, %v), want (%v, %v)", root.Mount().Mount(), root.Entry(), mnt, env.root)
	}
	if got, err := root.MountIfRoot(); err != nil || got != mnt {
		t.Errorf("MountIfRoot: got (%v, %v), want (%v, nil)", got, err, mnt)
	}
	if _, ok := root.Mountpoint(); ok {
		t.Errorf("unattached mount has a mountpoint")
	}
	if got := root.Path(env.ctx); got != "/" {
		t.Errorf("Path: got %q, want %q", got, "/")
	}

	child, err := root.CreateNode(env.ctx, "a", dirCreator)
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	defer child.DecRef(env.ctx)
	if _, err := child.MountIfRoot(); !linuxerr.Equals(linuxerr.EINVAL, err) {
		t.Errorf("MountIfRoot on a non-root: got error %v, want EINVAL", err)
	}
	if got := child.Path(env.ctx); got != "/a" {
		t.Errorf("Path: got %q, want %q", got, "/a")
	}
}

func TestAttachDetachMount(t *testing.T) {
	env1 := newTestEnv(t, FilesystemOptions{CacheMode: CacheModePermanent})
	env2 := newTestEnvIn(t, env1.ctx, env1.vfs, FilesystemOptions{Name: "fs2", CacheMode: CacheModePermanent})
	ctx := env1.ctx
	m1 := newTestMount(t, env1, 0)
	m2 := newTestMount(t, env2, 0)

	dir, err := env1.root.CreateDir(ctx, "mnt")
	if err != nil {
		t.Fatalf("CreateDir failed: %v", err)
	}
	defer dir.DecRef(ctx)
	root1 := m1.Root()
	defer root1.DecRef(ctx)

	if err := env1.vfs.AttachMount(ctx, m2, MakeNamespaceNode(m1, dir)); err != nil {
		t.Fatalf("AttachMount failed: %v", err)
	}
	if got := dir.MountCount(); got != 1 {
		t.Errorf("MountCount: got %d, want 1", got)
	}
	if err := dir.PrepareDelete(); !linuxerr.Equals(linuxerr.EBUSY, err) {
		t.Errorf("PrepareDelete on a mountpoint: got error %v, want EBUSY", err)
	}

	n, err := root1.LookupChild(ctx, "mnt")
	if err != nil {
		t.Fatalf("LookupChild(mnt) failed: %v", err)
	}
	defer n.DecRef(ctx)
	if n.Mount().Mount() != m2 || n.Entry() != env2.root {
		t.Fatalf("LookupChild(mnt) did not enter the mount: got (%v, %v)", n.Mount().Mount(), n.Entry())
	}

	mp, ok := n.Mountpoint()
	if !ok {
		t.Fatalf("mounted root has no mountpoint")
	}
	if !mp.Equal(MakeNamespaceNode(m1, dir)) {
		t.Errorf("Mountpoint: got (%v, %v), want (%v, %v)", mp.Mount().Mount(), mp.Entry(), m1, dir)
	}
	mp.DecRef(ctx)

	up, err := n.LookupChild(ctx, "..")
	if err != nil {
		t.Fatalf("LookupChild(..) failed: %v", err)
	}
	if !up.Equal(root1) {
		t.Errorf("LookupChild(..) from a mount root: got (%v, %v), want (%v, %v)", up.Mount().Mount(), up.Entry(), m1, env1.root)
	}
	up.DecRef(ctx)

	f, err := n.CreateNode(ctx, "f", fileCreator)
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	if got, want := f.Path(ctx), "/mnt/f"; got != want {
		t.Errorf("Path: got %q, want %q", got, want)
	}
	f.DecRef(ctx)

	if err := env1.vfs.DetachMount(ctx, m2); err != nil {
		t.Fatalf("DetachMount failed: %v", err)
	}
	if got := dir.MountCount(); got != 0 {
		t.Errorf("MountCount after detach: got %d, want 0", got)
	}
	if err := env1.vfs.DetachMount(ctx, m2); !linuxerr.Equals(linuxerr.EINVAL, err) {
		t.Errorf("second DetachMount: got error %v, want EINVAL", err)
	}
	under, err := root1.LookupChild(ctx, "mnt")
	if err != nil {
		t.Fatalf("LookupChild(mnt) failed: %v", err)
	}
	defer under.DecRef(ctx)
	if !under.Equal(MakeNamespaceNode(m1, dir)) {
		t.Errorf("LookupChild(mnt) after detach: got (%v, %v), want (%v, %v)", under.Mount().Mount(), under.Entry(), m1, dir)
	}
}

func TestStackedMounts(t *testing.T) {
	env1 := newTestEnv(t, FilesystemOptions{CacheMode: CacheModePermanent})
	env2 := newTestEnvIn(t, env1.ctx, env1.vfs, FilesystemOptions{Name: "fs2", CacheMode: CacheModePermanent})
	env3 := newTestEnvIn(t, env1.ctx, env1.vfs, FilesystemOptions{Name: "fs3", CacheMode: CacheModePermanent})
	ctx := env1.ctx
	m1 := newTestMount(t, env1, 0)
	m2 := newTestMount(t, env2, 0)
	m3 := newTestMount(t, env3, 0)

	dir, err := env1.root.CreateDir(ctx, "mnt")
	if err != nil {
		t.Fatalf("CreateDir failed: %v", err)
	}
	defer dir.DecRef(ctx)
	at := MakeNamespaceNode(m1, dir)
	if err := env1.vfs.AttachMount(ctx, m2, at); err != nil {
		t.Fatalf("AttachMount(m2) failed: %v", err)
	}
	if err := env1.vfs.AttachMount(ctx, m3, at); err != nil {
		t.Fatalf("AttachMount(m3) failed: %v", err)
	}
	if err := env1.vfs.AttachMount(ctx, m3, at); !linuxerr.Equals(linuxerr.EBUSY, err) {
		t.Errorf("AttachMount of an attached mount: got error %v, want EBUSY", err)
	}

	root1 := m1.Root()
	defer root1.DecRef(ctx)
	n, err := root1.LookupChild(ctx, "mnt")
	if err != nil {
		t.Fatalf("LookupChild failed: %v", err)
	}
	if n.Mount().Mount() != m3 || n.Entry() != env3.root {
		t.Errorf("LookupChild entered (%v, %v), want (%v, %v)", n.Mount().Mount(), n.Entry(), m3, env3.root)
	}
	if got := n.Path(ctx); got != "/mnt" {
		t.Errorf("Path: got %q, want %q", got, "/mnt")
	}
	escaped := n.EscapeMount(ctx)
	if !escaped.Equal(at) {
		t.Errorf("EscapeMount: got (%v, %v), want (%v, %v)", escaped.Mount().Mount(), escaped.Entry(), m1, dir)
	}
	escaped.DecRef(ctx)
	n.DecRef(ctx)

	if err := env1.vfs.DetachMount(ctx, m2); !linuxerr.Equals(linuxerr.EBUSY, err) {
		t.Errorf("DetachMount of a covered mount: got error %v, want EBUSY", err)
	}
	if err := env1.vfs.DetachMount(ctx, m3); err != nil {
		t.Fatalf("DetachMount(m3) failed: %v", err)
	}
	if err := env1.vfs.DetachMount(ctx, m2); err != nil {
		t.Fatalf("DetachMount(m2) failed: %v", err)
	}
}

func TestMountpointParentIsWeak(t *testing.T) {
	env1 := newTestEnv(t, FilesystemOptions{CacheMode: CacheModePermanent})
	env2 := newTestEnvIn(t, env1.ctx, env1.vfs, FilesystemOptions{Name: "fs2", CacheMode: CacheModePermanent})
	ctx := env1.ctx
	m1 := NewMount(MountFilesystem(env1.fs), 0)
	m2 := newTestMount(t, env2, 0)

	dir, err := env1.root.CreateDir(ctx, "mnt")
	if err != nil {
		t.Fatalf("CreateDir failed: %v", err)
	}
	defer dir.DecRef(ctx)
	if err := env1.vfs.AttachMount(ctx, m2, MakeNamespaceNode(m1, dir)); err != nil {
		t.Fatalf("AttachMount failed: %v", err)
	}

	m1.DecRef(ctx)
	if mp, ok := m2.Mountpoint(); ok {
		mp.DecRef(ctx)
		t.Errorf("Mountpoint upgraded a released parent mount")
	}
	if err := env1.vfs.DetachMount(ctx, m2); err != nil {
		t.Fatalf("DetachMount failed: %v", err)
	}
}

func TestAttachMountErrors(t *testing.T) {
	env := newTestEnv(t, FilesystemOptions{CacheMode: CacheModePermanent})
	ctx := env.ctx
	m1 := newTestMount(t, env, 0)
	m2 := newTestMount(t, env, 0)

	f, err := env.root.CreateEntry(ctx, DetachedMountInfo(), "f", fileCreator)
	if err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}
	defer f.DecRef(ctx)
	if err := env.vfs.AttachMount(ctx, m2, MakeNamespaceNode(m1, f)); !linuxerr.Equals(linuxerr.ENOTDIR, err) {
		t.Errorf("AttachMount on a file: got error %v, want ENOTDIR", err)
	}
	if err := env.vfs.AttachMount(ctx, m2, NewAnonymousNamespaceNode(env.root)); !linuxerr.Equals(linuxerr.EINVAL, err) {
		t.Errorf("AttachMount on a detached node: got error %v, want EINVAL", err)
	}

	other := NewVirtualFilesystem(VirtualFilesystemOptions{})
	if err := other.AttachMount(ctx, m2, MakeNamespaceNode(m1, env.root)); !linuxerr.Equals(linuxerr.EINVAL, err) {
		t.Errorf("AttachMount through another VirtualFilesystem: got error %v, want EINVAL", err)
	}
}

func TestBindMount(t *testing.T) {
	env := newTestEnv(t, FilesystemOptions{CacheMode: CacheModePermanent})
	ctx := env.ctx
	m1 := newTestMount(t, env, 0)
	sub, err := env.root.CreateDir(ctx, "sub")
	if err != nil {
		t.Fatalf("CreateDir failed: %v", err)
	}
	defer sub.DecRef(ctx)

	bind := NewMount(MountBind(MakeNamespaceNode(m1, sub)), MountReadOnly)
	defer bind.DecRef(ctx)
	if bind.Filesystem() != env.fs {
		t.Errorf("bind mount Filesystem: got %v, want %v", bind.Filesystem().Name(), env.fs.Name())
	}
	if bind.ID() == m1.ID() {
		t.Errorf("bind mount reused ID %d", bind.ID())
	}
	root := bind.Root()
	defer root.DecRef(ctx)
	if root.Entry() != sub {
		t.Errorf("bind mount root: got %v, want %v", root.Entry(), sub)
	}
	if _, err := root.CreateNode(ctx, "x", fileCreator); !linuxerr.Equals(linuxerr.EROFS, err) {
		t.Errorf("CreateNode on a read-only bind: got error %v, want EROFS", err)
	}
	if _, err := root.OpenCreateNode(ctx, "x", fileCreator, false); !linuxerr.Equals(linuxerr.EROFS, err) {
		t.Errorf("OpenCreateNode on a read-only bind: got error %v, want EROFS", err)
	}
	if got := env.rootNode.creates.Load(); got != 1 {
		t.Errorf("got %d creates, want 1", got)
	}
}

func TestOpenCreateNode(t *testing.T) {
	env := newTestEnv(t, FilesystemOptions{CacheMode: CacheModePermanent})
	ctx := env.ctx
	root := newTestMount(t, env, 0).Root()
	defer root.DecRef(ctx)

	first, err := root.OpenCreateNode(ctx, "x", fileCreator, true)
	if err != nil {
		t.Fatalf("exclusive OpenCreateNode failed: %v", err)
	}
	defer first.DecRef(ctx)
	if _, err := root.OpenCreateNode(ctx, "x", fileCreator, true); !linuxerr.Equals(linuxerr.EEXIST, err) {
		t.Errorf("second exclusive OpenCreateNode: got error %v, want EEXIST", err)
	}
	second, err := root.OpenCreateNode(ctx, "x", fileCreator, false)
	if err != nil {
		t.Fatalf("OpenCreateNode failed: %v", err)
	}
	defer second.DecRef(ctx)
	if !second.Equal(first) {
		t.Errorf("OpenCreateNode returned (%v, %v), want (%v, %v)", second.Mount().Mount(), second.Entry(), first.Mount().Mount(), first.Entry())
	}
}

func TestLookupChild(t *testing.T) {
	env := newTestEnv(t, FilesystemOptions{CacheMode: CacheModePermanent})
	ctx := env.ctx
	root := newTestMount(t, env, 0).Root()
	defer root.DecRef(ctx)
	file, err := root.CreateNode(ctx, "f", fileCreator)
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	defer file.DecRef(ctx)

	for _, name := range []string{"", ".", ".."} {
		n, err := root.LookupChild(ctx, name)
		if err != nil {
			t.Errorf("LookupChild(%q) failed: %v", name, err)
			continue
		}
		if !n.Equal(root) {
			t.Errorf("LookupChild(%q) at the root: got %v, want the root", name, n.Entry())
		}
		n.DecRef(ctx)
	}

	for _, test := range []struct {
		from    NamespaceNode
		name    string
		wantErr *errors.Error
	}{
		{from: file, name: "x", wantErr: linuxerr.ENOTDIR},
		{from: root, name: strings.Repeat("y", 256), wantErr: linuxerr.ENAMETOOLONG},
		{from: root, name: "missing", wantErr: linuxerr.ENOENT},
		{from: root, name: "a/b", wantErr: linuxerr.EINVAL},
	} {
		if _, err := test.from.LookupChild(ctx, test.name); !linuxerr.Equals(test.wantErr, err) {
			t.Errorf("LookupChild(%.10q): got error %v, want %v", test.name, err, test.wantErr)
		}
	}

	n, err := root.LookupChild(ctx, "f")
	if err != nil {
		t.Fatalf("LookupChild(f) failed: %v", err)
	}
	defer n.DecRef(ctx)
	if !n.Equal(file) {
		t.Errorf("LookupChild(f): got %v, want %v", n.Entry(), file.Entry())
	}
}

func TestPathOfDeletedEntry(t *testing.T) {
	env := newTestEnv(t, FilesystemOptions{CacheMode: CacheModePermanent})
	ctx := env.ctx
	root := newTestMount(t, env, 0).Root()
	defer root.DecRef(ctx)
	n, err := root.CreateNode(ctx, "gone", dirCreator)
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	defer n.DecRef(ctx)
	if err := n.Entry().PrepareDelete(); err != nil {
		t.Fatalf("PrepareDelete failed: %v", err)
	}
	n.Entry().CommitDelete(ctx)
	if got, want := n.Path(ctx), "/gone (deleted)"; got != want {
		t.Errorf("Path: got %q, want %q", got, want)
	}
}

func TestAnonymousNamespaceNode(t *testing.T) {
	env := newTestEnv(t, FilesystemOptions{CacheMode: CacheModeUncached})
	ctx := env.ctx
	n := NewAnonymousUnrootedNamespaceNode(newTestDir(env.fs))
	defer n.DecRef(ctx)
	if !n.Ok() || !n.Mount().IsDetached() {
		t.Fatalf("got Ok %t, detached %t; want true, true", n.Ok(), n.Mount().IsDetached())
	}
	if got := n.Mount().Flags(); got != MountNoATime {
		t.Errorf("Flags: got %v, want %v", got, MountNoATime)
	}
	if _, err := n.MountIfRoot(); !linuxerr.Equals(linuxerr.EINVAL, err) {
		t.Errorf("MountIfRoot: got error %v, want EINVAL", err)
	}
	if got := n.Path(ctx); got != "/" {
		t.Errorf("Path: got %q, want %q", got, "/")
	}
	child, err := n.CreateNode(ctx, "d", dirCreator)
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	defer child.DecRef(ctx)
	if got := child.Path(ctx); got != "/d" {
		t.Errorf("Path: got %q, want %q", got, "/d")
	}
}

func TestMountFlagsString(t *testing.T) {
	for _, test := range []struct {
		flags MountFlags
		want  string
	}{
		{0, "rw"},
		{MountReadOnly, "ro"},
		{MountNoSUID | MountNoDev | MountNoExec, "rw,nosuid,nodev,noexec"},
		{MountReadOnly | MountRelATime, "ro,relatime"},
	} {
		if got := test.flags.String(); got != test.want {
			t.Errorf("MountFlags(%#x).String(): got %q, want %q", uint64(test.flags), got, test.want)
		}
	}
}
