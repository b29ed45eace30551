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
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/gvisor/pkg/context"
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
)

func createFiles(t *testing.T, env *testEnv, names ...string) {
	t.Helper()
	for _, name := range names {
		d, err := env.root.CreateEntry(env.ctx, DetachedMountInfo(), name, fileCreator)
		if err != nil {
			t.Fatalf("CreateEntry(%q) failed: %v", name, err)
		}
		d.DecRef(env.ctx)
	}
}

func TestLRUEvictsOldest(t *testing.T) {
	env := newTestEnv(t, FilesystemOptions{CacheMode: CacheModeCached, LRUCapacity: 2})
	evictions := cacheEvictions.Value()

	createFiles(t, env, "a", "b", "c")
	if got := env.fs.CachedEntries(); got != 2 {
		t.Errorf("CachedEntries: got %d, want 2", got)
	}
	if diff := cmp.Diff([]string{"b", "c"}, env.root.CopyChildNames(env.ctx)); diff != "" {
		t.Errorf("CopyChildNames mismatch (-want +got):\n%s", diff)
	}
	if got := cacheEvictions.Value() - evictions; got != 1 {
		t.Errorf("got %d evictions, want 1", got)
	}
}

func TestLRUTouchKeepsEntry(t *testing.T) {
	env := newTestEnv(t, FilesystemOptions{CacheMode: CacheModeCached, LRUCapacity: 2})
	createFiles(t, env, "a", "b")

	a, existed, err := env.root.GetOrCreateChild(env.ctx, DetachedMountInfo(), "a", fileCreator)
	if err != nil {
		t.Fatalf("GetOrCreateChild failed: %v", err)
	}
	a.DecRef(env.ctx)
	if !existed {
		t.Errorf("got existed = false, want true")
	}

	createFiles(t, env, "c")
	if diff := cmp.Diff([]string{"a", "c"}, env.root.CopyChildNames(env.ctx)); diff != "" {
		t.Errorf("CopyChildNames mismatch (-want +got):\n%s", diff)
	}
}

func TestLRUEvictionKeepsReferencedEntries(t *testing.T) {
	env := newTestEnv(t, FilesystemOptions{CacheMode: CacheModeCached, LRUCapacity: 1})
	held, err := env.root.CreateEntry(env.ctx, DetachedMountInfo(), "held", fileCreator)
	if err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}
	defer held.DecRef(env.ctx)

	createFiles(t, env, "x")
	if diff := cmp.Diff([]string{"held", "x"}, env.root.CopyChildNames(env.ctx)); diff != "" {
		t.Errorf("CopyChildNames mismatch (-want +got):\n%s", diff)
	}
	d, existed, err := env.root.GetOrCreateChild(env.ctx, DetachedMountInfo(), "held", fileCreator)
	if err != nil {
		t.Fatalf("GetOrCreateChild failed: %v", err)
	}
	defer d.DecRef(env.ctx)
	if d != held || !existed {
		t.Errorf("GetOrCreateChild: got (%v, %t), want (%v, true)", d, existed, held)
	}
}

func TestGlobalLimit(t *testing.T) {
	ctx := context.Background()
	vfs := NewVirtualFilesystem(VirtualFilesystemOptions{GlobalEntryLimit: 3})
	env1 := newTestEnvIn(t, ctx, vfs, FilesystemOptions{Name: "fs1", CacheMode: CacheModeCached, LRUCapacity: 10})
	env2 := newTestEnvIn(t, ctx, vfs, FilesystemOptions{Name: "fs2", CacheMode: CacheModeCached, LRUCapacity: 10})

	createFiles(t, env1, "a", "b", "c")
	if got := vfs.CacheLimiter().Count(); got != 3 {
		t.Errorf("limiter count: got %d, want 3", got)
	}

	// fs2 has nothing to give up, so its entry is not retained.
	createFiles(t, env2, "z")
	if got := env2.fs.CachedEntries(); got != 0 {
		t.Errorf("fs2 CachedEntries: got %d, want 0", got)
	}

	// fs1 makes room by evicting its own oldest entry.
	createFiles(t, env1, "d")
	if got := env1.fs.CachedEntries(); got != 3 {
		t.Errorf("fs1 CachedEntries: got %d, want 3", got)
	}
	if diff := cmp.Diff([]string{"b", "c", "d"}, env1.root.CopyChildNames(env1.ctx)); diff != "" {
		t.Errorf("CopyChildNames mismatch (-want +got):\n%s", diff)
	}
	if got := vfs.CacheLimiter().Count(); got != 3 {
		t.Errorf("limiter count: got %d, want 3", got)
	}

	env1.fs.Release(ctx)
	if got := vfs.CacheLimiter().Count(); got != 0 {
		t.Errorf("limiter count after Release: got %d, want 0", got)
	}
}

func TestPermanentCache(t *testing.T) {
	env := newTestEnv(t, FilesystemOptions{CacheMode: CacheModePermanent})
	var names []string
	for i := 0; i < 2*DefaultLRUCapacity; i++ {
		names = append(names, fmt.Sprintf("f%03d", i))
	}
	createFiles(t, env, names...)
	if diff := cmp.Diff(names, env.root.CopyChildNames(env.ctx)); diff != "" {
		t.Errorf("CopyChildNames mismatch (-want +got):\n%s", diff)
	}
	if got, want := env.fs.CachedEntries(), uint64(len(names)); got != want {
		t.Errorf("CachedEntries: got %d, want %d", got, want)
	}
	env.fs.PurgeOldEntries(env.ctx)
	if got, want := env.fs.CachedEntries(), uint64(len(names)); got != want {
		t.Errorf("CachedEntries after purge: got %d, want %d", got, want)
	}
}

func TestUncachedCache(t *testing.T) {
	env := newTestEnv(t, FilesystemOptions{CacheMode: CacheModeUncached})
	createFiles(t, env, "a", "b")
	if got := env.fs.CachedEntries(); got != 0 {
		t.Errorf("CachedEntries: got %d, want 0", got)
	}
	if names := env.root.CopyChildNames(env.ctx); len(names) != 0 {
		t.Errorf("got cached children %v, want none", names)
	}
}

func TestSetLRUCapacity(t *testing.T) {
	env := newTestEnv(t, FilesystemOptions{CacheMode: CacheModeCached})
	createFiles(t, env, "a", "b", "c", "d")
	if err := env.fs.SetLRUCapacity(env.ctx, 1); err != nil {
		t.Fatalf("SetLRUCapacity failed: %v", err)
	}
	if diff := cmp.Diff([]string{"d"}, env.root.CopyChildNames(env.ctx)); diff != "" {
		t.Errorf("CopyChildNames mismatch (-want +got):\n%s", diff)
	}

	perm := newTestEnv(t, FilesystemOptions{CacheMode: CacheModePermanent})
	if err := perm.fs.SetLRUCapacity(perm.ctx, 1); !linuxerr.Equals(linuxerr.EINVAL, err) {
		t.Errorf("SetLRUCapacity on a permanent cache: got error %v, want EINVAL", err)
	}
}

func TestParseCacheMode(t *testing.T) {
	for _, test := range []struct {
		in      string
		want    CacheMode
		wantErr bool
	}{
		{in: "permanent", want: CacheModePermanent},
		{in: "cached", want: CacheModeCached},
		{in: "lru", want: CacheModeCached},
		{in: "uncached", want: CacheModeUncached},
		{in: "sometimes", wantErr: true},
	} {
		got, err := ParseCacheMode(test.in)
		if (err != nil) != test.wantErr {
			t.Errorf("ParseCacheMode(%q): got error %v, want error: %t", test.in, err, test.wantErr)
			continue
		}
		if err == nil && got != test.want {
			t.Errorf("ParseCacheMode(%q): got %v, want %v", test.in, got, test.want)
		}
	}
}

func TestLimiterUnderflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("dec on an empty limiter did not panic")
		}
	}()
	NewDirEntryCacheLimiter(1).dec()
}
