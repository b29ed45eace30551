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

package main

import (
	"testing"

	"gvisor.dev/dcache/pkg/sentry/vfs"
	"gvisor.dev/gvisor/pkg/context"
)

func TestRunStress(t *testing.T) {
	sc := StressConfig{Goroutines: 8, Names: 16, Rounds: 3}
	vfsObj := vfs.NewVirtualFilesystem(vfs.VirtualFilesystemOptions{})
	res, err := runStress(context.Background(), vfsObj, sc)
	if err != nil {
		t.Fatalf("runStress failed: %v", err)
	}
	if got, want := res.entries, sc.Names*sc.Rounds; got != want {
		t.Errorf("entries: got %d, want %d", got, want)
	}
	// Only round 1 removes its names.
	if got, want := res.removed, sc.Names; got != want {
		t.Errorf("removed: got %d, want %d", got, want)
	}
}

func TestCheckCoherent(t *testing.T) {
	ctx := context.Background()
	vfsObj := vfs.NewVirtualFilesystem(vfs.VirtualFilesystemOptions{})
	fs := vfsObj.NewFilesystem(vfs.FilesystemOptions{Name: "test", CacheMode: vfs.CacheModeUncached})
	a := vfs.NewAnonymousUnrootedNamespaceNode(dummyNode{fs})
	defer a.DecRef(ctx)
	b := vfs.NewAnonymousUnrootedNamespaceNode(dummyNode{fs})
	defer b.DecRef(ctx)

	if err := checkCoherent([][]vfs.NamespaceNode{{a}, {a}}); err != nil {
		t.Errorf("checkCoherent of equal rows: %v", err)
	}
	if err := checkCoherent([][]vfs.NamespaceNode{{a}, {b}}); err == nil {
		t.Errorf("checkCoherent of different rows succeeded")
	}
}

type dummyNode struct {
	fs *vfs.Filesystem
}

func (dummyNode) Lookup(context.Context, vfs.MountInfo, string) (vfs.Node, error) {
	return nil, nil
}

func (dummyNode) IsDir() bool {
	return false
}

func (n dummyNode) Filesystem() *vfs.Filesystem {
	return n.fs
}
