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
	"testing"

	"gvisor.dev/gvisor/pkg/abi/linux"
	"gvisor.dev/gvisor/pkg/atomicbitops"
	"gvisor.dev/gvisor/pkg/context"
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
	"gvisor.dev/gvisor/pkg/sync"
)

// testNode is a minimal in-memory Node that counts calls into it.
type testNode struct {
	fs  *Filesystem
	dir bool

	// stale makes Revalidate fail for entries naming this node.
	stale atomicbitops.Bool

	lookups atomicbitops.Int32
	creates atomicbitops.Int32

	mu        sync.Mutex
	children  map[string]*testNode
	lookupErr error
}

func newTestDir(fs *Filesystem) *testNode {
	return &testNode{fs: fs, dir: true, children: make(map[string]*testNode)}
}

func newTestFile(fs *Filesystem) *testNode {
	return &testNode{fs: fs}
}

// Lookup implements Node.Lookup.
func (n *testNode) Lookup(ctx context.Context, mount MountInfo, name string) (Node, error) {
	n.lookups.Add(1)
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.lookupErr != nil {
		return nil, n.lookupErr
	}
	child, ok := n.children[name]
	if !ok {
		return nil, linuxerr.ENOENT
	}
	return child, nil
}

// IsDir implements Node.IsDir.
func (n *testNode) IsDir() bool {
	return n.dir
}

// Filesystem implements Node.Filesystem.
func (n *testNode) Filesystem() *Filesystem {
	return n.fs
}

// Mkdir implements DirectoryMaker.Mkdir.
func (n *testNode) Mkdir(ctx context.Context, mount MountInfo, name string, mode linux.FileMode) (Node, error) {
	n.creates.Add(1)
	child := newTestDir(n.fs)
	n.put(name, child)
	return child, nil
}

// NewDirEntryOps implements DirEntryOpsCreator.NewDirEntryOps.
func (n *testNode) NewDirEntryOps() DirEntryOps {
	return testOps{}
}

func (n *testNode) put(name string, child *testNode) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.children[name] = child
}

func (n *testNode) setLookupErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lookupErr = err
}

// testOps reports entries of stale nodes as invalid.
type testOps struct{}

// Revalidate implements DirEntryOps.Revalidate.
func (testOps) Revalidate(ctx context.Context, d *DirEntry) (bool, error) {
	return !d.Node().(*testNode).stale.Load(), nil
}

// fileCreator creates regular files.
var fileCreator = CreateNodeFunc(func(ctx context.Context, parent Node, mount MountInfo, name string) (Node, error) {
	p := parent.(*testNode)
	p.creates.Add(1)
	child := newTestFile(p.fs)
	p.put(name, child)
	return child, nil
})

// dirCreator creates directories.
var dirCreator = CreateNodeFunc(func(ctx context.Context, parent Node, mount MountInfo, name string) (Node, error) {
	return parent.(*testNode).Mkdir(ctx, mount, name, linux.ModeDirectory|0755)
})

type testEnv struct {
	ctx      context.Context
	vfs      *VirtualFilesystem
	fs       *Filesystem
	rootNode *testNode
	root     *DirEntry
}

func newTestEnv(t *testing.T, opts FilesystemOptions) *testEnv {
	t.Helper()
	ctx := context.Background()
	vfs := NewVirtualFilesystem(VirtualFilesystemOptions{})
	return newTestEnvIn(t, ctx, vfs, opts)
}

func newTestEnvIn(t *testing.T, ctx context.Context, vfs *VirtualFilesystem, opts FilesystemOptions) *testEnv {
	t.Helper()
	if opts.Name == "" {
		opts.Name = "testfs"
	}
	fs := vfs.NewFilesystem(opts)
	rootNode := newTestDir(fs)
	fs.SetRoot(NewUnrootedDirEntry(rootNode))
	t.Cleanup(func() { fs.Release(ctx) })
	return &testEnv{
		ctx:      ctx,
		vfs:      vfs,
		fs:       fs,
		rootNode: rootNode,
		root:     fs.Root(),
	}
}
