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
	"gvisor.dev/gvisor/pkg/abi/linux"
	"gvisor.dev/gvisor/pkg/context"
)

// Node is a file in some Filesystem. DirEntry caches the result of resolving
// names to Nodes; Node implementations own everything else about the file.
//
// A directory Node is named by exactly one DirEntry. Other Nodes may be named
// by several DirEntries (hard links).
type Node interface {
	// Lookup returns the child of this directory named name. Lookup returns
	// ENOENT if no such child exists. Lookup is called with the directory's
	// children lock held, so it must not call back into the DirEntry of this
	// Node.
	Lookup(ctx context.Context, mount MountInfo, name string) (Node, error)

	// IsDir returns true if the Node is a directory.
	IsDir() bool

	// Filesystem returns the Filesystem that owns the Node.
	Filesystem() *Filesystem
}

// NodeCreator materializes a Node that Lookup could not find.
type NodeCreator interface {
	// CreateNode creates the child of parent named name. Like Node.Lookup it
	// runs with parent's children lock held.
	CreateNode(ctx context.Context, parent Node, mount MountInfo, name string) (Node, error)
}

// CreateNodeFunc adapts a function to NodeCreator.
type CreateNodeFunc func(ctx context.Context, parent Node, mount MountInfo, name string) (Node, error)

// CreateNode implements NodeCreator.CreateNode.
func (f CreateNodeFunc) CreateNode(ctx context.Context, parent Node, mount MountInfo, name string) (Node, error) {
	return f(ctx, parent, mount, name)
}

// DirEntryOps are per-entry operations that let a Filesystem check cached
// state against its backing store.
type DirEntryOps interface {
	// Revalidate returns false if the cached entry d no longer reflects the
	// backing store and must be looked up again.
	Revalidate(ctx context.Context, d *DirEntry) (bool, error)
}

// DefaultDirEntryOps considers every entry valid.
type DefaultDirEntryOps struct{}

// Revalidate implements DirEntryOps.Revalidate.
func (DefaultDirEntryOps) Revalidate(context.Context, *DirEntry) (bool, error) {
	return true, nil
}

// DirEntryOpsCreator is implemented by Nodes whose entries need their own
// DirEntryOps.
type DirEntryOpsCreator interface {
	NewDirEntryOps() DirEntryOps
}

// DirectoryMaker is implemented by directory Nodes that can create
// subdirectories.
type DirectoryMaker interface {
	Mkdir(ctx context.Context, mount MountInfo, name string, mode linux.FileMode) (Node, error)
}

func opsFor(node Node) DirEntryOps {
	if c, ok := node.(DirEntryOpsCreator); ok {
		return c.NewDirEntryOps()
	}
	return DefaultDirEntryOps{}
}
