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
	goContext "context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"gvisor.dev/dcache/pkg/sentry/fsimpl/hostfs"
	"gvisor.dev/dcache/pkg/sentry/vfs"
	"gvisor.dev/gvisor/pkg/context"
	"gvisor.dev/gvisor/pkg/fspath"
	"gvisor.dev/gvisor/pkg/log"
)

// Walk implements subcommands.Command for the "walk" command.
type Walk struct {
	root   string
	repeat int
}

// Name implements subcommands.Command.Name.
func (*Walk) Name() string {
	return "walk"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Walk) Synopsis() string {
	return "resolve paths in a host directory through the entry cache"
}

// Usage implements subcommands.Command.Usage.
func (*Walk) Usage() string {
	return `walk -root <host dir> [flags] <path>... - mount a host directory and resolve each path in it.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (w *Walk) SetFlags(f *flag.FlagSet) {
	f.StringVar(&w.root, "root", "", "host directory to mount.")
	f.IntVar(&w.repeat, "repeat", 1, "number of times to resolve every path.")
}

// Execute implements subcommands.Command.Execute.
func (w *Walk) Execute(_ goContext.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	ctx := context.Background()
	if w.root == "" || f.NArg() == 0 || w.repeat <= 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*Config)

	vfsObj := conf.newVirtualFilesystem()
	fs, err := hostfs.NewFilesystem(vfsObj, hostfs.Options{
		Root:        w.root,
		CacheMode:   conf.cacheMode(),
		LRUCapacity: conf.CacheCapacity,
	})
	if err != nil {
		fmt.Printf("mounting %q: %v\n", w.root, err)
		return subcommands.ExitFailure
	}
	defer fs.Release(ctx)
	mnt := vfs.NewMount(vfs.MountFilesystem(fs), vfs.MountReadOnly)
	defer mnt.DecRef(ctx)
	root := mnt.Root()
	defer root.DecRef(ctx)

	before := vfs.ReadCacheStats()
	status := subcommands.ExitSuccess
	for i := 0; i < w.repeat; i++ {
		for _, p := range f.Args() {
			n, err := resolve(ctx, root, p)
			if err != nil {
				fmt.Printf("%s: %v\n", p, err)
				status = subcommands.ExitFailure
				continue
			}
			if i == 0 {
				describe(ctx, p, n)
			}
			n.DecRef(ctx)
		}
	}
	fmt.Printf("cached_entries=%d\n", fs.CachedEntries())
	printStats(before, vfs.ReadCacheStats())
	return status
}

// resolve walks p from root one component at a time. The caller owns the
// returned reference.
func resolve(ctx context.Context, root vfs.NamespaceNode, p string) (vfs.NamespaceNode, error) {
	n := root
	n.IncRef()
	for it := fspath.Parse(p).Begin; it.Ok(); it = it.Next() {
		child, err := n.LookupChild(ctx, it.String())
		n.DecRef(ctx)
		if err != nil {
			return vfs.NamespaceNode{}, err
		}
		n = child
	}
	log.Debugf("walk: %q resolved to %v", p, n.Entry())
	return n, nil
}

func describe(ctx context.Context, p string, n vfs.NamespaceNode) {
	kind := "file"
	if n.Entry().Node().IsDir() {
		kind = "dir"
	}
	st, err := hostfs.StatNode(n.Entry().Node())
	if err != nil {
		fmt.Printf("%s -> %s (%s)\n", p, n.Path(ctx), kind)
		return
	}
	fmt.Printf("%s -> %s (%s, dev=%d ino=%d host=%s)\n", p, n.Path(ctx), kind, st.Dev, st.Ino, st.Path)
}
