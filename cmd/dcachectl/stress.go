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
	"golang.org/x/sync/errgroup"
	"gvisor.dev/dcache/pkg/sentry/fsimpl/memfs"
	"gvisor.dev/dcache/pkg/sentry/vfs"
	"gvisor.dev/gvisor/pkg/abi/linux"
	"gvisor.dev/gvisor/pkg/context"
	"gvisor.dev/gvisor/pkg/log"
)

// Stress implements subcommands.Command for the "stress" command.
type Stress struct {
	goroutines int
	names      int
	rounds     int
}

// Name implements subcommands.Command.Name.
func (*Stress) Name() string {
	return "stress"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stress) Synopsis() string {
	return "race concurrent get-or-create calls on an in-memory filesystem"
}

// Usage implements subcommands.Command.Usage.
func (*Stress) Usage() string {
	return `stress [flags] - create the same names from many goroutines and check that every caller sees one entry per name.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Stress) SetFlags(f *flag.FlagSet) {
	f.IntVar(&s.goroutines, "goroutines", 0, "concurrent callers per round, overrides the config file.")
	f.IntVar(&s.names, "names", 0, "names created per round, overrides the config file.")
	f.IntVar(&s.rounds, "rounds", 0, "number of rounds, overrides the config file.")
}

// Execute implements subcommands.Command.Execute.
func (s *Stress) Execute(_ goContext.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	ctx := context.Background()
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*Config)
	sc := conf.Stress
	if s.goroutines > 0 {
		sc.Goroutines = s.goroutines
	}
	if s.names > 0 {
		sc.Names = s.names
	}
	if s.rounds > 0 {
		sc.Rounds = s.rounds
	}

	before := vfs.ReadCacheStats()
	res, err := runStress(ctx, conf.newVirtualFilesystem(), sc)
	if err != nil {
		log.Warningf("stress failed: %v", err)
		fmt.Printf("FAIL: %v\n", err)
		return subcommands.ExitFailure
	}
	after := vfs.ReadCacheStats()
	fmt.Printf("rounds=%d entries=%d removed=%d\n", sc.Rounds, res.entries, res.removed)
	printStats(before, after)
	return subcommands.ExitSuccess
}

// stressResult summarizes a runStress call.
type stressResult struct {
	// entries is the number of distinct entries observed.
	entries int

	// removed is the number of directories removed between rounds.
	removed int
}

// runStress runs sc.Rounds rounds. In each round sc.Goroutines goroutines
// get-or-create the same sc.Names directories, and every name must resolve
// to a single entry for all of them. Odd rounds then remove their
// directories again.
func runStress(ctx context.Context, vfsObj *vfs.VirtualFilesystem, sc StressConfig) (stressResult, error) {
	fs := memfs.NewFilesystem(vfsObj, "stress", 0777)
	defer fs.Release(ctx)
	mnt := vfs.NewMount(vfs.MountFilesystem(fs), 0)
	defer mnt.DecRef(ctx)
	root := mnt.Root()
	defer root.DecRef(ctx)

	var res stressResult
	mkdir := memfs.MkdirCreator(linux.ModeDirectory | 0755)
	for round := 0; round < sc.Rounds; round++ {
		seen := make([][]vfs.NamespaceNode, sc.Goroutines)
		var g errgroup.Group
		for i := range seen {
			seen[i] = make([]vfs.NamespaceNode, sc.Names)
			row := seen[i]
			g.Go(func() error {
				for k := range row {
					// Each goroutine starts at a different name.
					k = (k + i) % len(row)
					n, err := root.OpenCreateNode(ctx, stressName(round, k), mkdir, false /* exclusive */)
					if err != nil {
						return fmt.Errorf("get-or-create %q: %w", stressName(round, k), err)
					}
					row[k] = n
				}
				return nil
			})
		}
		err := g.Wait()
		if err == nil {
			err = checkCoherent(seen)
		}
		for _, row := range seen {
			for _, n := range row {
				if n.Ok() {
					n.DecRef(ctx)
				}
			}
		}
		if err != nil {
			return res, fmt.Errorf("round %d: %w", round, err)
		}
		res.entries += sc.Names

		if round%2 == 1 {
			for k := 0; k < sc.Names; k++ {
				if err := memfs.Rmdir(ctx, root, stressName(round, k)); err != nil {
					return res, fmt.Errorf("round %d: rmdir %q: %w", round, stressName(round, k), err)
				}
				res.removed++
			}
		}
		log.Infof("stress round %d done: %d names, %d goroutines", round, sc.Names, sc.Goroutines)
	}

	names, err := memfs.ReadDir(root.Entry().Node())
	if err != nil {
		return res, err
	}
	if want := res.entries - res.removed; len(names) != want {
		return res, fmt.Errorf("root lists %d names, want %d", len(names), want)
	}
	return res, nil
}

// checkCoherent returns an error unless every row of seen names the same
// entries.
func checkCoherent(seen [][]vfs.NamespaceNode) error {
	for i := 1; i < len(seen); i++ {
		for k, n := range seen[i] {
			if !n.Equal(seen[0][k]) {
				return fmt.Errorf("goroutines 0 and %d resolved name %d to different entries: %v, %v", i, k, seen[0][k].Entry(), n.Entry())
			}
		}
	}
	return nil
}

func stressName(round, k int) string {
	return fmt.Sprintf("r%d-%d", round, k)
}

func printStats(before, after vfs.CacheStats) {
	fmt.Printf("hits=%d misses=%d created=%d revalidation_failures=%d evictions=%d\n",
		after.Hits-before.Hits,
		after.Misses-before.Misses,
		after.Created-before.Created,
		after.RevalidationFailures-before.RevalidationFailures,
		after.Evictions-before.Evictions)
}
