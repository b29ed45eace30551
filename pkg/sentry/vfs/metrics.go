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
	"gvisor.dev/gvisor/pkg/metric"
)

// Metrics for the entry cache.
var (
	cacheHits            = metric.MustCreateNewUint64Metric("/vfs/dcache/hits", false /* sync */, "Number of child lookups satisfied by a cached entry.")
	cacheMisses          = metric.MustCreateNewUint64Metric("/vfs/dcache/misses", false /* sync */, "Number of child lookups that consulted the filesystem.")
	entriesCreated       = metric.MustCreateNewUint64Metric("/vfs/dcache/created", false /* sync */, "Number of children created by a lookup.")
	revalidationFailures = metric.MustCreateNewUint64Metric("/vfs/dcache/revalidation_failures", false /* sync */, "Number of cached entries found stale.")
	cacheEvictions       = metric.MustCreateNewUint64Metric("/vfs/dcache/evictions", false /* sync */, "Number of entries released by an LRU cache.")
)

// CacheStats is a snapshot of the entry cache counters.
type CacheStats struct {
	Hits                 uint64
	Misses               uint64
	Created              uint64
	RevalidationFailures uint64
	Evictions            uint64
}

// ReadCacheStats returns the current counter values.
func ReadCacheStats() CacheStats {
	return CacheStats{
		Hits:                 cacheHits.Value(),
		Misses:               cacheMisses.Value(),
		Created:              entriesCreated.Value(),
		RevalidationFailures: revalidationFailures.Value(),
		Evictions:            cacheEvictions.Value(),
	}
}
