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

	"gvisor.dev/gvisor/pkg/sync"
)

// DirEntryCacheLimiter bounds the number of entries held by all LRU caches
// that share it.
type DirEntryCacheLimiter struct {
	mu    sync.Mutex
	max   uint64
	count uint64
}

// NewDirEntryCacheLimiter returns a limiter admitting at most max entries.
func NewDirEntryCacheLimiter(max uint64) *DirEntryCacheLimiter {
	return &DirEntryCacheLimiter{max: max}
}

// Count returns the number of entries currently charged to l.
func (l *DirEntryCacheLimiter) Count() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func (l *DirEntryCacheLimiter) tryInc() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count >= l.max {
		return false
	}
	l.count++
	return true
}

func (l *DirEntryCacheLimiter) dec() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 {
		panic(fmt.Sprintf("underflowing DirEntryCacheLimiter count: max %d", l.max))
	}
	l.count--
}
