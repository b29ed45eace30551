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

	"gvisor.dev/gvisor/pkg/abi/linux"
	"gvisor.dev/gvisor/pkg/errors/linuxerr"
)

// IsReservedName returns true if name may not name a cached child: the
// empty string, "." and "..".
func IsReservedName(name string) bool {
	return name == "" || name == "." || name == ".."
}

// checkChildName validates name as a single path component handed to
// GetOrCreateChild.
func checkChildName(name string) error {
	if IsReservedName(name) || strings.IndexByte(name, '/') >= 0 {
		return linuxerr.EINVAL
	}
	if len(name) > linux.NAME_MAX {
		return linuxerr.ENAMETOOLONG
	}
	return nil
}

// checkCreateName validates name for CreateEntry and GetOrCreateEntry.
// Reserved names always exist, so they fail with EEXIST before anything
// else is checked.
func checkCreateName(name string) error {
	if IsReservedName(name) {
		return linuxerr.EEXIST
	}
	if len(name) > linux.NAME_MAX {
		return linuxerr.ENAMETOOLONG
	}
	if strings.IndexByte(name, '/') >= 0 {
		return linuxerr.EINVAL
	}
	return nil
}
