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
	"flag"
	"fmt"

	"github.com/BurntSushi/toml"
	"gvisor.dev/dcache/pkg/sentry/vfs"
	"gvisor.dev/gvisor/pkg/log"
)

// Config holds dcachectl settings. It is read from a TOML file and then
// overridden by flags given on the command line.
type Config struct {
	// LogLevel is one of "warning", "info" or "debug".
	LogLevel string `toml:"log_level"`

	// LogFormat is "text" or "json".
	LogFormat string `toml:"log_format"`

	// CacheMode is the entry cache policy of host filesystems, in the form
	// accepted by vfs.ParseCacheMode.
	CacheMode string `toml:"cache_mode"`

	// CacheCapacity is the LRU capacity of a cached filesystem. Zero selects
	// vfs.DefaultLRUCapacity.
	CacheCapacity uint64 `toml:"cache_capacity"`

	// GlobalEntryLimit bounds the entries held by all LRU caches. Zero means
	// no limit.
	GlobalEntryLimit uint64 `toml:"global_entry_limit"`

	Stress StressConfig `toml:"stress"`
}

// StressConfig configures the stress command.
type StressConfig struct {
	// Goroutines is the number of concurrent callers per round.
	Goroutines int `toml:"goroutines"`

	// Names is the number of distinct names each round creates.
	Names int `toml:"names"`

	// Rounds is the number of rounds to run.
	Rounds int `toml:"rounds"`
}

func defaultConfig() *Config {
	return &Config{
		LogLevel:  "warning",
		LogFormat: "text",
		CacheMode: vfs.CacheModeCached.String(),
		Stress: StressConfig{
			Goroutines: 16,
			Names:      64,
			Rounds:     4,
		},
	}
}

// loadConfig reads the config file at path on top of the defaults. An empty
// path yields the defaults.
func loadConfig(path string) (*Config, error) {
	c := defaultConfig()
	if path == "" {
		return c, nil
	}
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		log.Warningf("Ignoring unknown config key %q in %q", key.String(), path)
	}
	return c, nil
}

// RegisterFlags registers flags that override c. Flags default to the
// values already in c.
func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: warning, info or debug.")
	f.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format: text or json.")
	f.StringVar(&c.CacheMode, "cache-mode", c.CacheMode, "entry cache policy: permanent, cached or uncached.")
	f.Uint64Var(&c.CacheCapacity, "cache-capacity", c.CacheCapacity, "LRU capacity of cached filesystems, 0 for the default.")
	f.Uint64Var(&c.GlobalEntryLimit, "global-entry-limit", c.GlobalEntryLimit, "limit on entries held by all LRU caches, 0 for none.")
}

// Validate checks that c can be used.
func (c *Config) Validate() error {
	if _, err := c.level(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", c.LogFormat)
	}
	if _, err := vfs.ParseCacheMode(c.CacheMode); err != nil {
		return err
	}
	if c.Stress.Goroutines <= 0 || c.Stress.Names <= 0 || c.Stress.Rounds <= 0 {
		return fmt.Errorf("stress goroutines, names and rounds must be positive, got %+v", c.Stress)
	}
	return nil
}

func (c *Config) level() (log.Level, error) {
	switch c.LogLevel {
	case "warning":
		return log.Warning, nil
	case "info":
		return log.Info, nil
	case "debug":
		return log.Debug, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
}

// cacheMode returns the parsed CacheMode. c must have been validated.
func (c *Config) cacheMode() vfs.CacheMode {
	m, err := vfs.ParseCacheMode(c.CacheMode)
	if err != nil {
		panic(err)
	}
	return m
}

// newVirtualFilesystem returns a VirtualFilesystem configured by c.
func (c *Config) newVirtualFilesystem() *vfs.VirtualFilesystem {
	return vfs.NewVirtualFilesystem(vfs.VirtualFilesystemOptions{
		GlobalEntryLimit: c.GlobalEntryLimit,
	})
}

// applyFlags copies the config flags explicitly set in set onto c, so that
// they take precedence over the config file.
func applyFlags(c *Config, set *flag.FlagSet) error {
	overrides := flag.NewFlagSet("overrides", flag.ContinueOnError)
	c.RegisterFlags(overrides)
	var err error
	set.Visit(func(f *flag.Flag) {
		if err != nil || overrides.Lookup(f.Name) == nil {
			return
		}
		err = overrides.Set(f.Name, f.Value.String())
	})
	return err
}
