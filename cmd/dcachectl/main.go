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

// Binary dcachectl exercises the directory entry cache and mount layer.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"gvisor.dev/gvisor/pkg/log"
)

var configPath = flag.String("config", "", "path to a TOML config file.")

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(Stress), "")
	subcommands.Register(new(Walk), "")

	// Flag values only matter when set explicitly; see applyFlags.
	defaultConfig().RegisterFlags(flag.CommandLine)
	flag.Parse()

	conf, err := loadConfig(*configPath)
	if err != nil {
		fatalf("%v", err)
	}
	if err := applyFlags(conf, flag.CommandLine); err != nil {
		fatalf("%v", err)
	}
	if err := conf.Validate(); err != nil {
		fatalf("invalid configuration: %v", err)
	}

	level, _ := conf.level()
	log.SetLevel(level)
	log.SetTarget(newEmitter(conf.LogFormat))
	log.Debugf("dcachectl configuration: %+v", conf)

	os.Exit(int(subcommands.Execute(context.Background(), conf)))
}

func newEmitter(format string) log.Emitter {
	w := &log.Writer{Next: os.Stderr}
	switch format {
	case "json":
		return log.JSONEmitter{Writer: w}
	default:
		return log.GoogleEmitter{Writer: w}
	}
}

// fatalf logs to stderr and exits with a failure status.
func fatalf(s string, args ...any) {
	fmt.Fprintf(os.Stderr, "dcachectl: "+s+"\n", args...)
	os.Exit(1)
}
