// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"runtime"
)

var (
	// VERSION indicates which version of the binary is running.
	VERSION = "devel"

	// GITCOMMIT indicates which git hash the binary was built off of.
	GITCOMMIT string
)

type versionCommand struct{}

func (c *versionCommand) Name() string      { return "version" }
func (c *versionCommand) Args() string      { return "" }
func (c *versionCommand) ShortHelp() string { return "Print the version" }
func (c *versionCommand) LongHelp() string {
	return `Version prints the version, git commit, runtime OS and ARCH.`
}
func (c *versionCommand) Register(*flag.FlagSet) {}

func (c *versionCommand) Run([]string) error {
	fmt.Printf("clyde version %s %s %s/%s\n", VERSION, GITCOMMIT, runtime.GOOS, runtime.GOARCH)
	return nil
}
