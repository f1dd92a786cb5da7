// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/igutekunst/clydepm"
)

type resolveCommand struct {
	dot bool
}

func (c *resolveCommand) Name() string      { return "resolve" }
func (c *resolveCommand) Args() string      { return "[path]" }
func (c *resolveCommand) ShortHelp() string { return "Resolve and print the dependency graph" }
func (c *resolveCommand) LongHelp() string {
	return `Resolve materializes the project's transitive dependency graph without
building anything, and prints it; -dot emits Graphviz DOT for
inspection tooling.`
}

func (c *resolveCommand) Register(fs *flag.FlagSet) {
	fs.BoolVar(&c.dot, "dot", false, "print the graph in Graphviz DOT form")
}

func (c *resolveCommand) Run(args []string) error {
	log := newLogger()
	ctx, err := clydepm.NewContext(log)
	if err != nil {
		return err
	}
	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	root, err := ctx.LoadProject(path)
	if err != nil {
		return err
	}
	reg, err := registryFromEnv(ctx.Fs)
	if err != nil {
		return err
	}
	g, err := ctx.Resolver(reg).Resolve(context.Background(), root)
	if err != nil {
		return err
	}

	if c.dot {
		fmt.Println(g.Dot())
		return nil
	}
	for _, id := range g.TopoOrder() {
		p := g.Package(id)
		fmt.Printf("%s (%s)\n", p.ID(), p.Origin)
		for _, dep := range g.Dependencies(id) {
			fmt.Printf("  -> %s\n", g.Package(dep).ID())
		}
	}
	return nil
}
