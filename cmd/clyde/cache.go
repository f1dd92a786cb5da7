// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/igutekunst/clydepm"
	"github.com/igutekunst/clydepm/cache"
)

type cacheCommand struct {
	clean bool
}

func (c *cacheCommand) Name() string      { return "cache" }
func (c *cacheCommand) Args() string      { return "[-clean]" }
func (c *cacheCommand) ShortHelp() string { return "List or clean the build cache" }
func (c *cacheCommand) LongHelp() string {
	return `Cache lists the object and artifact tiers of the content-addressed
build cache. With -clean, every entry is evicted; eviction takes an
exclusive lock on the cache root.`
}

func (c *cacheCommand) Register(fs *flag.FlagSet) {
	fs.BoolVar(&c.clean, "clean", false, "evict every cache entry")
}

func (c *cacheCommand) Run(args []string) error {
	ctx, err := clydepm.NewContext(newLogger())
	if err != nil {
		return err
	}
	store, err := ctx.OpenCache()
	if err != nil {
		return err
	}

	if c.clean {
		n, err := store.Evict(nil)
		if err != nil {
			return err
		}
		fmt.Printf("evicted %d entries from %s\n", n, store.Root())
		return nil
	}

	entries, err := store.Enumerate(nil)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIER\tKEY\tSIZE")
	var objects, artifacts int
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\n", e.Tier, e.Key, e.Size)
		if e.Tier == cache.ObjectTier {
			objects++
		} else {
			artifacts++
		}
	}
	w.Flush()
	fmt.Printf("%d objects, %d artifacts under %s\n", objects, artifacts, store.Root())
	return nil
}
