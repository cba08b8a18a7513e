package main

import (
	"os"

	"github.com/mit-pdos/go-nachos/kernel"
	"github.com/mit-pdos/go-nachos/util"
)

func main() {
	opts := kernel.ParseArgs(os.Args[1:])
	util.Debug = opts.Debug

	// The CPU simulator is wired in by builds that ship one; filesystem
	// utility runs (-format, -put, -ls, ...) do not need it.
	k := kernel.New(opts, nil)
	k.Initialize()
	k.Run()
}
