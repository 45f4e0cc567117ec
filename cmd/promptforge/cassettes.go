package main

import (
	"fmt"
	"os"

	"github.com/danshapiro/promptforge/internal/cassette"
)

func cmdCassettes(args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	switch args[0] {
	case "ls":
		cassettesList(args[1:])
	default:
		usage()
		os.Exit(1)
	}
}

func cassettesList(args []string) {
	dir := "."
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--dir":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--dir requires a directory path")
				os.Exit(1)
			}
			dir = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown argument: %s\n", args[i])
			usage()
			os.Exit(1)
		}
	}

	paths, err := cassette.Discover(dir)
	if err != nil {
		fatal(err)
	}
	if len(paths) == 0 {
		fmt.Println("no cassettes found")
		return
	}
	for _, p := range paths {
		store, err := cassette.Open(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", p, err)
			continue
		}
		fmt.Printf("%s\t%d entries\n", p, store.Len())
	}
}
