package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "resume":
		cmdResume(os.Args[2:])
	case "render":
		cmdRender(os.Args[2:])
	case "cassettes":
		cmdCassettes(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  promptforge run [--config <file.yaml>] [--mode dry-run|record|replay|live] [--model <id>] [--provider <name>] [--session <file.json>] [--cassette <file.cassette.yaml>]")
	fmt.Fprintln(os.Stderr, "  promptforge resume --session <file.json> [--config <file.yaml>] [--mode <mode>] [--cassette <file.cassette.yaml>]")
	fmt.Fprintln(os.Stderr, "  promptforge render --session <file.json>")
	fmt.Fprintln(os.Stderr, "  promptforge cassettes ls [--dir <root>]")
}
