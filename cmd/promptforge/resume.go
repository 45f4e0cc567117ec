package main

import (
	"context"
	"fmt"
	"os"

	"github.com/danshapiro/promptforge/internal/config"
	"github.com/danshapiro/promptforge/internal/optimizer/engine"
)

func cmdResume(args []string) {
	var configPath string
	var mode string
	var sessionPath string
	var cassettePath string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--config requires a file path")
				os.Exit(1)
			}
			configPath = args[i]
		case "--mode":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--mode requires one of: dry-run, record, replay, live")
				os.Exit(1)
			}
			mode = args[i]
		case "--session":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--session requires a file path")
				os.Exit(1)
			}
			sessionPath = args[i]
		case "--cassette":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--cassette requires a file path")
				os.Exit(1)
			}
			cassettePath = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown argument: %s\n", args[i])
			usage()
			os.Exit(1)
		}
	}
	if sessionPath == "" {
		fmt.Fprintln(os.Stderr, "resume requires --session")
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err)
	}
	if mode != "" {
		cfg.Mode = mode
	}

	session, err := engine.LoadSession(sessionPath)
	if err != nil {
		fatal(err)
	}
	if session.Done() {
		fmt.Fprintln(os.Stderr, "session is already complete; use `promptforge render` to view it")
		os.Exit(1)
	}

	eng, err := buildEngine(cfg, session, cassettePath)
	if err != nil {
		fatal(err)
	}

	fmt.Printf("resuming session %s at step %s\n", session.ID, session.Current)
	runInteractive(context.Background(), eng, sessionPath)
}
