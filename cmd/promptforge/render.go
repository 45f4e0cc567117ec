package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"

	"github.com/danshapiro/promptforge/internal/optimizer/engine"
	"github.com/danshapiro/promptforge/internal/optimizer/pipeline"
)

// newMarkdownRenderer returns a terminal markdown renderer. Rendering is
// best-effort: on any renderer failure the raw markdown is printed instead.
func newMarkdownRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return func(md string) (string, error) { return md, nil }
	}
	return r.Render
}

func printMarkdown(render func(string) (string, error), md string) {
	out, err := render(md)
	if err != nil {
		out = md
	}
	fmt.Print(out)
	fmt.Println()
}

func cmdRender(args []string) {
	var sessionPath string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--session":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--session requires a file path")
				os.Exit(1)
			}
			sessionPath = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown argument: %s\n", args[i])
			usage()
			os.Exit(1)
		}
	}
	if sessionPath == "" {
		fmt.Fprintln(os.Stderr, "render requires --session")
		os.Exit(1)
	}

	session, err := engine.LoadSession(sessionPath)
	if err != nil {
		fatal(err)
	}

	md := session.FinalPrompt
	if md == "" {
		// Session still in progress; render what has been committed so far.
		md = pipeline.Render(session.Steps)
	}
	printMarkdown(newMarkdownRenderer(), md)
	printUsage(session)
}
