package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danshapiro/promptforge/internal/cassette"
	"github.com/danshapiro/promptforge/internal/config"
	"github.com/danshapiro/promptforge/internal/llm"
	"github.com/danshapiro/promptforge/internal/llm/providers/mock"
	"github.com/danshapiro/promptforge/internal/logging"
	"github.com/danshapiro/promptforge/internal/optimizer/engine"
	"github.com/danshapiro/promptforge/internal/optimizer/model"
	"github.com/danshapiro/promptforge/internal/optimizer/pipeline"
	"github.com/danshapiro/promptforge/internal/optimizer/trace"
	"github.com/danshapiro/promptforge/internal/prompts"

	_ "github.com/danshapiro/promptforge/internal/llm/providers/anthropic"
	_ "github.com/danshapiro/promptforge/internal/llm/providers/openai"
)

func cmdRun(args []string) {
	var configPath string
	var mode string
	var provider string
	var modelID string
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
		case "--provider":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--provider requires a name")
				os.Exit(1)
			}
			provider = args[i]
		case "--model":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--model requires a model id")
				os.Exit(1)
			}
			modelID = args[i]
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

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err)
	}
	if mode != "" {
		cfg.Mode = mode
	}
	if provider != "" {
		cfg.Provider = provider
	}
	if modelID != "" {
		cfg.Model = modelID
	}

	session := model.NewSession(time.Now())
	if sessionPath == "" {
		sessionPath = filepath.Join(cfg.SessionDir, session.ID+".json")
	}
	eng, err := buildEngine(cfg, session, cassettePath)
	if err != nil {
		fatal(err)
	}

	runInteractive(context.Background(), eng, sessionPath)
}

// buildEngine wires the client, cassette store, pipeline and tracer for the
// configured mode. Dry-run gets the deterministic mock adapter; the other
// modes register whichever provider adapters find credentials in the
// environment.
func buildEngine(cfg config.File, session *model.Session, cassettePath string) (*engine.Engine, error) {
	clientMode, err := llm.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.ParseLevel(cfg.LogLevel))
	tracer := trace.Multi{trace.NewMemory(), trace.NewSlog(logger)}

	client := llm.NewClient(clientMode)
	client.SetTracer(tracer)
	client.SetRetryPolicy(cfg.RetryPolicy())

	switch clientMode {
	case llm.ModeDryRun:
		client.Register(mock.New())
		client.SetDefaultProvider("mock")
	default:
		n, err := llm.RegisterEnvAdapters(client)
		if err != nil {
			return nil, err
		}
		if n == 0 && clientMode != llm.ModeReplay {
			return nil, fmt.Errorf("no provider credentials found in environment (set ANTHROPIC_API_KEY or OPENAI_API_KEY)")
		}
		if cfg.Provider != "" {
			client.SetDefaultProvider(cfg.Provider)
		}
	}

	if clientMode == llm.ModeRecord || clientMode == llm.ModeReplay {
		if cassettePath == "" {
			cassettePath = filepath.Join(cfg.CassetteDir, session.ID+".cassette.yaml")
		}
		store, err := cassette.Open(cassettePath)
		if err != nil {
			return nil, err
		}
		client.SetCassette(store)
	}

	budget := pipeline.Budget{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
	runner := pipeline.NewRunner(prompts.NewCatalog(), client, tracer, budget)
	return engine.New(session, runner, tracer), nil
}

// runInteractive drives the approve/revise loop on stdin until every step is
// committed, then harmonizes and prints the final prompt. The session is
// snapshotted after every state change so a killed run can be resumed.
func runInteractive(ctx context.Context, eng *engine.Engine, sessionPath string) {
	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	render := newMarkdownRenderer()

	for eng.Current().Valid() {
		step := eng.Current()

		var draft string
		if step == model.StepIntent {
			fmt.Printf("Describe the prompt you want to build:\n> ")
			if !in.Scan() {
				saveAndExit(eng, sessionPath, 0)
			}
			draft = strings.TrimSpace(in.Text())
			if draft == "" {
				fmt.Println("A draft is required for the first step.")
				continue
			}
		}

		prop, err := eng.Propose(ctx, draft)
		if err != nil {
			fmt.Fprintf(os.Stderr, "propose %s: %v\n", step, err)
			if step != model.StepIntent {
				saveAndExit(eng, sessionPath, 1)
			}
			continue
		}

		fmt.Printf("\n=== %s ===\n", step.Label())
		printMarkdown(render, candidateMarkdown(prop))

		accepted := false
		for !accepted {
			fmt.Printf("[a]ccept, [r]ollback <step>, [q]uit, or type feedback to revise:\n> ")
			if !in.Scan() {
				saveAndExit(eng, sessionPath, 0)
			}
			line := strings.TrimSpace(in.Text())
			switch {
			case line == "a" || line == "accept":
				if err := eng.Commit(prop.Step, prop.Value); err != nil {
					fmt.Fprintf(os.Stderr, "commit: %v\n", err)
					continue
				}
				persist(eng, sessionPath)
				accepted = true
			case line == "q" || line == "quit":
				saveAndExit(eng, sessionPath, 0)
			case strings.HasPrefix(line, "r ") || strings.HasPrefix(line, "rollback "):
				target, ok := model.ParseStepType(line[strings.Index(line, " ")+1:])
				if !ok {
					fmt.Fprintln(os.Stderr, "unknown step name")
					continue
				}
				if err := eng.Rollback(target); err != nil {
					fmt.Fprintf(os.Stderr, "rollback: %v\n", err)
					continue
				}
				persist(eng, sessionPath)
				accepted = true // re-enter the outer loop at the new current step
			case line == "":
				continue
			default:
				if err := eng.Reject(prop.Step, line); err != nil {
					fmt.Fprintf(os.Stderr, "reject: %v\n", err)
					continue
				}
				prop, err = eng.Propose(ctx, draft)
				if err != nil {
					fmt.Fprintf(os.Stderr, "propose %s: %v\n", step, err)
					saveAndExit(eng, sessionPath, 1)
				}
				fmt.Printf("\n=== %s (revised) ===\n", step.Label())
				printMarkdown(render, candidateMarkdown(prop))
			}
		}
	}

	if eng.Current() == model.StepHarmonizing {
		fmt.Println("\nHarmonizing committed steps...")
		if err := eng.EnterHarmonizing(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "harmonize: %v\n", err)
			saveAndExit(eng, sessionPath, 1)
		}
		persist(eng, sessionPath)
	}

	final, err := eng.FinalPrompt()
	if err != nil {
		fatal(err)
	}
	fmt.Println()
	printMarkdown(render, final)
	printUsage(eng.Session())
	fmt.Printf("session saved to %s\n", sessionPath)
}

func candidateMarkdown(p *engine.Proposal) string {
	var b strings.Builder
	b.WriteString(p.Preview)
	if p.Rationale != "" {
		fmt.Fprintf(&b, "\n\n> %s (confidence %.2f)\n", p.Rationale, p.Confidence)
	}
	return b.String()
}

func printUsage(s *model.Session) {
	u := s.Usage
	fmt.Printf("\ncalls=%d retries=%d tokens=%d cost=$%.4f\n",
		u.Calls, u.Retries, u.TotalTokens(), u.CostUSD)
}

func persist(eng *engine.Engine, sessionPath string) {
	if err := os.MkdirAll(filepath.Dir(sessionPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "save session: %v\n", err)
		return
	}
	if err := engine.SaveSession(sessionPath, eng.Session()); err != nil {
		fmt.Fprintf(os.Stderr, "save session: %v\n", err)
	}
}

func saveAndExit(eng *engine.Engine, sessionPath string, code int) {
	persist(eng, sessionPath)
	fmt.Fprintf(os.Stderr, "session saved to %s\n", sessionPath)
	os.Exit(code)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "promptforge: %v\n", err)
	os.Exit(1)
}
