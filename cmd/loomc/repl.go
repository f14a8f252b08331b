package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/pterm/pterm"

	"github.com/dekarrin/loom"
	"github.com/dekarrin/loom/internal/loom/diag"
)

// runREPL starts an interactive shell over a built grammar, the way
// `gorgo`'s trepl and the teacher's cmd/tqi drive a GNU-readline session:
// build once, then let an operator re-run diagnostic queries against the
// result without re-invoking the CLI each time.
func runREPL(grammarFile string) error {
	cfg, err := loadConfig(*flagConfig)
	if err != nil {
		return err
	}

	src, err := os.ReadFile(grammarFile)
	if err != nil {
		return fmt.Errorf("reading %s: %w", grammarFile, err)
	}

	res, err := loom.Build(grammarFile, string(src), func(w diag.Warning) {
		if suppressed(cfg, w.String()) {
			return
		}
		pterm.Warning.Println(w.String())
	}, cfg.Build.MaxTokenGroups)
	if err != nil {
		return err
	}

	pterm.Info.Printf("loaded %s: %d states, %d token groups\n",
		grammarFile, res.Report.States, res.Report.TokenGroups)

	rl, err := readline.NewEx(&readline.Config{Prompt: "loomc> "})
	if err != nil {
		return fmt.Errorf("create readline config: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := runREPLCommand(res, line); err != nil {
			pterm.Error.Println(err.Error())
		}
	}
}

func runREPLCommand(res *loom.Result, line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "quit", "exit":
		os.Exit(exitSuccess)
		return nil
	case "states":
		pterm.Info.Printf("%d states, %d rules\n", res.Report.States, res.Report.Rules)
		return nil
	case "term":
		if len(fields) < 2 {
			return fmt.Errorf("usage: term INDEX")
		}
		return printTerm(res, fields[1])
	case "help":
		pterm.Println("commands: states, term INDEX, help, quit")
		return nil
	default:
		return fmt.Errorf("unknown command %q (try \"help\")", fields[0])
	}
}

func printTerm(res *loom.Result, indexArg string) error {
	var idx int
	if _, err := fmt.Sscanf(indexArg, "%d", &idx); err != nil {
		return fmt.Errorf("invalid term index %q", indexArg)
	}
	if idx < 0 || idx >= len(res.TermNames) {
		return fmt.Errorf("term index %d out of range (0-%d)", idx, len(res.TermNames)-1)
	}
	pterm.Info.Printf("%d: %s\n", idx, res.TermNames[idx])
	return nil
}
