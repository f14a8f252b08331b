/*
Loomc builds numeric LR parser tables from a loom grammar file.

It reads a grammar source file, runs it through every generator pass, and
prints a build summary to the terminal. Non-fatal diagnostics (unused rules,
precedence on unknown tokens, silenced conflicts) are listed; any fatal
error aborts the build and is reported with its source position when known.

Usage:

	loomc [flags] GRAMMAR_FILE

The flags are:

	-v, --version
		Give the current version of loomc and then exit.

	-c, --config FILE
		Use the given loom.toml project file instead of the default
		"loom.toml" in the current working directory.

	-o, --out DIR
		Write generated output to DIR instead of the current directory.

Once a grammar has been built successfully, "loomc repl GRAMMAR_FILE" starts
an interactive shell for probing how the built tokenizer and table assign
token groups and actions to sample input.
*/
package main

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/pflag"

	"github.com/dekarrin/loom"
	"github.com/dekarrin/loom/internal/loom/diag"
	"github.com/dekarrin/loom/internal/version"
)

const (
	exitSuccess = iota
	exitBuildError
	exitInitError
)

var (
	flagVersion = pflag.BoolP("version", "v", false, "Gives the version info")
	flagConfig  = pflag.StringP("config", "c", "loom.toml", "The loom.toml project configuration file to use")
	flagOut     = pflag.StringP("out", "o", ".", "Directory to write generated output into")
)

func main() {
	returnCode := exitSuccess
	defer func() {
		if panicErr := recover(); panicErr != nil {
			panic(fmt.Sprintf("unrecoverable panic occurred: %v", panicErr))
		}
		os.Exit(returnCode)
	}()

	pflag.Parse()

	if *flagVersion {
		fmt.Printf("%s\n", version.Current)
		return
	}

	if pflag.NArg() > 0 && pflag.Arg(0) == "repl" {
		if pflag.NArg() < 2 {
			pterm.Error.Println("repl requires a grammar file argument")
			returnCode = exitInitError
			return
		}
		if err := runREPL(pflag.Arg(1)); err != nil {
			pterm.Error.Println(err.Error())
			returnCode = exitBuildError
		}
		return
	}

	if pflag.NArg() < 1 {
		pterm.Error.Println("usage: loomc [flags] GRAMMAR_FILE")
		returnCode = exitInitError
		return
	}
	grammarFile := pflag.Arg(0)

	cfg, err := loadConfig(*flagConfig)
	if err != nil {
		pterm.Error.Println(err.Error())
		returnCode = exitInitError
		return
	}

	src, err := os.ReadFile(grammarFile)
	if err != nil {
		pterm.Error.Printf("reading %s: %s\n", grammarFile, err.Error())
		returnCode = exitInitError
		return
	}

	spinner, _ := pterm.DefaultSpinner.Start("building " + grammarFile)

	var warnings []string
	res, err := loom.Build(grammarFile, string(src), func(w diag.Warning) {
		if suppressed(cfg, w.String()) {
			return
		}
		warnings = append(warnings, w.String())
	}, cfg.Build.MaxTokenGroups)
	if err != nil {
		spinner.Fail(err.Error())
		returnCode = exitBuildError
		return
	}
	spinner.Success("build complete")

	for _, w := range warnings {
		pterm.Warning.Println(w)
	}

	printSummary(cfg, res)

	if err := writeOutputs(*flagOut, cfg, res); err != nil {
		pterm.Error.Println(err.Error())
		returnCode = exitBuildError
		return
	}
}

func printSummary(cfg projectConfig, res *loom.Result) {
	pterm.DefaultSection.Println("Build summary")

	data := [][]string{
		{"States", fmt.Sprint(res.Report.States)},
		{"Rules", fmt.Sprint(res.Report.Rules)},
		{"Terminals", fmt.Sprint(res.Report.Terminals)},
		{"Nonterminals", fmt.Sprint(res.Report.Nonterminals)},
		{"Token groups", fmt.Sprint(res.Report.TokenGroups)},
		{"Conflicts (silenced)", fmt.Sprintf("%d (%d)", res.Report.Conflicts, res.Report.SilencedCount)},
		{"Session", res.Report.Session.ID.String()},
	}
	table := pterm.DefaultTable.WithData(data)
	_ = table.Render()

	if cfg.Module.Name != "" {
		pterm.Info.Printf("output module: %s\n", cfg.Module.Name)
	}
}
