// Command wallrepl is an interactive session that buffers balanced-brace
// input, runs it through the same pipeline wallc uses, and prints
// whichever stage artifact was requested.
package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"tinylang"
)

type options struct {
	tinylang.CLIOptions
	Show string `long:"show" description:"artifact to print: tokens, ast, c, or ir" default:"c"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		os.Exit(1)
	}

	cfg, err := tinylang.LoadCompilerConfig(&opts.CLIOptions)
	if err != nil {
		fatal(err)
	}
	preset, err := tinylang.LoadPipelinePreset(opts.PresetFile)
	if err != nil {
		fatal(err)
	}

	session := tinylang.NewReplSession(os.Stdin, os.Stdout, tinylang.Artifact(opts.Show), preset, cfg)
	if err := session.Run(); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "wallrepl:", err)
	os.Exit(1)
}
