// Command wallc compiles a single tinylang source file end-to-end and
// writes the generated output to stdout or a named file.
package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"tinylang"
)

type options struct {
	tinylang.CLIOptions
	Output string `short:"o" long:"output" description:"write generated output to this file instead of stdout" value-name:"FILE"`
	Args   struct {
		File string
	} `positional-args:"yes" required:"yes"`
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

	source, err := os.ReadFile(opts.Args.File)
	if err != nil {
		fatal(err)
	}

	p := tinylang.BuildPipeline(preset)
	if err := tinylang.BuildCompilePipeline(p, opts.Args.File, cfg); err != nil {
		fatal(err)
	}
	if err := p.Context().Set(tinylang.KeySourceText, source, len(source), nil); err != nil {
		fatal(err)
	}

	outcome := p.Execute()
	if !outcome.Succeeded {
		for _, f := range outcome.Failures {
			fmt.Fprintf(os.Stderr, "%s: %s\n", f.StageName, f.Err)
		}
		os.Exit(1)
	}

	raw, err := p.Context().Get(tinylang.KeyOutputCode)
	if err != nil {
		fatal(err)
	}
	code := raw.(string)

	if opts.Output == "" {
		fmt.Print(code)
		return
	}
	if err := os.WriteFile(opts.Output, []byte(code), 0o644); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "wallc:", err)
	os.Exit(1)
}
