package tinylang

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Artifact names the stage output a ReplSession should print after each
// accepted chunk.
type Artifact string

const (
	ArtifactTokens Artifact = "tokens"
	ArtifactAST    Artifact = "ast"
	ArtifactC      Artifact = "c"
	ArtifactIR     Artifact = "ir"
)

// ReplSession buffers interactive input until braces balance, then runs
// the full compile pipeline over the accumulated chunk and prints the
// requested artifact.
type ReplSession struct {
	In     *bufio.Scanner
	Out    io.Writer
	Show   Artifact
	Preset PipelinePreset
	Config CompilerConfig
}

// NewReplSession creates a session reading from in and writing to out.
func NewReplSession(in io.Reader, out io.Writer, show Artifact, preset PipelinePreset, cfg CompilerConfig) *ReplSession {
	return &ReplSession{
		In:     bufio.NewScanner(in),
		Out:    out,
		Show:   show,
		Preset: preset,
		Config: cfg,
	}
}

// Run reads lines until EOF, buffering each logical chunk until its
// brace depth returns to zero, then compiling and printing it.
func (s *ReplSession) Run() error {
	var buf strings.Builder
	depth := 0
	started := false

	prompt := func() {
		if depth == 0 {
			fmt.Fprint(s.Out, "> ")
		} else {
			fmt.Fprint(s.Out, "... ")
		}
	}

	prompt()
	for s.In.Scan() {
		line := s.In.Text()
		depth += braceDelta(line)
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(line)
		started = true

		if depth <= 0 {
			chunk := buf.String()
			buf.Reset()
			depth = 0
			if strings.TrimSpace(chunk) != "" {
				s.evalChunk(chunk)
			}
			started = false
		}
		prompt()
	}
	if started && strings.TrimSpace(buf.String()) != "" {
		s.evalChunk(buf.String())
	}
	return s.In.Err()
}

// braceDelta counts net "{" minus "}" on a line, ignoring braces inside
// line comments.
func braceDelta(line string) int {
	delta := 0
	for i := 0; i < len(line); i++ {
		if line[i] == '/' && i+1 < len(line) && line[i+1] == '/' {
			break
		}
		switch line[i] {
		case '{':
			delta++
		case '}':
			delta--
		}
	}
	return delta
}

func (s *ReplSession) evalChunk(source string) {
	cfg := s.Config
	if s.Show == ArtifactIR {
		cfg.Target = TargetIR
	} else if s.Show == ArtifactC {
		cfg.Target = TargetC
	}

	p := BuildPipeline(s.Preset)
	if err := BuildCompilePipeline(p, "<repl>", cfg); err != nil {
		fmt.Fprintf(s.Out, "error: %s\n", err)
		return
	}
	if err := p.Context().Set(KeySourceText, []byte(source), len(source), nil); err != nil {
		fmt.Fprintf(s.Out, "error: %s\n", err)
		return
	}

	outcome := p.Execute()
	if !outcome.Succeeded {
		for _, f := range outcome.Failures {
			fmt.Fprintf(s.Out, "error in %s: %s\n", f.StageName, f.Err)
		}
		return
	}

	s.printArtifact(p.Context())
}

func (s *ReplSession) printArtifact(ctx *Context) {
	switch s.Show {
	case ArtifactTokens:
		v, err := ctx.Get(KeyTokens)
		if err != nil {
			fmt.Fprintf(s.Out, "error: %s\n", err)
			return
		}
		stream := v.(*TokenStream)
		for _, tok := range stream.Tokens {
			fmt.Fprintln(s.Out, tok.String())
		}
	case ArtifactAST:
		v, err := ctx.Get(KeyAST)
		if err != nil {
			fmt.Fprintf(s.Out, "error: %s\n", err)
			return
		}
		prog := v.(*Program)
		fmt.Fprintf(s.Out, "%d function(s)\n", len(prog.Functions))
		for _, fn := range prog.Functions {
			fmt.Fprintf(s.Out, "  func %s (%d params) -> %s\n", fn.Name, len(fn.Params), fn.ReturnType)
		}
	default:
		v, err := ctx.Get(KeyOutputCode)
		if err != nil {
			fmt.Fprintf(s.Out, "error: %s\n", err)
			return
		}
		fmt.Fprint(s.Out, v.(string))
	}
}
