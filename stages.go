package tinylang

// LexerStage consumes KeySourceText and produces KeyTokens.
type LexerStage struct {
	Filename string
}

func (s *LexerStage) Name() string { return "lexer" }

func (s *LexerStage) Run(ctx *Context) StageOutcome {
	raw, err := ctx.Get(KeySourceText)
	if err != nil {
		return Failure(err)
	}
	source, ok := raw.([]byte)
	if !ok {
		return Failure(NewError(Pos{}, ErrInvalidInput, "lexer: %s is not a []byte", KeySourceText))
	}

	stream, scanErr := ScanTokens(s.Filename, source)
	if scanErr != nil {
		return Failure(scanErr)
	}
	if setErr := ctx.Set(KeyTokens, stream, len(stream.Tokens)*tokenSizeEstimate, nil); setErr != nil {
		return Failure(setErr)
	}
	return Success()
}

const tokenSizeEstimate = 64

// ParserStage consumes KeyTokens and produces KeyAST.
type ParserStage struct{}

func (s *ParserStage) Name() string { return "parser" }

func (s *ParserStage) Run(ctx *Context) StageOutcome {
	raw, err := ctx.Get(KeyTokens)
	if err != nil {
		return Failure(err)
	}
	stream, ok := raw.(*TokenStream)
	if !ok {
		return Failure(NewError(Pos{}, ErrInvalidInput, "parser: %s is not a *TokenStream", KeyTokens))
	}

	prog, parseErr := ParseProgram(stream)
	if parseErr != nil {
		return Failure(parseErr)
	}
	if setErr := ctx.Set(KeyAST, prog, len(prog.Functions)*astSizeEstimate, nil); setErr != nil {
		return Failure(setErr)
	}
	return Success()
}

const astSizeEstimate = 256

// TypeCheckerStage consumes KeyAST, annotates it in place, and publishes
// KeyASTTyped.
type TypeCheckerStage struct{}

func (s *TypeCheckerStage) Name() string { return "typechecker" }

func (s *TypeCheckerStage) Run(ctx *Context) StageOutcome {
	raw, err := ctx.Get(KeyAST)
	if err != nil {
		return Failure(err)
	}
	prog, ok := raw.(*Program)
	if !ok {
		return Failure(NewError(Pos{}, ErrInvalidInput, "typechecker: %s is not a *Program", KeyAST))
	}

	if checkErr := CheckProgram(prog); checkErr != nil {
		return Failure(checkErr)
	}
	if setErr := ctx.Set(KeyASTTyped, true, 0, nil); setErr != nil {
		return Failure(setErr)
	}
	return Success()
}

// CodeGenStage consumes the typed AST and CompilerConfig and produces
// KeyOutputCode.
type CodeGenStage struct {
	Config     CompilerConfig
	SourceName string
}

func (s *CodeGenStage) Name() string { return "codegen" }

func (s *CodeGenStage) Run(ctx *Context) StageOutcome {
	if typed, _ := ctx.Get(KeyASTTyped); typed != true {
		return Failure(NewError(Pos{}, ErrInvalidInput, "codegen: %s has not been type-checked", KeyAST))
	}
	raw, err := ctx.Get(KeyAST)
	if err != nil {
		return Failure(err)
	}
	prog, ok := raw.(*Program)
	if !ok {
		return Failure(NewError(Pos{}, ErrInvalidInput, "codegen: %s is not a *Program", KeyAST))
	}

	var output string
	var genErr error
	switch s.Config.Target {
	case TargetIR:
		output, genErr = EmitIR(prog, IREmitOptions{EmitComments: s.Config.EmitComments})
	case TargetC:
		output, genErr = EmitC(prog, s.SourceName, CEmitOptions{
			EmitComments: s.Config.EmitComments,
			PrettyPrint:  s.Config.PrettyPrint,
		})
	default:
		return Failure(NewError(Pos{}, ErrInvalidInput, "codegen: unsupported target %q", s.Config.Target))
	}
	if genErr != nil {
		return Failure(genErr)
	}
	if setErr := ctx.Set(KeyOutputCode, output, len(output), nil); setErr != nil {
		return Failure(setErr)
	}
	return Success()
}

// BuildCompilePipeline wires the four core stages onto p in source order.
func BuildCompilePipeline(p *Pipeline, filename string, cfg CompilerConfig) error {
	stages := []Stage{
		&LexerStage{Filename: filename},
		&ParserStage{},
		&TypeCheckerStage{},
		&CodeGenStage{Config: cfg, SourceName: filename},
	}
	for _, st := range stages {
		if err := p.AddStage(st); err != nil {
			return err
		}
	}
	return nil
}
