package tinylang

import (
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/magiconair/properties"
	"gopkg.in/yaml.v3"
)

// Target selects which backend (EmitC or EmitIR) the code-gen stage drives.
type Target string

const (
	TargetC  Target = "c"
	TargetIR Target = "ir"
)

// CompilerConfig controls how a single source file is translated.
type CompilerConfig struct {
	Target       Target `properties:"target" yaml:"target"`
	EmitComments bool   `properties:"emit_comments" yaml:"emit_comments"`
	PrettyPrint  bool   `properties:"pretty_print" yaml:"pretty_print"`
}

// DefaultCompilerConfig is the bottom layer of the configuration
// resolution order.
func DefaultCompilerConfig() CompilerConfig {
	return CompilerConfig{
		Target:       TargetC,
		EmitComments: false,
		PrettyPrint:  true,
	}
}

// PipelinePreset is the declarative description of how a Pipeline should
// be assembled, normally loaded from a YAML file.
type PipelinePreset struct {
	FaultTolerance    string   `yaml:"fault_tolerance"`
	DetailLevel       string   `yaml:"detail_level"`
	MemoryBudgetBytes int      `yaml:"memory_budget_bytes"`
	MaxContextEntries int      `yaml:"max_context_entries"`
	EnabledMiddleware []string `yaml:"enabled_middleware"`
}

// DefaultPipelinePreset uses strict fault tolerance, full error detail and
// the Context's default caps, and enables the logging and timing middleware.
func DefaultPipelinePreset() PipelinePreset {
	return PipelinePreset{
		FaultTolerance:    "strict",
		DetailLevel:       "full",
		MemoryBudgetBytes: defaultMaxMemory,
		MaxContextEntries: maxContextEntries,
		EnabledMiddleware: []string{"logging", "timing"},
	}
}

// CLIOptions is the flag set shared by both binaries, parsed with
// go-flags instead of the standard library's flag package.
type CLIOptions struct {
	PropertiesFile string `long:"config" description:"path to a .properties configuration file" value-name:"FILE"`
	PresetFile     string `long:"preset" description:"path to a YAML pipeline preset file" value-name:"FILE"`
	Target         string `long:"target" description:"backend target: c or ir" default:""`
	EmitComments   bool   `long:"emit-comments" description:"emit a header comment in generated output"`
	NoPrettyPrint  bool   `long:"no-pretty" description:"disable pretty-printing of generated output"`
}

// ParseCLIOptions parses argv with go-flags.
func ParseCLIOptions(argv []string) (*CLIOptions, []string, error) {
	var opts CLIOptions
	parser := flags.NewParser(&opts, flags.Default)
	rest, err := parser.ParseArgs(argv)
	if err != nil {
		return nil, nil, NewError(Pos{}, ErrInvalidInput, "%s", err)
	}
	return &opts, rest, nil
}

// LoadCompilerConfig resolves a CompilerConfig through the full layering
// order: defaults, then an optional properties file, then CLI flags
// (which always win).
func LoadCompilerConfig(opts *CLIOptions) (CompilerConfig, error) {
	cfg := DefaultCompilerConfig()

	if opts.PropertiesFile != "" {
		props, err := properties.LoadFile(opts.PropertiesFile, properties.UTF8)
		if err != nil {
			return cfg, NewError(Pos{}, ErrInvalidInput, "loading properties file %q: %s", opts.PropertiesFile, err)
		}
		if v, ok := props.Get("target"); ok {
			cfg.Target = Target(v)
		}
		if v, ok := props.Get("emit_comments"); ok {
			cfg.EmitComments = v == "true"
		}
		if v, ok := props.Get("pretty_print"); ok {
			cfg.PrettyPrint = v == "true"
		}
	}

	if opts.Target != "" {
		cfg.Target = Target(opts.Target)
	}
	if opts.EmitComments {
		cfg.EmitComments = true
	}
	if opts.NoPrettyPrint {
		cfg.PrettyPrint = false
	}

	return cfg, nil
}

// LoadPipelinePreset resolves a PipelinePreset from an optional YAML file
// layered over the built-in defaults.
func LoadPipelinePreset(path string) (PipelinePreset, error) {
	preset := DefaultPipelinePreset()
	if path == "" {
		return preset, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return preset, NewError(Pos{}, ErrInvalidInput, "reading pipeline preset %q: %s", path, err)
	}
	if err := yaml.Unmarshal(data, &preset); err != nil {
		return preset, NewError(Pos{}, ErrInvalidInput, "parsing pipeline preset %q: %s", path, err)
	}
	return preset, nil
}

// faultToleranceFromName maps a preset's string field to the enum the
// Pipeline package expects.
func faultToleranceFromName(name string) FaultTolerance {
	switch name {
	case "lenient":
		return Lenient
	case "best_effort":
		return BestEffort
	case "custom":
		return Custom
	default:
		return Strict
	}
}

func detailLevelFromName(name string) DetailLevel {
	if name == "minimal" {
		return DetailMinimal
	}
	return DetailFull
}

// BuildPipeline assembles a Pipeline from a PipelinePreset, wiring in
// exactly the middleware the preset names, in the order it names them.
func BuildPipeline(preset PipelinePreset) *Pipeline {
	ctx := NewContext()
	ctx.SetMemoryBudget(preset.MemoryBudgetBytes)
	ctx.SetMaxEntries(preset.MaxContextEntries)

	p := NewPipeline(ctx, faultToleranceFromName(preset.FaultTolerance))
	p.detailLevel = detailLevelFromName(preset.DetailLevel)

	for _, name := range preset.EnabledMiddleware {
		switch name {
		case "logging":
			p.AddMiddleware(NewLoggingMiddleware(nil))
		case "timing":
			p.AddMiddleware(NewTimingMiddleware(nil))
		case "memory-monitor":
			p.AddMiddleware(NewMemoryMonitorMiddleware(preset.MemoryBudgetBytes, nil))
		case "resource-limit":
			p.AddMiddleware(NewResourceLimitMiddleware(0, nil))
		case "fault-injection":
			p.AddMiddleware(NewFaultInjectionMiddleware("", ErrInvalidInput, nil))
		}
	}
	return p
}
