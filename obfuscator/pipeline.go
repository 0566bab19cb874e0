package obfuscator

import (
	"fmt"
	"log/slog"
)

// Transform is a pluggable pass over the renamed program model.
// Control-flow obfuscation and anti-decompiler passes plug in here; the
// pipeline hands every transform the frozen preservation result so
// per-method exemption flags are honored uniformly.
type Transform interface {
	Name() string
	Apply(model *Model, pres *PreservationResult, ctx *Context) error
}

// Report is what one pipeline invocation hands back besides the
// transformed model: statistics, the ordered log, and the frozen name
// map for de-obfuscating field reports.
type Report struct {
	Stats *Statistics       `json:"statistics"`
	Log   []LogEntry        `json:"log"`
	Names map[string]string `json:"nameMap,omitempty"`
}

// Pipeline sequences the enabled passes in the one valid order:
// strip comments, rename symbols, encrypt strings, pluggable transforms,
// strip metadata, normalize whitespace. It owns one Context per
// invocation; nothing leaks between runs.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger

	controlFlow    Transform
	antiDecompiler Transform
}

// New creates a pipeline for the given configuration. The logger may be
// nil. The built-in opaque-predicate transform backs AntiDecompiler
// until replaced via SetAntiDecompiler.
func New(cfg Config, logger *slog.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, logger: logger, antiDecompiler: OpaquePredicates{}}
}

// SetControlFlow installs the control-flow obfuscation transform.
func (p *Pipeline) SetControlFlow(t Transform) { p.controlFlow = t }

// SetAntiDecompiler replaces the built-in anti-decompiler transform.
func (p *Pipeline) SetAntiDecompiler(t Transform) { p.antiDecompiler = t }

// Process transforms the model in place and returns the run report.
// The batch is all-or-nothing: a structural failure aborts the whole
// invocation so no partially renamed model is ever handed back.
func (p *Pipeline) Process(model *Model) (*Report, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: nil model", ErrMalformedUnit)
	}
	for i, unit := range model.Units {
		if unit == nil || unit.Path == "" {
			return nil, fmt.Errorf("%w: unit %d has no identifying path", ErrMalformedUnit, i)
		}
	}

	ctx := NewContext(p.cfg, p.logger)
	ctx.Stats.UnitsProcessed = len(model.Units)

	if !p.cfg.enabled() {
		ctx.Log.Infof("no passes enabled; returning input unchanged")
		return p.report(ctx), nil
	}

	var pres *PreservationResult
	if p.cfg.RenameSymbols || p.cfg.EncryptStrings || p.cfg.ObfuscateControlFlow || p.cfg.AntiDecompiler {
		pres = Analyze(model, p.cfg, ctx.Log)
		ctx.Log.Infof("preservation analysis kept %d of %d symbols", pres.PreservedCount(), len(model.Symbols))
	}

	if p.cfg.RemoveComments {
		for _, unit := range model.Units {
			StripComments(unit, ctx.Stats)
		}
	}

	if p.cfg.RenameSymbols {
		if err := Rename(model, pres, ctx); err != nil {
			return nil, err
		}
		ctx.Log.Infof("renamed %d symbols", ctx.Stats.Renamed())
	}

	if p.cfg.EncryptStrings {
		enc, err := NewEncryptor(p.cfg.EncryptionKey, ctx)
		if err != nil {
			return nil, err
		}
		decoder, err := enc.EncryptStrings(model, pres, ctx)
		if err != nil {
			return nil, err
		}
		if decoder != nil {
			model.Units = append(model.Units, decoder)
		}
	}

	if p.cfg.ObfuscateControlFlow {
		if p.controlFlow == nil {
			ctx.Log.Warnf("control-flow obfuscation enabled but no transform registered; skipping")
		} else if err := p.controlFlow.Apply(model, pres, ctx); err != nil {
			return nil, fmt.Errorf("transform %s: %w", p.controlFlow.Name(), err)
		}
	}

	if p.cfg.AntiDecompiler && p.antiDecompiler != nil {
		if err := p.antiDecompiler.Apply(model, pres, ctx); err != nil {
			return nil, fmt.Errorf("transform %s: %w", p.antiDecompiler.Name(), err)
		}
	}

	if p.cfg.StripMetadata {
		for _, unit := range model.Units {
			StripMetadata(unit, ctx.Stats)
		}
	}

	if p.cfg.NormalizeWhitespace {
		for _, unit := range model.Units {
			NormalizeWhitespace(unit)
		}
	}

	return p.report(ctx), nil
}

func (p *Pipeline) report(ctx *Context) *Report {
	return &Report{
		Stats: ctx.Stats,
		Log:   ctx.Log.Entries(),
		Names: ctx.Names.Snapshot(),
	}
}
