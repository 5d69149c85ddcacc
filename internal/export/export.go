// Package export projects the shared entity database down to one flattened
// database for a single target.
//
// Two projections exist:
//   - [ModeTagged] keeps the entities and values selected by a set of release
//     and feature tags, for editor consumption.
//   - [ModeEngine] collapses every tag dimension to one concrete value per
//     key, for machine consumption.
//
// Both modes work on a deep copy; the loaded database is never modified.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/entunify/internal/entity"
	"github.com/MrWong99/entunify/internal/observe"
	"github.com/MrWong99/entunify/pkg/tags"
)

// Mode selects the projection.
type Mode string

const (
	// ModeTagged filters by requested release and feature tags.
	ModeTagged Mode = "tagged"

	// ModeEngine resolves every key to one machine-oriented value.
	ModeEngine Mode = "engine"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeTagged, ModeEngine:
		return true
	}
	return false
}

// Options configures [Project].
type Options struct {
	// Mode is the projection. Required.
	Mode Mode

	// Tags are the requested tags for [ModeTagged]. Ignored, with a warning,
	// in [ModeEngine].
	Tags []string

	// Vocab validates and expands Tags. Defaults to [tags.Default].
	Vocab *tags.Vocabulary

	// Polyfills applied in [ModeTagged]. Nil means [DefaultPolyfills].
	Polyfills []Polyfill

	// Logger defaults to [slog.Default].
	Logger *slog.Logger

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// ── Diagnostics ──────────────────────────────────────────────────────────────

// Diagnostic is a non-fatal finding raised while flattening.
type Diagnostic struct {
	Classname string
	Key       string
	Message   string
}

func (d Diagnostic) String() string {
	if d.Key == "" {
		return d.Classname + ": " + d.Message
	}
	return d.Classname + "." + d.Key + ": " + d.Message
}

// Report collects the outcome of one [Project] call.
type Report struct {
	// Search is the expanded tag set used for selection. Engine mode
	// reports {ENGINE}.
	Search tags.Set

	// Polyfills names the polyfills that were applied.
	Polyfills []string

	Diagnostics []Diagnostic
}

// ── Errors ───────────────────────────────────────────────────────────────────

// AmbiguousKeyError reports a key for which more than one alternative is
// selected by the requested tags.
type AmbiguousKeyError struct {
	Classname string
	Category  string
	Key       string
	Matches   []tags.Set
}

func (e *AmbiguousKeyError) Error() string {
	sets := make([]string, 0, len(e.Matches))
	for _, s := range e.Matches {
		sets = append(sets, s.String())
	}
	return fmt.Sprintf("export: %s %s.%s is ambiguous, matched by %s",
		e.Classname, e.Category, e.Key, strings.Join(sets, " and "))
}

// EngineChoicesError reports an ENGINE-tagged value of kind choices.
type EngineChoicesError struct {
	Classname string
	Category  string
	Key       string
}

func (e *EngineChoicesError) Error() string {
	return fmt.Sprintf("export: %s %s.%s: engine values cannot be choices", e.Classname, e.Category, e.Key)
}

// UnknownBaseError reports an inheritance reference to a missing classname.
type UnknownBaseError struct {
	Classname string
	Base      string
}

func (e *UnknownBaseError) Error() string {
	return fmt.Sprintf("export: %s inherits from unknown entity %q", e.Classname, e.Base)
}

// CycleError reports an inheritance cycle.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return "export: inheritance cycle: " + strings.Join(e.Chain, " -> ")
}

// ── Project ──────────────────────────────────────────────────────────────────

// projector carries the state of one projection.
type projector struct {
	opts   Options
	vocab  *tags.Vocabulary
	log    *slog.Logger
	met    *observe.Metrics
	report *Report
	ctx    context.Context
}

func (p *projector) warn(classname, key, format string, args ...any) {
	d := Diagnostic{Classname: classname, Key: key, Message: fmt.Sprintf(format, args...)}
	p.report.Diagnostics = append(p.report.Diagnostics, d)
	p.log.Warn(d.Message, "classname", classname, "key", key)
	p.met.RecordDiagnostic(p.ctx, string(p.opts.Mode))
}

// Project returns the projection of db selected by opts. Fatal conditions
// ([AmbiguousKeyError], [EngineChoicesError], [UnknownBaseError],
// [CycleError], invalid tags) are joined into the returned error; the report
// is returned either way.
func Project(ctx context.Context, db *entity.Database, opts Options) (*entity.Database, *Report, error) {
	if !opts.Mode.IsValid() {
		return nil, nil, fmt.Errorf("export: unknown mode %q", opts.Mode)
	}
	p := &projector{
		opts:   opts,
		vocab:  opts.Vocab,
		log:    opts.Logger,
		met:    opts.Metrics,
		report: &Report{},
	}
	if p.vocab == nil {
		p.vocab = tags.Default()
	}
	if p.met == nil {
		p.met = observe.DefaultMetrics()
	}
	if p.opts.Polyfills == nil {
		p.opts.Polyfills = DefaultPolyfills()
	}

	ctx, span := observe.StartSpan(ctx, "export.Project")
	defer span.End()
	defer p.met.Time(ctx, "export")()
	p.ctx = ctx
	p.log = observe.Logger(ctx, p.log).With("mode", string(opts.Mode))

	var (
		out *entity.Database
		err error
	)
	switch opts.Mode {
	case ModeTagged:
		out, err = p.tagged(db)
	case ModeEngine:
		out, err = p.engine(db)
	}
	if err != nil {
		return nil, p.report, err
	}

	p.met.RecordExport(ctx, string(opts.Mode), out.Len())
	p.log.Info("projection finished",
		"entities", out.Len(),
		"diagnostics", len(p.report.Diagnostics),
	)
	return out, p.report, nil
}

// dropBases removes every remaining base entity from db.
func dropBases(db *entity.Database) {
	for _, e := range db.List() {
		if e.IsBase() {
			_ = db.Remove(e.Classname)
		}
	}
}
