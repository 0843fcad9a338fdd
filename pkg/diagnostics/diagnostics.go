// Package diagnostics carries the span/severity vocabulary shared by every
// pass in the pipeline (lowering, linear, optimizer, codegen): a
// Diagnostic{Severity, Span, Message} plus an Accumulator for passes that
// report many problems in one run instead of failing on the first (spec.md
// §4.8). Per-pass error *kinds* (LoweringError, LinearError, BackendError,
// ...) stay in their own packages — this package owns only what is common
// across them. Grounded on minzc's pkg/semantic/error_position.go
// (ErrorWithPosition's File/Position/Message shape, its errorAt positioned-
// error helper) generalized from MinZ-source positions to IR SourceLocations,
// and pkg/semantic/analyzer.go's accumulated a.errors batch + single
// formatted report.
package diagnostics

import (
	"fmt"
	"strings"

	"github.com/minz/wasmpipe/pkg/ir"
)

// Severity classifies a diagnostic's urgency.
type Severity uint8

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityNote
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityNote:
		return "note"
	default:
		return "unknown"
	}
}

// SourceSpan locates a diagnostic in the original input. It is a thin
// re-export of ir.SourceLocation's shape so every pass can produce one
// without importing a diagnostics-specific location type.
type SourceSpan struct {
	File   string
	Line   int
	Column int
}

// SpanOf converts an ir.SourceLocation into a SourceSpan.
func SpanOf(loc ir.SourceLocation) SourceSpan {
	return SourceSpan{File: loc.File, Line: loc.Line, Column: loc.Column}
}

// Diagnostic is one reported problem: a severity, an optional span, and a
// human-readable message.
type Diagnostic struct {
	Severity Severity
	Span     SourceSpan
	HasSpan  bool
	Message  string
}

func (d Diagnostic) String() string {
	if d.HasSpan && d.Span.File != "" {
		return fmt.Sprintf("%s:%d:%d: %s: %s", d.Span.File, d.Span.Line, d.Span.Column, d.Severity, d.Message)
	}
	if d.HasSpan {
		return fmt.Sprintf("line %d, col %d: %s: %s", d.Span.Line, d.Span.Column, d.Severity, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Severity, d.Message)
}

// At builds an error-severity Diagnostic with a span, the common case a
// pass reaches for when it finds one problem in one place.
func At(loc ir.SourceLocation, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: SeverityError, Span: SpanOf(loc), HasSpan: true, Message: fmt.Sprintf(format, args...)}
}

// Accumulator collects diagnostics across a pass that continues past a
// local error instead of aborting on the first one — lowering is the only
// pass in this pipeline that does this (spec.md §4.8); validation, linear
// checking, and backend compilation all fail fast and never touch this type.
type Accumulator struct {
	diags []Diagnostic
}

// Add records a diagnostic.
func (a *Accumulator) Add(d Diagnostic) {
	a.diags = append(a.diags, d)
}

// HasErrors reports whether any accumulated diagnostic is SeverityError.
func (a *Accumulator) HasErrors() bool {
	for _, d := range a.diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// All returns every accumulated diagnostic, in report order.
func (a *Accumulator) All() []Diagnostic {
	return a.diags
}

// Err returns nil if no error-severity diagnostic was recorded, or a single
// error joining every accumulated diagnostic's message otherwise — matching
// the teacher's analyzer.go "semantic analysis failed with N errors" report
// shape.
func (a *Accumulator) Err() error {
	if !a.HasErrors() {
		return nil
	}
	lines := make([]string, 0, len(a.diags))
	for _, d := range a.diags {
		lines = append(lines, d.String())
	}
	return fmt.Errorf("compilation failed with %d diagnostic(s):\n%s", len(a.diags), strings.Join(lines, "\n"))
}
