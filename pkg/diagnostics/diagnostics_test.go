package diagnostics

import (
	"strings"
	"testing"

	"github.com/minz/wasmpipe/pkg/ir"
)

func TestAtBuildsErrorSeverityDiagnosticWithSpan(t *testing.T) {
	d := At(ir.SourceLocation{File: "a.mir", Line: 3, Column: 5}, "bad thing: %s", "oops")
	if d.Severity != SeverityError {
		t.Fatalf("expected SeverityError, got %v", d.Severity)
	}
	if !d.HasSpan {
		t.Fatal("expected At to set HasSpan")
	}
	if !strings.Contains(d.String(), "a.mir:3:5") {
		t.Fatalf("expected rendered diagnostic to include file:line:col, got %q", d.String())
	}
	if !strings.Contains(d.String(), "oops") {
		t.Fatalf("expected rendered diagnostic to include formatted message, got %q", d.String())
	}
}

func TestAccumulatorHasErrorsOnlyCountsErrorSeverity(t *testing.T) {
	acc := &Accumulator{}
	acc.Add(Diagnostic{Severity: SeverityWarning, Message: "heads up"})
	if acc.HasErrors() {
		t.Fatal("expected a warning-only accumulator to report no errors")
	}
	if acc.Err() != nil {
		t.Fatal("expected Err to be nil with no error-severity diagnostics")
	}

	acc.Add(At(ir.SourceLocation{}, "broken"))
	if !acc.HasErrors() {
		t.Fatal("expected HasErrors to report true after an error diagnostic is added")
	}
	if acc.Err() == nil {
		t.Fatal("expected Err to report a non-nil error once an error diagnostic is present")
	}
	if len(acc.All()) != 2 {
		t.Fatalf("expected All to report both diagnostics, got %d", len(acc.All()))
	}
}

func TestSpanOfConvertsSourceLocation(t *testing.T) {
	span := SpanOf(ir.SourceLocation{File: "f.mir", Line: 1, Column: 2})
	if span.File != "f.mir" || span.Line != 1 || span.Column != 2 {
		t.Fatalf("unexpected span: %+v", span)
	}
}
