package linear

import (
	"testing"

	"github.com/minz/wasmpipe/pkg/ir"
	"github.com/minz/wasmpipe/pkg/lowering"
	"github.com/minz/wasmpipe/pkg/mir"
)

func lowerOne(t *testing.T, src string) *ir.Function {
	t.Helper()
	m, err := mir.ParseMIRString("t.mir", src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := lowering.LowerModule(m)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	return out.Functions[0]
}

func TestLinearConsumedOnceOK(t *testing.T) {
	f := lowerOne(t, `
fn take(linear h: i32) -> () {
bb0:
  StorageLive(tmp)
  tmp = move h
  StorageDead(tmp)
  return
}
`)
	if err := Check(f); err != nil {
		t.Fatalf("expected no linear violation, got %v", err)
	}
}

func TestLinearImplicitDrop(t *testing.T) {
	f := lowerOne(t, `
fn leak(linear h: i32) -> () {
bb0:
  StorageDead(h)
  return
}
`)
	err := Check(f)
	if err == nil {
		t.Fatal("expected an ImplicitDrop violation")
	}
	le, ok := err.(*Error)
	if !ok || le.Kind != ImplicitDrop {
		t.Fatalf("expected ImplicitDrop, got %v", err)
	}
}

func TestLinearUnconsumedReturn(t *testing.T) {
	f := lowerOne(t, `
fn forget(linear h: i32) -> () {
bb0:
  return
}
`)
	err := Check(f)
	if err == nil {
		t.Fatal("expected an UnconsumedReturn violation")
	}
	le, ok := err.(*Error)
	if !ok || le.Kind != UnconsumedReturn {
		t.Fatalf("expected UnconsumedReturn, got %v", err)
	}
}

func TestLinearDoubleConsume(t *testing.T) {
	f := lowerOne(t, `
fn twice(linear h: i32) -> () {
bb0:
  StorageLive(a)
  a = move h
  StorageLive(b)
  b = move h
  return
}
`)
	err := Check(f)
	if err == nil {
		t.Fatal("expected a DoubleConsume violation")
	}
}
