// Package optimizer rewrites a function's IR in place through an ordered
// pass list — dead-code elimination, constant folding, strength reduction,
// streaming layout — per spec.md §4.4. Each pass must leave the function
// validatable; a pass whose result fails ir.Validate is reverted rather than
// applied, grounded on minzc's own optimizer.go orchestrator shape
// (pkg/optimizer/optimizer.go's Pass interface and fixed-point Optimize
// loop), adapted to a revert-on-failure contract spec.md calls out
// explicitly (§4.4 "Fail-safe") that the teacher's own loop does not have.
package optimizer

import (
	"fmt"

	"github.com/minz/wasmpipe/pkg/ir"
)

// Pass is a single optimization pass over one function. Run reports whether
// it changed the function; Optimizer only loops while at least one pass
// reports a change.
type Pass interface {
	Name() string
	Run(f *ir.Function) (bool, error)
}

// OptimizationFailed reports that a pass produced an invalid function; the
// orchestrator reverts to the pre-pass snapshot and surfaces this error.
type OptimizationFailed struct {
	Pass   string
	Reason string
}

func (e *OptimizationFailed) Error() string {
	return fmt.Sprintf("optimization pass %q failed: %s", e.Pass, e.Reason)
}

// StandardPasses returns the default ordered pass list from spec.md §4.4:
// DCE, constant folding, strength reduction, streaming layout.
func StandardPasses() []Pass {
	return []Pass{
		&DeadCodeElimination{},
		&ConstantFolding{},
		&StrengthReduction{},
		&StreamingLayout{},
	}
}

// Optimizer runs a configured pass list to a fixed point, per function.
type Optimizer struct {
	passes []Pass
}

// New creates an Optimizer running the standard pass list.
func New() *Optimizer {
	return &Optimizer{passes: StandardPasses()}
}

// NewWithPasses creates an Optimizer running a caller-supplied pass list, for
// tests that want to isolate one pass.
func NewWithPasses(passes []Pass) *Optimizer {
	return &Optimizer{passes: passes}
}

// Optimize runs every configured pass over every function in the module to a
// fixed point (bounded iteration, matching the teacher's own cap). Each pass
// application is validated; a pass that produces an invalid function is
// reverted and OptimizationFailed is returned immediately (§4.4 fail-safe —
// unlike lowering, the optimizer does not accumulate and continue).
func (o *Optimizer) Optimize(m *ir.Module) error {
	const maxIterations = 10
	for _, f := range m.Functions {
		for iter := 0; iter < maxIterations; iter++ {
			changed := false
			for _, pass := range o.passes {
				snapshot := cloneFunction(f)
				passChanged, err := pass.Run(f)
				if err != nil {
					*f = *snapshot
					return &OptimizationFailed{Pass: pass.Name(), Reason: err.Error()}
				}
				if passChanged {
					if verr := ir.Validate(f); verr != nil {
						*f = *snapshot
						return &OptimizationFailed{Pass: pass.Name(), Reason: verr.Error()}
					}
					changed = true
				}
			}
			if !changed {
				break
			}
		}
	}
	return nil
}

// cloneFunction makes a deep-enough copy to revert a failed pass: block and
// local slices are copied (instructions are value types, not pointers), as
// are the Args/Params slices inside instructions and each terminator's
// Cases, so mutating the original's slices in place never disturbs the
// snapshot.
func cloneFunction(f *ir.Function) *ir.Function {
	cp := *f
	cp.Locals = append([]ir.Local(nil), f.Locals...)
	cp.Blocks = make([]ir.BasicBlock, len(f.Blocks))
	for i, b := range f.Blocks {
		cp.Blocks[i] = b
		cp.Blocks[i].Instructions = append([]ir.Instruction(nil), b.Instructions...)
		for j := range cp.Blocks[i].Instructions {
			in := &cp.Blocks[i].Instructions[j]
			in.Args = append([]ir.Operand(nil), in.Args...)
			in.Params = append([]ir.LocalIdx(nil), in.Params...)
		}
		cp.Blocks[i].Terminator.Cases = append([]ir.SwitchCase(nil), b.Terminator.Cases...)
	}
	cp.LinearLocals = make(map[ir.LocalIdx]bool, len(f.LinearLocals))
	for k, v := range f.LinearLocals {
		cp.LinearLocals[k] = v
	}
	cp.Ownership = append([]ir.OwnershipAnnotation(nil), f.Ownership...)
	cp.Caps = make(ir.CapabilitySet, len(f.Caps))
	for k, v := range f.Caps {
		cp.Caps[k] = v
	}
	cp.Reindex()
	return &cp
}
