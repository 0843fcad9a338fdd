package aggressive

import (
	"time"

	llvmir "github.com/llir/llvm/ir"

	"github.com/minz/wasmpipe/pkg/codegen"
	"github.com/minz/wasmpipe/pkg/codegen/fast"
	"github.com/minz/wasmpipe/pkg/ir"
	"github.com/minz/wasmpipe/pkg/optimizer"
)

func init() {
	codegen.RegisterBackend("aggressive", func() codegen.Backend { return New() })
}

// Backend is the heavy, LLIR-mediated release backend.
type Backend struct{}

// New constructs an aggressive Backend.
func New() *Backend { return &Backend{} }

func (b *Backend) Name() string { return "aggressive" }

func (b *Backend) Capabilities() codegen.BackendCapabilities {
	return codegen.BackendCapabilities{
		ThinMonomorphization: true,
		StreamingLayout:      true,
		PGOSupport:           true,
		ComponentModel:       false,
		WasmOptimizations:    true,
		LinearTypes:          true,
	}
}

func (b *Backend) SupportsFeature(feature string) bool {
	caps := b.Capabilities()
	switch feature {
	case codegen.FeatureThinMonomorphization:
		return caps.ThinMonomorphization
	case codegen.FeatureStreamingLayout:
		return caps.StreamingLayout
	case codegen.FeaturePGOSupport:
		return caps.PGOSupport
	case codegen.FeatureComponentModel:
		return caps.ComponentModel
	case codegen.FeatureWasmOptimizations:
		return caps.WasmOptimizations
	case codegen.FeatureLinearTypes:
		return caps.LinearTypes
	default:
		return false
	}
}

// Compile builds genuine LLIR for module, runs the LLIR pass list over it,
// feeds the verifiable results (blocks proven unreachable) back onto the
// source IR, and delegates final wasm emission to the fast backend's shared
// encoder (spec.md §4.6: "Output is still wasm bytes — semantically
// equivalent to what the fast backend would produce"). Stats records how
// many LLIR passes ran; no pass removes a whole function from the emitted
// module: doing so would drop an exported symbol, breaking the
// CompilationResult.Symbols contract both backends must honor identically.
func (b *Backend) Compile(module *ir.Module, opts codegen.BackendOptions) (*codegen.CompilationResult, error) {
	start := nowMillis()

	level := optStandard
	if opts.Profile == codegen.ProfileRelease {
		level = optAggressive
	}

	funcIndex := make(map[string]*llvmir.Func)
	_, mappings, err := lowerModule(module, funcIndex)
	if err != nil {
		return nil, &codegen.BackendError{Kind: codegen.ErrCompilationFailed, Detail: err.Error()}
	}

	var totalPasses int
	var profile *edgeProfile
	if len(opts.ProfileData) > 0 {
		profile = parseProfile(opts.ProfileData)
	}

	for _, m := range mappings {
		res := optimizeFunction(m.llfn, level)
		totalPasses += res.passesRun
		applyFeedback(m, res)

		usedProfile := false
		if profile != nil {
			if counts, ok := profile.counts[m.src.Name]; ok {
				usedProfile = reorderByProfile(m.src, counts)
			}
		}
		if !usedProfile {
			layout := &optimizer.StreamingLayout{}
			if _, err := layout.Run(m.src); err != nil {
				return nil, &codegen.BackendError{Kind: codegen.ErrOptimizationFailed, Detail: err.Error()}
			}
		}
	}

	result, err := fast.CompileModule(module, opts)
	if err != nil {
		return nil, err
	}
	result.Stats.OptimizationPasses = totalPasses
	result.Stats.CompilationTimeMs = nowMillis() - start
	result.Metadata.OptimizationLevel = int(level)
	return result, nil
}

// applyFeedback drops the blocks of m.src whose LLIR counterpart proved
// unreachable during optimizeFunction, by BlockId (the one piece of LLIR
// analysis this package trusts enough to mutate the source IR with, since
// block removal can never change a function's external signature or symbol
// table the way function-level inlining removal would).
func applyFeedback(m *funcMapping, res *funcOptResult) {
	if res.survivingBlocks == nil {
		return
	}
	survivingIDs := make(map[ir.BlockId]bool, len(res.survivingBlocks))
	for id, blk := range m.blockOf {
		if res.survivingBlocks[blk] {
			survivingIDs[id] = true
		}
	}
	if len(survivingIDs) == len(m.src.Blocks) {
		return
	}
	kept := m.src.Blocks[:0:0]
	for _, blk := range m.src.Blocks {
		if blk.ID == 0 || survivingIDs[blk.ID] {
			kept = append(kept, blk)
		}
	}
	m.src.Blocks = kept
	m.src.Reindex()
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
