// Package fast implements the direct IR-to-wasm-binary backend: a section
// builder, an LEB128 encoder, and a CFG-aware instruction encoder, composed
// behind the shared codegen.Backend contract (spec.md §4.5). It assumes a
// linear stack machine model and performs no register allocation, since
// wasm itself is a stack machine.
package fast

import (
	"time"

	"github.com/minz/wasmpipe/pkg/codegen"
	"github.com/minz/wasmpipe/pkg/ir"
)

func init() {
	codegen.RegisterBackend("fast", func() codegen.Backend { return New() })
}

// Backend is the fast, direct-emission wasm backend.
type Backend struct {
	cache map[uint64][]byte
}

// New constructs a fast Backend with an empty compile cache.
func New() *Backend {
	return &Backend{cache: make(map[uint64][]byte)}
}

func (b *Backend) Name() string { return "fast" }

func (b *Backend) Capabilities() codegen.BackendCapabilities {
	return codegen.BackendCapabilities{
		ThinMonomorphization: true,
		StreamingLayout:      true,
		PGOSupport:           false,
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

// Compile assembles module into a complete wasm binary. Per spec.md §4.5
// "Caching", each function's structural hash is checked against the
// backend's compile cache before re-encoding; the hash is a 64-bit FNV-1a
// over a canonical textual rendering of the function (signature, blocks,
// instructions), not the IR pointer identity, so two distinct ir.Function
// values with identical structure still share a cache entry.
func (b *Backend) Compile(module *ir.Module, opts codegen.BackendOptions) (*codegen.CompilationResult, error) {
	start := nowMillis()
	gen := newGenerator()

	for _, fn := range module.Functions {
		h := structuralHash(fn)
		if cached, ok := b.cache[h]; ok {
			gen.addCachedFunction(fn, cached)
			continue
		}
		if err := gen.addFunction(fn); err != nil {
			return nil, err
		}
		b.cache[h] = gen.codes[len(gen.codes)-1]
	}

	return finishResult(gen, start, opts), nil
}

// CompileModule runs the section builder and instruction encoder over module
// without consulting or populating any compile cache, producing the same
// wasm bytes Backend.Compile would on a cold cache. Exposed so the
// aggressive backend (pkg/codegen/aggressive) can reuse this encoder for its
// own final emission after its LLIR-level passes have rewritten module,
// rather than duplicating the section/LEB128/dispatch-loop machinery.
func CompileModule(module *ir.Module, opts codegen.BackendOptions) (*codegen.CompilationResult, error) {
	start := nowMillis()
	gen := newGenerator()
	for _, fn := range module.Functions {
		if err := gen.addFunction(fn); err != nil {
			return nil, err
		}
	}
	return finishResult(gen, start, opts), nil
}

func finishResult(gen *generator, start int64, opts codegen.BackendOptions) *codegen.CompilationResult {
	code := gen.emit()
	stats := gen.stats
	stats.CompilationTimeMs = nowMillis() - start

	return &codegen.CompilationResult{
		Code:    code,
		Symbols: gen.symbols(),
		Metadata: codegen.CompilationMetadata{
			Target:            opts.Target,
			OptimizationLevel: 0,
			BuildProfile:      opts.Profile,
			Timestamp:         start,
		},
		Stats: stats,
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
