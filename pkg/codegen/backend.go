// Package codegen defines the Backend contract and factory shared by the
// fast (codegen/fast) and aggressive (codegen/aggressive) wasm emitters
// (spec.md §4.7), grounded on minzc's pkg/codegen/backend.go registry/
// factory pattern (BackendFactory function type, package-level registry,
// RegisterBackend/GetBackend/ListBackends) kept almost verbatim in shape —
// adapted from a flat feature-string set (z80/6502-era FeatureSelfModifying
// Code etc.) to the wasm-specific BackendCapabilities struct spec.md names,
// and from a bare name->Backend lookup to a build-profile recommender
// matching original_source/src/backend/mod.rs's BackendFactory::
// create_backend / recommend_backend / validate_backend decision table.
package codegen

import (
	"fmt"

	"github.com/minz/wasmpipe/pkg/ir"
)

// BuildProfile selects which backend the factory recommends for a
// compilation (spec.md §4.7's table).
type BuildProfile uint8

const (
	ProfileDevelopment BuildProfile = iota
	ProfileFreestanding
	ProfileRelease
)

func (p BuildProfile) String() string {
	switch p {
	case ProfileDevelopment:
		return "development"
	case ProfileFreestanding:
		return "freestanding"
	case ProfileRelease:
		return "release"
	default:
		return "unknown"
	}
}

// BackendCapabilities is the capability set a backend publishes so the
// factory's validator can reject an incomplete implementation.
type BackendCapabilities struct {
	ThinMonomorphization bool
	StreamingLayout      bool
	PGOSupport           bool
	ComponentModel       bool
	WasmOptimizations    bool
	LinearTypes          bool
}

// RelocationKind enumerates the closed set of relocation kinds a backend may
// emit alongside compiled code.
type RelocationKind uint8

const (
	RelocAbsolute RelocationKind = iota
	RelocRelative
	RelocFunctionCall
	RelocDataAccess
	RelocGlobalAccess
)

func (k RelocationKind) String() string {
	switch k {
	case RelocAbsolute:
		return "absolute"
	case RelocRelative:
		return "relative"
	case RelocFunctionCall:
		return "function_call"
	case RelocDataAccess:
		return "data_access"
	case RelocGlobalAccess:
		return "global_access"
	default:
		return "unknown"
	}
}

// Relocation records one location in CompilationResult.Code that a linker
// (or the runtime loader) must patch.
type Relocation struct {
	Kind   RelocationKind
	Offset uint32
	Symbol string
	Addend int64
}

// CompilationMetadata records how a CompilationResult was produced, so a
// caller can tell e.g. that the aggressive backend fell back to the fast
// one (spec.md §4.6 "Fallback").
type CompilationMetadata struct {
	Target            string
	OptimizationLevel int
	BuildProfile      BuildProfile
	Timestamp         int64
	FellBackToFast    bool
	FallbackReason    string
}

// CompilationResult is a Backend.Compile's successful output.
type CompilationResult struct {
	Code         []byte
	Symbols      map[string]uint64
	Relocations  []Relocation
	Metadata     CompilationMetadata
	Stats        Stats
}

// Stats are the regression-harness-facing counters spec.md §4.5 requires
// every backend to track.
type Stats struct {
	FunctionsCompiled    int
	InstructionsGenerated int
	OptimizationPasses   int
	CompilationTimeMs    int64
}

// BackendOptions configures a single Compile call.
type BackendOptions struct {
	Profile     BuildProfile
	Target      string
	ProfileData []byte // PGO profile blob, aggressive backend only
	Debug       bool
}

// Backend is the contract both the fast and aggressive emitters satisfy.
type Backend interface {
	Name() string
	Compile(module *ir.Module, opts BackendOptions) (*CompilationResult, error)
	Capabilities() BackendCapabilities
	SupportsFeature(feature string) bool
}

// Common feature-query strings, mirrored from BackendCapabilities' fields so
// callers that only have a feature name (e.g. from a config file) can still
// query SupportsFeature.
const (
	FeatureThinMonomorphization = "thin_monomorphization"
	FeatureStreamingLayout      = "streaming_layout"
	FeaturePGOSupport           = "pgo_support"
	FeatureComponentModel       = "component_model"
	FeatureWasmOptimizations    = "wasm_optimizations"
	FeatureLinearTypes          = "linear_types"
)

// BackendFactory constructs a Backend instance, deferred so registration
// does not pay construction cost until a backend is actually selected.
type BackendFactory func() Backend

var registry = make(map[string]BackendFactory)

// RegisterBackend registers a backend constructor under name. Called from
// each backend package's init().
func RegisterBackend(name string, factory BackendFactory) {
	registry[name] = factory
}

// GetBackend constructs the named backend, or nil if no such backend is
// registered.
func GetBackend(name string) Backend {
	if factory, ok := registry[name]; ok {
		return factory()
	}
	return nil
}

// ListBackends returns every registered backend name.
func ListBackends() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// Recommend implements the profile -> backend table: Development and
// Freestanding always choose "fast"; Release chooses "aggressive" if
// registered, else falls back to "fast" and reports fellBack with a reason,
// which the caller records in CompilationMetadata. The choice depends on
// the build profile alone; no target is taken.
func Recommend(profile BuildProfile) (name string, fellBack bool, reason string) {
	switch profile {
	case ProfileDevelopment, ProfileFreestanding:
		return "fast", false, ""
	case ProfileRelease:
		if _, ok := registry["aggressive"]; ok {
			return "aggressive", false, ""
		}
		return "fast", true, "aggressive backend not built in"
	default:
		return "fast", false, ""
	}
}

// ValidateBackend rejects a backend that does not publish both
// wasm_optimizations and thin_monomorphization (spec.md §4.7).
func ValidateBackend(b Backend) error {
	caps := b.Capabilities()
	if !caps.WasmOptimizations {
		return fmt.Errorf("backend %q does not set wasm_optimizations", b.Name())
	}
	if !caps.ThinMonomorphization {
		return fmt.Errorf("backend %q does not set thin_monomorphization", b.Name())
	}
	return nil
}

// BackendErrorKind is the closed set of ways Backend.Compile can fail (spec.md
// §4.8).
type BackendErrorKind uint8

const (
	ErrCompilationFailed BackendErrorKind = iota
	ErrUnsupported
	ErrLinkingFailed
	ErrUnsupportedTarget
	ErrOptimizationFailed
	ErrResourceExhausted
)

func (k BackendErrorKind) String() string {
	switch k {
	case ErrCompilationFailed:
		return "CompilationFailed"
	case ErrUnsupported:
		return "Unsupported"
	case ErrLinkingFailed:
		return "LinkingFailed"
	case ErrUnsupportedTarget:
		return "UnsupportedTarget"
	case ErrOptimizationFailed:
		return "OptimizationFailed"
	case ErrResourceExhausted:
		return "ResourceExhausted"
	default:
		return "unknown"
	}
}

// BackendError reports a backend failure with its kind and a description.
type BackendError struct {
	Kind   BackendErrorKind
	Detail string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}
