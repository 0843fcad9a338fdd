package codegen

import (
	"testing"

	"github.com/minz/wasmpipe/pkg/ir"
)

type fakeBackend struct {
	name string
	caps BackendCapabilities
}

func (f *fakeBackend) Name() string                      { return f.name }
func (f *fakeBackend) Capabilities() BackendCapabilities  { return f.caps }
func (f *fakeBackend) SupportsFeature(feature string) bool {
	switch feature {
	case FeatureWasmOptimizations:
		return f.caps.WasmOptimizations
	case FeatureThinMonomorphization:
		return f.caps.ThinMonomorphization
	default:
		return false
	}
}
func (f *fakeBackend) Compile(*ir.Module, BackendOptions) (*CompilationResult, error) {
	return &CompilationResult{}, nil
}

func TestValidateBackendRejectsMissingCapabilities(t *testing.T) {
	b := &fakeBackend{name: "incomplete", caps: BackendCapabilities{WasmOptimizations: true}}
	if err := ValidateBackend(b); err == nil {
		t.Fatal("expected ValidateBackend to reject a backend missing thin_monomorphization")
	}

	b2 := &fakeBackend{name: "complete", caps: BackendCapabilities{WasmOptimizations: true, ThinMonomorphization: true}}
	if err := ValidateBackend(b2); err != nil {
		t.Fatalf("expected a fully-capable backend to validate, got %v", err)
	}
}

func TestRecommendDevelopmentAndFreestandingAlwaysPickFast(t *testing.T) {
	for _, p := range []BuildProfile{ProfileDevelopment, ProfileFreestanding} {
		name, fellBack, _ := Recommend(p)
		if name != "fast" || fellBack {
			t.Fatalf("profile %v: expected (fast, false), got (%s, %v)", p, name, fellBack)
		}
	}
}

func TestRecommendReleaseFallsBackWithoutAggressiveRegistered(t *testing.T) {
	name, fellBack, reason := Recommend(ProfileRelease)
	if name != "fast" || !fellBack || reason == "" {
		t.Fatalf("expected a fallback to fast with a reason when aggressive isn't registered, got (%s, %v, %q)", name, fellBack, reason)
	}
}

func TestRecommendReleasePicksAggressiveWhenRegistered(t *testing.T) {
	RegisterBackend("aggressive", func() Backend { return &fakeBackend{name: "aggressive"} })
	defer delete(registry, "aggressive")

	name, fellBack, _ := Recommend(ProfileRelease)
	if name != "aggressive" || fellBack {
		t.Fatalf("expected (aggressive, false) once registered, got (%s, %v)", name, fellBack)
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	RegisterBackend("fake", func() Backend { return &fakeBackend{name: "fake"} })
	defer delete(registry, "fake")

	found := false
	for _, name := range ListBackends() {
		if name == "fake" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected ListBackends to include a just-registered backend")
	}
	if GetBackend("fake") == nil {
		t.Fatal("expected GetBackend to construct the registered backend")
	}
	if GetBackend("does-not-exist") != nil {
		t.Fatal("expected GetBackend to return nil for an unregistered name")
	}
}

func TestBackendErrorString(t *testing.T) {
	err := &BackendError{Kind: ErrUnsupported, Detail: "f64 arithmetic"}
	if err.Error() == "" {
		t.Fatal("expected a non-empty error string")
	}
}
