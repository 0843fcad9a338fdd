// Command wasmpipegen drives the MIR->IR->wasm pipeline end to end: parse a
// MIR text file, lower it, run the linear-type passes, optimize, pick (or
// force) a backend, and write the resulting wasm bytes to disk. Flag layout
// and the silent-unless-debug convention are grounded on minzc's
// cmd/minzc/main.go (rootCmd, -o/-O/-d/-b/-t flags, --list-backends).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/minz/wasmpipe/pkg/codegen"
	_ "github.com/minz/wasmpipe/pkg/codegen/aggressive"
	_ "github.com/minz/wasmpipe/pkg/codegen/fast"
	"github.com/minz/wasmpipe/pkg/ir"
	"github.com/minz/wasmpipe/pkg/linear"
	"github.com/minz/wasmpipe/pkg/lowering"
	"github.com/minz/wasmpipe/pkg/mir"
	"github.com/minz/wasmpipe/pkg/optimizer"
)

var (
	outputFile   string
	optimize     bool
	debug        bool
	backend      string
	target       string
	profile      string
	profileData  string
	listBackends bool
)

var rootCmd = &cobra.Command{
	Use:   "wasmpipegen [mir file]",
	Short: "MIR to WebAssembly pipeline driver",
	Long: `wasmpipegen - MIR -> IR -> WebAssembly compiler driver

PIPELINE STAGES:
  1. parse   - read a .mir text file into pkg/mir's AST
  2. lower   - translate MIR into the typed pkg/ir representation
  3. check   - run the linear-type passes (destruction, path-completeness,
               unconsumed-return, capability-escape, unwind discipline)
  4. optimize - run the standard optimizer pass list
  5. codegen - pick a backend (fast or aggressive) and emit wasm bytes

BACKENDS:
  fast        - direct encoder, dispatch-loop CFG lowering, compile cache
  aggressive  - LLIR-mediated optimizing backend, PGO-capable

BUILD PROFILES (used by -p/--profile to pick a backend when -b is unset):
  development  - fast backend, quick iteration
  freestanding - fast backend, no host runtime assumed
  release      - aggressive backend, heaviest optimization

EXAMPLES:
  wasmpipegen add.mir                       # development profile, recommended backend
  wasmpipegen add.mir -p release -o add.wasm
  wasmpipegen add.mir -b aggressive -O --profile-data edges.bin
  wasmpipegen --list-backends
`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if listBackends {
			for _, name := range codegen.ListBackends() {
				fmt.Println(name)
			}
			return
		}
		if len(args) == 0 {
			cmd.Help()
			os.Exit(0)
		}
		if err := run(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output file (default: input.wasm)")
	rootCmd.Flags().BoolVarP(&optimize, "optimize", "O", false, "run the optimizer pass list before codegen")
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "print pipeline stage progress to stderr")
	rootCmd.Flags().StringVarP(&backend, "backend", "b", "", "force a backend (fast, aggressive); default: recommended for --profile")
	rootCmd.Flags().StringVarP(&profile, "profile", "p", "development", "build profile (development, freestanding, release)")
	rootCmd.Flags().StringVarP(&target, "target", "t", "generic", "target identifier recorded in compilation metadata")
	rootCmd.Flags().StringVar(&profileData, "profile-data", "", "path to a PGO per-block execution-count blob (aggressive backend only)")
	rootCmd.Flags().BoolVar(&listBackends, "list-backends", false, "list available backends")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseProfile(s string) (codegen.BuildProfile, error) {
	switch s {
	case "development":
		return codegen.ProfileDevelopment, nil
	case "freestanding":
		return codegen.ProfileFreestanding, nil
	case "release":
		return codegen.ProfileRelease, nil
	default:
		return 0, fmt.Errorf("unknown profile %q", s)
	}
}

func run(sourceFile string) error {
	if debug {
		fmt.Fprintf(os.Stderr, "parsing %s...\n", sourceFile)
	}
	mirModule, err := mir.ParseMIRFile(sourceFile)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	if debug {
		fmt.Fprintf(os.Stderr, "lowering %d function(s)...\n", len(mirModule.Functions))
	}
	irModule, err := lowering.LowerModule(mirModule)
	if err != nil {
		return fmt.Errorf("lowering: %w", err)
	}

	if err := checkLinearity(irModule); err != nil {
		return err
	}

	if optimize {
		if debug {
			fmt.Fprintf(os.Stderr, "optimizing...\n")
		}
		if err := optimizer.New().Optimize(irModule); err != nil {
			return fmt.Errorf("optimization: %w", err)
		}
	}

	buildProfile, err := parseProfile(profile)
	if err != nil {
		return err
	}

	backendName := backend
	fellBack, reason := false, ""
	if backendName == "" {
		backendName, fellBack, reason = codegen.Recommend(buildProfile)
		if debug && fellBack {
			fmt.Fprintf(os.Stderr, "recommend: fell back to %s backend: %s\n", backendName, reason)
		}
	}
	b := codegen.GetBackend(backendName)
	if b == nil {
		return fmt.Errorf("unknown backend: %s", backendName)
	}
	if err := codegen.ValidateBackend(b); err != nil {
		return fmt.Errorf("backend %s: %w", backendName, err)
	}

	opts := codegen.BackendOptions{
		Profile: buildProfile,
		Target:  target,
		Debug:   debug,
	}
	if profileData != "" {
		data, err := os.ReadFile(profileData)
		if err != nil {
			return fmt.Errorf("reading profile data: %w", err)
		}
		opts.ProfileData = data
	}

	if debug {
		fmt.Fprintf(os.Stderr, "codegen: using %s backend (target=%s, profile=%s)\n", backendName, target, buildProfile)
	}
	result, err := b.Compile(irModule, opts)
	if err != nil {
		return fmt.Errorf("codegen: %w", err)
	}
	result.Metadata.FellBackToFast = fellBack
	result.Metadata.FallbackReason = reason

	out := outputFile
	if out == "" {
		out = defaultOutputName(sourceFile)
	}
	if err := os.WriteFile(out, result.Code, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}

	if debug {
		fmt.Fprintf(os.Stderr, "wrote %s (%d bytes, %d function(s), %d optimization pass(es))\n",
			out, len(result.Code), result.Stats.FunctionsCompiled, result.Stats.OptimizationPasses)
	}
	return nil
}

// checkLinearity runs the linear-type passes over every function, failing
// on the first violation found (linear.Check itself does not accumulate —
// a single ill-formed function aborts compilation, matching the ordered
// pass semantics in linear/errors.go).
func checkLinearity(m *ir.Module) error {
	for _, fn := range m.Functions {
		if err := linear.Check(fn); err != nil {
			return fmt.Errorf("linear check failed in %s: %w", fn.Name, err)
		}
	}
	return nil
}

func defaultOutputName(sourceFile string) string {
	ext := "wasm"
	for i := len(sourceFile) - 1; i >= 0 && sourceFile[i] != '/'; i-- {
		if sourceFile[i] == '.' {
			return sourceFile[:i+1] + ext
		}
	}
	return sourceFile + "." + ext
}
