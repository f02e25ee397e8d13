package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasmbind/engine"
	"github.com/wippyai/wasmbind/marshal"
	"github.com/wippyai/wasmbind/runtime"
)

type options struct {
	wasmFile    string
	funcName    string
	cacheDir    string
	args        []string
	stackSize   uint
	memoryPages uint
	list        bool
	stubImports bool
	verbose     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.wasmFile, "wasm", "", "Path to core wasm module")
	flag.StringVar(&opts.funcName, "func", "", "Function to call (optional)")
	flag.StringVar(&opts.cacheDir, "cache", "", "Compilation cache directory")
	flag.UintVar(&opts.stackSize, "stack", runtime.DefaultStackSize, "Value stack size in bytes")
	flag.UintVar(&opts.memoryPages, "memory-pages", 0, "Memory limit in 64KiB pages (0 = no limit)")
	flag.BoolVar(&opts.list, "list", false, "List exports and imports and exit")
	flag.BoolVar(&opts.stubImports, "stub-imports", true, "Link imports to stubs that print their arguments and return zeros")
	flag.BoolVar(&opts.verbose, "v", false, "Verbose debug logging")
	interactive := flag.Bool("i", false, "Interactive mode with TUI")
	flag.Parse()
	opts.args = flag.Args()

	if opts.wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: wasmcall -wasm <file.wasm> [-func name] [args...]")
		fmt.Fprintln(os.Stderr, "       wasmcall -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       wasmcall -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	logger := zap.NewNop()
	if opts.verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		logger = l
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	if err := engine.Init(engine.ProcessConfig{Logger: logger}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = engine.Shutdown(ctx) }()

	if *interactive {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// session is a loaded module ready to be called.
type session struct {
	env *runtime.Environment
	rt  *runtime.Runtime
	mod *runtime.Module
}

func open(ctx context.Context, opts options, stubOut io.Writer) (*session, error) {
	if opts.stackSize > math.MaxUint32 {
		return nil, fmt.Errorf("-stack %d exceeds %d bytes", opts.stackSize, uint32(math.MaxUint32))
	}
	if opts.memoryPages > math.MaxUint32 {
		return nil, fmt.Errorf("-memory-pages %d exceeds %d", opts.memoryPages, uint32(math.MaxUint32))
	}

	data, err := os.ReadFile(opts.wasmFile)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	env, err := runtime.NewEnvironment(ctx, &runtime.EnvironmentConfig{
		CompilationCacheDir: opts.cacheDir,
		MemoryLimitPages:    uint32(opts.memoryPages),
	})
	if err != nil {
		return nil, fmt.Errorf("create environment: %w", err)
	}
	rt, err := env.NewRuntime(ctx, uint32(opts.stackSize))
	if err != nil {
		_ = env.Close(ctx)
		return nil, fmt.Errorf("create runtime: %w", err)
	}
	mod, err := rt.LoadModule(ctx, data)
	if err != nil {
		_ = env.Close(ctx)
		return nil, fmt.Errorf("load module: %w", err)
	}

	s := &session{env: env, rt: rt, mod: mod}
	if opts.stubImports {
		if err := s.stubImports(stubOut); err != nil {
			_ = env.Close(ctx)
			return nil, err
		}
	}
	return s, nil
}

// stubImports links every function import to a stub that prints the call
// and returns zero values.
func (s *session) stubImports(w io.Writer) error {
	for _, imp := range s.mod.Imports() {
		if imp.Kind != "func" {
			continue
		}
		name := imp.Module + "." + imp.Name
		sig := imp.Signature
		err := s.mod.LinkRawHostFunction(imp.Module, imp.Name, sig, func(cc *runtime.CallContext, stack []uint64) error {
			args := make([]string, len(sig.Params))
			for i, k := range sig.Params {
				args[i] = marshal.FromBits(k, stack[i]).String()
			}
			fmt.Fprintf(w, "%s %s(%s)\n", importStyle.Render("import"), name, strings.Join(args, ", "))
			clear(stack[:len(sig.Results)])
			return nil
		})
		if err != nil {
			return fmt.Errorf("stub %s: %w", name, err)
		}
	}
	return nil
}

func (s *session) close(ctx context.Context) {
	_ = s.env.Close(ctx)
}

func run(ctx context.Context, opts options) error {
	s, err := open(ctx, opts, os.Stdout)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	name := s.mod.Name()
	if name == "" {
		name = opts.wasmFile
	}
	fmt.Printf("%s %s\n", titleStyle.Render("Module"), name)
	printExports(s.mod)
	printImports(s.mod)

	if opts.list {
		return nil
	}

	funcName := opts.funcName
	if funcName == "" {
		funcName = defaultEntry(s.mod)
		if funcName == "" {
			fmt.Printf("\nNo function specified and no common entry point found.\n")
			fmt.Printf("Use -func to specify a function to call.\n")
			return nil
		}
	}

	fn, err := runtime.FindDynamicFunction(s.mod, funcName)
	if err != nil {
		return err
	}
	args, err := parseArgs(fn.Signature(), opts.args)
	if err != nil {
		return fmt.Errorf("arguments for %s: %w", funcName, err)
	}

	fmt.Printf("\nCalling %s(%s)...\n", funcStyle.Render(funcName), joinValues(args))
	results, err := fn.Call(ctx, args...)
	if err != nil {
		return fmt.Errorf("call %s: %w", funcName, err)
	}
	fmt.Printf("Result: %s\n", resultStyle.Render(formatResults(results)))
	return nil
}

func printExports(mod *runtime.Module) {
	fmt.Printf("\nExports:\n")
	for _, e := range mod.Exports() {
		switch {
		case !e.Supported:
			fmt.Printf("  %s %s %s\n", e.Kind, e.Name, errorStyle.Render("(unsupported types)"))
		case e.Kind == "func":
			fmt.Printf("  func   %s%s\n", funcStyle.Render(e.Name), typeStyle.Render(e.Signature.String()))
		case e.Kind == "global":
			fmt.Printf("  global %s %s\n", funcStyle.Render(e.Name), typeStyle.Render(e.Global.String()))
		default:
			fmt.Printf("  %-6s %s\n", e.Kind, e.Name)
		}
	}
}

func printImports(mod *runtime.Module) {
	imports := mod.Imports()
	if len(imports) == 0 {
		return
	}
	fmt.Printf("\nImports:\n")
	for _, imp := range imports {
		fmt.Printf("  %s.%s%s\n", imp.Module, imp.Name, typeStyle.Render(imp.Signature.String()))
	}
}

func defaultEntry(mod *runtime.Module) string {
	var funcs []string
	for _, e := range mod.Exports() {
		if e.Kind == "func" && e.Supported {
			funcs = append(funcs, e.Name)
		}
	}
	for _, name := range []string{"_start", "run", "main"} {
		for _, f := range funcs {
			if f == name {
				return name
			}
		}
	}
	if len(funcs) == 1 {
		return funcs[0]
	}
	return ""
}

func parseArgs(sig runtime.Signature, raw []string) ([]marshal.Value, error) {
	if len(raw) != len(sig.Params) {
		return nil, fmt.Errorf("want %d arguments %s, got %d", len(sig.Params), sig, len(raw))
	}
	args := make([]marshal.Value, len(raw))
	for i, s := range raw {
		v, err := marshal.ParseValue(sig.Params[i], s)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}

func joinValues(values []marshal.Value) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v.Interface())
	}
	return strings.Join(parts, ", ")
}

func formatResults(values []marshal.Value) string {
	switch len(values) {
	case 0:
		return "()"
	case 1:
		return values[0].String()
	default:
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = v.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
}
