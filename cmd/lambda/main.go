package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lambda/interpreter-go/pkg/compiler"
	"lambda/interpreter-go/pkg/driver"
	"lambda/interpreter-go/pkg/interpreter"
	"lambda/interpreter-go/pkg/typechecker"
)

const cliToolVersion = "lambda-cli 0.1.0-dev"

var errManifestNotFound = errors.New("package.yml not found")

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 1
	}

	switch args[0] {
	case "--help", "-h", "help":
		printUsage()
		return 0
	case "--version", "-V", "version":
		fmt.Fprintln(os.Stdout, cliToolVersion)
		return 0
	case "run":
		return runEntry("run", args[1:])
	case "check":
		return runEntry("check", args[1:])
	case "repl":
		return runRepl(args[1:])
	case "deps":
		return runDeps(args[1:])
	default:
		if looksLikePathCandidate(args[0]) {
			return runEntry("run", args)
		}
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		printUsage()
		return 1
	}
}

// evalFlags are the evaluation flags shared by run, check and repl. set
// records which ones appeared on the command line so they can override the
// manifest.
type evalFlags struct {
	maxSteps  int
	maxDepth  int
	strict    bool
	noPrelude bool
	trace     bool
	set       map[string]bool
}

func parseEvalFlags(command string, args []string) (*evalFlags, []string, error) {
	fs := flag.NewFlagSet("lambda "+command, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	flags := &evalFlags{set: make(map[string]bool)}
	fs.IntVar(&flags.maxSteps, "max-steps", interpreter.DefaultMaxSteps, "application steps allowed per statement (negative disables)")
	fs.IntVar(&flags.maxDepth, "max-depth", interpreter.DefaultMaxDepth, "nested saturations allowed per statement (negative disables)")
	fs.BoolVar(&flags.strict, "strict", false, "treat missing preconditions as errors")
	fs.BoolVar(&flags.noPrelude, "no-prelude", false, "do not import the prelude implicitly")
	fs.BoolVar(&flags.trace, "trace", false, "write every application step to stderr")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	fs.Visit(func(f *flag.Flag) { flags.set[f.Name] = true })
	return flags, fs.Args(), nil
}

type evalSettings struct {
	maxSteps int
	maxDepth int
	strict   bool
	prelude  bool
	trace    bool
}

// resolveSettings layers command-line flags over the manifest's evaluation
// section over the built-in defaults.
func resolveSettings(manifest *driver.Manifest, flags *evalFlags) evalSettings {
	settings := evalSettings{prelude: true}
	if manifest != nil {
		cfg := manifest.Evaluation
		settings.maxSteps = cfg.MaxSteps
		settings.maxDepth = cfg.MaxDepth
		settings.strict = cfg.StrictPreconditions
		if cfg.Prelude != nil {
			settings.prelude = *cfg.Prelude
		}
	}
	if flags == nil {
		return settings
	}
	if flags.set["max-steps"] {
		settings.maxSteps = flags.maxSteps
	}
	if flags.set["max-depth"] {
		settings.maxDepth = flags.maxDepth
	}
	if flags.set["strict"] {
		settings.strict = flags.strict
	}
	if flags.set["no-prelude"] {
		settings.prelude = !flags.noPrelude
	}
	settings.trace = flags.trace
	return settings
}

func (s evalSettings) interpreterOptions() interpreter.Options {
	opts := interpreter.Options{MaxSteps: s.maxSteps, MaxDepth: s.maxDepth}
	if s.trace {
		opts.Trace = os.Stderr
	}
	return opts
}

func runEntry(command string, args []string) int {
	flags, rest, err := parseEvalFlags(command, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if len(rest) > 1 {
		fmt.Fprintf(os.Stderr, "unexpected arguments: %s\n", strings.Join(rest[1:], " "))
		return 1
	}
	target := ""
	if len(rest) == 1 {
		target = rest[0]
	}

	entry, manifest, err := resolveEntryTarget(command, target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	lock, err := loadLockfileForManifest(manifest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	settings := resolveSettings(manifest, flags)
	if command == "check" {
		return checkEntry(entry, lock, settings)
	}
	return executeEntry(entry, lock, settings)
}

// resolveEntryTarget picks the file or directory to load. Without a target
// the nearest manifest decides: its entry when set, otherwise its directory.
func resolveEntryTarget(command, target string) (string, *driver.Manifest, error) {
	if target == "" {
		manifest, err := loadManifestFrom(".")
		if err != nil {
			if errors.Is(err, errManifestNotFound) {
				return "", nil, fmt.Errorf("lambda %s requires a source file or directory (package.yml not found)", command)
			}
			return "", nil, fmt.Errorf("failed to load manifest: %w", err)
		}
		return manifestEntry(manifest), manifest, nil
	}

	manifest, err := loadManifestFrom(target)
	switch {
	case err == nil:
	case errors.Is(err, errManifestNotFound):
		return target, nil, nil
	default:
		return "", nil, fmt.Errorf("failed to read manifest for %s: %w", target, err)
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return "", nil, fmt.Errorf("resolve %s: %w", target, err)
	}
	if abs == filepath.Dir(manifest.Path) {
		return manifestEntry(manifest), manifest, nil
	}
	return target, manifest, nil
}

func manifestEntry(manifest *driver.Manifest) string {
	if entry, err := manifest.EntryPath(); err == nil {
		return entry
	}
	return filepath.Dir(manifest.Path)
}

func loadProgram(entry string, lock *driver.Lockfile, settings evalSettings) (*driver.Program, error) {
	extras, err := buildExecutionSearchPaths(lock)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare execution environment: %w", err)
	}
	loader, err := driver.NewLoader(collectSearchPaths(extras...), settings.prelude)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loader: %w", err)
	}
	program, err := loader.Load(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to load program: %w", err)
	}
	return program, nil
}

func executeEntry(entry string, lock *driver.Lockfile, settings evalSettings) int {
	program, err := loadProgram(entry, lock, settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	var failed *interpreter.StatementResult
	result, err := interpreter.EvaluateProgram(program, interpreter.ProgramEvaluationOptions{
		Strict:      settings.strict,
		Interpreter: settings.interpreterOptions(),
		OnResult: func(res interpreter.StatementResult) {
			switch {
			case res.Err != nil:
				failed = &res
			case res.Statement.Kind == compiler.StatementEval:
				fmt.Fprintln(os.Stdout, interpreter.DescribeResult(res))
			}
		},
	})
	printDiagnostics(result.Diagnostics)

	var assertErr *interpreter.AssertionError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &assertErr):
		fmt.Fprintln(os.Stderr, assertErr.Error())
	case failed != nil:
		fmt.Fprintf(os.Stderr, "runtime error: %s\n", interpreter.DescribeResult(*failed))
	default:
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	return 1
}

func checkEntry(entry string, lock *driver.Lockfile, settings evalSettings) int {
	program, err := loadProgram(entry, lock, settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	diags, err := interpreter.TypecheckProgram(program, settings.strict)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	printDiagnostics(diags)
	if typechecker.HasErrors(diags) {
		return 1
	}
	registry, err := interpreter.CompileProgram(program)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	definitions := 0
	for _, mod := range program.Modules {
		if mod.Kind == driver.RootUser {
			definitions += len(registry.Definitions(mod.Package))
		}
	}
	fmt.Fprintf(os.Stdout, "ok: %d package(s), %d definition(s), %d warning(s)\n", len(program.Modules), definitions, len(diags))
	return 0
}

func printDiagnostics(diags []typechecker.Diagnostic) {
	for _, diag := range diags {
		fmt.Fprintln(os.Stderr, typechecker.Describe(diag))
	}
}

func runDeps(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "lambda deps requires a subcommand (install, update)")
		return 1
	}
	switch args[0] {
	case "install":
		if len(args) > 1 {
			fmt.Fprintf(os.Stderr, "lambda deps install does not take arguments (received %s)\n", strings.Join(args[1:], " "))
			return 1
		}
		return runDepsInstall()
	case "update":
		return runDepsUpdate(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown deps subcommand %q\n", args[0])
		return 1
	}
}

// depsContext is what both deps subcommands need before resolving.
type depsContext struct {
	manifest    *driver.Manifest
	cacheDir    string
	lock        *driver.Lockfile
	lockCreated bool
}

func openDepsContext() (*depsContext, error) {
	manifest, err := loadManifestFrom(".")
	if err != nil {
		if errors.Is(err, errManifestNotFound) {
			return nil, fmt.Errorf("unable to locate package.yml: %w", err)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	cacheDir, err := resolveLambdaHome()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve LAMBDA_HOME: %w", err)
	}

	ctx := &depsContext{manifest: manifest, cacheDir: cacheDir}
	lockPath := filepath.Join(filepath.Dir(manifest.Path), driver.LockfileName)
	lock, err := driver.LoadLockfile(lockPath)
	switch {
	case err == nil:
		if lock.Root != manifest.Name {
			return nil, fmt.Errorf("lockfile root %q does not match manifest name %q", lock.Root, manifest.Name)
		}
	case errors.Is(err, os.ErrNotExist):
		lock = driver.NewLockfile(manifest.Name, cliToolVersion)
		ctx.lockCreated = true
	default:
		return nil, fmt.Errorf("failed to read lockfile: %w", err)
	}
	lock.Path = lockPath
	lock.Tool = cliToolVersion
	ctx.lock = lock
	return ctx, nil
}

// resolve runs the installer and writes the lockfile when it changed.
func (c *depsContext) resolve(verb string, installer *dependencyInstaller) (bool, error) {
	changed, logs, err := installer.Install(c.lock)
	for _, line := range logs {
		fmt.Fprintln(os.Stdout, line)
	}
	if err != nil {
		return false, fmt.Errorf("failed to %s dependencies: %w", verb, err)
	}
	if !changed && !c.lockCreated {
		return false, nil
	}
	if err := driver.WriteLockfile(c.lock, c.lock.Path); err != nil {
		return false, fmt.Errorf("failed to write lockfile: %w", err)
	}
	return true, nil
}

func runDepsInstall() int {
	ctx, err := openDepsContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stdout, "Manifest: %s\n", ctx.manifest.Path)
	fmt.Fprintf(os.Stdout, "Root package: %s\n", ctx.manifest.Name)
	fmt.Fprintf(os.Stdout, "Dependencies: %d\n", len(ctx.manifest.Dependencies)+len(ctx.manifest.DevDependencies))
	fmt.Fprintf(os.Stdout, "Cache directory: %s\n", ctx.cacheDir)

	wrote, err := ctx.resolve("resolve", newDependencyInstaller(ctx.manifest, ctx.cacheDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	switch {
	case wrote && ctx.lockCreated:
		fmt.Fprintf(os.Stdout, "Created package.lock: %s\n", ctx.lock.Path)
	case wrote:
		fmt.Fprintf(os.Stdout, "Updated package.lock: %s\n", ctx.lock.Path)
	default:
		fmt.Fprintf(os.Stdout, "package.lock already up to date: %s\n", ctx.lock.Path)
	}
	fmt.Fprintln(os.Stdout, "Dependencies installed.")
	return 0
}

// runDepsUpdate re-resolves the named git pins (all of them without targets)
// instead of reusing their locked commits.
func runDepsUpdate(targets []string) int {
	ctx, err := openDepsContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	installer := newDependencyInstaller(ctx.manifest, ctx.cacheDir)
	installer.refreshAll = len(targets) == 0
	installer.refresh = make(map[string]bool, len(targets))
	for _, target := range targets {
		name := driver.SanitizeName(target)
		if ctx.manifest.Dependencies[target] == nil && ctx.manifest.DevDependencies[target] == nil {
			if _, ok := ctx.lock.Lookup(name); !ok {
				fmt.Fprintf(os.Stderr, "dependency %q not declared in manifest\n", target)
				return 1
			}
		}
		installer.refresh[name] = true
	}

	wrote, err := ctx.resolve("update", installer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	if wrote {
		fmt.Fprintf(os.Stdout, "Updated package.lock: %s\n", ctx.lock.Path)
	} else {
		fmt.Fprintln(os.Stdout, "Dependencies already up to date.")
	}
	return 0
}

// collectSearchPaths merges lockfile roots with LAMBDA_PATH, keeping only
// existing directories and the first occurrence of each.
func collectSearchPaths(extra ...driver.SearchPath) []driver.SearchPath {
	seen := make(map[string]struct{})
	var paths []driver.SearchPath

	add := func(path string) {
		if path == "" {
			return
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			return
		}
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		paths = append(paths, driver.SearchPath{Path: abs, Kind: driver.RootUser})
	}

	for _, sp := range extra {
		add(sp.Path)
	}
	for _, part := range strings.Split(os.Getenv("LAMBDA_PATH"), string(os.PathListSeparator)) {
		add(strings.TrimSpace(part))
	}
	return paths
}

// buildExecutionSearchPaths turns locked packages into loader roots, failing
// when a locked directory has gone missing.
func buildExecutionSearchPaths(lock *driver.Lockfile) ([]driver.SearchPath, error) {
	if lock == nil {
		return nil, nil
	}
	paths := lock.SearchPaths()
	for _, sp := range paths {
		if _, err := os.Stat(sp.Path); err != nil {
			return nil, fmt.Errorf("locked dependency directory %s is unavailable (run `lambda deps install`): %w", sp.Path, err)
		}
	}
	return paths, nil
}

func loadManifestFrom(start string) (*driver.Manifest, error) {
	if start == "" {
		start = "."
	}
	absStart, err := filepath.Abs(start)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest search path %q: %w", start, err)
	}
	manifestPath, err := findManifest(absStart)
	if err != nil {
		return nil, err
	}
	return driver.LoadManifest(manifestPath)
}

func findManifest(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve start directory %q: %w", start, err)
	}
	if info, statErr := os.Stat(dir); statErr == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	origin := dir
	for {
		candidate := filepath.Join(dir, driver.ManifestName)
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s found from %s upwards: %w", driver.ManifestName, origin, errManifestNotFound)
		}
		dir = parent
	}
}

func resolveLambdaHome() (string, error) {
	if home := strings.TrimSpace(os.Getenv("LAMBDA_HOME")); home != "" {
		abs, err := filepath.Abs(home)
		if err != nil {
			return "", fmt.Errorf("resolve LAMBDA_HOME %q: %w", home, err)
		}
		return abs, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}
	return filepath.Join(userHome, ".lambda"), nil
}

func looksLikePathCandidate(arg string) bool {
	if arg == "" {
		return false
	}
	if strings.ContainsAny(arg, `/\`) || strings.Contains(arg, string(os.PathSeparator)) {
		return true
	}
	return filepath.Ext(arg) == driver.SourceExtension || strings.HasPrefix(arg, ".")
}

func loadLockfileForManifest(manifest *driver.Manifest) (*driver.Lockfile, error) {
	if manifest == nil {
		return nil, nil
	}
	lockPath := filepath.Join(filepath.Dir(manifest.Path), driver.LockfileName)
	lock, err := driver.LoadLockfile(lockPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if manifest.HasDependencies() {
				return nil, fmt.Errorf("package.lock missing for %q; run `lambda deps install`", manifest.Name)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read lockfile %s: %w", lockPath, err)
	}
	if lock.Root != manifest.Name {
		return nil, fmt.Errorf("lockfile root %q does not match manifest name %q", lock.Root, manifest.Name)
	}
	return lock, nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  lambda run [flags] [file.lam|dir]")
	fmt.Fprintln(os.Stderr, "  lambda check [flags] [file.lam|dir]")
	fmt.Fprintln(os.Stderr, "  lambda repl [flags] [file.lam|dir]")
	fmt.Fprintln(os.Stderr, "  lambda <file.lam>")
	fmt.Fprintln(os.Stderr, "  lambda deps install")
	fmt.Fprintln(os.Stderr, "  lambda deps update [dependency ...]")
	fmt.Fprintln(os.Stderr, "  lambda version")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Flags:")
	fmt.Fprintln(os.Stderr, "  --max-steps N   application steps per statement (default 1000000, negative disables)")
	fmt.Fprintln(os.Stderr, "  --max-depth N   nested saturations per statement (default 10000, negative disables)")
	fmt.Fprintln(os.Stderr, "  --strict        treat missing preconditions as errors")
	fmt.Fprintln(os.Stderr, "  --no-prelude    do not import the prelude implicitly")
	fmt.Fprintln(os.Stderr, "  --trace         write every application step to stderr")
}
