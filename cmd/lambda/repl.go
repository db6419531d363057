package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/exp/slices"

	"lambda/interpreter-go/pkg/ast"
	"lambda/interpreter-go/pkg/compiler"
	"lambda/interpreter-go/pkg/driver"
	"lambda/interpreter-go/pkg/interpreter"
	"lambda/interpreter-go/pkg/parser"
	"lambda/interpreter-go/pkg/runtime"
	"lambda/interpreter-go/pkg/stdlib"
	"lambda/interpreter-go/pkg/typechecker"
)

const (
	replPackage  = "repl"
	replSource   = "<repl>"
	historyFile  = ".lambda_history"
	promptMain   = "λ> "
	promptCont   = ".. "
	replHelpText = `Enter declarations (fn, atom, import, eval, assert) or an expression.
  :number <expr>   decode a numeral
  :bool <expr>     decode a boolean
  :defs            list session definitions
  :quit            leave the session`
)

// replSession keeps the declarations entered so far. Every accepted
// declaration rebuilds the registry from the base sources plus the whole
// session, so earlier names never change meaning underneath later ones.
type replSession struct {
	base     []compiler.Source
	implicit []string
	imports  []string
	snippets []string
	settings evalSettings
	checker  *typechecker.Checker
	parser   *parser.ModuleParser
	registry *compiler.Registry
	interp   *interpreter.Interpreter
	out      io.Writer
	errOut   io.Writer
}

func newReplSession(program *driver.Program, settings evalSettings, out, errOut io.Writer) (*replSession, error) {
	s := &replSession{
		settings: settings,
		checker:  typechecker.New(typechecker.Options{Strict: settings.strict}),
		parser:   parser.NewModuleParser(),
		out:      out,
		errOut:   errOut,
	}
	if program != nil {
		s.base = interpreter.ProgramSources(program)
		s.implicit = program.Implicit
		s.imports = []string{program.Entry.Package}
	}
	if err := s.rebuild(nil); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *replSession) rebuild(snippets []string) error {
	sources := slices.Clone(s.base)
	if len(snippets) > 0 {
		module, err := s.parser.ParseModule([]byte(strings.Join(snippets, "\n")))
		if err != nil {
			return err
		}
		sources = append(sources, compiler.Source{Package: replPackage, Path: replSource, Module: module})
	}
	registry, err := compiler.Compile(sources, compiler.Options{
		Natives:         stdlib.Natives(),
		ImplicitImports: s.implicit,
	})
	if err != nil {
		return err
	}
	s.registry = registry
	s.interp = interpreter.New(registry, s.settings.interpreterOptions())
	s.snippets = snippets
	return nil
}

// Handle processes one complete input. It returns false when the session
// should end.
func (s *replSession) Handle(input string) bool {
	input = strings.TrimSpace(input)
	if input == "" {
		return true
	}
	if strings.HasPrefix(input, ":") {
		return s.command(input)
	}
	if parser.StartsWithDeclaration([]byte(input)) {
		s.declare(input)
		return true
	}
	if val, err := s.resolve(input); err != nil {
		fmt.Fprintln(s.errOut, err)
	} else {
		fmt.Fprintln(s.out, runtime.Format(val))
	}
	return true
}

func (s *replSession) command(input string) bool {
	name, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case ":quit", ":q":
		return false
	case ":help":
		fmt.Fprintln(s.out, replHelpText)
	case ":defs":
		for _, def := range s.registry.Definitions(replPackage) {
			fmt.Fprintf(s.out, "%s/%d\n", def.Name, def.Arity())
		}
	case ":number", ":bool":
		if rest == "" {
			fmt.Fprintf(s.errOut, "%s needs an expression\n", name)
			return true
		}
		val, err := s.resolve(rest)
		if err != nil {
			fmt.Fprintln(s.errOut, err)
			return true
		}
		if name == ":number" {
			n, err := s.interp.DecodeNumber(val)
			if err != nil {
				fmt.Fprintln(s.errOut, err)
				return true
			}
			fmt.Fprintln(s.out, n.String())
			return true
		}
		b, err := s.interp.DecodeBool(val)
		if err != nil {
			fmt.Fprintln(s.errOut, err)
			return true
		}
		fmt.Fprintln(s.out, b)
	default:
		fmt.Fprintf(s.errOut, "unknown command %s (try :help)\n", name)
	}
	return true
}

func (s *replSession) resolve(input string) (runtime.Value, error) {
	expr, err := s.parser.ParseExpression([]byte(input))
	if err != nil {
		return nil, err
	}
	return s.interp.Resolve(replPackage, s.imports, expr)
}

// declare checks a declaration on its own, then admits it into the session
// and runs any eval or assert statements it carried.
func (s *replSession) declare(input string) {
	module, err := s.parser.ParseModule([]byte(input))
	if err != nil {
		fmt.Fprintln(s.errOut, err)
		return
	}
	if module.Package != nil {
		fmt.Fprintln(s.errOut, "package statements are not allowed in the repl")
		return
	}
	diags, err := s.checker.CheckModule(replPackage, module)
	if err != nil {
		fmt.Fprintln(s.errOut, err)
		return
	}
	printDiagnosticsTo(s.errOut, diags)
	if typechecker.HasErrors(diags) {
		return
	}

	before := len(s.registry.Statements(replPackage))
	if err := s.rebuild(append(slices.Clone(s.snippets), input)); err != nil {
		fmt.Fprintln(s.errOut, err)
		return
	}
	for _, imp := range module.Imports {
		if name := ast.JoinPath(imp.PackagePath); !slices.Contains(s.imports, name) {
			s.imports = append(s.imports, name)
		}
	}
	for _, stmt := range s.registry.Statements(replPackage)[before:] {
		res := s.interp.RunStatement(stmt)
		switch {
		case res.Err != nil:
			fmt.Fprintln(s.errOut, res.Err)
		case stmt.Kind == compiler.StatementEval:
			fmt.Fprintln(s.out, runtime.Format(res.Value))
		case !res.Passed:
			fmt.Fprintf(s.errOut, "assertion failed: expected %s, got %s\n", runtime.Format(res.Expected), runtime.Format(res.Value))
		}
	}
	for _, def := range module.Body {
		if d, ok := def.(*ast.Definition); ok {
			fmt.Fprintf(s.out, "defined %s\n", d.ID.Name)
		}
	}
}

func printDiagnosticsTo(w io.Writer, diags []typechecker.Diagnostic) {
	for _, diag := range diags {
		fmt.Fprintln(w, typechecker.Describe(diag))
	}
}

// inputComplete reports whether buffered REPL input can be handed to the
// session: brackets balance and declarations end with a semicolon. Comments
// are skipped the way the lexer skips them.
func inputComplete(src string) bool {
	depth := 0
	inString := false
	var last byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case inString && c == '\\':
			i++
			continue
		case c == '"':
			inString = !inString
		case inString:
		case strings.HasPrefix(src[i:], "//"):
			end := strings.IndexByte(src[i:], '\n')
			if end < 0 {
				i = len(src)
			} else {
				i += end
			}
			continue
		case strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return false
			}
			i += end + 3
			continue
		case c == '{' || c == '(':
			depth++
		case c == '}' || c == ')':
			depth--
		}
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			last = c
		}
	}
	if depth > 0 || inString {
		return false
	}
	trimmed := strings.TrimSpace(src)
	if strings.HasPrefix(trimmed, ":") || !parser.StartsWithDeclaration([]byte(trimmed)) {
		return true
	}
	return last == ';'
}

func readInput(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", true
		}
		if err != nil {
			return "", false
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if src := b.String(); inputComplete(src) {
			return src, true
		}
	}
}

func runRepl(args []string) int {
	flags, rest, err := parseEvalFlags("repl", args)
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

	var program *driver.Program
	settings := resolveSettings(nil, flags)
	if len(rest) == 1 {
		entry, manifest, err := resolveEntryTarget("repl", rest[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		lock, err := loadLockfileForManifest(manifest)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		settings = resolveSettings(manifest, flags)
		if program, err = loadProgram(entry, lock, settings); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
	} else if settings.prelude {
		if program, err = preludeProgram(); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
	}

	session, err := newReplSession(program, settings, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start session: %v\n", err)
		return 1
	}

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	histPath := ""
	if home, err := resolveLambdaHome(); err == nil {
		histPath = filepath.Join(home, historyFile)
		if f, err := os.Open(histPath); err == nil {
			_, _ = ln.ReadHistory(f)
			_ = f.Close()
		}
	}

	fmt.Fprintf(os.Stdout, "%s (:help for commands)\n", cliToolVersion)
	for {
		input, ok := readInput(ln)
		if !ok {
			fmt.Fprintln(os.Stdout)
			break
		}
		if strings.TrimSpace(input) != "" {
			ln.AppendHistory(strings.ReplaceAll(input, "\n", " "))
		}
		if !session.Handle(input) {
			break
		}
	}

	if histPath != "" {
		if err := os.MkdirAll(filepath.Dir(histPath), 0o755); err == nil {
			if f, err := os.Create(histPath); err == nil {
				_, _ = ln.WriteHistory(f)
				_ = f.Close()
			}
		}
	}
	return 0
}

// preludeProgram stands in for a project when the REPL starts without one.
func preludeProgram() (*driver.Program, error) {
	loader, err := driver.NewLoader(nil, true)
	if err != nil {
		return nil, err
	}
	prelude, err := loader.LoadPrelude()
	if err != nil {
		return nil, err
	}
	return &driver.Program{Entry: prelude, Modules: []*driver.Module{prelude}, Implicit: []string{stdlib.PreludePackage}}, nil
}
