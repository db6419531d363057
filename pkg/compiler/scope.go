package compiler

import (
	"fmt"
	"strings"

	"lambda/interpreter-go/pkg/runtime"
)

// Scope resolves free names for one source file: its own package first
// (private names included), then the public names of its imports.
type Scope struct {
	pkg     *Package
	imports []*Package
}

func (r *Registry) scope(pkgName string, imports []string) (*Scope, []error) {
	pkg, ok := r.packages[pkgName]
	if !ok {
		pkg = &Package{Name: pkgName, symbols: map[string]symbol{}}
	}
	sc := &Scope{pkg: pkg}
	var errs []error
	seen := map[string]struct{}{pkgName: {}}
	for _, name := range append(append([]string{}, imports...), r.implicit...) {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		imported, ok := r.packages[name]
		if !ok {
			errs = append(errs, runtime.NewError(runtime.ErrorImport, fmt.Sprintf("unknown package %s", name)))
			continue
		}
		sc.imports = append(sc.imports, imported)
	}
	return sc, errs
}

func (s *Scope) resolve(name string) (symbol, error) {
	if sym, ok := s.pkg.symbols[name]; ok {
		return sym, nil
	}
	var (
		found   symbol
		sources []string
	)
	for _, imported := range s.imports {
		sym, ok := imported.symbols[name]
		if !ok || sym.private {
			continue
		}
		if len(sources) == 0 {
			found = sym
		}
		sources = append(sources, imported.Name)
	}
	switch len(sources) {
	case 0:
		if s.hiddenIn(name) != "" {
			return symbol{}, runtime.NewError(runtime.ErrorUnboundName, fmt.Sprintf("%s is private to package %s", name, s.hiddenIn(name)))
		}
		return symbol{}, runtime.NewError(runtime.ErrorUnboundName, fmt.Sprintf("undefined name %s", name))
	case 1:
		return found, nil
	default:
		return symbol{}, runtime.NewError(runtime.ErrorAmbiguousName, fmt.Sprintf("%s is exported by several imported packages (%s)", name, strings.Join(sources, ", ")))
	}
}

func (s *Scope) hiddenIn(name string) string {
	for _, imported := range s.imports {
		if sym, ok := imported.symbols[name]; ok && sym.private {
			return imported.Name
		}
	}
	return ""
}
