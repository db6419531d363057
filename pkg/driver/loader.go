package driver

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"lambda/interpreter-go/pkg/ast"
	"lambda/interpreter-go/pkg/parser"
	"lambda/interpreter-go/pkg/stdlib"
)

const (
	// SourceExtension marks files the loader picks up.
	SourceExtension = ".lam"
	// ManifestName is the package manifest looked up from the entry upwards.
	ManifestName = "package.yml"
)

type RootKind int

const (
	RootUser RootKind = iota
	RootStdlib
)

// SearchPath describes a package search root.
type SearchPath struct {
	Path string
	Kind RootKind
}

// File is one parsed source file.
type File struct {
	Path string
	AST  *ast.Module
}

// Module aggregates the files of one package.
type Module struct {
	Package string
	Kind    RootKind
	Files   []*File
	// Imports lists the packages this module's files import, sorted,
	// excluding itself and the host builtin package.
	Imports []string
}

// Program contains the entry package and dependency-ordered modules.
type Program struct {
	Entry   *Module
	Modules []*Module
	// Implicit names packages visible from every file without an import.
	Implicit []string
}

type packageLocation struct {
	rootDir  string
	rootName string
	kind     RootKind
	files    []string
	embedded []stdlib.PreludeFile
}

type packageOrigin struct {
	root string
	kind RootKind
}

type rootInfo struct {
	rootDir  string
	rootName string
	kind     RootKind
}

// Loader wires source files into packages.
type Loader struct {
	parser      *parser.ModuleParser
	searchPaths []SearchPath
	prelude     bool
}

// NewLoader constructs a loader over extra search roots. With prelude set the
// embedded prelude package is implicitly imported by every package.
func NewLoader(searchPaths []SearchPath, prelude bool) (*Loader, error) {
	unique := make([]SearchPath, 0, len(searchPaths))
	seen := make(map[string]struct{}, len(searchPaths))
	for _, sp := range searchPaths {
		if sp.Path == "" {
			continue
		}
		abs, err := filepath.Abs(sp.Path)
		if err != nil {
			return nil, fmt.Errorf("loader: resolve search path %q: %w", sp.Path, err)
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		unique = append(unique, SearchPath{Path: abs, Kind: RootUser})
	}
	return &Loader{parser: parser.NewModuleParser(), searchPaths: unique, prelude: prelude}, nil
}

// Load aggregates the entry package and its dependencies. entry may be a
// source file or a directory holding the entry package's files.
func (l *Loader) Load(entry string) (*Program, error) {
	if l == nil || l.parser == nil {
		return nil, fmt.Errorf("loader: not initialized")
	}
	if entry == "" {
		return nil, fmt.Errorf("loader: empty entry path")
	}
	entryPath, err := filepath.Abs(entry)
	if err != nil {
		return nil, fmt.Errorf("loader: resolve entry path: %w", err)
	}
	info, err := os.Stat(entryPath)
	if err != nil {
		return nil, fmt.Errorf("loader: stat entry %s: %w", entryPath, err)
	}
	entryDir := entryPath
	if !info.IsDir() {
		if filepath.Ext(entryPath) != SourceExtension {
			return nil, fmt.Errorf("loader: entry file %s is not a %s file", entryPath, SourceExtension)
		}
		entryDir = filepath.Dir(entryPath)
	}

	rootDir, rootName, err := discoverRoot(entryDir)
	if err != nil {
		return nil, err
	}
	entryRoot := rootInfo{rootDir: rootDir, rootName: rootName, kind: RootUser}

	entryPackages, fileIndex, err := indexSourceFiles(rootDir, rootName)
	if err != nil {
		return nil, err
	}
	entryPackage, err := resolveEntryPackage(entryPath, info.IsDir(), fileIndex)
	if err != nil {
		return nil, err
	}

	pkgIndex := make(map[string]*packageLocation, len(entryPackages)+1)
	origins := make(map[string]packageOrigin)
	if err := registerPackages(pkgIndex, entryPackages, entryRoot, origins, false); err != nil {
		return nil, err
	}
	if err := l.indexAdditionalRoots(pkgIndex, origins, entryRoot); err != nil {
		return nil, err
	}
	preludeFiles, err := stdlib.PreludeFiles()
	if err != nil {
		return nil, err
	}
	pkgIndex[stdlib.PreludePackage] = &packageLocation{rootName: stdlib.PreludePackage, kind: RootStdlib, embedded: preludeFiles}

	loaded := make(map[string]*Module, len(pkgIndex))
	inProgress := make(map[string]bool)
	var ordered []*Module

	var loadPackage func(string) (*Module, error)
	loadPackage = func(name string) (*Module, error) {
		if mod, ok := loaded[name]; ok {
			return mod, nil
		}
		if inProgress[name] {
			return nil, fmt.Errorf("loader: import cycle detected at package %s", name)
		}
		loc, ok := pkgIndex[name]
		if !ok || loc == nil || (len(loc.files) == 0 && len(loc.embedded) == 0) {
			return nil, fmt.Errorf("loader: package %s not found", name)
		}
		inProgress[name] = true
		defer delete(inProgress, name)

		mod, err := l.parsePackage(name, loc)
		if err != nil {
			return nil, err
		}

		deps := mod.Imports
		if l.prelude && name != stdlib.PreludePackage {
			deps = append([]string{stdlib.PreludePackage}, deps...)
		}
		for _, dep := range deps {
			if _, ok := pkgIndex[dep]; !ok {
				return nil, fmt.Errorf("loader: package %s imports unknown package %s", name, dep)
			}
			if _, err := loadPackage(dep); err != nil {
				return nil, err
			}
		}

		loaded[name] = mod
		ordered = append(ordered, mod)
		return mod, nil
	}

	entryModule, err := loadPackage(entryPackage)
	if err != nil {
		return nil, err
	}
	program := &Program{Entry: entryModule, Modules: ordered}
	if l.prelude {
		program.Implicit = []string{stdlib.PreludePackage}
	}
	return program, nil
}

// LoadPrelude parses the embedded prelude on its own.
func (l *Loader) LoadPrelude() (*Module, error) {
	files, err := stdlib.PreludeFiles()
	if err != nil {
		return nil, err
	}
	return l.parsePackage(stdlib.PreludePackage, &packageLocation{rootName: stdlib.PreludePackage, kind: RootStdlib, embedded: files})
}

func (l *Loader) parsePackage(name string, loc *packageLocation) (*Module, error) {
	mod := &Module{Package: name, Kind: loc.kind}
	importSet := make(map[string]struct{})
	add := func(path string, source []byte) error {
		moduleAST, err := l.parser.ParseModule(source)
		if err != nil {
			return fmt.Errorf("loader: parse %s: %w", path, err)
		}
		pkgName, err := packageNameFor(loc.rootDir, loc.rootName, path, moduleAST, loc.kind)
		if err != nil {
			return err
		}
		if pkgName != name {
			return fmt.Errorf("loader: file %s resolves to package %s, expected %s", path, pkgName, name)
		}
		for _, imp := range moduleAST.Imports {
			dep := ast.JoinPath(imp.PackagePath)
			if dep == "" || dep == name || dep == stdlib.BuiltinPackage {
				continue
			}
			importSet[dep] = struct{}{}
		}
		mod.Files = append(mod.Files, &File{Path: path, AST: moduleAST})
		return nil
	}
	for _, file := range loc.embedded {
		if err := add(file.Name, file.Source); err != nil {
			return nil, err
		}
	}
	for _, path := range loc.files {
		source, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loader: read %s: %w", path, err)
		}
		if err := add(path, source); err != nil {
			return nil, err
		}
	}
	mod.Imports = maps.Keys(importSet)
	slices.Sort(mod.Imports)
	return mod, nil
}

func resolveEntryPackage(entryPath string, isDir bool, fileIndex map[string]string) (string, error) {
	if !isDir {
		pkg, ok := fileIndex[entryPath]
		if !ok {
			return "", fmt.Errorf("loader: failed to resolve package for entry file %s", entryPath)
		}
		return pkg, nil
	}
	found := make(map[string]struct{})
	for path, pkg := range fileIndex {
		if filepath.Dir(path) == entryPath {
			found[pkg] = struct{}{}
		}
	}
	names := maps.Keys(found)
	slices.Sort(names)
	switch len(names) {
	case 0:
		return "", fmt.Errorf("loader: no %s files in %s", SourceExtension, entryPath)
	case 1:
		return names[0], nil
	default:
		return "", fmt.Errorf("loader: directory %s mixes packages %s", entryPath, strings.Join(names, ", "))
	}
}

func (l *Loader) indexAdditionalRoots(pkgIndex map[string]*packageLocation, origins map[string]packageOrigin, entryRoot rootInfo) error {
	usedList := []string{filepath.Clean(entryRoot.rootDir)}
	for _, root := range l.searchPaths {
		abs, rootName, err := discoverRootForPath(root.Path)
		if err != nil {
			return err
		}
		clean := filepath.Clean(abs)
		if slices.ContainsFunc(usedList, func(seen string) bool { return pathsOverlap(seen, clean) }) {
			continue
		}
		usedList = append(usedList, clean)
		info := rootInfo{rootDir: abs, rootName: rootName, kind: RootUser}
		packages, _, err := indexSourceFiles(abs, rootName)
		if err != nil {
			return err
		}
		if err := registerPackages(pkgIndex, packages, info, origins, true); err != nil {
			return err
		}
	}
	return nil
}

func isReservedPackage(name string) bool {
	first, _, _ := strings.Cut(name, ".")
	return first == stdlib.PreludePackage || first == stdlib.BuiltinPackage
}

func registerPackages(pkgIndex map[string]*packageLocation, packages map[string][]string, root rootInfo, origins map[string]packageOrigin, allowSkip bool) error {
	names := maps.Keys(packages)
	slices.Sort(names)
	for _, name := range names {
		files := packages[name]
		if len(files) == 0 {
			continue
		}
		if isReservedPackage(name) {
			if allowSkip {
				continue
			}
			return fmt.Errorf("loader: package name %s is reserved (path: %s)", name, root.rootDir)
		}
		if existing, ok := origins[name]; ok {
			return fmt.Errorf("loader: package %s found in multiple roots (%s, %s)", name, existing.root, root.rootDir)
		}
		origins[name] = packageOrigin{root: root.rootDir, kind: root.kind}
		pkgIndex[name] = &packageLocation{
			rootDir:  root.rootDir,
			rootName: root.rootName,
			kind:     root.kind,
			files:    files,
		}
	}
	return nil
}

func pathsOverlap(a, b string) bool {
	aClean := filepath.Clean(a)
	bClean := filepath.Clean(b)
	return containsPathPrefix(aClean, bClean) || containsPathPrefix(bClean, aClean)
}

func containsPathPrefix(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, ".."+string(os.PathSeparator)) && rel != "..")
}

// discoverRoot walks up from dir looking for a manifest; without one the
// directory itself is the root and names the package.
func discoverRoot(dir string) (string, string, error) {
	start := dir
	for {
		cfgPath := filepath.Join(dir, ManifestName)
		if _, err := os.Stat(cfgPath); err == nil {
			name, err := readPackageName(cfgPath)
			if err != nil {
				return "", "", err
			}
			if name == "" {
				return "", "", fmt.Errorf("loader: %s at %s missing name", ManifestName, cfgPath)
			}
			return dir, sanitizeSegment(name), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return start, sanitizeSegment(filepath.Base(start)), nil
}

func discoverRootForPath(path string) (string, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", fmt.Errorf("loader: resolve search path %q: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", "", fmt.Errorf("loader: stat search path %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", "", fmt.Errorf("loader: search path %s is not a directory", abs)
	}
	name := ""
	cfgPath := filepath.Join(abs, ManifestName)
	if _, err := os.Stat(cfgPath); err == nil {
		if name, err = readPackageName(cfgPath); err != nil {
			return "", "", err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", "", fmt.Errorf("loader: stat %s: %w", cfgPath, err)
	}
	if name == "" {
		name = filepath.Base(abs)
	}
	return abs, sanitizeSegment(name), nil
}

// readPackageName pulls only the name out of a manifest, leaving full
// validation to LoadManifest.
func readPackageName(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("loader: read %s %s: %w", ManifestName, path, err)
	}
	var partial struct {
		Name string `yaml:"name"`
	}
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return "", fmt.Errorf("loader: parse %s: %w", path, err)
	}
	return strings.TrimSpace(partial.Name), nil
}

func indexSourceFiles(rootDir, rootPackage string) (map[string][]string, map[string]string, error) {
	packages := make(map[string][]string)
	fileToPackage := make(map[string]string)
	err := filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(path) != SourceExtension {
			return nil
		}
		declared, err := scanPackageDeclaration(path)
		if err != nil {
			return err
		}
		pkgName, err := buildPackageName(rootDir, rootPackage, path, declared)
		if err != nil {
			return err
		}
		packages[pkgName] = append(packages[pkgName], path)
		fileToPackage[path] = pkgName
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("loader: traverse %s: %w", rootDir, err)
	}
	for _, files := range packages {
		slices.Sort(files)
	}
	return packages, fileToPackage, nil
}

// scanPackageDeclaration reads the leading package statement of a file
// without parsing the rest of it.
func scanPackageDeclaration(path string) ([]string, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", path, err)
	}
	declared, err := parser.PackageName(source)
	if err != nil {
		return nil, fmt.Errorf("loader: parse %s: %w", path, err)
	}
	return declared, nil
}

// buildPackageName returns the declared package when present, otherwise the
// root name followed by the file's directories relative to the root.
func buildPackageName(rootDir, rootPackage, filePath string, declared []string) (string, error) {
	if len(declared) > 0 {
		segments := make([]string, 0, len(declared))
		for _, part := range declared {
			segments = append(segments, sanitizeSegment(part))
		}
		return strings.Join(segments, "."), nil
	}
	rel, err := filepath.Rel(rootDir, filePath)
	if err != nil {
		return "", fmt.Errorf("loader: compute relative path for %s: %w", filePath, err)
	}
	relDir := filepath.Dir(filepath.ToSlash(rel))
	segments := []string{sanitizeSegment(rootPackage)}
	if relDir != "." && relDir != "/" {
		for _, part := range strings.Split(relDir, "/") {
			part = strings.TrimSpace(part)
			if part == "" || part == "." {
				continue
			}
			segments = append(segments, sanitizeSegment(part))
		}
	}
	return strings.Join(segments, "."), nil
}

func packageNameFor(rootDir, rootPackage, path string, module *ast.Module, kind RootKind) (string, error) {
	if kind == RootStdlib {
		return rootPackage, nil
	}
	var declared []string
	if module.Package != nil {
		for _, part := range module.Package.NamePath {
			declared = append(declared, part.Name)
		}
	}
	return buildPackageName(rootDir, rootPackage, path, declared)
}
