package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"lambda/interpreter-go/pkg/driver"
)

type resolvedPackage struct {
	pkg      *driver.LockedPackage
	manifest *driver.Manifest
	root     string
}

type dependencyInstaller struct {
	manifest     *driver.Manifest
	manifestRoot string
	cacheDir     string
	git          *gitFetcher
	logs         []string
	locked       map[string]*driver.LockedPackage
	resolved     map[string]*driver.LockedPackage
	resolving    map[string]bool
	// refresh names git packages whose lock entry must not be reused;
	// refreshAll covers every package.
	refresh    map[string]bool
	refreshAll bool
}

func newDependencyInstaller(manifest *driver.Manifest, cacheDir string) *dependencyInstaller {
	var root string
	if manifest != nil {
		root = filepath.Dir(manifest.Path)
	}
	return &dependencyInstaller{
		manifest:     manifest,
		manifestRoot: root,
		cacheDir:     cacheDir,
		git:          newGitFetcher(cacheDir),
	}
}

// Install resolves every dependency of the manifest, transitively, into lock.
// Git packages already pinned in lock are reused while their ref is unchanged
// unless they are marked for refresh.
// It reports whether the package list differs from what lock held before.
func (d *dependencyInstaller) Install(lock *driver.Lockfile) (bool, []string, error) {
	if d.manifest == nil {
		return false, d.logs, nil
	}
	d.logs = nil
	d.resolved = make(map[string]*driver.LockedPackage)
	d.resolving = map[string]bool{driver.SanitizeName(d.manifest.Name): true}
	present := lo.Filter(lock.Packages, func(pkg *driver.LockedPackage, _ int) bool { return pkg != nil })
	d.locked = lo.KeyBy(present, func(pkg *driver.LockedPackage) string { return pkg.Name })

	for _, group := range []map[string]*driver.DependencySpec{d.manifest.Dependencies, d.manifest.DevDependencies} {
		names := maps.Keys(group)
		slices.Sort(names)
		for _, name := range names {
			if _, err := d.installDependency(name, group[name], d.manifestRoot); err != nil {
				return false, d.logs, err
			}
		}
	}

	desired := maps.Values(d.resolved)
	slices.SortFunc(desired, func(a, b *driver.LockedPackage) int { return strings.Compare(a.Name, b.Name) })

	changed := len(desired) != len(d.locked)
	for _, pkg := range desired {
		if current, ok := d.locked[pkg.Name]; !ok || !lockedPackageEqual(current, pkg) {
			changed = true
		}
	}
	lock.Packages = desired
	return changed, d.logs, nil
}

// installDependency resolves one dependency and its own dependencies,
// returning the canonical package name. base anchors relative paths.
func (d *dependencyInstaller) installDependency(name string, spec *driver.DependencySpec, base string) (string, error) {
	if spec == nil {
		return "", fmt.Errorf("dependency %q has no descriptor", name)
	}
	alias := driver.SanitizeName(name)
	if d.resolving[alias] {
		return "", fmt.Errorf("dependency cycle detected at %s", alias)
	}
	d.resolving[alias] = true
	defer delete(d.resolving, alias)

	resolved, err := d.resolveDependency(name, spec, base)
	if err != nil {
		return "", err
	}
	pkg := resolved.pkg
	if existing, ok := d.resolved[pkg.Name]; ok {
		if existing.Source != pkg.Source {
			return "", fmt.Errorf("dependency %s requested from both %s and %s", pkg.Name, existing.Source, pkg.Source)
		}
		return pkg.Name, nil
	}

	pkg.Dependencies = nil
	if resolved.manifest != nil {
		children := resolved.manifest.Dependencies
		childNames := maps.Keys(children)
		slices.Sort(childNames)
		for _, childName := range childNames {
			canonical, err := d.installDependency(childName, children[childName], resolved.root)
			if err != nil {
				return "", fmt.Errorf("%s: %w", pkg.Name, err)
			}
			pkg.Dependencies = append(pkg.Dependencies, canonical)
		}
		slices.Sort(pkg.Dependencies)
		pkg.Dependencies = slices.Compact(pkg.Dependencies)
	}

	d.resolved[pkg.Name] = pkg
	return pkg.Name, nil
}

func (d *dependencyInstaller) resolveDependency(name string, spec *driver.DependencySpec, base string) (*resolvedPackage, error) {
	switch {
	case spec.Path != "":
		return d.resolvePathDependency(name, spec, base)
	case spec.Git != "":
		return d.resolveGitDependency(name, spec)
	default:
		return nil, fmt.Errorf("dependency %q: unsupported descriptor", name)
	}
}

func (d *dependencyInstaller) resolvePathDependency(name string, spec *driver.DependencySpec, base string) (*resolvedPackage, error) {
	pathSpec := filepath.FromSlash(spec.Path)
	if !filepath.IsAbs(pathSpec) {
		pathSpec = filepath.Join(base, pathSpec)
	}
	abs, err := filepath.Abs(pathSpec)
	if err != nil {
		return nil, fmt.Errorf("dependency %q: resolve path %q: %w", name, spec.Path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("dependency %q: stat %s: %w", name, abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("dependency %q: expected directory at %s", name, abs)
	}
	depManifest, err := loadDependencyManifest(name, abs)
	if err != nil {
		return nil, err
	}

	version := strings.TrimSpace(depManifest.Version)
	if version == "" {
		version = "0.0.0-dev"
	}
	display := d.displayPath(abs)
	d.logs = append(d.logs, fmt.Sprintf("linked %s %s (%s)", depManifest.Name, version, display))
	return &resolvedPackage{
		pkg: &driver.LockedPackage{
			Name:    depManifest.Name,
			Version: version,
			Source:  "path:" + filepath.ToSlash(display),
			Dir:     filepath.ToSlash(display),
		},
		manifest: depManifest,
		root:     abs,
	}, nil
}

func (d *dependencyInstaller) resolveGitDependency(name string, spec *driver.DependencySpec) (*resolvedPackage, error) {
	if d.git == nil {
		return nil, fmt.Errorf("dependency %q: git support unavailable", name)
	}
	alias := driver.SanitizeName(name)
	_, ref := gitRevisionFromSpec(spec)
	var pkg *driver.LockedPackage
	reused := false
	if !d.refreshAll && !d.refresh[alias] {
		pkg, reused = d.lockedGitPackage(alias, gitSourcePrefix(strings.TrimSpace(spec.Git), ref))
	}
	if reused {
		d.logs = append(d.logs, fmt.Sprintf("using locked %s (%s)", pkg.Name, pkg.Version))
	} else {
		fetched, err := d.git.Fetch(name, spec)
		if err != nil {
			return nil, err
		}
		pkg = fetched
		d.logs = append(d.logs, fmt.Sprintf("fetched git dependency %s (%s)", pkg.Name, pkg.Version))
	}

	depManifest, err := loadDependencyManifest(name, pkg.Dir)
	if err != nil {
		return nil, err
	}
	return &resolvedPackage{pkg: pkg, manifest: depManifest, root: pkg.Dir}, nil
}

// lockedGitPackage returns a copy of the locked entry for alias when it was
// fetched with the same url and ref and its checkout still exists.
func (d *dependencyInstaller) lockedGitPackage(alias, sourcePrefix string) (*driver.LockedPackage, bool) {
	current, ok := d.locked[alias]
	if !ok || !strings.HasPrefix(current.Source, sourcePrefix) || current.Dir == "" {
		return nil, false
	}
	if info, err := os.Stat(current.Dir); err != nil || !info.IsDir() {
		return nil, false
	}
	clone := *current
	return &clone, true
}

// loadDependencyManifest requires a package.yml at root whose name matches
// the dependency key, since the loader names the package after it.
func loadDependencyManifest(name, root string) (*driver.Manifest, error) {
	manifestPath := filepath.Join(root, driver.ManifestName)
	depManifest, err := driver.LoadManifest(manifestPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("dependency %q: %s has no %s", name, root, driver.ManifestName)
		}
		return nil, fmt.Errorf("dependency %q: load manifest %s: %w", name, manifestPath, err)
	}
	if depManifest.Name != driver.SanitizeName(name) {
		return nil, fmt.Errorf("dependency %q: package at %s is named %q", name, root, depManifest.Name)
	}
	return depManifest, nil
}

func (d *dependencyInstaller) displayPath(path string) string {
	if d.manifestRoot != "" {
		if rel, err := filepath.Rel(d.manifestRoot, path); err == nil {
			return rel
		}
	}
	return path
}

func lockedPackageEqual(a, b *driver.LockedPackage) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Name == b.Name &&
		a.Version == b.Version &&
		a.Source == b.Source &&
		a.Dir == b.Dir &&
		a.Checksum == b.Checksum &&
		slices.Equal(a.Dependencies, b.Dependencies)
}
