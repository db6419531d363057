package driver

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// LockfileName sits next to the manifest.
const LockfileName = "package.lock"

// Lockfile models the package.lock contents.
type Lockfile struct {
	Path      string
	Root      string
	Generated string
	Tool      string
	Packages  []*LockedPackage
}

// LockedPackage captures a single resolved dependency.
type LockedPackage struct {
	Name string
	// Version is the resolved commit for git sources and the manifest version for path ones.
	Version string
	// Source is the descriptor the package came from, e.g. "git+https://host/x#tag=v1@<commit>" or "path:../x".
	Source string
	// Dir is the directory the loader reads the package from.
	Dir          string
	Checksum     string
	Dependencies []string
}

// NewLockfile constructs a lockfile with metadata seeded for the provided root.
func NewLockfile(root, tool string) *Lockfile {
	return &Lockfile{
		Root:      sanitizeSegment(root),
		Generated: time.Now().UTC().Format(time.RFC3339),
		Tool:      strings.TrimSpace(tool),
		Packages:  []*LockedPackage{},
	}
}

// LoadLockfile parses package.lock from disk.
func LoadLockfile(path string) (*Lockfile, error) {
	if path == "" {
		return nil, fmt.Errorf("lockfile: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("lockfile: resolve %s: %w", path, err)
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var raw lockfileDisk
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("lockfile: parse %s: %w", abs, err)
	}

	lock := raw.toLockfile()
	lock.Path = abs
	return lock, nil
}

// WriteLockfile serialises the lockfile back to disk, refreshing metadata.
func WriteLockfile(lock *Lockfile, path string) error {
	if lock == nil {
		return fmt.Errorf("lockfile: nil lockfile")
	}
	if path == "" {
		if lock.Path == "" {
			return fmt.Errorf("lockfile: missing path")
		}
		path = lock.Path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("lockfile: resolve %s: %w", path, err)
	}

	if lock.Generated == "" {
		lock.Generated = time.Now().UTC().Format(time.RFC3339)
	}
	lock.Path = abs
	lock.normalize()

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(lock.toDisk()); err != nil {
		return fmt.Errorf("lockfile: marshal %s: %w", abs, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("lockfile: encoder close: %w", err)
	}
	if err := os.WriteFile(abs, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("lockfile: write %s: %w", abs, err)
	}
	return nil
}

// Lookup returns the locked entry for name.
func (l *Lockfile) Lookup(name string) (*LockedPackage, bool) {
	if l == nil {
		return nil, false
	}
	name = sanitizeSegment(name)
	idx := slices.IndexFunc(l.Packages, func(pkg *LockedPackage) bool { return pkg != nil && pkg.Name == name })
	if idx < 0 {
		return nil, false
	}
	return l.Packages[idx], true
}

// SearchPaths turns locked package directories into loader roots.
func (l *Lockfile) SearchPaths() []SearchPath {
	if l == nil {
		return nil
	}
	out := make([]SearchPath, 0, len(l.Packages))
	for _, pkg := range l.Packages {
		if pkg == nil || pkg.Dir == "" {
			continue
		}
		dir := pkg.Dir
		if !filepath.IsAbs(dir) && l.Path != "" {
			dir = filepath.Join(filepath.Dir(l.Path), dir)
		}
		out = append(out, SearchPath{Path: dir, Kind: RootUser})
	}
	return out
}

func (l *Lockfile) normalize() {
	if l == nil {
		return
	}
	l.Root = sanitizeSegment(l.Root)
	l.Tool = strings.TrimSpace(l.Tool)
	l.Packages = slices.DeleteFunc(l.Packages, func(pkg *LockedPackage) bool { return pkg == nil })
	for _, pkg := range l.Packages {
		pkg.Name = sanitizeSegment(pkg.Name)
		pkg.Version = strings.TrimSpace(pkg.Version)
		pkg.Source = strings.TrimSpace(pkg.Source)
		pkg.Dir = strings.TrimSpace(pkg.Dir)
		pkg.Checksum = strings.TrimSpace(pkg.Checksum)
		for k := range pkg.Dependencies {
			pkg.Dependencies[k] = sanitizeSegment(pkg.Dependencies[k])
		}
		slices.Sort(pkg.Dependencies)
		pkg.Dependencies = slices.Compact(pkg.Dependencies)
	}
	slices.SortStableFunc(l.Packages, func(a, b *LockedPackage) int {
		return strings.Compare(a.Name, b.Name)
	})
}

func (l *Lockfile) toDisk() lockfileDisk {
	pkgs := make([]lockfilePackage, 0, len(l.Packages))
	for _, pkg := range l.Packages {
		pkgs = append(pkgs, lockfilePackage{
			Name:         pkg.Name,
			Version:      pkg.Version,
			Source:       pkg.Source,
			Dir:          pkg.Dir,
			Checksum:     pkg.Checksum,
			Dependencies: slices.Clone(pkg.Dependencies),
		})
	}
	return lockfileDisk{
		Root:      l.Root,
		Generated: l.Generated,
		Tool:      l.Tool,
		Packages:  pkgs,
	}
}

type lockfileDisk struct {
	Root      string            `yaml:"root"`
	Generated string            `yaml:"generated"`
	Tool      string            `yaml:"tool"`
	Packages  []lockfilePackage `yaml:"packages"`
}

type lockfilePackage struct {
	Name         string   `yaml:"name"`
	Version      string   `yaml:"version"`
	Source       string   `yaml:"source"`
	Dir          string   `yaml:"dir"`
	Checksum     string   `yaml:"checksum,omitempty"`
	Dependencies []string `yaml:"dependencies,omitempty"`
}

func (d lockfileDisk) toLockfile() *Lockfile {
	lock := &Lockfile{
		Root:      d.Root,
		Generated: strings.TrimSpace(d.Generated),
		Tool:      d.Tool,
		Packages:  make([]*LockedPackage, 0, len(d.Packages)),
	}
	for _, pkg := range d.Packages {
		lock.Packages = append(lock.Packages, &LockedPackage{
			Name:         pkg.Name,
			Version:      pkg.Version,
			Source:       pkg.Source,
			Dir:          pkg.Dir,
			Checksum:     pkg.Checksum,
			Dependencies: slices.Clone(pkg.Dependencies),
		})
	}
	lock.normalize()
	return lock
}
