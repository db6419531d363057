package driver

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest represents the parsed contents of package.yml.
type Manifest struct {
	Path            string
	Name            string
	Version         string
	License         string
	Authors         []string
	Entry           string
	Dependencies    map[string]*DependencySpec
	DevDependencies map[string]*DependencySpec
	Evaluation      EvaluationConfig
}

// EvaluationConfig carries interpreter limits and checker settings.
type EvaluationConfig struct {
	MaxSteps            int
	MaxDepth            int
	StrictPreconditions bool
	// Prelude is nil when unset so the caller's default applies.
	Prelude *bool
}

// DependencySpec describes a dependency descriptor in the manifest.
type DependencySpec struct {
	Git    string
	Rev    string
	Tag    string
	Branch string
	Path   string
}

// ValidationError aggregates manifest validation failures.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "manifest: invalid configuration"
	}
	var b strings.Builder
	b.WriteString("manifest validation failed:")
	for _, issue := range e.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}
	return b.String()
}

// LoadManifest parses package.yml from disk, returning a validated manifest.
func LoadManifest(path string) (*Manifest, error) {
	if path == "" {
		return nil, fmt.Errorf("manifest: empty path")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: resolve %s: %w", path, err)
	}
	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", absPath, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	var raw manifestFile
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest: %s is empty", absPath)
		}
		return nil, fmt.Errorf("manifest: parse %s: %w", absPath, err)
	}

	manifest := raw.toManifest(absPath)
	if err := manifest.validate(); err != nil {
		return nil, err
	}
	return manifest, nil
}

func (m *Manifest) validate() error {
	var errs ValidationError
	if m.Name == "" {
		errs.Issues = append(errs.Issues, "name must be provided")
	} else if isReservedPackage(m.Name) {
		errs.Issues = append(errs.Issues, fmt.Sprintf("name %q is reserved", m.Name))
	}
	for i, author := range m.Authors {
		if author == "" {
			errs.Issues = append(errs.Issues, fmt.Sprintf("authors[%d] must be a non-empty string", i))
		}
	}
	if m.Entry != "" && filepath.Ext(m.Entry) != SourceExtension {
		errs.Issues = append(errs.Issues, fmt.Sprintf("entry %q must be a %s file", m.Entry, SourceExtension))
	}
	if m.Evaluation.MaxSteps < 0 {
		errs.Issues = append(errs.Issues, "evaluation.max_steps must not be negative")
	}
	if m.Evaluation.MaxDepth < 0 {
		errs.Issues = append(errs.Issues, "evaluation.max_depth must not be negative")
	}

	for groupName, deps := range map[string]map[string]*DependencySpec{
		"dependencies":     m.Dependencies,
		"dev_dependencies": m.DevDependencies,
	} {
		for depName, dep := range deps {
			if dep == nil {
				continue
			}
			for _, issue := range dep.validate() {
				errs.Issues = append(errs.Issues, fmt.Sprintf("%s.%s: %s", groupName, depName, issue))
			}
		}
	}

	if len(errs.Issues) > 0 {
		return &errs
	}
	return nil
}

// EntryPath resolves the manifest entry relative to the manifest directory.
func (m *Manifest) EntryPath() (string, error) {
	if m == nil || strings.TrimSpace(m.Entry) == "" {
		return "", fmt.Errorf("manifest: no entry defined")
	}
	if filepath.IsAbs(m.Entry) {
		return filepath.Clean(m.Entry), nil
	}
	return filepath.Join(filepath.Dir(m.Path), filepath.FromSlash(m.Entry)), nil
}

// HasDependencies reports whether any dependency group is non-empty.
func (m *Manifest) HasDependencies() bool {
	if m == nil {
		return false
	}
	return len(m.Dependencies) > 0 || len(m.DevDependencies) > 0
}

func (d *DependencySpec) validate() []string {
	var errs []string
	if d == nil {
		return errs
	}
	if d.Path != "" && d.Git != "" {
		errs = append(errs, "path overrides cannot specify a git source")
	}
	if d.Path == "" && d.Git == "" {
		errs = append(errs, "must specify git or path")
	}
	pins := 0
	for _, pin := range []string{d.Rev, d.Tag, d.Branch} {
		if pin != "" {
			pins++
		}
	}
	if pins > 0 && d.Git == "" {
		errs = append(errs, "rev, tag and branch apply only to git dependencies")
	}
	if pins > 1 {
		errs = append(errs, "specify at most one of rev, tag or branch")
	}
	return errs
}

type manifestFile struct {
	Name            string         `yaml:"name"`
	Version         string         `yaml:"version"`
	License         string         `yaml:"license"`
	Authors         stringList     `yaml:"authors"`
	Entry           string         `yaml:"entry"`
	Dependencies    dependencyMap  `yaml:"dependencies"`
	DevDependencies dependencyMap  `yaml:"dev_dependencies"`
	Evaluation      evaluationYAML `yaml:"evaluation"`
}

type evaluationYAML struct {
	MaxSteps            int   `yaml:"max_steps"`
	MaxDepth            int   `yaml:"max_depth"`
	StrictPreconditions bool  `yaml:"strict_preconditions"`
	Prelude             *bool `yaml:"prelude"`
}

type dependencyMap map[string]*DependencySpec

type stringList []string

func (mf manifestFile) toManifest(path string) *Manifest {
	return &Manifest{
		Path:            path,
		Name:            sanitizeSegment(mf.Name),
		Version:         strings.TrimSpace(mf.Version),
		License:         strings.TrimSpace(mf.License),
		Authors:         mf.Authors.Clone(),
		Entry:           strings.TrimSpace(mf.Entry),
		Dependencies:    cloneDependencyMap(mf.Dependencies),
		DevDependencies: cloneDependencyMap(mf.DevDependencies),
		Evaluation: EvaluationConfig{
			MaxSteps:            mf.Evaluation.MaxSteps,
			MaxDepth:            mf.Evaluation.MaxDepth,
			StrictPreconditions: mf.Evaluation.StrictPreconditions,
			Prelude:             mf.Evaluation.Prelude,
		},
	}
}

func cloneDependencyMap(src dependencyMap) map[string]*DependencySpec {
	if len(src) == 0 {
		return map[string]*DependencySpec{}
	}
	out := make(map[string]*DependencySpec, len(src))
	for name, dep := range src {
		if dep == nil {
			continue
		}
		copy := *dep
		out[name] = &copy
	}
	return out
}

func (l stringList) Clone() []string {
	if len(l) == 0 {
		return nil
	}
	out := make([]string, 0, len(l))
	for _, item := range l {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

func (l *stringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" || strings.TrimSpace(value.Value) == "" {
			*l = nil
			return nil
		}
		*l = stringList{strings.TrimSpace(value.Value)}
		return nil
	case yaml.SequenceNode:
		items := make([]string, 0, len(value.Content))
		for _, node := range value.Content {
			var str string
			if err := node.Decode(&str); err != nil {
				return err
			}
			str = strings.TrimSpace(str)
			if str == "" {
				continue
			}
			items = append(items, str)
		}
		*l = stringList(items)
		return nil
	case yaml.AliasNode:
		return l.UnmarshalYAML(value.Alias)
	case 0:
		*l = nil
		return nil
	default:
		return fmt.Errorf("manifest: expected string or sequence for list but found %s", value.ShortTag())
	}
}

func (dm *dependencyMap) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == 0 || (value.Kind == yaml.ScalarNode && value.Tag == "!!null") {
		*dm = make(dependencyMap)
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("manifest: dependencies must be a mapping")
	}
	result := make(dependencyMap, len(value.Content)/2)
	for i := 0; i < len(value.Content); i += 2 {
		keyNode := value.Content[i]
		valNode := value.Content[i+1]

		var key string
		if err := keyNode.Decode(&key); err != nil {
			return err
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("manifest: dependency names must be non-empty")
		}
		var dep DependencySpec
		if err := dep.unmarshalYAML(valNode); err != nil {
			return fmt.Errorf("manifest: dependency %q: %w", key, err)
		}
		result[key] = &dep
	}
	*dm = result
	return nil
}

// unmarshalYAML accepts a bare scalar as a path shorthand, or a mapping.
func (d *DependencySpec) unmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" || strings.TrimSpace(value.Value) == "" {
			*d = DependencySpec{}
			return nil
		}
		*d = DependencySpec{Path: strings.TrimSpace(value.Value)}
		return nil
	case yaml.MappingNode:
		var raw struct {
			Git    string `yaml:"git"`
			Rev    string `yaml:"rev"`
			Tag    string `yaml:"tag"`
			Branch string `yaml:"branch"`
			Path   string `yaml:"path"`
		}
		if err := value.Decode(&raw); err != nil {
			return err
		}
		*d = DependencySpec{
			Git:    strings.TrimSpace(raw.Git),
			Rev:    strings.TrimSpace(raw.Rev),
			Tag:    strings.TrimSpace(raw.Tag),
			Branch: strings.TrimSpace(raw.Branch),
			Path:   strings.TrimSpace(raw.Path),
		}
		return nil
	case yaml.AliasNode:
		return d.unmarshalYAML(value.Alias)
	default:
		return fmt.Errorf("expected string or mapping, found %s", value.ShortTag())
	}
}

func sanitizeSegment(seg string) string {
	seg = strings.TrimSpace(seg)
	seg = strings.ReplaceAll(seg, "-", "_")
	return seg
}

// SanitizeName normalizes a package or dependency name the way manifests do.
func SanitizeName(name string) string {
	return sanitizeSegment(name)
}
