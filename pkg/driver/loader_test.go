package driver

import (
	"path/filepath"
	"strings"
	"testing"

	"lambda/interpreter-go/pkg/stdlib"
)

func modulePackages(program *Program) []string {
	names := make([]string, 0, len(program.Modules))
	for _, mod := range program.Modules {
		names = append(names, mod.Package)
	}
	return names
}

func TestLoaderIncludesSearchPathPackages(t *testing.T) {
	root := t.TempDir()

	depRoot := filepath.Join(root, "dep")
	writeFile(t, filepath.Join(depRoot, ManifestName), "name: logic\n")
	writeFile(t, filepath.Join(depRoot, "gates.lam"), `
pub fn Nand ::= {A. B. {Not, {And, A, B}}};
`)

	appRoot := filepath.Join(root, "app")
	writeFile(t, filepath.Join(appRoot, ManifestName), "name: app\n")
	mainPath := filepath.Join(appRoot, "main.lam")
	writeFile(t, mainPath, `
import logic;

eval Nand, True, True;
`)

	loader, err := NewLoader([]SearchPath{{Path: depRoot}}, true)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	program, err := loader.Load(mainPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if program.Entry == nil || program.Entry.Package != "app" {
		t.Fatalf("entry package = %#v, want app", program.Entry)
	}
	got := strings.Join(modulePackages(program), ",")
	if got != "prelude,logic,app" {
		t.Fatalf("module order = %s, want prelude,logic,app", got)
	}
	if len(program.Implicit) != 1 || program.Implicit[0] != stdlib.PreludePackage {
		t.Fatalf("implicit imports = %v", program.Implicit)
	}
	if imports := program.Entry.Imports; len(imports) != 1 || imports[0] != "logic" {
		t.Fatalf("entry imports = %v", imports)
	}
}

func TestLoaderPackageNaming(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ManifestName), "name: my-lib\n")
	writeFile(t, filepath.Join(root, "main.lam"), `
import my_lib.util;
import shapes;

eval Twice, Identity;
`)
	writeFile(t, filepath.Join(root, "util", "twice.lam"), `
pub fn Twice ::= {F. X. {F, {F, X}}} where F: X, F: {F, X};
`)
	writeFile(t, filepath.Join(root, "other", "declared.lam"), `
// leading comments are skipped
package shapes;

pub atom Circle;
`)

	loader, err := NewLoader(nil, true)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	program, err := loader.Load(filepath.Join(root, "main.lam"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if program.Entry.Package != "my_lib" {
		t.Fatalf("entry package = %q, want my_lib", program.Entry.Package)
	}
	got := strings.Join(modulePackages(program), ",")
	if got != "prelude,my_lib.util,shapes,my_lib" {
		t.Fatalf("module order = %s", got)
	}
}

func TestLoaderEntryDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.lam"), "pub atom A;\n")
	writeFile(t, filepath.Join(root, "b.lam"), "eval A;\n")

	loader, err := NewLoader(nil, false)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	program, err := loader.Load(root)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(program.Entry.Files) != 2 {
		t.Fatalf("expected both files in the entry package, got %d", len(program.Entry.Files))
	}
	if len(program.Modules) != 1 || len(program.Implicit) != 0 {
		t.Fatalf("prelude should not load when disabled: %v", modulePackages(program))
	}
}

func TestLoaderExplicitPreludeImport(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "main.lam")
	writeFile(t, path, "import prelude;\neval Identity;\n")

	loader, err := NewLoader(nil, false)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	program, err := loader.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got := strings.Join(modulePackages(program), ","); got != "prelude,"+program.Entry.Package {
		t.Fatalf("module order = %s", got)
	}
	if program.Modules[0].Kind != RootStdlib {
		t.Fatalf("prelude should be a stdlib module")
	}
}

func TestLoaderErrors(t *testing.T) {
	cases := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{
			name: "import cycle",
			files: map[string]string{
				"main.lam":  "package a;\nimport b;\n",
				"other.lam": "package b;\nimport a;\n",
			},
			wantErr: "import cycle detected",
		},
		{
			name: "indirect import cycle",
			files: map[string]string{
				"main.lam":  "package a;\nimport b;\n",
				"b.lam":     "package b;\nimport c;\n",
				"other.lam": "package c;\nimport a;\n",
			},
			wantErr: "import cycle detected",
		},
		{
			name:    "unknown import",
			files:   map[string]string{"main.lam": "import nowhere;\n"},
			wantErr: "imports unknown package nowhere",
		},
		{
			name:    "reserved package",
			files:   map[string]string{"main.lam": "package builtin;\n"},
			wantErr: "reserved",
		},
		{
			name:    "syntax error",
			files:   map[string]string{"main.lam": "fn ::= ;\n"},
			wantErr: "loader: parse",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			for name, body := range tc.files {
				writeFile(t, filepath.Join(root, name), body)
			}
			loader, err := NewLoader(nil, true)
			if err != nil {
				t.Fatalf("NewLoader: %v", err)
			}
			_, err = loader.Load(filepath.Join(root, "main.lam"))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoaderPackageDeclarationLayouts(t *testing.T) {
	cases := map[string]string{
		"block comment":   "/* demo */\npackage demo;\neval Identity;\n",
		"single line":     "package demo; eval Identity;\n",
		"comment between": "// header\npackage /* name */ demo // trailing\n;\neval Identity;\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, filepath.Join(root, "main.lam"), body)
			loader, err := NewLoader(nil, true)
			if err != nil {
				t.Fatalf("NewLoader: %v", err)
			}
			program, err := loader.Load(filepath.Join(root, "main.lam"))
			if err != nil {
				t.Fatalf("Load returned error: %v", err)
			}
			if program.Entry.Package != "demo" {
				t.Fatalf("entry package = %q, want demo", program.Entry.Package)
			}
		})
	}
}

func TestLoaderSharedImportLoadsOnce(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.lam"), "package app;\nimport left;\nimport right;\n")
	writeFile(t, filepath.Join(root, "left.lam"), "package left;\nimport base;\n")
	writeFile(t, filepath.Join(root, "right.lam"), "package right;\nimport base;\n")
	writeFile(t, filepath.Join(root, "base.lam"), "package base;\npub atom Shared;\n")

	loader, err := NewLoader(nil, false)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	program, err := loader.Load(filepath.Join(root, "main.lam"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got := strings.Join(modulePackages(program), ","); got != "base,left,right,app" {
		t.Fatalf("module order = %s", got)
	}
}

func TestLoaderRejectsPackageCollisions(t *testing.T) {
	root := t.TempDir()
	first := filepath.Join(root, "first")
	second := filepath.Join(root, "second")
	writeFile(t, filepath.Join(first, "shared.lam"), "package shared;\npub atom One;\n")
	writeFile(t, filepath.Join(second, "shared.lam"), "package shared;\npub atom Two;\n")
	mainPath := filepath.Join(root, "app", "main.lam")
	writeFile(t, mainPath, "import shared;\n")

	loader, err := NewLoader([]SearchPath{{Path: first}, {Path: second}}, true)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	if _, err := loader.Load(mainPath); err == nil || !strings.Contains(err.Error(), "found in multiple roots") {
		t.Fatalf("expected collision error, got %v", err)
	}
}

func TestLoadPrelude(t *testing.T) {
	loader, err := NewLoader(nil, true)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	mod, err := loader.LoadPrelude()
	if err != nil {
		t.Fatalf("LoadPrelude: %v", err)
	}
	if mod.Package != stdlib.PreludePackage || len(mod.Files) == 0 {
		t.Fatalf("unexpected prelude module: %#v", mod)
	}
	for _, dep := range mod.Imports {
		if dep == stdlib.BuiltinPackage {
			t.Fatalf("builtin should not be listed as a loadable import")
		}
	}
}
