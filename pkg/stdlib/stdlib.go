package stdlib

import (
	"embed"
	"fmt"
	"io/fs"
	"math/big"
	"path"

	"golang.org/x/exp/slices"

	"lambda/interpreter-go/pkg/runtime"
)

const (
	// PreludePackage is imported implicitly unless disabled.
	PreludePackage = "prelude"
	// BuiltinPackage holds host-implemented functions.
	BuiltinPackage = "builtin"
)

//go:embed prelude/*.lam
var preludeFS embed.FS

// PreludeFile is one embedded prelude source.
type PreludeFile struct {
	Name   string
	Source []byte
}

// PreludeFiles returns the embedded prelude sources sorted by name.
func PreludeFiles() ([]PreludeFile, error) {
	entries, err := fs.ReadDir(preludeFS, "prelude")
	if err != nil {
		return nil, fmt.Errorf("stdlib: read prelude: %w", err)
	}
	files := make([]PreludeFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".lam" {
			continue
		}
		data, err := preludeFS.ReadFile(path.Join("prelude", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("stdlib: read %s: %w", entry.Name(), err)
		}
		files = append(files, PreludeFile{Name: "prelude/" + entry.Name(), Source: data})
	}
	slices.SortFunc(files, func(a, b PreludeFile) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		default:
			return 0
		}
	})
	return files, nil
}

// Natives returns the host functions exposed by the builtin package.
func Natives() []runtime.NativeFunctionValue {
	return []runtime.NativeFunctionValue{Increment()}
}

// Increment adds one to a number literal.
func Increment() runtime.NativeFunctionValue {
	return runtime.NativeFunctionValue{Package: BuiltinPackage, Name: "Increment", Impl: increment}
}

func increment(arg runtime.Value) (runtime.Value, error) {
	num, ok := arg.(runtime.NumberValue)
	if !ok || num.Val == nil {
		return nil, &runtime.Error{
			Kind:    runtime.ErrorShapeMismatch,
			Message: fmt.Sprintf("Increment expects a number, got %s", arg.Kind()),
			Expr:    runtime.Format(arg),
		}
	}
	return runtime.NumberValue{Val: new(big.Int).Add(num.Val, big.NewInt(1))}, nil
}
