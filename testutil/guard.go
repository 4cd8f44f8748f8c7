// Package testutil holds test helpers that keep the package layering of the
// scene graph module honest.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// AssertNoTransitiveDependency runs `go list -deps` on pattern and fails if
// any listed package matches forbidden.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(path string) bool, reason string) {
	t.Helper()
	out, err := goListDeps(pattern)
	if err != nil {
		t.Fatalf("go list failed: %v\n%s", err, out)
	}
	var viols []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" && forbidden(line) {
			viols = append(viols, line)
		}
	}
	failIf(t, "forbidden transitive dependency", reason, viols)
}

// AssertNoDirectImports parses the non-test Go files in dir and fails if any
// import matches forbidden. Build tags are not evaluated.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := DirectImports(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	failIf(t, "forbidden direct imports", reason, viols)
}

// DirectImports returns "path (in file)" for every matching import of the
// non-test files in dir, sorted.
func DirectImports(dir string, match func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range f.Imports {
			if p := strings.Trim(imp.Path.Value, `"`); match(p) {
				out = append(out, p+" (in "+name+")")
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// InternalImportForbidden matches any path inside an internal tree.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/") || strings.HasSuffix(path, "/internal")
}

// PrefixForbidden matches import paths equal to or below any of prefixes.
func PrefixForbidden(prefixes ...string) func(string) bool {
	return func(path string) bool {
		for _, p := range prefixes {
			if path == p || strings.HasPrefix(path, p+"/") {
				return true
			}
		}
		return false
	}
}

var goListDeps = func(pattern string) ([]byte, error) {
	return exec.Command("go", "list", "-deps", pattern).CombinedOutput()
}

func failIf(t testing.TB, what, reason string, viols []string) {
	t.Helper()
	if len(viols) > 0 {
		t.Fatalf("%s (%s):\n%s", what, reason, strings.Join(viols, "\n"))
	}
}
