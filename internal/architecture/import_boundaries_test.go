package architecture_test

import (
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const modulePath = "expgrid"

// layerRule forbids a source package subtree from importing the given
// subtrees. The arrows point inward: domain at the center, the engine
// packages around it, the experiment facade above them, and the CLI and
// binaries at the rim.
type layerRule struct {
	sourcePrefix string
	forbidden    []string
	hint         string
}

var rules = []layerRule{
	{
		sourcePrefix: modulePath + "/domain",
		forbidden:    []string{modulePath},
		hint:         "domain imports nothing else in the module",
	},
	{
		sourcePrefix: modulePath + "/internal/tunnel",
		forbidden:    []string{modulePath},
		hint:         "tunnel is a transport detail and imports nothing else in the module",
	},
	{
		sourcePrefix: modulePath + "/internal/ddl",
		forbidden: []string{
			modulePath + "/internal/backend",
			modulePath + "/internal/table",
			modulePath + "/internal/tunnel",
			modulePath + "/internal/grid",
			modulePath + "/config",
			modulePath + "/experiment",
			modulePath + "/pkg/cli",
			modulePath + "/cmd",
		},
		hint: "ddl depends on domain only",
	},
	{
		sourcePrefix: modulePath + "/internal/grid",
		forbidden: []string{
			modulePath + "/internal/backend",
			modulePath + "/internal/table",
			modulePath + "/internal/tunnel",
			modulePath + "/internal/ddl",
			modulePath + "/config",
			modulePath + "/experiment",
			modulePath + "/pkg/cli",
			modulePath + "/cmd",
		},
		hint: "grid depends on domain only",
	},
	{
		sourcePrefix: modulePath + "/internal/backend",
		forbidden: []string{
			modulePath + "/internal/table",
			modulePath + "/internal/grid",
			modulePath + "/config",
			modulePath + "/experiment",
			modulePath + "/pkg/cli",
			modulePath + "/cmd",
		},
		hint: "backend depends on domain, ddl, and tunnel",
	},
	{
		sourcePrefix: modulePath + "/internal/table",
		forbidden: []string{
			modulePath + "/internal/grid",
			modulePath + "/internal/tunnel",
			modulePath + "/config",
			modulePath + "/experiment",
			modulePath + "/pkg/cli",
			modulePath + "/cmd",
		},
		hint: "table depends on domain, backend, and ddl",
	},
	{
		sourcePrefix: modulePath + "/config",
		forbidden: []string{
			modulePath + "/internal",
			modulePath + "/experiment",
			modulePath + "/pkg/cli",
			modulePath + "/cmd",
		},
		hint: "config depends on domain only",
	},
	{
		sourcePrefix: modulePath + "/experiment",
		forbidden: []string{
			modulePath + "/pkg/cli",
			modulePath + "/cmd",
		},
		hint: "the facade never reaches back out to the CLI",
	},
	{
		sourcePrefix: modulePath + "/pkg/cli",
		forbidden: []string{
			modulePath + "/internal",
		},
		hint: "the CLI talks to the experiment facade, not the engine internals",
	},
}

func TestImportBoundaries(t *testing.T) {
	t.Parallel()

	root, err := filepath.Abs(filepath.Join("..", ".."))
	require.NoError(t, err)

	var violations []string
	fset := token.NewFileSet()

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		sourcePkg := packageImportPath(rel)
		rule, ok := findRule(sourcePkg)
		if !ok {
			return nil
		}

		parsed, parseErr := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		require.NoErrorf(t, parseErr, "parse imports for %s", rel)

		for _, imp := range parsed.Imports {
			importPath := strings.Trim(imp.Path.Value, `"`)
			if !strings.HasPrefix(importPath, modulePath+"/") {
				continue
			}
			if violatesRule(importPath, rule.forbidden) {
				violations = append(violations,
					sourcePkg+" imports "+importPath+" via "+filepath.ToSlash(rel)+"; "+rule.hint)
			}
		}
		return nil
	})
	require.NoError(t, err)

	if len(violations) > 0 {
		sort.Strings(violations)
		t.Fatalf("%s", strings.Join(violations, "\n"))
	}
}

func packageImportPath(rel string) string {
	dir := filepath.ToSlash(filepath.Dir(rel))
	if dir == "." {
		return modulePath
	}
	return modulePath + "/" + dir
}

func findRule(sourcePkg string) (layerRule, bool) {
	for _, rule := range rules {
		if hasPathPrefix(sourcePkg, rule.sourcePrefix) {
			return rule, true
		}
	}
	return layerRule{}, false
}

func violatesRule(importPath string, forbidden []string) bool {
	for _, prefix := range forbidden {
		if hasPathPrefix(importPath, prefix) {
			return true
		}
	}
	return false
}

func hasPathPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
