package architecture_test

import (
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const modulePath = "rawsql"

type layerRule struct {
	sourcePrefix string
	forbidden    []string
	hint         string
}

// Outer surfaces (api, server, cli, cmd) sit on top of app, which wires the
// rewrite core. Nothing below app may reach back up.
var outerLayers = []string{
	modulePath + "/internal/app",
	modulePath + "/internal/api",
	modulePath + "/internal/server",
	modulePath + "/internal/middleware",
	modulePath + "/internal/config",
	modulePath + "/internal/history",
	modulePath + "/pkg/cli",
	modulePath + "/cmd",
}

var rules = []layerRule{
	{
		sourcePrefix: modulePath + "/internal/domain",
		forbidden:    []string{modulePath + "/internal", modulePath + "/pkg", modulePath + "/cmd"},
		hint:         "domain may only import domain",
	},
	{
		sourcePrefix: modulePath + "/internal/sqltoken",
		forbidden:    []string{modulePath + "/internal", modulePath + "/pkg", modulePath + "/cmd"},
		hint:         "the lexer has no module dependencies",
	},
	{
		sourcePrefix: modulePath + "/internal/scanner",
		forbidden: append([]string{
			modulePath + "/internal/formats",
			modulePath + "/internal/protocol",
			modulePath + "/internal/materialize",
			modulePath + "/internal/rewrite",
			modulePath + "/internal/executor",
		}, outerLayers...),
		hint: "scanner depends on sqltoken and domain",
	},
	{
		sourcePrefix: modulePath + "/internal/formats",
		forbidden: append([]string{
			modulePath + "/internal/scanner",
			modulePath + "/internal/protocol",
			modulePath + "/internal/materialize",
			modulePath + "/internal/rewrite",
			modulePath + "/internal/executor",
		}, outerLayers...),
		hint: "formats depends on sqltoken and domain",
	},
	{
		sourcePrefix: modulePath + "/internal/protocol",
		forbidden: append([]string{
			modulePath + "/internal/materialize",
			modulePath + "/internal/rewrite",
			modulePath + "/internal/executor",
		}, outerLayers...),
		hint: "protocol clients depend on domain only",
	},
	{
		sourcePrefix: modulePath + "/internal/materialize",
		forbidden: append([]string{
			modulePath + "/internal/protocol",
			modulePath + "/internal/rewrite",
			modulePath + "/internal/executor",
		}, outerLayers...),
		hint: "materialize depends on domain only",
	},
	{
		sourcePrefix: modulePath + "/internal/rewrite",
		forbidden: append([]string{
			modulePath + "/internal/protocol",
			modulePath + "/internal/executor",
		}, outerLayers...),
		hint: "rewrite reaches protocols and the materializer through domain ports",
	},
	{
		sourcePrefix: modulePath + "/internal/executor",
		forbidden:    outerLayers,
		hint:         "executor depends on domain only",
	},
	{
		sourcePrefix: modulePath + "/internal/middleware",
		forbidden: []string{
			modulePath + "/internal/app",
			modulePath + "/internal/api",
			modulePath + "/internal/server",
			modulePath + "/pkg/cli",
			modulePath + "/cmd",
		},
		hint: "middleware is transport-only",
	},
	{
		sourcePrefix: modulePath + "/internal/api",
		forbidden: []string{
			modulePath + "/internal/rewrite",
			modulePath + "/internal/protocol",
			modulePath + "/internal/materialize",
			modulePath + "/internal/server",
			modulePath + "/pkg/cli",
			modulePath + "/cmd",
		},
		hint: "api talks to app, never to the rewrite core directly",
	},
}

func TestImportBoundaries(t *testing.T) {
	t.Helper()

	files, err := collectGoFiles(repoRootDir())
	require.NoError(t, err)
	require.NotEmpty(t, files)

	violations := make([]string, 0)
	fset := token.NewFileSet()

	for _, file := range files {
		if strings.HasSuffix(file, "_test.go") {
			continue
		}

		sourcePkg := packageImportPath(file)
		rule, ok := findRule(sourcePkg)
		if !ok {
			continue
		}

		parsed, parseErr := parser.ParseFile(fset, file, nil, parser.ImportsOnly)
		require.NoErrorf(t, parseErr, "parse imports for %s", file)

		for _, imp := range parsed.Imports {
			importPath := strings.Trim(imp.Path.Value, "\"")
			if !strings.HasPrefix(importPath, modulePath+"/") || hasPathPrefix(importPath, sourcePkg) {
				continue
			}
			if violatesRule(importPath, rule.forbidden) {
				violations = append(violations,
					"governance: "+sourcePkg+" imports "+importPath+" via "+relToRepoRoot(file)+"; allowed direction: "+rule.hint,
				)
			}
		}
	}

	if len(violations) > 0 {
		sort.Strings(violations)
		t.Fatalf("%s", strings.Join(violations, "\n"))
	}
}

func TestRulesCoverCorePackages(t *testing.T) {
	for _, pkg := range []string{"domain", "sqltoken", "scanner", "formats", "protocol", "materialize", "rewrite", "executor"} {
		_, ok := findRule(modulePath + "/internal/" + pkg)
		require.Truef(t, ok, "no layer rule for internal/%s", pkg)
	}
}

func collectGoFiles(root string) ([]string, error) {
	files := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if name := d.Name(); path != root && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, ".go") {
			files = append(files, filepath.ToSlash(path))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func repoRootDir() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "."
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}

func relToRepoRoot(path string) string {
	rel, err := filepath.Rel(repoRootDir(), path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func packageImportPath(file string) string {
	return modulePath + "/" + filepath.ToSlash(filepath.Dir(relToRepoRoot(file)))
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

func hasPathPrefix(value string, prefix string) bool {
	return value == prefix || strings.HasPrefix(value, prefix+"/")
}
