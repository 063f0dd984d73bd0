// Package test provides support routines for tests that need a built
// probe target binary.
package test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-bugger/tracetarget/pkg/gobuild"
)

// Fixture is a built probe target binary.
type Fixture struct {
	// Name is the short name of the fixture.
	Name string
	// Path is the path to the built binary.
	Path string
	// Source is the directory of the fixture's main package.
	Source string
}

// Fixtures is a map of Fixture.Name to Fixture.
var Fixtures = make(map[string]Fixture)

// FindRepoRoot walks up from the working directory until it finds the
// module root.
func FindRepoRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for depth := 0; depth < 10; depth++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		dir = filepath.Dir(dir)
	}
	return "."
}

// BuildFixture builds cmd/<name> with optimizations disabled and caches
// the result for the rest of the test run.
func BuildFixture(name string) Fixture {
	if f, ok := Fixtures[name]; ok {
		return f
	}

	source := filepath.Join(FindRepoRoot(), "cmd", name)
	path := gobuild.DefaultDebugBinaryPath(name)
	cmdline, out, err := gobuild.GoBuild(path, []string{source}, "")
	if err != nil {
		fmt.Printf("error compiling %s: %s\n%s\n%s", source, err, cmdline, out)
		os.Exit(1)
	}

	Fixtures[name] = Fixture{Name: name, Path: path, Source: source}
	return Fixtures[name]
}

// RunTestsWithFixtures runs the tests and deletes any fixture binaries
// built along the way before returning.
func RunTestsWithFixtures(m *testing.M) int {
	status := m.Run()
	for _, f := range Fixtures {
		os.Remove(f.Path)
	}
	return status
}
