// Package gobuild builds the probe target the way an inspection session
// needs it: optimizations and inlining disabled so every symbol and
// address the tracer looks for is where the source says it is.
package gobuild

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/go-bugger/tracetarget/pkg/config"
	"github.com/go-bugger/tracetarget/pkg/logflags"
)

// GoBuild builds the packages in pkgs with optimizations and inlining
// disabled and writes the binary at debugname. It returns the command
// line it ran and the combined compiler output.
func GoBuild(debugname string, pkgs []string, buildflags string) (string, []byte, error) {
	args := goBuildArgs(debugname, pkgs, buildflags)
	logflags.BuildLogger().Debugf("running go %s", strings.Join(args, " "))
	out, err := exec.Command("go", args...).CombinedOutput()
	return "go " + strings.Join(args, " "), out, err
}

func goBuildArgs(debugname string, pkgs []string, buildflags string) []string {
	args := []string{"build", "-o", debugname, "-gcflags", "all=-N -l"}
	if buildflags != "" {
		args = append(args, config.SplitQuotedFields(buildflags, '\'')...)
	}
	return append(args, pkgs...)
}

// Remove deletes the binary built for the session and issues a warning to
// stderr if this fails.
func Remove(path string) {
	if err := os.Remove(path); err != nil {
		fmt.Fprintf(os.Stderr, "could not remove %v: %v\n", path, err)
	}
}

// DefaultDebugBinaryPath returns an unused file path in the system
// temporary directory for a binary named after name.
func DefaultDebugBinaryPath(name string) string {
	f, err := os.CreateTemp("", name)
	if err != nil {
		logflags.BuildLogger().Errorf("could not create temporary file for build output: %v", err)
		return name
	}
	r := f.Name()
	f.Close()
	return r
}
