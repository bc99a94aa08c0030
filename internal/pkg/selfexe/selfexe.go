// Package selfexe resolves the path to the currently executing scie
// (spec.md §9 design note: resolution must survive being invoked through a
// PATH lookup, a relative path, or a symlink, since the scie's own path is
// needed to read its tail a second time for the lift manifest).
package selfexe

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/a-scie/jump/internal/pkg/jumperr"
)

// Resolve returns the absolute, symlink-resolved path to the running
// executable. It tries os.Executable() first (the common, fast path), then
// falls back to resolving argv0 against PATH for the rare platforms or
// invocation styles os.Executable can't handle.
func Resolve(argv0 string) (string, error) {
	if path, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(path); err == nil {
			return resolved, nil
		}
		return path, nil
	}

	path, err := exec.LookPath(argv0)
	if err != nil {
		return "", jumperr.Wrap(jumperr.Platform, "", err, "locating the running executable")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", jumperr.Wrap(jumperr.IO, "", err, "resolving executable path")
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}
