// Package binding implements the "run exactly once per identity-hash"
// binding protocol of spec.md §4.5: a binding's command is placeholder-
// expanded, hashed into an identity, locked, and (if not already
// successfully run) executed with SCIE_BINDING_ENV pointed at a fresh file
// it may write `k=v` lines to.
package binding

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/a-scie/jump/internal/pkg/cas/lock"
	"github.com/a-scie/jump/internal/pkg/jumperr"
	"github.com/a-scie/jump/internal/pkg/sylog"
)

// Runner executes bindings and caches their declared outputs beneath base.
type Runner struct {
	Base string
	// Env is the ambient environment each binding child inherits, as
	// "NAME=VALUE" strings (normally os.Environ()).
	Env []string
}

const outputsFile = ".outputs"

// identityPayload is the canonical serialization hashed into a binding's
// identity, matching spec.md §4.4: "SHA-256 of a canonical serialization
// of {exe, args, env} after placeholder expansion but before execution".
type identityPayload struct {
	Exe  string            `json:"exe"`
	Args []string          `json:"args"`
	Env  map[string]string `json:"env"`
}

// Identity computes a binding's identity-hash from its fully-expanded exe,
// args, and resolved env (name -> final value, after applying the env
// table semantics).
func Identity(exe string, args []string, env map[string]string) string {
	p := identityPayload{Exe: exe, Args: args, Env: env}
	// json.Marshal sorts map keys, giving a deterministic encoding.
	raw, _ := json.Marshal(p)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func (r *Runner) lockPath(identity string) string {
	return filepath.Join(r.Base, "bindings", "locks", identity)
}

// WorkDir returns a binding's per-scie working directory.
func (r *Runner) WorkDir(identity string) string {
	return filepath.Join(r.Base, "bindings", identity)
}

func (r *Runner) outputsPath(identity string) string {
	return filepath.Join(r.WorkDir(identity), outputsFile)
}

// Outputs loads the k=v pairs a completed binding wrote, or (nil, false) if
// it has not successfully completed.
func (r *Runner) Outputs(identity string) (map[string]string, bool) {
	data, err := os.ReadFile(r.outputsPath(identity))
	if err != nil {
		return nil, false
	}
	return parseOutputs(data), true
}

// Run executes the binding identified by identity if it has not already
// completed successfully, with exe/args fully placeholder-expanded and env
// the final resolved environment map to apply on top of r.Env.
func (r *Runner) Run(name, identity, exe string, args []string, env map[string]string) (map[string]string, error) {
	if out, ok := r.Outputs(identity); ok {
		sylog.Debugf("binding %q (%s) already satisfied", name, identity)
		return out, nil
	}

	lockDir := filepath.Dir(r.lockPath(identity))
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, jumperr.Wrap(jumperr.IO, "", err, "creating binding locks directory")
	}

	fd, err := lock.Exclusive(r.lockPath(identity))
	if err != nil {
		return nil, jumperr.Wrap(jumperr.IO, "", err, "acquiring binding lock")
	}
	defer lock.Release(fd)

	if out, ok := r.Outputs(identity); ok {
		return out, nil
	}

	workDir := r.WorkDir(identity)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, jumperr.Wrap(jumperr.IO, "", err, "creating binding working directory")
	}

	bindingEnvFile := filepath.Join(workDir, fmt.Sprintf(".binding-env-%d", os.Getpid()))
	if f, err := os.Create(bindingEnvFile); err != nil {
		return nil, jumperr.Wrap(jumperr.IO, "", err, "creating SCIE_BINDING_ENV file")
	} else {
		f.Close()
	}
	defer os.Remove(bindingEnvFile)

	childEnv := append([]string{}, r.Env...)
	childEnv = append(childEnv,
		"SCIE_BINDING_ENV="+bindingEnvFile,
		"SCIE_BINDINGS="+filepath.Join(r.Base, "bindings"),
	)
	for k, v := range env {
		childEnv = append(childEnv, k+"="+v)
	}

	sylog.Debugf("running binding %q: %s %v", name, exe, args)
	cmd := exec.Command(exe, args...)
	cmd.Env = childEnv
	cmd.Dir = workDir
	cmd.Stdout = sylog.Writer()
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, jumperr.Wrap(jumperr.Binding, "re-run with SCIE_LOG_LEVEL=5 for more detail", err, fmt.Sprintf("binding %q failed", name))
	}

	data, err := os.ReadFile(bindingEnvFile)
	if err != nil {
		return nil, jumperr.Wrap(jumperr.Binding, "", err, "reading binding outputs")
	}
	out := parseOutputs(data)

	outRaw, err := json.Marshal(out)
	if err != nil {
		return nil, jumperr.Wrap(jumperr.IO, "", err, "encoding binding outputs")
	}
	if err := os.WriteFile(r.outputsPath(identity), outRaw, 0o644); err != nil {
		return nil, jumperr.Wrap(jumperr.IO, "", err, "persisting binding outputs")
	}
	return out, nil
}

func parseOutputs(data []byte) map[string]string {
	// The persisted .outputs file is JSON (our own cache format); a
	// freshly-written SCIE_BINDING_ENV file from the child is k=v lines
	// (spec.md §4.5). Try JSON first, then fall back to line parsing.
	var m map[string]string
	if err := json.Unmarshal(data, &m); err == nil {
		return m
	}
	m = map[string]string{}
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			m[k] = v
		}
	}
	return m
}
