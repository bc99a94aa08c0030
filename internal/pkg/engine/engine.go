// Package engine wires the reader, lift, placeholder, cas, binding, and
// selector packages into the single end-to-end pipeline spec.md §2
// describes: "the selector chooses a command -> the CAS materializer
// extracts required files and runs any prerequisite bindings -> the
// placeholder engine substitutes paths/hashes/env into the command -> the
// re-execution layer replaces the process." It is the thing
// cmd/scie-jump/main.go actually calls.
package engine

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/a-scie/jump/internal/pkg/binding"
	"github.com/a-scie/jump/internal/pkg/buildinfo"
	"github.com/a-scie/jump/internal/pkg/cas"
	"github.com/a-scie/jump/internal/pkg/depgraph"
	"github.com/a-scie/jump/internal/pkg/jumperr"
	"github.com/a-scie/jump/internal/pkg/lift"
	"github.com/a-scie/jump/internal/pkg/placeholder"
	"github.com/a-scie/jump/internal/pkg/procexec"
	"github.com/a-scie/jump/internal/pkg/reader"
	"github.com/a-scie/jump/internal/pkg/userpaths"
)

// Engine resolves placeholders and runs commands against one loaded scie.
type Engine struct {
	Manifest *lift.Manifest
	Store    *cas.Store
	Bindings *binding.Runner

	SelfPath string
	Argv0    string

	// SelfRange opens an io.ReadCloser over [start, end) of the executing
	// scie's own payload region, used to feed non-sourced file bytes into
	// the CAS materializer without holding the whole payload in memory.
	SelfRange func(start, end int64) (io.ReadCloser, error)
	// ManifestBytes is the raw manifest tail, re-written to a temp file on
	// demand to satisfy {scie.lift}.
	ManifestBytes []byte

	fileRanges map[string][2]int64

	filesByKey map[string]lift.FileEntry
	materialized map[string]string

	bindingCache map[string]bindingResult
	graph        *depgraph.Graph
}

type bindingResult struct {
	outputs map[string]string
	workDir string
}

// New builds an Engine for a fully-parsed, strict Manifest. layout locates
// the non-sourced payload files within the executing scie (selfRange is
// expected to read absolute byte offsets of the whole scie file, matching
// layout.PayloadStart/ZipStart, not offsets relative to the payload alone).
func New(m *lift.Manifest, base, selfPath, argv0 string, selfRange func(int64, int64) (io.ReadCloser, error), manifestBytes []byte, ambientEnv []string, layout *reader.Layout) (*Engine, error) {
	store, err := cas.New(base)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		Manifest:      m,
		Store:         store,
		Bindings:      &binding.Runner{Base: base, Env: ambientEnv},
		SelfPath:      selfPath,
		Argv0:         argv0,
		SelfRange:     selfRange,
		ManifestBytes: manifestBytes,
		filesByKey:    map[string]lift.FileEntry{},
		materialized:  map[string]string{},
		bindingCache:  map[string]bindingResult{},
		graph:         depgraph.New(),
	}

	var sizes []uint64
	var nonSourcedNames []string
	for _, f := range m.Lift.Files {
		e.filesByKey[f.LookupKey()] = f
		if !f.Sourced() {
			sizes = append(sizes, f.Size)
			nonSourcedNames = append(nonSourcedNames, f.LookupKey())
		}
	}

	// Reuse reader.PayloadFileRanges (the same arithmetic intrinsic.Split
	// uses) so file ranges are always anchored at layout.PayloadStart
	// rather than 0, and an overrun into the zip trailer is caught here
	// too.
	ranges, err := reader.PayloadFileRanges(layout, sizes)
	if err != nil {
		return nil, jumperr.New(jumperr.Format, "", "%v", err)
	}
	e.fileRanges = map[string][2]int64{}
	for i, name := range nonSourcedNames {
		e.fileRanges[name] = ranges[i]
	}

	return e, nil
}

// ResolveAndRun fully expands the selected command (materializing its
// files and bindings first) and replaces the current process with it.
func (e *Engine) ResolveAndRun(cmd lift.Command, args []string) error {
	exe, expandedArgs, env, err := e.ExpandCommand(cmd)
	if err != nil {
		return err
	}
	env["SCIE"] = e.SelfPath
	env["SCIE_ARGV0"] = e.Argv0
	env["SCIE_BINDINGS"] = filepath.Join(e.Store.Base, "bindings")
	delete(env, "SCIE_BOOT")

	fullArgs := append([]string{exe}, expandedArgs...)
	fullArgs = append(fullArgs, args...)
	return procexec.Replace(exe, fullArgs, procexec.ToSlice(env))
}

// ExpandCommand resolves cmd's env table, exe, and args, materializing any
// files or bindings they reference along the way.
func (e *Engine) ExpandCommand(cmd lift.Command) (exe string, args []string, env map[string]string, err error) {
	env, err = procexec.ComposeEnv(os.Environ(), cmd.Env, func(value string, envSoFar map[string]string) (string, error) {
		return placeholder.Expand(value, e.resolverFor(envSoFar))
	})
	if err != nil {
		return "", nil, nil, err
	}

	r := e.resolverFor(env)
	exe, err = placeholder.Expand(cmd.Exe, r)
	if err != nil {
		return "", nil, nil, err
	}
	args = make([]string, len(cmd.Args))
	for i, a := range cmd.Args {
		args[i], err = placeholder.Expand(a, r)
		if err != nil {
			return "", nil, nil, err
		}
	}
	return exe, args, env, nil
}

// resolverFor returns a placeholder.Resolver whose scie.env.* lookups read
// from env, and whose file/binding/platform lookups are Engine-wide.
func (e *Engine) resolverFor(env map[string]string) placeholder.Resolver {
	return envResolver{e: e, env: env}
}

type envResolver struct {
	e   *Engine
	env map[string]string
}

func (r envResolver) Env(name string) (string, bool) {
	v, ok := r.env[name]
	return v, ok
}

func (r envResolver) File(name string) (string, bool, error) { return r.e.resolveFile(name) }

func (r envResolver) FileHash(name string) (string, bool, error) {
	f, ok := r.e.filesByKey[name]
	if !ok {
		return "", false, nil
	}
	return f.Hash, true, nil
}

func (r envResolver) BindingDir(name string) (string, bool, error) {
	if _, ok := r.e.Manifest.Lift.Bindings[name]; !ok {
		return "", false, nil
	}
	_, workDir, err := r.e.resolveBinding(name)
	return workDir, true, err
}

func (r envResolver) BindingValue(name, key string) (string, bool, error) {
	outputs, _, err := r.e.resolveBinding(name)
	if err != nil {
		return "", false, err
	}
	v, ok := outputs[key]
	return v, ok, nil
}

func (r envResolver) Base() string { return r.e.Store.Base }

func (r envResolver) LiftPath() (string, error) { return r.e.writeLiftCopy() }

func (r envResolver) Argv0() string { return r.e.Argv0 }

func (r envResolver) PlatformArch() string { return buildinfo.Arch() }

func (r envResolver) PlatformOS() string { return buildinfo.OS() }

func (r envResolver) UserCacheDir(fallback string) (string, error) {
	return userpaths.CacheRoot(fallback)
}

func (e *Engine) resolveFile(name string) (string, bool, error) {
	if p, ok := e.materialized[name]; ok {
		return p, true, nil
	}
	f, ok := e.filesByKey[name]
	if !ok {
		return "", false, nil
	}

	key := "file:" + name
	already, err := e.graph.Enter(key)
	if err != nil {
		return "", false, err
	}
	if already {
		return e.materialized[name], true, nil
	}
	defer e.graph.Leave(key)

	open := func() (io.ReadCloser, error) {
		if f.Sourced() {
			return e.openSourcedPayload(f)
		}
		rng := e.fileRanges[name]
		return e.SelfRange(rng[0], rng[1])
	}

	dir, err := e.Store.Materialize(f, open)
	if err != nil {
		return "", false, err
	}
	path := dir
	if f.Type == lift.TypeBlob {
		path = filepath.Join(dir, f.LookupKey())
	}
	e.materialized[name] = path
	return path, true, nil
}

func (e *Engine) resolveBinding(name string) (map[string]string, string, error) {
	if cached, ok := e.bindingCache[name]; ok {
		return cached.outputs, cached.workDir, nil
	}

	key := "binding:" + name
	already, err := e.graph.Enter(key)
	if err != nil {
		return nil, "", err
	}
	if already {
		cached := e.bindingCache[name]
		return cached.outputs, cached.workDir, nil
	}
	defer e.graph.Leave(key)

	cmd, ok := e.Manifest.Lift.Bindings[name]
	if !ok {
		return nil, "", jumperr.New(jumperr.Config, "", "reference to unknown binding %q", name)
	}

	exe, args, env, err := e.ExpandCommand(cmd)
	if err != nil {
		return nil, "", err
	}
	identity := binding.Identity(exe, args, env)
	outputs, err := e.Bindings.Run(name, identity, exe, args, env)
	if err != nil {
		return nil, "", err
	}
	workDir := e.Bindings.WorkDir(identity)
	e.bindingCache[name] = bindingResult{outputs: outputs, workDir: workDir}
	return outputs, workDir, nil
}

// openSourcedPayload runs the binding that produces a sourced file's bytes
// on demand, piping its stdout to the CAS materializer (spec.md §4.5: "the
// binding is expected to write the file's raw bytes to stdout; the runner
// pipes those bytes through the CAS materialization protocol").
func (e *Engine) openSourcedPayload(f lift.FileEntry) (io.ReadCloser, error) {
	cmd, ok := e.Manifest.Lift.Bindings[f.Source]
	if !ok {
		return nil, jumperr.New(jumperr.Config, "", "file %q sources from unknown binding %q", f.Name, f.Source)
	}
	exe, args, env, err := e.ExpandCommand(cmd)
	if err != nil {
		return nil, err
	}

	child := exec.Command(exe, args...)
	child.Env = procexec.ToSlice(env)
	child.Stderr = os.Stderr
	stdout, err := child.StdoutPipe()
	if err != nil {
		return nil, jumperr.Wrap(jumperr.IO, "", err, "opening sourcing binding stdout")
	}
	if err := child.Start(); err != nil {
		return nil, jumperr.Wrap(jumperr.Binding, "", err, "starting sourcing binding")
	}
	return &sourcingReader{r: stdout, cmd: child, source: f.Source}, nil
}

type sourcingReader struct {
	r      io.ReadCloser
	cmd    *exec.Cmd
	source string
}

func (s *sourcingReader) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *sourcingReader) Close() error {
	s.r.Close()
	if err := s.cmd.Wait(); err != nil {
		return jumperr.Wrap(jumperr.Binding, "", err, "sourcing binding "+s.source+" failed")
	}
	return nil
}

// writeLiftCopy re-extracts the manifest to a fresh temp file, satisfying
// {scie.lift} (spec.md §3: "re-extracted to a temp path each time a
// placeholder {scie.lift} is consumed").
func (e *Engine) writeLiftCopy() (string, error) {
	f, err := os.CreateTemp("", "scie-lift-*.json")
	if err != nil {
		return "", jumperr.Wrap(jumperr.IO, "", err, "creating lift manifest temp file")
	}
	defer f.Close()
	if _, err := f.Write(e.ManifestBytes); err != nil {
		return "", jumperr.Wrap(jumperr.IO, "", err, "writing lift manifest temp file")
	}
	return f.Name(), nil
}
