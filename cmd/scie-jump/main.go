// Command scie-jump is the jump binary: bare, it is a boot-pack assembler;
// appended to a lift manifest and payload, it is the head of a scie and
// selects and launches the embedded command (spec.md §1/§2).
package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/a-scie/jump/internal/pkg/cli"
	"github.com/a-scie/jump/internal/pkg/dotenv"
	"github.com/a-scie/jump/internal/pkg/engine"
	"github.com/a-scie/jump/internal/pkg/intrinsic"
	"github.com/a-scie/jump/internal/pkg/jumperr"
	"github.com/a-scie/jump/internal/pkg/lift"
	"github.com/a-scie/jump/internal/pkg/reader"
	"github.com/a-scie/jump/internal/pkg/selector"
	"github.com/a-scie/jump/internal/pkg/selfexe"
	"github.com/a-scie/jump/internal/pkg/sylog"
	"github.com/a-scie/jump/internal/pkg/userpaths"
)

func main() {
	os.Exit(run())
}

func run() int {
	selfPath, err := selfexe.Resolve(os.Args[0])
	if err != nil {
		return cli.RenderError(err)
	}

	layout, bare, err := reader.Load(selfPath)
	if err != nil {
		return cli.RenderError(err)
	}
	if bare != nil {
		return cli.RenderError(runRootCmd())
	}

	m, err := lift.Parse(layout.ManifestJSON, true)
	if err != nil {
		return cli.RenderError(err)
	}

	if err := applyDotenv(m); err != nil {
		return cli.RenderError(err)
	}

	if scieCmd := os.Getenv("SCIE"); scieCmd != "" {
		return cli.RenderError(runIntrinsic(scieCmd, selfPath, layout, m))
	}

	return cli.RenderError(runTip(selfPath, layout, m))
}

func runRootCmd() error {
	cmd := cli.NewRootCmd()
	// pflag reads a single-dash multi-letter flag as a cluster of one-letter
	// flags, so the `-sj` spelling is rewritten to its `--sj` long form.
	args := append([]string{}, os.Args[1:]...)
	for i, a := range args {
		if a == "-sj" || strings.HasPrefix(a, "-sj=") {
			args[i] = "-" + a
		}
	}
	cmd.SetArgs(args)
	return cmd.Execute()
}

// applyDotenv loads a sibling .env into the process's own environment
// before anything else reads it, per spec.md §4.10: "injected into the
// ambient environment before command env-resolution".
func applyDotenv(m *lift.Manifest) error {
	if !m.Lift.LoadDotenv {
		return nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return jumperr.Wrap(jumperr.IO, "", err, "getting working directory for .env search")
	}
	path, found := dotenv.Find(cwd)
	if !found {
		return nil
	}
	entries, err := dotenv.Load(path)
	if err != nil {
		return err
	}
	for _, kv := range entries {
		if name, value, ok := splitKV(kv); ok {
			os.Setenv(name, value)
		}
	}
	return nil
}

func splitKV(kv string) (string, string, bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}

func newEngine(selfPath string, layout *reader.Layout, m *lift.Manifest) (*engine.Engine, error) {
	base, err := resolveBase(m)
	if err != nil {
		return nil, err
	}
	selfRange := func(start, end int64) (io.ReadCloser, error) {
		f, err := os.Open(selfPath)
		if err != nil {
			return nil, jumperr.Wrap(jumperr.IO, "", err, "opening self for payload extraction")
		}
		sr := io.NewSectionReader(f, start, end-start)
		return struct {
			io.Reader
			io.Closer
		}{Reader: sr, Closer: f}, nil
	}
	return engine.New(m, base, selfPath, os.Args[0], selfRange, layout.ManifestJSON, os.Environ(), layout)
}

// resolveBase implements spec.md §4.4's precedence: SCIE_BASE env, else
// scie.lift.base (itself placeholder-bearing), else the OS user cache dir.
func resolveBase(m *lift.Manifest) (string, error) {
	if v := os.Getenv("SCIE_BASE"); v != "" {
		return v, nil
	}
	base := m.Lift.Base
	if base == "" {
		base = lift.DefaultBase
	}
	// scie.lift.base may itself reference {scie.user.cache_dir}; resolve
	// just that one placeholder form directly rather than standing up a
	// full engine before the base directory (and hence the engine's cas
	// Store) exists.
	resolved, err := expandBasePlaceholder(base)
	if err != nil {
		return "", err
	}
	return resolved, nil
}

func expandBasePlaceholder(base string) (string, error) {
	const prefix = "{scie.user.cache_dir}"
	if base == prefix+"/nce" || base == prefix {
		dir, err := userpaths.CacheRoot("")
		if err != nil {
			return "", jumperr.Wrap(jumperr.Platform, "", err, "resolving default cache directory")
		}
		if base == prefix {
			return dir, nil
		}
		return filepath.Join(dir, "nce"), nil
	}
	return base, nil
}

func runTip(selfPath string, layout *reader.Layout, m *lift.Manifest) error {
	sel, err := selector.Select(m.Lift.Commands, os.Getenv("SCIE_BOOT"), os.Args[0], os.Args[1:])
	if err != nil {
		return err
	}

	e, err := newEngine(selfPath, layout, m)
	if err != nil {
		return err
	}
	return e.ResolveAndRun(sel.Command, sel.Args)
}

func runIntrinsic(name, selfPath string, layout *reader.Layout, m *lift.Manifest) error {
	switch name {
	case "inspect":
		return intrinsic.Inspect(os.Stdout, m)
	case "help":
		return intrinsic.Help(os.Stdout, m, cli.NoColor())
	case "list":
		return intrinsic.List(os.Stdout, m, cli.NoColor())
	case "split":
		cmd := cli.NewSplitCmd(selfPath, layout, m)
		cmd.SetArgs(os.Args[1:])
		return cmd.Execute()
	case "install":
		cmd := cli.NewInstallCmd(selfPath, m)
		cmd.SetArgs(os.Args[1:])
		return cmd.Execute()
	case "boot-pack":
		return runRootCmd()
	default:
		sylog.Warningf("unrecognized SCIE=%s; falling back to normal command selection", name)
		return runTip(selfPath, layout, m)
	}
}
