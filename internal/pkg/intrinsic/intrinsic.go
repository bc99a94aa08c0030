// Package intrinsic implements the SCIE-env-dispatched commands of
// spec.md §4.7: inspect, help, list, split, and install (boot-pack itself
// lives in internal/pkg/bootpack and is merely routed here). Colorized
// output follows the teacher's cmd/internal/cli/verify.go idiom of tagging
// provenance with github.com/fatih/color — here it prints command names in
// bold in list output; help output is not colorized.
package intrinsic

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/a-scie/jump/internal/pkg/jumperr"
	"github.com/a-scie/jump/internal/pkg/lift"
	"github.com/a-scie/jump/internal/pkg/reader"
	"github.com/a-scie/jump/internal/pkg/selector"
)

// colorEnabled mirrors the teacher's NO_COLOR / --nocolor / non-TTY gating:
// color is used only when w is a terminal and the user hasn't opted out.
func colorEnabled(w io.Writer, noColor bool) bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Inspect writes the lift manifest as pretty-printed JSON to w (spec.md
// §4.7: "Emit the lift manifest as pretty-printed JSON to stdout").
func Inspect(w io.Writer, m *lift.Manifest) error {
	raw, err := lift.Marshal(m, false)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(raw))
	return err
}

// Help renders the same help text the selector shows on a bad SCIE_BOOT.
func Help(w io.Writer, m *lift.Manifest, noColor bool) error {
	_, err := fmt.Fprintln(w, selector.HelpText(m.Lift.Commands))
	return err
}

// List writes one line per named (non-hidden) command, sorted by name; the
// default command is not listed. Names are printed in bold when color is
// enabled.
func List(w io.Writer, m *lift.Manifest, noColor bool) error {
	useColor := colorEnabled(w, noColor)
	var names []string
	for name := range m.Lift.Commands {
		if name == "" || selector.Hidden(m.Lift.Commands, name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	bold := color.New(color.Bold)
	for _, name := range names {
		line := name
		if useColor {
			line = bold.Sprint(name)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// SplitOptions controls Split's behavior.
type SplitOptions struct {
	OutDir  string
	DryRun  bool
	Names   []string // restrict output to these names; empty means all
	NoColor bool
}

// splitPart describes one piece of the scie's on-disk layout for the
// purposes of `split`.
type splitPart struct {
	name string
	role string
	data []byte
}

// Split writes the head jump, each payload file, the zip trailer (when
// present), and the newline followed by the canonicalized manifest into
// opts.OutDir as separate files (spec.md §4.7), or with DryRun just prints
// "<name> <size> <role>" lines.
func Split(w io.Writer, selfPath string, layout *reader.Layout, m *lift.Manifest, opts SplitOptions) error {
	self, err := os.ReadFile(selfPath)
	if err != nil {
		return jumperr.Wrap(jumperr.IO, "", err, "reading self for split")
	}

	var parts []splitPart
	parts = append(parts, splitPart{name: "jump", role: "jump", data: self[:layout.PayloadStart]})

	sizes := make([]uint64, 0, len(m.Lift.Files))
	var nonSourced []lift.FileEntry
	for _, f := range m.Lift.Files {
		if !f.Sourced() {
			sizes = append(sizes, f.Size)
			nonSourced = append(nonSourced, f)
		}
	}
	ranges, err := reader.PayloadFileRanges(layout, sizes)
	if err != nil {
		return jumperr.New(jumperr.Format, "", "%v", err)
	}
	for i, f := range nonSourced {
		rng := ranges[i]
		parts = append(parts, splitPart{name: f.LookupKey(), role: "file:" + string(f.Type), data: self[rng[0]:rng[1]]})
	}

	if layout.ZipStart < layout.ZipEnd {
		parts = append(parts, splitPart{name: "zip-trailer", role: "trailer", data: self[layout.ZipStart:layout.ZipEnd]})
	}

	// The on-disk manifest region begins with the single newline byte
	// bootpack writes between the payload/trailer and the JSON itself
	// (spec.md §3 step 3); the trailer part above ends at ZipEnd and
	// doesn't carry it, so it has to be prepended here or re-packing the
	// split parts would silently drop it.
	canonical, err := lift.Marshal(m, true)
	if err != nil {
		return err
	}
	manifestData := append([]byte("\n"), canonical...)
	parts = append(parts, splitPart{name: "manifest", role: "manifest", data: manifestData})

	filtered := parts
	if len(opts.Names) > 0 {
		want := map[string]bool{}
		for _, n := range opts.Names {
			want[n] = true
		}
		filtered = nil
		for _, p := range parts {
			if want[p.name] {
				filtered = append(filtered, p)
				delete(want, p.name)
			}
		}
		for n := range want {
			fmt.Fprintf(os.Stderr, "warning: split: no part named %q\n", n)
		}
	}

	if opts.DryRun {
		for _, p := range filtered {
			fmt.Fprintf(w, "%s %d %s\n", p.name, len(p.data), p.role)
		}
		return nil
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return jumperr.Wrap(jumperr.IO, "", err, "creating split output directory")
	}
	for _, p := range filtered {
		target := filepath.Join(opts.OutDir, p.name)
		mode := os.FileMode(0o644)
		if p.role == "jump" {
			mode = 0o755
		}
		if err := os.WriteFile(target, p.data, mode); err != nil {
			return jumperr.Wrap(jumperr.IO, "", err, fmt.Sprintf("writing split part %q", p.name))
		}
	}
	return nil
}

// Install writes a shim script per named command into dir, re-invoking the
// parent scie with SCIE_BOOT=<name> (spec.md §4.7, §6).
func Install(dir, parentScie string, m *lift.Manifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return jumperr.Wrap(jumperr.IO, "", err, "creating install directory")
	}
	for name := range m.Lift.Commands {
		if name == "" {
			continue
		}
		if err := writeShim(dir, name, parentScie); err != nil {
			return err
		}
	}
	return nil
}

func writeShim(dir, name, parentScie string) error {
	if runtime.GOOS == "windows" {
		script := fmt.Sprintf("$env:SCIE_BOOT = %q\n& %q @args\n", name, parentScie)
		return os.WriteFile(filepath.Join(dir, name+".ps1"), []byte(script), 0o644)
	}
	script := fmt.Sprintf("#!/bin/sh\nexec env SCIE_BOOT=%s %s \"$@\"\n", shellQuote(name), shellQuote(parentScie))
	return os.WriteFile(filepath.Join(dir, name), []byte(script), 0o755)
}

func shellQuote(s string) string {
	return "'" + s + "'"
}
