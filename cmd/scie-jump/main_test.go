package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/a-scie/jump/internal/pkg/bootpack"
	"github.com/a-scie/jump/internal/pkg/lift"
	"github.com/a-scie/jump/internal/pkg/magic"
	"github.com/a-scie/jump/internal/pkg/reader"
)

func TestSplitKV(t *testing.T) {
	name, value, ok := splitKV("NAME=value=with=equals")
	if !ok || name != "NAME" || value != "value=with=equals" {
		t.Errorf("splitKV = (%q, %q, %v)", name, value, ok)
	}

	if _, _, ok := splitKV("no-equals-sign"); ok {
		t.Error("expected splitKV to report false for a line with no '='")
	}
}

func TestExpandBasePlaceholderRecognizesDocumentedForms(t *testing.T) {
	os.Setenv("LOCALAPPDATA", filepath.FromSlash("/fake/local-app-data"))
	defer os.Unsetenv("LOCALAPPDATA")
	os.Setenv("XDG_CACHE_HOME", "/fake/xdg-cache")
	defer os.Unsetenv("XDG_CACHE_HOME")

	bare, err := expandBasePlaceholder("{scie.user.cache_dir}")
	if err != nil {
		t.Fatalf("expandBasePlaceholder: %v", err)
	}
	if bare == "{scie.user.cache_dir}" {
		t.Error("expected the bare placeholder form to be expanded")
	}

	withNce, err := expandBasePlaceholder("{scie.user.cache_dir}/nce")
	if err != nil {
		t.Fatalf("expandBasePlaceholder: %v", err)
	}
	if filepath.Base(withNce) != "nce" {
		t.Errorf("expandBasePlaceholder(.../nce) = %q, want it to end in nce", withNce)
	}
}

func TestExpandBasePlaceholderPassesThroughOtherValues(t *testing.T) {
	got, err := expandBasePlaceholder("/explicit/base/dir")
	if err != nil {
		t.Fatalf("expandBasePlaceholder: %v", err)
	}
	if got != "/explicit/base/dir" {
		t.Errorf("expandBasePlaceholder = %q, want the explicit value untouched", got)
	}
}

func TestApplyDotenvInjectsIntoProcessEnvironment(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SCIE_JUMP_TEST_VAR=from-dotenv\n"), 0o644); err != nil {
		t.Fatalf("writing .env fixture: %v", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer os.Chdir(cwd)

	os.Unsetenv("SCIE_JUMP_TEST_VAR")
	defer os.Unsetenv("SCIE_JUMP_TEST_VAR")

	m := &lift.Manifest{Lift: lift.Lift{LoadDotenv: true}}
	if err := applyDotenv(m); err != nil {
		t.Fatalf("applyDotenv: %v", err)
	}
	if got := os.Getenv("SCIE_JUMP_TEST_VAR"); got != "from-dotenv" {
		t.Errorf("SCIE_JUMP_TEST_VAR = %q, want %q", got, "from-dotenv")
	}
}

func TestApplyDotenvNoOpWhenLoadDotenvUnset(t *testing.T) {
	m := &lift.Manifest{Lift: lift.Lift{LoadDotenv: false}}
	if err := applyDotenv(m); err != nil {
		t.Fatalf("applyDotenv: %v", err)
	}
}

// writeFakeJump mirrors internal/pkg/bootpack's own test fixture: a stand-in
// jump binary carrying just enough of a bare-jump magic footer for
// bootpack.Assemble to accept it as --jump.
func writeFakeJump(t *testing.T, dir string) string {
	t.Helper()
	leading := []byte("\x7fELF-not-a-real-jump-binary-but-has-a-footer")
	footer := magic.Footer{JumpSize: uint32(len(leading) + magic.Size)}.Encode()
	data := append(append([]byte{}, leading...), footer[:]...)

	path := filepath.Join(dir, "jump")
	if err := os.WriteFile(path, data, 0o755); err != nil {
		t.Fatalf("writing fake jump: %v", err)
	}
	return path
}

// TestEndToEndBootPackReadSelectAndMaterialize assembles a tiny scie with
// bootpack, re-reads it the way cmd/scie-jump's own run() does (reader.Load
// + lift.Parse), and drives the real engine (via newEngine, the same
// constructor run() calls) through selecting and materializing its one
// embedded file. Unlike the engine package's unit tests, selfPath here
// points at an actual assembled file on disk, so this exercises the real
// jump-head + payload + scie-tote + manifest byte layout end to end rather
// than a synthetic fixture, and would have caught an unoffset payload range
// the way a hand-built fixture would not.
func TestEndToEndBootPackReadSelectAndMaterialize(t *testing.T) {
	dir := t.TempDir()
	jumpPath := writeFakeJump(t, dir)

	appData := []byte("print('hello from the payload')\n")
	if err := os.WriteFile(filepath.Join(dir, "app.py"), appData, 0o644); err != nil {
		t.Fatalf("writing payload file: %v", err)
	}

	manifestPath := filepath.Join(dir, "lift.json")
	manifestSrc := []byte(`{"scie":{"lift":{"name":"hello","files":[{"name":"app.py"}],
		"boot":{"commands":{"":{"exe":"/usr/bin/python3","args":["{app.py}"]}}}}}}`)
	if err := os.WriteFile(manifestPath, manifestSrc, 0o644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}

	result, err := bootpack.Assemble(manifestPath, bootpack.Options{JumpPath: jumpPath, SingleLine: true})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	scieOutPath := filepath.Join(dir, "hello")
	if err := bootpack.Write(scieOutPath, result); err != nil {
		t.Fatalf("Write: %v", err)
	}

	layout, bare, err := reader.Load(scieOutPath)
	if err != nil {
		t.Fatalf("reader.Load: %v", err)
	}
	if bare != nil {
		t.Fatal("assembled scie should not read back as a bare jump")
	}

	m, err := lift.Parse(layout.ManifestJSON, true)
	if err != nil {
		t.Fatalf("lift.Parse: %v", err)
	}

	base := t.TempDir()
	os.Setenv("SCIE_BASE", base)
	defer os.Unsetenv("SCIE_BASE")

	e, err := newEngine(scieOutPath, layout, m)
	if err != nil {
		t.Fatalf("newEngine: %v", err)
	}

	exe, args, _, err := e.ExpandCommand(m.Lift.Commands[""])
	if err != nil {
		t.Fatalf("ExpandCommand: %v", err)
	}
	if exe != "/usr/bin/python3" {
		t.Errorf("exe = %q", exe)
	}
	if len(args) != 1 {
		t.Fatalf("args = %v", args)
	}

	materialized, err := os.ReadFile(args[0])
	if err != nil {
		t.Fatalf("reading materialized file %q: %v", args[0], err)
	}
	if !bytes.Equal(materialized, appData) {
		t.Errorf("materialized file content = %q, want %q (this is exactly what a wrong payload-range offset corrupts)", materialized, appData)
	}
	if filepath.Dir(args[0]) != e.Store.ArtifactDir(m.Lift.Files[0].Hash) {
		t.Errorf("materialized file is outside its CAS artifact directory: %q", args[0])
	}
}
