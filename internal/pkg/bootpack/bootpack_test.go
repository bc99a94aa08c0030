package bootpack

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/a-scie/jump/internal/pkg/lift"
	"github.com/a-scie/jump/internal/pkg/magic"
	"github.com/a-scie/jump/internal/pkg/reader"
)

// writeFakeJump writes a stand-in jump binary: some leading "code" bytes followed by
// a bare-jump magic footer, just enough for magic.Detect to recognize it.
func writeFakeJump(t *testing.T, dir string) (path string, size int64) {
	t.Helper()
	leading := []byte("\x7fELF-not-a-real-jump-binary-but-has-a-footer")
	// JumpSize is the size of the whole jump binary, footer included, since
	// it becomes scie.jump.size: the payload-start offset in the assembled
	// scie.
	footer := magic.Footer{JumpSize: uint32(len(leading) + magic.Size)}.Encode()
	data := append(append([]byte{}, leading...), footer[:]...)

	path = filepath.Join(dir, "jump")
	if err := os.WriteFile(path, data, 0o755); err != nil {
		t.Fatalf("writing fake jump: %v", err)
	}
	return path, int64(len(data))
}

func TestAssembleProducesReadableScie(t *testing.T) {
	dir := t.TempDir()
	jumpPath, _ := writeFakeJump(t, dir)

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

	result, err := Assemble(manifestPath, Options{JumpPath: jumpPath, SingleLine: true})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if result.Name != "hello" {
		t.Errorf("Name = %q, want %q", result.Name, "hello")
	}

	outPath := filepath.Join(dir, "hello")
	if err := Write(outPath, result); err != nil {
		t.Fatalf("Write: %v", err)
	}

	layout, bare, err := reader.Load(outPath)
	if err != nil {
		t.Fatalf("reader.Load: %v", err)
	}
	if bare != nil {
		t.Fatal("assembled scie should not read back as a bare jump")
	}

	m, err := lift.Parse(layout.ManifestJSON, true)
	if err != nil {
		t.Fatalf("lift.Parse of round-tripped manifest: %v", err)
	}
	if len(m.Lift.Files) != 1 {
		t.Fatalf("expected one file entry to survive, got %+v", m.Lift.Files)
	}
	if m.Lift.Files[0].Hash == "" || m.Lift.Files[0].Size == 0 {
		t.Error("expected hash/size to have been elaborated during assembly")
	}

	ranges, err := reader.PayloadFileRanges(layout, []uint64{m.Lift.Files[0].Size})
	if err != nil {
		t.Fatalf("PayloadFileRanges: %v", err)
	}
	got := result.Data[ranges[0][0]:ranges[0][1]]
	if !bytes.Equal(got, appData) {
		t.Errorf("payload range content = %q, want %q", got, appData)
	}
}

func TestAssembleRejectsJumpWithoutMagicFooter(t *testing.T) {
	dir := t.TempDir()
	notAJump := filepath.Join(dir, "notjump")
	if err := os.WriteFile(notAJump, []byte("just some random bytes, no footer here"), 0o755); err != nil {
		t.Fatalf("writing fake non-jump: %v", err)
	}

	manifestPath := filepath.Join(dir, "lift.json")
	manifestSrc := []byte(`{"scie":{"lift":{"name":"hello","boot":{"commands":{"":{"exe":"/bin/true"}}}}}}`)
	if err := os.WriteFile(manifestPath, manifestSrc, 0o644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}

	if _, err := Assemble(manifestPath, Options{JumpPath: notAJump}); err == nil {
		t.Fatal("expected Assemble to reject a --jump binary with no magic footer")
	}
}
