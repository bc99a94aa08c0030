package dotenv

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseSkipsBlankAndCommentLines(t *testing.T) {
	out, err := Parse("\n# a comment\n  \nNAME=value\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(out) != 1 || out[0] != "NAME=value" {
		t.Errorf("Parse = %v, want only NAME=value", out)
	}
}

func TestParseStripsExportPrefix(t *testing.T) {
	out, err := Parse("export NAME=value")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if out[0] != "NAME=value" {
		t.Errorf("Parse = %v", out)
	}
}

func TestParseBareExportWithNoEqualsIsFatal(t *testing.T) {
	if _, err := Parse("export NAME"); err == nil {
		t.Fatal("expected error for bare 'export NAME' with no '='")
	}
}

func TestParseSingleQuotedValueIsVerbatim(t *testing.T) {
	out, err := Parse(`NAME='$HOME literal'`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if out[0] != "NAME=$HOME literal" {
		t.Errorf("Parse = %v, want single quotes to suppress expansion", out)
	}
}

func TestParseDoubleQuotedValueExpandsPriorAndAmbient(t *testing.T) {
	os.Setenv("DOTENV_TEST_AMBIENT", "from-os")
	defer os.Unsetenv("DOTENV_TEST_AMBIENT")

	out, err := Parse("FIRST=one\nSECOND=\"${FIRST}-${DOTENV_TEST_AMBIENT}\"")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if out[1] != "SECOND=one-from-os" {
		t.Errorf("Parse = %v, want expansion against prior-in-file then ambient", out)
	}
}

func TestParseUnterminatedQuoteIsFatal(t *testing.T) {
	if _, err := Parse(`NAME="unterminated`); err == nil {
		t.Fatal("expected error for unterminated double-quoted value")
	}
	if _, err := Parse(`NAME='unterminated`); err == nil {
		t.Fatal("expected error for unterminated single-quoted value")
	}
}

func TestParseBareValueStripsInlineComment(t *testing.T) {
	out, err := Parse("NAME=value # trailing comment")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if out[0] != "NAME=value" {
		t.Errorf("Parse = %v, want inline comment stripped", out)
	}
}

func TestFindWalksUpToParentDirectory(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".env"), []byte("A=1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	child := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(child, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	found, ok := Find(child)
	if !ok {
		t.Fatal("expected Find to locate .env in an ancestor directory")
	}
	want := filepath.Join(root, ".env")
	if found != want {
		t.Errorf("Find = %q, want %q", found, want)
	}
}

func TestFindReturnsFalseWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	if _, ok := Find(dir); ok {
		t.Error("expected Find to report false in a directory tree with no .env")
	}
}
