package placeholder

import (
	"strings"
	"testing"
)

type fakeResolver struct {
	files    map[string]string
	hashes   map[string]string
	bindings map[string]string
	bindVals map[string]map[string]string
	env      map[string]string
	base     string
}

func (f fakeResolver) File(name string) (string, bool, error) {
	v, ok := f.files[name]
	return v, ok, nil
}
func (f fakeResolver) FileHash(name string) (string, bool, error) {
	v, ok := f.hashes[name]
	return v, ok, nil
}
func (f fakeResolver) BindingDir(name string) (string, bool, error) {
	v, ok := f.bindings[name]
	return v, ok, nil
}
func (f fakeResolver) BindingValue(name, key string) (string, bool, error) {
	m, ok := f.bindVals[name]
	if !ok {
		return "", false, nil
	}
	v, ok := m[key]
	return v, ok, nil
}
func (f fakeResolver) Env(name string) (string, bool) {
	v, ok := f.env[name]
	return v, ok
}
func (f fakeResolver) Base() string              { return f.base }
func (f fakeResolver) LiftPath() (string, error) { return "/tmp/lift.json", nil }
func (f fakeResolver) Argv0() string             { return "myapp" }
func (f fakeResolver) PlatformArch() string      { return "amd64" }
func (f fakeResolver) PlatformOS() string        { return "linux" }
func (f fakeResolver) UserCacheDir(fallback string) (string, error) {
	return "/home/u/.cache", nil
}

func newFakeResolver() fakeResolver {
	return fakeResolver{
		files:    map[string]string{"h.jar": "/base/abc123/h.jar"},
		hashes:   map[string]string{"h.jar": "abc123hash"},
		bindings: map[string]string{"setup": "/base/bindings/deadbeef"},
		bindVals: map[string]map[string]string{"setup": {"port": "8080"}},
		env:      map[string]string{"HOME": "/home/u"},
		base:     "/base",
	}
}

func TestExpandFileAndHash(t *testing.T) {
	r := newFakeResolver()
	got, err := Expand("{h.jar} {h.jar:hash}", r)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := "/base/abc123/h.jar abc123hash"
	if got != want {
		t.Errorf("Expand = %q, want %q", got, want)
	}
}

func TestExpandScieFilesForm(t *testing.T) {
	r := newFakeResolver()
	got, err := Expand("{scie.files.h.jar}", r)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if got != "/base/abc123/h.jar" {
		t.Errorf("Expand = %q", got)
	}
}

func TestExpandBindingDirAndValue(t *testing.T) {
	r := newFakeResolver()
	got, err := Expand("{scie.bindings.setup} port={scie.bindings.setup:port}", r)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := "/base/bindings/deadbeef port=8080"
	if got != want {
		t.Errorf("Expand = %q, want %q", got, want)
	}
}

func TestExpandEnvWithDefault(t *testing.T) {
	r := newFakeResolver()
	got, err := Expand("{scie.env.HOME} {scie.env.MISSING=fallback}", r)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if got != "/home/u fallback" {
		t.Errorf("Expand = %q", got)
	}
}

func TestExpandBaseAndPlatform(t *testing.T) {
	r := newFakeResolver()
	got, err := Expand("{scie.base} {scie.platform} {scie.platform.os}-{scie.platform.arch}", r)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if got != "/base linux-amd64 linux-amd64" {
		t.Errorf("Expand = %q", got)
	}
}

func TestExpandUnknownFileIsFatal(t *testing.T) {
	r := newFakeResolver()
	if _, err := Expand("{does.not.exist}", r); err == nil {
		t.Fatal("expected error for unresolvable file placeholder")
	}
}

func TestExpandUnknownScieFormIsFatal(t *testing.T) {
	r := newFakeResolver()
	if _, err := Expand("{scie.nonsense}", r); err == nil {
		t.Fatal("expected error for unrecognized scie.* placeholder")
	}
}

func TestExpandCyclicReferenceIsFatal(t *testing.T) {
	r := newFakeResolver()
	// A literal placeholder that resolves to itself creates an infinite
	// recursive expansion; the depth guard should trip well before that.
	r.env["LOOP"] = "{scie.env.LOOP}"
	_, err := Expand("{scie.env.LOOP}", r)
	if err == nil {
		t.Fatal("expected cyclic/overflowing expansion to error")
	}
	if !strings.Contains(err.Error(), "depth") && !strings.Contains(err.Error(), "cyclic") {
		t.Errorf("expected a depth/cycle error, got: %v", err)
	}
}

func TestReferencedBindingsAndFiles(t *testing.T) {
	s := "{scie.bindings.setup:port} {h.jar} {scie.files.other}"
	bindings := ReferencedBindings(s)
	if len(bindings) != 1 || bindings[0] != "setup" {
		t.Errorf("ReferencedBindings = %v", bindings)
	}
	files := ReferencedFiles(s)
	if len(files) != 2 || files[0] != "h.jar" || files[1] != "other" {
		t.Errorf("ReferencedFiles = %v", files)
	}
}
