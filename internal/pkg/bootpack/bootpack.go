// Package bootpack implements the assembler (spec.md §4.9): given one or
// more permissively-specified manifests and a jump binary, it elaborates
// missing file metadata, synthesizes a scie-tote when needed, and writes
// jump||payload||"\n"||canonical-manifest to a new executable.
package bootpack

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/blang/semver/v4"

	"github.com/a-scie/jump/internal/pkg/buildinfo"
	"github.com/a-scie/jump/internal/pkg/jumperr"
	"github.com/a-scie/jump/internal/pkg/lift"
	"github.com/a-scie/jump/internal/pkg/magic"
)

// Options configures one assembly run.
type Options struct {
	// JumpPath is a custom jump binary to embed; empty means "the current
	// executable, which must be bare".
	JumpPath string
	// SingleLine controls manifest serialization; boot-pack uses
	// single-line form by default (spec.md §4.9) so `tail -1` recovers it.
	SingleLine bool
}

// Result is one assembled scie.
type Result struct {
	Name string
	Data []byte
}

// Assemble reads the manifest at manifestPath (permissive mode), resolves
// every file relative to the manifest's directory, and produces a Result.
func Assemble(manifestPath string, opts Options) (*Result, error) {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, jumperr.Wrap(jumperr.IO, "", err, "reading manifest")
	}
	m, err := lift.Parse(raw, false)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(manifestPath)
	payloadBufs := make([][]byte, 0, len(m.Lift.Files))
	for i, f := range m.Lift.Files {
		if f.Sourced() {
			if f.Hash == "" || f.Size == 0 {
				return nil, jumperr.New(jumperr.Config, "", "sourced file %q must declare explicit hash and size", f.Name)
			}
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, f.Name))
		if err != nil {
			return nil, jumperr.Wrap(jumperr.IO, "", err, fmt.Sprintf("reading payload file %q", f.Name))
		}
		sum := sha256.Sum256(data)
		hash := hex.EncodeToString(sum[:])
		size := uint64(len(data))

		if f.Hash != "" && f.Hash != hash {
			return nil, jumperr.New(jumperr.Integrity, "", "file %q declared hash %s but actual bytes hash to %s", f.Name, f.Hash, hash)
		}
		if f.Size != 0 && f.Size != size {
			return nil, jumperr.New(jumperr.Integrity, "", "file %q declared size %d but actual size is %d", f.Name, f.Size, size)
		}
		m.Lift.Files[i].Hash = hash
		m.Lift.Files[i].Size = size
		if m.Lift.Files[i].Type == "" {
			m.Lift.Files[i].Type = lift.InferType(f.Name)
		}
		payloadBufs = append(payloadBufs, data)
	}

	jumpBytes, jumpSize, jumpVer, err := resolveJump(opts.JumpPath)
	if err != nil {
		return nil, err
	}
	m.Jump.Size = jumpSize
	m.Jump.Version = jumpVer

	if err := lift.Validate(m); err != nil {
		return nil, err
	}

	payload, err := composePayload(m.Lift.Files, payloadBufs)
	if err != nil {
		return nil, err
	}

	manifestJSON, err := lift.Marshal(m, opts.SingleLine)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.Write(jumpBytes)
	out.Write(payload)
	out.WriteByte('\n')
	out.Write(manifestJSON)

	return &Result{Name: m.Lift.Name, Data: out.Bytes()}, nil
}

// resolveJump loads the jump binary to embed, returning its bytes, size,
// and best-known version.
func resolveJump(jumpPath string) (data []byte, size uint64, version string, err error) {
	if jumpPath == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, 0, "", jumperr.Wrap(jumperr.Platform, "", err, "locating the current jump executable")
		}
		jumpPath = self
	}

	data, err = os.ReadFile(jumpPath)
	if err != nil {
		return nil, 0, "", jumperr.Wrap(jumperr.IO, "", err, "reading jump binary")
	}

	footer, ferr := magic.Detect(data)
	if ferr != nil {
		return nil, 0, "", jumperr.New(jumperr.Format, "the --jump binary must be a bare jump with no manifest appended", "%q does not carry a bare-jump magic footer", jumpPath)
	}

	version, verr := introspectVersion(jumpPath)
	if verr != nil {
		fmt.Fprintf(os.Stderr, "warning: could not introspect version of %q (%v); recording the running jump's own version %s\n", jumpPath, verr, buildinfo.Version)
		version = buildinfo.Version
	}

	return data, uint64(footer.JumpSize), version, nil
}

// introspectVersion shells out to `<jump> --version`, matching the teacher's
// own semver.ParseTolerant-gated "trust an external tool's version string
// only after validating its shape" idiom in internal/pkg/image/packer/
// squashfs.go.
func introspectVersion(jumpPath string) (string, error) {
	out, err := exec.Command(jumpPath, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("running %s --version: %w", jumpPath, err)
	}
	raw := strings.TrimSpace(string(out))
	v, err := semver.ParseTolerant(raw)
	if err != nil {
		return "", fmt.Errorf("output %q is not a valid version: %w", raw, err)
	}
	return v.String(), nil
}

// composePayload concatenates non-sourced payload bytes in manifest order,
// inserting a scie-tote (a STORED-compression zip of all payload entries)
// if the last payload entry isn't already a zip, per spec.md §3/§4.9.
func composePayload(files []lift.FileEntry, bufs [][]byte) ([]byte, error) {
	var nonSourced []lift.FileEntry
	for _, f := range files {
		if !f.Sourced() {
			nonSourced = append(nonSourced, f)
		}
	}

	lastIsZip := len(nonSourced) > 0 && nonSourced[len(nonSourced)-1].Type == lift.TypeZip

	var out bytes.Buffer
	for _, b := range bufs {
		out.Write(b)
	}

	if lastIsZip {
		return out.Bytes(), nil
	}

	tote, err := buildScieTote(nonSourced, bufs)
	if err != nil {
		return nil, err
	}
	out.Write(tote)
	return out.Bytes(), nil
}

// buildScieTote synthesizes a STORED-compression zip containing each
// payload file as an uncompressed entry, so the overall scie always ends
// in a valid zip EOCD (spec.md §3).
func buildScieTote(files []lift.FileEntry, bufs [][]byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i, f := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.LookupKey(), Method: zip.Store})
		if err != nil {
			return nil, jumperr.Wrap(jumperr.IO, "", err, "creating scie-tote entry")
		}
		if _, err := io.Copy(w, bytes.NewReader(bufs[i])); err != nil {
			return nil, jumperr.Wrap(jumperr.IO, "", err, "writing scie-tote entry")
		}
	}
	if err := zw.Close(); err != nil {
		return nil, jumperr.Wrap(jumperr.IO, "", err, "finalizing scie-tote")
	}
	return buf.Bytes(), nil
}

// Write persists a Result to dest, setting the executable bit (ignored on
// Windows).
func Write(dest string, r *Result) error {
	if err := os.WriteFile(dest, r.Data, 0o755); err != nil {
		return jumperr.Wrap(jumperr.IO, "", err, "writing assembled scie")
	}
	return nil
}
