// Package unpack extracts archive payloads into a CAS staging directory.
// Entry paths are joined under the destination with
// github.com/cyphar/filepath-securejoin, the same library apptainer's
// internal/pkg/build/files uses to keep container build-time file copies
// from escaping their destination root via ".." components or symlinks —
// here it keeps a malicious or buggy archive entry from writing outside the
// CAS directory being populated.
package unpack

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/a-scie/jump/internal/pkg/cas/decompress"
	"github.com/a-scie/jump/internal/pkg/jumperr"
	"github.com/a-scie/jump/internal/pkg/lift"
)

// Zip extracts a zip archive (STORED or DEFLATEd entries) read from r, of
// rLen bytes, into dest. Directories (spec.md's type=directory files, which
// are packed as zips by boot-pack) go through this same path.
func Zip(r io.ReaderAt, rLen int64, dest string) error {
	zr, err := zip.NewReader(r, rLen)
	if err != nil {
		return jumperr.Wrap(jumperr.Format, "", err, "opening zip payload")
	}
	for _, f := range zr.File {
		target, err := securejoin.SecureJoin(dest, f.Name)
		if err != nil {
			return jumperr.Wrap(jumperr.IO, "", err, "resolving zip entry path")
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return jumperr.Wrap(jumperr.IO, "", err, "creating directory from zip entry")
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return jumperr.Wrap(jumperr.IO, "", err, "creating parent directory for zip entry")
		}
		if err := extractZipFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractZipFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return jumperr.Wrap(jumperr.IO, "", err, "opening zip entry")
	}
	defer rc.Close()

	mode := f.Mode()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return jumperr.Wrap(jumperr.IO, "", err, "creating extracted file")
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return jumperr.Wrap(jumperr.IO, "", err, "writing extracted file")
	}
	// Preserve the execute bit for entries that carry it, since the
	// launched command's exe may itself live inside an extracted archive
	// (spec.md §4.4: "Executable bits are preserved for zip entries
	// carrying them and for tar entries").
	return os.Chmod(target, mode.Perm())
}

// Tar extracts a tar stream, optionally compressed per archiveType, into
// dest.
func Tar(r io.Reader, archiveType lift.FileType, dest string) error {
	stream := r
	if archiveType != lift.TypeTar {
		dec, err := decompress.Stream(archiveType, r)
		if err != nil {
			return jumperr.Wrap(jumperr.Platform, "", err, "selecting decompressor")
		}
		defer dec.Close()
		stream = dec
	}

	tr := tar.NewReader(stream)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return jumperr.Wrap(jumperr.Format, "", err, "reading tar entry")
		}

		target, err := securejoin.SecureJoin(dest, hdr.Name)
		if err != nil {
			return jumperr.Wrap(jumperr.IO, "", err, "resolving tar entry path")
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return jumperr.Wrap(jumperr.IO, "", err, "creating directory from tar entry")
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return jumperr.Wrap(jumperr.IO, "", err, "creating parent directory for tar entry")
			}
			if err := extractTarFile(tr, target, hdr); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return jumperr.Wrap(jumperr.IO, "", err, "creating parent directory for tar entry")
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil && !os.IsExist(err) {
				return jumperr.Wrap(jumperr.IO, "", err, "creating symlink from tar entry")
			}
		default:
			// Ignore char/block/fifo devices and other non-regular entries;
			// payload archives are application bits, not device nodes.
		}
	}
}

func extractTarFile(tr *tar.Reader, target string, hdr *tar.Header) error {
	mode := os.FileMode(hdr.Mode).Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return jumperr.Wrap(jumperr.IO, "", err, "creating extracted file")
	}
	defer out.Close()
	if _, err := io.Copy(out, tr); err != nil {
		return jumperr.Wrap(jumperr.IO, "", err, "writing extracted file")
	}
	return os.Chmod(target, mode)
}

// Blob copies a single-file payload (type=blob) into dest/name.
func Blob(r io.Reader, dest, name string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return jumperr.Wrap(jumperr.IO, "", err, "creating blob directory")
	}
	target := filepath.Join(dest, name)
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return jumperr.Wrap(jumperr.IO, "", err, "creating blob file")
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return jumperr.Wrap(jumperr.IO, "", err, "writing blob file")
	}
	return nil
}

// ErrUnsupportedType is returned for a file type unpack does not know how
// to extract.
var ErrUnsupportedType = fmt.Errorf("unpack: unsupported archive type")
