// Package cas implements the content-addressed materializer of
// spec.md §4.4: each payload file or binding working directory is staged
// under a hash-named (or identity-hash-named) directory beneath a base
// directory, guarded by an flock advisory lock so concurrent scie
// invocations racing to populate the same entry serialize rather than
// corrupt each other, following the exact lock/re-check/stage/rename
// protocol spec.md lays out.
package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/a-scie/jump/internal/pkg/cas/lock"
	"github.com/a-scie/jump/internal/pkg/cas/unpack"
	"github.com/a-scie/jump/internal/pkg/jumperr"
	"github.com/a-scie/jump/internal/pkg/lift"
	"github.com/a-scie/jump/internal/pkg/sylog"
)

// completeMarker is the sentinel file that flags an artifact directory as
// fully and correctly materialized.
const completeMarker = ".complete"

// Store roots all CAS operations at Base (the resolved SCIE_BASE /
// scie.lift.base / OS user cache dir).
type Store struct {
	Base string
}

// New returns a Store rooted at base, creating base if necessary.
func New(base string) (*Store, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, jumperr.Wrap(jumperr.IO, "", err, "creating cache base directory")
	}
	if err := os.MkdirAll(filepath.Join(base, "locks"), 0o755); err != nil {
		return nil, jumperr.Wrap(jumperr.IO, "", err, "creating locks directory")
	}
	return &Store{Base: base}, nil
}

// ArtifactDir returns the directory an artifact with the given hash is (or
// will be) materialized at.
func (s *Store) ArtifactDir(hash string) string {
	return filepath.Join(s.Base, hash)
}

func (s *Store) lockPath(hash string) string {
	return filepath.Join(s.Base, "locks", hash)
}

// PayloadSource supplies the raw bytes of a file entry, either a section of
// the executing scie (for embedded files) or a binding's stdout (for
// sourced files per spec.md §3).
type PayloadSource func() (io.ReadCloser, error)

// Materialize runs the 7-step protocol of spec.md §4.4 for file entry f,
// reading its bytes from open(), and returns the artifact directory
// (always a directory, even for type=blob, which stores the single file
// inside it named after f.Name/LookupKey).
func (s *Store) Materialize(f lift.FileEntry, open PayloadSource) (string, error) {
	dir := s.ArtifactDir(f.Hash)
	if s.isComplete(dir) {
		return dir, nil
	}

	fd, err := lock.Exclusive(s.lockPath(f.Hash))
	if err != nil {
		return "", jumperr.Wrap(jumperr.IO, "", err, "acquiring CAS lock")
	}
	defer lock.Release(fd)

	if s.isComplete(dir) {
		return dir, nil
	}

	sylog.Debugf("materializing %s (%s) into %s", f.Name, f.Hash, dir)

	tmp := dir + ".tmp-" + uuid.NewString()
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return "", jumperr.Wrap(jumperr.IO, "", err, "creating staging directory")
	}
	defer os.RemoveAll(tmp) // no-op once renamed away

	rc, err := open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	hasher := sha256.New()
	tee := io.TeeReader(rc, hasher)

	if err := s.extract(f, tee, tmp); err != nil {
		return "", err
	}
	// archive/tar's reader stops as soon as it has seen the two zero
	// terminator blocks and never reads a GNU tar's trailing record
	// padding; drain whatever extract left unread so the hash always
	// covers the full declared payload region, not just the prefix tar
	// happened to consume.
	if _, err := io.Copy(io.Discard, tee); err != nil {
		return "", jumperr.Wrap(jumperr.IO, "", err, "draining payload after extraction")
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	if sum != f.Hash {
		return "", jumperr.New(jumperr.Integrity, "", "hash mismatch for %q: manifest says %s, extracted bytes hash to %s", f.Name, f.Hash, sum)
	}

	if err := os.Rename(tmp, dir); err != nil {
		return "", jumperr.Wrap(jumperr.IO, "", err, "promoting staged artifact")
	}
	if err := os.WriteFile(filepath.Join(dir, completeMarker), nil, 0o644); err != nil {
		return "", jumperr.Wrap(jumperr.IO, "", err, "writing completion marker")
	}
	return dir, nil
}

func (s *Store) extract(f lift.FileEntry, r io.Reader, tmp string) error {
	switch f.Type {
	case lift.TypeBlob:
		return unpack.Blob(r, tmp, f.LookupKey())
	case lift.TypeDirectory, lift.TypeZip:
		buf, err := bufferAll(r)
		if err != nil {
			return err
		}
		return unpack.Zip(buf, int64(buf.Len()), tmp)
	case lift.TypeTar, lift.TypeTarGz, lift.TypeTarBz2, lift.TypeTarXz, lift.TypeTarZst:
		return unpack.Tar(r, f.Type, tmp)
	default:
		return jumperr.New(jumperr.Platform, "", "unsupported archive type %q for file %q", f.Type, f.Name)
	}
}

func (s *Store) isComplete(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, completeMarker))
	return err == nil
}

// bufferAll reads all of r into memory as an io.ReaderAt, since zip
// requires random access and payload sections aren't themselves seekable
// once routed through a hashing TeeReader.
func bufferAll(r io.Reader) (*sizedReaderAt, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, jumperr.Wrap(jumperr.IO, "", err, "buffering zip payload")
	}
	return &sizedReaderAt{data: data}, nil
}

type sizedReaderAt struct{ data []byte }

func (b *sizedReaderAt) Len() int { return len(b.data) }

func (b *sizedReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b.data)) {
		if off == int64(len(b.data)) {
			return 0, io.EOF
		}
		return 0, io.ErrUnexpectedEOF
	}
	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
