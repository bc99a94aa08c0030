// Package decompress implements the "decompress stream to directory"
// collaborator contract spec.md §1 treats as external: given a compressed
// byte stream and a type, produce a plain io.Reader of the decompressed
// bytes (for tar.*) or hand the stream to the zip/tar layer directly.
//
// gzip and zstd go through github.com/klauspost/compress, grounded on
// quay-claircore's pkg/tarfs, which decodes tar streams compressed with
// exactly those two codecs the same way (decompress, then archive/tar.
// NewReader over the result). xz goes through github.com/ulikunitz/xz,
// grounded on its use for xz decompression in containers-image and
// quay-claircore/test/integration. bzip2 has no third-party decoder
// anywhere in the retrieved corpus (klauspost/compress and ulikunitz/xz
// both omit it), so it is the one component that falls back to the
// standard library's decode-only compress/bzip2 — noted in DESIGN.md.
package decompress

import (
	"compress/bzip2"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/a-scie/jump/internal/pkg/lift"
)

// Stream wraps r in the decoder matching t. t must be one of the tar.*
// archive types; TypeTar itself needs no decoding and TypeZip is handled
// directly by archive/zip (a random-access format, not a stream codec).
func Stream(t lift.FileType, r io.Reader) (io.ReadCloser, error) {
	switch t {
	case lift.TypeTarGz:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("decompress: gzip: %w", err)
		}
		return zr, nil
	case lift.TypeTarBz2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	case lift.TypeTarXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("decompress: xz: %w", err)
		}
		return io.NopCloser(xr), nil
	case lift.TypeTarZst:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("decompress: zstd: %w", err)
		}
		return zstdReadCloser{zr}, nil
	case lift.TypeTar:
		return io.NopCloser(r), nil
	default:
		return nil, fmt.Errorf("decompress: %q is not a streaming archive type", t)
	}
}

// zstdReadCloser adapts *zstd.Decoder's Close (which has no error return)
// to io.ReadCloser.
type zstdReadCloser struct{ d *zstd.Decoder }

func (z zstdReadCloser) Read(p []byte) (int, error) { return z.d.Read(p) }
func (z zstdReadCloser) Close() error                { z.d.Close(); return nil }
