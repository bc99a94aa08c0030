// Package reader implements the scie reader (spec.md §4.1): it locates the
// zip end-of-central-directory trailer near the end of the executing file,
// slices out the JSON manifest that follows it, and computes the payload
// byte-range that precedes it. It also recognizes a bare jump (no manifest
// at all, just the magic.Footer) so callers can route to boot-pack instead.
package reader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/buger/jsonparser"

	"github.com/a-scie/jump/internal/pkg/jumperr"
	"github.com/a-scie/jump/internal/pkg/magic"
)

// maxEOCDScan bounds the backward scan for the EOCD signature: 22 fixed
// bytes plus up to a 65535-byte zip comment (spec.md §3).
const maxEOCDScan = 22 + 65535

const eocdSignature = "PK\x05\x06"

// Layout describes the byte ranges of a parsed scie file.
type Layout struct {
	// TotalSize is the full file size.
	TotalSize int64
	// PayloadStart is the first payload byte, i.e. jump.size.
	PayloadStart int64
	// ZipStart is the first byte of the zip archive that ends the scie
	// (either the last real payload file, if it's already a zip, or a
	// synthesized scie-tote).
	ZipStart int64
	// ZipEnd is the byte just after the zip's end-of-central-directory
	// record, i.e. the first byte of the manifest.
	ZipEnd int64
	// ManifestJSON is the raw manifest bytes, [ZipEnd, TotalSize).
	ManifestJSON []byte
}

// Bare is returned (with ok=true) when the path is a bare jump rather than
// a scie tip.
type Bare struct {
	JumpSize uint32
}

// Load inspects the file at path (normally the running executable) and
// either returns its Layout or reports that it is a Bare jump.
func Load(path string) (layout *Layout, bare *Bare, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, jumperr.Wrap(jumperr.IO, "", err, "opening executing file")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, jumperr.Wrap(jumperr.IO, "", err, "stat-ing executing file")
	}
	size := info.Size()

	tailLen := int64(maxEOCDScan)
	if tailLen > size {
		tailLen = size
	}
	tail := make([]byte, tailLen)
	if _, err := f.ReadAt(tail, size-tailLen); err != nil && err != io.EOF {
		return nil, nil, jumperr.Wrap(jumperr.IO, "", err, "reading file tail")
	}

	idx := bytes.LastIndex(tail, []byte(eocdSignature))
	if idx < 0 {
		if bf, ferr := magic.Detect(tail); ferr == nil {
			return nil, &Bare{JumpSize: bf.JumpSize}, nil
		}
		return nil, nil, jumperr.New(jumperr.Format, "inspect the file with `file` or `unzip -l`", "no zip end-of-central-directory record found in the last %d bytes", tailLen)
	}
	eocdOff := size - tailLen + int64(idx)

	if len(tail)-idx < 22 {
		return nil, nil, jumperr.New(jumperr.Format, "", "truncated zip end-of-central-directory record")
	}
	eocd := tail[idx : idx+22]
	commentLen := binary.LittleEndian.Uint16(eocd[20:22])
	manifestStart := eocdOff + 22 + int64(commentLen)
	if manifestStart > size {
		return nil, nil, jumperr.New(jumperr.Format, "", "zip comment length overruns the file")
	}

	cdSize := int64(binary.LittleEndian.Uint32(eocd[12:16]))
	cdOffset := int64(binary.LittleEndian.Uint32(eocd[16:20]))
	zipStart := eocdOff - cdSize - cdOffset
	if zipStart < 0 || zipStart > eocdOff {
		return nil, nil, jumperr.New(jumperr.Format, "", "zip central directory offsets are inconsistent with file size")
	}

	manifestBytes := make([]byte, size-manifestStart)
	if _, err := f.ReadAt(manifestBytes, manifestStart); err != nil && err != io.EOF {
		return nil, nil, jumperr.Wrap(jumperr.IO, "", err, "reading manifest tail")
	}
	if len(manifestBytes) == 0 {
		return nil, nil, jumperr.New(jumperr.Format, "a scie tip must end in a JSON lift manifest", "manifest is empty")
	}

	jumpSize, err := preflightJumpSize(manifestBytes)
	if err != nil {
		return nil, nil, err
	}
	if jumpSize > uint64(zipStart) {
		return nil, nil, jumperr.New(jumperr.Format, "", "scie.jump.size (%d) exceeds the payload region (%d bytes)", jumpSize, zipStart)
	}

	return &Layout{
		TotalSize:    size,
		PayloadStart: int64(jumpSize),
		ZipStart:     zipStart,
		ZipEnd:       manifestStart,
		ManifestJSON: manifestBytes,
	}, nil, nil
}

// preflightJumpSize uses github.com/buger/jsonparser for a cheap,
// allocation-light scan of scie.jump.size, so a grossly truncated or
// corrupted manifest tail fails fast before paying for a full
// encoding/json decode + struct hydration in internal/pkg/lift.
func preflightJumpSize(manifest []byte) (uint64, error) {
	v, dtype, _, err := jsonparser.Get(manifest, "scie", "jump", "size")
	if err != nil {
		return 0, jumperr.New(jumperr.Format, "run `SCIE=inspect` on a working scie to compare shapes", "manifest tail is not valid JSON or is missing scie.jump.size: %v", err)
	}
	if dtype != jsonparser.Number {
		return 0, jumperr.New(jumperr.Format, "", "scie.jump.size must be a number")
	}
	n, err := jsonparser.ParseInt(v)
	if err != nil || n < 0 {
		return 0, jumperr.New(jumperr.Format, "", "scie.jump.size is not a valid non-negative integer")
	}
	return uint64(n), nil
}

// PayloadFileRanges reconstructs per-file byte offsets within
// [PayloadStart, ZipStart) in manifest order, for non-sourced files; the
// last file may instead be the zip that ends the scie, spanning exactly
// [ZipStart, ZipEnd). Files
// of type directory/zip/tar* occupy the raw compressed/archived bytes that
// will later be unpacked into the CAS; files of type blob occupy exactly
// Size bytes.
func PayloadFileRanges(layout *Layout, sizes []uint64) ([][2]int64, error) {
	offsets := make([][2]int64, len(sizes))
	cur := layout.PayloadStart
	for i, sz := range sizes {
		offsets[i] = [2]int64{cur, cur + int64(sz)}
		cur += int64(sz)
	}
	lastIsTrailingZip := len(offsets) > 0 &&
		offsets[len(offsets)-1][0] == layout.ZipStart && cur == layout.ZipEnd
	if cur > layout.ZipStart && !lastIsTrailingZip {
		return nil, fmt.Errorf("payload files overrun the zip trailer by %d bytes", cur-layout.ZipStart)
	}
	return offsets, nil
}
