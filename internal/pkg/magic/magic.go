// Package magic implements the bare-jump magic footer from spec.md §3/§6:
// an 8-byte trailer appended to the bare jump binary that lets the jump
// distinguish "I am a bare jump" (no manifest yet appended) from "I am the
// head of a scie" (my own trailing bytes have been overwritten by the first
// payload byte, and a manifest now follows at the tail of the file).
package magic

import (
	"encoding/binary"
	"errors"
)

// Size is the length in bytes of the magic footer.
const Size = 8

// sentinel occupies the first 4 bytes of the footer. The remaining 4 bytes
// encode the bare jump's own size as a little-endian uint32, so boot-pack
// can recover jump.size directly from a bare jump without any other input.
var sentinel = [4]byte{'S', 'C', 'I', 'E'}

// ErrNotBare is returned by Detect when the trailing bytes don't match the
// sentinel, i.e. the file is a scie tip rather than a bare jump.
var ErrNotBare = errors.New("magic: not a bare jump")

// Footer encodes and decodes the trailing 8 bytes of a bare jump.
type Footer struct {
	JumpSize uint32
}

// Encode renders the footer as 8 bytes, ready to append to a bare jump
// binary during its own build.
func (f Footer) Encode() [Size]byte {
	var buf [Size]byte
	copy(buf[:4], sentinel[:])
	binary.LittleEndian.PutUint32(buf[4:8], f.JumpSize)
	return buf
}

// Detect inspects the last Size bytes of a file's contents and reports
// whether they are a valid bare-jump footer. It returns ErrNotBare (not a
// FormatError) when the sentinel doesn't match, since "not bare" is an
// expected outcome for a scie tip, not a malformed-file condition.
func Detect(tail []byte) (Footer, error) {
	if len(tail) < Size {
		return Footer{}, ErrNotBare
	}
	last := tail[len(tail)-Size:]
	if string(last[:4]) != string(sentinel[:]) {
		return Footer{}, ErrNotBare
	}
	return Footer{JumpSize: binary.LittleEndian.Uint32(last[4:8])}, nil
}
