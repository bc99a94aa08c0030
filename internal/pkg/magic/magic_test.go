package magic

import "testing"

func TestEncodeDetectRoundTrip(t *testing.T) {
	f := Footer{JumpSize: 123456}
	encoded := f.Encode()

	tail := append([]byte("some leading executable bytes"), encoded[:]...)
	got, err := Detect(tail)
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	if got.JumpSize != f.JumpSize {
		t.Errorf("JumpSize = %d, want %d", got.JumpSize, f.JumpSize)
	}
}

func TestDetectRejectsNonBare(t *testing.T) {
	tail := []byte("not a bare jump tail at all, just some bytes")
	if _, err := Detect(tail); err != ErrNotBare {
		t.Errorf("Detect = %v, want ErrNotBare", err)
	}
}

func TestDetectRejectsShortInput(t *testing.T) {
	if _, err := Detect([]byte("short")); err != ErrNotBare {
		t.Errorf("Detect of short input = %v, want ErrNotBare", err)
	}
}
