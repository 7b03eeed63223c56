package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{20, 1, 2, 3}
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFrame(&buf, 1024)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = %v, want %v", got, payload)
	}
}

func TestFrameExtendedRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := bytes.Repeat([]byte{0x42}, 0x10001)
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatal(err)
	}
	// Header must be the 0xFFFF escape plus a 32-bit length.
	head := buf.Bytes()[:6]
	if head[0] != 0xFF || head[1] != 0xFF {
		t.Fatalf("short length = %v, want 0xFFFF escape", head[:2])
	}
	got, err := ReadFrame(&buf, len(payload))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(payload) {
		t.Errorf("len = %d, want %d", len(got), len(payload))
	}
}

func TestReadFrameEmpty(t *testing.T) {
	buf := bytes.NewReader([]byte{0x00, 0x00})
	if _, err := ReadFrame(buf, 1024); !errors.Is(err, ErrFrameEmpty) {
		t.Errorf("err = %v, want ErrFrameEmpty", err)
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	buf := bytes.NewReader([]byte{0x10, 0x00})
	if _, err := ReadFrame(buf, 8); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestReadFrameShortPayload(t *testing.T) {
	buf := bytes.NewReader([]byte{0x04, 0x00, 0x01})
	if _, err := ReadFrame(buf, 1024); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("err = %v, want ErrUnexpectedEOF", err)
	}
}

func TestWriteFrameEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, nil); !errors.Is(err, ErrFrameEmpty) {
		t.Errorf("err = %v, want ErrFrameEmpty", err)
	}
}
