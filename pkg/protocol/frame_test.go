package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	cases := map[string][]byte{
		"empty object": []byte(`{}`),
		"request":      []byte(`{"id":1,"method":"get_npc","params":{"npc_id":"kyle_cooley"}}`),
		"unicode":      []byte(`{"name":"Schedule I — bräu"}`),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteFrame(&buf, payload, 0); err != nil {
				t.Fatalf("write: %v", err)
			}
			got, err := ReadFrame(&buf, 0)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Fatalf("round trip mismatch: %q != %q", got, payload)
			}
		})
	}
}

func TestFrameAtLimitBoundary(t *testing.T) {
	limit := 64
	payload := bytes.Repeat([]byte("a"), limit)

	var buf bytes.Buffer
	if err := WriteFrame(&buf, payload, limit); err != nil {
		t.Fatalf("write at limit: %v", err)
	}
	got, err := ReadFrame(&buf, limit)
	if err != nil {
		t.Fatalf("read at limit: %v", err)
	}
	if len(got) != limit {
		t.Fatalf("expected %d bytes, got %d", limit, len(got))
	}

	if err := WriteFrame(&buf, append(payload, 'b'), limit); err == nil {
		t.Fatal("expected write over limit to fail")
	}
}

func TestFrameLimitAboveUint32(t *testing.T) {
	if strconv.IntSize < 64 {
		t.Skip("needs 64-bit int")
	}
	// A limit past the uint32 range must not wrap and reject small frames.
	limit := int(int64(math.MaxUint32) + 1)
	payload := []byte(`{"id":1,"method":"heartbeat"}`)

	var buf bytes.Buffer
	if err := WriteFrame(&buf, payload, limit); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadFrame(&buf, limit)
	if err != nil {
		t.Fatalf("read with wide limit: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: %q != %q", got, payload)
	}
}

func TestFrameOversizedPrefix(t *testing.T) {
	// Declares a ~10 GB payload in the prefix. Must fail without attempting
	// the allocation.
	var buf bytes.Buffer
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], 0xFFFFFFF0)
	buf.Write(prefix[:])
	buf.WriteString("ignored")

	_, err := ReadFrame(&buf, 0)
	var fe *FrameError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FrameError, got %v", err)
	}
	if fe.Kind != LengthOutOfBounds {
		t.Fatalf("expected LengthOutOfBounds, got %v", fe.Kind)
	}
}

func TestFrameTruncated(t *testing.T) {
	t.Run("inside prefix", func(t *testing.T) {
		_, err := ReadFrame(strings.NewReader("\x08\x00"), 0)
		var fe *FrameError
		if !errors.As(err, &fe) || fe.Kind != Truncated {
			t.Fatalf("expected Truncated FrameError, got %v", err)
		}
	})

	t.Run("inside payload", func(t *testing.T) {
		var buf bytes.Buffer
		var prefix [4]byte
		binary.LittleEndian.PutUint32(prefix[:], 16)
		buf.Write(prefix[:])
		buf.WriteString("short")
		_, err := ReadFrame(&buf, 0)
		var fe *FrameError
		if !errors.As(err, &fe) || fe.Kind != Truncated {
			t.Fatalf("expected Truncated FrameError, got %v", err)
		}
	})

	t.Run("clean close", func(t *testing.T) {
		_, err := ReadFrame(strings.NewReader(""), 0)
		if err != io.EOF {
			t.Fatalf("expected io.EOF on frame boundary, got %v", err)
		}
	})
}
