// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestCompressRoundTrip(t *testing.T) {
	// Highly repetitive payload so both algorithms actually shrink it.
	payload := bytes.Repeat([]byte("causeway overlay payload "), 200)

	for _, tag := range []CompressionTag{CompressionLZ4, CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			compressed, used, err := compressPayload(payload, tag)
			if err != nil {
				t.Fatalf("compress: %v", err)
			}
			if used != tag {
				t.Fatalf("compression fell back to %v, expected %v", used, tag)
			}
			if len(compressed) >= len(payload) {
				t.Fatalf("compressed size %d not smaller than raw %d",
					len(compressed), len(payload))
			}

			restored, err := decompressPayload(compressed, used, len(payload))
			if err != nil {
				t.Fatalf("decompress: %v", err)
			}
			if !bytes.Equal(restored, payload) {
				t.Fatal("round trip did not restore the payload")
			}
		})
	}
}

func TestCompressNonePassesThrough(t *testing.T) {
	payload := []byte("short")
	compressed, used, err := compressPayload(payload, CompressionNone)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if used != CompressionNone {
		t.Fatalf("expected CompressionNone, got %v", used)
	}
	if !bytes.Equal(compressed, payload) {
		t.Fatal("none compression must pass data through unchanged")
	}
}

func TestIncompressibleFallsBackToNone(t *testing.T) {
	payload := make([]byte, 4096)
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("rand: %v", err)
	}

	for _, tag := range []CompressionTag{CompressionLZ4, CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			compressed, used, err := compressPayload(payload, tag)
			if err != nil {
				t.Fatalf("compress: %v", err)
			}
			if used != CompressionNone {
				t.Fatalf("random data should fall back to none, got %v", used)
			}
			if !bytes.Equal(compressed, payload) {
				t.Fatal("fallback must return the original payload")
			}
		})
	}
}

func TestDecompressSizeMismatch(t *testing.T) {
	payload := bytes.Repeat([]byte("abcd"), 512)
	compressed, used, err := compressPayload(payload, CompressionZstd)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if _, err := decompressPayload(compressed, used, len(payload)-1); err == nil {
		t.Fatal("expected an error for a raw size mismatch")
	}
}

func TestDecompressRejectsHostileRawSize(t *testing.T) {
	// RawSize comes off the wire and sizes an allocation, so a
	// malformed envelope must produce an error, never a panic.
	garbage := []byte{0x01, 0x02}

	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			if _, err := decompressPayload(garbage, tag, -1); err == nil {
				t.Fatal("expected an error for a negative raw size")
			}
			if _, err := decompressPayload(garbage, tag, maxRawSize+1); err == nil {
				t.Fatal("expected an error for an oversized raw size")
			}
		})
	}
}

func TestParseCompressionTag(t *testing.T) {
	for name, want := range map[string]CompressionTag{
		"none": CompressionNone,
		"lz4":  CompressionLZ4,
		"zstd": CompressionZstd,
	} {
		got, err := ParseCompressionTag(name)
		if err != nil {
			t.Fatalf("ParseCompressionTag(%q): %v", name, err)
		}
		if got != want {
			t.Fatalf("ParseCompressionTag(%q) = %v, want %v", name, got, want)
		}
	}

	if _, err := ParseCompressionTag("brotli"); err == nil {
		t.Fatal("expected an error for an unknown tag name")
	}
}
