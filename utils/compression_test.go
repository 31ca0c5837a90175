package utils

import (
	"strings"
	"testing"
)

func TestCompressTextRoundTrip(t *testing.T) {
	text := strings.Repeat("The quarterly report shows steady growth across all regions. ", 20)

	compressed, err := CompressText(text, 0)
	if err != nil {
		t.Fatalf("compress error: %v", err)
	}
	if compressed == nil {
		t.Fatalf("text above threshold should compress")
	}
	if len(compressed) >= len(text) {
		t.Fatalf("compression did not shrink repetitive text: %d >= %d", len(compressed), len(text))
	}

	got, err := DecompressText(compressed)
	if err != nil {
		t.Fatalf("decompress error: %v", err)
	}
	if got != text {
		t.Fatalf("round trip mismatch")
	}
}

func TestCompressTextSkipsSmallInput(t *testing.T) {
	compressed, err := CompressText("short paragraph", 0)
	if err != nil {
		t.Fatalf("compress error: %v", err)
	}
	if compressed != nil {
		t.Fatalf("small input should stay uncompressed")
	}
}

func TestDecompressEmpty(t *testing.T) {
	got, err := DecompressText(nil)
	if err != nil || got != "" {
		t.Fatalf("empty input should decompress to empty string, got %q err %v", got, err)
	}
}

func TestHashBytesStable(t *testing.T) {
	a := HashBytes([]byte("same content"))
	b := HashBytes([]byte("same content"))
	c := HashBytes([]byte("other content"))
	if a != b {
		t.Fatalf("hash not deterministic")
	}
	if a == c {
		t.Fatalf("different content hashed identically")
	}
	if len(a) != 32 {
		t.Fatalf("unexpected digest length: %d", len(a))
	}
}

func TestHashReaderMatchesHashBytes(t *testing.T) {
	content := []byte("streamed upload content")
	fromReader, err := HashReader(strings.NewReader(string(content)))
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if fromReader != HashBytes(content) {
		t.Fatalf("reader and byte digests disagree: %s vs %s", fromReader, HashBytes(content))
	}
}

func TestExtractTokenFromHeader(t *testing.T) {
	if got := ExtractTokenFromHeader("Bearer abc123"); got != "abc123" {
		t.Fatalf("unexpected token: %q", got)
	}
	for _, bad := range []string{"", "abc123", "Basic abc123", "Bearer"} {
		if got := ExtractTokenFromHeader(bad); got != "" {
			t.Fatalf("expected empty token for %q, got %q", bad, got)
		}
	}
}
