package utils

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// Paragraph text below this size is stored uncompressed; brotli overhead on
// tiny inputs outweighs the savings.
const DefaultMinCompressSize = 500

// CompressText brotli-compresses paragraph text for storage. Returns nil
// when the input is below minSize, meaning the caller should persist the
// plain text instead.
func CompressText(text string, minSize int) ([]byte, error) {
	if minSize <= 0 {
		minSize = DefaultMinCompressSize
	}
	if len(text) < minSize {
		return nil, nil
	}

	var buf bytes.Buffer
	writer := brotli.NewWriterLevel(&buf, brotli.BestCompression)
	if _, err := writer.Write([]byte(text)); err != nil {
		return nil, fmt.Errorf("failed to write to brotli writer: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close brotli writer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecompressText reverses CompressText
func DecompressText(compressed []byte) (string, error) {
	if len(compressed) == 0 {
		return "", nil
	}

	reader := brotli.NewReader(bytes.NewReader(compressed))
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read from brotli reader: %w", err)
	}
	return string(data), nil
}
