package compression

import (
	"bytes"
	"testing"

	"github.com/organica-ai/nishub/pkg/config"
)

func testPayload() []byte {
	// Repetitive enough that every algorithm actually shrinks it
	return bytes.Repeat([]byte(`{"node_id":"node-1","status":"online","capabilities":["coordination"]}`), 20)
}

func TestCompressorRoundTrip(t *testing.T) {
	factory, err := NewCompressorFactory(3)
	if err != nil {
		t.Fatalf("Failed to create factory: %v", err)
	}

	payload := testPayload()

	for _, compType := range []config.CompressionType{
		config.CompressionNone,
		config.CompressionZstd,
		config.CompressionLZ4,
		config.CompressionSnappy,
		config.CompressionGzip,
		config.CompressionBrotli,
	} {
		t.Run(string(compType), func(t *testing.T) {
			compressor, err := factory.Get(compType)
			if err != nil {
				t.Fatalf("Failed to get compressor: %v", err)
			}

			compressed, err := compressor.Compress(payload)
			if err != nil {
				t.Fatalf("Compress failed: %v", err)
			}

			if compType != config.CompressionNone && len(compressed) >= len(payload) {
				t.Errorf("Expected %s to shrink payload: %d -> %d", compType, len(payload), len(compressed))
			}

			decompressed, err := compressor.Decompress(compressed)
			if err != nil {
				t.Fatalf("Decompress failed: %v", err)
			}

			if !bytes.Equal(decompressed, payload) {
				t.Error("Round trip corrupted payload")
			}
		})
	}
}

func TestFactoryUnknownType(t *testing.T) {
	factory, err := NewCompressorFactory(3)
	if err != nil {
		t.Fatalf("Failed to create factory: %v", err)
	}

	if _, err := factory.Get("xz"); err == nil {
		t.Error("Expected error for unregistered compression type")
	}
}

func TestNoCompressorPassthrough(t *testing.T) {
	factory, _ := NewCompressorFactory(3)
	compressor, err := factory.Get(config.CompressionNone)
	if err != nil {
		t.Fatalf("Failed to get compressor: %v", err)
	}

	payload := []byte("tiny")
	compressed, err := compressor.Compress(payload)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}

	if !bytes.Equal(compressed, payload) {
		t.Error("Expected no-op compressor to pass data through")
	}
	if compressor.MinSize() != 0 {
		t.Errorf("Expected zero min size, got %d", compressor.MinSize())
	}
}

func TestDecompressGarbage(t *testing.T) {
	factory, _ := NewCompressorFactory(3)

	for _, compType := range []config.CompressionType{
		config.CompressionZstd,
		config.CompressionGzip,
	} {
		compressor, err := factory.Get(compType)
		if err != nil {
			t.Fatalf("Failed to get compressor: %v", err)
		}

		if _, err := compressor.Decompress([]byte("not a valid frame")); err == nil {
			t.Errorf("Expected %s decompression error for garbage input", compType)
		}
	}
}
