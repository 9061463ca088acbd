package compression

import (
	"bytes"
	"compress/gzip"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/organica-ai/nishub/pkg/config"
	"github.com/organica-ai/nishub/pkg/types"
)

// Compressor defines the interface for compression algorithms applied to
// stored node records and event payloads.
type Compressor interface {
	// Compress compresses data
	Compress(data []byte) ([]byte, error)

	// Decompress decompresses data
	Decompress(data []byte) ([]byte, error)

	// Name returns the compressor name
	Name() string

	// MinSize returns minimum size threshold for compression efficiency
	MinSize() int
}

// CompressorFactory creates compressors based on configuration
type CompressorFactory struct {
	compressors map[config.CompressionType]Compressor
	mutex       sync.RWMutex
}

// NewCompressorFactory creates a factory with all default compressors
// registered for the given compression level.
func NewCompressorFactory(level int) (*CompressorFactory, error) {
	f := &CompressorFactory{
		compressors: make(map[config.CompressionType]Compressor),
	}

	zstdCompressor, err := NewZstdCompressor(level)
	if err != nil {
		return nil, err
	}
	f.Register(config.CompressionZstd, zstdCompressor)
	f.Register(config.CompressionLZ4, NewLZ4Compressor(level))
	f.Register(config.CompressionSnappy, NewSnappyCompressor())
	f.Register(config.CompressionGzip, NewGzipCompressor(level))
	f.Register(config.CompressionBrotli, NewBrotliCompressor(level))

	return f, nil
}

// Register registers a compressor for a compression type
func (f *CompressorFactory) Register(compType config.CompressionType, compressor Compressor) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.compressors[compType] = compressor
}

// Get returns a compressor for the specified compression type
func (f *CompressorFactory) Get(compType config.CompressionType) (Compressor, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	if compType == config.CompressionNone {
		return &NoCompressor{}, nil
	}

	compressor, exists := f.compressors[compType]
	if !exists {
		return nil, types.NewHubError(types.ErrCodeCompressionError, "unsupported compression type").
			WithDetail("type", compType)
	}
	return compressor, nil
}

// NoCompressor implements a no-op compressor
type NoCompressor struct{}

func (n *NoCompressor) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (n *NoCompressor) Decompress(data []byte) ([]byte, error) {
	return data, nil
}

func (n *NoCompressor) Name() string { return "none" }

func (n *NoCompressor) MinSize() int { return 0 }

// ZstdCompressor implements Zstandard compression
type ZstdCompressor struct {
	encoderPool sync.Pool
	decoderPool sync.Pool
}

// NewZstdCompressor creates a new Zstd compressor with pooled
// encoders and decoders.
func NewZstdCompressor(level int) (*ZstdCompressor, error) {
	encoderLevel := zstd.EncoderLevel(level)

	// Fail fast on bad options before the pools hide the error
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encoderLevel))
	if err != nil {
		return nil, types.ErrCompression("zstd", err)
	}
	encoder.Close()

	comp := &ZstdCompressor{}
	comp.encoderPool.New = func() interface{} {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(encoderLevel))
		return enc
	}
	comp.decoderPool.New = func() interface{} {
		dec, _ := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(64<<20))
		return dec
	}

	return comp, nil
}

func (z *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	encoder := z.encoderPool.Get().(*zstd.Encoder)
	defer z.encoderPool.Put(encoder)

	return encoder.EncodeAll(data, nil), nil
}

func (z *ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	decoder := z.decoderPool.Get().(*zstd.Decoder)
	defer z.decoderPool.Put(decoder)

	result, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, types.ErrDecompression("zstd", err)
	}
	return result, nil
}

func (z *ZstdCompressor) Name() string { return "zstd" }

func (z *ZstdCompressor) MinSize() int { return 64 }

// LZ4Compressor implements LZ4 compression in frame mode
type LZ4Compressor struct {
	level lz4.CompressionLevel
}

func NewLZ4Compressor(level int) *LZ4Compressor {
	return &LZ4Compressor{level: lz4.CompressionLevel(level)}
}

func (l *LZ4Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := lz4.NewWriter(&buf)

	if l.level > 0 {
		writer.Apply(lz4.CompressionLevelOption(l.level))
	}

	if _, err := writer.Write(data); err != nil {
		return nil, types.ErrCompression("lz4", err)
	}
	if err := writer.Close(); err != nil {
		return nil, types.ErrCompression("lz4", err)
	}

	return buf.Bytes(), nil
}

func (l *LZ4Compressor) Decompress(data []byte) ([]byte, error) {
	reader := lz4.NewReader(bytes.NewReader(data))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, types.ErrDecompression("lz4", err)
	}
	return buf.Bytes(), nil
}

func (l *LZ4Compressor) Name() string { return "lz4" }

func (l *LZ4Compressor) MinSize() int { return 32 }

// SnappyCompressor implements Snappy compression
type SnappyCompressor struct{}

func NewSnappyCompressor() *SnappyCompressor {
	return &SnappyCompressor{}
}

func (s *SnappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (s *SnappyCompressor) Decompress(data []byte) ([]byte, error) {
	result, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, types.ErrDecompression("snappy", err)
	}
	return result, nil
}

func (s *SnappyCompressor) Name() string { return "snappy" }

func (s *SnappyCompressor) MinSize() int { return 32 }

// GzipCompressor implements Gzip compression
type GzipCompressor struct {
	level int
}

func NewGzipCompressor(level int) *GzipCompressor {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	return &GzipCompressor{level: level}
}

func (g *GzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer, err := gzip.NewWriterLevel(&buf, g.level)
	if err != nil {
		return nil, types.ErrCompression("gzip", err)
	}

	if _, err := writer.Write(data); err != nil {
		return nil, types.ErrCompression("gzip", err)
	}
	if err := writer.Close(); err != nil {
		return nil, types.ErrCompression("gzip", err)
	}

	return buf.Bytes(), nil
}

func (g *GzipCompressor) Decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, types.ErrDecompression("gzip", err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, types.ErrDecompression("gzip", err)
	}
	return buf.Bytes(), nil
}

func (g *GzipCompressor) Name() string { return "gzip" }

func (g *GzipCompressor) MinSize() int { return 64 }

// BrotliCompressor implements Brotli compression
type BrotliCompressor struct {
	level int
}

func NewBrotliCompressor(level int) *BrotliCompressor {
	if level < brotli.BestSpeed || level > brotli.BestCompression {
		level = brotli.DefaultCompression
	}
	return &BrotliCompressor{level: level}
}

func (b *BrotliCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := brotli.NewWriterLevel(&buf, b.level)

	if _, err := writer.Write(data); err != nil {
		return nil, types.ErrCompression("brotli", err)
	}
	if err := writer.Close(); err != nil {
		return nil, types.ErrCompression("brotli", err)
	}

	return buf.Bytes(), nil
}

func (b *BrotliCompressor) Decompress(data []byte) ([]byte, error) {
	reader := brotli.NewReader(bytes.NewReader(data))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, types.ErrDecompression("brotli", err)
	}
	return buf.Bytes(), nil
}

func (b *BrotliCompressor) Name() string { return "brotli" }

func (b *BrotliCompressor) MinSize() int { return 64 }
