// Package compression provides the codecs used for persisted draft blobs.
package compression

import "fmt"

// Compressor encodes the JSON record of one draft before it is stored.
type Compressor interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

type NoneCompressor struct{}

func (NoneCompressor) Name() string                           { return "none" }
func (NoneCompressor) Compress(data []byte) ([]byte, error)   { return data, nil }
func (NoneCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }

// ByName returns the compressor for "zstd", "gzip" or "none".
func ByName(name string) (Compressor, error) {
	switch name {
	case "", "zstd":
		return ZstdCompressor{}, nil
	case "gzip":
		return GzipCompressor{}, nil
	case "none":
		return NoneCompressor{}, nil
	}
	return nil, fmt.Errorf("unknown compression %q", name)
}
