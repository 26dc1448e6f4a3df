package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"", "zstd"},
		{"zstd", "zstd"},
		{"gzip", "gzip"},
		{"none", "none"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			c, err := ByName(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Name())
		})
	}

	_, err := ByName("lz4")
	assert.ErrorContains(t, err, `unknown compression "lz4"`)
}

func TestCompressorsShrinkRepetitiveDrafts(t *testing.T) {
	record := bytes.Repeat([]byte(`{"title":"Go Basics","lessons":[]},`), 200)

	for _, c := range []Compressor{ZstdCompressor{}, GzipCompressor{}} {
		t.Run(c.Name(), func(t *testing.T) {
			packed, err := c.Compress(record)
			require.NoError(t, err)
			assert.Less(t, len(packed), len(record)/4)

			unpacked, err := c.Decompress(packed)
			require.NoError(t, err)
			assert.Equal(t, record, unpacked)
		})
	}
}

func TestDecompressRejectsForeignData(t *testing.T) {
	plain := []byte("not compressed")
	_, err := ZstdCompressor{}.Decompress(plain)
	assert.Error(t, err)
	_, err = GzipCompressor{}.Decompress(plain)
	assert.Error(t, err)
}
