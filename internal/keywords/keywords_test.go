package keywords

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		list [][]byte
	}{
		{"empty list", [][]byte{}},
		{"single keyword", [][]byte{[]byte("hello")}},
		{"multiple keywords", [][]byte{[]byte("foo"), []byte("bar"), []byte("")}},
		{"binary keyword", [][]byte{{0x00, 0xff, 0x10}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob := Encode(tt.list)
			got, err := Decode(blob)
			require.NoError(t, err)
			if len(tt.list) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.list, got)
		})
	}
}

func TestDecodeRejectsTruncatedTail(t *testing.T) {
	blob := Encode([][]byte{[]byte("hello")})
	truncated := blob[:len(blob)-2]
	_, err := Decode(truncated)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeEmptyBlob(t *testing.T) {
	got, err := Decode(nil)
	assert.NoError(t, err)
	assert.Nil(t, got)
}
