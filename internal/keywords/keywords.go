// Package keywords encodes and decodes the length-prefixed keyword blob
// stored on a Monitor (spec §4.1): a 2-byte LE count, then for each keyword
// a 2-byte LE length followed by raw bytes.
package keywords

import (
	"encoding/binary"
	"errors"
)

// ErrTruncated is returned when a declared length runs past the end of the blob.
var ErrTruncated = errors.New("keywords: truncated blob")

// Encode serializes a list of opaque keyword byte strings into the compact
// length-prefixed wire format.
func Encode(list [][]byte) []byte {
	size := 2
	for _, kw := range list {
		size += 2 + len(kw)
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint16(buf, uint16(len(list)))
	off := 2
	for _, kw := range list {
		binary.LittleEndian.PutUint16(buf[off:], uint16(len(kw)))
		off += 2
		copy(buf[off:], kw)
		off += len(kw)
	}
	return buf
}

// Decode parses the length-prefixed wire format back into a list of keyword
// byte strings. Decoding fails when declared lengths overflow the blob.
func Decode(blob []byte) ([][]byte, error) {
	if len(blob) < 2 {
		if len(blob) == 0 {
			return nil, nil
		}
		return nil, ErrTruncated
	}
	count := binary.LittleEndian.Uint16(blob)
	off := 2
	list := make([][]byte, 0, count)
	for i := uint16(0); i < count; i++ {
		if off+2 > len(blob) {
			return nil, ErrTruncated
		}
		length := int(binary.LittleEndian.Uint16(blob[off:]))
		off += 2
		if off+length > len(blob) {
			return nil, ErrTruncated
		}
		kw := make([]byte, length)
		copy(kw, blob[off:off+length])
		list = append(list, kw)
		off += length
	}
	return list, nil
}
