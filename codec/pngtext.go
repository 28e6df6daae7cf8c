package codec

import (
	"bytes"
	"encoding/binary"
)

var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// InsertTextChunk returns a copy of data with a tEXt chunk carrying
// keyword and text spliced in immediately before the IEND chunk. Input
// that is not a structurally valid PNG (bad signature, truncated chunk
// stream, no IEND) is returned unmodified.
func InsertTextChunk(data []byte, keyword, text string) []byte {
	if len(data) < len(pngSignature) || !bytes.Equal(data[:len(pngSignature)], pngSignature) {
		return data
	}

	pos := len(pngSignature)
	for {
		if pos+8 > len(data) {
			return data // ran out before finding IEND
		}
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		if bytes.Equal(data[pos+4:pos+8], []byte("IEND")) {
			break
		}
		next := pos + 8 + length + 4
		if next < pos || next > len(data) {
			return data
		}
		pos = next
	}

	chunk := textChunk(keyword, text)
	out := make([]byte, 0, len(data)+len(chunk))
	out = append(out, data[:pos]...)
	out = append(out, chunk...)
	out = append(out, data[pos:]...)
	return out
}

// textChunk encodes a tEXt chunk: big-endian length, type tag, keyword,
// NUL separator, text, then big-endian CRC-32 over type+payload.
func textChunk(keyword, text string) []byte {
	payload := make([]byte, 0, len(keyword)+1+len(text))
	payload = append(payload, keyword...)
	payload = append(payload, 0)
	payload = append(payload, text...)

	tag := []byte("tEXt")
	chunk := make([]byte, 0, 12+len(payload))
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], uint32(len(payload)))
	chunk = append(chunk, u32[:]...)
	chunk = append(chunk, tag...)
	chunk = append(chunk, payload...)
	binary.BigEndian.PutUint32(u32[:], Checksum(tag, payload))
	chunk = append(chunk, u32[:]...)
	return chunk
}
