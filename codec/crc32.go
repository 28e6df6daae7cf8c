package codec

// reflected CRC-32 table for polynomial 0xEDB88320 (ISO 3309, PNG annex D)
var crcTable = func() [256]uint32 {
	var table [256]uint32
	for n := range table {
		c := uint32(n)
		for k := 0; k < 8; k++ {
			if c&1 != 0 {
				c = 0xEDB88320 ^ (c >> 1)
			} else {
				c >>= 1
			}
		}
		table[n] = c
	}
	return table
}()

// Checksum returns the CRC-32 over the concatenation of parts.
// ZIP entry checksums and PNG chunk checksums both use this variant.
func Checksum(parts ...[]byte) uint32 {
	c := uint32(0xFFFFFFFF)
	for _, p := range parts {
		for _, b := range p {
			c = crcTable[byte(c)^b] ^ (c >> 8)
		}
	}
	return c ^ 0xFFFFFFFF
}
