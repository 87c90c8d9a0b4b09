package frame

import "hash/crc32"

// castagnoliTable is the precomputed table for the reflected Castagnoli
// polynomial 0x82F63B78. hash/crc32 builds this once (and uses the CPU's
// hardware CRC32 instruction when available, falling back to the tabled
// software path otherwise) so there is no benefit to hand-rolling the table
// ourselves here — see DESIGN.md for why this stays on the standard
// library rather than a third-party CRC package.
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// crc32c computes the CRC-32C (Castagnoli) checksum of data, with the
// standard init-0xFFFFFFFF / final-XOR-0xFFFFFFFF framing that
// hash/crc32.Checksum already applies internally.
func crc32c(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

// putCRCLittleEndian appends the little-endian CRC-32C of data to dst.
func putCRCLittleEndian(dst []byte, data []byte) {
	c := crc32c(data)
	dst[0] = byte(c)
	dst[1] = byte(c >> 8)
	dst[2] = byte(c >> 16)
	dst[3] = byte(c >> 24)
}

func getCRCLittleEndian(buf []byte) uint32 {
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
}
