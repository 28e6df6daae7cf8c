package codec

import (
	"encoding/binary"
	"io"
	"time"
)

const (
	localHeaderSignature     = 0x04034b50
	centralHeaderSignature   = 0x02014b50
	endOfCentralDirSignature = 0x06054b50

	zipVersion   = 20     // version made by / needed to extract
	flagUTF8     = 0x0800 // general purpose bit 11, UTF-8 names
	methodStored = 0
)

// ZipWriter assembles a ZIP archive of stored (uncompressed) entries.
// Entry data is written to w immediately on Add; Close appends the central
// directory and end-of-central-directory record. The underlying writer is
// not closed.
type ZipWriter struct {
	w       io.Writer
	offset  uint32
	entries []zipEntry
}

type zipEntry struct {
	name         string
	crc          uint32
	size         uint32
	modTime      uint16
	modDate      uint16
	headerOffset uint32
}

func NewZipWriter(w io.Writer) *ZipWriter {
	return &ZipWriter{w: w}
}

// Add writes a single stored entry named name with the given contents.
// modified is truncated to the 2-second DOS resolution; years before 1980
// are floored to 1980.
func (z *ZipWriter) Add(name string, data []byte, modified time.Time) error {
	entry := zipEntry{
		name:         name,
		crc:          Checksum(data),
		size:         uint32(len(data)),
		headerOffset: z.offset,
	}
	entry.modDate, entry.modTime = dosDateTime(modified)

	var hdr [30]byte
	binary.LittleEndian.PutUint32(hdr[0:], localHeaderSignature)
	binary.LittleEndian.PutUint16(hdr[4:], zipVersion)
	binary.LittleEndian.PutUint16(hdr[6:], flagUTF8)
	binary.LittleEndian.PutUint16(hdr[8:], methodStored)
	binary.LittleEndian.PutUint16(hdr[10:], entry.modTime)
	binary.LittleEndian.PutUint16(hdr[12:], entry.modDate)
	binary.LittleEndian.PutUint32(hdr[14:], entry.crc)
	binary.LittleEndian.PutUint32(hdr[18:], entry.size) // compressed == uncompressed for stored
	binary.LittleEndian.PutUint32(hdr[22:], entry.size)
	binary.LittleEndian.PutUint16(hdr[26:], uint16(len(name)))
	binary.LittleEndian.PutUint16(hdr[28:], 0) // extra field length

	if err := z.writeAll(hdr[:], []byte(name), data); err != nil {
		return err
	}
	z.entries = append(z.entries, entry)
	return nil
}

// Close writes the central directory for every added entry followed by the
// end-of-central-directory record.
func (z *ZipWriter) Close() error {
	dirOffset := z.offset
	for _, e := range z.entries {
		var hdr [46]byte
		binary.LittleEndian.PutUint32(hdr[0:], centralHeaderSignature)
		binary.LittleEndian.PutUint16(hdr[4:], zipVersion)
		binary.LittleEndian.PutUint16(hdr[6:], zipVersion)
		binary.LittleEndian.PutUint16(hdr[8:], flagUTF8)
		binary.LittleEndian.PutUint16(hdr[10:], methodStored)
		binary.LittleEndian.PutUint16(hdr[12:], e.modTime)
		binary.LittleEndian.PutUint16(hdr[14:], e.modDate)
		binary.LittleEndian.PutUint32(hdr[16:], e.crc)
		binary.LittleEndian.PutUint32(hdr[20:], e.size)
		binary.LittleEndian.PutUint32(hdr[24:], e.size)
		binary.LittleEndian.PutUint16(hdr[28:], uint16(len(e.name)))
		// extra, comment, disk-start, internal and external attributes stay zero
		binary.LittleEndian.PutUint32(hdr[42:], e.headerOffset)
		if err := z.writeAll(hdr[:], []byte(e.name)); err != nil {
			return err
		}
	}

	var end [22]byte
	binary.LittleEndian.PutUint32(end[0:], endOfCentralDirSignature)
	binary.LittleEndian.PutUint16(end[8:], uint16(len(z.entries)))
	binary.LittleEndian.PutUint16(end[10:], uint16(len(z.entries)))
	binary.LittleEndian.PutUint32(end[12:], z.offset-dirOffset)
	binary.LittleEndian.PutUint32(end[16:], dirOffset)
	return z.writeAll(end[:])
}

func (z *ZipWriter) writeAll(chunks ...[]byte) error {
	for _, c := range chunks {
		n, err := z.w.Write(c)
		z.offset += uint32(n)
		if err != nil {
			return err
		}
	}
	return nil
}

// dosDateTime converts t to MS-DOS date and time fields. Seconds truncate
// to 2-second resolution; the year floors at the 1980 DOS epoch.
func dosDateTime(t time.Time) (date, tim uint16) {
	year := t.Year()
	if year < 1980 {
		year = 1980
	}
	date = uint16((year-1980)<<9 | int(t.Month())<<5 | t.Day())
	tim = uint16(t.Hour()<<11 | t.Minute()<<5 | t.Second()/2)
	return date, tim
}
