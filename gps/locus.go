package gps

import (
	"encoding/binary"
	"math"

	"tracklog-go/errcode"
	"tracklog-go/x/conv"
)

// LOCUS is the module's internal flash logger. We only handle basic mode,
// where one record is 16 bytes: timestamp u32, fix u8, latitude f32,
// longitude f32, height u16, XOR checksum u8, all little-endian.
// See GTop_LOCUS_Library_User_Manual-v13.pdf.

// LoggerStatus is the decoded PMTKLOG reply.
type LoggerStatus struct {
	Interval    uint32 // logging interval, seconds
	On          bool
	RecordCount uint32
	PercentFull Percent
}

// LoggedPoint is one basic-mode flash record.
type LoggedPoint struct {
	Timestamp uint32 // unix seconds
	Fix       uint8
	Lat       float32
	Lon       float32
	Height    uint16 // metres
}

var (
	ErrFieldCount    = errcode.Code("locus_field_count")
	ErrFieldLength   = errcode.Code("locus_field_length")
	ErrHexDecode     = errcode.Code("locus_hex")
	ErrPointChecksum = errcode.Code("locus_checksum")
)

const (
	pointSize      = 16
	chunksPerPoint = 4 // each data field carries 4 bytes as 8 hex digits
)

// ParsePointFields decodes the data fields of one PMTKLOX data packet and
// calls onPoint for every valid record. Erased-flash records (all 0xFF)
// are skipped silently.
func ParsePointFields(fields []string, onPoint func(LoggedPoint)) error {
	if len(fields)%chunksPerPoint != 0 {
		return ErrFieldCount
	}

	var data [pointSize]byte
	for off := 0; off < len(fields); off += chunksPerPoint {
		for n := 0; n < chunksPerPoint; n++ {
			chunk := fields[off+n]
			if len(chunk) != 8 {
				return ErrFieldLength
			}
			if !conv.DecodeHex(data[n*4:n*4+4], []byte(chunk)) {
				return ErrHexDecode
			}
		}
		point, empty, err := parsePoint(&data)
		if err != nil {
			return err
		}
		if !empty {
			onPoint(point)
		}
	}
	return nil
}

func parsePoint(b *[pointSize]byte) (LoggedPoint, bool, error) {
	empty := true
	for _, v := range b {
		if v != 0xFF {
			empty = false
			break
		}
	}
	if empty {
		return LoggedPoint{}, true, nil
	}

	var ck byte
	for _, v := range b {
		ck ^= v
	}
	if ck != 0 {
		return LoggedPoint{}, false, ErrPointChecksum
	}

	return LoggedPoint{
		Timestamp: binary.LittleEndian.Uint32(b[0:4]),
		Fix:       b[4],
		Lat:       math.Float32frombits(binary.LittleEndian.Uint32(b[5:9])),
		Lon:       math.Float32frombits(binary.LittleEndian.Uint32(b[9:13])),
		Height:    binary.LittleEndian.Uint16(b[13:15]),
	}, false, nil
}
