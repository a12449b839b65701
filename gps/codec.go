package gps

import (
	"tracklog-go/errcode"
	"tracklog-go/x/conv"
	"tracklog-go/x/mathx"
)

// PMTK sentences share the NMEA frame: "$" name ("," field)* "*" two hex
// checksum digits CRLF. The checksum is the XOR of every byte between the
// "$" and the "*". See the PMTK_A11 datasheet.

// Terminology: given "$PMTK183*38\r\n", the line is "PMTK183".

var (
	ErrExpectedPrefix   = errcode.Code("expected_prefix")
	ErrExpectedName     = errcode.Code("expected_name")
	ErrExpectedField    = errcode.Code("expected_field")
	ErrExpectedChecksum = errcode.Code("expected_checksum")
	ErrChecksumParse    = errcode.Code("checksum_parse")
	ErrExpectedSuffix   = errcode.Code("expected_suffix")
	ErrTrailingData     = errcode.Code("trailing_data")
	ErrWrongChecksum    = errcode.Code("wrong_checksum")
	ErrParseField       = errcode.Code("parse_field")
)

func checksum(line []byte) byte {
	var c byte
	for _, b := range line {
		c ^= b
	}
	return c
}

const hexDigits = "0123456789ABCDEF"

// Serialize appends the framed sentence for name and fields to dst.
func Serialize(dst []byte, name string, fields ...string) []byte {
	start := len(dst)
	dst = append(dst, '$')
	dst = append(dst, name...)
	for _, f := range fields {
		dst = append(dst, ',')
		dst = append(dst, f...)
	}
	ck := checksum(dst[start+1:]) // between $ and *
	dst = append(dst, '*', hexDigits[ck>>4], hexDigits[ck&0xF], '\r', '\n')
	return dst
}

// Parse validates one complete framed sentence and splits it into its name
// and fields. The input must contain exactly one sentence, CRLF included.
func Parse(cmd []byte) (name string, fields []string, err error) {
	if len(cmd) == 0 || cmd[0] != '$' {
		return "", nil, ErrExpectedPrefix
	}

	i := 1
	for {
		if i >= len(cmd) {
			return "", nil, ErrExpectedName
		}
		if cmd[i] == ',' || cmd[i] == '*' {
			if i == 1 {
				return "", nil, ErrExpectedName
			}
			break
		}
		i++
	}
	name = string(cmd[1:i])

	// Each ',' starts a field running to the next ',' or the '*'.
	fieldStart := -1
	for i < len(cmd) && cmd[i] != '*' {
		if cmd[i] == ',' {
			if fieldStart >= 0 {
				fields = append(fields, string(cmd[fieldStart:i]))
			}
			fieldStart = i + 1
		}
		i++
	}
	if i >= len(cmd) {
		return "", nil, ErrExpectedField
	}
	if fieldStart >= 0 {
		fields = append(fields, string(cmd[fieldStart:i]))
	}
	i++ // consume '*'

	if i+1 >= len(cmd) {
		return "", nil, ErrExpectedChecksum
	}
	hi, ok1 := conv.HexVal(cmd[i])
	lo, ok2 := conv.HexVal(cmd[i+1])
	if !ok1 || !ok2 {
		return "", nil, ErrChecksumParse
	}
	got := hi<<4 | lo
	i += 2

	if i+1 >= len(cmd) || cmd[i] != '\r' || cmd[i+1] != '\n' {
		return "", nil, ErrExpectedSuffix
	}
	i += 2
	if i != len(cmd) {
		return "", nil, ErrTrailingData
	}

	if got != checksum(cmd[1:len(cmd)-5]) {
		return "", nil, ErrWrongChecksum
	}
	return name, fields, nil
}

// IntegerField parses a base-10 unsigned field.
func IntegerField(val string) (uint32, error) {
	v, ok := conv.ParseU32([]byte(val))
	if !ok {
		return 0, ErrParseField
	}
	return v, nil
}

// PercentField parses an integer percentage field, rejecting values > 100.
func PercentField(val string) (Percent, error) {
	v, err := IntegerField(val)
	if err != nil {
		return 0, err
	}
	if !mathx.Between(v, 0, 100) {
		return 0, ErrParseField
	}
	return Percent(v), nil
}

// BoolField maps a field onto a bool given its truthy and falsy spellings.
func BoolField(val, truthy, falsy string) (bool, error) {
	switch val {
	case truthy:
		return true, nil
	case falsy:
		return false, nil
	}
	return false, ErrParseField
}
