package gps

import "tracklog-go/x/conv"

// Percent is an integer percentage in [0, 100].
type Percent uint8

func (p Percent) String() string {
	var buf [3]byte
	return string(conv.Utoa(buf[:], uint64(p))) + "%"
}
