package util

import "encoding/binary"

// On-page integers are stored most significant byte first, whatever the
// host byte order.

func MachRead1(b []byte) uint8 {
	return b[0]
}

func MachRead2(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}

func MachRead4(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

func MachRead8(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func MachWrite1(b []byte, v uint8) {
	b[0] = v
}

func MachWrite2(b []byte, v uint16) {
	binary.BigEndian.PutUint16(b, v)
}

func MachWrite4(b []byte, v uint32) {
	binary.BigEndian.PutUint32(b, v)
}

func MachWrite8(b []byte, v uint64) {
	binary.BigEndian.PutUint64(b, v)
}

// MachWriteN writes the low n bytes of v, n in {1, 2, 4, 8}.
func MachWriteN(b []byte, v uint64, n int) {
	switch n {
	case 1:
		MachWrite1(b, uint8(v))
	case 2:
		MachWrite2(b, uint16(v))
	case 4:
		MachWrite4(b, uint32(v))
	case 8:
		MachWrite8(b, v)
	default:
		panic("util: unsupported integer width")
	}
}

// MachReadN reads an n byte integer, n in {1, 2, 4, 8}.
func MachReadN(b []byte, n int) uint64 {
	switch n {
	case 1:
		return uint64(MachRead1(b))
	case 2:
		return uint64(MachRead2(b))
	case 4:
		return uint64(MachRead4(b))
	case 8:
		return MachRead8(b)
	default:
		panic("util: unsupported integer width")
	}
}
