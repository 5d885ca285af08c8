package fut

import (
	"fmt"

	"github.com/zhukovaskychina/xmysql-flst/server/common"
	"github.com/zhukovaskychina/xmysql-flst/util"
)

// FilAddr is a file address: a page number and a byte offset inside it.
type FilAddr struct {
	Page    uint32
	Boffset uint16
}

// FilAddrNull is the null address. Its offset is stored as 0.
var FilAddrNull = FilAddr{Page: common.FIL_NULL, Boffset: 0}

func (a FilAddr) IsNull() bool {
	return a.Page == common.FIL_NULL
}

func (a FilAddr) String() string {
	if a.IsNull() {
		return "FIL_NULL"
	}
	return fmt.Sprintf("(%d, %d)", a.Page, a.Boffset)
}

// Encode returns the 6-byte on-page form [page:4][offset:2].
func (a FilAddr) Encode() [common.FIL_ADDR_SIZE]byte {
	var b [common.FIL_ADDR_SIZE]byte
	util.MachWrite4(b[common.FIL_ADDR_PAGE:], a.Page)
	util.MachWrite2(b[common.FIL_ADDR_BYTE:], a.Boffset)
	return b
}

// DecodeAddr reads a file address from the first 6 bytes of b.
func DecodeAddr(b []byte) FilAddr {
	return FilAddr{
		Page:    util.MachRead4(b[common.FIL_ADDR_PAGE:]),
		Boffset: util.MachRead2(b[common.FIL_ADDR_BYTE:]),
	}
}

// ReadAddr reads the file address stored at offset off of frame.
func ReadAddr(frame []byte, off uint16) FilAddr {
	return DecodeAddr(frame[off : int(off)+common.FIL_ADDR_SIZE])
}
