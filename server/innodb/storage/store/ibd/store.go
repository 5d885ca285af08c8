package ibd

import (
	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xmysql-flst/server/common"
	"github.com/zhukovaskychina/xmysql-flst/util"
)

var (
	ErrFileNotOpen      = errors.New("file not open")
	ErrInvalidPageSize  = errors.New("invalid page size")
	ErrPageNotFound     = errors.New("page beyond end of tablespace")
	ErrPageCorrupted    = errors.New("page checksum mismatch")
	ErrFileAlreadyExist = errors.New("file already open")
)

// PageStore is the physical storage of one tablespace.
type PageStore interface {
	SpaceID() uint32
	PageSize() int
	ReadPage(pageNo uint32) ([]byte, error)
	WritePage(pageNo uint32, page []byte) error
	Sync() error
	Close() error
}

// ValidPageSize reports whether size is a power of two within the supported range.
func ValidPageSize(size int) bool {
	return size >= common.UNIV_PAGE_SIZE_MIN && size <= common.UNIV_PAGE_SIZE_MAX && size&(size-1) == 0
}

func pageChecksum(page []byte) uint32 {
	return util.Checksum32(page[common.FIL_PAGE_OFFSET : len(page)-common.FIL_PAGE_DATA_END])
}

// StampPage returns a copy of page with the FIL header identity fields,
// the checksum and the trailer filled in, ready to be written.
func StampPage(spaceID, pageNo uint32, page []byte) []byte {
	out := make([]byte, len(page))
	copy(out, page)
	util.MachWrite4(out[common.FIL_PAGE_OFFSET:], pageNo)
	util.MachWrite4(out[common.FIL_PAGE_SPACE_ID:], spaceID)

	sum := pageChecksum(out)
	util.MachWrite4(out[common.FIL_PAGE_SPACE_OR_CHKSUM:], sum)

	trailer := out[len(out)-common.FIL_PAGE_END_LSN_OLD_CHKSUM:]
	util.MachWrite4(trailer, sum)
	copy(trailer[4:], out[common.FIL_PAGE_LSN+4:common.FIL_PAGE_LSN+8])
	return out
}

func isZero(page []byte) bool {
	for _, b := range page {
		if b != 0 {
			return false
		}
	}
	return true
}

// VerifyPage checks a page read from storage. A page that was never written
// (all zero) is accepted.
func VerifyPage(pageNo uint32, page []byte) error {
	if isZero(page) {
		return nil
	}
	stored := util.MachRead4(page[common.FIL_PAGE_SPACE_OR_CHKSUM:])
	trailer := page[len(page)-common.FIL_PAGE_END_LSN_OLD_CHKSUM:]
	if stored != pageChecksum(page) || util.MachRead4(trailer) != stored {
		return errors.Wrapf(ErrPageCorrupted, "page %d", pageNo)
	}
	if util.MachRead4(trailer[4:]) != util.MachRead4(page[common.FIL_PAGE_LSN+4:]) {
		return errors.Wrapf(ErrPageCorrupted, "page %d: torn write, LSN mismatch", pageNo)
	}
	return nil
}
