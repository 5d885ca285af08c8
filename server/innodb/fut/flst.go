// Package fut implements file-based lists: doubly linked lists whose base
// node and nodes live inside database pages and are linked by file
// addresses. Every change goes through a mini-transaction.
//
// The caller holds an SX or X latch on the base node page and on the pages
// of the nodes it passes in. Neighbor pages are fetched by the operations in
// SX mode, tolerating pages that were marked freed, and stay latched until
// the mini-transaction ends. When an operation returns an error the caller
// must roll the mini-transaction back.
package fut

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xmysql-flst/server/common"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/buffer_pool"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/latch"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/storage/store/logs"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/storage/store/mtr"
	"github.com/zhukovaskychina/xmysql-flst/util"
)

const writeLatch = logs.MTR_MEMO_PAGE_X_FIX | logs.MTR_MEMO_PAGE_SX_FIX

// IsPhysicalAddress reports whether offset lies in the data area of block,
// between the FIL header and the FIL trailer.
func IsPhysicalAddress(block *buffer_pool.BufferBlock, offset uint16) bool {
	return int(offset) >= common.FIL_PAGE_DATA &&
		int(offset) < block.PhysicalSize()-common.FIL_PAGE_DATA_END
}

// PageOffset converts a position inside block to a node or base node offset.
// It panics if pos is outside the data area.
func PageOffset(block *buffer_pool.BufferBlock, pos int) uint16 {
	if pos < 0 || pos > 0xFFFF || !IsPhysicalAddress(block, uint16(pos)) {
		panic(fmt.Sprintf("flst: offset %d outside the data area of %v", pos, block.ID()))
	}
	return uint16(pos)
}

func assertWritable(m *mtr.Mtr, block *buffer_pool.BufferBlock, offset uint16) {
	if !m.MemoContainsPageFlagged(block, int(offset), writeLatch) {
		panic(fmt.Sprintf("flst: %v is not SX or X latched by the mini-transaction", block.ID()))
	}
}

func assertPhysical(block *buffer_pool.BufferBlock, offset uint16) {
	if !IsPhysicalAddress(block, offset) {
		panic(fmt.Sprintf("flst: offset %d outside the data area of %v", offset, block.ID()))
	}
}

// writeAddr stores (page, boffset) at offset faddr of block with as few
// logged bytes as possible.
func writeAddr(block *buffer_pool.BufferBlock, faddr uint16, page uint32, boffset uint16, m *mtr.Mtr) {
	if debug {
		assertWritable(m, block, faddr)
	}
	if page != common.FIL_NULL && boffset < common.FIL_PAGE_DATA {
		panic(fmt.Sprintf("flst: address (%d, %d) points into the page header", page, boffset))
	}
	if faddr < common.FIL_PAGE_DATA {
		panic(fmt.Sprintf("flst: address field at %d inside the page header", faddr))
	}

	frame := block.Frame
	samePage := util.MachRead4(frame[faddr+common.FIL_ADDR_PAGE:]) == page
	sameOffset := util.MachRead2(frame[faddr+common.FIL_ADDR_BYTE:]) == boffset

	if samePage {
		if !sameOffset {
			m.Write2(block, int(faddr)+common.FIL_ADDR_BYTE, boffset)
		}
		return
	}
	if sameOffset {
		m.Write4(block, int(faddr)+common.FIL_ADDR_PAGE, page)
		return
	}
	addr := FilAddr{Page: page, Boffset: boffset}.Encode()
	m.Memcpy(block, int(faddr), addr[:])
}

// zeroBoth nulls the two consecutive addresses at addr.
func zeroBoth(block *buffer_pool.BufferBlock, addr uint16, m *mtr.Mtr) {
	if util.MachRead4(block.Frame[addr+common.FIL_ADDR_PAGE:]) != common.FIL_NULL {
		m.Memset(block, int(addr)+common.FIL_ADDR_PAGE, 4, 0xff)
	}
	m.Write2MaybeNop(block, int(addr)+common.FIL_ADDR_BYTE, 0)
	// 第二个地址用一条 memmove 日志复制第一个
	m.Memmove(block, int(addr)+common.FIL_ADDR_SIZE, int(addr), common.FIL_ADDR_SIZE)
}

// GetLen returns the length of the list whose base node is at boffset.
func GetLen(block *buffer_pool.BufferBlock, boffset uint16) uint32 {
	return util.MachRead4(block.Frame[boffset+common.FLST_LEN:])
}

func GetFirst(block *buffer_pool.BufferBlock, boffset uint16) FilAddr {
	return ReadAddr(block.Frame, boffset+common.FLST_FIRST)
}

func GetLast(block *buffer_pool.BufferBlock, boffset uint16) FilAddr {
	return ReadAddr(block.Frame, boffset+common.FLST_LAST)
}

// GetNextAddr returns the next address of the node at offset.
func GetNextAddr(block *buffer_pool.BufferBlock, offset uint16) FilAddr {
	return ReadAddr(block.Frame, offset+common.FLST_NEXT)
}

// GetPrevAddr returns the previous address of the node at offset.
func GetPrevAddr(block *buffer_pool.BufferBlock, offset uint16) FilAddr {
	return ReadAddr(block.Frame, offset+common.FLST_PREV)
}

// Init initializes an empty list base node at boffset.
func Init(block *buffer_pool.BufferBlock, boffset uint16, m *mtr.Mtr) {
	if debug {
		assertWritable(m, block, boffset)
	}
	m.Write4MaybeNop(block, int(boffset)+common.FLST_LEN, 0)
	zeroBoth(block, boffset+common.FLST_FIRST, m)
}

func addToEmpty(base *buffer_pool.BufferBlock, boffset uint16, add *buffer_pool.BufferBlock, aoffset uint16, m *mtr.Mtr) {
	if debug {
		if base == add && boffset == aoffset {
			panic("flst: node and base node at the same offset")
		}
		assertPhysical(base, boffset)
		assertPhysical(add, aoffset)
		assertWritable(m, base, boffset)
		assertWritable(m, add, aoffset)
		if n := GetLen(base, boffset); n != 0 {
			panic(fmt.Sprintf("flst: add to empty list of length %d", n))
		}
	}

	// the length is 0, so only its low byte changes
	m.Write1(base, int(boffset)+common.FLST_LEN+3, 1)
	writeAddr(base, boffset+common.FLST_FIRST, add.GetPageNo(), aoffset, m)
	m.Memmove(base, int(boffset)+common.FLST_LAST, int(boffset)+common.FLST_FIRST, common.FIL_ADDR_SIZE)
	zeroBoth(add, aoffset+common.FLST_PREV, m)
}

func assertInsert(base *buffer_pool.BufferBlock, boffset uint16, cur *buffer_pool.BufferBlock, coffset uint16,
	add *buffer_pool.BufferBlock, aoffset uint16, m *mtr.Mtr) {
	if (base == cur && boffset == coffset) || (base == add && boffset == aoffset) || (cur == add && coffset == aoffset) {
		panic("flst: base node, insert position and added node must be distinct")
	}
	assertPhysical(base, boffset)
	assertPhysical(cur, coffset)
	assertPhysical(add, aoffset)
	assertWritable(m, base, boffset)
	assertWritable(m, cur, coffset)
	assertWritable(m, add, aoffset)
}

// getNeighbor fetches a page of the space of block for updating a node
// link. The page may have been freed by its owner; its link bytes are still
// updated.
func getNeighbor(block *buffer_pool.BufferBlock, pageNo uint32, m *mtr.Mtr) (*buffer_pool.BufferBlock, error) {
	id := common.NewPageID(block.GetSpaceId(), pageNo)
	return m.GetPage(id, latch.RW_SX_LATCH, buffer_pool.BUF_GET_POSSIBLY_FREED)
}

// InsertAfter links the node add right after the node cur.
//
// If the successor page of cur cannot be fetched the remaining links are
// still written and the fetch error is returned.
func InsertAfter(base *buffer_pool.BufferBlock, boffset uint16, cur *buffer_pool.BufferBlock, coffset uint16,
	add *buffer_pool.BufferBlock, aoffset uint16, m *mtr.Mtr) error {
	if debug {
		assertInsert(base, boffset, cur, coffset, add, aoffset, m)
	}

	next := GetNextAddr(cur, coffset)
	writeAddr(add, aoffset+common.FLST_PREV, cur.GetPageNo(), coffset, m)
	writeAddr(add, aoffset+common.FLST_NEXT, next.Page, next.Boffset, m)

	var err error
	if next.IsNull() {
		writeAddr(base, boffset+common.FLST_LAST, add.GetPageNo(), aoffset, m)
	} else {
		var nb *buffer_pool.BufferBlock
		if nb, err = getNeighbor(add, next.Page, m); err == nil {
			writeAddr(nb, next.Boffset+common.FLST_PREV, add.GetPageNo(), aoffset, m)
		}
	}

	writeAddr(cur, coffset+common.FLST_NEXT, add.GetPageNo(), aoffset, m)
	m.Write4(base, int(boffset)+common.FLST_LEN, GetLen(base, boffset)+1)
	return err
}

// InsertBefore links the node add right before the node cur.
func InsertBefore(base *buffer_pool.BufferBlock, boffset uint16, cur *buffer_pool.BufferBlock, coffset uint16,
	add *buffer_pool.BufferBlock, aoffset uint16, m *mtr.Mtr) error {
	if debug {
		assertInsert(base, boffset, cur, coffset, add, aoffset, m)
	}

	prev := GetPrevAddr(cur, coffset)
	writeAddr(add, aoffset+common.FLST_PREV, prev.Page, prev.Boffset, m)
	writeAddr(add, aoffset+common.FLST_NEXT, cur.GetPageNo(), coffset, m)

	var err error
	if prev.IsNull() {
		writeAddr(base, boffset+common.FLST_FIRST, add.GetPageNo(), aoffset, m)
	} else {
		var pb *buffer_pool.BufferBlock
		if pb, err = getNeighbor(add, prev.Page, m); err == nil {
			writeAddr(pb, prev.Boffset+common.FLST_NEXT, add.GetPageNo(), aoffset, m)
		}
	}

	writeAddr(cur, coffset+common.FLST_PREV, add.GetPageNo(), aoffset, m)
	m.Write4(base, int(boffset)+common.FLST_LEN, GetLen(base, boffset)+1)
	return err
}

func assertAdd(base *buffer_pool.BufferBlock, boffset uint16, add *buffer_pool.BufferBlock, aoffset uint16, m *mtr.Mtr) {
	if base == add && boffset == aoffset {
		panic("flst: node and base node at the same offset")
	}
	assertPhysical(base, boffset)
	assertPhysical(add, aoffset)
	assertWritable(m, base, boffset)
	assertWritable(m, add, aoffset)
}

// AddLast appends the node add to the list. Nothing is written if the page
// of the current last node cannot be fetched.
func AddLast(base *buffer_pool.BufferBlock, boffset uint16, add *buffer_pool.BufferBlock, aoffset uint16, m *mtr.Mtr) error {
	if debug {
		assertAdd(base, boffset, add, aoffset, m)
	}
	if GetLen(base, boffset) == 0 {
		addToEmpty(base, boffset, add, aoffset, m)
		return nil
	}

	last := GetLast(base, boffset)
	cur := add
	if last.Page != add.GetPageNo() {
		var err error
		if cur, err = getNeighbor(add, last.Page, m); err != nil {
			return err
		}
	}
	return InsertAfter(base, boffset, cur, last.Boffset, add, aoffset, m)
}

// AddFirst prepends the node add to the list.
func AddFirst(base *buffer_pool.BufferBlock, boffset uint16, add *buffer_pool.BufferBlock, aoffset uint16, m *mtr.Mtr) error {
	if debug {
		assertAdd(base, boffset, add, aoffset, m)
	}
	if GetLen(base, boffset) == 0 {
		addToEmpty(base, boffset, add, aoffset, m)
		return nil
	}

	first := GetFirst(base, boffset)
	cur := add
	if first.Page != add.GetPageNo() {
		var err error
		if cur, err = getNeighbor(add, first.Page, m); err != nil {
			return err
		}
	}
	return InsertBefore(base, boffset, cur, first.Boffset, add, aoffset, m)
}

// Remove unlinks the node cur. Its own prev and next fields are left as they
// are.
//
// Removing from an empty list returns common.ErrCorruption and writes
// nothing. A failed neighbor fetch does not stop the other link updates or
// the length decrement; the first such error is returned.
func Remove(base *buffer_pool.BufferBlock, boffset uint16, cur *buffer_pool.BufferBlock, coffset uint16, m *mtr.Mtr) error {
	if debug {
		assertPhysical(base, boffset)
		assertPhysical(cur, coffset)
		assertWritable(m, base, boffset)
		assertWritable(m, cur, coffset)
	}

	n := GetLen(base, boffset)
	if n == 0 {
		return errors.Wrapf(common.ErrCorruption, "flst: remove %v from empty list at %v offset %d",
			FilAddr{Page: cur.GetPageNo(), Boffset: coffset}, base.ID(), boffset)
	}

	prev := GetPrevAddr(cur, coffset)
	next := GetNextAddr(cur, coffset)
	var err error

	if prev.IsNull() {
		writeAddr(base, boffset+common.FLST_FIRST, next.Page, next.Boffset, m)
	} else {
		pb := cur
		if prev.Page != cur.GetPageNo() {
			pb, err = getNeighbor(cur, prev.Page, m)
		}
		if err == nil {
			writeAddr(pb, prev.Boffset+common.FLST_NEXT, next.Page, next.Boffset, m)
		}
	}

	if next.IsNull() {
		writeAddr(base, boffset+common.FLST_LAST, prev.Page, prev.Boffset, m)
	} else {
		nb := cur
		var err2 error
		if next.Page != cur.GetPageNo() {
			nb, err2 = getNeighbor(cur, next.Page, m)
		}
		if err2 == nil {
			writeAddr(nb, next.Boffset+common.FLST_PREV, prev.Page, prev.Boffset, m)
		} else if err == nil {
			err = err2
		}
	}

	m.Write4(base, int(boffset)+common.FLST_LEN, n-1)
	return err
}
