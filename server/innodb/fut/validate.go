package fut

import (
	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xmysql-flst/server/common"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/buffer_pool"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/latch"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/storage/store/mtr"
)

// checkNode returns ErrCorruption unless a node at addr fits in the data
// area of a page the size of base.
func checkNode(base *buffer_pool.BufferBlock, boffset uint16, addr FilAddr) error {
	off := int(addr.Boffset)
	if off < common.FIL_PAGE_DATA || off+common.FLST_NODE_SIZE > base.PhysicalSize()-common.FIL_PAGE_DATA_END {
		return errors.Wrapf(common.ErrCorruption, "flst: node %v of list at %v offset %d outside the page data area",
			addr, base.ID(), boffset)
	}
	return nil
}

// hop reads one link of the node at addr. Pages the outer mini-transaction
// already holds are read in place; any other page is latched by a
// mini-transaction of its own that ends before the next hop, so a long list
// never keeps more than one extra page fixed.
func hop(base *buffer_pool.BufferBlock, boffset uint16, addr FilAddr, outer *mtr.Mtr,
	link func(*buffer_pool.BufferBlock, uint16) FilAddr) (FilAddr, error) {
	if err := checkNode(base, boffset, addr); err != nil {
		return FilAddrNull, err
	}
	id := common.NewPageID(base.GetSpaceId(), addr.Page)
	if b, ok := outer.MemoLookup(id); ok {
		return link(b, addr.Boffset), nil
	}

	m2 := mtr.New(outer.Pool(), nil)
	m2.Start()
	b, err := m2.GetPage(id, latch.RW_SX_LATCH, buffer_pool.BUF_GET)
	if err != nil {
		m2.Rollback()
		return FilAddrNull, err
	}
	next := link(b, addr.Boffset)
	if err := m2.Commit(); err != nil {
		return FilAddrNull, err
	}
	return next, nil
}

func walk(base *buffer_pool.BufferBlock, boffset uint16, from FilAddr, n uint32, outer *mtr.Mtr,
	link func(*buffer_pool.BufferBlock, uint16) FilAddr, dir string) error {
	addr := from
	for i := uint32(0); i < n; i++ {
		if addr.IsNull() {
			return errors.Wrapf(common.ErrCorruption,
				"flst: %s walk of list at %v offset %d ends after %d of %d nodes",
				dir, base.ID(), boffset, i, n)
		}
		var err error
		if addr, err = hop(base, boffset, addr, outer, link); err != nil {
			return err
		}
	}
	if !addr.IsNull() {
		return errors.Wrapf(common.ErrCorruption,
			"flst: %s walk of list at %v offset %d continues past %d nodes to %v",
			dir, base.ID(), boffset, n, addr)
	}
	return nil
}

// Validate walks the list at boffset forward from its first node and
// backward from its last node, length hops each, and checks both walks end
// at the null address. It never modifies a page. The caller holds the base
// node page SX or X latched in m, which keeps the list from changing.
func Validate(base *buffer_pool.BufferBlock, boffset uint16, m *mtr.Mtr) error {
	if debug {
		assertWritable(m, base, boffset)
	}
	n := GetLen(base, boffset)
	if err := walk(base, boffset, GetFirst(base, boffset), n, m, GetNextAddr, "forward"); err != nil {
		return err
	}
	return walk(base, boffset, GetLast(base, boffset), n, m, GetPrevAddr, "backward")
}

// ForEach calls fn with the address of every node of the list in order,
// stopping at the first error fn returns. Node pages are latched S in m and
// stay latched until m ends.
func ForEach(base *buffer_pool.BufferBlock, boffset uint16, m *mtr.Mtr, fn func(FilAddr) error) error {
	addr := GetFirst(base, boffset)
	for n := GetLen(base, boffset); n > 0; n-- {
		if addr.IsNull() {
			return errors.Wrapf(common.ErrCorruption, "flst: list at %v offset %d shorter than its length", base.ID(), boffset)
		}
		if err := checkNode(base, boffset, addr); err != nil {
			return err
		}
		if err := fn(addr); err != nil {
			return err
		}
		b, err := m.GetPage(common.NewPageID(base.GetSpaceId(), addr.Page), latch.RW_S_LATCH, buffer_pool.BUF_GET_POSSIBLY_FREED)
		if err != nil {
			return err
		}
		addr = GetNextAddr(b, addr.Boffset)
	}
	return nil
}
