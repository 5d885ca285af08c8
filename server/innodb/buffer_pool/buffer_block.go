package buffer_pool

import (
	"container/list"

	"github.com/zhukovaskychina/xmysql-flst/server/common"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/latch"
)

/*
*
BufferBlock 是数据页的控制体: page id, 真正存数据的 frame, 页面锁, 以及
fix 计数. A block with a non-zero fix count is never evicted. The frame may
only be read under at least an S latch and only be written by a
mini-transaction holding SX or X.
*/
type BufferBlock struct {
	id    common.PageID
	Frame []byte
	latch *latch.Latch

	// protected by BufferPool.mu
	fix       int
	dirty     bool
	newestLSN uint64
	lruElem   *list.Element
}

func newBufferBlock(id common.PageID, frame []byte) *BufferBlock {
	return &BufferBlock{
		id:    id,
		Frame: frame,
		latch: latch.NewLatch(),
	}
}

func (bb *BufferBlock) ID() common.PageID {
	return bb.id
}

func (bb *BufferBlock) GetFrame() []byte {
	return bb.Frame
}

func (bb *BufferBlock) GetSpaceId() uint32 {
	return bb.id.Space
}

func (bb *BufferBlock) GetPageNo() uint32 {
	return bb.id.PageNo
}

// PhysicalSize is the page size of the block.
func (bb *BufferBlock) PhysicalSize() int {
	return len(bb.Frame)
}

// Latch returns the page latch. Mini-transactions acquire it; inside the
// buffer pool only FlushAll does, in SX mode.
func (bb *BufferBlock) Latch() *latch.Latch {
	return bb.latch
}
