package mtr

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xmysql-flst/logger"
	"github.com/zhukovaskychina/xmysql-flst/server/common"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/buffer_pool"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/latch"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/storage/store/logs"
	"github.com/zhukovaskychina/xmysql-flst/util"
)

var (
	ErrInvalidMtrState = errors.New("invalid mini-transaction state")
)

// mini-transaction 状态
const (
	MTR_STATE_INIT uint8 = iota
	MTR_STATE_ACTIVE
	MTR_STATE_COMMITTED
	MTR_STATE_ROLLED_BACK
)

// LogSink receives the redo records of a committing mini-transaction as one
// atomic group and returns the LSN it was assigned.
type LogSink interface {
	Append(recs []logs.RedoRecord) (uint64, error)
}

// memoSlot 记录一个被 mtr 固定的页面以及持有的锁模式
type memoSlot struct {
	block    *buffer_pool.BufferBlock
	mode     latch.Mode
	modified bool
}

type beforeImage struct {
	block  *buffer_pool.BufferBlock
	offset int
	data   []byte
}

// Mtr is a mini-transaction. Pages are fixed and latched through it and
// changed only through its logged writes. On Commit the changes become one
// redo frame; on Rollback the pages get their before-images back.
//
// An Mtr belongs to one goroutine.
type Mtr struct {
	pool *buffer_pool.BufferPool
	redo LogSink

	state   uint8
	logMode uint8
	memo    []memoSlot
	undo    []beforeImage
	records []logs.RedoRecord
	logLen  int
	lsn     uint64
}

// New creates a mini-transaction over pool. redo may be nil, then commits
// produce no log and get LSN 0.
func New(pool *buffer_pool.BufferPool, redo LogSink) *Mtr {
	return &Mtr{pool: pool, redo: redo, logMode: logs.MTR_LOG_ALL}
}

// Start begins the mini-transaction. A committed or rolled back Mtr may be
// started again.
func (m *Mtr) Start() {
	if m.state == MTR_STATE_ACTIVE {
		panic("mtr: start of active mini-transaction")
	}
	m.state = MTR_STATE_ACTIVE
	m.logMode = logs.MTR_LOG_ALL
	m.memo = m.memo[:0]
	m.undo = m.undo[:0]
	m.records = nil
	m.logLen = 0
	m.lsn = 0
}

// Pool returns the buffer pool pages are fetched from.
func (m *Mtr) Pool() *buffer_pool.BufferPool {
	return m.pool
}

func (m *Mtr) State() uint8 {
	return m.state
}

// SetLogMode changes the logging mode and returns the previous one. With
// MTR_LOG_NONE writes change pages without producing redo.
func (m *Mtr) SetLogMode(mode uint8) uint8 {
	old := m.logMode
	m.logMode = mode
	return old
}

// LSN is the commit LSN, valid after Commit.
func (m *Mtr) LSN() uint64 {
	return m.lsn
}

func (m *Mtr) mustBeActive() {
	if m.state != MTR_STATE_ACTIVE {
		panic("mtr: mini-transaction is not active")
	}
}

// GetPage fixes page id in the buffer pool and latches it in mode. The page
// stays fixed and latched until Commit or Rollback. A page already in the
// memo in a mode covering the request is returned as is.
func (m *Mtr) GetPage(id common.PageID, mode latch.Mode, fetch buffer_pool.FetchMode) (*buffer_pool.BufferBlock, error) {
	m.mustBeActive()
	for i := range m.memo {
		s := &m.memo[i]
		if s.block.ID() != id {
			continue
		}
		if s.mode.Covers(mode) {
			return s.block, nil
		}
		// 锁不可重入: 只有 S -> SX 可以共存
		if mode == latch.RW_X_LATCH || s.mode == latch.RW_SX_LATCH || s.mode == latch.RW_X_LATCH {
			panic(fmt.Sprintf("mtr: cannot upgrade %v latch to %v on %v", s.mode, mode, id))
		}
	}

	block, err := m.pool.Get(id, fetch)
	if err != nil {
		return nil, err
	}
	if mode != latch.RW_NO_LATCH {
		block.Latch().Acquire(mode)
	}
	m.memo = append(m.memo, memoSlot{block: block, mode: mode})
	return block, nil
}

// MemoPush hands a block the caller fixed and latched in mode over to the
// mini-transaction, which releases it on commit.
func (m *Mtr) MemoPush(block *buffer_pool.BufferBlock, mode latch.Mode) {
	m.mustBeActive()
	m.memo = append(m.memo, memoSlot{block: block, mode: mode})
}

// MemoLookup returns the block of page id if the mini-transaction holds it.
func (m *Mtr) MemoLookup(id common.PageID) (*buffer_pool.BufferBlock, bool) {
	for i := range m.memo {
		if m.memo[i].block.ID() == id {
			return m.memo[i].block, true
		}
	}
	return nil, false
}

func slotFlags(s *memoSlot) uint8 {
	var f uint8
	switch s.mode {
	case latch.RW_S_LATCH:
		f = logs.MTR_MEMO_PAGE_S_FIX
	case latch.RW_SX_LATCH:
		f = logs.MTR_MEMO_PAGE_SX_FIX
	case latch.RW_X_LATCH:
		f = logs.MTR_MEMO_PAGE_X_FIX
	default:
		f = logs.MTR_MEMO_BUF_FIX
	}
	if s.modified {
		f |= logs.MTR_MEMO_MODIFY
	}
	return f
}

// MemoContainsFlagged reports whether block is held with any of the
// MTR_MEMO_* flags.
func (m *Mtr) MemoContainsFlagged(block *buffer_pool.BufferBlock, flags uint8) bool {
	for i := range m.memo {
		if m.memo[i].block == block && slotFlags(&m.memo[i])&flags != 0 {
			return true
		}
	}
	return false
}

// MemoContainsPageFlagged is MemoContainsFlagged for a position inside the
// frame of block.
func (m *Mtr) MemoContainsPageFlagged(block *buffer_pool.BufferBlock, offset int, flags uint8) bool {
	if offset < 0 || offset >= block.PhysicalSize() {
		return false
	}
	return m.MemoContainsFlagged(block, flags)
}

// Records returns the redo records buffered so far.
func (m *Mtr) Records() []logs.RedoRecord {
	return m.records
}

// LogBytes is the encoded size of the buffered redo records.
func (m *Mtr) LogBytes() int {
	return m.logLen
}

// GetNModified returns the number of distinct modified pages.
func (m *Mtr) GetNModified() int {
	n := 0
	for i := range m.memo {
		if m.memo[i].modified && m.firstSlot(m.memo[i].block) == i {
			n++
		}
	}
	return n
}

func (m *Mtr) firstSlot(block *buffer_pool.BufferBlock) int {
	for i := range m.memo {
		if m.memo[i].block == block {
			return i
		}
	}
	return -1
}

// prepareWrite checks the write [offset, offset+n) against the frame and the
// latches, saves the before-image and flags the block modified.
func (m *Mtr) prepareWrite(block *buffer_pool.BufferBlock, offset, n int) {
	m.mustBeActive()
	if offset < 0 || n < 0 || offset+n > block.PhysicalSize() || n > 0xFFFF {
		panic(fmt.Sprintf("mtr: write [%d, %d) out of page %v", offset, offset+n, block.ID()))
	}
	writable := -1
	for i := range m.memo {
		s := &m.memo[i]
		if s.block == block && (s.mode == latch.RW_X_LATCH || s.mode == latch.RW_SX_LATCH) {
			writable = i
			break
		}
	}
	if writable < 0 {
		panic(fmt.Sprintf("mtr: write to %v without SX or X latch", block.ID()))
	}
	m.memo[writable].modified = true

	before := make([]byte, n)
	copy(before, block.Frame[offset:offset+n])
	m.undo = append(m.undo, beforeImage{block: block, offset: offset, data: before})
}

func (m *Mtr) log(rec logs.RedoRecord) {
	if m.logMode != logs.MTR_LOG_ALL {
		return
	}
	m.records = append(m.records, rec)
	m.logLen += rec.EncodedSize()
}

func (m *Mtr) write(block *buffer_pool.BufferBlock, offset int, data []byte, maybeNop bool) bool {
	if maybeNop {
		if offset < 0 || offset+len(data) > block.PhysicalSize() {
			panic(fmt.Sprintf("mtr: write [%d, %d) out of page %v", offset, offset+len(data), block.ID()))
		}
		if bytes.Equal(block.Frame[offset:offset+len(data)], data) {
			return false
		}
	}
	m.prepareWrite(block, offset, len(data))
	copy(block.Frame[offset:], data)
	m.log(logs.NewWriteRecord(block.ID(), uint16(offset), data))
	return true
}

func (m *Mtr) Write1(block *buffer_pool.BufferBlock, offset int, val uint8) {
	m.write(block, offset, []byte{val}, false)
}

func (m *Mtr) Write2(block *buffer_pool.BufferBlock, offset int, val uint16) {
	var b [2]byte
	util.MachWrite2(b[:], val)
	m.write(block, offset, b[:], false)
}

func (m *Mtr) Write4(block *buffer_pool.BufferBlock, offset int, val uint32) {
	var b [4]byte
	util.MachWrite4(b[:], val)
	m.write(block, offset, b[:], false)
}

func (m *Mtr) Write8(block *buffer_pool.BufferBlock, offset int, val uint64) {
	var b [8]byte
	util.MachWrite8(b[:], val)
	m.write(block, offset, b[:], false)
}

// Write1MaybeNop 值未变化时不写也不记日志, 返回是否写入
func (m *Mtr) Write1MaybeNop(block *buffer_pool.BufferBlock, offset int, val uint8) bool {
	return m.write(block, offset, []byte{val}, true)
}

func (m *Mtr) Write2MaybeNop(block *buffer_pool.BufferBlock, offset int, val uint16) bool {
	var b [2]byte
	util.MachWrite2(b[:], val)
	return m.write(block, offset, b[:], true)
}

func (m *Mtr) Write4MaybeNop(block *buffer_pool.BufferBlock, offset int, val uint32) bool {
	var b [4]byte
	util.MachWrite4(b[:], val)
	return m.write(block, offset, b[:], true)
}

func (m *Mtr) Write8MaybeNop(block *buffer_pool.BufferBlock, offset int, val uint64) bool {
	var b [8]byte
	util.MachWrite8(b[:], val)
	return m.write(block, offset, b[:], true)
}

// Memcpy writes data at offset as a single logged write.
func (m *Mtr) Memcpy(block *buffer_pool.BufferBlock, offset int, data []byte) {
	m.write(block, offset, data, false)
}

// Memset fills n bytes at offset with fill.
func (m *Mtr) Memset(block *buffer_pool.BufferBlock, offset, n int, fill byte) {
	m.prepareWrite(block, offset, n)
	b := block.Frame[offset : offset+n]
	for i := range b {
		b[i] = fill
	}
	m.log(logs.NewMemsetRecord(block.ID(), uint16(offset), uint16(n), fill))
}

// Memmove copies n bytes from src to dst within the page; the ranges may
// overlap.
func (m *Mtr) Memmove(block *buffer_pool.BufferBlock, dst, src, n int) {
	if src < 0 || src+n > block.PhysicalSize() {
		panic(fmt.Sprintf("mtr: move source [%d, %d) out of page %v", src, src+n, block.ID()))
	}
	m.prepareWrite(block, dst, n)
	copy(block.Frame[dst:dst+n], block.Frame[src:src+n])
	m.log(logs.NewMemmoveRecord(block.ID(), uint16(dst), uint16(src), uint16(n)))
}

// Commit writes the buffered redo as one group, marks the modified pages
// dirty with the commit LSN and releases the memo. If the redo append fails
// the changes are rolled back and the error returned.
func (m *Mtr) Commit() error {
	if m.state != MTR_STATE_ACTIVE {
		return ErrInvalidMtrState
	}
	if len(m.records) > 0 && m.redo != nil {
		lsn, err := m.redo.Append(m.records)
		if err != nil {
			logger.Errorf("mtr: redo append failed, rolling back %d records: %v", len(m.records), err)
			m.Rollback()
			return errors.Wrap(err, "mtr commit")
		}
		m.lsn = lsn
	}

	for i := range m.memo {
		if m.memo[i].modified {
			m.pool.MarkDirty(m.memo[i].block, m.lsn)
		}
	}
	logger.Debugf("mtr: committed lsn %d, %d pages, %d records, %d log bytes",
		m.lsn, len(m.memo), len(m.records), m.logLen)
	m.releaseAll()
	m.state = MTR_STATE_COMMITTED
	return nil
}

// Rollback restores every changed byte and releases the memo. Nothing is
// logged.
func (m *Mtr) Rollback() {
	if m.state != MTR_STATE_ACTIVE {
		return
	}
	for i := len(m.undo) - 1; i >= 0; i-- {
		u := m.undo[i]
		copy(u.block.Frame[u.offset:], u.data)
	}
	logger.Debugf("mtr: rolled back %d writes on %d pages", len(m.undo), len(m.memo))
	m.releaseAll()
	m.records = nil
	m.logLen = 0
	m.state = MTR_STATE_ROLLED_BACK
}

// releaseAll 按获取的相反顺序释放锁并解除固定
func (m *Mtr) releaseAll() {
	for i := len(m.memo) - 1; i >= 0; i-- {
		s := m.memo[i]
		if s.mode != latch.RW_NO_LATCH {
			s.block.Latch().Release(s.mode)
		}
		m.pool.Release(s.block)
	}
	m.memo = m.memo[:0]
	m.undo = m.undo[:0]
}
