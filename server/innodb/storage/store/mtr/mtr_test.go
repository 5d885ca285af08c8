package mtr

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/xmysql-flst/server/common"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/buffer_pool"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/latch"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/storage/store/ibd"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/storage/store/logs"
	"github.com/zhukovaskychina/xmysql-flst/util"
)

const testPageSize = common.UNIV_PAGE_SIZE_MIN

// memSink keeps committed groups in memory.
type memSink struct {
	groups [][]logs.RedoRecord
	err    error
}

func (s *memSink) Append(recs []logs.RedoRecord) (uint64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.groups = append(s.groups, append([]logs.RedoRecord(nil), recs...))
	return uint64(len(s.groups)), nil
}

func newTestPool(t *testing.T) (*buffer_pool.BufferPool, *ibd.MemSpace) {
	t.Helper()
	pool, err := buffer_pool.NewBufferPool(buffer_pool.BufferPoolConfig{Capacity: 8, PageSize: testPageSize})
	require.NoError(t, err)
	space := ibd.NewMemSpace(0, testPageSize)
	require.NoError(t, pool.AddSpace(space))
	return pool, space
}

func TestMtrWriteAndCommit(t *testing.T) {
	pool, _ := newTestPool(t)
	sink := &memSink{}
	m := New(pool, sink)
	m.Start()

	b, err := m.GetPage(common.NewPageID(0, 3), latch.RW_X_LATCH, buffer_pool.BUF_GET)
	require.NoError(t, err)
	m.Write4(b, 100, 0xAABBCCDD)
	m.Write2(b, 104, 7)
	m.Write1(b, 106, 1)
	m.Write8(b, 108, 42)
	assert.Equal(t, uint32(0xAABBCCDD), util.MachRead4(b.Frame[100:]))
	assert.Len(t, m.Records(), 4)
	assert.Equal(t, uint8(logs.MLOG_4BYTES), m.Records()[0].Type)
	assert.Equal(t, uint8(logs.MLOG_8BYTES), m.Records()[3].Type)
	assert.Equal(t, 4*13+4+2+1+8, m.LogBytes())
	assert.True(t, m.MemoContainsFlagged(b, logs.MTR_MEMO_MODIFY))
	assert.Equal(t, 1, m.GetNModified())

	require.NoError(t, m.Commit())
	assert.Equal(t, uint64(1), m.LSN())
	assert.Len(t, sink.groups, 1)
	assert.Equal(t, uint64(1), pool.NewestModification(b))
	assert.Equal(t, 1, pool.GetStats().DirtyPages)
	assert.Equal(t, 0, pool.GetStats().Fixed)
	assert.ErrorIs(t, m.Commit(), ErrInvalidMtrState)
}

func TestMtrMaybeNop(t *testing.T) {
	pool, _ := newTestPool(t)
	m := New(pool, nil)
	m.Start()
	defer m.Rollback()

	b, err := m.GetPage(common.NewPageID(0, 1), latch.RW_SX_LATCH, buffer_pool.BUF_GET)
	require.NoError(t, err)

	assert.False(t, m.Write2MaybeNop(b, 50, 0))
	assert.False(t, m.Write4MaybeNop(b, 50, 0))
	assert.Empty(t, m.Records())
	assert.Zero(t, m.GetNModified())

	assert.True(t, m.Write2MaybeNop(b, 50, 9))
	assert.False(t, m.Write2MaybeNop(b, 50, 9))
	assert.True(t, m.Write1MaybeNop(b, 60, 1))
	assert.True(t, m.Write8MaybeNop(b, 64, 1))
	assert.Len(t, m.Records(), 3)
}

func TestMtrMemsetMemmove(t *testing.T) {
	pool, _ := newTestPool(t)
	m := New(pool, nil)
	m.Start()

	b, err := m.GetPage(common.NewPageID(0, 2), latch.RW_X_LATCH, buffer_pool.BUF_GET)
	require.NoError(t, err)
	m.Memcpy(b, 40, []byte{1, 2, 3, 4, 5, 6})
	m.Memset(b, 46, 4, 0xFF)
	m.Memmove(b, 48, 40, 6)

	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 0xFF, 0xFF, 1, 2, 3, 4, 5, 6}, b.Frame[40:54])
	recs := m.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, uint8(logs.MLOG_WRITE_STRING), recs[0].Type)
	assert.Equal(t, uint8(logs.MLOG_MEMSET), recs[1].Type)
	assert.Equal(t, uint8(logs.MLOG_MEMMOVE), recs[2].Type)

	// replaying the records onto a blank page gives the same bytes
	replay := make([]byte, testPageSize)
	for _, r := range recs {
		require.NoError(t, r.Apply(replay))
	}
	assert.Equal(t, b.Frame[40:54], replay[40:54])
	require.NoError(t, m.Commit())
}

func TestMtrRollbackRestores(t *testing.T) {
	pool, _ := newTestPool(t)
	m := New(pool, &memSink{})
	m.Start()
	b, err := m.GetPage(common.NewPageID(0, 4), latch.RW_X_LATCH, buffer_pool.BUF_GET)
	require.NoError(t, err)
	m.Write4(b, 38, 5)
	require.NoError(t, m.Commit())

	m.Start()
	b, err = m.GetPage(common.NewPageID(0, 4), latch.RW_X_LATCH, buffer_pool.BUF_GET)
	require.NoError(t, err)
	m.Write4(b, 38, 6)
	m.Memset(b, 38, 2, 0xFF)
	m.Memmove(b, 44, 38, 4)
	m.Rollback()

	assert.Equal(t, MTR_STATE_ROLLED_BACK, m.State())
	assert.Equal(t, uint32(5), util.MachRead4(b.Frame[38:]))
	assert.Equal(t, uint32(0), util.MachRead4(b.Frame[44:]))
	assert.Empty(t, m.Records())
	assert.Equal(t, 0, pool.GetStats().Fixed)
	assert.True(t, b.Latch().TryAcquire(latch.RW_X_LATCH), "latch released")
	b.Latch().Release(latch.RW_X_LATCH)
}

func TestMtrCommitFailureRollsBack(t *testing.T) {
	pool, _ := newTestPool(t)
	sink := &memSink{err: errors.New("disk full")}
	m := New(pool, sink)
	m.Start()
	b, err := m.GetPage(common.NewPageID(0, 5), latch.RW_X_LATCH, buffer_pool.BUF_GET)
	require.NoError(t, err)
	m.Write4(b, 38, 1)

	err = m.Commit()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, uint32(0), util.MachRead4(b.Frame[38:]))
	assert.Equal(t, 0, pool.GetStats().DirtyPages)
}

func TestMtrMemo(t *testing.T) {
	pool, _ := newTestPool(t)
	m := New(pool, nil)
	m.Start()
	defer m.Rollback()

	id := common.NewPageID(0, 6)
	b, err := m.GetPage(id, latch.RW_SX_LATCH, buffer_pool.BUF_GET)
	require.NoError(t, err)

	again, err := m.GetPage(id, latch.RW_S_LATCH, buffer_pool.BUF_GET)
	require.NoError(t, err)
	assert.Same(t, b, again)

	got, ok := m.MemoLookup(id)
	assert.True(t, ok)
	assert.Same(t, b, got)
	_, ok = m.MemoLookup(common.NewPageID(0, 7))
	assert.False(t, ok)

	assert.True(t, m.MemoContainsFlagged(b, logs.MTR_MEMO_PAGE_SX_FIX|logs.MTR_MEMO_PAGE_X_FIX))
	assert.False(t, m.MemoContainsFlagged(b, logs.MTR_MEMO_PAGE_X_FIX))
	assert.True(t, m.MemoContainsPageFlagged(b, 100, logs.MTR_MEMO_PAGE_SX_FIX))
	assert.False(t, m.MemoContainsPageFlagged(b, testPageSize, logs.MTR_MEMO_PAGE_SX_FIX))

	assert.Panics(t, func() { _, _ = m.GetPage(id, latch.RW_X_LATCH, buffer_pool.BUF_GET) })

	s, err := m.GetPage(common.NewPageID(0, 8), latch.RW_S_LATCH, buffer_pool.BUF_GET)
	require.NoError(t, err)
	up, err := m.GetPage(common.NewPageID(0, 8), latch.RW_SX_LATCH, buffer_pool.BUF_GET)
	require.NoError(t, err)
	assert.Same(t, s, up)
	assert.Equal(t, 2, pool.GetStats().Fixed)
}

func TestMtrWriteChecks(t *testing.T) {
	pool, _ := newTestPool(t)
	m := New(pool, nil)
	m.Start()
	defer m.Rollback()

	r, err := m.GetPage(common.NewPageID(0, 1), latch.RW_S_LATCH, buffer_pool.BUF_GET)
	require.NoError(t, err)
	assert.Panics(t, func() { m.Write1(r, 40, 1) }, "S latch is not enough to write")

	w, err := m.GetPage(common.NewPageID(0, 2), latch.RW_X_LATCH, buffer_pool.BUF_GET)
	require.NoError(t, err)
	assert.Panics(t, func() { m.Write4(w, testPageSize-2, 1) })
	assert.Panics(t, func() { m.Memmove(w, 40, testPageSize-2, 4) })
	assert.Panics(t, func() { m.Write2MaybeNop(w, -1, 0) })
}

func TestMtrLogModeNone(t *testing.T) {
	pool, _ := newTestPool(t)
	m := New(pool, &memSink{})
	m.Start()
	old := m.SetLogMode(logs.MTR_LOG_NONE)
	assert.Equal(t, uint8(logs.MTR_LOG_ALL), old)

	b, err := m.GetPage(common.NewPageID(0, 1), latch.RW_X_LATCH, buffer_pool.BUF_GET)
	require.NoError(t, err)
	m.Write4(b, 40, 3)
	assert.Empty(t, m.Records())
	assert.Equal(t, uint32(3), util.MachRead4(b.Frame[40:]))
	require.NoError(t, m.Commit())
	assert.Zero(t, m.LSN())
}

func TestRecover(t *testing.T) {
	pool, space := newTestPool(t)
	redo, err := logs.OpenRedoLog(logs.RedoLogConfig{Dir: t.TempDir(), Compression: logs.CompressionLZ4})
	require.NoError(t, err)
	defer redo.Close()

	m := New(pool, redo)
	for i := 0; i < 3; i++ {
		m.Start()
		b, err := m.GetPage(common.NewPageID(0, 1), latch.RW_X_LATCH, buffer_pool.BUF_GET)
		require.NoError(t, err)
		m.Write4(b, 40+4*i, uint32(i+1))
		require.NoError(t, m.Commit())
	}
	// the first three commits reach disk before the crash
	require.NoError(t, pool.FlushAll())
	m.Start()
	b, err := m.GetPage(common.NewPageID(0, 1), latch.RW_X_LATCH, buffer_pool.BUF_GET)
	require.NoError(t, err)
	m.Write4(b, 60, 9)
	require.NoError(t, m.Commit())

	pool.Discard()
	assert.Equal(t, uint32(0), util.MachRead4(space.RawPage(1)[60:]))

	st, err := Recover(pool, redo)
	require.NoError(t, err)
	assert.Equal(t, RecoveryStats{Applied: 1, Skipped: 3, Pages: 1}, st)

	m.Start()
	b, err = m.GetPage(common.NewPageID(0, 1), latch.RW_S_LATCH, buffer_pool.BUF_GET)
	require.NoError(t, err)
	for i, want := range []uint32{1, 2, 3} {
		assert.Equal(t, want, util.MachRead4(b.Frame[40+4*i:]))
	}
	assert.Equal(t, uint32(9), util.MachRead4(b.Frame[60:]))
	m.Rollback()

	require.NoError(t, pool.FlushAll())
	pool.Discard()
	st, err = Recover(pool, redo)
	require.NoError(t, err)
	assert.Zero(t, st.Applied)
}
