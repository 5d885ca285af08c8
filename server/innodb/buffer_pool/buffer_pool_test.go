package buffer_pool

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/xmysql-flst/server/common"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/storage/store/ibd"
	"github.com/zhukovaskychina/xmysql-flst/util"
)

const testPageSize = common.UNIV_PAGE_SIZE_MIN

func newTestPool(t *testing.T, capacity int) (*BufferPool, *ibd.MemSpace) {
	t.Helper()
	bp, err := NewBufferPool(BufferPoolConfig{Capacity: capacity, PageSize: testPageSize, Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	space := ibd.NewMemSpace(1, testPageSize)
	require.NoError(t, bp.AddSpace(space))
	return bp, space
}

func TestBufferPoolHitMiss(t *testing.T) {
	bp, _ := newTestPool(t, 4)
	id := common.NewPageID(1, 2)

	b1, err := bp.Get(id, BUF_GET)
	require.NoError(t, err)
	b2, err := bp.Get(id, BUF_GET)
	require.NoError(t, err)
	assert.Same(t, b1, b2)
	assert.Equal(t, id, b1.ID())
	assert.Equal(t, testPageSize, b1.PhysicalSize())

	assert.Equal(t, float64(1), testutil.ToFloat64(bp.metrics.hits))
	assert.Equal(t, float64(1), testutil.ToFloat64(bp.metrics.misses))
	assert.Equal(t, 0.5, bp.HitRate())

	bp.Release(b1)
	bp.Release(b2)
	assert.Panics(t, func() { bp.Release(b1) })
}

func TestBufferPoolEvictionWritesBackDirty(t *testing.T) {
	bp, space := newTestPool(t, 2)

	b, err := bp.Get(common.NewPageID(1, 0), BUF_GET)
	require.NoError(t, err)
	b.Frame[100] = 42
	bp.MarkDirty(b, 7)
	bp.Release(b)

	for _, no := range []uint32{1, 2} {
		o, err := bp.Get(common.NewPageID(1, no), BUF_GET)
		require.NoError(t, err)
		bp.Release(o)
	}

	raw := space.RawPage(0)
	require.NotNil(t, raw, "evicted dirty page must be written back")
	assert.Equal(t, byte(42), raw[100])
	assert.Equal(t, uint64(7), util.MachRead8(raw[common.FIL_PAGE_LSN:]))
	assert.Equal(t, float64(1), testutil.ToFloat64(bp.metrics.evictions))
}

func TestBufferPoolFullWhenAllFixed(t *testing.T) {
	bp, _ := newTestPool(t, 1)
	_, err := bp.Get(common.NewPageID(1, 0), BUF_GET)
	require.NoError(t, err)

	_, err = bp.Get(common.NewPageID(1, 1), BUF_GET)
	assert.True(t, IsBufferPoolFull(err))
}

func TestBufferPoolReadErrorsAreClassified(t *testing.T) {
	bp, space := newTestPool(t, 4)

	boom := assert.AnError
	space.FailReads(3, boom)
	_, err := bp.Get(common.NewPageID(1, 3), BUF_GET)
	require.Error(t, err)
	assert.True(t, IsIOError(err))
	assert.ErrorIs(t, err, boom)

	page := make([]byte, testPageSize)
	page[200] = 1
	require.NoError(t, space.WritePage(4, page))
	space.Corrupt(4, 200)
	_, err = bp.Get(common.NewPageID(1, 4), BUF_GET)
	assert.True(t, IsCorrupted(err))
	assert.False(t, IsIOError(err))

	_, err = bp.Get(common.NewPageID(9, 0), BUF_GET)
	assert.ErrorIs(t, err, ErrNoSuchSpace)
}

func TestBufferPoolFreedPages(t *testing.T) {
	bp, _ := newTestPool(t, 4)
	id := common.NewPageID(1, 5)
	bp.MarkFreed(id)
	assert.True(t, bp.IsFreed(id))

	_, err := bp.Get(id, BUF_GET)
	assert.ErrorIs(t, err, ErrPageFreed)

	b, err := bp.Get(id, BUF_GET_POSSIBLY_FREED)
	require.NoError(t, err)
	bp.Release(b)

	bp.ClearFreed(id)
	b, err = bp.Get(id, BUF_GET)
	require.NoError(t, err)
	bp.Release(b)
}

func TestBufferPoolFlushAndDiscard(t *testing.T) {
	bp, space := newTestPool(t, 4)
	id := common.NewPageID(1, 1)

	b, err := bp.Get(id, BUF_GET)
	require.NoError(t, err)
	b.Frame[common.FIL_PAGE_DATA] = 9
	bp.MarkDirty(b, 3)
	bp.Release(b)
	assert.Equal(t, 1, bp.GetStats().DirtyPages)

	require.NoError(t, bp.FlushAll())
	assert.Equal(t, 0, bp.GetStats().DirtyPages)
	assert.Equal(t, byte(9), space.RawPage(1)[common.FIL_PAGE_DATA])

	b, err = bp.Get(id, BUF_GET)
	require.NoError(t, err)
	b.Frame[common.FIL_PAGE_DATA] = 10
	bp.MarkDirty(b, 4)
	bp.Release(b)

	bp.Discard()
	assert.Equal(t, 0, bp.GetStats().Cached)

	b, err = bp.Get(id, BUF_GET)
	require.NoError(t, err)
	assert.Equal(t, byte(9), b.Frame[common.FIL_PAGE_DATA], "discarded change is lost")
	bp.Release(b)

	_, err = bp.Get(common.NewPageID(1, 6), BUF_GET_IF_IN_POOL)
	assert.True(t, IsNotFound(err))
}

func TestNewBufferPoolRejectsBadConfig(t *testing.T) {
	_, err := NewBufferPool(BufferPoolConfig{Capacity: 0, PageSize: testPageSize})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	bp, err := NewBufferPool(BufferPoolConfig{Capacity: 1, PageSize: testPageSize})
	require.NoError(t, err)
	assert.ErrorIs(t, bp.AddSpace(ibd.NewMemSpace(1, 8192)), ErrInvalidConfig)
}

type recordingFlusher struct {
	upTo []uint64
	err  error
}

func (f *recordingFlusher) FlushUpTo(lsn uint64) error {
	f.upTo = append(f.upTo, lsn)
	return f.err
}

func TestWriteBackFlushesRedoFirst(t *testing.T) {
	log := &recordingFlusher{}
	bp, err := NewBufferPool(BufferPoolConfig{Capacity: 1, PageSize: testPageSize, Log: log})
	require.NoError(t, err)
	space := ibd.NewMemSpace(1, testPageSize)
	require.NoError(t, bp.AddSpace(space))

	b, err := bp.Get(common.NewPageID(1, 0), BUF_GET)
	require.NoError(t, err)
	bp.MarkDirty(b, 5)
	bp.Release(b)

	// evicting page 0 must flush the redo of lsn 5 first
	o, err := bp.Get(common.NewPageID(1, 1), BUF_GET)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5}, log.upTo)
	assert.NotNil(t, space.RawPage(0))

	bp.MarkDirty(o, 6)
	bp.Release(o)
	log.err = assert.AnError
	err = bp.FlushAll()
	assert.ErrorIs(t, err, ErrFlushFailed)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Nil(t, space.RawPage(1), "page must not reach disk ahead of its redo")
	assert.Equal(t, 1, bp.GetStats().DirtyPages)
	assert.Equal(t, []uint64{5, 6}, log.upTo)
}
