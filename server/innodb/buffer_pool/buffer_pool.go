package buffer_pool

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zhukovaskychina/xmysql-flst/logger"
	"github.com/zhukovaskychina/xmysql-flst/server/common"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/latch"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/storage/store/ibd"
	"github.com/zhukovaskychina/xmysql-flst/util"
)

// LogFlusher makes the redo log durable up to an LSN.
type LogFlusher interface {
	FlushUpTo(lsn uint64) error
}

// BufferPoolConfig contains configuration for buffer pool
type BufferPoolConfig struct {
	Capacity   int // 最多缓存的页面数
	PageSize   int
	Registerer prometheus.Registerer
	// Log, when set, is flushed up to a page's newest LSN before the page
	// is written back, so no page on disk is ahead of the durable redo.
	Log LogFlusher
}

// BufferPool caches pages of the attached tablespaces. Get fixes a block so
// it cannot be evicted; Release unfixes it. Latching is left to the caller.
type BufferPool struct {
	mu sync.Mutex

	capacity int
	pageSize int
	spaces   map[uint32]ibd.PageStore
	lru      *lruList
	freed    map[uint64]struct{}
	log      LogFlusher

	*stats
	metrics *poolMetrics
}

// NewBufferPool creates a new buffer pool
func NewBufferPool(config BufferPoolConfig) (*BufferPool, error) {
	if config.Capacity <= 0 || !ibd.ValidPageSize(config.PageSize) {
		return nil, NewError("new buffer pool", ErrInvalidConfig, ErrInvalidConfig)
	}
	return &BufferPool{
		capacity: config.Capacity,
		pageSize: config.PageSize,
		spaces:   make(map[uint32]ibd.PageStore),
		lru:      newLRUList(),
		freed:    make(map[uint64]struct{}),
		log:      config.Log,
		stats:    &stats{},
		metrics:  newPoolMetrics(config.Registerer),
	}, nil
}

// AddSpace attaches a tablespace store.
func (bp *BufferPool) AddSpace(store ibd.PageStore) error {
	if store.PageSize() != bp.pageSize {
		return NewError("add space", ErrInvalidConfig, ibd.ErrInvalidPageSize)
	}
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.spaces[store.SpaceID()] = store
	return nil
}

func (bp *BufferPool) PageSize() int {
	return bp.pageSize
}

// Get returns the block of page id fixed in the pool, reading it from its
// tablespace on a miss. Read failures are classified as ErrIOError or
// ErrPageCorrupted and keep the storage error as cause.
func (bp *BufferPool) Get(id common.PageID, mode FetchMode) (*BufferBlock, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if _, freed := bp.freed[id.Fold()]; freed && mode == BUF_GET {
		return nil, NewError("get "+id.String(), ErrPageFreed, ErrPageFreed)
	}

	if b, ok := bp.lru.Get(id.Fold()); ok {
		b.fix++
		bp.IncrHitCount()
		bp.metrics.hits.Inc()
		return b, nil
	}
	bp.IncrMissCount()
	bp.metrics.misses.Inc()

	if mode == BUF_GET_IF_IN_POOL {
		return nil, NewError("get "+id.String(), ErrPageNotFound, ErrPageNotFound)
	}

	store, ok := bp.spaces[id.Space]
	if !ok {
		return nil, NewError("get "+id.String(), ErrNoSuchSpace, ErrNoSuchSpace)
	}
	if bp.lru.Len() >= bp.capacity {
		if err := bp.evictLocked(); err != nil {
			return nil, err
		}
	}

	frame, err := store.ReadPage(id.PageNo)
	if err != nil {
		kind := ErrIOError
		if errors.Is(err, ibd.ErrPageCorrupted) {
			kind = ErrPageCorrupted
		}
		logger.Errorf("buffer pool: cannot read %v: %v", id, err)
		return nil, NewError("read "+id.String(), kind, err)
	}
	bp.metrics.reads.Inc()

	b := newBufferBlock(id, frame)
	b.fix = 1
	bp.lru.Add(b)
	return b, nil
}

// Release unfixes a block returned by Get.
func (bp *BufferPool) Release(b *BufferBlock) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	if b.fix <= 0 {
		panic("buffer pool: release of unfixed block " + b.id.String())
	}
	b.fix--
}

// MarkDirty records a modification of b committed at lsn.
func (bp *BufferPool) MarkDirty(b *BufferBlock, lsn uint64) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	b.dirty = true
	if lsn > b.newestLSN {
		b.newestLSN = lsn
	}
}

// MarkFreed flags a page as freed by the structure that owned it. Later
// BUF_GET requests fail; BUF_GET_POSSIBLY_FREED still returns the page.
func (bp *BufferPool) MarkFreed(id common.PageID) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.freed[id.Fold()] = struct{}{}
}

// ClearFreed makes a freed page available again, on reallocation.
func (bp *BufferPool) ClearFreed(id common.PageID) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	delete(bp.freed, id.Fold())
}

// IsFreed 检查页面是否已被释放
func (bp *BufferPool) IsFreed(id common.PageID) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	_, ok := bp.freed[id.Fold()]
	return ok
}

func (bp *BufferPool) evictLocked() error {
	victim := bp.lru.Victim()
	if victim == nil {
		return NewError("evict", ErrBufferPoolFull, ErrBufferPoolFull)
	}
	if victim.dirty {
		if err := bp.writeBack(victim, victim.Frame, victim.newestLSN); err != nil {
			return err
		}
	}
	bp.lru.Remove(victim)
	bp.metrics.evictions.Inc()
	logger.Debugf("buffer pool: evicted %v", victim.id)
	return nil
}

// writeBack stores frame, the image of b as of lsn.
func (bp *BufferPool) writeBack(b *BufferBlock, frame []byte, lsn uint64) error {
	store, ok := bp.spaces[b.id.Space]
	if !ok {
		return NewError("flush "+b.id.String(), ErrNoSuchSpace, ErrNoSuchSpace)
	}
	if bp.log != nil && lsn > 0 {
		if err := bp.log.FlushUpTo(lsn); err != nil {
			return NewError("flush "+b.id.String(), ErrFlushFailed, err)
		}
	}
	out := make([]byte, len(frame))
	copy(out, frame)
	util.MachWrite8(out[common.FIL_PAGE_LSN:], lsn)
	if err := store.WritePage(b.id.PageNo, out); err != nil {
		return NewError("flush "+b.id.String(), ErrFlushFailed, err)
	}
	if b.newestLSN == lsn {
		b.dirty = false
	}
	bp.metrics.writes.Inc()
	return nil
}

// FlushAll writes every dirty page back and syncs the tablespaces. Each page
// is copied under an SX latch, which waits for mini-transactions writing it
// to commit.
func (bp *BufferPool) FlushAll() error {
	bp.mu.Lock()
	var dirty []*BufferBlock
	bp.lru.Each(func(b *BufferBlock) {
		if b.dirty {
			b.fix++
			dirty = append(dirty, b)
		}
	})
	bp.mu.Unlock()

	var firstErr error
	for _, b := range dirty {
		b.latch.Acquire(latch.RW_SX_LATCH)
		image := make([]byte, len(b.Frame))
		copy(image, b.Frame)
		bp.mu.Lock()
		lsn := b.newestLSN
		bp.mu.Unlock()
		b.latch.Release(latch.RW_SX_LATCH)

		bp.mu.Lock()
		if err := bp.writeBack(b, image, lsn); err != nil && firstErr == nil {
			firstErr = err
		}
		b.fix--
		bp.mu.Unlock()
	}
	if firstErr != nil {
		return firstErr
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()
	for _, s := range bp.spaces {
		if err := s.Sync(); err != nil {
			return NewError("sync space", ErrIOError, err)
		}
	}
	return nil
}

// Discard drops every unfixed block without writing it back. Dirty changes
// are lost, as in a crash; the redo log is what brings them back.
func (bp *BufferPool) Discard() {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	var drop []*BufferBlock
	bp.lru.Each(func(b *BufferBlock) {
		if b.fix == 0 {
			drop = append(drop, b)
		}
	})
	for _, b := range drop {
		bp.lru.Remove(b)
	}
	logger.Debugf("buffer pool: discarded %d blocks", len(drop))
}

// GetStats 获取缓冲池统计信息
func (bp *BufferPool) GetStats() BufferPoolStats {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	s := BufferPoolStats{Capacity: bp.capacity, Cached: bp.lru.Len(), HitRate: bp.HitRate()}
	bp.lru.Each(func(b *BufferBlock) {
		if b.fix > 0 {
			s.Fixed++
		}
		if b.dirty {
			s.DirtyPages++
		}
	})
	return s
}

// NewestModification returns the LSN of the last commit that changed b.
func (bp *BufferPool) NewestModification(b *BufferBlock) uint64 {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return b.newestLSN
}
