package buffer_pool

import (
	"container/list"
	"sync/atomic"
)

// statistics
type stats struct {
	hitCount  uint64
	missCount uint64
}

// increment hit count
func (st *stats) IncrHitCount() uint64 {
	return atomic.AddUint64(&st.hitCount, 1)
}

// increment miss count
func (st *stats) IncrMissCount() uint64 {
	return atomic.AddUint64(&st.missCount, 1)
}

// HitCount returns hit count
func (st *stats) HitCount() uint64 {
	return atomic.LoadUint64(&st.hitCount)
}

// MissCount returns miss count
func (st *stats) MissCount() uint64 {
	return atomic.LoadUint64(&st.missCount)
}

// HitRate returns rate for cache hitting
func (st *stats) HitRate() float64 {
	hc, mc := st.HitCount(), st.MissCount()
	total := hc + mc
	if total == 0 {
		return 0.0
	}
	return float64(hc) / float64(total)
}

// lruList orders cached blocks from most (front) to least (back) recently
// used. Not safe for concurrent use; the buffer pool mutex guards it.
type lruList struct {
	items map[uint64]*BufferBlock
	order *list.List
}

func newLRUList() *lruList {
	return &lruList{
		items: make(map[uint64]*BufferBlock),
		order: list.New(),
	}
}

func (l *lruList) Len() int {
	return len(l.items)
}

func (l *lruList) Get(key uint64) (*BufferBlock, bool) {
	b, ok := l.items[key]
	if ok {
		l.order.MoveToFront(b.lruElem)
	}
	return b, ok
}

func (l *lruList) Add(b *BufferBlock) {
	key := b.id.Fold()
	l.items[key] = b
	b.lruElem = l.order.PushFront(b)
}

func (l *lruList) Remove(b *BufferBlock) {
	delete(l.items, b.id.Fold())
	if b.lruElem != nil {
		l.order.Remove(b.lruElem)
		b.lruElem = nil
	}
}

// Victim returns the least recently used block nobody has fixed.
func (l *lruList) Victim() *BufferBlock {
	for e := l.order.Back(); e != nil; e = e.Prev() {
		b := e.Value.(*BufferBlock)
		if b.fix == 0 {
			return b
		}
	}
	return nil
}

func (l *lruList) Each(fn func(b *BufferBlock)) {
	for e := l.order.Front(); e != nil; e = e.Next() {
		fn(e.Value.(*BufferBlock))
	}
}
