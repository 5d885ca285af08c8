package ibd

import (
	"sync"

	"github.com/pkg/errors"
)

// MemSpace keeps a tablespace in memory. Pages that were never written read
// back as zero pages, like a freshly extended file.
type MemSpace struct {
	mu       sync.RWMutex
	spaceID  uint32
	pageSize int
	pages    map[uint32][]byte
	failures map[uint32]error
}

var _ PageStore = (*MemSpace)(nil)

func NewMemSpace(spaceID uint32, pageSize int) *MemSpace {
	return &MemSpace{
		spaceID:  spaceID,
		pageSize: pageSize,
		pages:    make(map[uint32][]byte),
		failures: make(map[uint32]error),
	}
}

func (m *MemSpace) SpaceID() uint32 { return m.spaceID }

func (m *MemSpace) PageSize() int { return m.pageSize }

// FailReads makes every read of pageNo return err until cleared with a nil err.
func (m *MemSpace) FailReads(pageNo uint32, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, pageNo)
		return
	}
	m.failures[pageNo] = err
}

func (m *MemSpace) ReadPage(pageNo uint32) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err, ok := m.failures[pageNo]; ok {
		return nil, err
	}
	page := make([]byte, m.pageSize)
	if stored, ok := m.pages[pageNo]; ok {
		copy(page, stored)
	}
	if err := VerifyPage(pageNo, page); err != nil {
		return nil, err
	}
	return page, nil
}

func (m *MemSpace) WritePage(pageNo uint32, page []byte) error {
	if len(page) != m.pageSize {
		return errors.Wrapf(ErrInvalidPageSize, "%d", len(page))
	}
	out := StampPage(m.spaceID, pageNo, page)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[pageNo] = out
	return nil
}

// RawPage returns the stored bytes of a page, or nil if it was never written.
func (m *MemSpace) RawPage(pageNo uint32) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.pages[pageNo]; ok {
		out := make([]byte, len(p))
		copy(out, p)
		return out
	}
	return nil
}

// Corrupt flips one stored byte, for checksum tests.
func (m *MemSpace) Corrupt(pageNo uint32, offset int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pages[pageNo]; ok {
		p[offset] ^= 0xFF
	}
}

func (m *MemSpace) Sync() error { return nil }

func (m *MemSpace) Close() error { return nil }
