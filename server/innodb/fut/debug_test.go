//go:build !flst_nodebug

package fut

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/xmysql-flst/server/common"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/buffer_pool"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/latch"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/storage/store/mtr"
)

func TestAssertionsRejectCallerErrors(t *testing.T) {
	pool, _ := newTestPool(t, 8)
	m := mtr.New(pool, nil)
	initList(t, m)

	m.Start()
	defer m.Rollback()
	base, err := m.GetPage(common.NewPageID(testSpace, 0), latch.RW_S_LATCH, buffer_pool.BUF_GET)
	require.NoError(t, err)
	node1 := xpage(t, m, 1)

	assert.Panics(t, func() { Init(base, baseOffset, m) }, "S latch on the base node")
	assert.Panics(t, func() { _ = AddLast(base, baseOffset, node1, 100, m) }, "S latch on the base node")

	other, err := pool.Get(common.NewPageID(testSpace, 2), buffer_pool.BUF_GET)
	require.NoError(t, err)
	defer pool.Release(other)
	w := xpage(t, m, 3)
	assert.Panics(t, func() { _ = AddFirst(w, baseOffset, other, 100, m) }, "node page not held by the mini-transaction")
	assert.Panics(t, func() { _ = AddLast(w, baseOffset, w, baseOffset, m) }, "node on the base node")
	assert.Panics(t, func() { _ = AddLast(w, 4, node1, 100, m) }, "base node in the FIL header")
	assert.Panics(t, func() { _ = PageOffset(w, testPageSize) })
	assert.Equal(t, uint16(200), PageOffset(w, 200))

	Init(w, baseOffset, m)
	require.NoError(t, AddLast(w, baseOffset, node1, 100, m))
	assert.Panics(t, func() { addToEmpty(w, baseOffset, node1, 112, m) }, "list is not empty")
}
