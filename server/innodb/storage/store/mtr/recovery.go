package mtr

import (
	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xmysql-flst/logger"
	"github.com/zhukovaskychina/xmysql-flst/server/common"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/buffer_pool"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/latch"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/storage/store/logs"
	"github.com/zhukovaskychina/xmysql-flst/util"
)

// LogSource is a redo log that can be read back in LSN order.
type LogSource interface {
	Replay(fn func(lsn uint64, rec logs.RedoRecord) error) error
}

// RecoveryStats 崩溃恢复统计
type RecoveryStats struct {
	Applied int
	Skipped int
	Pages   int
}

// Recover replays redo onto the pages of pool. A record is applied only if
// its LSN is newer than the FIL_PAGE_LSN the page had when it was read, so
// changes already flushed are not applied twice. Recovered pages are left
// dirty in the pool.
func Recover(pool *buffer_pool.BufferPool, src LogSource) (RecoveryStats, error) {
	var st RecoveryStats
	pageLSN := make(map[uint64]uint64)

	err := src.Replay(func(lsn uint64, rec logs.RedoRecord) error {
		block, err := pool.Get(rec.PageID, buffer_pool.BUF_GET_POSSIBLY_FREED)
		if err != nil {
			return errors.Wrapf(err, "recover lsn %d", lsn)
		}
		defer pool.Release(block)

		key := rec.PageID.Fold()
		flushed, seen := pageLSN[key]
		if !seen {
			flushed = util.MachRead8(block.Frame[common.FIL_PAGE_LSN:])
			pageLSN[key] = flushed
			st.Pages++
		}
		if lsn <= flushed {
			st.Skipped++
			return nil
		}

		block.Latch().Acquire(latch.RW_X_LATCH)
		err = rec.Apply(block.Frame)
		block.Latch().Release(latch.RW_X_LATCH)
		if err != nil {
			return errors.Wrapf(err, "recover lsn %d", lsn)
		}
		pool.MarkDirty(block, lsn)
		st.Applied++
		return nil
	})
	if err != nil {
		logger.Errorf("mtr: recovery stopped after %d records: %v", st.Applied, err)
		return st, err
	}
	logger.Infof("mtr: recovery applied %d records to %d pages, skipped %d", st.Applied, st.Pages, st.Skipped)
	return st, nil
}
