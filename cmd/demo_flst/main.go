package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/zhukovaskychina/xmysql-flst/logger"
	"github.com/zhukovaskychina/xmysql-flst/server/common"
	"github.com/zhukovaskychina/xmysql-flst/server/conf"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/buffer_pool"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/fut"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/latch"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/storage/store/ibd"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/storage/store/logs"
	"github.com/zhukovaskychina/xmysql-flst/server/innodb/storage/store/mtr"
	"github.com/zhukovaskychina/xmysql-flst/util"
)

const demoSpaceID = 1

// Page 0 of the demo space holds the list base node followed by the number
// of node slots handed out so far.
const (
	baseOffset    = uint16(common.FIL_PAGE_DATA)
	slotsUsedOffs = common.FIL_PAGE_DATA + common.FLST_BASE_NODE_SIZE
)

type demo struct {
	cfg  *conf.Cfg
	pool *buffer_pool.BufferPool
	redo *logs.RedoLog
	file *ibd.IBD_File
}

func main() {
	var (
		configPath  string
		nodes       int
		removeEvery int
	)
	flag.StringVar(&configPath, "configPath", "", "配置文件路径 (.ini 或 .toml)")
	flag.IntVar(&nodes, "nodes", 16, "number of nodes to append")
	flag.IntVar(&removeEvery, "remove-every", 3, "remove every n-th node afterwards, 0 keeps all")
	flag.Parse()

	cfg, err := conf.NewCfg().Load(&conf.CommandLineArgs{ConfigPath: configPath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.InitLogger(cfg.LogConfig()); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	reg := prometheus.NewRegistry()
	d, err := open(cfg, reg)
	if err != nil {
		logger.Fatalf("open storage: %v", err)
	}
	defer d.close()

	if err := d.run(nodes, removeEvery); err != nil {
		logger.Fatalf("flst demo: %v", err)
	}
	if err := d.pool.FlushAll(); err != nil {
		logger.Fatalf("flush: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		logger.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			logger.Infof("%s %v", mf.GetName(), m.GetCounter().GetValue())
		}
	}
}

func open(cfg *conf.Cfg, reg prometheus.Registerer) (*demo, error) {
	file := ibd.NewIBDFile(cfg.InnodbDataDir, "flst_demo", demoSpaceID, cfg.InnodbPageSize)
	if err := file.Open(); err != nil {
		return nil, err
	}
	redo, err := logs.OpenRedoLog(logs.RedoLogConfig{
		Dir:           cfg.InnodbRedoLogDir,
		Compression:   cfg.RedoLogCompression(),
		FlushAtCommit: cfg.InnodbFlushLogAtTrxCommit == 1,
		Registerer:    reg,
	})
	if err != nil {
		file.Close()
		return nil, err
	}
	pool, err := buffer_pool.NewBufferPool(buffer_pool.BufferPoolConfig{
		Capacity:   cfg.InnodbBufferPoolPages,
		PageSize:   cfg.InnodbPageSize,
		Registerer: reg,
		Log:        redo,
	})
	if err == nil {
		err = pool.AddSpace(file)
	}
	if err != nil {
		redo.Close()
		file.Close()
		return nil, err
	}

	if _, err := mtr.Recover(pool, redo); err != nil {
		redo.Close()
		file.Close()
		return nil, err
	}
	return &demo{cfg: cfg, pool: pool, redo: redo, file: file}, nil
}

func (d *demo) close() {
	if err := d.redo.Close(); err != nil {
		logger.Errorf("close redo log: %v", err)
	}
	if err := d.file.Close(); err != nil {
		logger.Errorf("close %s: %v", d.file.GetFilePath(), err)
	}
}

func (d *demo) slotsPerPage() int {
	return (d.cfg.InnodbPageSize - common.FIL_PAGE_DATA - common.FIL_PAGE_DATA_END) / common.FLST_NODE_SIZE
}

// slot returns the file address of node slot n, counting from page 1.
func (d *demo) slot(n int) fut.FilAddr {
	per := d.slotsPerPage()
	return fut.FilAddr{
		Page:    uint32(1 + n/per),
		Boffset: uint16(common.FIL_PAGE_DATA + (n%per)*common.FLST_NODE_SIZE),
	}
}

func (d *demo) page(m *mtr.Mtr, no uint32) (*buffer_pool.BufferBlock, error) {
	return m.GetPage(common.NewPageID(demoSpaceID, no), latch.RW_X_LATCH, buffer_pool.BUF_GET)
}

// commitOrRollback ends m according to err, the result of the list
// operation run in it.
func commitOrRollback(m *mtr.Mtr, err error) error {
	if err != nil {
		m.Rollback()
		return err
	}
	return m.Commit()
}

func (d *demo) run(nodes, removeEvery int) error {
	m := mtr.New(d.pool, d.redo)

	if err := d.file.Extend(1); err != nil {
		return err
	}
	m.Start()
	hdr, err := d.page(m, 0)
	if err != nil {
		m.Rollback()
		return err
	}
	if util.MachRead2(hdr.Frame[common.FIL_PAGE_TYPE:]) != common.FIL_PAGE_TYPE_FSP_HDR {
		m.Write2(hdr, common.FIL_PAGE_TYPE, common.FIL_PAGE_TYPE_FSP_HDR)
		fut.Init(hdr, baseOffset, m)
		m.Write4(hdr, slotsUsedOffs, 0)
		logger.Infof("initialized list in %v", hdr.ID())
	}
	used := int(util.MachRead4(hdr.Frame[slotsUsedOffs:]))
	if err := m.Commit(); err != nil {
		return err
	}
	if nodes > 0 {
		if err := d.file.Extend(d.slot(used+nodes-1).Page + 1); err != nil {
			return err
		}
	}

	for i := 0; i < nodes; i++ {
		addr := d.slot(used + i)
		m.Start()
		base, err := d.page(m, 0)
		if err == nil {
			var add *buffer_pool.BufferBlock
			if add, err = d.page(m, addr.Page); err == nil {
				if err = fut.AddLast(base, baseOffset, add, addr.Boffset, m); err == nil {
					m.Write4(base, slotsUsedOffs, uint32(used+i+1))
				}
			}
		}
		if err := commitOrRollback(m, err); err != nil {
			return err
		}
	}

	if removeEvery > 0 {
		if err := d.removeEvery(m, removeEvery); err != nil {
			return err
		}
	}

	m.Start()
	base, err := m.GetPage(common.NewPageID(demoSpaceID, 0), latch.RW_SX_LATCH, buffer_pool.BUF_GET)
	if err != nil {
		m.Rollback()
		return err
	}
	if d.cfg.InnodbValidateLists {
		if err := fut.Validate(base, baseOffset, m); err != nil {
			m.Rollback()
			return err
		}
	}
	log := logger.WithFields(logrus.Fields{"page": base.ID(), "offset": baseOffset})
	log.Infof("list length %d, first %v, last %v",
		fut.GetLen(base, baseOffset), fut.GetFirst(base, baseOffset), fut.GetLast(base, baseOffset))
	err = fut.ForEach(base, baseOffset, m, func(a fut.FilAddr) error {
		log.Debugf("node %v", a)
		return nil
	})
	return commitOrRollback(m, err)
}

func (d *demo) removeEvery(m *mtr.Mtr, n int) error {
	var victims []fut.FilAddr
	m.Start()
	base, err := m.GetPage(common.NewPageID(demoSpaceID, 0), latch.RW_SX_LATCH, buffer_pool.BUF_GET)
	if err == nil {
		i := 0
		err = fut.ForEach(base, baseOffset, m, func(a fut.FilAddr) error {
			i++
			if i%n == 0 {
				victims = append(victims, a)
			}
			return nil
		})
	}
	if err := commitOrRollback(m, err); err != nil {
		return err
	}

	for _, v := range victims {
		m.Start()
		base, err := d.page(m, 0)
		if err == nil {
			var cur *buffer_pool.BufferBlock
			if cur, err = d.page(m, v.Page); err == nil {
				err = fut.Remove(base, baseOffset, cur, v.Boffset, m)
			}
		}
		if err := commitOrRollback(m, err); err != nil {
			return err
		}
	}
	logger.Infof("removed %d nodes", len(victims))
	return nil
}
