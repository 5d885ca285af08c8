package logs

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zhukovaskychina/xmysql-flst/logger"
	"github.com/zhukovaskychina/xmysql-flst/util"
)

const redoLogFileName = "redo.log"

// Frame header: [lsn:8][raw_len:4][stored_len:4][codec:1][checksum:4].
// The checksum covers the header (with the checksum field zeroed) and the
// stored payload.
const (
	frameHeaderSize = 21
	frameSumOffset  = 17
	maxFrameSize    = 64 << 20
)

// RedoLogConfig 重做日志配置
type RedoLogConfig struct {
	Dir           string
	Compression   Compression
	FlushAtCommit bool
	Registerer    prometheus.Registerer
}

// ErrRedoLogFailed is returned by Append once a failed frame could not be
// cut off the end of the file.
var ErrRedoLogFailed = errors.New("redo log failed")

// redoFile is what the log needs from *os.File.
type redoFile interface {
	io.Writer
	io.Seeker
	Truncate(size int64) error
	Sync() error
	Close() error
}

// RedoLog is an append-only redo file. Every committed mini-transaction is
// one frame, so a crash loses whole mini-transactions or nothing.
type RedoLog struct {
	mu      sync.Mutex
	path    string
	file    redoFile
	cfg     RedoLogConfig
	end     int64  // offset just past the last complete frame
	lsn     uint64 // LSN of the last appended frame
	flushed uint64 // frames up to this LSN are synced
	failed  error
	metrics *redoMetrics
}

// OpenRedoLog opens or creates the redo log in cfg.Dir. A torn tail left by
// a crash is cut off so new frames follow the last complete one.
func OpenRedoLog(cfg RedoLogConfig) (*RedoLog, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create redo log dir")
	}
	path := filepath.Join(cfg.Dir, redoLogFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "open redo log")
	}

	r := &RedoLog{path: path, file: file, cfg: cfg, metrics: newRedoMetrics(cfg.Registerer)}
	end, lastLSN, err := r.scan(nil)
	if err != nil {
		file.Close()
		return nil, err
	}
	if err := file.Truncate(end); err != nil {
		file.Close()
		return nil, errors.Wrap(err, "truncate torn redo tail")
	}
	if _, err := file.Seek(end, io.SeekStart); err != nil {
		file.Close()
		return nil, errors.Wrap(err, "seek redo log")
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, errors.Wrap(err, "sync redo log")
	}
	r.end = end
	r.lsn = lastLSN
	r.flushed = lastLSN
	logger.Debugf("redo log %s opened at lsn %d (%d bytes, compression %v)", path, lastLSN, end, cfg.Compression)
	return r, nil
}

// CurrentLSN returns the LSN of the last appended frame.
func (r *RedoLog) CurrentLSN() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lsn
}

// Append writes recs as one frame and returns its LSN. If the frame cannot
// be written, or synced with FlushAtCommit, it is cut off the file again so
// the next frame follows the last complete one.
func (r *RedoLog) Append(recs []RedoRecord) (uint64, error) {
	raw := make([]byte, 0, 64)
	for _, rec := range recs {
		raw = rec.AppendTo(raw)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return 0, errors.New("redo log closed")
	}
	if r.failed != nil {
		return 0, errors.Wrap(ErrRedoLogFailed, r.failed.Error())
	}
	stored, codec, err := compress(r.cfg.Compression, raw)
	if err != nil {
		return 0, err
	}

	lsn := r.lsn + 1
	frame := make([]byte, frameHeaderSize, frameHeaderSize+len(stored))
	util.MachWrite8(frame[0:], lsn)
	util.MachWrite4(frame[8:], uint32(len(raw)))
	util.MachWrite4(frame[12:], uint32(len(stored)))
	frame[16] = byte(codec)
	frame = append(frame, stored...)
	util.MachWrite4(frame[frameSumOffset:], util.Checksum32(frame))

	if _, err := r.file.Write(frame); err != nil {
		r.discardTail()
		return 0, errors.Wrap(err, "append redo frame")
	}
	if r.cfg.FlushAtCommit {
		if err := r.file.Sync(); err != nil {
			r.discardTail()
			return 0, errors.Wrap(err, "sync redo log")
		}
		r.flushed = lsn
		r.metrics.syncs.Inc()
	}
	r.end += int64(len(frame))
	r.lsn = lsn
	r.metrics.frames.Inc()
	r.metrics.bytes.Add(float64(len(frame)))
	return lsn, nil
}

// discardTail drops whatever part of a failed frame reached the file.
func (r *RedoLog) discardTail() {
	err := r.file.Truncate(r.end)
	if err == nil {
		_, err = r.file.Seek(r.end, io.SeekStart)
	}
	if err != nil {
		r.failed = err
		logger.Errorf("redo log %s: cannot cut failed frame at offset %d: %v", r.path, r.end, err)
	}
}

// FlushUpTo makes every frame up to lsn durable. Dirty pages are written
// back only after the redo of their newest change has been flushed.
func (r *RedoLog) FlushUpTo(lsn uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lsn <= r.flushed || r.file == nil {
		return nil
	}
	if lsn > r.lsn {
		return errors.Errorf("flush redo up to lsn %d beyond last lsn %d", lsn, r.lsn)
	}
	if err := r.file.Sync(); err != nil {
		return errors.Wrap(err, "sync redo log")
	}
	r.flushed = r.lsn
	r.metrics.syncs.Inc()
	return nil
}

// Replay calls fn for every record of every complete frame, in log order.
func (r *RedoLog) Replay(fn func(lsn uint64, rec RedoRecord) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _, err := r.scan(fn)
	return err
}

// scan walks the frames from the start of the file and returns the offset
// just past the last complete frame together with its LSN.
func (r *RedoLog) scan(fn func(lsn uint64, rec RedoRecord) error) (int64, uint64, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return 0, 0, errors.Wrap(err, "open redo log for scan")
	}
	defer f.Close()

	rd := bufio.NewReader(f)
	var (
		end  int64
		last uint64
		hdr  [frameHeaderSize]byte
	)
	for {
		if _, err := io.ReadFull(rd, hdr[:]); err != nil {
			break
		}
		lsn := util.MachRead8(hdr[0:])
		rawLen := int(util.MachRead4(hdr[8:]))
		storedLen := int(util.MachRead4(hdr[12:]))
		if storedLen > maxFrameSize || rawLen > maxFrameSize || lsn != last+1 {
			break
		}
		frame := make([]byte, frameHeaderSize+storedLen)
		copy(frame, hdr[:])
		if _, err := io.ReadFull(rd, frame[frameHeaderSize:]); err != nil {
			break
		}
		sum := util.MachRead4(frame[frameSumOffset:])
		util.MachWrite4(frame[frameSumOffset:], 0)
		if util.Checksum32(frame) != sum {
			logger.Warnf("redo log %s: checksum mismatch at lsn %d, ignoring tail", r.path, lsn)
			break
		}

		if fn != nil {
			raw, err := decompress(Compression(hdr[16]), frame[frameHeaderSize:], rawLen)
			if err != nil {
				return 0, 0, errors.Wrapf(err, "redo frame lsn %d", lsn)
			}
			for len(raw) > 0 {
				rec, n, err := DecodeRecord(raw)
				if err != nil {
					return 0, 0, errors.Wrapf(err, "redo frame lsn %d", lsn)
				}
				if err := fn(lsn, rec); err != nil {
					return 0, 0, err
				}
				raw = raw[n:]
			}
		}
		end += int64(len(frame))
		last = lsn
	}
	return end, last, nil
}

// Close syncs and closes the redo log file.
func (r *RedoLog) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	if err := r.file.Sync(); err != nil {
		return errors.Wrap(err, "sync redo log")
	}
	err := r.file.Close()
	r.file = nil
	r.flushed = r.lsn
	return err
}

// Path returns the redo log file path.
func (r *RedoLog) Path() string {
	return r.path
}
