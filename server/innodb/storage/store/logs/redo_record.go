package logs

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/zhukovaskychina/xmysql-flst/server/common"
	"github.com/zhukovaskychina/xmysql-flst/util"
)

// ErrBadRecord is returned for a redo record that cannot be decoded or applied.
var ErrBadRecord = errors.New("malformed redo record")

// [type:1][space:4][page:4][offset:2][len:2]
const recordHeaderSize = 13

// RedoRecord is one physical page modification.
//
// Data holds the written bytes for the write types, the fill byte for
// MLOG_MEMSET and the big-endian source offset for MLOG_MEMMOVE.
type RedoRecord struct {
	Type   uint8
	PageID common.PageID
	Offset uint16
	Len    uint16
	Data   []byte
}

// NewWriteRecord logs data written at offset. 1, 2, 4 and 8 byte writes get
// the fixed width record types.
func NewWriteRecord(id common.PageID, offset uint16, data []byte) RedoRecord {
	t := uint8(MLOG_WRITE_STRING)
	switch len(data) {
	case 1, 2, 4, 8:
		t = uint8(len(data))
	}
	payload := make([]byte, len(data))
	copy(payload, data)
	return RedoRecord{Type: t, PageID: id, Offset: offset, Len: uint16(len(data)), Data: payload}
}

func NewMemsetRecord(id common.PageID, offset, n uint16, fill byte) RedoRecord {
	return RedoRecord{Type: MLOG_MEMSET, PageID: id, Offset: offset, Len: n, Data: []byte{fill}}
}

func NewMemmoveRecord(id common.PageID, dst, src, n uint16) RedoRecord {
	payload := make([]byte, 2)
	util.MachWrite2(payload, src)
	return RedoRecord{Type: MLOG_MEMMOVE, PageID: id, Offset: dst, Len: n, Data: payload}
}

func payloadSize(t uint8, n uint16) (int, error) {
	switch t {
	case MLOG_1BYTE, MLOG_2BYTES, MLOG_4BYTES, MLOG_8BYTES:
		if int(n) != int(t) {
			return 0, errors.Wrapf(ErrBadRecord, "type %d with length %d", t, n)
		}
		return int(n), nil
	case MLOG_WRITE_STRING:
		return int(n), nil
	case MLOG_MEMSET:
		return 1, nil
	case MLOG_MEMMOVE:
		return 2, nil
	}
	return 0, errors.Wrapf(ErrBadRecord, "unknown type %d", t)
}

// EncodedSize is the number of log bytes the record occupies.
func (r RedoRecord) EncodedSize() int {
	return recordHeaderSize + len(r.Data)
}

func (r RedoRecord) AppendTo(buf []byte) []byte {
	var hdr [recordHeaderSize]byte
	hdr[0] = r.Type
	util.MachWrite4(hdr[1:], r.PageID.Space)
	util.MachWrite4(hdr[5:], r.PageID.PageNo)
	util.MachWrite2(hdr[9:], r.Offset)
	util.MachWrite2(hdr[11:], r.Len)
	buf = append(buf, hdr[:]...)
	return append(buf, r.Data...)
}

// DecodeRecord parses one record from buf and returns it with its size.
func DecodeRecord(buf []byte) (RedoRecord, int, error) {
	if len(buf) < recordHeaderSize {
		return RedoRecord{}, 0, errors.Wrap(ErrBadRecord, "short header")
	}
	r := RedoRecord{
		Type:   buf[0],
		PageID: common.NewPageID(util.MachRead4(buf[1:]), util.MachRead4(buf[5:])),
		Offset: util.MachRead2(buf[9:]),
		Len:    util.MachRead2(buf[11:]),
	}
	n, err := payloadSize(r.Type, r.Len)
	if err != nil {
		return RedoRecord{}, 0, err
	}
	if len(buf) < recordHeaderSize+n {
		return RedoRecord{}, 0, errors.Wrap(ErrBadRecord, "short payload")
	}
	r.Data = make([]byte, n)
	copy(r.Data, buf[recordHeaderSize:recordHeaderSize+n])
	return r, recordHeaderSize + n, nil
}

// Apply replays the record on a page frame.
func (r RedoRecord) Apply(frame []byte) error {
	end := int(r.Offset) + int(r.Len)
	if end > len(frame) {
		return errors.Wrapf(ErrBadRecord, "%v writes [%d, %d) past page end", r.PageID, r.Offset, end)
	}
	switch r.Type {
	case MLOG_MEMSET:
		b := frame[r.Offset:end]
		for i := range b {
			b[i] = r.Data[0]
		}
	case MLOG_MEMMOVE:
		src := int(util.MachRead2(r.Data))
		if src+int(r.Len) > len(frame) {
			return errors.Wrapf(ErrBadRecord, "%v moves from [%d, %d) past page end", r.PageID, src, src+int(r.Len))
		}
		copy(frame[r.Offset:end], frame[src:src+int(r.Len)])
	default:
		if len(r.Data) != int(r.Len) {
			return errors.Wrapf(ErrBadRecord, "payload %d != length %d", len(r.Data), r.Len)
		}
		copy(frame[r.Offset:end], r.Data)
	}
	return nil
}

func (r RedoRecord) String() string {
	return fmt.Sprintf("redo{type=%d %v off=%d len=%d}", r.Type, r.PageID, r.Offset, r.Len)
}
